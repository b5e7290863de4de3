package model

import "github.com/shopspring/decimal"

// カートの明細
// 追加時点のカタログ原価をUnitCostに必ず保存。
type CartItem struct {
	Product   ProductRef          `json:"product"`
	Quantity  int                 `json:"quantity"`
	UnitCost  decimal.Decimal     `json:"unitCost"`
	Price     decimal.NullDecimal `json:"price"`
	Wholesale bool                `json:"wholesale"`
}

// 上書き価格があればそれ、無ければ追加時点の原価
func (it CartItem) EffectiveCost() decimal.Decimal {
	if it.Price.Valid {
		return it.Price.Decimal
	}
	return it.UnitCost
}

// 販売価格（上書き > 卸売 > 小売）
func (it CartItem) EffectivePrice() decimal.Decimal {
	if it.Price.Valid {
		return it.Price.Decimal
	}
	if it.Wholesale && it.Product.WholesalePrice.IsPositive() {
		return it.Product.WholesalePrice
	}
	return it.Product.Price
}
