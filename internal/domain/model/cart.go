package model

import "time"

// カート種別ごとの保存キー
const (
	SalesCartNamespace    = "pos-cart-storage"
	PurchaseCartNamespace = "purchase-cart-storage"
)

// 名前付きカート（販売・仕入れ共通）
// IDは作成時に払い出して二度と使い回さない。名前は重複してよい。
type Cart struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"createdAt"`
	SupplierID *int64     `json:"supplierId,omitempty"`
}

// 明細を探す
func (c Cart) FindItem(saleUnitID int64) (CartItem, bool) {
	for _, it := range c.Items {
		if it.Product.SaleUnitID == saleUnitID {
			return it, true
		}
	}
	return CartItem{}, false
}

// Itemsまで複製したコピー
func (c Cart) Clone() Cart {
	out := c
	if c.Items != nil {
		out.Items = make([]CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	if c.SupplierID != nil {
		id := *c.SupplierID
		out.SupplierID = &id
	}
	return out
}
