package model

import "github.com/shopspring/decimal"

// カタログ上の販売単位への参照（追加時点の値を持つ）
// SaleUnitIDがカート内の重複判定キー。
type ProductRef struct {
	SaleUnitID     int64           `json:"id_unidad_venta" validate:"required,gt=0"`
	ProductID      int64           `json:"id_producto"`
	Name           string          `json:"nombre"`
	UnitName       string          `json:"unidad,omitempty"`
	Barcode        string          `json:"codigo_barras,omitempty"`
	Cost           decimal.Decimal `json:"precio_costo"`
	Price          decimal.Decimal `json:"precio_venta"`
	WholesalePrice decimal.Decimal `json:"precio_mayoreo"`
}
