package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 仕入れAPIへ送る明細
type PurchaseLine struct {
	SaleUnitID int64           `json:"id_unidad_venta"`
	Quantity   int             `json:"cantidad"`
	Cost       decimal.Decimal `json:"costo"`
}

type PurchaseRequest struct {
	UserID     int64          `json:"id_usuario"`
	BranchID   int64          `json:"id_sucursal"`
	SupplierID *int64         `json:"id_proveedor"`
	Lines      []PurchaseLine `json:"productos"`
}

type PurchaseReceipt struct {
	PurchaseID int64     `json:"id_compra"`
	CreatedAt  time.Time `json:"fecha"`
}
