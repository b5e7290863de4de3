package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "efectivo"
	PaymentMethodCard     PaymentMethod = "tarjeta"
	PaymentMethodTransfer PaymentMethod = "transferencia"
)

// 販売APIへ送る明細
type SaleLine struct {
	SaleUnitID int64           `json:"id_unidad_venta"`
	Quantity   int             `json:"cantidad"`
	Price      decimal.Decimal `json:"precio"`
}

// 販売APIへ送る本体
type SaleRequest struct {
	UserID         int64           `json:"id_usuario"`
	BranchID       int64           `json:"id_sucursal"`
	PaymentMethod  PaymentMethod   `json:"metodo_pago"`
	AmountTendered decimal.Decimal `json:"monto_recibido"`
	Lines          []SaleLine      `json:"productos"`
}

// 販売APIの成功レスポンス
type SaleReceipt struct {
	SaleID    int64     `json:"id_venta"`
	CreatedAt time.Time `json:"fecha"`
}
