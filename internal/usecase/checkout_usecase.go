package usecase

import (
	"context"
	"net/http"
	"sync"

	"pos/internal/domain/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// リモートの販売・仕入れAPIの約束
type SalesAPI interface {
	CreateSale(ctx context.Context, req model.SaleRequest) (model.SaleReceipt, error)
	CreatePurchase(ctx context.Context, req model.PurchaseRequest) (model.PurchaseReceipt, error)
}

// CheckoutUsecase はアクティブカートをリモートAPIへ渡す。
// 成功したときだけ送った明細をカートから差し引く。失敗ならカートはそのまま（再送できる）。
// 同じカートの送信は同時に1つだけ（二重クリックで二重に売らない）。
type CheckoutUsecase struct {
	sales     *CartStore
	purchases *CartStore
	api       SalesAPI
	log       *zap.SugaredLogger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewCheckoutUsecase(sales *CartStore, purchases *CartStore, api SalesAPI, log *zap.SugaredLogger) *CheckoutUsecase {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CheckoutUsecase{
		sales:     sales,
		purchases: purchases,
		api:       api,
		log:       log,
		inFlight:  map[string]struct{}{},
	}
}

// 種別+カートIDで送信中の印をつける。既に送信中ならfalse。
func (u *CheckoutUsecase) begin(key string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.inFlight[key]; ok {
		return false
	}
	u.inFlight[key] = struct{}{}
	return true
}

func (u *CheckoutUsecase) end(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.inFlight, key)
}

type CheckoutInput struct {
	UserID         int64
	BranchID       int64
	PaymentMethod  model.PaymentMethod
	AmountTendered decimal.Decimal
}

type CheckoutOutput struct {
	Receipt model.SaleReceipt `json:"receipt"`
	CartID  string            `json:"cart_id"`
	Total   decimal.Decimal   `json:"total"`
	Change  decimal.Decimal   `json:"change"`
}

// 販売カートを確定する
func (u *CheckoutUsecase) Checkout(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	if in.UserID <= 0 || in.BranchID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid input")
	}

	cart, ok := u.sales.ActiveCart()
	if !ok || len(cart.Items) == 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}

	key := "sale/" + cart.ID
	if !u.begin(key) {
		return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "checkout in progress")
	}
	defer u.end(key)

	req := model.SaleRequest{
		UserID:         in.UserID,
		BranchID:       in.BranchID,
		PaymentMethod:  in.PaymentMethod,
		AmountTendered: in.AmountTendered,
		Lines:          make([]model.SaleLine, 0, len(cart.Items)),
	}

	total := decimal.Zero
	for _, it := range cart.Items {
		price := it.EffectivePrice()
		req.Lines = append(req.Lines, model.SaleLine{
			SaleUnitID: it.Product.SaleUnitID,
			Quantity:   it.Quantity,
			Price:      price,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	//現金は受取額が足りること
	if in.PaymentMethod == model.PaymentMethodCash && in.AmountTendered.LessThan(total) {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "insufficient amount")
	}

	receipt, err := u.api.CreateSale(ctx, req)
	if err != nil {
		u.log.Errorw("sale submission failed", "cart_id", cart.ID, "error", err)
		return CheckoutOutput{}, NewHTTPError(http.StatusBadGateway, "sale failed")
	}

	// IDで指定するので途中でアクティブが変わっても別のカートには触らない
	u.sales.SettleCart(cart.ID, cart.Items)

	change := decimal.Zero
	if in.PaymentMethod == model.PaymentMethodCash {
		change = in.AmountTendered.Sub(total)
	}

	u.log.Infow("sale created", "sale_id", receipt.SaleID, "cart_id", cart.ID, "total", total.StringFixed(2))
	return CheckoutOutput{Receipt: receipt, CartID: cart.ID, Total: total, Change: change}, nil
}

type SubmitPurchaseInput struct {
	UserID   int64
	BranchID int64
}

type SubmitPurchaseOutput struct {
	Receipt model.PurchaseReceipt `json:"receipt"`
	CartID  string                `json:"cart_id"`
	Total   decimal.Decimal       `json:"total"`
}

// 仕入れカートを送る（原価は上書き価格 > 追加時点の原価）
func (u *CheckoutUsecase) SubmitPurchase(ctx context.Context, in SubmitPurchaseInput) (SubmitPurchaseOutput, error) {
	if in.UserID <= 0 || in.BranchID <= 0 {
		return SubmitPurchaseOutput{}, NewHTTPError(http.StatusBadRequest, "invalid input")
	}

	cart, ok := u.purchases.ActiveCart()
	if !ok || len(cart.Items) == 0 {
		return SubmitPurchaseOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}

	key := "purchase/" + cart.ID
	if !u.begin(key) {
		return SubmitPurchaseOutput{}, NewHTTPError(http.StatusConflict, "checkout in progress")
	}
	defer u.end(key)

	req := model.PurchaseRequest{
		UserID:     in.UserID,
		BranchID:   in.BranchID,
		SupplierID: cart.SupplierID,
		Lines:      make([]model.PurchaseLine, 0, len(cart.Items)),
	}

	total := decimal.Zero
	for _, it := range cart.Items {
		cost := it.EffectiveCost()
		req.Lines = append(req.Lines, model.PurchaseLine{
			SaleUnitID: it.Product.SaleUnitID,
			Quantity:   it.Quantity,
			Cost:       cost,
		})
		total = total.Add(cost.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	receipt, err := u.api.CreatePurchase(ctx, req)
	if err != nil {
		u.log.Errorw("purchase submission failed", "cart_id", cart.ID, "error", err)
		return SubmitPurchaseOutput{}, NewHTTPError(http.StatusBadGateway, "purchase failed")
	}

	u.purchases.SettleCart(cart.ID, cart.Items)

	u.log.Infow("purchase created", "purchase_id", receipt.PurchaseID, "cart_id", cart.ID, "total", total.StringFixed(2))
	return SubmitPurchaseOutput{Receipt: receipt, CartID: cart.ID, Total: total}, nil
}
