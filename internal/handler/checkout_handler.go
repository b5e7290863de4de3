package handler

import (
	"net/http"

	"pos/internal/domain/model"
	"pos/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// 確定（販売）・送信（仕入れ）のHTTP
type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

// DI
func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutRequest struct {
	UserID         int64           `json:"user_id" validate:"gt=0"`
	BranchID       int64           `json:"branch_id" validate:"gt=0"`
	PaymentMethod  string          `json:"payment_method" validate:"oneof=efectivo tarjeta transferencia"`
	AmountTendered decimal.Decimal `json:"amount_tendered" validate:"dgte0"`
}

type SubmitPurchaseRequest struct {
	UserID   int64 `json:"user_id" validate:"gt=0"`
	BranchID int64 `json:"branch_id" validate:"gt=0"`
}

func (h *CheckoutHandler) RegisterRoutes(sales *echo.Group, purchases *echo.Group) {
	sales.POST("/checkout", h.checkout)
	purchases.POST("/submit", h.submitPurchase)
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Checkout(c.Request().Context(), usecase.CheckoutInput{
		UserID:         req.UserID,
		BranchID:       req.BranchID,
		PaymentMethod:  model.PaymentMethod(req.PaymentMethod),
		AmountTendered: req.AmountTendered,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}

func (h *CheckoutHandler) submitPurchase(c echo.Context) error {
	var req SubmitPurchaseRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.SubmitPurchase(c.Request().Context(), usecase.SubmitPurchaseInput{
		UserID:   req.UserID,
		BranchID: req.BranchID,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, out)
}
