package handler

import (
	"net/http"
	"strconv"

	"pos/internal/domain/model"
	"pos/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// カートストア1つ分のHTTP（/sales, /purchases で使い回す）
type CartHandler struct {
	store *usecase.CartStore
}

// DI
func NewCartHandler(store *usecase.CartStore) *CartHandler {
	return &CartHandler{store: store}
}

type CreateCartRequest struct {
	Name       string `json:"name"`
	SupplierID *int64 `json:"supplier_id" validate:"omitempty,gt=0"`
}

type CreateCartResponse struct {
	ID string `json:"id"`
}

type SetActiveCartRequest struct {
	ID string `json:"id" validate:"required"`
}

type RenameCartRequest struct {
	Name string `json:"name" validate:"notblank"`
}

// quantity省略（0）は1として扱う
type AddItemRequest struct {
	Product  model.ProductRef `json:"product"`
	Quantity int              `json:"quantity" validate:"gte=0"`
}

// 指定した項目だけ変える（"price": null は上書き価格を消す）
type UpdateItemRequest struct {
	Quantity  *int          `json:"quantity"`
	Price     OptionalPrice `json:"price"`
	Wholesale *bool         `json:"wholesale"`
}

// キーが無いのか null なのかを区別する
type OptionalPrice struct {
	Set   bool
	Value decimal.NullDecimal
}

func (p *OptionalPrice) UnmarshalJSON(b []byte) error {
	p.Set = true
	return p.Value.UnmarshalJSON(b)
}

type CartsResponse struct {
	Carts        []model.Cart `json:"carts"`
	ActiveCartID *string      `json:"active_cart_id"`
}

type ActiveCartResponse struct {
	Cart       *model.Cart     `json:"cart"`
	TotalItems int             `json:"total_items"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// g は /sales などのグループ
func (h *CartHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/carts", h.listCarts)
	g.POST("/carts", h.createCart)
	g.PUT("/carts/active", h.setActiveCart)
	g.PATCH("/carts/:id", h.renameCart)
	g.DELETE("/carts/:id", h.deleteCart)

	g.GET("/cart", h.getActiveCart)
	g.POST("/cart/items", h.addItem)
	g.DELETE("/cart/items", h.clearCart)
	g.PATCH("/cart/items/:unit_id", h.updateItem)
	g.DELETE("/cart/items/:unit_id", h.removeItem)
	g.POST("/cart/items/:unit_id/increment", h.incrementItem)
	g.POST("/cart/items/:unit_id/decrement", h.decrementItem)
}

func (h *CartHandler) listCarts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cartsResponse())
}

func (h *CartHandler) createCart(c echo.Context) error {
	var req CreateCartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	id := h.store.CreateCart(usecase.CreateCartInput{
		Name:       req.Name,
		SupplierID: req.SupplierID,
	})
	return c.JSON(http.StatusCreated, CreateCartResponse{ID: id})
}

// 無いIDは何もしない（200で今の状態を返す）
func (h *CartHandler) setActiveCart(c echo.Context) error {
	var req SetActiveCartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	h.store.SetActiveCart(req.ID)
	return c.JSON(http.StatusOK, h.cartsResponse())
}

func (h *CartHandler) renameCart(c echo.Context) error {
	var req RenameCartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	h.store.RenameCart(c.Param("id"), req.Name)
	return c.JSON(http.StatusOK, h.cartsResponse())
}

func (h *CartHandler) deleteCart(c echo.Context) error {
	h.store.DeleteCart(c.Param("id"))
	return c.JSON(http.StatusOK, h.cartsResponse())
}

func (h *CartHandler) getActiveCart(c echo.Context) error {
	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) addItem(c echo.Context) error {
	var req AddItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}

	h.store.AddProduct(req.Product, qty)
	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) clearCart(c echo.Context) error {
	h.store.ClearCart()
	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) updateItem(c echo.Context) error {
	unitID, err := parseUnitID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req UpdateItemRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	u := usecase.ItemUpdate{
		Quantity:  req.Quantity,
		Wholesale: req.Wholesale,
	}
	if req.Price.Set {
		u.Price = &req.Price.Value
	}
	h.store.UpdateItem(unitID, u)

	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) removeItem(c echo.Context) error {
	unitID, err := parseUnitID(c)
	if err != nil {
		return writeError(c, err)
	}

	h.store.RemoveProduct(unitID)
	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) incrementItem(c echo.Context) error {
	unitID, err := parseUnitID(c)
	if err != nil {
		return writeError(c, err)
	}

	h.store.IncrementQuantity(unitID)
	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) decrementItem(c echo.Context) error {
	unitID, err := parseUnitID(c)
	if err != nil {
		return writeError(c, err)
	}

	h.store.DecrementQuantity(unitID)
	return c.JSON(http.StatusOK, h.activeCartResponse())
}

func (h *CartHandler) cartsResponse() CartsResponse {
	out := CartsResponse{Carts: h.store.Carts()}
	if id := h.store.ActiveCartID(); id != "" {
		out.ActiveCartID = &id
	}
	return out
}

func (h *CartHandler) activeCartResponse() ActiveCartResponse {
	out := ActiveCartResponse{
		TotalItems: h.store.TotalItems(),
		TotalCost:  h.store.TotalCost(),
		TotalPrice: h.store.TotalPrice(),
	}
	if cart, ok := h.store.ActiveCart(); ok {
		out.Cart = &cart
	}
	return out
}

func parseUnitID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("unit_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
