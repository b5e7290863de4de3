package server

import (
	"net/http"

	"pos/internal/metrics"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, m *metrics.Metrics, h Handlers) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	sales := e.Group("/sales")
	purchases := e.Group("/purchases")

	h.SalesCart.RegisterRoutes(sales)
	h.PurchaseCart.RegisterRoutes(purchases)
	h.Checkout.RegisterRoutes(sales, purchases)
}
