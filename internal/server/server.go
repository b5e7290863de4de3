package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pos/internal/handler"
	"pos/internal/metrics"
	"pos/internal/middleware"
	"pos/internal/validator"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	SalesCart    *handler.CartHandler
	PurchaseCart *handler.CartHandler
	Checkout     *handler.CheckoutHandler
}

// echoを組み立てる（ルート登録まで）
func New(log *zap.SugaredLogger, m *metrics.Metrics, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validator.New()

	// nilの*metrics.Metricsをそのまま渡すとnilでないinterfaceになる
	var obs middleware.RequestObserver
	if m != nil {
		obs = m
	}

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log, obs))

	RegisterRoutes(e, m, h)
	return e
}

// ctxが終わるまで待ち受けて、終わったら止める
func Start(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
