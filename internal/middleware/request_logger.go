package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// リクエストの記録先
type RequestObserver interface {
	ObserveRequest(route string, status int, latencyMS float64)
}

// アクセスログ（zap）とメトリクス
func RequestLogger(log *zap.SugaredLogger, obs RequestObserver) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if obs != nil {
				obs.ObserveRequest(route, v.Status, float64(v.Latency)/float64(time.Millisecond))
			}

			kv := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			switch {
			case v.Error != nil:
				log.Errorw("request", append(kv, "error", v.Error)...)
			case v.Status >= http.StatusInternalServerError:
				log.Errorw("request", kv...)
			default:
				log.Debugw("request", kv...)
			}
			return nil
		},
	})
}
