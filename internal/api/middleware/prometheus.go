package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

// PrometheusMiddleware はHTTPメトリクスを収集するミドルウェア
func PrometheusMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				// エラーレスポンスを確定させてからステータスを記録する
				c.Error(err)
			}

			duration := time.Since(start).Seconds()
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			method := c.Request().Method
			statusCode := strconv.Itoa(c.Response().Status)

			if m != nil {
				m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
				m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
			}
			return nil
		}
	}
}
