package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Uvaancovie/nova-prop-backend/internal/api"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/handler"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/middleware"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

// Handlers はルーティング対象のハンドラー
type Handlers struct {
	Reservation *handler.ReservationHandler
	Invoice     *handler.InvoiceHandler
	Health      *handler.HealthHandler
}

// Options はルーターの任意設定
type Options struct {
	// JWTSecret が空の場合は X-User-ID / X-User-Role ヘッダーから主体を解決する
	JWTSecret string
	Metrics   *metrics.Metrics
	// MetricsHandler が nil の場合 /metrics は公開しない
	MetricsHandler http.Handler
	MetricsAuth    *middleware.MetricsConfig
}

// New は共通ミドルウェアとルートを設定した Echo を返す
func New(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e)
	if opts.Metrics != nil {
		e.Use(middleware.PrometheusMiddleware(opts.Metrics))
	}

	if h.Health != nil {
		e.GET("/health", h.Health.Check)
	}
	if opts.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(opts.MetricsHandler), middleware.MetricsBasicAuth(opts.MetricsAuth))
	}

	v1 := e.Group("/api/v1", middleware.ActorAuth(opts.JWTSecret))
	if h.Health != nil {
		v1.GET("/health", h.Health.Check)
	}
	if r := h.Reservation; r != nil {
		g := v1.Group("/reservations", middleware.RequireActor())
		g.POST("", r.Create)
		g.GET("", r.List)
		g.GET("/calendar", r.Calendar)
		g.GET("/:id", r.GetByID)
		g.PUT("/:id", r.Update)
		g.DELETE("/:id", r.Delete)
	}
	if inv := h.Invoice; inv != nil {
		g := v1.Group("/invoices", middleware.RequireActor())
		g.POST("/generate/:id", inv.Generate)
		g.GET("/download/:filename", inv.Download)
	}
	return e
}
