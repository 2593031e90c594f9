package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/api/handler"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/middleware"
	"github.com/Uvaancovie/nova-prop-backend/internal/api/router"
	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/config"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/invoice"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/notification"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/memory"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/pdf"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/postgres"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/queue"
	redisinfra "github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/redis"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/storage"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrUnknownDriver = errors.New("不明なストアドライバーです")

// App は設定から組み立てたサービス群
type App struct {
	Config       *config.Config
	Metrics      *metrics.Metrics
	DB           *sqlx.DB
	Redis        *redis.Client
	Reservations *application.ReservationService
	Invoices     *application.InvoiceService
	Calendar     *application.CalendarService

	gatherer prometheus.Gatherer
	closers  []func() error
}

type options struct {
	registry     *prometheus.Registry
	clock        application.Clock
	properties   []*property.Property
	users        []*user.User
	invoiceStore invoice.Store
	renderer     invoice.Renderer
}

// Option は App の組み立てを変更する
type Option func(*options)

// WithRegistry はメトリクスの登録先を指定する。未指定時はデフォルトレジストリ
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

func WithClock(c application.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSeed は memory ドライバーの物件とユーザーを登録する
func WithSeed(props []*property.Property, users []*user.User) Option {
	return func(o *options) {
		o.properties = append(o.properties, props...)
		o.users = append(o.users, users...)
	}
}

func WithInvoiceStore(s invoice.Store) Option {
	return func(o *options) { o.invoiceStore = s }
}

func WithInvoiceRenderer(r invoice.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

type stores struct {
	txManager     transaction.Manager
	reservations  reservation.Repository
	properties    property.Lookup
	users         user.Lookup
	notifications notification.Sink
}

// New は設定に従ってストア、Redis、請求書処理、サービスを組み立てる
// Redis に接続できない場合は分散ロックとキャッシュなしで続行する
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg}
	if o.registry != nil {
		a.Metrics = metrics.NewWithRegistry(o.registry)
		a.gatherer = o.registry
	} else {
		a.Metrics = metrics.Init()
		a.gatherer = prometheus.DefaultGatherer
	}

	st, err := a.openStores(cfg, o)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.connectRedis(ctx, cfg)

	renderer := o.renderer
	if renderer == nil {
		if renderer, err = newRenderer(cfg.Invoice); err != nil {
			a.Close()
			return nil, err
		}
	}
	blobs := o.invoiceStore
	if blobs == nil {
		local, err := storage.NewLocalStore(cfg.Invoice.Dir)
		if err != nil {
			a.Close()
			return nil, err
		}
		blobs = local
	}

	a.Invoices = application.NewInvoiceService(
		st.reservations, st.properties, st.users, renderer, blobs,
		a.Metrics, o.clock, cfg.Invoice.PDFTimeout,
	)

	svcOpts := []application.ReservationOption{
		application.WithInvoiceGenerator(a.Invoices),
		application.WithMetrics(a.Metrics),
		application.WithClock(o.clock),
		application.WithServiceConfig(serviceConfig(cfg)),
	}
	var calendarCache application.CalendarCache
	if a.Redis != nil {
		cache := redisinfra.NewCalendarCache(a.Redis)
		calendarCache = cache
		svcOpts = append(svcOpts,
			application.WithLockManager(redisinfra.NewLockManager(a.Redis)),
			application.WithCalendarCache(cache),
		)
		if cfg.Invoice.RetryEnabled {
			client := asynq.NewClient(queue.RedisOpt(&cfg.Redis))
			a.closers = append(a.closers, client.Close)
			svcOpts = append(svcOpts, application.WithInvoiceQueue(queue.NewInvoiceQueue(client)))
		}
	}

	notifier := application.NewNotifier(st.notifications, a.Metrics, o.clock)
	a.Reservations = application.NewReservationService(
		st.txManager, st.reservations, st.properties, st.users, notifier, svcOpts...,
	)
	a.Calendar = application.NewCalendarService(
		st.reservations, calendarCache, cfg.Calendar.CacheTTL, cfg.Store.Timeout, o.clock,
	)

	logger.Info("アプリケーションを初期化",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", a.Redis != nil),
		zap.Bool("invoice_retry", a.InvoiceRetryEnabled()),
	)
	return a, nil
}

func (a *App) openStores(cfg *config.Config, o *options) (*stores, error) {
	switch cfg.Store.Driver {
	case DriverPostgres, "":
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
				return nil, err
			}
			logger.Info("マイグレーションを適用", zap.String("path", cfg.Database.MigrationsPath))
		}
		return &stores{
			txManager:     postgres.NewTxManager(db),
			reservations:  postgres.NewReservationRepository(db),
			properties:    postgres.NewPropertyRepository(db),
			users:         postgres.NewUserRepository(db),
			notifications: postgres.NewNotificationRepository(db),
		}, nil
	case DriverMemory:
		return &stores{
			txManager:     memory.NewTxManager(),
			reservations:  memory.NewReservationStore(),
			properties:    memory.NewPropertyStore(o.properties...),
			users:         memory.NewUserStore(o.users...),
			notifications: memory.NewNotificationSink(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Store.Driver)
}

func (a *App) connectRedis(ctx context.Context, cfg *config.Config) {
	if !cfg.Redis.Enabled {
		return
	}
	client, err := redisinfra.NewClient(redisinfra.FromAppConfig(&cfg.Redis))
	if err != nil {
		logger.Warn("Redis に接続できないため分散ロックとキャッシュを無効化", zap.Error(err))
		return
	}
	if err := redisinfra.Ping(ctx, client); err != nil {
		logger.Warn("Redis の疎通確認に失敗", zap.Error(err))
		_ = client.Close()
		return
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)
}

func newRenderer(cfg config.InvoiceConfig) (invoice.Renderer, error) {
	html, err := invoice.NewHTMLRenderer(cfg.Brand, cfg.Currency)
	if err != nil {
		return nil, err
	}
	if !cfg.PDFEnabled {
		return html, nil
	}
	return invoice.NewPDFRenderer(html, pdf.NewChromeConverter(cfg.PDFTimeout, cfg.ChromePath)), nil
}

func serviceConfig(cfg *config.Config) application.ServiceConfig {
	sc := application.DefaultServiceConfig()
	sc.StoreTimeout = cfg.Store.Timeout
	sc.LockTTL = cfg.Lock.TTL
	sc.LockRetries = cfg.Lock.Retries
	sc.LockRetryDelay = cfg.Lock.RetryDelay
	return sc
}

// InvoiceRetryEnabled は請求書再生成キューが使えるかを返す
func (a *App) InvoiceRetryEnabled() bool {
	return a.Redis != nil && a.Config.Invoice.RetryEnabled
}

// HealthChecks は依存先の疎通確認を返す
func (a *App) HealthChecks() []handler.HealthCheck {
	var checks []handler.HealthCheck
	if a.DB != nil {
		checks = append(checks, handler.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
			return postgres.Ping(ctx, a.DB)
		}})
	}
	if a.Redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisinfra.Ping(ctx, a.Redis)
		}})
	}
	return checks
}

// Router は HTTP ルーターを返す
func (a *App) Router() *echo.Echo {
	var metricsHandler http.Handler = promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})
	return router.New(router.Handlers{
		Reservation: handler.NewReservationHandler(a.Reservations, a.Calendar),
		Invoice:     handler.NewInvoiceHandler(a.Invoices),
		Health:      handler.NewHealthHandler(a.HealthChecks()...),
	}, router.Options{
		JWTSecret:      a.Config.Auth.JWTSecret,
		Metrics:        a.Metrics,
		MetricsHandler: metricsHandler,
		MetricsAuth:    middleware.LoadMetricsConfig(),
	})
}

// Close は開いた接続を逆順に閉じる
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
