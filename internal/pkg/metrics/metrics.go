package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約作成の総数（status: success, conflict, storage_failure, unauthorized, rejected）
	ReservationsTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/contended/failed）
	DistributedLockDuration *prometheus.HistogramVec

	// 状態遷移の総数（from, to, role）
	ReservationTransitionsTotal *prometheus.CounterVec

	// 完了処理の実行回数（status: success, error）
	SweepRunsTotal *prometheus.CounterVec

	// 完了処理で completed にした予約数
	SweepCompletedTotal prometheus.Counter

	// 完了処理の所要時間
	SweepDuration prometheus.Histogram

	// 請求書生成の総数（status: success, exists, missing_reference, failed）
	InvoicesTotal *prometheus.CounterVec

	// 通知記録の総数（status: success, error）
	NotificationsTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservations_total",
				Help: "Total number of reservation attempts",
			},
			[]string{"status"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
		ReservationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_transitions_total",
				Help: "Total number of reservation status transitions",
			},
			[]string{"from", "to", "role"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_sweep_runs_total",
				Help: "Total number of completion sweep runs",
			},
			[]string{"status"},
		),
		SweepCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reservation_sweep_completed_total",
				Help: "Total number of reservations completed by the sweeper",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reservation_sweep_duration_seconds",
				Help:    "Duration of completion sweep runs",
				Buckets: prometheus.DefBuckets,
			},
		),
		InvoicesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoices_generated_total",
				Help: "Total number of invoice generation attempts",
			},
			[]string{"status"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_recorded_total",
				Help: "Total number of notification records",
			},
			[]string{"status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.DistributedLockDuration,
		m.ReservationTransitionsTotal,
		m.SweepRunsTotal,
		m.SweepCompletedTotal,
		m.SweepDuration,
		m.InvoicesTotal,
		m.NotificationsTotal,
	)

	return m
}

// 以下のヘルパーは m が nil でも呼び出せる

// ReservationAttempt は予約作成の結果を記録する
func (m *Metrics) ReservationAttempt(status string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(status).Inc()
}

// LockObserved は分散ロックの操作時間を記録する
func (m *Metrics) LockObserved(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}

// Transition は状態遷移を記録する
func (m *Metrics) Transition(from, to, role string) {
	if m == nil {
		return
	}
	m.ReservationTransitionsTotal.WithLabelValues(from, to, role).Inc()
}

// Sweep は完了処理の結果を記録する
func (m *Metrics) Sweep(completed int, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	m.SweepCompletedTotal.Add(float64(completed))
	m.SweepDuration.Observe(d.Seconds())
}

// Invoice は請求書生成の結果を記録する
func (m *Metrics) Invoice(status string) {
	if m == nil {
		return
	}
	m.InvoicesTotal.WithLabelValues(status).Inc()
}

// Notification は通知記録の結果を記録する
func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
