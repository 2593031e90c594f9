package application

import (
	"context"
	"errors"
	"time"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/invoice"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
)

// Clock は現在時刻を返す
type Clock func() time.Time

// CalendarCache はカレンダー表示用のキャッシュ
type CalendarCache interface {
	Get(ctx context.Context, scope, key string) ([]byte, error)
	Set(ctx context.Context, scope, key string, data []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, scope string) error
}

// InvoiceEnqueuer は請求書の再生成を非同期に予約する
type InvoiceEnqueuer interface {
	EnqueueInvoice(ctx context.Context, reservationID string) error
}

// InvoiceGenerator は予約作成直後に呼ばれる請求書生成
type InvoiceGenerator interface {
	GenerateForReservation(ctx context.Context, r *reservation.Reservation) (*InvoiceResult, error)
}

// ServiceConfig はサービス層の動作設定
type ServiceConfig struct {
	StoreTimeout   time.Duration
	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
	SweepBatchSize int
}

// DefaultServiceConfig はデフォルト設定を返す
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		StoreTimeout:   5 * time.Second,
		LockTTL:        10 * time.Second,
		LockRetries:    20,
		LockRetryDelay: 50 * time.Millisecond,
		SweepBatchSize: 200,
	}
}

// ErrorKind はサービス層が返すエラーの種別を返す
func ErrorKind(err error) reservation.Kind {
	switch {
	case errors.Is(err, invoice.ErrInvalidFilename):
		return reservation.KindInvalidInput
	case errors.Is(err, invoice.ErrInvoiceNotFound):
		return reservation.KindNotFound
	}
	return reservation.KindOf(err)
}
