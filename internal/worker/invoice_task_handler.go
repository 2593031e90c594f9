package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/application"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/queue"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
)

// InvoiceRegenerator は予約IDから請求書を再生成するインターフェース
type InvoiceRegenerator interface {
	GenerateByID(ctx context.Context, reservationID string) (*application.InvoiceResult, error)
}

// InvoiceTaskHandler は請求書再生成タスクを処理する
type InvoiceTaskHandler struct {
	invoices InvoiceRegenerator
}

// NewInvoiceTaskHandler は新しいハンドラーを作成
func NewInvoiceTaskHandler(invoices InvoiceRegenerator) *InvoiceTaskHandler {
	return &InvoiceTaskHandler{invoices: invoices}
}

// ProcessTask は asynq.Handler の実装
// 再試行しても結果が変わらないエラーは asynq.SkipRetry で包んで返す
func (h *InvoiceTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseInvoicePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	result, err := h.invoices.GenerateByID(ctx, payload.ReservationID)
	if err != nil {
		if !reservation.IsRetryable(err) {
			logger.Warn("請求書の再生成を中止",
				zap.String("reservation_id", payload.ReservationID),
				zap.String("kind", string(application.ErrorKind(err))),
				zap.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("請求書の再生成に失敗: %w", err)
	}

	logger.Info("請求書を再生成",
		zap.String("reservation_id", payload.ReservationID),
		zap.String("filename", result.Filename),
	)
	return nil
}

// Register はタスク種別とハンドラーを mux に登録する
func (h *InvoiceTaskHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(queue.TypeInvoiceGenerate, h)
}

var _ asynq.Handler = (*InvoiceTaskHandler)(nil)
