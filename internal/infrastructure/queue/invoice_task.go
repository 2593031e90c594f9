package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Uvaancovie/nova-prop-backend/internal/config"
)

// TypeInvoiceGenerate は請求書再生成タスクの種別
const TypeInvoiceGenerate = "invoice:generate"

const (
	defaultMaxRetry = 5
	defaultTimeout  = 2 * time.Minute
)

// InvoicePayload は請求書再生成タスクのペイロード
type InvoicePayload struct {
	ReservationID string `json:"reservation_id"`
}

// NewInvoiceTask は請求書再生成タスクを作成する
func NewInvoiceTask(reservationID string) (*asynq.Task, error) {
	if reservationID == "" {
		return nil, errors.New("予約IDは必須です")
	}
	payload, err := json.Marshal(InvoicePayload{ReservationID: reservationID})
	if err != nil {
		return nil, fmt.Errorf("ペイロードの生成に失敗: %w", err)
	}
	return asynq.NewTask(TypeInvoiceGenerate, payload), nil
}

// ParseInvoicePayload はタスクからペイロードを取り出す
func ParseInvoicePayload(t *asynq.Task) (InvoicePayload, error) {
	var p InvoicePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("ペイロードの解析に失敗: %w", err)
	}
	if p.ReservationID == "" {
		return p, errors.New("予約IDがありません")
	}
	return p, nil
}

// TaskID は予約ごとに一意なタスクIDを返す。同じ予約の再投入は重複として扱われる
func TaskID(reservationID string) string {
	return "invoice:" + reservationID
}

// RedisOpt はアプリケーション設定から asynq の接続設定を作成する
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// InvoiceQueue は請求書再生成タスクを投入する
type InvoiceQueue struct {
	client   taskEnqueuer
	maxRetry int
	timeout  time.Duration
}

// NewInvoiceQueue は新しい InvoiceQueue を作成する
func NewInvoiceQueue(client *asynq.Client) *InvoiceQueue {
	return newInvoiceQueue(client)
}

func newInvoiceQueue(client taskEnqueuer) *InvoiceQueue {
	return &InvoiceQueue{client: client, maxRetry: defaultMaxRetry, timeout: defaultTimeout}
}

// EnqueueInvoice は請求書の再生成を予約する。既に投入済みの場合は何もしない
func (q *InvoiceQueue) EnqueueInvoice(ctx context.Context, reservationID string) error {
	task, err := NewInvoiceTask(reservationID)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(TaskID(reservationID)),
		asynq.MaxRetry(q.maxRetry),
		asynq.Timeout(q.timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("請求書タスクの投入に失敗: %w", err)
	}
	return nil
}
