package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSenderRequired   = errors.New("送信者IDは必須です")
	ErrReceiverRequired = errors.New("受信者IDは必須です")
	ErrContentRequired  = errors.New("本文は必須です")
)

// Notification は予約の状態遷移に紐づく通知レコード
// 作成後に変更されるのは受信者による既読フラグのみ
type Notification struct {
	ID            string
	SenderID      string
	ReceiverID    string
	ReservationID string
	Content       string
	Read          bool
	HasInvoice    bool
	InvoiceRef    string
	CreatedAt     time.Time
}

// New は未読の通知を作成する
func New(senderID, receiverID, reservationID, content string, now time.Time) *Notification {
	return &Notification{
		ID:            uuid.NewString(),
		SenderID:      senderID,
		ReceiverID:    receiverID,
		ReservationID: reservationID,
		Content:       content,
		CreatedAt:     now,
	}
}

// WithInvoice は請求書への参照を付与する
func (n *Notification) WithInvoice(ref string) *Notification {
	if ref != "" {
		n.HasInvoice = true
		n.InvoiceRef = ref
	}
	return n
}

// Validate は通知の検証を行う
func (n *Notification) Validate() error {
	if n.SenderID == "" {
		return ErrSenderRequired
	}
	if n.ReceiverID == "" {
		return ErrReceiverRequired
	}
	if n.Content == "" {
		return ErrContentRequired
	}
	return nil
}

// Sink は通知の記録先
type Sink interface {
	Record(ctx context.Context, n *Notification) error
}
