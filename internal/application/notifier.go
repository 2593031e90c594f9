package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/notification"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/metrics"
)

var statusLabels = map[reservation.Status]string{
	reservation.StatusPending:   "保留中",
	reservation.StatusConfirmed: "確定",
	reservation.StatusCancelled: "キャンセル",
	reservation.StatusCompleted: "完了",
}

// Notifier は状態遷移に対応する通知レコードを記録する
// 記録の失敗はログに残すだけで、呼び出し元には返さない
type Notifier struct {
	sink    notification.Sink
	metrics *metrics.Metrics
	clock   Clock
}

// NewNotifier は新しい Notifier を作成する
func NewNotifier(sink notification.Sink, m *metrics.Metrics, clock Clock) *Notifier {
	if clock == nil {
		clock = time.Now
	}
	return &Notifier{sink: sink, metrics: m, clock: clock}
}

// Created は新規予約を不動産業者に通知する
func (n *Notifier) Created(ctx context.Context, r *reservation.Reservation, invoiceRef string) {
	if n == nil {
		return
	}
	content := fmt.Sprintf("%s さんから %s（%s〜%s）の新しい予約リクエストが届きました",
		displayName(r.GuestName, "ゲスト"), displayName(r.PropertyName, "物件"), ymd(r.CheckIn), ymd(r.CheckOut))
	n.record(ctx, notification.New(r.ClientID, r.RealtorID, r.ID, content, n.clock()).WithInvoice(invoiceRef))
}

// Transitioned は状態遷移を主体に応じて通知する
func (n *Notifier) Transitioned(ctx context.Context, r *reservation.Reservation, actor reservation.Actor, from, to reservation.Status) {
	if n == nil {
		return
	}
	now := n.clock()
	prop := displayName(r.PropertyName, "物件")
	label := statusLabels[to]

	switch actor.Role {
	case user.RoleSystem:
		n.record(ctx, notification.New(r.RealtorID, r.ClientID, r.ID,
			fmt.Sprintf("%s でのご滞在が完了しました。ご利用ありがとうございました", prop), now))
		n.record(ctx, notification.New(r.ClientID, r.RealtorID, r.ID,
			fmt.Sprintf("%s さんの %s での滞在が完了しました", displayName(r.GuestName, "ゲスト"), prop), now))
	case user.RoleAdmin:
		content := fmt.Sprintf("管理者が %s の予約を「%s」から「%s」に変更しました", prop, statusLabels[from], label)
		n.record(ctx, notification.New(actor.ID, r.ClientID, r.ID, content, now))
		n.record(ctx, notification.New(actor.ID, r.RealtorID, r.ID, content, now))
	case user.RoleRealtor:
		n.record(ctx, notification.New(r.RealtorID, r.ClientID, r.ID,
			fmt.Sprintf("%s の予約が「%s」になりました", prop, label), now))
	case user.RoleClient:
		n.record(ctx, notification.New(r.ClientID, r.RealtorID, r.ID,
			fmt.Sprintf("%s さんが %s（%s〜%s）の予約をキャンセルしました",
				displayName(r.GuestName, "ゲスト"), prop, ymd(r.CheckIn), ymd(r.CheckOut)), now))
	}
}

func (n *Notifier) record(ctx context.Context, rec *notification.Notification) {
	if n.sink == nil {
		return
	}
	if err := n.sink.Record(ctx, rec); err != nil {
		n.metrics.Notification("failed")
		logger.Warn("通知の記録に失敗",
			zap.String("reservation_id", rec.ReservationID),
			zap.String("receiver_id", rec.ReceiverID),
			zap.Error(err),
		)
		return
	}
	n.metrics.Notification("success")
}

func displayName(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func ymd(t time.Time) string {
	return t.Format("2006-01-02")
}
