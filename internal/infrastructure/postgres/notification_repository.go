package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/notification"
)

type notificationRow struct {
	ID            string         `db:"id"`
	SenderID      string         `db:"sender_id"`
	ReceiverID    string         `db:"receiver_id"`
	ReservationID sql.NullString `db:"reservation_id"`
	Content       string         `db:"content"`
	Read          bool           `db:"is_read"`
	HasInvoice    bool           `db:"has_invoice"`
	InvoiceRef    sql.NullString `db:"invoice_ref"`
	CreatedAt     time.Time      `db:"created_at"`
}

// NotificationRepository は通知レコードを保存する
type NotificationRepository struct{ db *sqlx.DB }

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Record は通知を1件保存する
func (r *NotificationRepository) Record(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, sender_id, receiver_id, reservation_id, content, is_read, has_invoice, invoice_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.SenderID, n.ReceiverID, nullString(n.ReservationID), n.Content, n.Read, n.HasInvoice, nullString(n.InvoiceRef), n.CreatedAt,
	)
	if err != nil {
		return storageErr("通知の保存に失敗", err)
	}
	return nil
}

// ListByReceiver は受信者宛ての通知を新しい順に取得する
func (r *NotificationRepository) ListByReceiver(ctx context.Context, receiverID string, limit int) ([]*notification.Notification, error) {
	limit, _ = normalizePage(limit, 0)
	var rows []notificationRow
	query := `SELECT id, sender_id, receiver_id, reservation_id, content, is_read, has_invoice, invoice_ref, created_at
		FROM notifications WHERE receiver_id = $1 ORDER BY created_at DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, receiverID, limit); err != nil {
		return nil, storageErr("通知一覧の取得に失敗", err)
	}
	result := make([]*notification.Notification, len(rows))
	for i, row := range rows {
		result[i] = &notification.Notification{
			ID: row.ID, SenderID: row.SenderID, ReceiverID: row.ReceiverID, ReservationID: row.ReservationID.String,
			Content: row.Content, Read: row.Read, HasInvoice: row.HasInvoice, InvoiceRef: row.InvoiceRef.String,
			CreatedAt: row.CreatedAt,
		}
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ notification.Sink = (*NotificationRepository)(nil)
