package reservation

import (
	"context"
	"time"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
)

// ListFilter は予約一覧の絞り込み条件
type ListFilter struct {
	ClientID   string
	RealtorID  string
	PropertyID string
	Statuses   []Status
	Limit      int
	Offset     int
}

// CalendarQuery はカレンダー表示用の検索条件。期間は [Start, End)
type CalendarQuery struct {
	RealtorID  string
	PropertyID string
	Start      time.Time
	End        time.Time
}

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// LockProperty は物件単位の排他区間に入る。トランザクション終了まで保持される
	LockProperty(ctx context.Context, tx transaction.Tx, propertyID string) error

	// ListLiveByProperty は物件の有効な予約を取得する（トランザクション必須）
	ListLiveByProperty(ctx context.Context, tx transaction.Tx, propertyID string) ([]*Reservation, error)

	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// GetByIDForUpdate は行ロックを取得して予約を取得する（トランザクション必須）
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Reservation, error)

	// List は条件に合う予約を新しい順に取得する
	List(ctx context.Context, filter ListFilter) ([]*Reservation, error)

	// ListCalendar は期間と重なる有効な予約を取得する
	ListCalendar(ctx context.Context, query CalendarQuery) ([]*Reservation, error)

	// ListElapsedConfirmed は now より前にチェックアウトした確定済み予約を
	// (チェックアウト日, ID) 順に after より後ろから取得する
	ListElapsedConfirmed(ctx context.Context, now time.Time, after ElapsedCursor, limit int) ([]*Reservation, error)

	// UpdateStatus は現在の状態が from の場合のみ to に更新する（トランザクション必須）
	// 状態が変わっていた場合は ErrStatusChanged
	UpdateStatus(ctx context.Context, tx transaction.Tx, id string, from, to Status, updatedAt time.Time) error

	// UpdateDetails は状態以外の項目を更新する（トランザクション必須）
	UpdateDetails(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	// Delete は予約を物理削除する
	Delete(ctx context.Context, id string) error
}

// ElapsedCursor は完了処理のページ位置。ゼロ値は先頭
type ElapsedCursor struct {
	CheckOut time.Time
	ID       string
}

// CursorOf は r の位置を指すカーソルを返す
func CursorOf(r *Reservation) ElapsedCursor {
	return ElapsedCursor{CheckOut: r.CheckOut, ID: r.ID}
}

// Precedes はカーソルが r より前にあるかを返す
func (c ElapsedCursor) Precedes(r *Reservation) bool {
	if r.CheckOut.Equal(c.CheckOut) {
		return c.ID < r.ID
	}
	return c.CheckOut.Before(r.CheckOut)
}
