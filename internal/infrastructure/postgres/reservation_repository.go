package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
)

const (
	pqExclusionViolation = "23P01"
	pqCheckViolation     = "23514"

	defaultListLimit = 50
	maxListLimit     = 200
)

const reservationColumns = `id, property_id, client_id, realtor_id,
	guest_name, guest_email, guest_phone, property_name, property_location, realtor_name, realtor_email,
	check_in, check_out, guests, total_amount, status, special_requests, created_at, updated_at`

type reservationRow struct {
	ID               string          `db:"id"`
	PropertyID       string          `db:"property_id"`
	ClientID         string          `db:"client_id"`
	RealtorID        string          `db:"realtor_id"`
	GuestName        string          `db:"guest_name"`
	GuestEmail       string          `db:"guest_email"`
	GuestPhone       string          `db:"guest_phone"`
	PropertyName     string          `db:"property_name"`
	PropertyLocation string          `db:"property_location"`
	RealtorName      string          `db:"realtor_name"`
	RealtorEmail     string          `db:"realtor_email"`
	CheckIn          time.Time       `db:"check_in"`
	CheckOut         time.Time       `db:"check_out"`
	Guests           int             `db:"guests"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	Status           string          `db:"status"`
	SpecialRequests  string          `db:"special_requests"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// ReservationRepository は PostgreSQL の予約リポジトリ
type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// LockProperty はトランザクション終了まで保持される物件単位のアドバイザリロックを取得する
func (r *ReservationRepository) LockProperty(ctx context.Context, tx transaction.Tx, propertyID string) error {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return err
	}
	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, propertyID); err != nil {
		return storageErr("物件ロック取得に失敗", err)
	}
	return nil
}

func (r *ReservationRepository) ListLiveByProperty(ctx context.Context, tx transaction.Tx, propertyID string) ([]*reservation.Reservation, error) {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return nil, err
	}
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE property_id = $1 AND status IN ('pending', 'confirmed') ORDER BY check_in`
	if err := sqlTx.SelectContext(ctx, &rows, query, propertyID); err != nil {
		return nil, storageErr("有効な予約の取得に失敗", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return err
	}
	query := `INSERT INTO reservations (` + reservationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err = sqlTx.ExecContext(ctx, query,
		res.ID, res.PropertyID, res.ClientID, res.RealtorID,
		res.GuestName, res.GuestEmail, res.GuestPhone, res.PropertyName, res.PropertyLocation, res.RealtorName, res.RealtorEmail,
		res.CheckIn, res.CheckOut, res.Guests, res.TotalAmount, string(res.Status), res.SpecialRequests, res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != nil {
			return mapped
		}
		return storageErr("予約作成に失敗", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, storageErr("予約取得に失敗", err)
	}
	return toEntity(&row), nil
}

func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return nil, err
	}
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`
	if err := sqlTx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, storageErr("予約取得に失敗", err)
	}
	return toEntity(&row), nil
}

func (r *ReservationRepository) List(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ClientID != "" {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.RealtorID != "" {
		add("realtor_id = $%d", filter.RealtorID)
	}
	if filter.PropertyID != "" {
		add("property_id = $%d", filter.PropertyID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("予約一覧取得に失敗", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) ListCalendar(ctx context.Context, q reservation.CalendarQuery) ([]*reservation.Reservation, error) {
	args := []any{q.End, q.Start}
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status IN ('pending', 'confirmed') AND check_in < $1 AND check_out > $2`
	if q.RealtorID != "" {
		args = append(args, q.RealtorID)
		query += fmt.Sprintf(` AND realtor_id = $%d`, len(args))
	}
	if q.PropertyID != "" {
		args = append(args, q.PropertyID)
		query += fmt.Sprintf(` AND property_id = $%d`, len(args))
	}
	query += ` ORDER BY check_in`

	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr("カレンダー用予約の取得に失敗", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) ListElapsedConfirmed(ctx context.Context, now time.Time, after reservation.ElapsedCursor, limit int) ([]*reservation.Reservation, error) {
	if limit <= 0 {
		limit = maxListLimit
	}
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'confirmed' AND check_out < $1 AND (check_out, id) > ($2, $3)
		ORDER BY check_out, id LIMIT $4`
	if err := r.db.SelectContext(ctx, &rows, query, now, after.CheckOut, after.ID, limit); err != nil {
		return nil, storageErr("滞在終了予約の取得に失敗", err)
	}
	return toEntities(rows), nil
}

// UpdateStatus は現在の状態が from の場合のみ更新する（compare-and-set）
func (r *ReservationRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, id string, from, to reservation.Status, updatedAt time.Time) error {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return err
	}
	result, err := sqlTx.ExecContext(ctx,
		`UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), updatedAt, id, string(from),
	)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != nil {
			return mapped
		}
		return storageErr("予約状態の更新に失敗", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("予約状態の更新に失敗", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := sqlTx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM reservations WHERE id = $1)`, id); err != nil {
		return storageErr("予約の存在確認に失敗", err)
	}
	if !exists {
		return reservation.ErrReservationNotFound
	}
	return reservation.ErrStatusChanged
}

func (r *ReservationRepository) UpdateDetails(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlTx, err := unwrap(tx)
	if err != nil {
		return err
	}
	result, err := sqlTx.ExecContext(ctx,
		`UPDATE reservations SET check_in = $1, check_out = $2, guests = $3, special_requests = $4, updated_at = $5 WHERE id = $6`,
		res.CheckIn, res.CheckOut, res.Guests, res.SpecialRequests, res.UpdatedAt, res.ID,
	)
	if err != nil {
		if mapped := mapConstraintError(err); mapped != nil {
			return mapped
		}
		return storageErr("予約更新に失敗", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("予約更新に失敗", err)
	}
	if rows == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (r *ReservationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return storageErr("予約削除に失敗", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("予約削除に失敗", err)
	}
	if rows == 0 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

// mapConstraintError は制約違反をドメインエラーに変換する。該当しない場合は nil
func mapConstraintError(err error) error {
	var pgErr *pq.Error
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case pqExclusionViolation:
		return fmt.Errorf("%w: %s", reservation.ErrConflict, pgErr.Constraint)
	case pqCheckViolation:
		if pgErr.Constraint == "reservations_dates_check" {
			return reservation.ErrInvalidDateRange
		}
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func toEntities(rows []reservationRow) []*reservation.Reservation {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = toEntity(&rows[i])
	}
	return result
}

func toEntity(row *reservationRow) *reservation.Reservation {
	return &reservation.Reservation{
		ID: row.ID, PropertyID: row.PropertyID, ClientID: row.ClientID, RealtorID: row.RealtorID,
		GuestName: row.GuestName, GuestEmail: row.GuestEmail, GuestPhone: row.GuestPhone,
		PropertyName: row.PropertyName, PropertyLocation: row.PropertyLocation,
		RealtorName: row.RealtorName, RealtorEmail: row.RealtorEmail,
		CheckIn: reservation.NormalizeDate(row.CheckIn), CheckOut: reservation.NormalizeDate(row.CheckOut),
		Guests: row.Guests, TotalAmount: row.TotalAmount, Status: reservation.Status(row.Status),
		SpecialRequests: row.SpecialRequests, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
}

var _ reservation.Repository = (*ReservationRepository)(nil)
