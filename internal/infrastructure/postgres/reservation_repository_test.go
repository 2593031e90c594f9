package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
)

var reservationColumnNames = []string{
	"id", "property_id", "client_id", "realtor_id",
	"guest_name", "guest_email", "guest_phone", "property_name", "property_location", "realtor_name", "realtor_email",
	"check_in", "check_out", "guests", "total_amount", "status", "special_requests", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func beginMockTx(t *testing.T, db *sqlx.DB, mock sqlmock.Sqlmock) transaction.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := NewTxManager(db).Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func addReservationRow(rows *sqlmock.Rows, id, status string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "prop-1", "client-1", "realtor-1",
		"Jane Guest", "jane@example.com", "", "Seaside Villa", "1 Beach Rd, Cape Town", "Rob Realtor", "rob@example.com",
		date("2024-03-01"), date("2024-03-05"), 2, "1000.00", status, "", now, now)
}

func TestReservationRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("取得成功", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM reservations WHERE id = \$1`).
			WithArgs("res-1").
			WillReturnRows(addReservationRow(sqlmock.NewRows(reservationColumnNames), "res-1", "pending"))

		res, err := repo.GetByID(ctx, "res-1")
		require.NoError(t, err)
		assert.Equal(t, "res-1", res.ID)
		assert.Equal(t, reservation.StatusPending, res.Status)
		assert.Equal(t, "1000", res.TotalAmount.String())
		assert.Equal(t, 4, res.Nights())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("存在しない場合はNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM reservations WHERE id = \$1`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(reservationColumnNames))

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
	})

	t.Run("ドライバーエラーはStorageFailure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM reservations`).WillReturnError(errors.New("connection reset"))

		_, err := repo.GetByID(ctx, "res-1")
		assert.ErrorIs(t, err, reservation.ErrStorageFailure)
		assert.Equal(t, reservation.KindStorageFailure, reservation.KindOf(err))
	})
}

func TestReservationRepository_LockAndCreate(t *testing.T) {
	ctx := context.Background()
	res := &reservation.Reservation{
		ID: "res-1", PropertyID: "prop-1", ClientID: "client-1", RealtorID: "realtor-1",
		CheckIn: date("2024-03-01"), CheckOut: date("2024-03-05"), Guests: 2,
		Status: reservation.StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}

	t.Run("アドバイザリロック取得後に挿入", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		tx := beginMockTx(t, db, mock)

		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
			WithArgs("prop-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM reservations WHERE property_id = \$1 AND status IN`).
			WithArgs("prop-1").
			WillReturnRows(sqlmock.NewRows(reservationColumnNames))
		mock.ExpectExec(`INSERT INTO reservations`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.LockProperty(ctx, tx, "prop-1"))
		live, err := repo.ListLiveByProperty(ctx, tx, "prop-1")
		require.NoError(t, err)
		assert.Empty(t, live)
		require.NoError(t, repo.Create(ctx, tx, res))
		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("排他制約違反はConflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		tx := beginMockTx(t, db, mock)

		mock.ExpectExec(`INSERT INTO reservations`).
			WillReturnError(&pq.Error{Code: pqExclusionViolation, Constraint: "reservations_no_overlap"})
		mock.ExpectRollback()

		err := repo.Create(ctx, tx, res)
		assert.ErrorIs(t, err, reservation.ErrConflict)
		assert.NotErrorIs(t, err, reservation.ErrStorageFailure)
		require.NoError(t, tx.Rollback())
	})

	t.Run("日付CHECK違反はInvalidDateRange", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		tx := beginMockTx(t, db, mock)

		mock.ExpectExec(`INSERT INTO reservations`).
			WillReturnError(&pq.Error{Code: pqCheckViolation, Constraint: "reservations_dates_check"})

		err := repo.Create(ctx, tx, res)
		assert.ErrorIs(t, err, reservation.ErrInvalidDateRange)
	})

	t.Run("PostgreSQL以外のトランザクションは拒否", func(t *testing.T) {
		db, _ := newMockDB(t)
		repo := NewReservationRepository(db)

		err := repo.Create(ctx, fakeTx{}, res)
		assert.ErrorIs(t, err, errInvalidTx)
	})
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func TestReservationRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	updatedAt := time.Now()
	const updateSQL = `UPDATE reservations SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status = \$4`

	t.Run("現在の状態が一致すれば更新", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		tx := beginMockTx(t, db, mock)

		mock.ExpectExec(updateSQL).
			WithArgs("confirmed", updatedAt, "res-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateStatus(ctx, tx, "res-1", reservation.StatusPending, reservation.StatusConfirmed, updatedAt)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("状態が変わっていればStatusChanged", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		tx := beginMockTx(t, db, mock)

		mock.ExpectExec(updateSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("res-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := repo.UpdateStatus(ctx, tx, "res-1", reservation.StatusConfirmed, reservation.StatusCompleted, updatedAt)
		assert.ErrorIs(t, err, reservation.ErrStatusChanged)
	})

	t.Run("行がなければNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		tx := beginMockTx(t, db, mock)

		mock.ExpectExec(updateSQL).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := repo.UpdateStatus(ctx, tx, "res-1", reservation.StatusConfirmed, reservation.StatusCompleted, updatedAt)
		assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
	})
}

func TestReservationRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("条件を組み立てる", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)

		rows := sqlmock.NewRows(reservationColumnNames)
		addReservationRow(rows, "res-1", "pending")
		addReservationRow(rows, "res-2", "confirmed")
		mock.ExpectQuery(`SELECT (.+) FROM reservations WHERE realtor_id = \$1 AND status = ANY\(\$2\) ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
			WithArgs("realtor-1", sqlmock.AnyArg(), defaultListLimit, 0).
			WillReturnRows(rows)

		list, err := repo.List(ctx, reservation.ListFilter{
			RealtorID: "realtor-1",
			Statuses:  reservation.LiveStatuses(),
		})
		require.NoError(t, err)
		assert.Len(t, list, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("上限を超えるlimitは丸める", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM reservations ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
			WithArgs(maxListLimit, 10).
			WillReturnRows(sqlmock.NewRows(reservationColumnNames))

		_, err := repo.List(ctx, reservation.ListFilter{Limit: 1000, Offset: 10})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReservationRepository_ListCalendar(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReservationRepository(db)
	start, end := date("2024-03-01"), date("2024-04-01")

	mock.ExpectQuery(`check_in < \$1 AND check_out > \$2 AND realtor_id = \$3 ORDER BY check_in`).
		WithArgs(end, start, "realtor-1").
		WillReturnRows(addReservationRow(sqlmock.NewRows(reservationColumnNames), "res-1", "confirmed"))

	list, err := repo.ListCalendar(context.Background(), reservation.CalendarQuery{RealtorID: "realtor-1", Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, reservation.StatusConfirmed, list[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationRepository_ListElapsedConfirmed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewReservationRepository(db)
	now := time.Now()
	after := reservation.ElapsedCursor{CheckOut: now.AddDate(0, 0, -3), ID: "res-0"}

	mock.ExpectQuery(`WHERE status = 'confirmed' AND check_out < \$1 AND \(check_out, id\) > \(\$2, \$3\)\s+ORDER BY check_out, id LIMIT \$4`).
		WithArgs(now, after.CheckOut, "res-0", 100).
		WillReturnRows(addReservationRow(sqlmock.NewRows(reservationColumnNames), "res-1", "confirmed"))

	list, err := repo.ListElapsedConfirmed(context.Background(), now, after, 100)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReservationRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("削除成功", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		mock.ExpectExec(`DELETE FROM reservations WHERE id = \$1`).
			WithArgs("res-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(ctx, "res-1"))
	})

	t.Run("存在しない場合はNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewReservationRepository(db)
		mock.ExpectExec(`DELETE FROM reservations`).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(ctx, "res-1"), reservation.ErrReservationNotFound)
	})
}
