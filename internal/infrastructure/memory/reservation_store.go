package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/transaction"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ReservationStore はプロセス内で完結する予約リポジトリ
// 物件単位のロックで確認と挿入を直列化するため、PostgreSQL 版と同じ排他の性質を持つ
type ReservationStore struct {
	mu    sync.RWMutex
	items map[string]*reservation.Reservation
	locks keyedMutex
}

// NewReservationStore は空の ReservationStore を作成する
func NewReservationStore() *ReservationStore {
	return &ReservationStore{items: make(map[string]*reservation.Reservation)}
}

func clone(r *reservation.Reservation) *reservation.Reservation {
	c := *r
	return &c
}

func (s *ReservationStore) LockProperty(ctx context.Context, tx transaction.Tx, propertyID string) error {
	t, err := unwrap(tx)
	if err != nil {
		return err
	}
	return t.lock(ctx, &s.locks, "property:"+propertyID)
}

func (s *ReservationStore) ListLiveByProperty(_ context.Context, tx transaction.Tx, propertyID string) ([]*reservation.Reservation, error) {
	if _, err := unwrap(tx); err != nil {
		return nil, err
	}
	return s.filter(func(r *reservation.Reservation) bool {
		return r.PropertyID == propertyID && r.IsLive()
	}, byCheckIn), nil
}

func (s *ReservationStore) Create(_ context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	t, err := unwrap(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[r.ID]; ok {
		return reservation.ErrConflict
	}
	if s.overlapsLive(r, r.ID) {
		return reservation.ErrConflict
	}
	s.items[r.ID] = clone(r)
	id := r.ID
	t.onRollback(func() {
		s.mu.Lock()
		delete(s.items, id)
		s.mu.Unlock()
	})
	return nil
}

func (s *ReservationStore) GetByID(_ context.Context, id string) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return nil, reservation.ErrReservationNotFound
	}
	return clone(r), nil
}

// GetByIDForUpdate は予約単位のロックを取得してから取得する
func (s *ReservationStore) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	t, err := unwrap(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, &s.locks, "reservation:"+id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *ReservationStore) List(_ context.Context, f reservation.ListFilter) ([]*reservation.Reservation, error) {
	all := s.filter(func(r *reservation.Reservation) bool {
		switch {
		case f.ClientID != "" && r.ClientID != f.ClientID:
			return false
		case f.RealtorID != "" && r.RealtorID != f.RealtorID:
			return false
		case f.PropertyID != "" && r.PropertyID != f.PropertyID:
			return false
		case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status):
			return false
		}
		return true
	}, byCreatedDesc)

	limit, offset := f.Limit, f.Offset
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []*reservation.Reservation{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (s *ReservationStore) ListCalendar(_ context.Context, q reservation.CalendarQuery) ([]*reservation.Reservation, error) {
	window := reservation.Interval{Start: q.Start, End: q.End}
	return s.filter(func(r *reservation.Reservation) bool {
		switch {
		case !r.IsLive():
			return false
		case q.RealtorID != "" && r.RealtorID != q.RealtorID:
			return false
		case q.PropertyID != "" && r.PropertyID != q.PropertyID:
			return false
		}
		return r.Interval().Overlaps(window)
	}, byCheckIn), nil
}

func (s *ReservationStore) ListElapsedConfirmed(_ context.Context, now time.Time, after reservation.ElapsedCursor, limit int) ([]*reservation.Reservation, error) {
	out := s.filter(func(r *reservation.Reservation) bool {
		return r.Status == reservation.StatusConfirmed && r.HasElapsed(now) && after.Precedes(r)
	}, byCheckOut)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ReservationStore) UpdateStatus(_ context.Context, tx transaction.Tx, id string, from, to reservation.Status, updatedAt time.Time) error {
	t, err := unwrap(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[id]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	if r.Status != from {
		return reservation.ErrStatusChanged
	}
	prev := clone(r)
	r.Status = to
	if r.IsLive() && !prev.IsLive() && s.overlapsLive(r, r.ID) {
		*r = *prev
		return reservation.ErrConflict
	}
	r.UpdatedAt = updatedAt
	t.onRollback(func() { s.restore(prev) })
	return nil
}

func (s *ReservationStore) UpdateDetails(_ context.Context, tx transaction.Tx, updated *reservation.Reservation) error {
	t, err := unwrap(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[updated.ID]
	if !ok {
		return reservation.ErrReservationNotFound
	}
	prev := clone(r)
	r.CheckIn = updated.CheckIn
	r.CheckOut = updated.CheckOut
	r.Guests = updated.Guests
	r.SpecialRequests = updated.SpecialRequests
	r.UpdatedAt = updated.UpdatedAt
	t.onRollback(func() { s.restore(prev) })
	return nil
}

func (s *ReservationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return reservation.ErrReservationNotFound
	}
	delete(s.items, id)
	return nil
}

// Put はトランザクションを経由せずに予約を登録する。テストデータの投入に使う
func (s *ReservationStore) Put(r *reservation.Reservation) {
	s.restore(r)
}

func (s *ReservationStore) restore(r *reservation.Reservation) {
	s.mu.Lock()
	s.items[r.ID] = clone(r)
	s.mu.Unlock()
}

// overlapsLive は r と重なる他の有効な予約があるかを返す。呼び出し側で s.mu を保持すること
// PostgreSQL の排他制約に相当する
func (s *ReservationStore) overlapsLive(r *reservation.Reservation, excludeID string) bool {
	if !r.IsLive() {
		return false
	}
	for _, existing := range s.items {
		if existing.ID == excludeID {
			continue
		}
		if existing.PropertyID == r.PropertyID && existing.IsLive() && existing.Interval().Overlaps(r.Interval()) {
			return true
		}
	}
	return false
}

func (s *ReservationStore) filter(keep func(*reservation.Reservation) bool, less func(a, b *reservation.Reservation) bool) []*reservation.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*reservation.Reservation, 0)
	for _, r := range s.items {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byCheckIn(a, b *reservation.Reservation) bool {
	if a.CheckIn.Equal(b.CheckIn) {
		return a.ID < b.ID
	}
	return a.CheckIn.Before(b.CheckIn)
}

func byCheckOut(a, b *reservation.Reservation) bool {
	if a.CheckOut.Equal(b.CheckOut) {
		return a.ID < b.ID
	}
	return a.CheckOut.Before(b.CheckOut)
}

func byCreatedDesc(a, b *reservation.Reservation) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

var _ reservation.Repository = (*ReservationStore)(nil)
