package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/notification"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

// PropertyStore はメモリ上の物件カタログ
type PropertyStore struct {
	mu    sync.RWMutex
	items map[string]property.Property
}

func NewPropertyStore(props ...*property.Property) *PropertyStore {
	s := &PropertyStore{items: make(map[string]property.Property)}
	for _, p := range props {
		s.Put(p)
	}
	return s
}

// Put は物件を登録または置き換える
func (s *PropertyStore) Put(p *property.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p.ID] = *p
}

// Remove は物件を削除する
func (s *PropertyStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *PropertyStore) GetByID(ctx context.Context, id string) (*property.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return nil, property.ErrPropertyNotFound
	}
	return &p, nil
}

// UserStore はメモリ上のユーザー一覧
type UserStore struct {
	mu    sync.RWMutex
	items map[string]user.User
}

func NewUserStore(users ...*user.User) *UserStore {
	s := &UserStore{items: make(map[string]user.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

func (s *UserStore) Put(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[u.ID] = *u
}

func (s *UserStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.items[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

// NotificationSink は記録された通知をメモリに保持する
type NotificationSink struct {
	mu    sync.Mutex
	items []notification.Notification
	// FailWith が設定されている場合、Record はそのエラーを返す
	FailWith error
}

func NewNotificationSink() *NotificationSink {
	return &NotificationSink{}
}

func (s *NotificationSink) Record(_ context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.items = append(s.items, *n)
	return nil
}

// List は記録順に通知を返す
func (s *NotificationSink) List() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// ForReservation は予約に紐づく通知を返す
func (s *NotificationSink) ForReservation(reservationID string) []notification.Notification {
	var out []notification.Notification
	for _, n := range s.List() {
		if n.ReservationID == reservationID {
			out = append(out, n)
		}
	}
	return out
}

// ListByReceiver は受信者宛ての通知を新しい順に返す
func (s *NotificationSink) ListByReceiver(_ context.Context, receiverID string, limit int) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for _, n := range s.List() {
		if n.ReceiverID == receiverID {
			n := n
			out = append(out, &n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ property.Lookup   = (*PropertyStore)(nil)
	_ user.Lookup       = (*UserStore)(nil)
	_ notification.Sink = (*NotificationSink)(nil)
)
