package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
	redisinfra "github.com/Uvaancovie/nova-prop-backend/internal/infrastructure/redis"
	"github.com/Uvaancovie/nova-prop-backend/internal/pkg/logger"
)

const maxCalendarWindow = 366 * 24 * time.Hour

type calendarColors struct {
	background string
	border     string
}

var statusColors = map[reservation.Status]calendarColors{
	reservation.StatusPending:   {background: "#9333ea", border: "#7e22ce"},
	reservation.StatusConfirmed: {background: "#3b82f6", border: "#2563eb"},
}

// CalendarQuery はカレンダーの表示期間 [Start, End)
type CalendarQuery struct {
	Start      time.Time
	End        time.Time
	PropertyID string
}

// CalendarEvent はカレンダー表示用の予約
type CalendarEvent struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Start           string             `json:"start"`
	End             string             `json:"end"`
	Status          reservation.Status `json:"status"`
	ClassName       string             `json:"class_name"`
	BackgroundColor string             `json:"background_color"`
	BorderColor     string             `json:"border_color"`
	ExtendedProps   CalendarEventProps `json:"extended_props"`
}

type CalendarEventProps struct {
	PropertyID      string `json:"property_id"`
	GuestName       string `json:"guest_name"`
	GuestEmail      string `json:"guest_email"`
	PropertyName    string `json:"property_name"`
	Guests          int    `json:"guests"`
	TotalAmount     string `json:"total_amount"`
	SpecialRequests string `json:"special_requests,omitempty"`
}

// CalendarService は不動産業者向けのカレンダー表示を提供する
type CalendarService struct {
	reservationRepo reservation.Repository
	cache           CalendarCache
	cacheTTL        time.Duration
	timeout         time.Duration
	clock           Clock
}

func NewCalendarService(rr reservation.Repository, cache CalendarCache, cacheTTL, timeout time.Duration, clock Clock) *CalendarService {
	if clock == nil {
		clock = time.Now
	}
	return &CalendarService{reservationRepo: rr, cache: cache, cacheTTL: cacheTTL, timeout: timeout, clock: clock}
}

// ListEvents は期間と重なる有効な予約をカレンダー形式で返す
// 不動産業者は自分の物件のみ、管理者は全物件を参照できる
func (s *CalendarService) ListEvents(ctx context.Context, actor reservation.Actor, q CalendarQuery) ([]CalendarEvent, error) {
	switch {
	case actor.ID == "":
		return nil, reservation.ErrUnauthenticated
	case actor.Role != user.RoleRealtor && !actor.IsAdmin():
		return nil, reservation.ErrUnauthorized
	}
	q, err := s.normalize(q)
	if err != nil {
		return nil, err
	}

	repoQuery := reservation.CalendarQuery{PropertyID: q.PropertyID, Start: q.Start, End: q.End}
	scope := ""
	if actor.Role == user.RoleRealtor {
		repoQuery.RealtorID = actor.ID
		scope = actor.ID
	}
	key := fmt.Sprintf("%s:%s:%s", ymd(q.Start), ymd(q.End), q.PropertyID)

	if events, ok := s.fromCache(ctx, scope, key); ok {
		return events, nil
	}

	listCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	list, err := s.reservationRepo.ListCalendar(listCtx, repoQuery)
	if err != nil {
		return nil, err
	}
	events := make([]CalendarEvent, 0, len(list))
	for _, r := range list {
		events = append(events, ToCalendarEvent(r))
	}
	s.toCache(ctx, scope, key, events)
	return events, nil
}

func (s *CalendarService) normalize(q CalendarQuery) (CalendarQuery, error) {
	if q.Start.IsZero() && q.End.IsZero() {
		now := s.clock().UTC()
		q.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		q.End = q.Start.AddDate(0, 1, 0)
	}
	if q.End.IsZero() {
		q.End = reservation.NormalizeDate(q.Start).AddDate(0, 1, 0)
	}
	iv, err := reservation.NewInterval(q.Start, q.End)
	if err != nil {
		return q, err
	}
	if iv.End.Sub(iv.Start) > maxCalendarWindow {
		return q, fmt.Errorf("%w: 表示期間は1年以内で指定してください", reservation.ErrInvalidInput)
	}
	q.Start, q.End = iv.Start, iv.End
	return q, nil
}

func (s *CalendarService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// fromCache は不動産業者スコープのキャッシュを参照する。管理者の問い合わせはキャッシュしない
func (s *CalendarService) fromCache(ctx context.Context, scope, key string) ([]CalendarEvent, bool) {
	if s.cache == nil || scope == "" {
		return nil, false
	}
	data, err := s.cache.Get(ctx, scope, key)
	if err != nil {
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("カレンダーキャッシュの取得に失敗", zap.String("scope", scope), zap.Error(err))
		}
		return nil, false
	}
	var events []CalendarEvent
	if err := json.Unmarshal(data, &events); err != nil {
		logger.Warn("カレンダーキャッシュが壊れています", zap.String("scope", scope), zap.Error(err))
		return nil, false
	}
	return events, true
}

func (s *CalendarService) toCache(ctx context.Context, scope, key string, events []CalendarEvent) {
	if s.cache == nil || scope == "" {
		return
	}
	data, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, scope, key, data, s.cacheTTL); err != nil {
		logger.Warn("カレンダーキャッシュの保存に失敗", zap.String("scope", scope), zap.Error(err))
	}
}

// ToCalendarEvent は予約をカレンダー表示用に変換する
func ToCalendarEvent(r *reservation.Reservation) CalendarEvent {
	colors := statusColors[r.Status]
	return CalendarEvent{
		ID:              r.ID,
		Title:           fmt.Sprintf("%s - %s", displayName(r.GuestName, "ゲスト"), displayName(r.PropertyName, "物件")),
		Start:           ymd(r.CheckIn),
		End:             ymd(r.CheckOut),
		Status:          r.Status,
		ClassName:       "status-" + string(r.Status),
		BackgroundColor: colors.background,
		BorderColor:     colors.border,
		ExtendedProps: CalendarEventProps{
			PropertyID:      r.PropertyID,
			GuestName:       r.GuestName,
			GuestEmail:      r.GuestEmail,
			PropertyName:    r.PropertyName,
			Guests:          r.Guests,
			TotalAmount:     r.TotalAmount.StringFixed(2),
			SpecialRequests: r.SpecialRequests,
		},
	}
}
