package reservation

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsValid は既知の状態かを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal は終端状態かを返す
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// LiveStatuses は新規予約をブロックする状態の一覧
func LiveStatuses() []Status {
	return []Status{StatusPending, StatusConfirmed}
}

// ParseStatus は文字列を Status に変換する
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Reservation は予約エンティティを表す
// Guest*, Property*, Realtor* は作成時のスナップショットで、以後再取得しない
type Reservation struct {
	ID         string
	PropertyID string
	ClientID   string
	RealtorID  string

	GuestName        string
	GuestEmail       string
	GuestPhone       string
	PropertyName     string
	PropertyLocation string
	RealtorName      string
	RealtorEmail     string

	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	TotalAmount     decimal.Decimal
	Status          Status
	SpecialRequests string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Draft は予約リクエストの入力
type Draft struct {
	PropertyID      string
	ClientID        string
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	TotalAmount     decimal.Decimal
	SpecialRequests string
}

// NewReservation は新しい保留中の予約を作成する
// 不動産業者IDはリクエストではなく物件から取得する
func NewReservation(d Draft, prop *property.Property, client *user.User, now time.Time) *Reservation {
	r := &Reservation{
		ID:              uuid.NewString(),
		PropertyID:      d.PropertyID,
		ClientID:        d.ClientID,
		CheckIn:         NormalizeDate(d.CheckIn),
		CheckOut:        NormalizeDate(d.CheckOut),
		Guests:          d.Guests,
		TotalAmount:     d.TotalAmount,
		Status:          StatusPending,
		SpecialRequests: strings.TrimSpace(d.SpecialRequests),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if prop != nil {
		r.RealtorID = prop.RealtorID
		r.PropertyName = prop.Name
		r.PropertyLocation = prop.Location()
		r.RealtorName = prop.RealtorName
		r.RealtorEmail = prop.RealtorEmail
	}
	if client != nil {
		r.GuestName = client.Name
		r.GuestEmail = client.Email
		r.GuestPhone = client.Phone
	}
	return r
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.PropertyID == "" {
		return ErrPropertyIDRequired
	}
	if r.ClientID == "" {
		return ErrClientIDRequired
	}
	if r.RealtorID == "" {
		return ErrRealtorIDRequired
	}
	if r.Guests <= 0 {
		return ErrInvalidGuests
	}
	if r.TotalAmount.IsNegative() {
		return ErrNegativeAmount
	}
	return r.Interval().Validate()
}

// Interval は滞在期間を返す
func (r *Reservation) Interval() Interval {
	return Interval{Start: r.CheckIn, End: r.CheckOut}
}

// Nights は宿泊数を返す
func (r *Reservation) Nights() int {
	return r.Interval().Nights()
}

// IsLive は新規予約をブロックする状態かを返す
func (r *Reservation) IsLive() bool {
	return slices.Contains(LiveStatuses(), r.Status)
}

// HasElapsed は now 時点でチェックアウト日を過ぎているかを返す
func (r *Reservation) HasElapsed(now time.Time) bool {
	return r.CheckOut.Before(now)
}

// Transition は権限と遷移表を検証したうえで状態を変更し、変更前の状態を返す
func (r *Reservation) Transition(actor Actor, to Status, now time.Time) (Status, error) {
	if err := Authorize(r, actor, to); err != nil {
		return "", err
	}
	if actor.Role == user.RoleSystem && to == StatusCompleted && !r.HasElapsed(now) {
		return "", ErrStayNotElapsed
	}
	from := r.Status
	r.Status = to
	r.UpdatedAt = now
	return from, nil
}

// Details は状態以外で更新可能な項目
type Details struct {
	CheckIn         *time.Time
	CheckOut        *time.Time
	Guests          *int
	SpecialRequests *string
}

// IsEmpty は更新項目がないかを返す
func (d Details) IsEmpty() bool {
	return d.CheckIn == nil && d.CheckOut == nil && d.Guests == nil && d.SpecialRequests == nil
}

// ChangesInterval は滞在期間を変更するかを返す
func (d Details) ChangesInterval() bool {
	return d.CheckIn != nil || d.CheckOut != nil
}

// ApplyDetails は状態以外の項目を更新する。遷移表は経由しない
func (r *Reservation) ApplyDetails(d Details, now time.Time) error {
	updated := *r
	if d.CheckIn != nil {
		updated.CheckIn = NormalizeDate(*d.CheckIn)
	}
	if d.CheckOut != nil {
		updated.CheckOut = NormalizeDate(*d.CheckOut)
	}
	if d.Guests != nil {
		updated.Guests = *d.Guests
	}
	if d.SpecialRequests != nil {
		updated.SpecialRequests = strings.TrimSpace(*d.SpecialRequests)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	updated.UpdatedAt = now
	*r = updated
	return nil
}
