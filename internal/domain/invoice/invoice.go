package invoice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/reservation"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

// Invoice ドメインのエラー定義
var (
	// ErrMissingReferenceData は予約ドメインと同じ値で、エラー種別の判定に使う
	ErrMissingReferenceData = reservation.ErrMissingReferenceData
	ErrInvalidFilename      = errors.New("請求書のファイル名が不正です")
	ErrInvoiceNotFound      = errors.New("請求書が見つかりません")
)

const (
	filenamePrefix = "invoice-"
	numberLength   = 8
)

var filenamePattern = regexp.MustCompile(`^invoice-([A-Za-z0-9][A-Za-z0-9_-]*)\.(pdf|html)$`)

// Party は請求書に記載する当事者
type Party struct {
	Name  string
	Email string
	Phone string
}

// Invoice は予約から導出される請求書
// 構造化データとしては保存せず、レンダリング結果のみ保存する
type Invoice struct {
	Number           string
	ReservationID    string
	IssuedAt         time.Time
	Realtor          Party
	Client           Party
	PropertyName     string
	PropertyLocation string
	CheckIn          time.Time
	CheckOut         time.Time
	Nights           int
	Guests           int
	Status           reservation.Status
	SpecialRequests  string
	Subtotal         decimal.Decimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
}

// Build は予約と参照データから請求書を組み立てる
// 物件・クライアント・不動産業者のいずれかが欠けている場合は何も生成せず ErrMissingReferenceData を返す
func Build(r *reservation.Reservation, prop *property.Property, client, realtor *user.User, issuedAt time.Time) (*Invoice, error) {
	switch {
	case r == nil:
		return nil, fmt.Errorf("%w: 予約", ErrMissingReferenceData)
	case prop == nil:
		return nil, fmt.Errorf("%w: 物件", ErrMissingReferenceData)
	case client == nil:
		return nil, fmt.Errorf("%w: クライアント", ErrMissingReferenceData)
	case realtor == nil:
		return nil, fmt.Errorf("%w: 不動産業者", ErrMissingReferenceData)
	}

	subtotal, tax := SplitTax(r.TotalAmount)
	return &Invoice{
		Number:        Number(r.ID),
		ReservationID: r.ID,
		IssuedAt:      issuedAt,
		Realtor: Party{
			Name:  firstNonEmpty(r.RealtorName, prop.RealtorName, realtor.Name),
			Email: firstNonEmpty(r.RealtorEmail, prop.RealtorEmail, realtor.Email),
			Phone: realtor.Phone,
		},
		Client: Party{
			Name:  firstNonEmpty(r.GuestName, client.Name),
			Email: firstNonEmpty(r.GuestEmail, client.Email),
			Phone: firstNonEmpty(r.GuestPhone, client.Phone),
		},
		PropertyName:     firstNonEmpty(r.PropertyName, prop.Name),
		PropertyLocation: firstNonEmpty(r.PropertyLocation, prop.Location()),
		CheckIn:          r.CheckIn,
		CheckOut:         r.CheckOut,
		Nights:           r.Nights(),
		Guests:           r.Guests,
		Status:           r.Status,
		SpecialRequests:  r.SpecialRequests,
		Subtotal:         subtotal,
		Tax:              tax,
		Total:            r.TotalAmount,
	}, nil
}

// Number は予約IDから請求書番号を導出する（末尾8文字を大文字化）
func Number(reservationID string) string {
	id := strings.ReplaceAll(reservationID, "-", "")
	if len(id) > numberLength {
		id = id[len(id)-numberLength:]
	}
	return strings.ToUpper(id)
}

// Filename は予約IDと拡張子からファイル名を導出する
func Filename(reservationID, ext string) string {
	return filenamePrefix + reservationID + "." + strings.TrimPrefix(ext, ".")
}

// ValidFilename はダウンロード可能なファイル名かを返す
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// ReservationIDFromFilename はファイル名から予約IDを取り出す
func ReservationIDFromFilename(name string) (string, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", ErrInvalidFilename
	}
	return m[1], nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
