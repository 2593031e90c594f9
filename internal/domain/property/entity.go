package property

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Property は予約エンジンが参照する物件情報
// 物件カタログの管理は外部の責務で、参照のみ行う
type Property struct {
	ID            string
	Name          string
	Address       string
	City          string
	Province      string
	PricePerNight decimal.Decimal
	MaxGuests     int
	IsAvailable   bool
	RealtorID     string
	RealtorName   string
	RealtorEmail  string
}

// Location は表示用の所在地（"住所, 市区町村"）を返す
func (p *Property) Location() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{p.Address, p.City} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Accommodates は指定人数を受け入れ可能かを返す
// MaxGuests が0以下の場合は上限なしとみなす
func (p *Property) Accommodates(guests int) bool {
	if p.MaxGuests <= 0 {
		return true
	}
	return guests <= p.MaxGuests
}

// Lookup は物件参照のインターフェース
type Lookup interface {
	// GetByID はIDから物件を取得する。存在しない場合は ErrPropertyNotFound
	GetByID(ctx context.Context, id string) (*Property, error)
}
