package reservation

import (
	"math"
	"slices"
	"time"
)

const day = 24 * time.Hour

// Interval は [Start, End) の半開区間で表す滞在期間
type Interval struct {
	Start time.Time
	End   time.Time
}

// NormalizeDate は時刻を切り捨ててUTCの日付にそろえる
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewInterval は日付を正規化して区間を作成する
func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: NormalizeDate(start), End: NormalizeDate(end)}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate は End が Start より後であることを検証する
func (iv Interval) Validate() error {
	if !iv.End.After(iv.Start) {
		return ErrInvalidDateRange
	}
	return nil
}

// Overlaps は2つの半開区間が重なるかを返す
// 一方のチェックアウト日と他方のチェックイン日が同じ場合は重ならない
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Nights は宿泊数を返す（端数切り上げ、最低1泊）
func (iv Interval) Nights() int {
	n := int(math.Ceil(iv.End.Sub(iv.Start).Hours() / day.Hours()))
	if n < 1 {
		return 1
	}
	return n
}

// FindConflict は候補区間と重なる有効な予約を返す。なければ nil
// live を省略した場合は LiveStatuses を使う。excludeID の予約は比較対象から外す
func FindConflict(propertyID string, candidate Interval, existing []*Reservation, excludeID string, live ...Status) *Reservation {
	if len(live) == 0 {
		live = LiveStatuses()
	}
	for _, r := range existing {
		if r == nil || r.PropertyID != propertyID {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if !slices.Contains(live, r.Status) {
			continue
		}
		if candidate.Overlaps(r.Interval()) {
			return r
		}
	}
	return nil
}

// Conflicts は候補区間が有効な予約と重なるかを返す
func Conflicts(propertyID string, candidate Interval, existing []*Reservation, excludeID string, live ...Status) bool {
	return FindConflict(propertyID, candidate, existing, excludeID, live...) != nil
}
