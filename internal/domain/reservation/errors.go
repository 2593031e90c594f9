package reservation

import (
	"context"
	"errors"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound  = errors.New("予約が見つかりません")
	ErrInvalidDateRange     = errors.New("チェックアウト日はチェックイン日より後である必要があります")
	ErrConflict             = errors.New("指定期間には既に有効な予約があります")
	ErrUnauthorized         = errors.New("この操作を行う権限がありません")
	ErrUnauthenticated      = errors.New("認証情報がありません")
	ErrInvalidTransition    = errors.New("この状態遷移は許可されていません")
	ErrInvalidStatus        = errors.New("不正な予約状態です")
	ErrStatusChanged        = errors.New("予約の状態が他の操作によって変更されました")
	ErrStayNotElapsed       = errors.New("滞在期間がまだ終了していません")
	ErrMissingReferenceData = errors.New("請求書の生成に必要な情報が不足しています")
	ErrStorageFailure       = errors.New("ストレージ操作に失敗しました")
	ErrPropertyIDRequired   = errors.New("物件IDは必須です")
	ErrClientIDRequired     = errors.New("クライアントIDは必須です")
	ErrRealtorIDRequired    = errors.New("不動産業者IDは必須です")
	ErrInvalidGuests        = errors.New("宿泊人数は1以上である必要があります")
	ErrNegativeAmount       = errors.New("合計金額は0以上である必要があります")
	ErrInvalidInput         = errors.New("入力値が不正です")
)

// Kind は呼び出し側に公開する安定したエラー種別
type Kind string

const (
	KindNotFound             Kind = "NotFound"
	KindUnavailable          Kind = "Unavailable"
	KindInvalidDateRange     Kind = "InvalidDateRange"
	KindConflict             Kind = "ConflictError"
	KindUnauthorized         Kind = "Unauthorized"
	KindInvalidTransition    Kind = "InvalidTransition"
	KindMissingReferenceData Kind = "MissingReferenceData"
	KindStorageFailure       Kind = "StorageFailure"
	KindInvalidInput         Kind = "InvalidInput"
	KindInternal             Kind = "Internal"
)

// KindOf はエラーを種別に分類する
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReservationNotFound),
		errors.Is(err, property.ErrPropertyNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, property.ErrPropertyUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrInvalidDateRange):
		return KindInvalidDateRange
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrStatusChanged),
		errors.Is(err, ErrStayNotElapsed):
		return KindInvalidTransition
	case errors.Is(err, ErrMissingReferenceData):
		return KindMissingReferenceData
	case errors.Is(err, ErrPropertyIDRequired),
		errors.Is(err, ErrClientIDRequired),
		errors.Is(err, ErrRealtorIDRequired),
		errors.Is(err, ErrInvalidGuests),
		errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, property.ErrCapacityExceeded):
		return KindInvalidInput
	case errors.Is(err, ErrStorageFailure),
		errors.Is(err, context.DeadlineExceeded):
		return KindStorageFailure
	}
	return KindInternal
}

// IsRetryable は呼び出し側が再試行してよいエラーかを返す
// 分類できないエラーは一時的な障害として扱う
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindStorageFailure, KindInternal:
		return true
	}
	return false
}
