package property

import "errors"

// Property ドメインのエラー定義
var (
	ErrPropertyNotFound    = errors.New("物件が見つかりません")
	ErrPropertyUnavailable = errors.New("物件は現在予約を受け付けていません")
	ErrCapacityExceeded    = errors.New("宿泊人数が物件の定員を超えています")
)
