package user

import "context"

// Role はユーザーの役割を表す
type Role string

const (
	RoleClient  Role = "client"
	RoleRealtor Role = "realtor"
	RoleAdmin   Role = "admin"
	// RoleSystem はスイーパー等の内部処理専用。外部からは付与できない
	RoleSystem Role = "system"
)

// IsValid は既知の役割かを返す
func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleRealtor, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// IsAssignable はリクエスト経由で名乗れる役割かを返す
func (r Role) IsAssignable() bool {
	return r.IsValid() && r != RoleSystem
}

// User は予約エンジンが参照するユーザー情報
// ユーザー管理は外部サービスの責務で、ここでは表示用の項目のみ扱う
type User struct {
	ID    string
	Name  string
	Email string
	Phone string
	Role  Role
}

// Lookup はユーザー参照のインターフェース
type Lookup interface {
	// GetByID はIDからユーザーを取得する。存在しない場合は ErrUserNotFound
	GetByID(ctx context.Context, id string) (*User, error)
}
