package reservation

import (
	"fmt"
	"slices"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

// Actor は操作を行う主体
type Actor struct {
	ID   string
	Role user.Role
}

// SystemActor はスイーパーが使う内部主体
var SystemActor = Actor{ID: "system", Role: user.RoleSystem}

// IsAdmin は管理者かを返す
func (a Actor) IsAdmin() bool {
	return a.Role == user.RoleAdmin
}

// Owns は予約の当事者かを返す
func (a Actor) Owns(r *Reservation) bool {
	if a.ID == "" {
		return false
	}
	switch a.Role {
	case user.RoleClient:
		return r.ClientID == a.ID
	case user.RoleRealtor:
		return r.RealtorID == a.ID
	case user.RoleSystem:
		return true
	}
	return false
}

// Edge は状態遷移の辺
type Edge struct {
	From Status
	To   Status
}

func (e Edge) String() string {
	return fmt.Sprintf("%s → %s", e.From, e.To)
}

// transitions は遷移表。値はその辺を実行できる役割
// 管理者はこの表に関係なく任意の遷移を強制できる
var transitions = map[Edge][]user.Role{
	{StatusPending, StatusConfirmed}:   {user.RoleRealtor},
	{StatusPending, StatusCancelled}:   {user.RoleClient, user.RoleRealtor},
	{StatusConfirmed, StatusCancelled}: {user.RoleClient, user.RoleRealtor},
	{StatusConfirmed, StatusCompleted}: {user.RoleSystem},
}

// IsModeled は遷移表に定義された辺かを返す
func IsModeled(from, to Status) bool {
	_, ok := transitions[Edge{From: from, To: to}]
	return ok
}

// AuthorizeCreate は予約作成（→ pending）の権限を検証する
func AuthorizeCreate(actor Actor) error {
	if actor.Role != user.RoleClient || actor.ID == "" {
		return ErrUnauthorized
	}
	return nil
}

// Authorize は予約 r を to へ遷移させる権限を検証する
// クライアントがキャンセル以外を要求した場合は ErrUnauthorized
// それ以外で遷移表にない辺は ErrInvalidTransition、権限不足は ErrUnauthorized
func Authorize(r *Reservation, actor Actor, to Status) error {
	if !to.IsValid() {
		return ErrInvalidStatus
	}
	if actor.Role == user.RoleClient && to != StatusCancelled {
		return fmt.Errorf("%w: クライアントはキャンセルのみ可能です", ErrUnauthorized)
	}
	edge := Edge{From: r.Status, To: to}
	if r.Status == to {
		return fmt.Errorf("%w: 既に %s です", ErrInvalidTransition, to)
	}
	if actor.IsAdmin() {
		return nil
	}
	roles, ok := transitions[edge]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, edge)
	}
	if !slices.Contains(roles, actor.Role) || !actor.Owns(r) {
		return fmt.Errorf("%w: %s は %s を実行できません", ErrUnauthorized, actor.Role, edge)
	}
	return nil
}

// CanView は予約を閲覧できるかを返す
func CanView(r *Reservation, actor Actor) bool {
	return actor.IsAdmin() || actor.Owns(r)
}

// CanEdit は状態以外の項目を更新できるかを返す
func CanEdit(r *Reservation, actor Actor) bool {
	if actor.Role == user.RoleSystem {
		return false
	}
	return actor.IsAdmin() || actor.Owns(r)
}
