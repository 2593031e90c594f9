package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/user"
)

type userRow struct {
	ID    string `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
	Phone string `db:"phone"`
	Role  string `db:"role"`
}

// UserRepository はユーザーの読み取り専用リポジトリ
type UserRepository struct{ db *sqlx.DB }

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, name, email, phone, role FROM users WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, storageErr("ユーザー取得に失敗", err)
	}
	return &user.User{ID: row.ID, Name: row.Name, Email: row.Email, Phone: row.Phone, Role: user.Role(row.Role)}, nil
}

var _ user.Lookup = (*UserRepository)(nil)
