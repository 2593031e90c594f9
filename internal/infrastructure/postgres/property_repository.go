package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/Uvaancovie/nova-prop-backend/internal/domain/property"
)

type propertyRow struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	Address       string          `db:"address"`
	City          string          `db:"city"`
	Province      string          `db:"province"`
	PricePerNight decimal.Decimal `db:"price_per_night"`
	MaxGuests     int             `db:"max_guests"`
	IsAvailable   bool            `db:"is_available"`
	RealtorID     string          `db:"realtor_id"`
	RealtorName   string          `db:"realtor_name"`
	RealtorEmail  string          `db:"realtor_email"`
}

// PropertyRepository は物件カタログの読み取り専用リポジトリ
type PropertyRepository struct{ db *sqlx.DB }

func NewPropertyRepository(db *sqlx.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// GetByID は物件と担当の不動産業者を取得する
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*property.Property, error) {
	var row propertyRow
	query := `
		SELECT p.id, p.name, p.address, p.city, p.province, p.price_per_night, p.max_guests, p.is_available, p.realtor_id,
			COALESCE(u.name, '') AS realtor_name, COALESCE(u.email, '') AS realtor_email
		FROM properties p
		LEFT JOIN users u ON u.id = p.realtor_id
		WHERE p.id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, property.ErrPropertyNotFound
		}
		return nil, storageErr("物件取得に失敗", err)
	}
	return &property.Property{
		ID: row.ID, Name: row.Name, Address: row.Address, City: row.City, Province: row.Province,
		PricePerNight: row.PricePerNight, MaxGuests: row.MaxGuests, IsAvailable: row.IsAvailable,
		RealtorID: row.RealtorID, RealtorName: row.RealtorName, RealtorEmail: row.RealtorEmail,
	}, nil
}

var _ property.Lookup = (*PropertyRepository)(nil)
