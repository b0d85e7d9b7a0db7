package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account/internal/account/entity"
)

// ClassYearRepo reads cohorts and the mailing list each one maps to.
type ClassYearRepo struct {
	db *sqlx.DB
}

func NewClassYearRepo(db *sqlx.DB) *ClassYearRepo { return &ClassYearRepo{db: db} }

// EnsureTable creates the class_years table if it does not exist.
func (r *ClassYearRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS class_years (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  ml_list_id BIGINT
);`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// GetByID returns the class year or ErrNotFound.
func (r *ClassYearRepo) GetByID(ctx context.Context, id int64) (*entity.ClassYear, error) {
	const q = `SELECT id, name, ml_list_id FROM class_years WHERE id=$1`
	var cy entity.ClassYear
	if err := r.db.GetContext(ctx, &cy, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cy, nil
}
