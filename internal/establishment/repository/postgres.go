package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/pkg/postgres"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Establishment, error) {
	var e model.Establishment
	query := `SELECT * FROM establishments WHERE id = $1 AND tenant_id = $2`
	err := sqlx.GetContext(ctx, postgres.Queryer(ctx, r.DB), &e, query, id, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get establishment")
	}
	return &e, nil
}
