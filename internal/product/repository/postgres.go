package repository

import (
	"context"
	"database/sql"
	"strings"

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

func (r *PGRepository) q(ctx context.Context) sqlx.ExtContext {
	return postgres.Queryer(ctx, r.DB)
}

// FindByName relies on the (tenant_id, lower(name)) unique index; the Redis
// lock in the use case guards the read-then-create window on top of it.
func (r *PGRepository) FindByName(ctx context.Context, tenantID, name string) (*model.Product, error) {
	var p model.Product
	query := `
        SELECT * FROM products
        WHERE tenant_id = $1 AND lower(name) = lower($2) AND is_active = true
    `
	err := sqlx.GetContext(ctx, r.q(ctx), &p, query, tenantID, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find product by name")
	}
	return &p, nil
}

func (r *PGRepository) Create(ctx context.Context, p *model.Product) error {
	query := `
        INSERT INTO products (
            id, tenant_id, name, code, base_price, is_active, created_at, updated_at
        )
        VALUES (
            :id, :tenant_id, :name, :code, :base_price, :is_active, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, p)
	return errors.Wrap(err, "insert product")
}
