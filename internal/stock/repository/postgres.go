package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock/dto"
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

func (r *PGRepository) GetLot(ctx context.Context, tenantID, lotID string) (*model.Lot, error) {
	return r.getLot(ctx, tenantID, lotID, "")
}

func (r *PGRepository) GetLotForUpdate(ctx context.Context, tenantID, lotID string) (*model.Lot, error) {
	return r.getLot(ctx, tenantID, lotID, " FOR UPDATE")
}

func (r *PGRepository) getLot(ctx context.Context, tenantID, lotID, suffix string) (*model.Lot, error) {
	var lot model.Lot
	query := `SELECT * FROM lots WHERE id = $1 AND tenant_id = $2 AND is_active = true` + suffix
	err := sqlx.GetContext(ctx, r.q(ctx), &lot, query, lotID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // caller decides whether absence is an error
		}
		return nil, errors.Wrap(err, "get lot")
	}
	return &lot, nil
}

func (r *PGRepository) CreateLot(ctx context.Context, lot *model.Lot) error {
	query := `
        INSERT INTO lots (
            id, tenant_id, product_id, lot_number, quantity,
            unit_cost, unit_price, expires_at, is_active, created_at, updated_at
        )
        VALUES (
            :id, :tenant_id, :product_id, :lot_number, :quantity,
            :unit_cost, :unit_price, :expires_at, :is_active, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, lot)
	return errors.Wrap(err, "insert lot")
}

func (r *PGRepository) SetLotQuantity(ctx context.Context, lotID string, quantity int, at time.Time) error {
	query := `UPDATE lots SET quantity = $1, updated_at = $2 WHERE id = $3`
	_, err := r.q(ctx).ExecContext(ctx, query, quantity, at, lotID)
	return errors.Wrap(err, "update lot quantity")
}

func (r *PGRepository) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	query := `
        INSERT INTO stock_ledger (
            id, tenant_id, lot_id, product_id, action, delta,
            previous_value, new_value, reason,
            actor_id, actor_name, actor_email, created_at
        )
        VALUES (
            :id, :tenant_id, :lot_id, :product_id, :action, :delta,
            :previous_value, :new_value, :reason,
            :actor_id, :actor_name, :actor_email, :created_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, e)
	return errors.Wrap(err, "insert ledger entry")
}

func (r *PGRepository) ListEntries(ctx context.Context, f *dto.LedgerFilters) ([]model.LedgerEntry, int, error) {
	conditions := []string{"tenant_id = :tenant_id"}
	args := map[string]interface{}{"tenant_id": f.TenantID}

	if f.LotID != "" {
		conditions = append(conditions, "lot_id = :lot_id")
		args["lot_id"] = f.LotID
	}
	if f.Action != "" {
		conditions = append(conditions, "action = :action")
		args["action"] = string(f.Action)
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	var count int
	rows, err := sqlx.NamedQueryContext(ctx, r.q(ctx), "SELECT count(*) FROM stock_ledger"+whereClause, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count ledger entries")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, errors.Wrap(err, "scan ledger count")
		}
	}

	query := "SELECT * FROM stock_ledger" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	var items []model.LedgerEntry
	entryRows, err := sqlx.NamedQueryContext(ctx, r.q(ctx), query, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list ledger entries")
	}
	defer entryRows.Close()
	for entryRows.Next() {
		var e model.LedgerEntry
		if err := entryRows.StructScan(&e); err != nil {
			return nil, 0, errors.Wrap(err, "scan ledger entry")
		}
		items = append(items, e)
	}
	return items, count, nil
}
