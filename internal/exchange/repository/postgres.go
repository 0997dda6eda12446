package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/openpharma/exchange-service/internal/exchange/dto"
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

func (r *PGRepository) NextReference(ctx context.Context, tenantID string) (int64, error) {
	var value int64
	query := `
        INSERT INTO exchange_counters (tenant_id, value) VALUES ($1, 1)
        ON CONFLICT (tenant_id) DO UPDATE SET value = exchange_counters.value + 1
        RETURNING value
    `
	err := r.q(ctx).QueryRowxContext(ctx, query, tenantID).Scan(&value)
	return value, errors.Wrap(err, "next exchange reference")
}

func (r *PGRepository) Create(ctx context.Context, ex *model.Exchange) error {
	query := `
        INSERT INTO exchanges (
            id, tenant_id, reference, destination_establishment_id, destination_tenant_id,
            status, article_count, total_quantity, estimated_value, counter_estimated_value,
            difference, motive, note, refusal_reason,
            sent_at, countered_at, validated_at, refused_at, closed_at,
            created_by, validated_by, modified_by, is_active, created_at, updated_at
        )
        VALUES (
            :id, :tenant_id, :reference, :destination_establishment_id, :destination_tenant_id,
            :status, :article_count, :total_quantity, :estimated_value, :counter_estimated_value,
            :difference, :motive, :note, :refusal_reason,
            :sent_at, :countered_at, :validated_at, :refused_at, :closed_at,
            :created_by, :validated_by, :modified_by, :is_active, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, ex)
	return errors.Wrap(err, "insert exchange")
}

func (r *PGRepository) CreateLines(ctx context.Context, lines []model.ExchangeLine) error {
	query := `
        INSERT INTO exchange_lines (
            id, exchange_id, product_name, product_code, lot_number, source_lot_id,
            quantity, unit_price, line_total, expires_at, created_at
        )
        VALUES (
            :id, :exchange_id, :product_name, :product_code, :lot_number, :source_lot_id,
            :quantity, :unit_price, :line_total, :expires_at, :created_at
        )
    `
	for i := range lines {
		if _, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, &lines[i]); err != nil {
			return errors.Wrapf(err, "insert exchange line %s", lines[i].ProductName)
		}
	}
	return nil
}

func (r *PGRepository) CreateCounterLines(ctx context.Context, lines []model.CounterOfferLine) error {
	query := `
        INSERT INTO counter_offer_lines (
            id, exchange_id, product_name, product_code, lot_number, source_lot_id,
            quantity, unit_price, line_total, expires_at, created_at
        )
        VALUES (
            :id, :exchange_id, :product_name, :product_code, :lot_number, :source_lot_id,
            :quantity, :unit_price, :line_total, :expires_at, :created_at
        )
    `
	for i := range lines {
		if _, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, &lines[i]); err != nil {
			return errors.Wrapf(err, "insert counter-offer line %s", lines[i].ProductName)
		}
	}
	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.Exchange, error) {
	return r.getByID(ctx, id, "")
}

func (r *PGRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Exchange, error) {
	return r.getByID(ctx, id, " FOR UPDATE")
}

func (r *PGRepository) getByID(ctx context.Context, id, suffix string) (*model.Exchange, error) {
	var ex model.Exchange
	query := `SELECT * FROM exchanges WHERE id = $1` + suffix
	err := sqlx.GetContext(ctx, r.q(ctx), &ex, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get exchange")
	}
	return &ex, nil
}

func (r *PGRepository) GetLines(ctx context.Context, exchangeID string) ([]model.ExchangeLine, error) {
	var lines []model.ExchangeLine
	query := `SELECT * FROM exchange_lines WHERE exchange_id = $1 ORDER BY created_at, id`
	err := sqlx.SelectContext(ctx, r.q(ctx), &lines, query, exchangeID)
	return lines, errors.Wrap(err, "get exchange lines")
}

func (r *PGRepository) GetCounterLines(ctx context.Context, exchangeID string) ([]model.CounterOfferLine, error) {
	var lines []model.CounterOfferLine
	query := `SELECT * FROM counter_offer_lines WHERE exchange_id = $1 ORDER BY created_at, id`
	err := sqlx.SelectContext(ctx, r.q(ctx), &lines, query, exchangeID)
	return lines, errors.Wrap(err, "get counter-offer lines")
}

func (r *PGRepository) Update(ctx context.Context, ex *model.Exchange) error {
	query := `
        UPDATE exchanges SET
            status = :status,
            counter_estimated_value = :counter_estimated_value,
            difference = :difference,
            refusal_reason = :refusal_reason,
            countered_at = :countered_at,
            validated_at = :validated_at,
            refused_at = :refused_at,
            closed_at = :closed_at,
            validated_by = :validated_by,
            modified_by = :modified_by,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := sqlx.NamedExecContext(ctx, r.q(ctx), query, ex)
	return errors.Wrap(err, "update exchange")
}

func (r *PGRepository) FindOutgoing(ctx context.Context, tenantID string, f *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	return r.find(ctx, "tenant_id", tenantID, f)
}

func (r *PGRepository) FindIncoming(ctx context.Context, recipientTenantID string, f *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	return r.find(ctx, "destination_tenant_id", recipientTenantID, f)
}

func (r *PGRepository) find(ctx context.Context, keyColumn, keyValue string, f *dto.ExchangeFilters) ([]model.Exchange, int, error) {
	conditions := []string{keyColumn + " = :key", "is_active = true"}
	args := map[string]interface{}{"key": keyValue}

	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = string(f.Status)
	}

	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	var count int
	rows, err := sqlx.NamedQueryContext(ctx, r.q(ctx), "SELECT count(*) FROM exchanges"+whereClause, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count exchanges")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, errors.Wrap(err, "scan exchange count")
		}
	}

	query := "SELECT * FROM exchanges" + whereClause + " ORDER BY sent_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	var items []model.Exchange
	exRows, err := sqlx.NamedQueryContext(ctx, r.q(ctx), query, args)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list exchanges")
	}
	defer exRows.Close()
	for exRows.Next() {
		var ex model.Exchange
		if err := exRows.StructScan(&ex); err != nil {
			return nil, 0, errors.Wrap(err, "scan exchange")
		}
		items = append(items, ex)
	}
	return items, count, nil
}
