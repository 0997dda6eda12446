package stock

import (
	"context"
	"time"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock/dto"
)

type Repository interface {
	GetLot(ctx context.Context, tenantID, lotID string) (*model.Lot, error)
	// GetLotForUpdate reads the lot under a row lock so concurrent deltas
	// against the same lot serialize instead of racing a stale quantity.
	GetLotForUpdate(ctx context.Context, tenantID, lotID string) (*model.Lot, error)
	CreateLot(ctx context.Context, lot *model.Lot) error
	SetLotQuantity(ctx context.Context, lotID string, quantity int, at time.Time) error

	AppendEntry(ctx context.Context, e *model.LedgerEntry) error
	ListEntries(ctx context.Context, f *dto.LedgerFilters) ([]model.LedgerEntry, int, error)
}
