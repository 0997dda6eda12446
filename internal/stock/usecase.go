package stock

import (
	"context"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock/dto"
)

type UseCase interface {
	// ApplyStockDelta mutates a lot's quantity and appends exactly one ledger
	// entry, inside the caller's transaction. It never opens its own.
	ApplyStockDelta(ctx context.Context, in *dto.StockDeltaInput) (int, error)
	// CreateLotWithEntry creates a lot and its initial ledger entry, inside
	// the caller's transaction.
	CreateLotWithEntry(ctx context.Context, in *dto.CreateLotInput) (*model.Lot, error)
	GetLot(ctx context.Context, tenantID, lotID string) (*model.Lot, error)
	ListMovements(ctx context.Context, f *dto.LedgerFilters) ([]model.LedgerEntry, int, error)
}
