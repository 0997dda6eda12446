package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/stock"
	"github.com/openpharma/exchange-service/internal/stock/dto"
	"github.com/openpharma/exchange-service/pkg/logger"
)

type stockUseCase struct {
	repo   stock.Repository
	logger logger.ZapLogger
}

func NewStockUseCase(repo stock.Repository, log logger.ZapLogger) stock.UseCase {
	return &stockUseCase{repo: repo, logger: log}
}

// ApplyStockDelta reads the lot under a row lock, applies the delta, and
// appends the ledger entry bracketing the change. Insufficient stock leaves
// the lot untouched. The surrounding transaction belongs to the caller.
func (uc *stockUseCase) ApplyStockDelta(ctx context.Context, in *dto.StockDeltaInput) (int, error) {
	lot, err := uc.repo.GetLotForUpdate(ctx, in.TenantID, in.LotID)
	if err != nil {
		return 0, err
	}
	if lot == nil {
		return 0, apperr.New(apperr.KindNotFound, "lot %s not found", in.LotID)
	}

	newQty := lot.Quantity + in.Delta
	if newQty < 0 {
		return 0, apperr.New(apperr.KindInsufficientStock,
			"lot %s has %d units, cannot remove %d", lot.LotNumber, lot.Quantity, -in.Delta)
	}

	now := time.Now()
	if err := uc.repo.SetLotQuantity(ctx, lot.ID, newQty, now); err != nil {
		return 0, err
	}

	delta := in.Delta
	entry := &model.LedgerEntry{
		ID:            uuid.New().String(),
		TenantID:      in.TenantID,
		LotID:         lot.ID,
		ProductID:     lot.ProductID,
		Action:        in.Action,
		Delta:         &delta,
		PreviousValue: float64(lot.Quantity),
		NewValue:      float64(newQty),
		Reason:        in.Reason,
		ActorID:       in.Actor.ID,
		ActorName:     in.Actor.Name,
		ActorEmail:    in.Actor.Email,
		CreatedAt:     now,
	}
	if err := uc.repo.AppendEntry(ctx, entry); err != nil {
		return 0, err
	}

	uc.logger.Debug("stock delta applied",
		zap.String("lot_id", lot.ID),
		zap.Int("delta", in.Delta),
		zap.Int("new_quantity", newQty),
		zap.String("action", string(in.Action)),
	)
	return newQty, nil
}

func (uc *stockUseCase) CreateLotWithEntry(ctx context.Context, in *dto.CreateLotInput) (*model.Lot, error) {
	if in.Quantity <= 0 {
		return nil, apperr.New(apperr.KindInvalidLine, "lot %s: quantity must be positive", in.LotNumber)
	}

	now := time.Now()
	lot := &model.Lot{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		ProductID: in.ProductID,
		LotNumber: in.LotNumber,
		Quantity:  in.Quantity,
		UnitCost:  in.UnitCost,
		UnitPrice: in.UnitPrice,
		ExpiresAt: in.ExpiresAt,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.repo.CreateLot(ctx, lot); err != nil {
		return nil, err
	}

	delta := in.Quantity
	entry := &model.LedgerEntry{
		ID:            uuid.New().String(),
		TenantID:      in.TenantID,
		LotID:         lot.ID,
		ProductID:     in.ProductID,
		Action:        in.Action,
		Delta:         &delta,
		PreviousValue: 0,
		NewValue:      float64(in.Quantity),
		Reason:        in.Reason,
		ActorID:       in.Actor.ID,
		ActorName:     in.Actor.Name,
		ActorEmail:    in.Actor.Email,
		CreatedAt:     now,
	}
	if err := uc.repo.AppendEntry(ctx, entry); err != nil {
		return nil, err
	}
	return lot, nil
}

func (uc *stockUseCase) GetLot(ctx context.Context, tenantID, lotID string) (*model.Lot, error) {
	lot, err := uc.repo.GetLot(ctx, tenantID, lotID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, apperr.New(apperr.KindNotFound, "lot %s not found", lotID)
	}
	return lot, nil
}

func (uc *stockUseCase) ListMovements(ctx context.Context, f *dto.LedgerFilters) ([]model.LedgerEntry, int, error) {
	return uc.repo.ListEntries(ctx, f)
}
