package exchange

import (
	"context"

	"github.com/openpharma/exchange-service/internal/exchange/dto"
	"github.com/openpharma/exchange-service/internal/model"
)

type Repository interface {
	// NextReference atomically bumps and returns the tenant's exchange
	// sequence. Must run inside the transition's transaction.
	NextReference(ctx context.Context, tenantID string) (int64, error)

	Create(ctx context.Context, ex *model.Exchange) error
	CreateLines(ctx context.Context, lines []model.ExchangeLine) error
	CreateCounterLines(ctx context.Context, lines []model.CounterOfferLine) error

	GetByID(ctx context.Context, id string) (*model.Exchange, error)
	// GetByIDForUpdate locks the record row so two concurrent transitions on
	// the same exchange serialize on its status.
	GetByIDForUpdate(ctx context.Context, id string) (*model.Exchange, error)
	GetLines(ctx context.Context, exchangeID string) ([]model.ExchangeLine, error)
	GetCounterLines(ctx context.Context, exchangeID string) ([]model.CounterOfferLine, error)

	Update(ctx context.Context, ex *model.Exchange) error

	// FindOutgoing lists exchanges a tenant initiated; FindIncoming is keyed
	// on the resolved recipient tenant id, not the establishment entry, so
	// renaming or deactivating the catalog entry never hides a negotiation.
	FindOutgoing(ctx context.Context, tenantID string, f *dto.ExchangeFilters) ([]model.Exchange, int, error)
	FindIncoming(ctx context.Context, recipientTenantID string, f *dto.ExchangeFilters) ([]model.Exchange, int, error)
}
