package exchange

import (
	"context"

	"github.com/openpharma/exchange-service/internal/auth"
	"github.com/openpharma/exchange-service/internal/exchange/dto"
	"github.com/openpharma/exchange-service/internal/model"
)

// Module is the permission module every entry point checks before mutating.
const Module = "exchanges"

type UseCase interface {
	CreateExchange(ctx context.Context, tc *auth.TenantContext, in *dto.CreateExchangeInput) (*model.Exchange, error)
	RespondToExchange(ctx context.Context, tc *auth.TenantContext, id string, in *dto.RespondInput) (*model.Exchange, error)
	DeleteExchange(ctx context.Context, tc *auth.TenantContext, id string) error

	GetExchange(ctx context.Context, tc *auth.TenantContext, id string) (*model.Exchange, error)
	ListOutgoing(ctx context.Context, tc *auth.TenantContext, f *dto.ExchangeFilters) ([]model.Exchange, int, error)
	ListIncoming(ctx context.Context, tc *auth.TenantContext, f *dto.ExchangeFilters) ([]model.Exchange, int, error)
}
