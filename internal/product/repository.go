package product

import (
	"context"

	"github.com/openpharma/exchange-service/internal/model"
)

type Repository interface {
	// FindByName matches case-insensitively on the trimmed name.
	FindByName(ctx context.Context, tenantID, name string) (*model.Product, error)
	Create(ctx context.Context, p *model.Product) error
}
