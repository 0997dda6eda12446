package product

import (
	"context"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/product/dto"
)

type UseCase interface {
	// FindOrCreate reconciles an exchange line onto the tenant's catalog by
	// case-insensitive name, creating the product when no match exists.
	FindOrCreate(ctx context.Context, in *dto.FindOrCreateInput) (*model.Product, error)
}
