package establishment

import (
	"context"

	"github.com/openpharma/exchange-service/internal/model"
)

type Repository interface {
	// GetByID only returns establishments belonging to tenantID.
	GetByID(ctx context.Context, tenantID, id string) (*model.Establishment, error)
}
