package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openpharma/exchange-service/internal/model"
	"github.com/openpharma/exchange-service/internal/product"
	"github.com/openpharma/exchange-service/internal/product/dto"
	"github.com/openpharma/exchange-service/pkg/cache"
	"github.com/openpharma/exchange-service/pkg/logger"
	"github.com/openpharma/exchange-service/pkg/postgres"
	"github.com/openpharma/exchange-service/pkg/search"
)

const productIndex = "products"

type productUseCase struct {
	repo   product.Repository
	cache  *cache.RedisClient
	es     *search.Client
	logger logger.ZapLogger
}

func NewProductUseCase(repo product.Repository, cache *cache.RedisClient, es *search.Client, log logger.ZapLogger) product.UseCase {
	return &productUseCase{repo: repo, cache: cache, es: es, logger: log}
}

// FindOrCreate serializes concurrent reconciliations of the same name behind
// a per-(tenant, normalized name) lock; without it two validations racing on
// one product name would both pass the lookup and create duplicates.
func (uc *productUseCase) FindOrCreate(ctx context.Context, in *dto.FindOrCreateInput) (*model.Product, error) {
	normalized := strings.ToLower(strings.TrimSpace(in.Name))
	lockKey := fmt.Sprintf("lock:product:%s:%s", in.TenantID, normalized)
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < 3; i++ {
		ok, err := uc.cache.AcquireLock(ctx, lockKey, lockValue, 5*time.Second)
		if err != nil {
			uc.logger.Error("failed to acquire product lock", zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if acquired {
		defer uc.cache.ReleaseLock(ctx, lockKey, lockValue)
	}
	// Proceed without the lock after the retries: the unique index on
	// (tenant_id, lower(name)) still rejects the duplicate.

	existing, err := uc.repo.FindByName(ctx, in.TenantID, in.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	p := &model.Product{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		TenantID:  in.TenantID,
		Name:      strings.TrimSpace(in.Name),
		Code:      in.Code,
		BasePrice: in.BasePrice,
		IsActive:  true,
	}
	if err := uc.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	// The index write waits for the surrounding transaction: a rolled-back
	// validation must not leave a ghost document behind.
	postgres.OnCommit(ctx, func() {
		go uc.syncToElastic(context.Background(), p)
	})

	return p, nil
}

func (uc *productUseCase) syncToElastic(ctx context.Context, p *model.Product) {
	if uc.es == nil {
		return
	}
	mapping := `{
		"mappings": {
			"properties": {
				"tenant_id": { "type": "keyword" },
				"name": { "type": "text" },
				"code": { "type": "keyword" },
				"base_price": { "type": "double" },
				"created_at": { "type": "date" }
			}
		}
	}`
	_ = uc.es.CreateIndex(ctx, productIndex, mapping)

	if err := uc.es.Index(ctx, productIndex, p.ID, p); err != nil {
		uc.logger.Error("failed to index product", zap.Error(err))
	}
}
