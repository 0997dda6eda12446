package dto

import (
	"time"

	"github.com/openpharma/exchange-service/internal/model"
)

type StockDeltaInput struct {
	TenantID string
	LotID    string
	Delta    int // negative decrements, positive increments
	Action   model.LedgerAction
	Reason   string
	Actor    model.Actor
}

type CreateLotInput struct {
	TenantID  string
	ProductID string
	LotNumber string
	Quantity  int
	UnitCost  float64
	UnitPrice float64
	ExpiresAt *time.Time
	Action    model.LedgerAction // stock_in for receipts, exchange_in for validated exchanges
	Reason    string
	Actor     model.Actor
}

type LedgerFilters struct {
	TenantID  string
	LotID     string
	Action    model.LedgerAction
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}
