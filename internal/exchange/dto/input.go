package dto

import (
	"time"

	"github.com/openpharma/exchange-service/internal/model"
)

// LineInput describes one offered (or counter-offered) article. SourceLotID
// is optional: manually entered items carry no backing lot and never touch
// stock until validation materializes them.
type LineInput struct {
	ProductName string     `json:"product_name"`
	ProductCode *string    `json:"product_code"`
	LotNumber   *string    `json:"lot_number"`
	SourceLotID *string    `json:"source_lot_id"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type CreateExchangeInput struct {
	DestinationEstablishmentID string      `json:"destination_establishment_id"`
	Lines                      []LineInput `json:"lines"`
	Motive                     *string     `json:"motive"`
	Note                       *string     `json:"note"`
}

type RespondInput struct {
	Action        model.ExchangeAction `json:"action"`
	CounterOffers []LineInput          `json:"counter_offers"`
	Reason        *string              `json:"reason"`
}

type ExchangeFilters struct {
	Status   model.Status
	Page     int
	PageSize int
}
