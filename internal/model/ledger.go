package model

import "time"

// LedgerAction enumerates why a lot changed. Quantity actions carry a delta;
// price/threshold/expiry changes record only the before/after values.
type LedgerAction string

const (
	ActionStockIn         LedgerAction = "stock_in"
	ActionStockOut        LedgerAction = "stock_out"
	ActionAdjustment      LedgerAction = "adjustment"
	ActionReturn          LedgerAction = "return"
	ActionExchangeOut     LedgerAction = "exchange_out"
	ActionExchangeIn      LedgerAction = "exchange_in"
	ActionPriceChange     LedgerAction = "price_change"
	ActionThresholdChange LedgerAction = "threshold_change"
	ActionExpiryChange    LedgerAction = "expiry_change"
)

// LedgerEntry is one append-only record of a lot mutation. Entries are never
// updated or deleted; restoration after a refused or cancelled exchange is
// expressed as new forward entries, not retroactive edits.
type LedgerEntry struct {
	ID            string       `db:"id" json:"id"`
	TenantID      string       `db:"tenant_id" json:"tenant_id"`
	LotID         string       `db:"lot_id" json:"lot_id"`
	ProductID     string       `db:"product_id" json:"product_id"`
	Action        LedgerAction `db:"action" json:"action"`
	Delta         *int         `db:"delta" json:"delta"` // nil for non-quantity actions
	PreviousValue float64      `db:"previous_value" json:"previous_value"`
	NewValue      float64      `db:"new_value" json:"new_value"`
	Reason        string       `db:"reason" json:"reason"`
	ActorID       string       `db:"actor_id" json:"actor_id"`
	ActorName     string       `db:"actor_name" json:"actor_name"`
	ActorEmail    string       `db:"actor_email" json:"actor_email"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}
