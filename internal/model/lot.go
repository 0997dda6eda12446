package model

import "time"

// Lot is one purchasable batch of a product held by a tenant. Quantity is
// the only mutable numeric state in the subsystem; every change to it is
// paired with exactly one LedgerEntry.
type Lot struct {
	ID         string     `db:"id" json:"id"`
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	ProductID  string     `db:"product_id" json:"product_id"`
	LotNumber  string     `db:"lot_number" json:"lot_number"` // unique per tenant
	Quantity   int        `db:"quantity" json:"quantity"`
	UnitCost   float64    `db:"unit_cost" json:"unit_cost"`
	UnitPrice  float64    `db:"unit_price" json:"unit_price"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
