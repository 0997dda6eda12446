package model

// Product is the catalog entry a lot belongs to. Validate materializes
// counter-offered goods by reconciling on (tenant, normalized name), so the
// repository enforces case-insensitive name uniqueness per tenant.
type Product struct {
	BaseModel
	TenantID  string  `db:"tenant_id" json:"tenant_id"`
	Name      string  `db:"name" json:"name"`
	Code      *string `db:"code" json:"code"`
	BasePrice float64 `db:"base_price" json:"base_price"`
	IsActive  bool    `db:"is_active" json:"is_active"`
}
