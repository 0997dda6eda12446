package model

// Establishment is a destination a tenant can ship exchanges to. When the
// destination is itself a tenant of the platform, LinkedTenantID resolves it;
// an establishment without a link cannot receive exchanges.
type Establishment struct {
	BaseModel
	TenantID       string  `db:"tenant_id" json:"tenant_id"`
	Name           string  `db:"name" json:"name"`
	LinkedTenantID *string `db:"linked_tenant_id" json:"linked_tenant_id"`
	IsActive       bool    `db:"is_active" json:"is_active"`
}
