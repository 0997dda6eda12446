package model

import "time"

// AuditEntry is the generic "who did what" compliance record, distinct from
// the stock ledger. One entry is written per exchange transition.
type AuditEntry struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	Module     string    `db:"module" json:"module"`
	Action     string    `db:"action" json:"action"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	EntityName string    `db:"entity_name" json:"entity_name"`
	Before     *string   `db:"before_state" json:"before_state"`
	After      *string   `db:"after_state" json:"after_state"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorName  string    `db:"actor_name" json:"actor_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
