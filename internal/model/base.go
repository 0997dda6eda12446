package model

import "time"

type BaseModel struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Actor identifies who performed a mutation. Resolved from the caller's
// tenant context and denormalized onto ledger and audit rows so history
// survives account changes.
type Actor struct {
	ID    string
	Name  string
	Email string
}
