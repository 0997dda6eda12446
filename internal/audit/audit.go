package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/openpharma/exchange-service/internal/model"
)

// Recorder writes the compliance audit trail. Entries are recorded after the
// transition commits; a failed write is logged by the caller, never fatal.
type Recorder interface {
	Record(ctx context.Context, e *model.AuditEntry) error
}

type PGRecorder struct {
	DB *sqlx.DB
}

func NewPGRecorder(db *sqlx.DB) *PGRecorder {
	return &PGRecorder{DB: db}
}

func (r *PGRecorder) Record(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO audit_logs (
            id, tenant_id, module, action, entity_id, entity_name,
            before_state, after_state, actor_id, actor_name, created_at
        )
        VALUES (
            :id, :tenant_id, :module, :action, :entity_id, :entity_name,
            :before_state, :after_state, :actor_id, :actor_name, :created_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, e)
	return errors.Wrap(err, "insert audit entry")
}
