package auth

import (
	"context"

	"github.com/openpharma/exchange-service/internal/apperr"
	"github.com/openpharma/exchange-service/internal/model"
)

// TenantContext is the resolved caller identity: which tenant it acts for and
// what it may do. It is threaded explicitly as a parameter into every
// transition, never read from ambient globals.
type TenantContext struct {
	TenantID    string
	UserID      string
	Name        string
	Email       string
	Permissions PermissionSet
}

// PermissionSet maps module -> allowed actions. A nil set means the upstream
// gateway already enforced access for this caller, i.e. full access.
type PermissionSet map[string]map[string]bool

func (tc *TenantContext) Can(module, action string) bool {
	if tc.Permissions == nil {
		return true
	}
	actions, ok := tc.Permissions[module]
	if !ok {
		return false
	}
	return actions[action] || actions["*"]
}

func (tc *TenantContext) Actor() model.Actor {
	return model.Actor{ID: tc.UserID, Name: tc.Name, Email: tc.Email}
}

type ctxKey struct{}

func WithContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context installed by the transport
// middleware. A missing context is an access failure, not a programming
// error: unauthenticated requests must not reach the use cases.
func FromContext(ctx context.Context) (*TenantContext, error) {
	tc, ok := ctx.Value(ctxKey{}).(*TenantContext)
	if !ok || tc.TenantID == "" {
		return nil, apperr.New(apperr.KindAccessDenied, "no tenant resolved for caller")
	}
	return tc, nil
}
