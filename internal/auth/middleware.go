package auth

import (
	"net/http"
	"strings"
)

// TenantMiddleware builds the tenant context from the identity headers set by
// the upstream gateway after session resolution. Requests without a tenant
// are rejected before they reach any use case.
//
// X-Permissions carries "module:action" pairs separated by commas; an absent
// header means the gateway granted the caller full access.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-Id")
		if tenantID == "" {
			http.Error(w, `{"error":{"kind":"access_denied","message":"missing tenant"}}`, http.StatusUnauthorized)
			return
		}

		tc := &TenantContext{
			TenantID:    tenantID,
			UserID:      r.Header.Get("X-User-Id"),
			Name:        r.Header.Get("X-User-Name"),
			Email:       r.Header.Get("X-User-Email"),
			Permissions: parsePermissions(r.Header.Get("X-Permissions")),
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func parsePermissions(header string) PermissionSet {
	if header == "" {
		return nil
	}
	set := PermissionSet{}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		module, action := parts[0], parts[1]
		if set[module] == nil {
			set[module] = map[string]bool{}
		}
		set[module][action] = true
	}
	return set
}
