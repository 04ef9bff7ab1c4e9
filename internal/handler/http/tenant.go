package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"

	// TenantHeader carries the caller's tenant on every /api request.
	TenantHeader = "X-Tenant-ID"
)

// TenantFromContext returns the tenant set by RequireTenant, or "".
func TenantFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// RequireTenant rejects requests without a tenant header. Authenticating the
// caller against that tenant is the gateway's job.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenantID == "" {
			respondWithError(w, http.StatusBadRequest, "missing tenant ID in header "+TenantHeader, "")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), tenantID)))
	})
}
