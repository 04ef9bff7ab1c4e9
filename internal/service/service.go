// Package service is the billing core: sub-account onboarding, customer and
// subscription synchronization, webhook processing, the local ledger mirror,
// plan provisioning and revenue metrics.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

const hintCreateAccount = "create the studio payment account first (POST /api/accounts)"

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// requireSubAccount loads the tenant and fails with a precondition error when
// it has not been provisioned on the processor yet.
func requireSubAccount(ctx context.Context, tenants repository.TenantRepository, tenantID string) (*domain.Tenant, string, error) {
	tenant, err := loadTenant(ctx, tenants, tenantID)
	if err != nil {
		return nil, "", err
	}
	if !tenant.HasSubAccount() {
		return nil, "", domain.Precondition("tenant has no payment account", hintCreateAccount)
	}
	return tenant, *tenant.SubAccountID, nil
}

func loadTenant(ctx context.Context, tenants repository.TenantRepository, tenantID string) (*domain.Tenant, error) {
	tenant, err := tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.NotFound("tenant " + tenantID)
	}
	return tenant, nil
}

// notify delivers n and only logs delivery failures; a notification never
// fails a billing operation.
func notify(ctx context.Context, n domain.Notifier, tenantID string, msg domain.Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, tenantID, msg); err != nil {
		slog.Warn("notification failed", "tenant_id", tenantID, "title", msg.Title, "error", err)
	}
}

func valueOr(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}
