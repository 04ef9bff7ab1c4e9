package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

// AccountService manages each tenant's sub-account on the processor.
type AccountService struct {
	tenants    repository.TenantRepository
	gateway    processor.Gateway
	refreshURL string
	returnURL  string
}

// NewAccountService creates an AccountService. refreshURL and returnURL are
// handed to the processor for onboarding links.
func NewAccountService(tenants repository.TenantRepository, gateway processor.Gateway, refreshURL, returnURL string) *AccountService {
	return &AccountService{tenants: tenants, gateway: gateway, refreshURL: refreshURL, returnURL: returnURL}
}

// CreateAccount returns the tenant unchanged when its stored sub-account still
// resolves on the processor. A new one is provisioned only when the stored
// account is missing or deleted; any other lookup failure is returned.
func (s *AccountService) CreateAccount(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	tenant, err := loadTenant(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}

	if tenant.HasSubAccount() {
		acct, err := s.gateway.GetAccount(ctx, *tenant.SubAccountID)
		switch {
		case err == nil && !acct.Deleted:
			return tenant, nil
		case err != nil && !errors.Is(err, processor.ErrResourceMissing):
			return nil, err
		}
		slog.Warn("stored sub-account is not usable, provisioning a new one",
			"tenant_id", tenantID, "sub_account_id", *tenant.SubAccountID, "error", err)
	}

	acct, err := s.gateway.CreateAccount(ctx, processor.AccountRequest{Email: tenant.OwnerEmail, TenantID: tenant.ID})
	if err != nil {
		return nil, err
	}
	if err := s.tenants.SetSubAccountID(ctx, tenant.ID, acct.ID); err != nil {
		slog.Error("sub-account created but not persisted", "tenant_id", tenantID, "sub_account_id", acct.ID, "error", err)
		return nil, err
	}
	slog.Info("sub-account provisioned", "tenant_id", tenantID, "sub_account_id", acct.ID)

	tenant.SubAccountID = &acct.ID
	return tenant, nil
}

func (s *AccountService) CreateOnboardingLink(ctx context.Context, tenantID string) (*domain.OnboardingLink, error) {
	_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	link, err := s.gateway.CreateAccountLink(ctx, acct, s.refreshURL, s.returnURL)
	if err != nil {
		return nil, err
	}
	return &domain.OnboardingLink{URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}

// GetStatus reports the onboarding state. The dashboard link of an active
// account is best effort.
func (s *AccountService) GetStatus(ctx context.Context, tenantID string) (*domain.AccountStatus, error) {
	tenant, err := loadTenant(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.HasSubAccount() {
		return &domain.AccountStatus{State: domain.AccountUnverified}, nil
	}

	acct, err := s.gateway.GetAccount(ctx, *tenant.SubAccountID)
	if err != nil {
		return nil, err
	}
	status := &domain.AccountStatus{
		State:            accountState(acct),
		SubAccountID:     acct.ID,
		DetailsSubmitted: acct.DetailsSubmitted,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
	if status.State == domain.AccountActive {
		url, err := s.gateway.CreateLoginLink(ctx, acct.ID)
		if err != nil {
			slog.Warn("dashboard link unavailable", "tenant_id", tenantID, "error", err)
		} else {
			status.DashboardURL = url
		}
	}
	return status, nil
}

func accountState(a *processor.Account) domain.AccountState {
	switch {
	case a.ChargesEnabled && a.PayoutsEnabled:
		return domain.AccountActive
	case a.DetailsSubmitted:
		return domain.AccountIncomplete
	}
	return domain.AccountUnverified
}
