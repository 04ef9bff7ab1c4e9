package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

// PlanService manages membership plans and provisions their processor prices.
type PlanService struct {
	tenants         repository.TenantRepository
	plans           repository.PlanRepository
	settings        domain.SettingsStore
	gateway         processor.Gateway
	defaultCurrency string
}

// NewPlanService creates a PlanService. defaultCurrency applies to tenants
// without a configured currency.
func NewPlanService(tenants repository.TenantRepository, plans repository.PlanRepository, settings domain.SettingsStore, gateway processor.Gateway, defaultCurrency string) *PlanService {
	return &PlanService{tenants: tenants, plans: plans, settings: settings, gateway: gateway, defaultCurrency: defaultCurrency}
}

// CreatePlan stores a plan. Without a price id a monthly recurring price named
// after the plan is created on the tenant's sub-account.
func (s *PlanService) CreatePlan(ctx context.Context, tenantID string, in domain.PlanInput) (*domain.MembershipPlan, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, domain.Validation("name is required")
	}
	if !in.MonthlyPrice.IsPositive() {
		return nil, domain.Validation("monthly_price must be greater than zero")
	}
	if in.DurationMonths != nil && *in.DurationMonths <= 0 {
		return nil, domain.Validation("duration_months must be positive when set")
	}

	priceID := strings.TrimSpace(in.PriceID)
	if priceID == "" {
		_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
		if err != nil {
			return nil, err
		}
		settings, err := s.settings.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		currency := settings.Currency
		if currency == "" {
			currency = s.defaultCurrency
		}
		price, err := s.gateway.CreatePrice(ctx, acct, processor.PriceRequest{
			ProductName: in.Name,
			UnitAmount:  in.MonthlyPrice.Shift(2).Round(0).IntPart(),
			Currency:    currency,
			Interval:    processor.IntervalMonth,
		})
		if err != nil {
			return nil, err
		}
		priceID = price.ID
		slog.Info("plan price created", "tenant_id", tenantID, "price_id", priceID)
	} else if _, err := loadTenant(ctx, s.tenants, tenantID); err != nil {
		return nil, err
	}

	return s.plans.Create(ctx, domain.MembershipPlan{
		TenantID:       tenantID,
		Name:           in.Name,
		Description:    in.Description,
		MonthlyPrice:   in.MonthlyPrice.Round(2),
		DurationMonths: in.DurationMonths,
		PriceID:        priceID,
	})
}

func (s *PlanService) ListPlans(ctx context.Context, tenantID string) ([]domain.MembershipPlan, error) {
	return s.plans.ListByTenant(ctx, tenantID)
}
