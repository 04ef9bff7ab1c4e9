package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// PlanRepository stores membership plans and their processor price ids.
type PlanRepository interface {
	Create(ctx context.Context, p domain.MembershipPlan) (*domain.MembershipPlan, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.MembershipPlan, error)
	ListByTenant(ctx context.Context, tenantID string) ([]domain.MembershipPlan, error)
	// FindByExternalPriceID returns nil, nil when no local plan uses the price.
	FindByExternalPriceID(ctx context.Context, tenantID, priceID string) (*domain.MembershipPlan, error)
}

type planRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a PlanRepository backed by db.
func NewPlanRepository(db *sqlx.DB) PlanRepository {
	return &planRepository{db: db}
}

const planColumns = `id, tenant_id, name, description, monthly_price, duration_months, external_price_id, created_at`

func (r *planRepository) Create(ctx context.Context, p domain.MembershipPlan) (*domain.MembershipPlan, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO membership_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.TenantID, p.Name, p.Description, p.MonthlyPrice, p.DurationMonths, p.PriceID, p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *planRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.MembershipPlan, error) {
	return r.getOne(ctx, `SELECT `+planColumns+` FROM membership_plans WHERE tenant_id = ? AND id = ?`, tenantID, id)
}

func (r *planRepository) FindByExternalPriceID(ctx context.Context, tenantID, priceID string) (*domain.MembershipPlan, error) {
	return r.getOne(ctx, `SELECT `+planColumns+` FROM membership_plans WHERE tenant_id = ? AND external_price_id = ?`, tenantID, priceID)
}

func (r *planRepository) getOne(ctx context.Context, query string, args ...any) (*domain.MembershipPlan, error) {
	var p domain.MembershipPlan
	err := r.db.GetContext(ctx, &p, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *planRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.MembershipPlan, error) {
	plans := []domain.MembershipPlan{}
	err := r.db.SelectContext(ctx, &plans, r.db.Rebind(`
		SELECT `+planColumns+` FROM membership_plans WHERE tenant_id = ? ORDER BY name`), tenantID)
	return plans, err
}
