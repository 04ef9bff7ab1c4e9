package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MembershipPlan struct {
	ID             string          `db:"id" json:"id"`
	TenantID       string          `db:"tenant_id" json:"tenant_id"`
	Name           string          `db:"name" json:"name"`
	Description    string          `db:"description" json:"description,omitempty"`
	MonthlyPrice   decimal.Decimal `db:"monthly_price" json:"monthly_price"`
	DurationMonths *int            `db:"duration_months" json:"duration_months,omitempty"`
	PriceID        string          `db:"external_price_id" json:"price_id"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// PlanInput is the payload accepted when creating a plan. PriceID is optional;
// a processor price is created when it is empty.
type PlanInput struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	MonthlyPrice   decimal.Decimal `json:"monthly_price"`
	DurationMonths *int            `json:"duration_months,omitempty"`
	PriceID        string          `json:"price_id,omitempty"`
}
