package domain

import "time"

// Tenant is a studio: the billing-isolated organization that owns a
// sub-account on the payment processor.
type Tenant struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	OwnerUserID string `db:"owner_user_id" json:"owner_user_id"`
	OwnerEmail  string `db:"owner_email" json:"owner_email"`
	Active      bool   `db:"active" json:"active"`

	// Nil until the account manager provisions the sub-account.
	SubAccountID *string `db:"sub_account_id" json:"sub_account_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasSubAccount reports whether the tenant has been provisioned on the processor.
func (t *Tenant) HasSubAccount() bool {
	return t.SubAccountID != nil && *t.SubAccountID != ""
}

// AccountState is the onboarding state of a tenant's sub-account.
type AccountState string

const (
	AccountUnverified AccountState = "unverified"
	AccountIncomplete AccountState = "incomplete"
	AccountActive     AccountState = "active"
)

// AccountStatus is what getStatus reports for a tenant.
type AccountStatus struct {
	State            AccountState `json:"state"`
	SubAccountID     string       `json:"sub_account_id,omitempty"`
	DetailsSubmitted bool         `json:"details_submitted"`
	ChargesEnabled   bool         `json:"charges_enabled"`
	PayoutsEnabled   bool         `json:"payouts_enabled"`
	DashboardURL     string       `json:"dashboard_url,omitempty"`
}

// OnboardingLink is a short-lived URL the tenant owner follows to finish
// sub-account onboarding.
type OnboardingLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TenantSettings is the per-tenant billing configuration.
type TenantSettings struct {
	// One-time fee appended to a student's first subscription invoice.
	EnrollmentFeePriceID string `db:"enrollment_fee_price_id" json:"enrollment_fee_price_id" yaml:"enrollment_fee_price_id"`
	// Product id of the one-time audition fee; invoices for it are not mirrored.
	AuditionFeeProductID string `db:"audition_fee_product_id" json:"audition_fee_product_id" yaml:"audition_fee_product_id"`
	Currency             string `db:"currency" json:"currency" yaml:"currency"`
}
