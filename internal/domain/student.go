package domain

import "time"

// SubscriptionStatus mirrors the processor's subscription status values.
type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPaused            SubscriptionStatus = "paused"
)

// ParseSubscriptionStatus maps a remote status string; unknown values yield false.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch st := SubscriptionStatus(s); st {
	case StatusActive, StatusPastDue, StatusUnpaid, StatusCanceled, StatusIncomplete,
		StatusIncompleteExpired, StatusTrialing, StatusPaused:
		return st, true
	}
	return "", false
}

// Student is the billable subject. The subscription fields are written only by
// the subscription synchronizer and the webhook processor.
type Student struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Name     string `db:"name" json:"name"`
	Email    string `db:"email" json:"email"`

	CustomerID     *string             `db:"customer_id" json:"customer_id,omitempty"`
	SubscriptionID *string             `db:"subscription_id" json:"subscription_id,omitempty"`
	Status         *SubscriptionStatus `db:"subscription_status" json:"subscription_status,omitempty"`

	PlanID          *string    `db:"membership_plan_id" json:"membership_plan_id,omitempty"`
	PlanName        *string    `db:"membership_plan_name" json:"membership_plan_name,omitempty"`
	MembershipStart *time.Time `db:"membership_start_date" json:"membership_start_date,omitempty"`
	RenewalDate     *time.Time `db:"membership_renewal_date" json:"membership_renewal_date,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Student) HasCustomer() bool {
	return s.CustomerID != nil && *s.CustomerID != ""
}

func (s *Student) HasSubscription() bool {
	return s.SubscriptionID != nil && *s.SubscriptionID != ""
}

// CalendarDate truncates t to a UTC calendar date.
func CalendarDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CancellationResult describes a cancel-at-period-end request.
type CancellationResult struct {
	SubscriptionID    string             `json:"subscription_id"`
	Status            SubscriptionStatus `json:"status"`
	CancelAtPeriodEnd bool               `json:"cancel_at_period_end"`
	ExpiresOn         time.Time          `json:"expires_on"`
}
