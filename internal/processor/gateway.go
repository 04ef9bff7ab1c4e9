// Package processor is the boundary to the external payment processor. Every
// remote field the billing core consumes is copied into one of the types below;
// nothing outside this package touches stripe-go types.
package processor

import (
	"context"
	"errors"
	"time"
)

// ErrResourceMissing is joined into a processor error when the requested
// object does not exist (or no longer exists) on the processor.
var ErrResourceMissing = errors.New("resource missing")

// Gateway is the set of processor calls the billing core makes. Every
// accountID argument is the tenant's sub-account; calls are executed on
// behalf of it.
type Gateway interface {
	CreateAccount(ctx context.Context, req AccountRequest) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error)
	CreateLoginLink(ctx context.Context, accountID string) (string, error)

	CreateCustomer(ctx context.Context, accountID string, req CustomerRequest) (*Customer, error)
	GetCustomer(ctx context.Context, accountID, customerID string) (*Customer, error)
	// SetDefaultPaymentMethod attaches the instrument to the customer and makes
	// it the default for invoices.
	SetDefaultPaymentMethod(ctx context.Context, accountID, customerID, paymentMethodID string) error

	CreatePrice(ctx context.Context, accountID string, req PriceRequest) (*Price, error)

	CreateSubscription(ctx context.Context, accountID string, req SubscriptionRequest) (*Subscription, error)
	GetSubscription(ctx context.Context, accountID, subscriptionID string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, accountID, subscriptionID string, req SubscriptionUpdate) (*Subscription, error)

	ListCustomers(ctx context.Context, accountID string) ([]Customer, error)
	ListSubscriptions(ctx context.Context, accountID, customerID string) ([]Subscription, error)
	ListInvoices(ctx context.Context, accountID string, since time.Time) ([]Invoice, error)
	CountEvents(ctx context.Context, accountID, eventType string, since time.Time) (int, error)
}

type AccountRequest struct {
	Email    string
	TenantID string
}

type Account struct {
	ID               string
	Email            string
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
	Deleted          bool
	Metadata         map[string]string
}

type AccountLink struct {
	URL       string
	ExpiresAt time.Time
}

type CustomerRequest struct {
	Email           string
	Name            string
	PaymentMethodID string
	Metadata        map[string]string
}

type Customer struct {
	ID                     string
	Email                  string
	Deleted                bool
	DefaultPaymentMethodID string
	Metadata               map[string]string
}

type PriceRequest struct {
	ProductName string
	// UnitAmount is in minor currency units.
	UnitAmount int64
	Currency   string
	Interval   string
}

// Interval values of a recurring price.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

type Price struct {
	ID       string
	Nickname string
	// UnitAmount is in minor units. HasUnitAmount is false for prices whose
	// amount is not a fixed number (tiered, custom).
	UnitAmount    int64
	HasUnitAmount bool
	// UnitAmountDecimal is in minor units and may carry sub-cent precision;
	// zero when the processor omitted it.
	UnitAmountDecimal float64
	Recurring         bool
	Interval          string
	IntervalCount     int64
	ProductID         string
	ProductName       string
}

type SubscriptionItem struct {
	ID       string
	Quantity int64
	Price    Price
}

type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CancelAtPeriodEnd  bool
	StartDate          time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CanceledAt         time.Time
	Items              []SubscriptionItem
	Metadata           map[string]string
}

// PrimaryPrice returns the price of the first item, the one plan changes swap.
func (s *Subscription) PrimaryPrice() (SubscriptionItem, bool) {
	if len(s.Items) == 0 {
		return SubscriptionItem{}, false
	}
	return s.Items[0], true
}

type SubscriptionRequest struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	// AddInvoicePriceIDs are one-time prices billed on the first invoice.
	AddInvoicePriceIDs []string
	CancelAt           time.Time
	Metadata           map[string]string
}

type SubscriptionUpdate struct {
	ItemID            string
	PriceID           string
	Prorate           bool
	CancelAtPeriodEnd *bool
}

// Billing reasons of an invoice.
const (
	BillingSubscriptionCycle  = "subscription_cycle"
	BillingSubscriptionCreate = "subscription_create"
)

type InvoiceLine struct {
	ID          string
	Description string
	Quantity    int64
	// Amount is in minor units.
	Amount int64
	Price  *Price
}

type Invoice struct {
	ID              string
	Number          string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	BillingReason   string
	Status          string
	Created         time.Time
	DueDate         time.Time
	PaidAt          time.Time
	Currency        string
	// Amounts are in minor units.
	Subtotal   int64
	Tax        int64
	Total      int64
	AmountPaid int64
	AmountDue  int64
	Lines      []InvoiceLine
	Metadata   map[string]string
}

// Event is a verified processor event envelope.
type Event struct {
	ID      string
	Type    string
	Account string
	Created time.Time
	// Object is the raw JSON of the event's data object.
	Object []byte
	// Payload is the full envelope as received.
	Payload []byte
}
