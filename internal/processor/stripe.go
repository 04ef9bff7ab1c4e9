package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

var processorFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_processor_failures_total",
		Help: "Failed calls to the payment processor, by operation.",
	},
	[]string{"operation"},
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey  string
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint (stripe-mock, tests).
	BaseURL string
}

// StripeGateway implements Gateway with Stripe Connect. Every tenant-scoped
// call carries the Stripe-Account header of the tenant's connected account,
// so customers, prices and subscriptions live on (and pay out to) it.
type StripeGateway struct {
	api *client.API
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway with one backend per Stripe API host.
// Network retries are disabled.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	backend := func(t stripe.SupportedBackend) stripe.Backend {
		bc := &stripe.BackendConfig{
			HTTPClient: cfg.HTTPClient,
			// Retries belong to the caller or to webhook redelivery.
			MaxNetworkRetries: stripe.Int64(0),
		}
		if cfg.BaseURL != "" {
			bc.URL = stripe.String(cfg.BaseURL)
		}
		return stripe.GetBackendWithConfig(t, bc)
	}
	backends := &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	}
	return &StripeGateway{api: client.New(cfg.SecretKey, backends)}
}

func wrap(op string, err error) error {
	processorFailures.WithLabelValues(op).Inc()
	var se *stripe.Error
	if errors.As(err, &se) {
		slog.Error("stripe request failed", "operation", op, "status", se.HTTPStatusCode, "code", se.Code, "error", se.Msg)
		if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing {
			err = errors.Join(ErrResourceMissing, err)
		}
		return domain.ExternalService(fmt.Sprintf("%s: %s", op, se.Code), err)
	}
	slog.Error("stripe request failed", "operation", op, "error", err)
	return domain.ExternalService(op, err)
}

func (g *StripeGateway) CreateAccount(ctx context.Context, req AccountRequest) (*Account, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(req.Email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	params.AddMetadata("tenant_id", req.TenantID)

	a, err := g.api.Accounts.New(params)
	if err != nil {
		return nil, wrap("create_account", err)
	}
	return accountFromStripe(a), nil
}

func (g *StripeGateway) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	a, err := g.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrap("get_account", err)
	}
	return accountFromStripe(a), nil
}

func (g *StripeGateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*AccountLink, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	l, err := g.api.AccountLinks.New(params)
	if err != nil {
		return nil, wrap("create_account_link", err)
	}
	return &AccountLink{URL: l.URL, ExpiresAt: unixTime(l.ExpiresAt)}, nil
}

func (g *StripeGateway) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx
	l, err := g.api.LoginLinks.New(params)
	if err != nil {
		return "", wrap("create_login_link", err)
	}
	return l.URL, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, accountID string, req CustomerRequest) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
		params.InvoiceSettings = &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	c, err := g.api.Customers.New(params)
	if err != nil {
		return nil, wrap("create_customer", err)
	}
	return customerFromStripe(c), nil
}

func (g *StripeGateway) GetCustomer(ctx context.Context, accountID, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	c, err := g.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, wrap("get_customer", err)
	}
	return customerFromStripe(c), nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, accountID, customerID, paymentMethodID string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	attach.SetStripeAccount(accountID)
	if _, err := g.api.PaymentMethods.Attach(paymentMethodID, attach); err != nil {
		return wrap("attach_payment_method", err)
	}

	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := g.api.Customers.Update(customerID, params); err != nil {
		return wrap("set_default_payment_method", err)
	}
	return nil
}

func (g *StripeGateway) CreatePrice(ctx context.Context, accountID string, req PriceRequest) (*Price, error) {
	params := &stripe.PriceParams{
		Currency:   stripe.String(req.Currency),
		UnitAmount: stripe.Int64(req.UnitAmount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(req.Interval),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(req.ProductName),
		},
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	p, err := g.api.Prices.New(params)
	if err != nil {
		return nil, wrap("create_price", err)
	}
	out := priceFromStripe(p)
	if out.ProductName == "" {
		out.ProductName = req.ProductName
	}
	return &out, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, accountID string, req SubscriptionRequest) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
	}
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}
	// One-time items ride on the subscription's first invoice in the same call.
	for _, priceID := range req.AddInvoicePriceIDs {
		params.AddInvoiceItems = append(params.AddInvoiceItems, &stripe.SubscriptionAddInvoiceItemParams{
			Price: stripe.String(priceID),
		})
	}
	if !req.CancelAt.IsZero() {
		params.CancelAt = stripe.Int64(req.CancelAt.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("items.data.price.product")
	params.Context = ctx
	params.SetStripeAccount(accountID)

	s, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, wrap("create_subscription", err)
	}
	return SubscriptionFromStripe(s), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, accountID, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("items.data.price.product")
	params.Context = ctx
	params.SetStripeAccount(accountID)
	s, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrap("get_subscription", err)
	}
	return SubscriptionFromStripe(s), nil
}

func (g *StripeGateway) UpdateSubscription(ctx context.Context, accountID, subscriptionID string, req SubscriptionUpdate) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	if req.PriceID != "" {
		params.Items = []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(req.ItemID), Price: stripe.String(req.PriceID)},
		}
		if req.Prorate {
			params.ProrationBehavior = stripe.String("create_prorations")
		} else {
			params.ProrationBehavior = stripe.String("none")
		}
	}
	if req.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripe.Bool(*req.CancelAtPeriodEnd)
	}
	params.AddExpand("items.data.price.product")
	params.Context = ctx
	params.SetStripeAccount(accountID)

	s, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, wrap("update_subscription", err)
	}
	return SubscriptionFromStripe(s), nil
}

func (g *StripeGateway) ListCustomers(ctx context.Context, accountID string) ([]Customer, error) {
	params := &stripe.CustomerListParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	var out []Customer
	it := g.api.Customers.List(params)
	for it.Next() {
		out = append(out, *customerFromStripe(it.Customer()))
	}
	if err := it.Err(); err != nil {
		return nil, wrap("list_customers", err)
	}
	return out, nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, accountID, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	var out []Subscription
	it := g.api.Subscriptions.List(params)
	for it.Next() {
		out = append(out, *SubscriptionFromStripe(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, wrap("list_subscriptions", err)
	}
	// Product expansion inside a list exceeds the expand depth limit, so
	// names are fetched once per product.
	names := map[string]string{}
	for i := range out {
		for j := range out[i].Items {
			p := &out[i].Items[j].Price
			if p.ProductID == "" || p.ProductName != "" {
				continue
			}
			name, ok := names[p.ProductID]
			if !ok {
				name = g.productName(ctx, accountID, p.ProductID)
				names[p.ProductID] = name
			}
			p.ProductName = name
		}
	}
	return out, nil
}

// productName is best effort; plan mix falls back to the price nickname.
func (g *StripeGateway) productName(ctx context.Context, accountID, productID string) string {
	params := &stripe.ProductParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	p, err := g.api.Products.Get(productID, params)
	if err != nil {
		slog.Warn("stripe product lookup failed", "product_id", productID, "error", err)
		return ""
	}
	return p.Name
}

func (g *StripeGateway) ListInvoices(ctx context.Context, accountID string, since time.Time) ([]Invoice, error) {
	params := &stripe.InvoiceListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	var out []Invoice
	it := g.api.Invoices.List(params)
	for it.Next() {
		out = append(out, *InvoiceFromStripe(it.Invoice()))
	}
	if err := it.Err(); err != nil {
		return nil, wrap("list_invoices", err)
	}
	return out, nil
}

func (g *StripeGateway) CountEvents(ctx context.Context, accountID, eventType string, since time.Time) (int, error) {
	params := &stripe.EventListParams{
		Type:         stripe.String(eventType),
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	n := 0
	it := g.api.Events.List(params)
	for it.Next() {
		n++
	}
	if err := it.Err(); err != nil {
		return 0, wrap("list_events", err)
	}
	return n, nil
}
