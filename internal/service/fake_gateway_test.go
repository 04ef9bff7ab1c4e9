package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// fakeGateway is an in-memory processor. Calls are recorded for assertions.
type fakeGateway struct {
	mu  sync.Mutex
	seq int

	accounts  map[string]*processor.Account
	customers map[string]*processor.Customer
	subs      map[string]*processor.Subscription
	prices    map[string]processor.Price
	invoices  []processor.Invoice
	deleted   int

	created       []processor.SubscriptionRequest
	updates       []processor.SubscriptionUpdate
	defaultPMs    []string
	newCustomers  []processor.CustomerRequest
	createdPrices []processor.PriceRequest

	loginLinkErr  error
	getAccountErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		accounts:  map[string]*processor.Account{},
		customers: map[string]*processor.Customer{},
		subs:      map[string]*processor.Subscription{},
		prices:    map[string]processor.Price{},
	}
}

var _ processor.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func notFound(op string) error {
	return domain.ExternalService(op+": resource_missing", errors.Join(processor.ErrResourceMissing, errors.New("no such object")))
}

func monthly(id, product string, cents int64) processor.Price {
	return processor.Price{
		ID: id, UnitAmount: cents, HasUnitAmount: true, UnitAmountDecimal: float64(cents),
		Recurring: true, Interval: processor.IntervalMonth, IntervalCount: 1, ProductName: product,
	}
}

func cloneSub(s *processor.Subscription) *processor.Subscription {
	c := *s
	c.Items = append([]processor.SubscriptionItem(nil), s.Items...)
	return &c
}

func (g *fakeGateway) CreateAccount(_ context.Context, req processor.AccountRequest) (*processor.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a := &processor.Account{ID: g.nextID("acct"), Email: req.Email, Metadata: map[string]string{"tenant_id": req.TenantID}}
	g.accounts[a.ID] = a
	return a, nil
}

func (g *fakeGateway) GetAccount(_ context.Context, id string) (*processor.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getAccountErr != nil {
		return nil, g.getAccountErr
	}
	a, ok := g.accounts[id]
	if !ok {
		return nil, notFound("get_account")
	}
	c := *a
	return &c, nil
}

func (g *fakeGateway) CreateAccountLink(_ context.Context, acct, _, _ string) (*processor.AccountLink, error) {
	return &processor.AccountLink{URL: "https://connect.test/setup/" + acct, ExpiresAt: testNow.Add(5 * time.Minute)}, nil
}

func (g *fakeGateway) CreateLoginLink(_ context.Context, acct string) (string, error) {
	if g.loginLinkErr != nil {
		return "", g.loginLinkErr
	}
	return "https://dashboard.test/" + acct, nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, _ string, req processor.CustomerRequest) (*processor.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := &processor.Customer{ID: g.nextID("cus"), Email: req.Email, DefaultPaymentMethodID: req.PaymentMethodID, Metadata: req.Metadata}
	g.customers[c.ID] = c
	g.newCustomers = append(g.newCustomers, req)
	cp := *c
	return &cp, nil
}

func (g *fakeGateway) GetCustomer(_ context.Context, _, id string) (*processor.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[id]
	if !ok {
		return nil, notFound("get_customer")
	}
	cp := *c
	return &cp, nil
}

func (g *fakeGateway) SetDefaultPaymentMethod(_ context.Context, _, customerID, pm string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.customers[customerID]
	if !ok {
		return notFound("set_default_payment_method")
	}
	c.DefaultPaymentMethodID = pm
	g.defaultPMs = append(g.defaultPMs, pm)
	return nil
}

func (g *fakeGateway) CreatePrice(_ context.Context, _ string, req processor.PriceRequest) (*processor.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := monthly(g.nextID("price"), req.ProductName, req.UnitAmount)
	g.prices[p.ID] = p
	g.createdPrices = append(g.createdPrices, req)
	return &p, nil
}

func (g *fakeGateway) price(id string) processor.Price {
	if p, ok := g.prices[id]; ok {
		return p
	}
	return monthly(id, "", 5000)
}

func (g *fakeGateway) CreateSubscription(_ context.Context, _ string, req processor.SubscriptionRequest) (*processor.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := &processor.Subscription{
		ID:                 g.nextID("sub"),
		CustomerID:         req.CustomerID,
		Status:             "active",
		StartDate:          testNow,
		CurrentPeriodStart: testNow,
		CurrentPeriodEnd:   testNow.AddDate(0, 1, 0),
		Items:              []processor.SubscriptionItem{{ID: g.nextID("si"), Quantity: 1, Price: g.price(req.PriceID)}},
		Metadata:           req.Metadata,
	}
	g.subs[s.ID] = s
	g.created = append(g.created, req)
	return cloneSub(s), nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, _, id string) (*processor.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subs[id]
	if !ok {
		return nil, notFound("get_subscription")
	}
	return cloneSub(s), nil
}

func (g *fakeGateway) UpdateSubscription(_ context.Context, _, id string, req processor.SubscriptionUpdate) (*processor.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.subs[id]
	if !ok {
		return nil, notFound("update_subscription")
	}
	if req.PriceID != "" {
		for i := range s.Items {
			if s.Items[i].ID == req.ItemID {
				s.Items[i].Price = g.price(req.PriceID)
			}
		}
	}
	if req.CancelAtPeriodEnd != nil {
		s.CancelAtPeriodEnd = *req.CancelAtPeriodEnd
	}
	g.updates = append(g.updates, req)
	return cloneSub(s), nil
}

func (g *fakeGateway) ListCustomers(context.Context, string) ([]processor.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]processor.Customer, 0, len(g.customers))
	for _, c := range g.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGateway) ListSubscriptions(_ context.Context, _, customerID string) ([]processor.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []processor.Subscription
	for _, s := range g.subs {
		if s.CustomerID == customerID {
			out = append(out, *cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGateway) ListInvoices(context.Context, string, time.Time) ([]processor.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]processor.Invoice(nil), g.invoices...), nil
}

func (g *fakeGateway) CountEvents(_ context.Context, _, eventType string, _ time.Time) (int, error) {
	if eventType != processor.EventSubscriptionDeleted {
		return 0, nil
	}
	return g.deleted, nil
}

// testEnv is a migrated SQLite store with one provisioned tenant on acct_1.
type testEnv struct {
	db            *sqlx.DB
	tenants       repository.TenantRepository
	students      repository.StudentRepository
	plans         repository.PlanRepository
	ledger        repository.LedgerRepository
	events        repository.WebhookEventRepository
	notifications repository.NotificationRepository
	settings      repository.SettingsRepository
	gw            *fakeGateway
	tenant        *domain.Tenant
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.Open("sqlite3", filepath.Join(t.TempDir(), "billing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(db))

	e := &testEnv{
		db:            db,
		tenants:       repository.NewTenantRepository(db),
		students:      repository.NewStudentRepository(db),
		plans:         repository.NewPlanRepository(db),
		ledger:        repository.NewLedgerRepository(db),
		events:        repository.NewWebhookEventRepository(db),
		notifications: repository.NewNotificationRepository(db),
		settings:      repository.NewSettingsRepository(db),
		gw:            newFakeGateway(),
	}
	e.tenant = e.addTenant(t, "acct_1")
	e.gw.accounts["acct_1"] = &processor.Account{ID: "acct_1", Email: "owner@studio.test"}
	return e
}

func (e *testEnv) addTenant(t *testing.T, subAccount string) *domain.Tenant {
	t.Helper()
	tenant := domain.Tenant{Name: "Studio", OwnerUserID: "u1", OwnerEmail: "owner@studio.test", Active: true}
	if subAccount != "" {
		tenant.SubAccountID = &subAccount
	}
	created, err := e.tenants.Create(context.Background(), tenant)
	require.NoError(t, err)
	return created
}

func (e *testEnv) addStudent(t *testing.T, tenantID, name string) *domain.Student {
	t.Helper()
	s, err := e.students.Create(context.Background(), domain.Student{TenantID: tenantID, Name: name, Email: name + "@studio.test"})
	require.NoError(t, err)
	return s
}

func (e *testEnv) addPlan(t *testing.T, name, priceID string, cents int64) *domain.MembershipPlan {
	t.Helper()
	p, err := e.plans.Create(context.Background(), domain.MembershipPlan{
		TenantID: e.tenant.ID, Name: name, MonthlyPrice: decimal.New(cents, -2), PriceID: priceID,
	})
	require.NoError(t, err)
	e.gw.prices[priceID] = monthly(priceID, name, cents)
	return p
}

func (e *testEnv) student(t *testing.T, id string) *domain.Student {
	t.Helper()
	s, err := e.students.GetByID(context.Background(), e.tenant.ID, id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (e *testEnv) subscriptions() *SubscriptionService {
	svc := NewSubscriptionService(e.tenants, e.students, e.plans, e.settings, e.notifications, e.gw)
	svc.now = fixedClock
	return svc
}
