package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dessignio/lusa-app-sub001/internal/cache"
	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

const (
	metricsWindowDays = 30
	// customerFanout bounds concurrent per-customer subscription listings.
	customerFanout = 4
	unknownPlan    = "Unknown Plan"
)

var (
	hundred      = decimal.NewFromInt(100)
	weeksInMonth = decimal.RequireFromString("4.33")
	daysInMonth  = decimal.NewFromInt(30)
	monthsInYear = decimal.NewFromInt(12)
)

// MetricsService computes recurring-revenue figures from the processor's live
// subscription, event and invoice streams.
type MetricsService struct {
	tenants repository.TenantRepository
	gateway processor.Gateway
	cache   cache.MetricsCache
	now     Clock
}

// NewMetricsService creates a MetricsService. Computed snapshots go to c.
func NewMetricsService(tenants repository.TenantRepository, gateway processor.Gateway, c cache.MetricsCache) *MetricsService {
	if c == nil {
		c = cache.Noop{}
	}
	return &MetricsService{tenants: tenants, gateway: gateway, cache: c, now: systemClock}
}

// GetMetrics serves the cached snapshot unless refresh is set. A tenant
// without a sub-account gets all-zero metrics.
func (s *MetricsService) GetMetrics(ctx context.Context, tenantID string, refresh bool) (*domain.Metrics, error) {
	tenant, err := loadTenant(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.HasSubAccount() {
		return domain.EmptyMetrics(), nil
	}

	if !refresh {
		m, found, err := s.cache.Get(ctx, tenantID)
		if err != nil {
			slog.Warn("metrics cache read failed", "tenant_id", tenantID, "error", err)
		} else if found {
			return m, nil
		}
	}

	m, err := s.compute(ctx, *tenant.SubAccountID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, tenantID, m); err != nil {
		slog.Warn("metrics cache write failed", "tenant_id", tenantID, "error", err)
	}
	return m, nil
}

func (s *MetricsService) compute(ctx context.Context, acct string) (*domain.Metrics, error) {
	customers, err := s.gateway.ListCustomers(ctx, acct)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return domain.EmptyMetrics(), nil
	}

	now := s.now()
	since := now.AddDate(0, 0, -metricsWindowDays)

	perCustomer := make([][]processor.Subscription, len(customers))
	var canceled int
	var invoices []processor.Invoice

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(customerFanout)
	g.Go(func() error {
		n, err := s.gateway.CountEvents(gctx, acct, processor.EventSubscriptionDeleted, since)
		canceled = n
		return err
	})
	g.Go(func() error {
		list, err := s.gateway.ListInvoices(gctx, acct, since)
		invoices = list
		return err
	})
	for i, c := range customers {
		g.Go(func() error {
			subs, err := s.gateway.ListSubscriptions(gctx, acct, c.ID)
			perCustomer[i] = subs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mrr := decimal.Zero
	active := 0
	mix := map[string]int{}
	for _, subs := range perCustomer {
		for _, sub := range subs {
			if sub.Status != string(domain.StatusActive) && sub.Status != string(domain.StatusTrialing) {
				continue
			}
			active++
			if item, ok := sub.PrimaryPrice(); ok {
				mix[planKey(item.Price)]++
			} else {
				mix[unknownPlan]++
			}
			for _, item := range sub.Items {
				if v, ok := MonthlyValue(item); ok {
					mrr = mrr.Add(v)
				}
			}
		}
	}

	m := &domain.Metrics{
		MRR:               mrr.Round(2).InexactFloat64(),
		ActiveSubscribers: active,
		PlanMix:           sortedMix(mix),
	}

	churn := ratePercent(canceled, active+canceled)
	m.ChurnRate = churn.InexactFloat64()
	if active > 0 {
		arpu := mrr.Div(decimal.NewFromInt(int64(active)))
		m.ARPU = arpu.Round(2).InexactFloat64()
		if !churn.IsZero() {
			m.LTV = arpu.Div(churn.Div(hundred)).Round(2).InexactFloat64()
		}
	}

	var succeeded, failed int
	for _, inv := range invoices {
		if inv.BillingReason != processor.BillingSubscriptionCycle && inv.BillingReason != processor.BillingSubscriptionCreate {
			continue
		}
		switch {
		case inv.Status == "paid":
			succeeded++
		case inv.Status == "open" && !inv.DueDate.IsZero() && inv.DueDate.Before(now):
			failed++
		}
	}
	m.PaymentFailureRate = ratePercent(failed, succeeded+failed).InexactFloat64()
	return m, nil
}

// MonthlyValue normalizes a subscription item to its monthly amount in major
// units. Items without a fixed recurring amount report false.
func MonthlyValue(item processor.SubscriptionItem) (decimal.Decimal, bool) {
	p := item.Price
	if !p.Recurring || !p.HasUnitAmount {
		return decimal.Zero, false
	}
	amount := decimal.New(p.UnitAmount, -2)
	if p.UnitAmountDecimal > 0 {
		amount = decimal.NewFromFloat(p.UnitAmountDecimal).Div(hundred)
	}
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	amount = amount.Mul(decimal.NewFromInt(qty))

	switch p.Interval {
	case processor.IntervalMonth:
	case processor.IntervalYear:
		amount = amount.Div(monthsInYear)
	case processor.IntervalWeek:
		amount = amount.Mul(weeksInMonth)
	case processor.IntervalDay:
		amount = amount.Mul(daysInMonth)
	default:
		return decimal.Zero, false
	}
	if p.IntervalCount > 1 {
		amount = amount.Div(decimal.NewFromInt(p.IntervalCount))
	}
	return amount, true
}

// ratePercent is part/whole as a percentage rounded to one decimal; 0 for an
// empty whole.
func ratePercent(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(1)
}

func planKey(p processor.Price) string {
	switch {
	case p.ProductName != "":
		return p.ProductName
	case p.Nickname != "":
		return p.Nickname
	}
	return unknownPlan
}

func sortedMix(mix map[string]int) []domain.PlanMixEntry {
	out := make([]domain.PlanMixEntry, 0, len(mix))
	for plan, n := range mix {
		out = append(out, domain.PlanMixEntry{Plan: plan, Subscribers: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subscribers != out[j].Subscribers {
			return out[i].Subscribers > out[j].Subscribers
		}
		return out[i].Plan < out[j].Plan
	})
	return out
}
