package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

// EventVerifier authenticates raw webhook payloads.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*processor.Event, error)
}

// WebhookService verifies, journals and dispatches processor events.
type WebhookService struct {
	verifier EventVerifier
	events   repository.WebhookEventRepository
	tenants  repository.TenantRepository
	students repository.StudentRepository
	plans    repository.PlanRepository
	ledger   repository.LedgerRepository
	settings domain.SettingsStore
	notifier domain.Notifier
	gateway  processor.Gateway
	mirror   *subscriptionMirror
}

// WebhookDeps are the collaborators of a WebhookService.
type WebhookDeps struct {
	Verifier EventVerifier
	Events   repository.WebhookEventRepository
	Tenants  repository.TenantRepository
	Students repository.StudentRepository
	Plans    repository.PlanRepository
	Ledger   repository.LedgerRepository
	Settings domain.SettingsStore
	Notifier domain.Notifier
	Gateway  processor.Gateway
}

// NewWebhookService creates a WebhookService from its dependencies.
func NewWebhookService(d WebhookDeps) *WebhookService {
	return &WebhookService{
		verifier: d.Verifier,
		events:   d.Events,
		tenants:  d.Tenants,
		students: d.Students,
		plans:    d.Plans,
		ledger:   d.Ledger,
		settings: d.Settings,
		notifier: d.Notifier,
		gateway:  d.Gateway,
		mirror:   &subscriptionMirror{students: d.Students, plans: d.Plans},
	}
}

// Handle verifies the signature before reading anything from payload. It
// returns an error only for signature failures and infrastructure failures;
// events about entities not known locally are journaled as gaps and
// acknowledged.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.verifier.Verify(payload, signature)
	if err != nil {
		webhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		slog.Warn("webhook signature rejected", "error", err)
		return err
	}

	stored, created, err := s.events.Record(ctx, domain.WebhookEvent{
		ID:        evt.ID,
		Type:      evt.Type,
		AccountID: evt.Account,
		Payload:   evt.Payload,
	})
	if err != nil {
		return err
	}
	if !created && stored.Status.Settled() {
		webhookEventsTotal.WithLabelValues(evt.Type, "duplicate").Inc()
		slog.Info("webhook event already settled", "event_id", evt.ID, "event_type", evt.Type, "status", stored.Status)
		return nil
	}
	return s.process(ctx, evt, !created)
}

// Replay dispatches a journaled event again. Settled events other than dead
// ones are refused.
func (s *WebhookService) Replay(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	stored, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.NotFound("webhook event " + eventID)
	}
	if stored.Status == domain.EventProcessed || stored.Status == domain.EventDiscarded {
		return nil, domain.Precondition("event already "+string(stored.Status), "only gap, failed or dead events can be replayed")
	}

	evt, err := processor.ParseEvent(stored.Payload)
	if err != nil {
		return nil, err
	}
	if err := s.process(ctx, evt, true); err != nil && !errors.Is(err, domain.ErrExternalService) {
		return nil, err
	}
	return s.events.Get(ctx, eventID)
}

func (s *WebhookService) ListEvents(ctx context.Context, status domain.EventStatus, limit int) ([]domain.WebhookEvent, error) {
	return s.events.ListByStatus(ctx, status, limit)
}

func (s *WebhookService) CountEvents(ctx context.Context) (map[domain.EventStatus]int, error) {
	return s.events.CountByStatus(ctx)
}

// process dispatches evt and journals the outcome. A journaled event is
// replayed: its stored subscription snapshot may be older than what is already
// mirrored, so the live object is read instead.
func (s *WebhookService) process(ctx context.Context, evt *processor.Event, replay bool) error {
	log := slog.With("event_id", evt.ID, "event_type", evt.Type, "account_id", evt.Account, "replay", replay)

	status, err := s.dispatch(ctx, evt, replay)
	lastError := ""
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrReconciliationGap):
		status, lastError = domain.EventGap, err.Error()
		log.Warn("reconciliation gap: event references unknown local state", "error", err)
		err = nil
	default:
		status, lastError = domain.EventFailed, err.Error()
		log.Error("webhook dispatch failed", "error", err)
	}

	if markErr := s.events.MarkOutcome(ctx, evt.ID, status, lastError); markErr != nil {
		return errors.Join(err, markErr)
	}
	webhookEventsTotal.WithLabelValues(evt.Type, string(status)).Inc()
	return err
}

func (s *WebhookService) dispatch(ctx context.Context, evt *processor.Event, replay bool) (domain.EventStatus, error) {
	switch evt.Type {
	case processor.EventSubscriptionCreated, processor.EventSubscriptionUpdated, processor.EventSubscriptionDeleted:
		return s.handleSubscription(ctx, evt, replay)
	case processor.EventInvoicePaymentSucceeded:
		return s.handleInvoicePaid(ctx, evt)
	case processor.EventInvoicePaymentFailed:
		return s.handleInvoiceFailed(ctx, evt)
	case processor.EventAccountUpdated, processor.EventAccountApplicationAuthorized, processor.EventAccountExternalAccount:
		return s.handleAccount(ctx, evt)
	}
	slog.Info("webhook event type not handled", "event_id", evt.ID, "event_type", evt.Type)
	return domain.EventDiscarded, nil
}

func (s *WebhookService) handleSubscription(ctx context.Context, evt *processor.Event, replay bool) (domain.EventStatus, error) {
	sub, err := processor.DecodeSubscription(evt)
	if err != nil {
		return "", err
	}
	student, err := s.students.FindBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return "", err
	}
	if student == nil {
		return "", domain.ReconciliationGap("no student holds subscription " + sub.ID)
	}
	if replay {
		tenant, err := s.tenants.GetByID(ctx, student.TenantID)
		if err != nil {
			return "", err
		}
		acct := evt.Account
		if tenant != nil {
			acct = valueOr(tenant.SubAccountID, evt.Account)
		}
		if sub, err = s.gateway.GetSubscription(ctx, acct, sub.ID); err != nil {
			return "", err
		}
	}
	if _, err := s.mirror.apply(ctx, student.TenantID, student.ID, sub); err != nil {
		return "", err
	}
	slog.Info("subscription mirrored", "event_id", evt.ID, "student_id", student.ID, "subscription_id", sub.ID, "status", sub.Status)
	return domain.EventProcessed, nil
}

func (s *WebhookService) handleInvoicePaid(ctx context.Context, evt *processor.Event) (domain.EventStatus, error) {
	inv, err := processor.DecodeInvoice(evt)
	if err != nil {
		return "", err
	}
	tenant, err := s.resolveTenant(ctx, evt.Account, inv.Metadata)
	if err != nil {
		return "", err
	}
	if tenant == nil {
		return "", domain.ReconciliationGap("no tenant for account " + evt.Account)
	}
	log := slog.With("event_id", evt.ID, "tenant_id", tenant.ID, "invoice_id", inv.ID)

	settings, err := s.settings.Get(ctx, tenant.ID)
	if err != nil {
		return "", err
	}
	if settings.AuditionFeeProductID != "" && hasProduct(inv, settings.AuditionFeeProductID) {
		log.Info("audition fee invoice, not mirrored")
		return domain.EventDiscarded, nil
	}
	if inv.SubscriptionID == "" {
		log.Info("invoice without subscription, not mirrored")
		return domain.EventDiscarded, nil
	}

	student, err := s.resolveStudent(ctx, tenant.ID, inv)
	if err != nil {
		return "", err
	}
	if student == nil {
		return "", domain.ReconciliationGap("no student for customer " + inv.CustomerID)
	}

	var planID *string
	for _, line := range inv.Lines {
		if line.Price == nil || !line.Price.Recurring {
			continue
		}
		plan, err := s.plans.FindByExternalPriceID(ctx, tenant.ID, line.Price.ID)
		if err != nil {
			return "", err
		}
		if plan != nil {
			planID = &plan.ID
			break
		}
	}

	mirror := invoiceMirror(inv, tenant.ID, student.ID, planID)
	invoiceID, err := s.ledger.UpsertInvoice(ctx, mirror)
	if err != nil {
		return "", err
	}

	if inv.PaymentIntentID != "" {
		paidAt := inv.PaidAt
		if paidAt.IsZero() {
			paidAt = inv.Created
		}
		_, err := s.ledger.UpsertPayment(ctx, domain.Payment{
			TenantID:              tenant.ID,
			StudentID:             student.ID,
			PlanID:                planID,
			Amount:                minor(inv.AmountPaid),
			PaymentDate:           paidAt.UTC(),
			Method:                domain.MethodSubscription,
			ExternalTransactionID: &inv.PaymentIntentID,
			InvoiceID:             &invoiceID,
		})
		if err != nil {
			return "", err
		}
	}
	log.Info("invoice mirrored", "student_id", student.ID, "local_invoice_id", invoiceID)

	// A late invoice of a replaced subscription must not re-point the student.
	if student.SubscriptionID != nil && *student.SubscriptionID != inv.SubscriptionID {
		log.Info("invoice belongs to a superseded subscription, student not refreshed",
			"student_id", student.ID, "subscription_id", inv.SubscriptionID, "current_subscription_id", *student.SubscriptionID)
		return domain.EventProcessed, nil
	}

	// The invoice alone does not carry current subscription dates.
	acct := valueOr(tenant.SubAccountID, evt.Account)
	if acct == "" {
		log.Warn("tenant has no sub-account, subscription not refreshed")
		return domain.EventProcessed, nil
	}
	sub, err := s.gateway.GetSubscription(ctx, acct, inv.SubscriptionID)
	if err != nil {
		return "", err
	}
	if _, err := s.mirror.apply(ctx, tenant.ID, student.ID, sub); err != nil {
		return "", err
	}
	return domain.EventProcessed, nil
}

// handleInvoiceFailed is informational; subscription status moves only on
// subscription events.
func (s *WebhookService) handleInvoiceFailed(ctx context.Context, evt *processor.Event) (domain.EventStatus, error) {
	inv, err := processor.DecodeInvoice(evt)
	if err != nil {
		return "", err
	}
	tenant, err := s.resolveTenant(ctx, evt.Account, inv.Metadata)
	if err != nil {
		return "", err
	}
	if tenant == nil {
		slog.Warn("payment failed for unknown tenant", "event_id", evt.ID, "account_id", evt.Account, "invoice_id", inv.ID)
		return domain.EventDiscarded, nil
	}

	who := inv.CustomerID
	link := ""
	student, err := s.resolveStudent(ctx, tenant.ID, inv)
	if err != nil {
		return "", err
	}
	if student != nil {
		who = student.Name
		link = "/students/" + student.ID
	}
	slog.Warn("invoice payment failed", "event_id", evt.ID, "tenant_id", tenant.ID, "invoice_id", inv.ID, "customer_id", inv.CustomerID)
	notify(ctx, s.notifier, tenant.ID, domain.Notification{
		Title:    "Payment failed",
		Message:  fmt.Sprintf("A payment of %s %s from %s failed.", minor(inv.AmountDue).StringFixed(2), inv.Currency, who),
		Severity: domain.SeverityError,
		Link:     link,
	})
	return domain.EventProcessed, nil
}

// handleAccount is sub-account bookkeeping. An unresolvable tenant is
// discarded, never an error.
func (s *WebhookService) handleAccount(ctx context.Context, evt *processor.Event) (domain.EventStatus, error) {
	accountID := evt.Account
	metadata := processor.DecodeMetadata(evt)
	var acct *processor.Account
	if evt.Type == processor.EventAccountUpdated {
		a, err := processor.DecodeAccount(evt)
		if err != nil {
			return "", err
		}
		acct = a
		accountID = a.ID
		metadata = a.Metadata
	}

	tenant, err := s.resolveTenant(ctx, accountID, metadata)
	if err != nil {
		return "", err
	}
	if tenant == nil {
		slog.Warn("account event for unknown tenant discarded", "event_id", evt.ID, "event_type", evt.Type, "account_id", accountID)
		return domain.EventDiscarded, nil
	}

	if !tenant.HasSubAccount() && accountID != "" {
		if err := s.tenants.SetSubAccountID(ctx, tenant.ID, accountID); err != nil {
			return "", err
		}
		slog.Info("sub-account linked from event", "tenant_id", tenant.ID, "sub_account_id", accountID)
	}

	attrs := []any{"event_id", evt.ID, "event_type", evt.Type, "tenant_id", tenant.ID, "account_id", accountID}
	if acct != nil {
		attrs = append(attrs, "state", accountState(acct), "charges_enabled", acct.ChargesEnabled, "payouts_enabled", acct.PayoutsEnabled)
	}
	slog.Info("sub-account event", attrs...)
	return domain.EventProcessed, nil
}

// resolveTenant finds the tenant by the routed sub-account, then by the
// tenant id stamped into object metadata.
func (s *WebhookService) resolveTenant(ctx context.Context, accountID string, metadata map[string]string) (*domain.Tenant, error) {
	if accountID != "" {
		tenant, err := s.tenants.GetBySubAccountID(ctx, accountID)
		if err != nil || tenant != nil {
			return tenant, err
		}
	}
	if id := metadata["tenant_id"]; id != "" {
		return s.tenants.GetByID(ctx, id)
	}
	return nil, nil
}

func (s *WebhookService) resolveStudent(ctx context.Context, tenantID string, inv *processor.Invoice) (*domain.Student, error) {
	if inv.CustomerID != "" {
		student, err := s.students.FindByCustomerID(ctx, tenantID, inv.CustomerID)
		if err != nil || student != nil {
			return student, err
		}
	}
	if id := inv.Metadata["student_id"]; id != "" {
		return s.students.GetByID(ctx, tenantID, id)
	}
	return nil, nil
}

func hasProduct(inv *processor.Invoice, productID string) bool {
	for _, line := range inv.Lines {
		if line.Price != nil && line.Price.ProductID == productID {
			return true
		}
	}
	return false
}

func invoiceMirror(inv *processor.Invoice, tenantID, studentID string, planID *string) domain.Invoice {
	number := inv.Number
	if number == "" {
		number = inv.ID
	}
	due := inv.DueDate
	if due.IsZero() {
		due = inv.Created
	}
	out := domain.Invoice{
		TenantID:          tenantID,
		StudentID:         studentID,
		PlanID:            planID,
		Number:            number,
		IssueDate:         domain.CalendarDate(inv.Created),
		DueDate:           domain.CalendarDate(due),
		Subtotal:          minor(inv.Subtotal),
		Tax:               minor(inv.Tax),
		Total:             minor(inv.Total),
		AmountPaid:        minor(inv.AmountPaid),
		AmountDue:         minor(inv.AmountDue),
		Status:            domain.InvoicePaid,
		ExternalInvoiceID: &inv.ID,
		Items:             make([]domain.InvoiceLineItem, 0, len(inv.Lines)),
	}
	for _, line := range inv.Lines {
		qty := line.Quantity
		if qty <= 0 {
			qty = 1
		}
		out.Items = append(out.Items, domain.InvoiceLineItem{
			Description: line.Description,
			Quantity:    qty,
			UnitPrice:   unitPrice(line, qty),
			Amount:      minor(line.Amount),
		})
	}
	return out
}

// unitPrice prefers the price's decimal unit amount and falls back to
// amount / quantity.
func unitPrice(line processor.InvoiceLine, qty int64) decimal.Decimal {
	if line.Price != nil && line.Price.UnitAmountDecimal > 0 {
		return decimal.NewFromFloat(line.Price.UnitAmountDecimal).Div(hundred).Round(4)
	}
	return minor(line.Amount).Div(decimal.NewFromInt(qty)).Round(4)
}

func minor(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
