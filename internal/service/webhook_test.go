package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
)

const webhookSecret = "whsec_service_test"

func sign(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func envelope(id, eventType, account, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"account":%q,"created":1760443200,"data":{"object":%s}}`,
		id, eventType, account, object))
}

func paidInvoice(invoiceID, customerID, subscriptionID, productID string) string {
	return fmt.Sprintf(`{
  "id": %q, "object": "invoice", "number": "INV-0001",
  "customer": %q, "subscription": %q, "payment_intent": "pi_%s",
  "billing_reason": "subscription_cycle", "status": "paid", "currency": "usd",
  "created": 1760443200, "subtotal": 5000, "total": 5000, "amount_paid": 5000, "amount_due": 5000,
  "status_transitions": {"paid_at": 1760443260},
  "lines": {"object": "list", "data": [
    {"id": "il_1", "object": "line_item", "description": "Gold membership", "quantity": 1, "amount": 5000,
     "price": {"id": "price_gold", "object": "price", "unit_amount": 5000, "unit_amount_decimal": "5000",
               "billing_scheme": "per_unit", "recurring": {"interval": "month", "interval_count": 1}, "product": %q}}
  ]}
}`, invoiceID, customerID, subscriptionID, invoiceID, productID)
}

func subscriptionObject(id, customerID, status string) string {
	return fmt.Sprintf(`{
  "id": %q, "object": "subscription", "customer": %q, "status": %q,
  "start_date": 1760443200, "current_period_start": 1760443200, "current_period_end": 1763121600,
  "items": {"object": "list", "data": [
    {"id": "si_1", "object": "subscription_item", "quantity": 1,
     "price": {"id": "price_gold", "object": "price", "unit_amount": 5000, "billing_scheme": "per_unit",
               "recurring": {"interval": "month", "interval_count": 1}, "product": "prod_gold"}}
  ]}
}`, id, customerID, status)
}

func (e *testEnv) webhooks() *WebhookService {
	return NewWebhookService(WebhookDeps{
		Verifier: processor.NewVerifier(webhookSecret),
		Events:   e.events,
		Tenants:  e.tenants,
		Students: e.students,
		Plans:    e.plans,
		Ledger:   e.ledger,
		Settings: e.settings,
		Notifier: e.notifications,
		Gateway:  e.gw,
	})
}

// subscribedStudent has customer cus_1 and subscription sub_1, known both
// locally and to the fake processor.
func (e *testEnv) subscribedStudent(t *testing.T) *domain.Student {
	t.Helper()
	ctx := context.Background()
	s := e.addStudent(t, e.tenant.ID, "ana")
	require.NoError(t, e.students.UpdateCustomerID(ctx, s.ID, "cus_1"))
	e.gw.subs["sub_1"] = &processor.Subscription{
		ID: "sub_1", CustomerID: "cus_1", Status: "active",
		StartDate: testNow, CurrentPeriodStart: testNow, CurrentPeriodEnd: testNow.AddDate(0, 1, 0),
		Items: []processor.SubscriptionItem{{ID: "si_1", Quantity: 1, Price: e.gw.price("price_gold")}},
	}
	return e.student(t, s.ID)
}

func (e *testEnv) eventStatus(t *testing.T, id string) domain.EventStatus {
	t.Helper()
	stored, err := e.events.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	return stored.Status
}

func TestHandle_RejectsUnverifiedPayloadWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	ana := env.subscribedStudent(t)
	payload := envelope("evt_forged", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_gold"))

	for _, sig := range []string{"", "t=1,v1=deadbeef", sign([]byte("other payload"))} {
		err := env.webhooks().Handle(ctx, payload, sig)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	}

	stored, err := env.events.Get(ctx, "evt_forged")
	require.NoError(t, err)
	assert.Nil(t, stored)
	invoices, err := env.ledger.ListInvoices(ctx, env.tenant.ID, "")
	require.NoError(t, err)
	assert.Empty(t, invoices)
	payments, err := env.ledger.ListPayments(ctx, env.tenant.ID, "")
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Equal(t, ana, env.student(t, ana.ID))
}

func TestHandle_InvoicePaidMirrorsOnce(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	plan := env.addPlan(t, "Gold", "price_gold", 5000)
	ana := env.subscribedStudent(t)
	wh := env.webhooks()

	payload := envelope("evt_1", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_gold"))
	require.NoError(t, wh.Handle(ctx, payload, sign(payload)))
	require.NoError(t, wh.Handle(ctx, payload, sign(payload)))
	// A new event id for the same invoice must also land on the same row.
	again := envelope("evt_2", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_gold"))
	require.NoError(t, wh.Handle(ctx, again, sign(again)))

	invoices, err := env.ledger.ListInvoices(ctx, env.tenant.ID, ana.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	inv, err := env.ledger.GetInvoice(ctx, env.tenant.ID, invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoicePaid, inv.Status)
	assert.Equal(t, "INV-0001", inv.Number)
	assert.True(t, decimal.NewFromInt(50).Equal(inv.Total))
	require.Len(t, inv.Items, 1)
	assert.True(t, decimal.NewFromInt(50).Equal(inv.Items[0].UnitPrice))
	require.NotNil(t, inv.PlanID)
	assert.Equal(t, plan.ID, *inv.PlanID)

	payments, err := env.ledger.ListPayments(ctx, env.tenant.ID, ana.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.MethodSubscription, payments[0].Method)
	assert.Equal(t, "pi_in_1", *payments[0].ExternalTransactionID)
	assert.Equal(t, inv.ID, *payments[0].InvoiceID)

	got := env.student(t, ana.ID)
	assert.Equal(t, "sub_1", *got.SubscriptionID)
	assert.Equal(t, "Gold", *got.PlanName)
	assert.Equal(t, domain.EventProcessed, env.eventStatus(t, "evt_1"))
}

func TestHandle_LateInvoiceOfReplacedSubscription(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.addPlan(t, "Gold", "price_gold", 5000)
	ana := env.subscribedStudent(t)
	env.gw.subs["sub_1"].Status = "canceled"
	env.gw.subs["sub_2"] = cloneSub(env.gw.subs["sub_1"])
	env.gw.subs["sub_2"].ID = "sub_2"
	env.gw.subs["sub_2"].Status = "active"

	current := "sub_2"
	active := domain.StatusActive
	ana.SubscriptionID = &current
	ana.Status = &active
	require.NoError(t, env.students.UpdateSubscription(ctx, *ana))

	payload := envelope("evt_1", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_final", "cus_1", "sub_1", "prod_gold"))
	require.NoError(t, env.webhooks().Handle(ctx, payload, sign(payload)))
	assert.Equal(t, domain.EventProcessed, env.eventStatus(t, "evt_1"))

	invoices, err := env.ledger.ListInvoices(ctx, env.tenant.ID, ana.ID)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	got := env.student(t, ana.ID)
	assert.Equal(t, "sub_2", *got.SubscriptionID)
	assert.Equal(t, domain.StatusActive, *got.Status)
}

func TestHandle_AuditionFeeInvoiceIsNotMirrored(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	require.NoError(t, env.settings.Put(ctx, env.tenant.ID, domain.TenantSettings{AuditionFeeProductID: "prod_audition"}))
	env.subscribedStudent(t)

	payload := envelope("evt_1", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_audition"))
	require.NoError(t, env.webhooks().Handle(ctx, payload, sign(payload)))

	invoices, err := env.ledger.ListInvoices(ctx, env.tenant.ID, "")
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Equal(t, domain.EventDiscarded, env.eventStatus(t, "evt_1"))
}

func TestHandle_InvoiceForUnknownCustomerIsGap(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	payload := envelope("evt_1", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_nobody", "sub_1", "prod_gold"))
	require.NoError(t, env.webhooks().Handle(ctx, payload, sign(payload)))
	assert.Equal(t, domain.EventGap, env.eventStatus(t, "evt_1"))
}

func TestHandle_SubscriptionEvents(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.addPlan(t, "Gold", "price_gold", 5000)
	ana := env.subscribedStudent(t)
	sub := "sub_1"
	ana.SubscriptionID = &sub
	require.NoError(t, env.students.UpdateSubscription(ctx, *ana))
	wh := env.webhooks()

	updated := envelope("evt_upd", processor.EventSubscriptionUpdated, "acct_1", subscriptionObject("sub_1", "cus_1", "past_due"))
	require.NoError(t, wh.Handle(ctx, updated, sign(updated)))
	got := env.student(t, ana.ID)
	assert.Equal(t, domain.StatusPastDue, *got.Status)
	assert.Equal(t, "Gold", *got.PlanName)
	assert.Equal(t, time.Date(2025, 11, 14, 0, 0, 0, 0, time.UTC), got.RenewalDate.UTC())

	deleted := envelope("evt_del", processor.EventSubscriptionDeleted, "acct_1", subscriptionObject("sub_1", "cus_1", "canceled"))
	require.NoError(t, wh.Handle(ctx, deleted, sign(deleted)))
	assert.Equal(t, domain.StatusCanceled, *env.student(t, ana.ID).Status)
}

func TestHandle_UnknownSubscriptionIsJournaledAsGap(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	payload := envelope("evt_1", processor.EventSubscriptionCreated, "acct_1", subscriptionObject("sub_elsewhere", "cus_9", "active"))
	require.NoError(t, env.webhooks().Handle(ctx, payload, sign(payload)))

	stored, err := env.events.Get(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventGap, stored.Status)
	assert.Contains(t, stored.LastError, "sub_elsewhere")
}

func TestHandle_PaymentFailedNotifiesWithoutStatusChange(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	ana := env.subscribedStudent(t)
	before := env.student(t, ana.ID)

	failed := envelope("evt_1", processor.EventInvoicePaymentFailed, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_gold"))
	require.NoError(t, env.webhooks().Handle(ctx, failed, sign(failed)))

	assert.Equal(t, before.Status, env.student(t, ana.ID).Status)
	notes, err := env.notifications.List(ctx, env.tenant.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.SeverityError, notes[0].Severity)
	assert.Contains(t, notes[0].Message, "ana")
}

func TestHandle_AccountEvents(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	wh := env.webhooks()

	unknown := envelope("evt_1", processor.EventAccountUpdated, "acct_other", `{"id":"acct_other","object":"account"}`)
	require.NoError(t, wh.Handle(ctx, unknown, sign(unknown)))
	assert.Equal(t, domain.EventDiscarded, env.eventStatus(t, "evt_1"))

	bare := env.addTenant(t, "")
	linked := envelope("evt_2", processor.EventAccountUpdated, "acct_new",
		fmt.Sprintf(`{"id":"acct_new","object":"account","charges_enabled":true,"payouts_enabled":true,"metadata":{"tenant_id":%q}}`, bare.ID))
	require.NoError(t, wh.Handle(ctx, linked, sign(linked)))
	assert.Equal(t, domain.EventProcessed, env.eventStatus(t, "evt_2"))

	tenant, err := env.tenants.GetByID(ctx, bare.ID)
	require.NoError(t, err)
	assert.Equal(t, "acct_new", *tenant.SubAccountID)
}

func TestHandle_UnhandledTypeIsDiscarded(t *testing.T) {
	env := newEnv(t)
	payload := envelope("evt_1", "charge.refunded", "acct_1", `{"id":"ch_1","object":"charge"}`)
	require.NoError(t, env.webhooks().Handle(context.Background(), payload, sign(payload)))
	assert.Equal(t, domain.EventDiscarded, env.eventStatus(t, "evt_1"))
}

func TestHandle_ProcessorFailureIsReported(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.subscribedStudent(t)
	delete(env.gw.subs, "sub_1")

	payload := envelope("evt_1", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_gold"))
	err := env.webhooks().Handle(ctx, payload, sign(payload))
	assert.ErrorIs(t, err, domain.ErrExternalService)
	assert.Equal(t, domain.EventFailed, env.eventStatus(t, "evt_1"))
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	wh := env.webhooks()

	payload := envelope("evt_1", processor.EventInvoicePaymentSucceeded, "acct_1", paidInvoice("in_1", "cus_1", "sub_1", "prod_gold"))
	require.NoError(t, wh.Handle(ctx, payload, sign(payload)))
	require.Equal(t, domain.EventGap, env.eventStatus(t, "evt_1"))

	env.subscribedStudent(t)
	replayed, err := wh.Replay(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.EventProcessed, replayed.Status)
	assert.Equal(t, 2, replayed.Attempts)

	_, err = wh.Replay(ctx, "evt_1")
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	_, err = wh.Replay(ctx, "evt_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnitPriceFallsBackToAmountOverQuantity(t *testing.T) {
	line := processor.InvoiceLine{Description: "Drop-in x3", Quantity: 3, Amount: 9000}
	assert.True(t, decimal.NewFromInt(30).Equal(unitPrice(line, 3)))

	line.Price = &processor.Price{UnitAmountDecimal: 2999.5}
	assert.True(t, decimal.RequireFromString("29.995").Equal(unitPrice(line, 3)))
}
