package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

const subscriptionEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "customer.subscription.updated",
  "account": "acct_1",
  "created": 1700000000,
  "data": {"object": {
    "id": "sub_1",
    "object": "subscription",
    "customer": "cus_1",
    "status": "past_due",
    "cancel_at_period_end": true,
    "start_date": 1690000000,
    "current_period_start": 1697000000,
    "current_period_end": 1699600000,
    "items": {"object": "list", "data": [
      {"id": "si_1", "object": "subscription_item", "quantity": 1,
       "price": {"id": "price_gold", "object": "price", "unit_amount": 12000, "billing_scheme": "per_unit",
                 "recurring": {"interval": "year", "interval_count": 1}, "product": "prod_gold"}}
    ]}
  }}
}`

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testSecret)
	payload := []byte(subscriptionEvent)

	t.Run("valid signature decodes the envelope", func(t *testing.T) {
		evt, err := v.Verify(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", evt.ID)
		assert.Equal(t, EventSubscriptionUpdated, evt.Type)
		assert.Equal(t, "acct_1", evt.Account)
		assert.NotEmpty(t, evt.Object)

		sub, err := DecodeSubscription(evt)
		require.NoError(t, err)
		assert.Equal(t, "sub_1", sub.ID)
		assert.Equal(t, "cus_1", sub.CustomerID)
		assert.Equal(t, "past_due", sub.Status)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, time.Unix(1699600000, 0).UTC(), sub.CurrentPeriodEnd)
		item, ok := sub.PrimaryPrice()
		require.True(t, ok)
		assert.Equal(t, "si_1", item.ID)
		assert.Equal(t, "price_gold", item.Price.ID)
		assert.Equal(t, "prod_gold", item.Price.ProductID)
		assert.Equal(t, IntervalYear, item.Price.Interval)
		assert.True(t, item.Price.HasUnitAmount)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := v.Verify(payload, "")
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(payload, sign(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := sign(payload, testSecret, time.Now())
		tampered := []byte(subscriptionEvent[:len(subscriptionEvent)-2] + " }")
		_, err := v.Verify(tampered, sig)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := v.Verify(payload, sign(payload, testSecret, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})
}

func TestParseEvent_RoundTripsJournalPayload(t *testing.T) {
	evt, err := ParseEvent([]byte(subscriptionEvent))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, []byte(subscriptionEvent), evt.Payload)
}

func TestDecodeInvoice(t *testing.T) {
	payload := `{
	  "id": "evt_2", "object": "event", "type": "invoice.payment_succeeded", "account": "acct_1",
	  "data": {"object": {
	    "id": "in_1", "object": "invoice", "number": "A-0001", "customer": "cus_1",
	    "subscription": "sub_1", "payment_intent": "pi_1", "billing_reason": "subscription_cycle",
	    "status": "paid", "created": 1700000000, "currency": "usd",
	    "subtotal": 5000, "total": 5400, "amount_paid": 5400, "amount_due": 5400,
	    "total_tax_amounts": [{"amount": 400, "inclusive": false}],
	    "status_transitions": {"paid_at": 1700000100},
	    "metadata": {"tenant_id": "t1"},
	    "lines": {"object": "list", "data": [
	      {"id": "il_1", "object": "line_item", "description": "Gold", "quantity": 2, "amount": 5000,
	       "price": {"id": "price_gold", "object": "price", "unit_amount_decimal": "2500", "product": "prod_gold"}}
	    ]}
	  }}
	}`
	evt, err := ParseEvent([]byte(payload))
	require.NoError(t, err)
	in, err := DecodeInvoice(evt)
	require.NoError(t, err)

	assert.Equal(t, "in_1", in.ID)
	assert.Equal(t, "A-0001", in.Number)
	assert.Equal(t, "cus_1", in.CustomerID)
	assert.Equal(t, "sub_1", in.SubscriptionID)
	assert.Equal(t, "pi_1", in.PaymentIntentID)
	assert.Equal(t, BillingSubscriptionCycle, in.BillingReason)
	assert.Equal(t, int64(400), in.Tax)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), in.PaidAt)
	assert.Equal(t, "t1", in.Metadata["tenant_id"])
	require.Len(t, in.Lines, 1)
	require.NotNil(t, in.Lines[0].Price)
	assert.Equal(t, 2500.0, in.Lines[0].Price.UnitAmountDecimal)
	assert.Equal(t, "prod_gold", in.Lines[0].Price.ProductID)
}

func TestDecodeMetadata(t *testing.T) {
	evt := &Event{Object: []byte(`{"id":"ba_1","metadata":{"tenant_id":"t9"}}`)}
	assert.Equal(t, "t9", DecodeMetadata(evt)["tenant_id"])
	assert.Nil(t, DecodeMetadata(&Event{Object: []byte(`not json`)}))
}
