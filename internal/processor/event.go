package processor

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// Event types the webhook processor dispatches on.
const (
	EventSubscriptionCreated          = "customer.subscription.created"
	EventSubscriptionUpdated          = "customer.subscription.updated"
	EventSubscriptionDeleted          = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded      = "invoice.payment_succeeded"
	EventInvoicePaymentFailed         = "invoice.payment_failed"
	EventAccountUpdated               = "account.updated"
	EventAccountApplicationAuthorized = "account.application.authorized"
	EventAccountExternalAccount       = "account.external_account.created"
)

// Verifier checks the signature of inbound webhook payloads against the
// platform's shared endpoint secret.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier for the endpoint signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the signature header before anything in the body is trusted.
// A missing header or a mismatched signature yields ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, signature string) (*Event, error) {
	if signature == "" || v.secret == "" {
		return nil, &domain.Error{Kind: domain.ErrInvalidSignature, Message: "missing signature"}
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrInvalidSignature, Err: err}
	}
	return eventFromStripe(&evt, payload), nil
}

// ParseEvent decodes a payload that was verified earlier (journal replay).
func ParseEvent(payload []byte) (*Event, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return eventFromStripe(&evt, payload), nil
}

func eventFromStripe(evt *stripe.Event, payload []byte) *Event {
	out := &Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Account: evt.Account,
		Created: unixTime(evt.Created),
		Payload: payload,
	}
	if evt.Data != nil {
		out.Object = evt.Data.Raw
	}
	return out
}

func DecodeSubscription(e *Event) (*Subscription, error) {
	var s stripe.Subscription
	if err := json.Unmarshal(e.Object, &s); err != nil {
		return nil, fmt.Errorf("decode subscription from %s: %w", e.ID, err)
	}
	return SubscriptionFromStripe(&s), nil
}

func DecodeInvoice(e *Event) (*Invoice, error) {
	var in stripe.Invoice
	if err := json.Unmarshal(e.Object, &in); err != nil {
		return nil, fmt.Errorf("decode invoice from %s: %w", e.ID, err)
	}
	return InvoiceFromStripe(&in), nil
}

func DecodeAccount(e *Event) (*Account, error) {
	var a stripe.Account
	if err := json.Unmarshal(e.Object, &a); err != nil {
		return nil, fmt.Errorf("decode account from %s: %w", e.ID, err)
	}
	return accountFromStripe(&a), nil
}

// DecodeMetadata reads only the metadata of the event object, for event types
// whose object shape the processor does not otherwise consume.
func DecodeMetadata(e *Event) map[string]string {
	var obj struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(e.Object, &obj); err != nil {
		return nil
	}
	return obj.Metadata
}
