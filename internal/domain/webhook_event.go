package domain

import "time"

type EventStatus string

const (
	EventReceived  EventStatus = "received"
	EventProcessed EventStatus = "processed"
	EventDiscarded EventStatus = "discarded"
	// EventGap marks an event that referenced an entity not yet known locally.
	EventGap    EventStatus = "gap"
	EventFailed EventStatus = "failed"
	EventDead   EventStatus = "dead"
)

// Settled reports whether a redelivery of the event can be acknowledged
// without dispatching it again.
func (s EventStatus) Settled() bool {
	return s == EventProcessed || s == EventDiscarded || s == EventDead
}

// WebhookEvent is the journal row of a verified processor event.
type WebhookEvent struct {
	ID          string      `db:"id" json:"id"`
	Type        string      `db:"event_type" json:"event_type"`
	AccountID   string      `db:"account_id" json:"account_id,omitempty"`
	Payload     []byte      `db:"payload" json:"-"`
	Status      EventStatus `db:"status" json:"status"`
	Attempts    int         `db:"attempts" json:"attempts"`
	LastError   string      `db:"last_error" json:"last_error,omitempty"`
	ReceivedAt  time.Time   `db:"received_at" json:"received_at"`
	ProcessedAt *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
}

func (s EventStatus) Valid() bool {
	switch s {
	case EventReceived, EventProcessed, EventDiscarded, EventGap, EventFailed, EventDead:
		return true
	}
	return false
}
