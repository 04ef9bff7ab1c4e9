package domain

import (
	"context"
	"time"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Notification struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Severity  Severity  `db:"severity" json:"severity"`
	Link      string    `db:"link" json:"link,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Notifier emits tenant-scoped notifications.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, n Notification) error
}

// SettingsStore resolves per-tenant billing configuration.
type SettingsStore interface {
	Get(ctx context.Context, tenantID string) (TenantSettings, error)
}
