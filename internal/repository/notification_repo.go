package repository

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// NotificationRepository is the default domain.Notifier: it keeps a
// per-tenant inbox that the studio UI reads.
type NotificationRepository interface {
	domain.Notifier
	List(ctx context.Context, tenantID string, limit int) ([]domain.Notification, error)
}

type notificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a NotificationRepository backed by db.
func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Notify(ctx context.Context, tenantID string, n domain.Notification) error {
	n.ID = uuid.NewString()
	n.TenantID = tenantID
	n.CreatedAt = now()
	if n.Severity == "" {
		n.Severity = domain.SeverityInfo
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO notifications (id, tenant_id, title, message, severity, link, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.TenantID, n.Title, n.Message, n.Severity, n.Link, n.CreatedAt)
	if err != nil {
		return err
	}
	slog.Info("notification emitted", "tenant_id", tenantID, "title", n.Title, "severity", n.Severity)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, tenantID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	out := []domain.Notification{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT id, tenant_id, title, message, severity, link, created_at
		FROM notifications WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`), tenantID, limit)
	return out, err
}
