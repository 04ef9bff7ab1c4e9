package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// WebhookEventRepository is the journal of verified processor events.
type WebhookEventRepository interface {
	// Record stores a newly received event. When the event id is already
	// journaled the existing row is returned untouched and created is false.
	Record(ctx context.Context, e domain.WebhookEvent) (stored *domain.WebhookEvent, created bool, err error)
	Get(ctx context.Context, id string) (*domain.WebhookEvent, error)
	// MarkOutcome stores the result of one dispatch attempt.
	MarkOutcome(ctx context.Context, id string, status domain.EventStatus, lastError string) error
	ListByStatus(ctx context.Context, status domain.EventStatus, limit int) ([]domain.WebhookEvent, error)
	CountByStatus(ctx context.Context) (map[domain.EventStatus]int, error)
}

type webhookEventRepository struct {
	db *sqlx.DB
}

// NewWebhookEventRepository creates the webhook event journal backed by db.
func NewWebhookEventRepository(db *sqlx.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

const eventColumns = `id, event_type, account_id, payload, status, attempts, last_error, received_at, processed_at`

func (r *webhookEventRepository) Record(ctx context.Context, e domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	e.Status = domain.EventReceived
	e.ReceivedAt = now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO webhook_events (id, event_type, account_id, payload, status, attempts, last_error, received_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?)
		ON CONFLICT (id) DO NOTHING`),
		e.ID, e.Type, e.AccountID, string(e.Payload), e.Status, e.ReceivedAt)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return &e, true, nil
	}
	existing, err := r.Get(ctx, e.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *webhookEventRepository) Get(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	err := r.db.GetContext(ctx, &e, r.db.Rebind(`SELECT `+eventColumns+` FROM webhook_events WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *webhookEventRepository) MarkOutcome(ctx context.Context, id string, status domain.EventStatus, lastError string) error {
	var processedAt any
	if status.Settled() {
		processedAt = now()
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE webhook_events SET status = ?, attempts = attempts + 1, last_error = ?, processed_at = ?
		WHERE id = ?`), status, lastError, processedAt, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *webhookEventRepository) ListByStatus(ctx context.Context, status domain.EventStatus, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []domain.WebhookEvent{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT `+eventColumns+` FROM webhook_events WHERE status = ? ORDER BY received_at LIMIT ?`), status, limit)
	return out, err
}

func (r *webhookEventRepository) CountByStatus(ctx context.Context) (map[domain.EventStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM webhook_events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[domain.EventStatus]int{}
	for rows.Next() {
		var status domain.EventStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
