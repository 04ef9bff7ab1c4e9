package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

const reconcileBatch = 50

// Reconciler replays journaled gap and failed events until they settle or run
// out of attempts.
type Reconciler struct {
	events      repository.WebhookEventRepository
	webhooks    *WebhookService
	interval    time.Duration
	maxAttempts int
}

// NewReconciler creates a Reconciler. Events reaching maxAttempts are marked dead.
func NewReconciler(events repository.WebhookEventRepository, webhooks *WebhookService, interval time.Duration, maxAttempts int) *Reconciler {
	return &Reconciler{events: events, webhooks: webhooks, interval: interval, maxAttempts: maxAttempts}
}

// Run ticks until ctx is done. A non-positive interval disables it.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		slog.Info("reconciler disabled")
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("reconciler started", "interval", r.interval.String(), "max_attempts", r.maxAttempts)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Error("reconciler pass failed", "error", err)
			}
		}
	}
}

// RunOnce makes one pass and returns how many events it replayed.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	replayed := 0
	for _, status := range []domain.EventStatus{domain.EventGap, domain.EventFailed} {
		pending, err := r.events.ListByStatus(ctx, status, reconcileBatch)
		if err != nil {
			return replayed, err
		}
		for _, e := range pending {
			if ctx.Err() != nil {
				return replayed, ctx.Err()
			}
			if e.Attempts >= r.maxAttempts {
				if err := r.events.MarkOutcome(ctx, e.ID, domain.EventDead, e.LastError); err != nil {
					return replayed, err
				}
				reconcilerRunsTotal.WithLabelValues(string(domain.EventDead)).Inc()
				slog.Warn("webhook event given up", "event_id", e.ID, "event_type", e.Type, "attempts", e.Attempts, "last_error", e.LastError)
				continue
			}

			evt, err := processor.ParseEvent(e.Payload)
			if err != nil {
				if err := r.events.MarkOutcome(ctx, e.ID, domain.EventDead, err.Error()); err != nil {
					return replayed, err
				}
				continue
			}
			if err := r.webhooks.process(ctx, evt, true); err != nil {
				slog.Warn("replayed event still failing", "event_id", e.ID, "error", err)
			}
			replayed++
			reconcilerRunsTotal.WithLabelValues("replayed").Inc()
		}
	}
	return replayed, nil
}
