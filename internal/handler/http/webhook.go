package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

const maxWebhookBytes = int64(65536)

// WebhookProcessor verifies and applies one raw processor event.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

// EventJournal is the admin view over journaled processor events.
type EventJournal interface {
	ListEvents(ctx context.Context, status domain.EventStatus, limit int) ([]domain.WebhookEvent, error)
	CountEvents(ctx context.Context) (map[domain.EventStatus]int, error)
	Replay(ctx context.Context, eventID string) (*domain.WebhookEvent, error)
}

// WebhookHandler receives processor webhooks.
type WebhookHandler struct {
	processor WebhookProcessor
}

// NewWebhookHandler creates a WebhookHandler that hands payloads to p.
func NewWebhookHandler(p WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: p}
}

// @Summary      Receive a payment processor event
// @Description  Verifies the Stripe-Signature header, journals and dispatches the event
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header    string  true  "Signature header"
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "webhook body too large", "")
			return
		}
		slog.Error("failed to read webhook body", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "failed to read request body", "")
		return
	}

	if err := h.processor.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// AdminCredentials guard the operator routes with HTTP basic auth.
type AdminCredentials struct {
	User     string
	Password string
}

// AdminHandler exposes the cross-tenant event journal to operators. It is
// meant for the internal network only.
type AdminHandler struct {
	journal EventJournal
	creds   AdminCredentials
}

// NewAdminHandler creates an AdminHandler. Without a password every admin
// route answers 403.
func NewAdminHandler(j EventJournal, creds AdminCredentials) *AdminHandler {
	return &AdminHandler{journal: j, creds: creds}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.creds.Password == "" {
		r.Use(adminDisabled)
	} else {
		r.Use(middleware.BasicAuth("billing-admin", map[string]string{h.creds.User: h.creds.Password}))
	}
	r.Get("/webhook-events", h.ListEvents)
	r.Post("/webhook-events/{eventID}/replay", h.ReplayEvent)
	return r
}

func adminDisabled(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusForbidden, "admin routes are disabled", "set ADMIN_PASSWORD to enable them")
	})
}

type eventList struct {
	Counts map[domain.EventStatus]int `json:"counts"`
	Events []domain.WebhookEvent      `json:"events"`
}

// @Summary      List journaled webhook events
// @Tags         admin
// @Produce      json
// @Param        status  query     string  false  "received, processed, discarded, gap, failed or dead (default gap)"
// @Param        limit   query     int     false  "Maximum entries"
// @Success      200  {object}  eventList
// @Router       /admin/webhook-events [get]
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	status := domain.EventStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.EventGap
	}
	if !status.Valid() {
		respondWithError(w, http.StatusBadRequest, "unknown event status "+strconv.Quote(string(status)), "")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.journal.ListEvents(r.Context(), status, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	counts, err := h.journal.CountEvents(r.Context())
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, eventList{Counts: counts, Events: events})
}

// @Summary      Replay a journaled webhook event
// @Tags         admin
// @Produce      json
// @Param        eventID  path      string  true  "Processor event ID"
// @Success      200  {object}  domain.WebhookEvent
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/webhook-events/{eventID}/replay [post]
func (h *AdminHandler) ReplayEvent(w http.ResponseWriter, r *http.Request) {
	evt, err := h.journal.Replay(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, evt)
}
