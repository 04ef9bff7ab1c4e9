package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/service"
)

// The handlers depend on these interfaces rather than on the concrete
// services so tests can substitute function-field mocks.

type AccountService interface {
	CreateAccount(ctx context.Context, tenantID string) (*domain.Tenant, error)
	CreateOnboardingLink(ctx context.Context, tenantID string) (*domain.OnboardingLink, error)
	GetStatus(ctx context.Context, tenantID string) (*domain.AccountStatus, error)
}

type PlanService interface {
	CreatePlan(ctx context.Context, tenantID string, in domain.PlanInput) (*domain.MembershipPlan, error)
	ListPlans(ctx context.Context, tenantID string) ([]domain.MembershipPlan, error)
}

type SubscriptionService interface {
	FindOrCreateCustomer(ctx context.Context, tenantID, studentID, paymentMethodID string) (*domain.Student, error)
	CreateSubscription(ctx context.Context, tenantID string, in service.SubscriptionInput) (*domain.Student, error)
	UpdateSubscription(ctx context.Context, tenantID, subscriptionID, newPriceID string) (*domain.Student, error)
	CancelSubscription(ctx context.Context, tenantID, studentID, subscriptionID string) (*domain.CancellationResult, error)
	UpdatePaymentMethod(ctx context.Context, tenantID, studentID, paymentMethodID string) error
}

type MetricsService interface {
	GetMetrics(ctx context.Context, tenantID string, refresh bool) (*domain.Metrics, error)
}

type LedgerService interface {
	RecordManualPayment(ctx context.Context, tenantID string, in domain.ManualPaymentInput) (*domain.Payment, error)
	ListInvoices(ctx context.Context, tenantID, studentID string) ([]domain.Invoice, error)
	GetInvoice(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error)
	ListPayments(ctx context.Context, tenantID, studentID string) ([]domain.Payment, error)
}

type NotificationLister interface {
	List(ctx context.Context, tenantID string, limit int) ([]domain.Notification, error)
}

// Services groups the tenant-scoped billing services behind /api.
type Services struct {
	Accounts      AccountService
	Plans         PlanService
	Subscriptions SubscriptionService
	Metrics       MetricsService
	Ledger        LedgerService
	Notifications NotificationLister
}

// BillingHandler serves the tenant-scoped billing API.
type BillingHandler struct {
	svc Services
}

// NewBillingHandler creates the tenant API handler over s.
func NewBillingHandler(s Services) *BillingHandler {
	return &BillingHandler{svc: s}
}

// Routes mounts every tenant-scoped route behind the tenant middleware.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireTenant)

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.CreateAccount)
		r.Post("/onboarding-link", h.CreateOnboardingLink)
		r.Get("/status", h.GetAccountStatus)
	})

	r.Post("/plans", h.CreatePlan)
	r.Get("/plans", h.ListPlans)

	r.Post("/subscriptions", h.CreateSubscription)
	r.Put("/subscriptions/{subscriptionID}", h.UpdateSubscription)
	r.Post("/subscriptions/{subscriptionID}/cancel", h.CancelSubscription)

	r.Post("/students/{studentID}/customer", h.FindOrCreateCustomer)
	r.Put("/students/{studentID}/payment-method", h.UpdatePaymentMethod)

	r.Get("/billing/metrics", h.GetMetrics)

	r.Get("/invoices", h.ListInvoices)
	r.Get("/invoices/{invoiceID}", h.GetInvoice)
	r.Get("/payments", h.ListPayments)
	r.Post("/payments", h.RecordPayment)

	r.Get("/notifications", h.ListNotifications)
	return r
}

// @Summary      Provision the tenant's processor sub-account
// @Description  Idempotent: returns the tenant unchanged when its sub-account is still valid
// @Tags         accounts
// @Produce      json
// @Param        X-Tenant-ID  header    string  true  "Tenant ID"
// @Success      200  {object}  domain.Tenant
// @Failure      404  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /api/accounts [post]
func (h *BillingHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.svc.Accounts.CreateAccount(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tenant)
}

// @Summary      Create an onboarding link
// @Tags         accounts
// @Produce      json
// @Param        X-Tenant-ID  header    string  true  "Tenant ID"
// @Success      200  {object}  domain.OnboardingLink
// @Failure      409  {object}  errorResponse
// @Router       /api/accounts/onboarding-link [post]
func (h *BillingHandler) CreateOnboardingLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.Accounts.CreateOnboardingLink(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, link)
}

// @Summary      Sub-account onboarding status
// @Tags         accounts
// @Produce      json
// @Param        X-Tenant-ID  header    string  true  "Tenant ID"
// @Success      200  {object}  domain.AccountStatus
// @Router       /api/accounts/status [get]
func (h *BillingHandler) GetAccountStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Accounts.GetStatus(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// @Summary      Create a membership plan
// @Description  Creates a monthly processor price when price_id is omitted
// @Tags         plans
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header    string            true  "Tenant ID"
// @Param        plan         body      domain.PlanInput  true  "Plan"
// @Success      201  {object}  domain.MembershipPlan
// @Failure      400  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /api/plans [post]
func (h *BillingHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in domain.PlanInput
	if !decodeBody(w, r, &in) {
		return
	}
	plan, err := h.svc.Plans.CreatePlan(r.Context(), TenantFromContext(r.Context()), in)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, plan)
}

// @Summary      List membership plans
// @Tags         plans
// @Produce      json
// @Param        X-Tenant-ID  header    string  true  "Tenant ID"
// @Success      200  {array}   domain.MembershipPlan
// @Router       /api/plans [get]
func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Plans.ListPlans(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plans)
}

// @Summary      Subscribe a student to a price
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID   header    string                     true  "Tenant ID"
// @Param        subscription  body      service.SubscriptionInput  true  "Subscription"
// @Success      201  {object}  domain.Student
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /api/subscriptions [post]
func (h *BillingHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var in service.SubscriptionInput
	if !decodeBody(w, r, &in) {
		return
	}
	student, err := h.svc.Subscriptions.CreateSubscription(r.Context(), TenantFromContext(r.Context()), in)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, student)
}

type updateSubscriptionRequest struct {
	PriceID string `json:"price_id"`
}

// @Summary      Change a subscription's plan
// @Description  Swaps the primary price with proration
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID     header    string                     true  "Tenant ID"
// @Param        subscriptionID  path      string                     true  "Subscription ID"
// @Param        body            body      updateSubscriptionRequest  true  "New price"
// @Success      200  {object}  domain.Student
// @Failure      404  {object}  errorResponse
// @Router       /api/subscriptions/{subscriptionID} [put]
func (h *BillingHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var in updateSubscriptionRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if in.PriceID == "" {
		respondWithError(w, http.StatusBadRequest, "price_id is required", "")
		return
	}
	student, err := h.svc.Subscriptions.UpdateSubscription(r.Context(), TenantFromContext(r.Context()),
		chi.URLParam(r, "subscriptionID"), in.PriceID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, student)
}

type cancelSubscriptionRequest struct {
	StudentID string `json:"student_id"`
}

// @Summary      Cancel a subscription at period end
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID     header    string                     true  "Tenant ID"
// @Param        subscriptionID  path      string                     true  "Subscription ID"
// @Param        body            body      cancelSubscriptionRequest  true  "Owning student"
// @Success      200  {object}  domain.CancellationResult
// @Failure      404  {object}  errorResponse
// @Router       /api/subscriptions/{subscriptionID}/cancel [post]
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var in cancelSubscriptionRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if in.StudentID == "" {
		respondWithError(w, http.StatusBadRequest, "student_id is required", "")
		return
	}
	res, err := h.svc.Subscriptions.CancelSubscription(r.Context(), TenantFromContext(r.Context()),
		in.StudentID, chi.URLParam(r, "subscriptionID"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// @Summary      Find or create the student's processor customer
// @Tags         students
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header    string                true   "Tenant ID"
// @Param        studentID    path      string                true   "Student ID"
// @Param        body         body      paymentMethodRequest  false  "Optional payment method"
// @Success      200  {object}  domain.Student
// @Router       /api/students/{studentID}/customer [post]
func (h *BillingHandler) FindOrCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in paymentMethodRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &in) {
		return
	}
	student, err := h.svc.Subscriptions.FindOrCreateCustomer(r.Context(), TenantFromContext(r.Context()),
		chi.URLParam(r, "studentID"), in.PaymentMethodID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, student)
}

// @Summary      Replace the student's default payment method
// @Tags         students
// @Accept       json
// @Param        X-Tenant-ID  header    string                true  "Tenant ID"
// @Param        studentID    path      string                true  "Student ID"
// @Param        body         body      paymentMethodRequest  true  "Payment method"
// @Success      204  {string}  string "No Content"
// @Failure      409  {object}  errorResponse
// @Router       /api/students/{studentID}/payment-method [put]
func (h *BillingHandler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in paymentMethodRequest
	if !decodeBody(w, r, &in) {
		return
	}
	err := h.svc.Subscriptions.UpdatePaymentMethod(r.Context(), TenantFromContext(r.Context()),
		chi.URLParam(r, "studentID"), in.PaymentMethodID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Recurring revenue metrics
// @Tags         billing
// @Produce      json
// @Param        X-Tenant-ID  header    string  true   "Tenant ID"
// @Param        refresh      query     bool    false  "Bypass the cache"
// @Success      200  {object}  domain.Metrics
// @Failure      503  {object}  errorResponse
// @Router       /api/billing/metrics [get]
func (h *BillingHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	m, err := h.svc.Metrics.GetMetrics(r.Context(), TenantFromContext(r.Context()), refresh)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, m)
}

// @Summary      List mirrored invoices
// @Tags         ledger
// @Produce      json
// @Param        X-Tenant-ID  header    string  true   "Tenant ID"
// @Param        student_id   query     string  false  "Student filter"
// @Success      200  {array}   domain.Invoice
// @Router       /api/invoices [get]
func (h *BillingHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.Ledger.ListInvoices(r.Context(), TenantFromContext(r.Context()), r.URL.Query().Get("student_id"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, invoices)
}

// @Summary      Get an invoice with its line items
// @Tags         ledger
// @Produce      json
// @Param        X-Tenant-ID  header    string  true  "Tenant ID"
// @Param        invoiceID    path      string  true  "Invoice ID"
// @Success      200  {object}  domain.Invoice
// @Failure      404  {object}  errorResponse
// @Router       /api/invoices/{invoiceID} [get]
func (h *BillingHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.Ledger.GetInvoice(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "invoiceID"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, inv)
}

// @Summary      List payments
// @Tags         ledger
// @Produce      json
// @Param        X-Tenant-ID  header    string  true   "Tenant ID"
// @Param        student_id   query     string  false  "Student filter"
// @Success      200  {array}   domain.Payment
// @Router       /api/payments [get]
func (h *BillingHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.Ledger.ListPayments(r.Context(), TenantFromContext(r.Context()), r.URL.Query().Get("student_id"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payments)
}

// @Summary      Record a manual payment
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID  header    string                     true  "Tenant ID"
// @Param        payment      body      domain.ManualPaymentInput  true  "Payment"
// @Success      201  {object}  domain.Payment
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/payments [post]
func (h *BillingHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var in domain.ManualPaymentInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.svc.Ledger.RecordManualPayment(r.Context(), TenantFromContext(r.Context()), in)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

// @Summary      List the tenant's notifications
// @Tags         notifications
// @Produce      json
// @Param        X-Tenant-ID  header    string  true   "Tenant ID"
// @Param        limit        query     int     false  "Maximum entries"
// @Success      200  {array}   domain.Notification
// @Router       /api/notifications [get]
func (h *BillingHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.svc.Notifications.List(r.Context(), TenantFromContext(r.Context()), limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// --- helpers ---

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "")
		return false
	}
	return true
}

// respondWithServiceError maps the domain error taxonomy onto status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidSignature):
		respondWithError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrPrecondition):
		respondWithError(w, http.StatusConflict, err.Error(), domain.HintOf(err))
	case errors.Is(err, domain.ErrExternalService):
		slog.Error("payment processor call failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "payment processor unavailable", "")
	default:
		slog.Error("unhandled service error", "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func respondWithError(w http.ResponseWriter, code int, message, hint string) {
	slog.Warn("API error", "code", code, "message", message)
	respondWithJSON(w, code, errorResponse{Error: message, Hint: hint})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
