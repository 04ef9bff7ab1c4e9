package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

// SubscriptionInput is a request to subscribe a student to a plan price.
type SubscriptionInput struct {
	StudentID       string `json:"student_id"`
	PriceID         string `json:"price_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// SubscriptionService is the customer and subscription synchronizer.
type SubscriptionService struct {
	tenants  repository.TenantRepository
	students repository.StudentRepository
	plans    repository.PlanRepository
	settings domain.SettingsStore
	notifier domain.Notifier
	gateway  processor.Gateway
	mirror   *subscriptionMirror
	now      Clock
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(
	tenants repository.TenantRepository,
	students repository.StudentRepository,
	plans repository.PlanRepository,
	settings domain.SettingsStore,
	notifier domain.Notifier,
	gateway processor.Gateway,
) *SubscriptionService {
	return &SubscriptionService{
		tenants:  tenants,
		students: students,
		plans:    plans,
		settings: settings,
		notifier: notifier,
		gateway:  gateway,
		mirror:   &subscriptionMirror{students: students, plans: plans},
		now:      systemClock,
	}
}

func (s *SubscriptionService) loadStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error) {
	student, err := s.students.GetByID(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, domain.NotFound("student " + studentID)
	}
	return student, nil
}

// FindOrCreateCustomer makes sure the student has a live customer on the
// tenant's sub-account and returns the student as stored afterwards.
func (s *SubscriptionService) FindOrCreateCustomer(ctx context.Context, tenantID, studentID, paymentMethodID string) (*domain.Student, error) {
	_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	student, err := s.loadStudent(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ensureCustomer(ctx, acct, student, paymentMethodID); err != nil {
		return nil, err
	}
	return s.loadStudent(ctx, tenantID, studentID)
}

// ensureCustomer re-validates the stored customer and falls back to creating a
// new one when the stored id no longer resolves.
func (s *SubscriptionService) ensureCustomer(ctx context.Context, acct string, student *domain.Student, paymentMethodID string) (string, error) {
	log := slog.With("tenant_id", student.TenantID, "student_id", student.ID)

	if student.HasCustomer() {
		cus, err := s.gateway.GetCustomer(ctx, acct, *student.CustomerID)
		if err == nil && !cus.Deleted {
			if paymentMethodID != "" && cus.DefaultPaymentMethodID != paymentMethodID {
				if err := s.gateway.SetDefaultPaymentMethod(ctx, acct, cus.ID, paymentMethodID); err != nil {
					return "", err
				}
			}
			return cus.ID, nil
		}
		log.Warn("stored customer is not usable, creating a new one", "customer_id", *student.CustomerID, "error", err)
	}

	cus, err := s.gateway.CreateCustomer(ctx, acct, processor.CustomerRequest{
		Email:           student.Email,
		Name:            student.Name,
		PaymentMethodID: paymentMethodID,
		Metadata:        map[string]string{"student_id": student.ID, "tenant_id": student.TenantID},
	})
	if err != nil {
		return "", err
	}
	if err := s.students.UpdateCustomerID(ctx, student.ID, cus.ID); err != nil {
		log.Error("customer created but not persisted", "customer_id", cus.ID, "error", err)
		return "", err
	}
	log.Info("customer created", "customer_id", cus.ID)
	student.CustomerID = &cus.ID
	return cus.ID, nil
}

// CreateSubscription subscribes the student to in.PriceID. A student's first
// subscription carries the tenant's enrollment fee on the same call.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, tenantID string, in SubscriptionInput) (*domain.Student, error) {
	if in.StudentID == "" {
		return nil, domain.Validation("student_id is required")
	}
	if in.PriceID == "" {
		return nil, domain.Validation("price_id is required")
	}

	_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	student, err := s.loadStudent(ctx, tenantID, in.StudentID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, acct, student, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.FindByExternalPriceID(ctx, tenantID, in.PriceID)
	if err != nil {
		return nil, err
	}

	req := processor.SubscriptionRequest{
		CustomerID:      customerID,
		PriceID:         in.PriceID,
		PaymentMethodID: in.PaymentMethodID,
		Metadata:        map[string]string{"student_id": student.ID, "tenant_id": tenantID},
	}
	if !student.HasSubscription() && settings.EnrollmentFeePriceID != "" {
		req.AddInvoicePriceIDs = []string{settings.EnrollmentFeePriceID}
	}
	if plan != nil && plan.DurationMonths != nil && *plan.DurationMonths > 0 {
		req.CancelAt = s.now().AddDate(0, *plan.DurationMonths, 0)
	}

	sub, err := s.gateway.CreateSubscription(ctx, acct, req)
	if err != nil {
		return nil, err
	}
	slog.Info("subscription created", "tenant_id", tenantID, "student_id", student.ID,
		"subscription_id", sub.ID, "status", sub.Status, "enrollment_fee", len(req.AddInvoicePriceIDs) > 0)

	return s.mirror.apply(ctx, tenantID, student.ID, sub)
}

// UpdateSubscription swaps the plan price with proration and clears any
// pending cancellation.
func (s *SubscriptionService) UpdateSubscription(ctx context.Context, tenantID, subscriptionID, newPriceID string) (*domain.Student, error) {
	if newPriceID == "" {
		return nil, domain.Validation("price_id is required")
	}
	_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if student == nil || student.TenantID != tenantID {
		return nil, domain.NotFound("subscription " + subscriptionID)
	}

	current, err := s.gateway.GetSubscription(ctx, acct, subscriptionID)
	if err != nil {
		return nil, err
	}
	item, ok := current.PrimaryPrice()
	if !ok {
		return nil, domain.Precondition("subscription has no items", "recreate the subscription")
	}
	oldPlan := s.planLabel(ctx, tenantID, item.Price)

	sub := current
	if item.Price.ID != newPriceID || current.CancelAtPeriodEnd {
		keep := false
		sub, err = s.gateway.UpdateSubscription(ctx, acct, subscriptionID, processor.SubscriptionUpdate{
			ItemID:            item.ID,
			PriceID:           newPriceID,
			Prorate:           true,
			CancelAtPeriodEnd: &keep,
		})
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.mirror.apply(ctx, tenantID, student.ID, sub)
	if err != nil {
		return nil, err
	}

	newPlan := newPriceID
	if next, ok := sub.PrimaryPrice(); ok {
		newPlan = s.planLabel(ctx, tenantID, next.Price)
	}
	notify(ctx, s.notifier, tenantID, domain.Notification{
		Title:    "Membership plan changed",
		Message:  fmt.Sprintf("%s moved from %s to %s.", student.Name, oldPlan, newPlan),
		Severity: domain.SeverityInfo,
		Link:     "/students/" + student.ID,
	})
	return updated, nil
}

// CancelSubscription schedules cancellation at period end. The status stays as
// reported by the processor until the subscription actually ends.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, tenantID, studentID, subscriptionID string) (*domain.CancellationResult, error) {
	_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
	if err != nil {
		return nil, err
	}
	student, err := s.loadStudent(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	if valueOr(student.SubscriptionID, "") != subscriptionID {
		return nil, domain.NotFound("subscription " + subscriptionID + " for student " + studentID)
	}

	cancel := true
	sub, err := s.gateway.UpdateSubscription(ctx, acct, subscriptionID, processor.SubscriptionUpdate{CancelAtPeriodEnd: &cancel})
	if err != nil {
		return nil, err
	}
	if _, err := s.mirror.apply(ctx, tenantID, student.ID, sub); err != nil {
		return nil, err
	}

	expires := domain.CalendarDate(sub.CurrentPeriodEnd)
	notify(ctx, s.notifier, tenantID, domain.Notification{
		Title:    "Membership cancellation scheduled",
		Message:  fmt.Sprintf("%s's membership ends on %s.", student.Name, expires.Format("2006-01-02")),
		Severity: domain.SeverityWarning,
		Link:     "/students/" + student.ID,
	})

	return &domain.CancellationResult{
		SubscriptionID:    sub.ID,
		Status:            domain.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		ExpiresOn:         expires,
	}, nil
}

// UpdatePaymentMethod makes paymentMethodID the customer's default. Repeating
// the call with the same instrument is a no-op.
func (s *SubscriptionService) UpdatePaymentMethod(ctx context.Context, tenantID, studentID, paymentMethodID string) error {
	if paymentMethodID == "" {
		return domain.Validation("payment_method_id is required")
	}
	_, acct, err := requireSubAccount(ctx, s.tenants, tenantID)
	if err != nil {
		return err
	}
	student, err := s.loadStudent(ctx, tenantID, studentID)
	if err != nil {
		return err
	}
	if !student.HasCustomer() {
		return domain.Precondition("student has no billing customer", "create a subscription for the student first")
	}

	cus, err := s.gateway.GetCustomer(ctx, acct, *student.CustomerID)
	if err != nil {
		return err
	}
	if cus.DefaultPaymentMethodID == paymentMethodID {
		return nil
	}
	if err := s.gateway.SetDefaultPaymentMethod(ctx, acct, cus.ID, paymentMethodID); err != nil {
		return err
	}
	slog.Info("default payment method updated", "tenant_id", tenantID, "student_id", studentID)
	return nil
}

// planLabel names a price for notifications: local plan, then remote product.
func (s *SubscriptionService) planLabel(ctx context.Context, tenantID string, p processor.Price) string {
	if plan, err := s.plans.FindByExternalPriceID(ctx, tenantID, p.ID); err == nil && plan != nil {
		return plan.Name
	}
	return planKey(p)
}
