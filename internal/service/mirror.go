package service

import (
	"context"
	"log/slog"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/processor"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

// subscriptionMirror copies remote subscription state onto the student. It is
// the one writer of the subscription fields, shared by the synchronizer and
// the webhook processor.
type subscriptionMirror struct {
	students repository.StudentRepository
	plans    repository.PlanRepository
}

// apply re-reads the student, maps sub onto it and persists it. The remote
// state is authoritative whichever path observed it first.
func (m *subscriptionMirror) apply(ctx context.Context, tenantID, studentID string, sub *processor.Subscription) (*domain.Student, error) {
	student, err := m.students.GetByID(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, domain.ReconciliationGap("student " + studentID + " vanished")
	}

	log := slog.With("tenant_id", tenantID, "student_id", studentID, "subscription_id", sub.ID)

	student.SubscriptionID = &sub.ID
	if st, ok := domain.ParseSubscriptionStatus(sub.Status); ok {
		student.Status = &st
	} else {
		log.Warn("unknown subscription status, keeping previous", "status", sub.Status)
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		renewal := domain.CalendarDate(sub.CurrentPeriodEnd)
		student.RenewalDate = &renewal
	}

	if item, ok := sub.PrimaryPrice(); ok {
		plan, err := m.plans.FindByExternalPriceID(ctx, tenantID, item.Price.ID)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			student.PlanID = &plan.ID
			student.PlanName = &plan.Name
			start := sub.StartDate
			if start.IsZero() {
				start = sub.CurrentPeriodStart
			}
			if !start.IsZero() {
				d := domain.CalendarDate(start)
				student.MembershipStart = &d
			}
		} else {
			log.Warn("no local plan for price, plan fields left unchanged", "price_id", item.Price.ID)
		}
	}

	if err := m.students.UpdateSubscription(ctx, *student); err != nil {
		log.Error("remote subscription state not persisted locally", "error", err)
		return nil, err
	}
	return student, nil
}
