package service

import (
	"context"
	"errors"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
	"github.com/dessignio/lusa-app-sub001/internal/repository"
)

// LedgerService reads the local invoice and payment mirror and records
// administrator-entered payments.
type LedgerService struct {
	students repository.StudentRepository
	plans    repository.PlanRepository
	ledger   repository.LedgerRepository
	now      Clock
}

// NewLedgerService creates a LedgerService over the student, plan and ledger stores.
func NewLedgerService(students repository.StudentRepository, plans repository.PlanRepository, ledger repository.LedgerRepository) *LedgerService {
	return &LedgerService{students: students, plans: plans, ledger: ledger, now: systemClock}
}

// RecordManualPayment stores a payment an administrator collected outside the
// processor. Subscription payments come only from webhooks.
func (s *LedgerService) RecordManualPayment(ctx context.Context, tenantID string, in domain.ManualPaymentInput) (*domain.Payment, error) {
	if in.StudentID == "" {
		return nil, domain.Validation("student_id is required")
	}
	in.PlanID = nonEmpty(in.PlanID)
	in.ExternalTransactionID = nonEmpty(in.ExternalTransactionID)
	if !in.Method.IsManual() {
		return nil, domain.Validation("method must be one of Cash, Card, Bank Transfer, Other")
	}
	if !in.Amount.IsPositive() {
		return nil, domain.Validation("amount must be greater than zero")
	}

	student, err := s.students.GetByID(ctx, tenantID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, domain.NotFound("student " + in.StudentID)
	}
	if in.PlanID != nil {
		plan, err := s.plans.GetByID(ctx, tenantID, *in.PlanID)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, domain.NotFound("plan " + *in.PlanID)
		}
	}

	paid := s.now()
	if in.PaymentDate != nil && !in.PaymentDate.IsZero() {
		paid = in.PaymentDate.UTC()
	}
	p, err := s.ledger.CreatePayment(ctx, domain.Payment{
		TenantID:              tenantID,
		StudentID:             student.ID,
		PlanID:                in.PlanID,
		Amount:                in.Amount.Round(2),
		PaymentDate:           paid,
		Method:                in.Method,
		ExternalTransactionID: in.ExternalTransactionID,
		Notes:                 in.Notes,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, domain.Precondition("external_transaction_id "+*in.ExternalTransactionID+" is already recorded",
			"each external transaction can be recorded once; look up the existing payment instead")
	}
	return p, err
}

func (s *LedgerService) ListInvoices(ctx context.Context, tenantID, studentID string) ([]domain.Invoice, error) {
	return s.ledger.ListInvoices(ctx, tenantID, studentID)
}

func (s *LedgerService) GetInvoice(ctx context.Context, tenantID, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.ledger.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.NotFound("invoice " + invoiceID)
	}
	return inv, nil
}

func (s *LedgerService) ListPayments(ctx context.Context, tenantID, studentID string) ([]domain.Payment, error) {
	return s.ledger.ListPayments(ctx, tenantID, studentID)
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return p
}
