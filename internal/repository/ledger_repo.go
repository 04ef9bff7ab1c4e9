package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// LedgerRepository holds the local mirror of invoices and payments.
type LedgerRepository interface {
	// UpsertInvoice inserts or refreshes an invoice keyed by its external id and
	// replaces its line items. It returns the local invoice id.
	UpsertInvoice(ctx context.Context, inv domain.Invoice) (string, error)
	// UpsertPayment inserts or refreshes a payment keyed by its external
	// transaction id. It returns the local payment id.
	UpsertPayment(ctx context.Context, p domain.Payment) (string, error)
	// CreatePayment inserts p. A reused external transaction id is ErrDuplicate.
	CreatePayment(ctx context.Context, p domain.Payment) (*domain.Payment, error)
	GetInvoice(ctx context.Context, tenantID, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, tenantID, studentID string) ([]domain.Invoice, error)
	ListPayments(ctx context.Context, tenantID, studentID string) ([]domain.Payment, error)
}

type ledgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a LedgerRepository backed by db.
func NewLedgerRepository(db *sqlx.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

const invoiceColumns = `id, tenant_id, student_id, membership_plan_id, invoice_number, issue_date, due_date,
	subtotal, tax, total, amount_paid, amount_due, status, external_invoice_id, created_at`

const paymentColumns = `id, tenant_id, student_id, membership_plan_id, amount, payment_date, method,
	external_transaction_id, invoice_id, notes, created_at`

func (r *ledgerRepository) UpsertInvoice(ctx context.Context, inv domain.Invoice) (string, error) {
	if inv.ExternalInvoiceID == nil || *inv.ExternalInvoiceID == "" {
		return "", errors.New("upsert invoice: external invoice id is required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_invoice_id) DO UPDATE SET
			membership_plan_id = excluded.membership_plan_id,
			invoice_number = excluded.invoice_number,
			issue_date = excluded.issue_date,
			due_date = excluded.due_date,
			subtotal = excluded.subtotal,
			tax = excluded.tax,
			total = excluded.total,
			amount_paid = excluded.amount_paid,
			amount_due = excluded.amount_due,
			status = excluded.status
		RETURNING id`),
		uuid.NewString(), inv.TenantID, inv.StudentID, inv.PlanID, inv.Number, inv.IssueDate, inv.DueDate,
		inv.Subtotal, inv.Tax, inv.Total, inv.AmountPaid, inv.AmountDue, inv.Status, inv.ExternalInvoiceID, now(),
	).Scan(&id)
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM invoice_line_items WHERE invoice_id = ?`), id); err != nil {
		return "", err
	}
	for i, it := range inv.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO invoice_line_items (id, invoice_id, position, description, quantity, unit_price, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			it.ID, id, i, it.Description, it.Quantity, it.UnitPrice, it.Amount)
		if err != nil {
			return "", err
		}
	}
	return id, tx.Commit()
}

func (r *ledgerRepository) UpsertPayment(ctx context.Context, p domain.Payment) (string, error) {
	if p.ExternalTransactionID == nil || *p.ExternalTransactionID == "" {
		return "", errors.New("upsert payment: external transaction id is required")
	}
	var id string
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_transaction_id) DO UPDATE SET
			amount = excluded.amount,
			payment_date = excluded.payment_date,
			invoice_id = excluded.invoice_id,
			membership_plan_id = excluded.membership_plan_id
		RETURNING id`),
		uuid.NewString(), p.TenantID, p.StudentID, p.PlanID, p.Amount, p.PaymentDate, p.Method,
		p.ExternalTransactionID, p.InvoiceID, p.Notes, now(),
	).Scan(&id)
	return id, err
}

func (r *ledgerRepository) CreatePayment(ctx context.Context, p domain.Payment) (*domain.Payment, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.TenantID, p.StudentID, p.PlanID, p.Amount, p.PaymentDate, p.Method,
		p.ExternalTransactionID, p.InvoiceID, p.Notes, p.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("payment %w", ErrDuplicate)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ledgerRepository) GetInvoice(ctx context.Context, tenantID, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := r.db.GetContext(ctx, &inv, r.db.Rebind(`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = ? AND id = ?`), tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv.Items = []domain.InvoiceLineItem{}
	err = r.db.SelectContext(ctx, &inv.Items, r.db.Rebind(`
		SELECT id, invoice_id, description, quantity, unit_price, amount
		FROM invoice_line_items WHERE invoice_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *ledgerRepository) ListInvoices(ctx context.Context, tenantID, studentID string) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tenant_id = ?`
	args := []any{tenantID}
	if studentID != "" {
		query += ` AND student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY issue_date DESC, invoice_number DESC`

	invoices := []domain.Invoice{}
	err := r.db.SelectContext(ctx, &invoices, r.db.Rebind(query), args...)
	return invoices, err
}

func (r *ledgerRepository) ListPayments(ctx context.Context, tenantID, studentID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = ?`
	args := []any{tenantID}
	if studentID != "" {
		query += ` AND student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY payment_date DESC`

	payments := []domain.Payment{}
	err := r.db.SelectContext(ctx, &payments, r.db.Rebind(query), args...)
	return payments, err
}
