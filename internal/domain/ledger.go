package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "Draft"
	InvoiceSent          InvoiceStatus = "Sent"
	InvoicePaid          InvoiceStatus = "Paid"
	InvoiceOverdue       InvoiceStatus = "Overdue"
	InvoiceVoid          InvoiceStatus = "Void"
	InvoiceUncollectible InvoiceStatus = "Uncollectible"
)

// Invoice is the local mirror of a paid processor invoice.
type Invoice struct {
	ID                string          `db:"id" json:"id"`
	TenantID          string          `db:"tenant_id" json:"tenant_id"`
	StudentID         string          `db:"student_id" json:"student_id"`
	PlanID            *string         `db:"membership_plan_id" json:"membership_plan_id,omitempty"`
	Number            string          `db:"invoice_number" json:"invoice_number"`
	IssueDate         time.Time       `db:"issue_date" json:"issue_date"`
	DueDate           time.Time       `db:"due_date" json:"due_date"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax               decimal.Decimal `db:"tax" json:"tax"`
	Total             decimal.Decimal `db:"total" json:"total"`
	AmountPaid        decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	AmountDue         decimal.Decimal `db:"amount_due" json:"amount_due"`
	Status            InvoiceStatus   `db:"status" json:"status"`
	ExternalInvoiceID *string         `db:"external_invoice_id" json:"external_invoice_id,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`

	Items []InvoiceLineItem `db:"-" json:"items"`
}

type InvoiceLineItem struct {
	ID          string          `db:"id" json:"id"`
	InvoiceID   string          `db:"invoice_id" json:"-"`
	Description string          `db:"description" json:"description"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "Cash"
	MethodCard         PaymentMethod = "Card"
	MethodBankTransfer PaymentMethod = "Bank Transfer"
	MethodSubscription PaymentMethod = "Subscription"
	MethodOther        PaymentMethod = "Other"
)

// IsManual reports whether an administrator may record a payment with m.
func (m PaymentMethod) IsManual() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

type Payment struct {
	ID                    string          `db:"id" json:"id"`
	TenantID              string          `db:"tenant_id" json:"tenant_id"`
	StudentID             string          `db:"student_id" json:"student_id"`
	PlanID                *string         `db:"membership_plan_id" json:"membership_plan_id,omitempty"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate           time.Time       `db:"payment_date" json:"payment_date"`
	Method                PaymentMethod   `db:"method" json:"method"`
	ExternalTransactionID *string         `db:"external_transaction_id" json:"external_transaction_id,omitempty"`
	InvoiceID             *string         `db:"invoice_id" json:"invoice_id,omitempty"`
	Notes                 string          `db:"notes" json:"notes,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
}

// ManualPaymentInput is an administrator-recorded payment.
type ManualPaymentInput struct {
	StudentID             string          `json:"student_id"`
	PlanID                *string         `json:"membership_plan_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	PaymentDate           *time.Time      `json:"payment_date,omitempty"`
	Method                PaymentMethod   `json:"method"`
	ExternalTransactionID *string         `json:"external_transaction_id,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
}
