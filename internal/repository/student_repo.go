package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// StudentRepository exposes the billable-subject contract of the student
// store. Only the columns owned by billing are writable here.
type StudentRepository interface {
	Create(ctx context.Context, s domain.Student) (*domain.Student, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Student, error)
	FindByCustomerID(ctx context.Context, tenantID, customerID string) (*domain.Student, error)
	// FindBySubscriptionID is not tenant scoped: processor events are global.
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Student, error)
	UpdateCustomerID(ctx context.Context, id, customerID string) error
	// UpdateSubscription writes the subscription-owned columns of s.
	UpdateSubscription(ctx context.Context, s domain.Student) error
}

type studentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a StudentRepository backed by db.
func NewStudentRepository(db *sqlx.DB) StudentRepository {
	return &studentRepository{db: db}
}

const studentColumns = `id, tenant_id, name, email, customer_id, subscription_id, subscription_status,
	membership_plan_id, membership_plan_name, membership_start_date, membership_renewal_date, updated_at`

func (r *studentRepository) Create(ctx context.Context, s domain.Student) (*domain.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.UpdatedAt = now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO students (`+studentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.TenantID, s.Name, s.Email, s.CustomerID, s.SubscriptionID, s.Status,
		s.PlanID, s.PlanName, s.MembershipStart, s.RenewalDate, s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *studentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE tenant_id = ? AND id = ?`, tenantID, id)
}

func (r *studentRepository) FindByCustomerID(ctx context.Context, tenantID, customerID string) (*domain.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE tenant_id = ? AND customer_id = ?`, tenantID, customerID)
}

func (r *studentRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE subscription_id = ?`, subscriptionID)
}

func (r *studentRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Student, error) {
	var s domain.Student
	err := r.db.GetContext(ctx, &s, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *studentRepository) UpdateCustomerID(ctx context.Context, id, customerID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE students SET customer_id = ?, updated_at = ? WHERE id = ?`), customerID, now(), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *studentRepository) UpdateSubscription(ctx context.Context, s domain.Student) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE students SET
			subscription_id = ?, subscription_status = ?, membership_plan_id = ?, membership_plan_name = ?,
			membership_start_date = ?, membership_renewal_date = ?, updated_at = ?
		WHERE id = ?`),
		s.SubscriptionID, s.Status, s.PlanID, s.PlanName, s.MembershipStart, s.RenewalDate, now(), s.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}
