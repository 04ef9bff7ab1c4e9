package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// TenantRepository persists studios and their processor sub-account ids.
type TenantRepository interface {
	Create(ctx context.Context, t domain.Tenant) (*domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetBySubAccountID(ctx context.Context, subAccountID string) (*domain.Tenant, error)
	SetSubAccountID(ctx context.Context, id, subAccountID string) error
}

type tenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a TenantRepository backed by db.
func NewTenantRepository(db *sqlx.DB) TenantRepository {
	return &tenantRepository{db: db}
}

const tenantColumns = `id, name, owner_user_id, owner_email, active, sub_account_id, created_at`

func (r *tenantRepository) Create(ctx context.Context, t domain.Tenant) (*domain.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.Name, t.OwnerUserID, t.OwnerEmail, t.Active, t.SubAccountID, t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID returns nil, nil when the tenant does not exist.
func (r *tenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.GetContext(ctx, &t, r.db.Rebind(`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) GetBySubAccountID(ctx context.Context, subAccountID string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.GetContext(ctx, &t, r.db.Rebind(`SELECT `+tenantColumns+` FROM tenants WHERE sub_account_id = ?`), subAccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tenantRepository) SetSubAccountID(ctx context.Context, id, subAccountID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE tenants SET sub_account_id = ? WHERE id = ?`), subAccountID, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
