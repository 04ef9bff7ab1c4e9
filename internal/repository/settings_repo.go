package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/dessignio/lusa-app-sub001/internal/domain"
)

// SettingsRepository is the SQL-backed domain.SettingsStore.
type SettingsRepository interface {
	domain.SettingsStore
	Put(ctx context.Context, tenantID string, s domain.TenantSettings) error
}

type settingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a SettingsRepository backed by the tenant_settings table.
func NewSettingsRepository(db *sqlx.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// Get returns the zero settings when the tenant has none.
func (r *settingsRepository) Get(ctx context.Context, tenantID string) (domain.TenantSettings, error) {
	var s domain.TenantSettings
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT enrollment_fee_price_id, audition_fee_product_id, currency
		FROM tenant_settings WHERE tenant_id = ?`), tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TenantSettings{}, nil
	}
	return s, err
}

func (r *settingsRepository) Put(ctx context.Context, tenantID string, s domain.TenantSettings) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO tenant_settings (tenant_id, enrollment_fee_price_id, audition_fee_product_id, currency)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enrollment_fee_price_id = excluded.enrollment_fee_price_id,
			audition_fee_product_id = excluded.audition_fee_product_id,
			currency = excluded.currency`),
		tenantID, s.EnrollmentFeePriceID, s.AuditionFeeProductID, s.Currency)
	return err
}
