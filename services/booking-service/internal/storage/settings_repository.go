package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

type SettingsRepository struct {
	pool *db.Pool
}

func NewSettingsRepository(pool *db.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetSettings returns the stored policy, or model.DefaultSettings for tenants without a row.
func (r *SettingsRepository) GetSettings(ctx context.Context, tenantID string) (model.Settings, error) {
	var (
		s       model.Settings
		deposit string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id::text, manual_approval_enabled, online_deposits_enabled, deposit_amount::text, paypal_link
		FROM settings
		WHERE tenant_id = $1
	`, tenantID).Scan(&s.TenantID, &s.ManualApprovalEnabled, &s.OnlineDepositsEnabled, &deposit, &s.PayPalLink)
	if IsNotFound(err) {
		return model.DefaultSettings(tenantID), nil
	}
	if err != nil {
		return model.Settings{}, mapError("get settings", err)
	}
	if s.DepositAmount, err = decimal.NewFromString(deposit); err != nil {
		return model.Settings{}, mapError("get settings", err)
	}
	return s, nil
}

func (r *SettingsRepository) UpsertSettings(ctx context.Context, s model.Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settings (tenant_id, manual_approval_enabled, online_deposits_enabled, deposit_amount, paypal_link)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (tenant_id) DO UPDATE
		SET manual_approval_enabled = EXCLUDED.manual_approval_enabled,
			online_deposits_enabled = EXCLUDED.online_deposits_enabled,
			deposit_amount = EXCLUDED.deposit_amount,
			paypal_link = EXCLUDED.paypal_link,
			updated_at = now()
	`, s.TenantID, s.ManualApprovalEnabled, s.OnlineDepositsEnabled, s.DepositAmount.StringFixed(2), s.PayPalLink)
	return mapError("upsert settings", err)
}
