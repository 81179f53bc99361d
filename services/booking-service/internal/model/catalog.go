package model

import (
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryCut       Category = "cut"
	CategoryColor     Category = "color"
	CategoryStyle     Category = "style"
	CategoryTreatment Category = "treatment"
	CategorySpecial   Category = "special"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCut, CategoryColor, CategoryStyle, CategoryTreatment, CategorySpecial:
		return true
	}
	return false
}

type Service struct {
	ID              string
	TenantID        string
	Name            string
	Category        Category
	DurationMinutes int
	Price           decimal.Decimal
	Description     string
	Active          bool
}

type Staff struct {
	ID       string
	TenantID string
	Name     string
	Role     string
	Email    string
	Phone    string
	Active   bool
}

// Settings is the per-tenant booking policy.
type Settings struct {
	TenantID              string
	ManualApprovalEnabled bool
	OnlineDepositsEnabled bool
	DepositAmount         decimal.Decimal
	PayPalLink            string
}

// DefaultSettings is the policy applied to tenants that never saved settings.
func DefaultSettings(tenantID string) Settings {
	return Settings{TenantID: tenantID, DepositAmount: decimal.Zero}
}

// InitialStatus is the status a new appointment starts in under this policy.
func (s Settings) InitialStatus() Status {
	if s.ManualApprovalEnabled {
		return StatusPending
	}
	return StatusConfirmed
}

// DepositDue is the deposit captured on a new appointment under this policy.
func (s Settings) DepositDue() decimal.Decimal {
	if !s.OnlineDepositsEnabled || s.DepositAmount.IsNegative() {
		return decimal.Zero
	}
	return s.DepositAmount
}
