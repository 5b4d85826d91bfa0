package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerModel carries the credit slice of a customer this worker reads
// and updates.
type CustomerModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	CreditLimitUSD   decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	CreditLimitLBP   decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	CreditBalanceUSD decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	CreditBalanceLBP decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	PaymentTermsDays int             `gorm:"not null;default:0"`
	LoyaltyPoints    decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	UpdatedAt        time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// SupplierModel carries the payment-terms slice of a supplier.
type SupplierModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID        uuid.UUID `gorm:"type:uuid;not null;index"`
	PaymentTermsDays int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SupplierModel) TableName() string {
	return "suppliers"
}

// TaxCodeModel is a tax code; only type "vat" participates in VAT math.
type TaxCodeModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID uuid.UUID       `gorm:"type:uuid;not null;index"`
	CodeType  string          `gorm:"type:varchar(20);not null;default:vat"`
	Rate      decimal.Decimal `gorm:"type:numeric(9,6);not null;default:0"`
}

// TableName returns the table name for GORM
func (TaxCodeModel) TableName() string {
	return "tax_codes"
}

// CompanyAccountDefaultModel maps a GL role to an account for a company.
type CompanyAccountDefaultModel struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role      string    `gorm:"type:varchar(32);primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (CompanyAccountDefaultModel) TableName() string {
	return "company_account_defaults"
}

// PaymentMethodMappingModel maps a tender method to its GL account.
type PaymentMethodMappingModel struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Method    string    `gorm:"type:varchar(40);primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (PaymentMethodMappingModel) TableName() string {
	return "payment_method_mappings"
}

// CompanySettingModel is a keyed JSON settings blob (loyalty, inventory).
type CompanySettingModel struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key       string    `gorm:"type:varchar(40);primaryKey"`
	Value     []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (CompanySettingModel) TableName() string {
	return "company_settings"
}

// PosDeviceModel ties a device to its branch.
type PosDeviceModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID uuid.UUID  `gorm:"type:uuid;not null;index"`
	BranchID  *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (PosDeviceModel) TableName() string {
	return "pos_devices"
}

// PosShiftModel is a register shift; open shifts have no closed_at.
type PosShiftModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID uuid.UUID  `gorm:"type:uuid;not null;index:idx_pos_shifts_device,priority:1"`
	DeviceID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_pos_shifts_device,priority:2"`
	OpenedAt  time.Time  `gorm:"not null"`
	ClosedAt  *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (PosShiftModel) TableName() string {
	return "pos_shifts"
}

// CashMovementModel is one operational cash entry on a shift.
type CashMovementModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ShiftID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	DeviceID     *uuid.UUID      `gorm:"type:uuid"`
	MovementType string          `gorm:"type:varchar(20);not null"`
	AmountUSD    decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	AmountLBP    decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Notes        string          `gorm:"type:text"`
	CashierID    *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt    time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (CashMovementModel) TableName() string {
	return "cash_movements"
}
