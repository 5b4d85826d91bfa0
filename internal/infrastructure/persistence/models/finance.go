package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GLJournalModel is a posted journal header. The (company, source) pair is
// unique so replays find the existing journal instead of double posting.
type GLJournalModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_gl_journals_no,priority:1;uniqueIndex:uq_gl_journals_source,priority:1"`
	JournalNo    string          `gorm:"type:varchar(48);not null;uniqueIndex:uq_gl_journals_no,priority:2"`
	JournalDate  time.Time       `gorm:"type:date;not null"`
	ExchangeRate decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	Memo         string          `gorm:"type:text"`
	SourceType   string          `gorm:"type:varchar(40);not null;uniqueIndex:uq_gl_journals_source,priority:2"`
	SourceID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_gl_journals_source,priority:3"`
	DeviceID     *uuid.UUID      `gorm:"type:uuid"`
	CashierID    *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt    time.Time       `gorm:"not null;default:now()"`

	Entries []GLEntryModel `gorm:"foreignKey:JournalID"`
}

// TableName returns the table name for GORM
func (GLJournalModel) TableName() string {
	return "gl_journals"
}

// GLEntryModel is one journal leg.
type GLEntryModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	JournalID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID uuid.UUID       `gorm:"type:uuid;not null;index"`
	DebitUSD  decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	DebitLBP  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	CreditUSD decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	CreditLBP decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Memo      string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (GLEntryModel) TableName() string {
	return "gl_entries"
}

// TaxLineModel is one VAT reporting row attached to a document.
type TaxLineModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	SourceType string          `gorm:"type:varchar(40);not null;index:idx_tax_lines_source,priority:1"`
	SourceID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_tax_lines_source,priority:2"`
	TaxCodeID  uuid.UUID       `gorm:"type:uuid;not null"`
	BaseUSD    decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	BaseLBP    decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TaxUSD     decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	TaxLBP     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TaxDate    *time.Time      `gorm:"type:date"`
	CreatedAt  time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (TaxLineModel) TableName() string {
	return "tax_lines"
}

// LoyaltyLedgerModel is the customer loyalty ledger; the (company, source)
// key makes point grants idempotent.
type LoyaltyLedgerModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_loyalty_source,priority:1"`
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;index"`
	SourceType string          `gorm:"type:varchar(40);not null;uniqueIndex:uq_loyalty_source,priority:2"`
	SourceID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_loyalty_source,priority:3"`
	Points     decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	CreatedAt  time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (LoyaltyLedgerModel) TableName() string {
	return "customer_loyalty_ledger"
}

// AccountingPeriodLockModel closes a posting-date range for a company.
type AccountingPeriodLockModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index"`
	StartDate time.Time `gorm:"type:date;not null"`
	EndDate   time.Time `gorm:"type:date;not null"`
	LockedAt  time.Time `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (AccountingPeriodLockModel) TableName() string {
	return "accounting_period_locks"
}
