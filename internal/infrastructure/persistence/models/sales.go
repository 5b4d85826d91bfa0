package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SalesInvoiceModel is the persistence model for posted sales invoices.
type SalesInvoiceModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_sales_invoices_no,priority:1;uniqueIndex:uq_sales_invoices_event,priority:1"`
	InvoiceNo          string          `gorm:"type:varchar(40);not null;uniqueIndex:uq_sales_invoices_no,priority:2"`
	CustomerID         *uuid.UUID      `gorm:"type:uuid;index"`
	SubtotalUSD        decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	SubtotalLBP        decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TotalUSD           decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	TotalLBP           decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	DiscountTotalUSD   decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	DiscountTotalLBP   decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	ExchangeRate       decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	PricingCurrency    string          `gorm:"type:varchar(3);not null;default:USD"`
	SettlementCurrency string          `gorm:"type:varchar(3);not null;default:USD"`
	WarehouseID        uuid.UUID       `gorm:"type:uuid;not null"`
	SourceEventID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_sales_invoices_event,priority:2"`
	DeviceID           *uuid.UUID      `gorm:"type:uuid"`
	ShiftID            *uuid.UUID      `gorm:"type:uuid"`
	BranchID           *uuid.UUID      `gorm:"type:uuid"`
	CashierID          *uuid.UUID      `gorm:"type:uuid"`
	InvoiceDate        time.Time       `gorm:"type:date;not null"`
	DueDate            time.Time       `gorm:"type:date;not null"`
	ReceiptNo          string          `gorm:"type:varchar(40)"`
	ReceiptMeta        []byte          `gorm:"type:jsonb"`
	CreatedAt          time.Time       `gorm:"not null;default:now()"`

	Lines []SalesInvoiceLineModel `gorm:"foreignKey:InvoiceID"`
}

// TableName returns the table name for GORM
func (SalesInvoiceModel) TableName() string {
	return "sales_invoices"
}

// SalesInvoiceLineModel is one invoice line.
type SalesInvoiceLineModel struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID                  uuid.UUID       `gorm:"type:uuid;not null"`
	Qty                     decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitPriceUSD            decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitPriceLBP            decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	LineTotalUSD            decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	LineTotalLBP            decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	PreDiscountUnitPriceUSD decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	PreDiscountUnitPriceLBP decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	DiscountPct             decimal.Decimal `gorm:"type:numeric(9,6);not null;default:0"`
	DiscountAmountUSD       decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	DiscountAmountLBP       decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	AppliedPromotionID      *uuid.UUID      `gorm:"type:uuid"`
	AppliedPriceListID      *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (SalesInvoiceLineModel) TableName() string {
	return "sales_invoice_lines"
}

// SalesPaymentModel is one tender row of an invoice.
type SalesPaymentModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method             string          `gorm:"type:varchar(40);not null"`
	AppliedUSD         decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	AppliedLBP         decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TenderUSD          decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	TenderLBP          decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	SettlementCurrency string          `gorm:"type:varchar(3);not null;default:USD"`
	Reference          string          `gorm:"type:varchar(80)"`
	AuthCode           string          `gorm:"type:varchar(40)"`
	Provider           string          `gorm:"type:varchar(40)"`
	CreatedAt          time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (SalesPaymentModel) TableName() string {
	return "sales_payments"
}

// SalesReturnModel is the persistence model for posted sales returns.
type SalesReturnModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_sales_returns_no,priority:1;uniqueIndex:uq_sales_returns_event,priority:1"`
	ReturnNo          string          `gorm:"type:varchar(40);not null;uniqueIndex:uq_sales_returns_no,priority:2"`
	InvoiceID         *uuid.UUID      `gorm:"type:uuid;index"`
	TotalUSD          decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	TotalLBP          decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ExchangeRate      decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	WarehouseID       uuid.UUID       `gorm:"type:uuid;not null"`
	SourceEventID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_sales_returns_event,priority:2"`
	DeviceID          *uuid.UUID      `gorm:"type:uuid"`
	ShiftID           *uuid.UUID      `gorm:"type:uuid"`
	BranchID          *uuid.UUID      `gorm:"type:uuid"`
	CashierID         *uuid.UUID      `gorm:"type:uuid"`
	RefundMethod      string          `gorm:"type:varchar(40)"`
	ReasonID          *uuid.UUID      `gorm:"type:uuid"`
	Reason            string          `gorm:"type:text"`
	ReturnDate        time.Time       `gorm:"type:date;not null"`
	RestockingFeeUSD  decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	RestockingFeeLBP  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	RestockingFeeNote string          `gorm:"type:text"`
	CreatedAt         time.Time       `gorm:"not null;default:now()"`

	Lines []SalesReturnLineModel `gorm:"foreignKey:ReturnID"`
}

// TableName returns the table name for GORM
func (SalesReturnModel) TableName() string {
	return "sales_returns"
}

// SalesReturnLineModel is one return line.
type SalesReturnLineModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ReturnID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID       uuid.UUID       `gorm:"type:uuid;not null"`
	Qty          decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitPriceUSD decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitPriceLBP decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	LineTotalUSD decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	LineTotalLBP decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	UnitCostUSD  decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	UnitCostLBP  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	ReasonID     *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (SalesReturnLineModel) TableName() string {
	return "sales_return_lines"
}

// SalesRefundModel is the refund paid out against a return.
type SalesRefundModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	ReturnID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method             string          `gorm:"type:varchar(40);not null"`
	AmountUSD          decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	AmountLBP          decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	SettlementCurrency string          `gorm:"type:varchar(3);not null;default:USD"`
	BankAccountID      *uuid.UUID      `gorm:"type:uuid"`
	Reference          string          `gorm:"type:varchar(80)"`
	SourceEventID      uuid.UUID       `gorm:"type:uuid;not null"`
	DeviceID           *uuid.UUID      `gorm:"type:uuid"`
	CashierID          *uuid.UUID      `gorm:"type:uuid"`
	CreatedAt          time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (SalesRefundModel) TableName() string {
	return "sales_refunds"
}
