package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoodsReceiptModel is the persistence model for goods receipts.
type GoodsReceiptModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_goods_receipts_no,priority:1;uniqueIndex:uq_goods_receipts_event,priority:1"`
	ReceiptNo     string          `gorm:"type:varchar(40);not null;uniqueIndex:uq_goods_receipts_no,priority:2"`
	SupplierID    *uuid.UUID      `gorm:"type:uuid;index"`
	SupplierRef   string          `gorm:"type:varchar(80)"`
	TotalUSD      decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	TotalLBP      decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ExchangeRate  decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	WarehouseID   uuid.UUID       `gorm:"type:uuid;not null"`
	SourceEventID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_goods_receipts_event,priority:2"`
	ReceivedAt    time.Time       `gorm:"type:date;not null"`
	CreatedAt     time.Time       `gorm:"not null;default:now()"`

	Lines []GoodsReceiptLineModel `gorm:"foreignKey:ReceiptID"`
}

// TableName returns the table name for GORM
func (GoodsReceiptModel) TableName() string {
	return "goods_receipts"
}

// GoodsReceiptLineModel is one receipt line.
type GoodsReceiptLineModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ReceiptID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID       uuid.UUID       `gorm:"type:uuid;not null"`
	BatchID      *uuid.UUID      `gorm:"type:uuid"`
	Qty          decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitCostUSD  decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitCostLBP  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	LineTotalUSD decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	LineTotalLBP decimal.Decimal `gorm:"type:numeric(18,2);not null"`
}

// TableName returns the table name for GORM
func (GoodsReceiptLineModel) TableName() string {
	return "goods_receipt_lines"
}

// SupplierInvoiceModel is the persistence model for supplier invoices.
type SupplierInvoiceModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_supplier_invoices_no,priority:1;uniqueIndex:uq_supplier_invoices_event,priority:1"`
	InvoiceNo     string          `gorm:"type:varchar(40);not null;uniqueIndex:uq_supplier_invoices_no,priority:2"`
	SupplierID    *uuid.UUID      `gorm:"type:uuid;index"`
	SupplierRef   string          `gorm:"type:varchar(80)"`
	TotalUSD      decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	TotalLBP      decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	ExchangeRate  decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	SourceEventID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_supplier_invoices_event,priority:2"`
	InvoiceDate   time.Time       `gorm:"type:date;not null"`
	DueDate       time.Time       `gorm:"type:date;not null"`
	CreatedAt     time.Time       `gorm:"not null;default:now()"`

	Lines    []SupplierInvoiceLineModel `gorm:"foreignKey:InvoiceID"`
	Payments []SupplierPaymentModel     `gorm:"foreignKey:InvoiceID"`
}

// TableName returns the table name for GORM
func (SupplierInvoiceModel) TableName() string {
	return "supplier_invoices"
}

// SupplierInvoiceLineModel is one supplier invoice line.
type SupplierInvoiceLineModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ItemID       uuid.UUID       `gorm:"type:uuid;not null"`
	BatchID      *uuid.UUID      `gorm:"type:uuid"`
	Qty          decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitCostUSD  decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	UnitCostLBP  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	LineTotalUSD decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	LineTotalLBP decimal.Decimal `gorm:"type:numeric(18,2);not null"`
}

// TableName returns the table name for GORM
func (SupplierInvoiceLineModel) TableName() string {
	return "supplier_invoice_lines"
}

// SupplierPaymentModel is one payment attached to a supplier invoice.
type SupplierPaymentModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method    string          `gorm:"type:varchar(40);not null"`
	AmountUSD decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	AmountLBP decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	CreatedAt time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (SupplierPaymentModel) TableName() string {
	return "supplier_payments"
}
