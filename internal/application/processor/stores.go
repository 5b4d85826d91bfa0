// Package processor turns validated outbox payloads into posted documents:
// one builder per event type, orchestrated by the dispatcher. All writes of
// one event happen in a single database transaction owned by the dispatcher.
package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/domain/inventory"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/outbox"
)

// Result is the outcome of processing one event. Diagnostics carry
// non-fatal observations for the dispatcher log.
type Result struct {
	Status      string
	DocumentID  uuid.UUID
	Diagnostics []string
}

const (
	StatusProcessed = "processed"
	StatusDuplicate = "duplicate"
)

// Builder processes one event type.
type Builder interface {
	EventType() outbox.EventType
	Process(ctx context.Context, ev *outbox.Event) (Result, error)
}

// CustomerCredit is the credit standing of a customer.
type CustomerCredit struct {
	ID               uuid.UUID
	CreditLimit      money.DualAmount
	CreditBalance    money.DualAmount
	PaymentTermsDays int
}

// InventoryPolicy is the company-wide inventory configuration.
type InventoryPolicy struct {
	AllowNegativeStock        bool
	RequireManualLotSelection bool
}

// ItemPolicy carries the per-item batch and stock configuration.
type ItemPolicy struct {
	TrackBatches            bool
	TrackExpiry             bool
	MinShelfLifeDaysForSale int
	AllowNegativeStock      *bool
	TaxCodeID               *uuid.UUID
}

// WarehousePolicy carries the per-warehouse overrides.
type WarehousePolicy struct {
	MinShelfLifeDaysDefault int
	AllowNegativeStock      *bool
}

// ReferenceStore reads company configuration and reference data.
type ReferenceStore interface {
	AccountDefaults(ctx context.Context, companyID uuid.UUID) (map[ledger.AccountRole]uuid.UUID, error)
	PaymentMethodAccounts(ctx context.Context, companyID uuid.UUID) (map[string]uuid.UUID, error)
	AssertPeriodOpen(ctx context.Context, companyID uuid.UUID, postingDate time.Time) error
	NextDocumentNo(ctx context.Context, companyID uuid.UUID, docType string) (string, error)

	// ValidVATRates returns the rates for the given tax codes, keeping
	// only codes of type vat. Unknown or non-VAT codes are absent.
	ValidVATRates(ctx context.Context, companyID uuid.UUID, taxCodeIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	ItemTaxCodes(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error)

	LoyaltyPolicy(ctx context.Context, companyID uuid.UUID) (pointsPerUSD, pointsPerLBP decimal.Decimal, err error)
	InventoryPolicy(ctx context.Context, companyID uuid.UUID) (InventoryPolicy, error)

	Customer(ctx context.Context, companyID, customerID uuid.UUID) (*CustomerCredit, error)
	AddCustomerCredit(ctx context.Context, companyID, customerID uuid.UUID, amount money.DualAmount) error
	ReduceCustomerCredit(ctx context.Context, companyID, customerID uuid.UUID, amount money.DualAmount) error

	SupplierPaymentTermsDays(ctx context.Context, companyID, supplierID uuid.UUID) (int, error)
	DeviceBranch(ctx context.Context, deviceID uuid.UUID) (*uuid.UUID, error)

	// ResolveOpenShift validates a requested shift for the device or falls
	// back to the device's most recent open shift. Nil when neither exists.
	ResolveOpenShift(ctx context.Context, companyID, deviceID uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error)
}

// InventoryStore reads and writes batch-level stock.
type InventoryStore interface {
	ItemPolicies(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]ItemPolicy, error)
	WarehousePolicy(ctx context.Context, companyID, warehouseID uuid.UUID) (WarehousePolicy, error)

	// BatchStocks returns per-batch on-hand (including the unbatched pool)
	// for FEFO allocation, already filtered to available batches.
	BatchStocks(ctx context.Context, companyID, itemID, warehouseID uuid.UUID) ([]inventory.BatchStock, error)

	// FindBatch locates an existing available batch by number/expiry for a
	// manual pick. Sales never auto-create batches.
	FindBatch(ctx context.Context, companyID, itemID uuid.UUID, batchNo string, expiry *time.Time) (*inventory.BatchStock, error)
	BatchOnHand(ctx context.Context, companyID, itemID, warehouseID, batchID uuid.UUID) (decimal.Decimal, error)

	GetOrCreateBatch(ctx context.Context, companyID, itemID uuid.UUID, batchNo string, expiry *time.Time) (*uuid.UUID, error)
	TouchBatchReceived(ctx context.Context, companyID uuid.UUID, batchID uuid.UUID, sourceType string, sourceID uuid.UUID, supplierID *uuid.UUID, receivedAt time.Time) error

	AverageCost(ctx context.Context, companyID, itemID, warehouseID uuid.UUID) (money.DualAmount, error)
	InsertStockMove(ctx context.Context, move StockMove) error

	// CostsBySourceInvoice reconstructs per-item unit costs from the stock
	// moves of the original sales invoice.
	CostsBySourceInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) (map[uuid.UUID]money.DualAmount, error)
}

// StockMove is one inbound or outbound inventory movement.
type StockMove struct {
	CompanyID      uuid.UUID
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	BatchID        *uuid.UUID
	QtyIn          decimal.Decimal
	QtyOut         decimal.Decimal
	UnitCost       money.DualAmount
	MoveDate       time.Time
	SourceType     string
	SourceID       uuid.UUID
	SourceLineType string
	SourceLineID   uuid.UUID
	DeviceID       *uuid.UUID
	CashierID      *uuid.UUID
	Reason         string
}

// TaxLine is one persisted VAT reporting row.
type TaxLine struct {
	TaxCodeID uuid.UUID
	Base      money.DualAmount
	Tax       money.DualAmount
	TaxDate   *time.Time
}

// JournalDoc wraps a balanced journal with its header metadata for
// persistence. Number allocation is resilient on the store side: a replay
// for the same source reuses the existing journal.
type JournalDoc struct {
	JournalNo    string
	JournalDate  time.Time
	ExchangeRate decimal.Decimal
	Memo         string
	DeviceID     *uuid.UUID
	CashierID    *uuid.UUID
	Journal      *ledger.Journal
}

// EmittedEvent is one downstream notification appended after a successful
// document.
type EmittedEvent struct {
	EventType  string
	SourceType string
	SourceID   uuid.UUID
	Payload    map[string]any
}

// SalesInvoiceDoc is the sales invoice header plus its lines.
type SalesInvoiceDoc struct {
	CompanyID          uuid.UUID
	InvoiceNo          string
	CustomerID         *uuid.UUID
	Subtotal           money.DualAmount
	Total              money.DualAmount
	DiscountTotal      money.DualAmount
	WarehouseID        uuid.UUID
	ExchangeRate       decimal.Decimal
	PricingCurrency    string
	SettlementCurrency string
	SourceEventID      uuid.UUID
	DeviceID           *uuid.UUID
	ShiftID            *uuid.UUID
	BranchID           *uuid.UUID
	CashierID          *uuid.UUID
	InvoiceDate        time.Time
	DueDate            time.Time
	ReceiptNo          string
	ReceiptMeta        []byte
	Lines              []SalesInvoiceLine
}

// SalesInvoiceLine is one persisted invoice line. The ID is assigned by the
// builder so stock moves can reference it.
type SalesInvoiceLine struct {
	ID                   uuid.UUID
	ItemID               uuid.UUID
	Qty                  decimal.Decimal
	UnitPrice            money.DualAmount
	LineTotal            money.DualAmount
	PreDiscountUnitPrice money.DualAmount
	DiscountPct          decimal.Decimal
	DiscountAmount       money.DualAmount
	AppliedPromotionID   *uuid.UUID
	AppliedPriceListID   *uuid.UUID
}

// SalesPaymentRow is one persisted tender row.
type SalesPaymentRow struct {
	Method             string
	Applied            money.DualAmount
	Tender             money.DualAmount
	Reference          string
	AuthCode           string
	Provider           string
	SettlementCurrency string
}

// SalesReturnDoc is the sales return header plus its lines.
type SalesReturnDoc struct {
	CompanyID         uuid.UUID
	ReturnNo          string
	InvoiceID         *uuid.UUID
	Total             money.DualAmount
	ExchangeRate      decimal.Decimal
	WarehouseID       uuid.UUID
	SourceEventID     uuid.UUID
	DeviceID          *uuid.UUID
	ShiftID           *uuid.UUID
	BranchID          *uuid.UUID
	CashierID         *uuid.UUID
	RefundMethod      string
	ReasonID          *uuid.UUID
	Reason            string
	ReturnDate        time.Time
	RestockingFee     money.DualAmount
	RestockingFeeNote string
	Lines             []SalesReturnLine
}

// SalesReturnLine is one persisted return line.
type SalesReturnLine struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	Qty       decimal.Decimal
	UnitPrice money.DualAmount
	LineTotal money.DualAmount
	UnitCost  money.DualAmount
	ReasonID  *uuid.UUID
}

// SalesRefundRow is the first-class refund transaction of a return.
type SalesRefundRow struct {
	Method             string
	Amount             money.DualAmount
	SettlementCurrency string
	BankAccountID      *uuid.UUID
	Reference          string
	SourceEventID      uuid.UUID
	DeviceID           *uuid.UUID
	CashierID          *uuid.UUID
}

// InvoiceSummary is the slice of an original invoice a return needs.
type InvoiceSummary struct {
	ID         uuid.UUID
	CustomerID *uuid.UUID
	Total      money.DualAmount
}

// GoodsReceiptDoc is the goods receipt header plus its lines.
type GoodsReceiptDoc struct {
	CompanyID     uuid.UUID
	ReceiptNo     string
	SupplierID    *uuid.UUID
	SupplierRef   string
	Total         money.DualAmount
	ExchangeRate  decimal.Decimal
	WarehouseID   uuid.UUID
	SourceEventID uuid.UUID
	ReceivedAt    time.Time
	Lines         []GoodsReceiptLine
}

// GoodsReceiptLine is one persisted receipt line.
type GoodsReceiptLine struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	BatchID   *uuid.UUID
	Qty       decimal.Decimal
	UnitCost  money.DualAmount
	LineTotal money.DualAmount
}

// SupplierInvoiceDoc is the supplier invoice header plus lines and payments.
type SupplierInvoiceDoc struct {
	CompanyID     uuid.UUID
	InvoiceNo     string
	SupplierID    *uuid.UUID
	SupplierRef   string
	Total         money.DualAmount
	ExchangeRate  decimal.Decimal
	SourceEventID uuid.UUID
	InvoiceDate   time.Time
	DueDate       time.Time
	Lines         []SupplierInvoiceLine
	Payments      []SupplierPaymentRow
}

// SupplierInvoiceLine is one persisted supplier invoice line.
type SupplierInvoiceLine struct {
	ItemID    uuid.UUID
	BatchID   *uuid.UUID
	Qty       decimal.Decimal
	UnitCost  money.DualAmount
	LineTotal money.DualAmount
}

// SupplierPaymentRow is one supplier payment attached to an invoice.
type SupplierPaymentRow struct {
	Method string
	Amount money.DualAmount
}

// CashMovementDoc is one operational cash entry; the event id doubles as
// the row id so replays collapse on conflict.
type CashMovementDoc struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	ShiftID      uuid.UUID
	DeviceID     *uuid.UUID
	MovementType string
	Amount       money.DualAmount
	Notes        string
	CashierID    *uuid.UUID
}

// DocumentStore persists documents, journals, and downstream events.
type DocumentStore interface {
	InvoiceExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error)
	ReturnExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error)
	ReceiptExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error)
	SupplierInvoiceExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error)

	InsertSalesInvoice(ctx context.Context, doc SalesInvoiceDoc) (uuid.UUID, error)
	InsertSalesPayments(ctx context.Context, invoiceID uuid.UUID, rows []SalesPaymentRow) error
	InsertSalesReturn(ctx context.Context, doc SalesReturnDoc) (uuid.UUID, error)
	InsertSalesRefund(ctx context.Context, returnID uuid.UUID, companyID uuid.UUID, row SalesRefundRow) (uuid.UUID, error)
	InsertGoodsReceipt(ctx context.Context, doc GoodsReceiptDoc) (uuid.UUID, error)
	InsertSupplierInvoice(ctx context.Context, doc SupplierInvoiceDoc) (uuid.UUID, error)
	InsertCashMovement(ctx context.Context, doc CashMovementDoc) error
	InsertTaxLines(ctx context.Context, companyID uuid.UUID, sourceType string, sourceID uuid.UUID, rows []TaxLine) error

	InvoiceByID(ctx context.Context, companyID, invoiceID uuid.UUID) (*InvoiceSummary, error)

	// PaymentsByMethod aggregates the applied amounts of an invoice's
	// non-journal tender rows, keyed by lowercased method.
	PaymentsByMethod(ctx context.Context, invoiceID uuid.UUID) (map[string]money.DualAmount, error)

	// ApplyLoyaltyPoints inserts one loyalty ledger row guarded by the
	// (company, source) natural key and adjusts the customer balance,
	// flooring at zero. Duplicate sources are silently ignored.
	ApplyLoyaltyPoints(ctx context.Context, companyID, customerID uuid.UUID, sourceType string, sourceID uuid.UUID, points decimal.Decimal) error

	InsertJournal(ctx context.Context, doc JournalDoc) (uuid.UUID, error)
	EmitEvent(ctx context.Context, companyID uuid.UUID, ev EmittedEvent) error
}
