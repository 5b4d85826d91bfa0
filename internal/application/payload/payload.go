// Package payload defines the typed event payloads carried by the outbox.
// Each event type maps to one concrete struct; decoding validates field
// shape up front so builders only handle business rules.
package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

var validate = validator.New()

// Date is a calendar date decoded from an ISO string, tolerating trailing
// time components sent by older POS clients.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

// SaleLine is one sold (or returned) item row.
type SaleLine struct {
	ItemID       uuid.UUID       `json:"item_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty"`
	UnitPriceUSD decimal.Decimal `json:"unit_price_usd"`
	UnitPriceLBP decimal.Decimal `json:"unit_price_lbp"`
	LineTotalUSD decimal.Decimal `json:"line_total_usd"`
	LineTotalLBP decimal.Decimal `json:"line_total_lbp"`

	UnitCostUSD *decimal.Decimal `json:"unit_cost_usd,omitempty"`
	UnitCostLBP *decimal.Decimal `json:"unit_cost_lbp,omitempty"`

	DiscountPct             *decimal.Decimal `json:"discount_pct,omitempty"`
	DiscountAmountUSD       *decimal.Decimal `json:"discount_amount_usd,omitempty"`
	DiscountAmountLBP       *decimal.Decimal `json:"discount_amount_lbp,omitempty"`
	PreDiscountUnitPriceUSD *decimal.Decimal `json:"pre_discount_unit_price_usd,omitempty"`
	PreDiscountUnitPriceLBP *decimal.Decimal `json:"pre_discount_unit_price_lbp,omitempty"`

	BatchNo    string `json:"batch_no,omitempty"`
	ExpiryDate *Date  `json:"expiry_date,omitempty"`

	AppliedPromotionID *uuid.UUID `json:"applied_promotion_id,omitempty"`
	AppliedPriceListID *uuid.UUID `json:"applied_price_list_id,omitempty"`
}

// Tax is the document-level VAT summary. TaxBreakdown rows refine it per
// tax code when the client captured them at sale time.
type Tax struct {
	TaxCodeID *uuid.UUID      `json:"tax_code_id,omitempty"`
	BaseUSD   decimal.Decimal `json:"base_usd"`
	BaseLBP   decimal.Decimal `json:"base_lbp"`
	TaxUSD    decimal.Decimal `json:"tax_usd"`
	TaxLBP    decimal.Decimal `json:"tax_lbp"`
	TaxDate   *Date           `json:"tax_date,omitempty"`
}

// TaxRow is one per-tax-code VAT component.
type TaxRow struct {
	TaxCodeID uuid.UUID       `json:"tax_code_id" validate:"required"`
	BaseUSD   decimal.Decimal `json:"base_usd"`
	BaseLBP   decimal.Decimal `json:"base_lbp"`
	TaxUSD    decimal.Decimal `json:"tax_usd"`
	TaxLBP    decimal.Decimal `json:"tax_lbp"`
	TaxDate   *Date           `json:"tax_date,omitempty"`
}

// Payment is one tender row of a sale.
type Payment struct {
	Method    string          `json:"method" validate:"required"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	AmountLBP decimal.Decimal `json:"amount_lbp"`
	Reference string          `json:"reference,omitempty"`
	AuthCode  string          `json:"auth_code,omitempty"`
	Provider  string          `json:"provider,omitempty"`
}

// SaleCompleted is the payload of a sale.completed event.
type SaleCompleted struct {
	InvoiceNo          string           `json:"invoice_no,omitempty"`
	InvoiceDate        *Date            `json:"invoice_date,omitempty"`
	ExchangeRate       decimal.Decimal  `json:"exchange_rate"`
	PricingCurrency    string           `json:"pricing_currency,omitempty"`
	SettlementCurrency string           `json:"settlement_currency,omitempty"`
	CustomerID         *uuid.UUID       `json:"customer_id,omitempty"`
	WarehouseID        uuid.UUID        `json:"warehouse_id" validate:"required"`
	ShiftID            *uuid.UUID       `json:"shift_id,omitempty"`
	CashierID          *uuid.UUID       `json:"cashier_id,omitempty"`
	Lines              []SaleLine       `json:"lines" validate:"dive"`
	Tax                *Tax             `json:"tax,omitempty"`
	TaxBreakdown       []TaxRow         `json:"tax_breakdown,omitempty" validate:"dive"`
	Payments           []Payment        `json:"payments" validate:"dive"`
	LoyaltyPoints      *decimal.Decimal `json:"loyalty_points,omitempty"`
	SkipStockMoves     bool             `json:"skip_stock_moves,omitempty"`
	ReceiptNo          string           `json:"receipt_no,omitempty"`
	ReceiptMeta        json.RawMessage  `json:"receipt_meta,omitempty"`
}

// SaleReturned mirrors SaleCompleted with the reversal-specific fields.
type SaleReturned struct {
	SaleCompleted

	ReturnNo            string           `json:"return_no,omitempty"`
	ReturnDate          *Date            `json:"return_date,omitempty"`
	InvoiceID           *uuid.UUID       `json:"invoice_id,omitempty"`
	RefundMethod        string           `json:"refund_method,omitempty"`
	ReasonID            *uuid.UUID       `json:"reason_id,omitempty"`
	Reason              string           `json:"reason,omitempty"`
	BankAccountID       *uuid.UUID       `json:"bank_account_id,omitempty"`
	RestockingFeeUSD    *decimal.Decimal `json:"restocking_fee_usd,omitempty"`
	RestockingFeeLBP    *decimal.Decimal `json:"restocking_fee_lbp,omitempty"`
	RestockingFeePct    *decimal.Decimal `json:"restocking_fee_pct,omitempty"`
	RestockingFeeReason string           `json:"restocking_fee_reason,omitempty"`
}

// PurchaseLine is one received or invoiced item row.
type PurchaseLine struct {
	ItemID       uuid.UUID       `json:"item_id" validate:"required"`
	Qty          decimal.Decimal `json:"qty"`
	UnitCostUSD  decimal.Decimal `json:"unit_cost_usd"`
	UnitCostLBP  decimal.Decimal `json:"unit_cost_lbp"`
	LineTotalUSD decimal.Decimal `json:"line_total_usd"`
	LineTotalLBP decimal.Decimal `json:"line_total_lbp"`
	BatchNo      string          `json:"batch_no,omitempty"`
	ExpiryDate   *Date           `json:"expiry_date,omitempty"`
}

// PurchaseReceived is the payload of a purchase.received event.
type PurchaseReceived struct {
	ReceiptNo    string          `json:"receipt_no,omitempty"`
	ReceiptDate  *Date           `json:"receipt_date,omitempty"`
	SupplierID   *uuid.UUID      `json:"supplier_id,omitempty"`
	SupplierRef  string          `json:"supplier_ref,omitempty"`
	WarehouseID  uuid.UUID       `json:"warehouse_id" validate:"required"`
	CashierID    *uuid.UUID      `json:"cashier_id,omitempty"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Lines        []PurchaseLine  `json:"lines" validate:"dive"`
	Tax          *Tax            `json:"tax,omitempty"`
}

// PurchaseInvoice is the payload of a purchase.invoice event.
type PurchaseInvoice struct {
	InvoiceNo    string          `json:"invoice_no,omitempty"`
	InvoiceDate  *Date           `json:"invoice_date,omitempty"`
	SupplierID   *uuid.UUID      `json:"supplier_id,omitempty"`
	SupplierRef  string          `json:"supplier_ref,omitempty"`
	WarehouseID  uuid.UUID       `json:"warehouse_id" validate:"required"`
	CashierID    *uuid.UUID      `json:"cashier_id,omitempty"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Lines        []PurchaseLine  `json:"lines" validate:"dive"`
	Tax          *Tax            `json:"tax,omitempty"`
	Payments     []Payment       `json:"payments,omitempty" validate:"dive"`
}

// CashMovementType is the fixed vocabulary for operational cash entries.
var CashMovementTypes = []string{"cash_in", "cash_out", "paid_out", "safe_drop", "other"}

// CashMovement is the payload of a pos.cash_movement event. No GL posting
// results from it; it is an operational shift ledger entry only. The
// movement type is normalized and checked against CashMovementTypes by the
// builder, since clients send it in mixed case.
type CashMovement struct {
	MovementType string          `json:"movement_type" validate:"required"`
	AmountUSD    decimal.Decimal `json:"amount_usd"`
	AmountLBP    decimal.Decimal `json:"amount_lbp"`
	ShiftID      *uuid.UUID      `json:"shift_id,omitempty"`
	CashierID    *uuid.UUID      `json:"cashier_id,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Reference    string          `json:"reference,omitempty"`
}

// Decode unmarshals and validates the payload variant for the given event
// type. Unknown event types and malformed payloads come back as validation
// errors so the dispatcher never retries them into a different outcome.
func Decode(eventType outbox.EventType, raw json.RawMessage) (any, error) {
	var target any
	switch eventType {
	case outbox.EventSaleCompleted:
		target = &SaleCompleted{}
	case outbox.EventSaleReturned:
		target = &SaleReturned{}
	case outbox.EventPurchaseReceived:
		target = &PurchaseReceived{}
	case outbox.EventPurchaseInvoice:
		target = &PurchaseInvoice{}
	case outbox.EventCashMovement:
		target = &CashMovement{}
	default:
		return nil, shared.NewValidationError("UNKNOWN_EVENT_TYPE",
			fmt.Sprintf("no payload variant for event type %q", eventType))
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, shared.NewValidationError("MALFORMED_PAYLOAD", err.Error())
	}
	if err := validate.Struct(target); err != nil {
		return nil, shared.NewValidationError("INVALID_PAYLOAD", err.Error())
	}
	return target, nil
}
