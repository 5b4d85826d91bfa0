package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// PurchaseInvoiceBuilder posts a purchase.invoice event as a supplier
// invoice, clearing GRNI against accounts payable with recoverable VAT.
type PurchaseInvoiceBuilder struct {
	ref  ReferenceStore
	inv  InventoryStore
	docs DocumentStore
}

func NewPurchaseInvoiceBuilder(ref ReferenceStore, inv InventoryStore, docs DocumentStore) *PurchaseInvoiceBuilder {
	return &PurchaseInvoiceBuilder{ref: ref, inv: inv, docs: docs}
}

func (b *PurchaseInvoiceBuilder) EventType() outbox.EventType { return outbox.EventPurchaseInvoice }

func (b *PurchaseInvoiceBuilder) Process(ctx context.Context, ev *outbox.Event) (Result, error) {
	decoded, err := payload.Decode(ev.EventType, ev.Payload)
	if err != nil {
		return Result{}, err
	}
	p := decoded.(*payload.PurchaseInvoice)

	exists, err := b.docs.SupplierInvoiceExistsForEvent(ctx, ev.CompanyID, ev.ID)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Status: StatusDuplicate}, nil
	}

	if len(p.Lines) == 0 {
		return Result{}, shared.ErrNoLines
	}

	invoiceNo := p.InvoiceNo
	if invoiceNo == "" {
		if invoiceNo, err = b.ref.NextDocumentNo(ctx, ev.CompanyID, "PI"); err != nil {
			return Result{}, err
		}
	}

	invoiceDate := businessDate(p.InvoiceDate, ev.CreatedAt)
	if err := b.ref.AssertPeriodOpen(ctx, ev.CompanyID, invoiceDate); err != nil {
		return Result{}, err
	}

	net := money.Zero()
	var lines []SupplierInvoiceLine
	for _, l := range p.Lines {
		var batchID *uuid.UUID
		if l.BatchNo != "" || l.ExpiryDate != nil {
			var expiry *time.Time
			if l.ExpiryDate != nil {
				d := l.ExpiryDate.Time
				expiry = &d
			}
			if batchID, err = b.inv.GetOrCreateBatch(ctx, ev.CompanyID, l.ItemID, l.BatchNo, expiry); err != nil {
				return Result{}, err
			}
		}
		lineTotal := money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP)
		net = net.Add(lineTotal)
		lines = append(lines, SupplierInvoiceLine{
			ItemID:    l.ItemID,
			BatchID:   batchID,
			Qty:       l.Qty,
			UnitCost:  money.NewDualAmount(l.UnitCostUSD, l.UnitCostLBP),
			LineTotal: lineTotal,
		})
	}

	taxRow, tax, err := b.resolveTax(ctx, ev.CompanyID, p.Tax, net)
	if err != nil {
		return Result{}, err
	}
	gross := net.Add(tax)

	dueDate := invoiceDate
	if p.SupplierID != nil {
		termsDays, err := b.ref.SupplierPaymentTermsDays(ctx, ev.CompanyID, *p.SupplierID)
		if err != nil {
			return Result{}, err
		}
		if termsDays > 0 {
			dueDate = invoiceDate.AddDate(0, 0, termsDays)
		}
	}

	var payments []SupplierPaymentRow
	for _, row := range p.Payments {
		if row.AmountUSD.IsZero() && row.AmountLBP.IsZero() {
			continue
		}
		payments = append(payments, SupplierPaymentRow{
			Method: normalizeMethod(row.Method),
			Amount: money.NewDualAmount(row.AmountUSD, row.AmountLBP),
		})
	}

	invoiceID, err := b.docs.InsertSupplierInvoice(ctx, SupplierInvoiceDoc{
		CompanyID:     ev.CompanyID,
		InvoiceNo:     invoiceNo,
		SupplierID:    p.SupplierID,
		SupplierRef:   p.SupplierRef,
		Total:         gross,
		ExchangeRate:  p.ExchangeRate,
		SourceEventID: ev.ID,
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Lines:         lines,
		Payments:      payments,
	})
	if err != nil {
		return Result{}, err
	}

	if taxRow != nil {
		if err := b.docs.InsertTaxLines(ctx, ev.CompanyID, "supplier_invoice", invoiceID, []TaxLine{*taxRow}); err != nil {
			return Result{}, err
		}
	}

	if err := b.postJournal(ctx, ev, p, invoiceID, invoiceNo, invoiceDate, net, tax, gross); err != nil {
		return Result{}, err
	}

	if err := b.docs.EmitEvent(ctx, ev.CompanyID, EmittedEvent{
		EventType:  "purchase.invoiced",
		SourceType: "supplier_invoice",
		SourceID:   invoiceID,
		Payload: map[string]any{
			"invoice_id": invoiceID.String(),
			"invoice_no": invoiceNo,
			"total_usd":  gross.USD().String(),
			"total_lbp":  gross.LBP().String(),
		},
	}); err != nil {
		return Result{}, err
	}

	return Result{Status: StatusProcessed, DocumentID: invoiceID}, nil
}

// resolveTax validates the document tax code. A nonzero tax amount on an
// unknown or non-VAT code is an error; a zero amount on a bad code is
// dropped silently.
func (b *PurchaseInvoiceBuilder) resolveTax(ctx context.Context, companyID uuid.UUID, tax *payload.Tax, net money.DualAmount) (*TaxLine, money.DualAmount, error) {
	if tax == nil {
		return nil, money.Zero(), nil
	}
	amount := money.NewDualAmount(tax.TaxUSD, tax.TaxLBP)
	if tax.TaxCodeID == nil {
		if amount.IsZero() {
			return nil, money.Zero(), nil
		}
		return nil, money.Zero(), shared.NewValidationError("INVALID_TAX_CODE", "tax amount present without a tax code")
	}
	valid, err := b.ref.ValidVATRates(ctx, companyID, []uuid.UUID{*tax.TaxCodeID})
	if err != nil {
		return nil, money.Zero(), err
	}
	if _, ok := valid[*tax.TaxCodeID]; !ok {
		if amount.IsZero() {
			return nil, money.Zero(), nil
		}
		return nil, money.Zero(), shared.NewValidationError("INVALID_TAX_CODE",
			fmt.Sprintf("tax code %s is not a valid VAT code", tax.TaxCodeID))
	}
	base := money.NewDualAmount(tax.BaseUSD, tax.BaseLBP)
	if base.IsZero() {
		base = net
	}
	row := TaxLine{TaxCodeID: *tax.TaxCodeID, Base: base, Tax: amount}
	if tax.TaxDate != nil {
		d := tax.TaxDate.Time
		row.TaxDate = &d
	}
	return &row, amount, nil
}

func (b *PurchaseInvoiceBuilder) postJournal(ctx context.Context, ev *outbox.Event, p *payload.PurchaseInvoice, invoiceID uuid.UUID, invoiceNo string, invoiceDate time.Time, net, tax, gross money.DualAmount) error {
	if !gross.IsPositive() {
		return nil
	}
	accounts, err := loadAccountMap(ctx, b.ref, ev.CompanyID)
	if err != nil {
		return err
	}
	jb := ledger.NewBuilder(accounts, ev.CompanyID, "supplier_invoice", invoiceID, fmt.Sprintf("Supplier invoice %s", invoiceNo))
	jb.Debit(ledger.RoleGRNI, net, "GRNI clearing")
	if tax.IsPositive() {
		jb.Debit(ledger.RoleVATRecoverable, tax, "Recoverable VAT")
	}
	jb.Credit(ledger.RoleAccountsPayable, gross, "Supplier payable")
	journal, err := jb.Build()
	if err != nil {
		return err
	}
	_, err = b.docs.InsertJournal(ctx, JournalDoc{
		JournalNo:    fmt.Sprintf("GL-%s", invoiceNo),
		JournalDate:  invoiceDate,
		ExchangeRate: p.ExchangeRate,
		Memo:         fmt.Sprintf("Supplier invoice %s", invoiceNo),
		DeviceID:     ev.DeviceID,
		CashierID:    p.CashierID,
		Journal:      journal,
	})
	return err
}
