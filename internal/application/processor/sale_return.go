package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// SaleReturnBuilder posts a sale.returned event as a sales return with
// inbound stock moves, a refund transaction, a loyalty reversal, and a
// reversing GL journal.
type SaleReturnBuilder struct {
	ref  ReferenceStore
	inv  InventoryStore
	docs DocumentStore
}

func NewSaleReturnBuilder(ref ReferenceStore, inv InventoryStore, docs DocumentStore) *SaleReturnBuilder {
	return &SaleReturnBuilder{ref: ref, inv: inv, docs: docs}
}

func (b *SaleReturnBuilder) EventType() outbox.EventType { return outbox.EventSaleReturned }

func (b *SaleReturnBuilder) Process(ctx context.Context, ev *outbox.Event) (Result, error) {
	decoded, err := payload.Decode(ev.EventType, ev.Payload)
	if err != nil {
		return Result{}, err
	}
	p := decoded.(*payload.SaleReturned)

	exists, err := b.docs.ReturnExistsForEvent(ctx, ev.CompanyID, ev.ID)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Status: StatusDuplicate}, nil
	}

	if len(p.Lines) == 0 {
		return Result{}, shared.ErrNoLines
	}

	returnNo := p.ReturnNo
	if returnNo == "" {
		if returnNo, err = b.ref.NextDocumentNo(ctx, ev.CompanyID, "SR"); err != nil {
			return Result{}, err
		}
	}

	returnDate := businessDate(p.ReturnDate, ev.CreatedAt)
	if err := b.ref.AssertPeriodOpen(ctx, ev.CompanyID, returnDate); err != nil {
		return Result{}, err
	}

	base := money.Zero()
	for _, l := range p.Lines {
		base = base.Add(money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP))
	}

	taxRows, taxTotal, err := resolveSaleVAT(ctx, b.ref, ev.CompanyID, p.Tax, p.TaxBreakdown, p.Lines, p.ExchangeRate)
	if err != nil {
		return Result{}, err
	}
	total := base.Add(taxTotal)

	fee, err := resolveRestockingFee(p, base, p.ExchangeRate)
	if err != nil {
		return Result{}, err
	}
	refundTotal := total.Sub(fee)
	if refundTotal.IsNegative() {
		return Result{}, shared.ErrRestockingFeeExceedsDoc
	}

	var deviceID *uuid.UUID
	if ev.DeviceID != nil {
		deviceID = ev.DeviceID
	}
	var shiftID, branchID *uuid.UUID
	if deviceID != nil {
		if shiftID, err = b.ref.ResolveOpenShift(ctx, ev.CompanyID, *deviceID, p.ShiftID); err != nil {
			return Result{}, err
		}
		if branchID, err = b.ref.DeviceBranch(ctx, *deviceID); err != nil {
			return Result{}, err
		}
	}

	refundMethod := ""
	if p.RefundMethod != "" {
		refundMethod = normalizeMethod(p.RefundMethod)
	}

	lines, moves, totalCost, err := b.resolveReturnLines(ctx, ev.CompanyID, p, returnDate, deviceID)
	if err != nil {
		return Result{}, err
	}

	returnID, err := b.docs.InsertSalesReturn(ctx, SalesReturnDoc{
		CompanyID:         ev.CompanyID,
		ReturnNo:          returnNo,
		InvoiceID:         p.InvoiceID,
		Total:             total,
		ExchangeRate:      p.ExchangeRate,
		WarehouseID:       p.WarehouseID,
		SourceEventID:     ev.ID,
		DeviceID:          deviceID,
		ShiftID:           shiftID,
		BranchID:          branchID,
		CashierID:         p.CashierID,
		RefundMethod:      refundMethod,
		ReasonID:          p.ReasonID,
		Reason:            p.Reason,
		ReturnDate:        returnDate,
		RestockingFee:     fee,
		RestockingFeeNote: p.RestockingFeeReason,
		Lines:             lines,
	})
	if err != nil {
		return Result{}, err
	}

	for i := range moves {
		moves[i].SourceID = returnID
		if err := b.inv.InsertStockMove(ctx, moves[i]); err != nil {
			return Result{}, err
		}
	}

	if err := insertDocumentTaxLines(ctx, b.ref, b.docs, ev.CompanyID, "sales_return", returnID, p.Tax, taxRows, taxTotal, base, true); err != nil {
		return Result{}, err
	}

	refund, err := b.postReturnJournal(ctx, ev, p, returnJournalInputs{
		returnID:     returnID,
		returnNo:     returnNo,
		returnDate:   returnDate,
		base:         base,
		tax:          taxTotal,
		hasTax:       p.Tax != nil,
		fee:          fee,
		refundTotal:  refundTotal,
		totalCost:    totalCost,
		refundMethod: refundMethod,
		deviceID:     deviceID,
	})
	if err != nil {
		return Result{}, err
	}

	if refund.reducesReceivable && refund.customerID != nil {
		if err := b.ref.ReduceCustomerCredit(ctx, ev.CompanyID, *refund.customerID, refundTotal); err != nil {
			return Result{}, err
		}
	}

	if _, err := b.docs.InsertSalesRefund(ctx, returnID, ev.CompanyID, SalesRefundRow{
		Method:             refund.method,
		Amount:             refundTotal,
		SettlementCurrency: currencyOrUSD(p.SettlementCurrency),
		BankAccountID:      p.BankAccountID,
		Reference:          firstPaymentReference(p.Payments),
		SourceEventID:      ev.ID,
		DeviceID:           deviceID,
		CashierID:          p.CashierID,
	}); err != nil {
		return Result{}, err
	}

	returnCustomer := p.CustomerID
	if returnCustomer == nil {
		returnCustomer = refund.customerID
	}
	if returnCustomer != nil {
		points, err := b.reversalPoints(ctx, ev.CompanyID, p.LoyaltyPoints, total)
		if err != nil {
			return Result{}, err
		}
		if err := b.docs.ApplyLoyaltyPoints(ctx, ev.CompanyID, *returnCustomer, "sales_return", returnID, points); err != nil {
			return Result{}, err
		}
	}

	if err := b.docs.EmitEvent(ctx, ev.CompanyID, EmittedEvent{
		EventType:  "sales.returned",
		SourceType: "sales_return",
		SourceID:   returnID,
		Payload: map[string]any{
			"return_id": returnID.String(),
			"return_no": returnNo,
			"total_usd": total.USD().String(),
			"total_lbp": total.LBP().String(),
		},
	}); err != nil {
		return Result{}, err
	}

	return Result{Status: StatusProcessed, DocumentID: returnID}, nil
}

// resolveRestockingFee settles the optional fee: explicit amounts win, a
// percentage (accepted as 0..1 or 0..100) of the base otherwise. The fee
// may never exceed the return base.
func resolveRestockingFee(p *payload.SaleReturned, base money.DualAmount, exchangeRate decimal.Decimal) (money.DualAmount, error) {
	feeUSD := derefDecimal(p.RestockingFeeUSD)
	feeLBP := derefDecimal(p.RestockingFeeLBP)
	if p.RestockingFeePct != nil {
		pct := *p.RestockingFeePct
		if pct.GreaterThan(decimal.NewFromInt(1)) && pct.LessThanOrEqual(decimal.NewFromInt(100)) {
			pct = pct.Div(decimal.NewFromInt(100))
		}
		if pct.IsNegative() {
			pct = decimal.Zero
		}
		if pct.GreaterThan(decimal.NewFromInt(1)) {
			pct = decimal.NewFromInt(1)
		}
		feeUSD = base.USD().Mul(pct)
		feeLBP = base.LBP().Mul(pct)
	}
	feeUSD, feeLBP = money.Normalize(feeUSD, feeLBP, exchangeRate)
	if feeUSD.IsNegative() {
		feeUSD = decimal.Zero
	}
	if feeLBP.IsNegative() {
		feeLBP = decimal.Zero
	}
	if feeUSD.GreaterThan(base.USD()) || feeLBP.GreaterThan(base.LBP()) {
		return money.Zero(), shared.ErrRestockingFeeExceedsDoc
	}
	return money.NewDualAmount(feeUSD, feeLBP), nil
}

// resolveReturnLines builds the persistable lines and inbound stock moves,
// reconstructing unit costs from the original invoice's outbound moves
// when the payload omits them.
func (b *SaleReturnBuilder) resolveReturnLines(ctx context.Context, companyID uuid.UUID, p *payload.SaleReturned, returnDate time.Time, deviceID *uuid.UUID) ([]SalesReturnLine, []StockMove, money.DualAmount, error) {
	costMap := map[uuid.UUID]money.DualAmount{}
	if p.InvoiceID != nil {
		var err error
		costMap, err = b.inv.CostsBySourceInvoice(ctx, companyID, *p.InvoiceID)
		if err != nil {
			return nil, nil, money.Zero(), err
		}
	}

	var (
		lines     []SalesReturnLine
		moves     []StockMove
		totalCost = money.Zero()
	)
	for _, l := range p.Lines {
		cost := money.NewDualAmount(derefDecimal(l.UnitCostUSD), derefDecimal(l.UnitCostLBP))
		if cost.IsZero() {
			if mapped, ok := costMap[l.ItemID]; ok {
				cost = mapped
			} else {
				var err error
				cost, err = b.inv.AverageCost(ctx, companyID, l.ItemID, p.WarehouseID)
				if err != nil {
					return nil, nil, money.Zero(), err
				}
			}
		}
		totalCost = totalCost.Add(cost.MulQty(l.Qty))

		// Returns may reference pre-batch-tracking invoices; best-effort
		// create keeps lot history intact.
		var batchID *uuid.UUID
		if l.BatchNo != "" || l.ExpiryDate != nil {
			var expiry *time.Time
			if l.ExpiryDate != nil {
				d := l.ExpiryDate.Time
				expiry = &d
			}
			var err error
			batchID, err = b.inv.GetOrCreateBatch(ctx, companyID, l.ItemID, l.BatchNo, expiry)
			if err != nil {
				return nil, nil, money.Zero(), err
			}
		}

		unitPrice := money.Zero()
		if l.Qty.IsPositive() {
			unitPrice = money.NewDualAmount(l.LineTotalUSD.Div(l.Qty), l.LineTotalLBP.Div(l.Qty))
		}

		lineID := uuid.New()
		lines = append(lines, SalesReturnLine{
			ID:        lineID,
			ItemID:    l.ItemID,
			Qty:       l.Qty,
			UnitPrice: unitPrice,
			LineTotal: money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP),
			UnitCost:  cost,
		})
		moves = append(moves, StockMove{
			CompanyID:      companyID,
			ItemID:         l.ItemID,
			WarehouseID:    p.WarehouseID,
			BatchID:        batchID,
			QtyIn:          l.Qty,
			UnitCost:       cost,
			MoveDate:       returnDate,
			SourceType:     "sales_return",
			SourceLineType: "sales_return_line",
			SourceLineID:   lineID,
			DeviceID:       deviceID,
			CashierID:      p.CashierID,
			Reason:         "POS return",
		})
	}
	return lines, moves, totalCost, nil
}

type returnJournalInputs struct {
	returnID     uuid.UUID
	returnNo     string
	returnDate   time.Time
	base         money.DualAmount
	tax          money.DualAmount
	hasTax       bool
	fee          money.DualAmount
	refundTotal  money.DualAmount
	totalCost    money.DualAmount
	refundMethod string
	deviceID     *uuid.UUID
}

type refundResolution struct {
	method            string
	accountID         uuid.UUID
	reducesReceivable bool
	customerID        *uuid.UUID
}

// postReturnJournal reverses the sale posting: debit Sales Returns and VAT
// Payable, credit the refund account net of the restocking fee, recognize
// fee income, and restore inventory against COGS.
func (b *SaleReturnBuilder) postReturnJournal(ctx context.Context, ev *outbox.Event, p *payload.SaleReturned, in returnJournalInputs) (refundResolution, error) {
	accounts, err := loadAccountMap(ctx, b.ref, ev.CompanyID)
	if err != nil {
		return refundResolution{}, err
	}
	methods, err := b.ref.PaymentMethodAccounts(ctx, ev.CompanyID)
	if err != nil {
		return refundResolution{}, err
	}

	refund, err := b.resolveRefundAccount(ctx, ev.CompanyID, p, in.refundMethod, accounts, methods)
	if err != nil {
		return refundResolution{}, err
	}

	jb := ledger.NewBuilder(accounts, ev.CompanyID, "sales_return", in.returnID, fmt.Sprintf("POS return %s", in.returnNo))
	jb.Debit(ledger.RoleSalesReturns, in.base, "Sales return")
	jb.CreditAccount(refund.accountID, in.refundTotal, "Return refund")
	if in.fee.IsPositive() {
		jb.Credit(ledger.RoleRestockFees, in.fee, "Restocking fee")
	}
	if in.hasTax {
		jb.Debit(ledger.RoleVATPayable, in.tax, "VAT payable reduction")
	}
	if in.totalCost.IsPositive() {
		jb.Debit(ledger.RoleInventory, in.totalCost, "Inventory return")
		jb.Credit(ledger.RoleCOGS, in.totalCost, "COGS reversal")
	}

	journal, err := jb.Build()
	if err != nil {
		if shared.IsValidation(err) {
			return refund, nil
		}
		return refundResolution{}, err
	}
	if _, err := b.docs.InsertJournal(ctx, JournalDoc{
		JournalNo:    fmt.Sprintf("SR-%s", shortID(in.returnID)),
		JournalDate:  in.returnDate,
		ExchangeRate: p.ExchangeRate,
		Memo:         fmt.Sprintf("POS return %s", in.returnNo),
		DeviceID:     in.deviceID,
		CashierID:    p.CashierID,
		Journal:      journal,
	}); err != nil {
		return refundResolution{}, err
	}
	return refund, nil
}

// resolveRefundAccount picks where the refund credit lands. An explicit
// refund method wins but a cash/bank refund against an unpaid credit sale
// is refused; otherwise the original invoice's dominant payment method
// decides, with accounts receivable for credit sales and cash as the
// final fallback.
func (b *SaleReturnBuilder) resolveRefundAccount(ctx context.Context, companyID uuid.UUID, p *payload.SaleReturned, refundMethod string, accounts accountMap, methods map[string]uuid.UUID) (refundResolution, error) {
	var (
		customerID    *uuid.UUID
		isCreditSale  bool
		primaryMethod string
	)
	if p.InvoiceID != nil {
		invoice, err := b.docs.InvoiceByID(ctx, companyID, *p.InvoiceID)
		if err != nil {
			return refundResolution{}, err
		}
		if invoice != nil {
			customerID = invoice.CustomerID
			byMethod, err := b.docs.PaymentsByMethod(ctx, *p.InvoiceID)
			if err != nil {
				return refundResolution{}, err
			}
			paid := money.Zero()
			best := decimal.NewFromInt(-1)
			for method, amount := range byMethod {
				if method == "credit" {
					continue
				}
				usd, lbp := money.Normalize(amount.USD(), amount.LBP(), p.ExchangeRate)
				paid = paid.Add(money.NewDualAmount(usd, lbp))
				score := usd
				if !p.ExchangeRate.IsZero() {
					score = score.Add(lbp.Div(p.ExchangeRate))
				}
				if score.GreaterThan(best) {
					best = score
					primaryMethod = method
				}
			}
			isCreditSale = paid.USD().LessThan(invoice.Total.USD()) || paid.LBP().LessThan(invoice.Total.LBP())
		}
	}

	ar := accounts[ledger.RoleAccountsReceivable]
	resolution := refundResolution{customerID: customerID}

	if refundMethod != "" {
		if refundMethod == "credit" {
			if ar == uuid.Nil {
				return refundResolution{}, fmt.Errorf("role %s: %w", ledger.RoleAccountsReceivable, shared.ErrMissingAccountMapping)
			}
			resolution.method = "credit"
			resolution.accountID = ar
			resolution.reducesReceivable = true
			return resolution, nil
		}
		if isCreditSale {
			return refundResolution{}, shared.ErrCreditRefundRequired
		}
		accountID, err := paymentAccount(methods, refundMethod)
		if err != nil {
			return refundResolution{}, err
		}
		resolution.method = refundMethod
		resolution.accountID = accountID
		return resolution, nil
	}

	switch {
	case isCreditSale && ar != uuid.Nil:
		resolution.method = "credit"
		resolution.accountID = ar
		resolution.reducesReceivable = true
	case primaryMethod != "":
		accountID, err := paymentAccount(methods, primaryMethod)
		if err != nil {
			return refundResolution{}, err
		}
		resolution.method = primaryMethod
		resolution.accountID = accountID
	case accounts[ledger.RoleCash] != uuid.Nil:
		resolution.method = "cash"
		resolution.accountID = accounts[ledger.RoleCash]
	case ar != uuid.Nil:
		resolution.method = "credit"
		resolution.accountID = ar
		resolution.reducesReceivable = true
	default:
		return refundResolution{}, fmt.Errorf("refund account: %w", shared.ErrMissingAccountMapping)
	}
	return resolution, nil
}

func (b *SaleReturnBuilder) reversalPoints(ctx context.Context, companyID uuid.UUID, override *decimal.Decimal, total money.DualAmount) (decimal.Decimal, error) {
	if override != nil {
		return override.Neg(), nil
	}
	perUSD, perLBP, err := b.ref.LoyaltyPolicy(ctx, companyID)
	if err != nil {
		return decimal.Zero, err
	}
	return total.USD().Mul(perUSD).Add(total.LBP().Mul(perLBP)).Neg(), nil
}

func firstPaymentReference(rows []payload.Payment) string {
	for _, r := range rows {
		if r.Reference != "" {
			return r.Reference
		}
	}
	return ""
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
