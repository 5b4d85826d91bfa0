package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/inventory"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

// SaleBuilder posts a sale.completed event as a sales invoice with its
// payments, stock moves, loyalty effect, and GL journal.
type SaleBuilder struct {
	ref  ReferenceStore
	inv  InventoryStore
	docs DocumentStore
}

func NewSaleBuilder(ref ReferenceStore, inv InventoryStore, docs DocumentStore) *SaleBuilder {
	return &SaleBuilder{ref: ref, inv: inv, docs: docs}
}

func (b *SaleBuilder) EventType() outbox.EventType { return outbox.EventSaleCompleted }

// resolvedSaleLine carries a payload line with its commercial fields
// settled: discounts resolved by priority and costs backfilled from the
// moving average when the POS did not send them.
type resolvedSaleLine struct {
	payload.SaleLine
	LineID               uuid.UUID
	DiscountAmount       money.DualAmount
	PreDiscountUnitPrice money.DualAmount
	UnitCost             money.DualAmount
}

func (b *SaleBuilder) Process(ctx context.Context, ev *outbox.Event) (Result, error) {
	decoded, err := payload.Decode(ev.EventType, ev.Payload)
	if err != nil {
		return Result{}, err
	}
	p := decoded.(*payload.SaleCompleted)

	exists, err := b.docs.InvoiceExistsForEvent(ctx, ev.CompanyID, ev.ID)
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
		if invoiceNo, err = b.ref.NextDocumentNo(ctx, ev.CompanyID, "SI"); err != nil {
			return Result{}, err
		}
	}

	invoiceDate := businessDate(p.InvoiceDate, ev.CreatedAt)
	dueDate := invoiceDate
	if err := b.ref.AssertPeriodOpen(ctx, ev.CompanyID, invoiceDate); err != nil {
		return Result{}, err
	}

	lines, base, discountTotal, totalCost, err := b.resolveLines(ctx, ev.CompanyID, p)
	if err != nil {
		return Result{}, err
	}

	taxRows, taxTotal, err := resolveSaleVAT(ctx, b.ref, ev.CompanyID, p.Tax, p.TaxBreakdown, p.Lines, p.ExchangeRate)
	if err != nil {
		return Result{}, err
	}
	total := base.Add(taxTotal)

	settle, err := money.ParseCurrency(p.SettlementCurrency)
	if err != nil {
		return Result{}, shared.NewValidationError("INVALID_CURRENCY", err.Error())
	}

	applied, paid, err := applyPayments(p.Payments, p.ExchangeRate, settle)
	if err != nil {
		return Result{}, err
	}

	credit, err := creditPortion(total, paid, p.ExchangeRate, settle)
	if err != nil {
		return Result{}, err
	}

	creditSale := credit.USD().GreaterThan(money.EpsilonUSD) || credit.LBP().GreaterThan(money.EpsilonLBP)
	if creditSale {
		if p.CustomerID == nil {
			return Result{}, shared.ErrCustomerRequired
		}
		customer, err := b.ref.Customer(ctx, ev.CompanyID, *p.CustomerID)
		if err != nil {
			return Result{}, err
		}
		if customer == nil {
			return Result{}, shared.ErrCustomerNotFound
		}
		if err := checkCreditLimit(customer, credit); err != nil {
			return Result{}, err
		}
		if customer.PaymentTermsDays > 0 {
			dueDate = invoiceDate.AddDate(0, 0, customer.PaymentTermsDays)
		}
	}

	var deviceID *uuid.UUID
	if ev.DeviceID != nil {
		deviceID = ev.DeviceID
	}
	shiftID, branchID, err := b.resolveContext(ctx, ev.CompanyID, deviceID, p.ShiftID)
	if err != nil {
		return Result{}, err
	}

	doc := SalesInvoiceDoc{
		CompanyID:          ev.CompanyID,
		InvoiceNo:          invoiceNo,
		CustomerID:         p.CustomerID,
		Subtotal:           base,
		Total:              total,
		DiscountTotal:      discountTotal,
		WarehouseID:        p.WarehouseID,
		ExchangeRate:       p.ExchangeRate,
		PricingCurrency:    currencyOrUSD(p.PricingCurrency),
		SettlementCurrency: string(settle),
		SourceEventID:      ev.ID,
		DeviceID:           deviceID,
		ShiftID:            shiftID,
		BranchID:           branchID,
		CashierID:          p.CashierID,
		InvoiceDate:        invoiceDate,
		DueDate:            dueDate,
		ReceiptNo:          p.ReceiptNo,
		ReceiptMeta:        p.ReceiptMeta,
	}
	for _, l := range lines {
		doc.Lines = append(doc.Lines, SalesInvoiceLine{
			ID:                   l.LineID,
			ItemID:               l.ItemID,
			Qty:                  l.Qty,
			UnitPrice:            money.NewDualAmount(l.UnitPriceUSD, l.UnitPriceLBP),
			LineTotal:            money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP),
			PreDiscountUnitPrice: l.PreDiscountUnitPrice,
			DiscountPct:          derefDecimal(l.DiscountPct),
			DiscountAmount:       l.DiscountAmount,
			AppliedPromotionID:   l.AppliedPromotionID,
			AppliedPriceListID:   l.AppliedPriceListID,
		})
	}

	invoiceID, err := b.docs.InsertSalesInvoice(ctx, doc)
	if err != nil {
		return Result{}, err
	}

	if p.CustomerID != nil {
		points, err := b.loyaltyPoints(ctx, ev.CompanyID, p.LoyaltyPoints, total)
		if err != nil {
			return Result{}, err
		}
		if err := b.docs.ApplyLoyaltyPoints(ctx, ev.CompanyID, *p.CustomerID, "sales_invoice", invoiceID, points); err != nil {
			return Result{}, err
		}
	}

	if err := b.insertTaxLines(ctx, ev.CompanyID, "sales_invoice", invoiceID, p.Tax, taxRows, taxTotal, base, false); err != nil {
		return Result{}, err
	}

	if err := b.docs.InsertSalesPayments(ctx, invoiceID, applied); err != nil {
		return Result{}, err
	}

	result := Result{Status: StatusProcessed, DocumentID: invoiceID}

	// Intercompany fulfillment escape hatch: the POS may request that this
	// invoice carry no inventory or ledger impact here.
	if p.SkipStockMoves {
		result.Diagnostics = append(result.Diagnostics, "stock moves and GL posting skipped by request")
		return result, nil
	}

	if err := b.moveStock(ctx, ev.CompanyID, p, lines, invoiceID, invoiceDate, deviceID); err != nil {
		return Result{}, err
	}

	if err := b.postJournal(ctx, ev, p, journalInputs{
		invoiceNo:   invoiceNo,
		invoiceID:   invoiceID,
		invoiceDate: invoiceDate,
		base:        base,
		tax:         taxTotal,
		hasTax:      p.Tax != nil,
		total:       total,
		totalCost:   totalCost,
		credit:      credit,
		creditSale:  creditSale,
		applied:     applied,
		payments:    paid,
		deviceID:    deviceID,
	}, &result); err != nil {
		return Result{}, err
	}

	if creditSale && p.CustomerID != nil {
		if err := b.ref.AddCustomerCredit(ctx, ev.CompanyID, *p.CustomerID, credit); err != nil {
			return Result{}, err
		}
	}

	if err := b.docs.EmitEvent(ctx, ev.CompanyID, EmittedEvent{
		EventType:  "sales.created",
		SourceType: "sales_invoice",
		SourceID:   invoiceID,
		Payload: map[string]any{
			"invoice_id": invoiceID.String(),
			"total_usd":  total.USD().String(),
			"total_lbp":  total.LBP().String(),
		},
	}); err != nil {
		return Result{}, err
	}

	return result, nil
}

// resolveLines settles discounts and costs per line and accumulates the
// document totals.
func (b *SaleBuilder) resolveLines(ctx context.Context, companyID uuid.UUID, p *payload.SaleCompleted) (lines []resolvedSaleLine, base, discountTotal, totalCost money.DualAmount, err error) {
	base, discountTotal, totalCost = money.Zero(), money.Zero(), money.Zero()
	for _, l := range p.Lines {
		base = base.Add(money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP))

		discount := resolveDiscount(l)
		discountTotal = discountTotal.Add(discount)

		cost := money.NewDualAmount(derefDecimal(l.UnitCostUSD), derefDecimal(l.UnitCostLBP))
		if cost.IsZero() {
			cost, err = b.inv.AverageCost(ctx, companyID, l.ItemID, p.WarehouseID)
			if err != nil {
				return nil, money.Zero(), money.Zero(), money.Zero(), err
			}
		}
		totalCost = totalCost.Add(cost.MulQty(l.Qty))

		lines = append(lines, resolvedSaleLine{
			SaleLine:       l,
			LineID:         uuid.New(),
			DiscountAmount: discount,
			PreDiscountUnitPrice: money.NewDualAmount(
				derefDecimal(l.PreDiscountUnitPriceUSD), derefDecimal(l.PreDiscountUnitPriceLBP)),
			UnitCost: cost,
		})
	}
	return lines, base, discountTotal, totalCost, nil
}

// resolveDiscount settles the line discount by priority: an explicit
// amount wins, then a pre-discount price delta, then a percentage of the
// undiscounted line value. Negative results clamp to zero.
func resolveDiscount(l payload.SaleLine) money.DualAmount {
	discUSD := derefDecimal(l.DiscountAmountUSD)
	discLBP := derefDecimal(l.DiscountAmountLBP)
	if !discUSD.IsZero() || !discLBP.IsZero() {
		return money.NewDualAmount(discUSD, discLBP)
	}

	preUSD := derefDecimal(l.PreDiscountUnitPriceUSD)
	preLBP := derefDecimal(l.PreDiscountUnitPriceLBP)
	if !preUSD.IsZero() || !preLBP.IsZero() {
		return money.NewDualAmount(
			decimal.Max(decimal.Zero, preUSD.Sub(l.UnitPriceUSD).Mul(l.Qty)),
			decimal.Max(decimal.Zero, preLBP.Sub(l.UnitPriceLBP).Mul(l.Qty)),
		)
	}

	if pct := derefDecimal(l.DiscountPct); !pct.IsZero() {
		return money.NewDualAmount(
			decimal.Max(decimal.Zero, l.UnitPriceUSD.Mul(l.Qty).Mul(pct)),
			decimal.Max(decimal.Zero, l.UnitPriceLBP.Mul(l.Qty).Mul(pct)),
		)
	}
	return money.Zero()
}

// applyPayments converts tender rows into persisted payment rows and sums
// the non-credit applied value.
func applyPayments(rows []payload.Payment, exchangeRate decimal.Decimal, settle money.Currency) (applied []SalesPaymentRow, paid money.DualAmount, err error) {
	paid = money.Zero()
	for _, p := range rows {
		method := normalizeMethod(p.Method)
		if p.AmountUSD.IsZero() && p.AmountLBP.IsZero() {
			continue
		}
		amount, err := money.ApplyTender(p.AmountUSD, p.AmountLBP, exchangeRate, settle)
		if err != nil {
			return nil, money.Zero(), shared.NewValidationError("INVALID_PAYMENT", err.Error())
		}
		applied = append(applied, SalesPaymentRow{
			Method:             method,
			Applied:            amount,
			Tender:             money.NewDualAmount(p.AmountUSD, p.AmountLBP),
			Reference:          p.Reference,
			AuthCode:           p.AuthCode,
			Provider:           p.Provider,
			SettlementCurrency: string(settle),
		})
		if method != "credit" {
			paid = paid.Add(amount)
		}
	}
	return applied, paid, nil
}

// creditPortion computes the unpaid remainder in the settlement currency,
// rejecting overpayment and zeroing remainders inside the settlement
// tolerance. The other currency side derives through the exchange rate.
func creditPortion(total, paid money.DualAmount, exchangeRate decimal.Decimal, settle money.Currency) (money.DualAmount, error) {
	if settle == money.USD {
		credit := total.USD().Sub(paid.USD())
		if credit.LessThan(money.EpsilonUSD.Neg()) {
			return money.Zero(), shared.ErrOverpayment
		}
		if credit.Abs().LessThanOrEqual(money.EpsilonUSD) {
			credit = decimal.Zero
		}
		usd, lbp := money.Normalize(credit, decimal.Zero, exchangeRate)
		return money.NewDualAmount(usd, lbp), nil
	}

	credit := total.LBP().Sub(paid.LBP())
	if credit.LessThan(money.EpsilonLBP.Neg()) {
		return money.Zero(), shared.ErrOverpayment
	}
	if credit.Abs().LessThanOrEqual(money.EpsilonLBP) {
		credit = decimal.Zero
	}
	usd, lbp := money.Normalize(decimal.Zero, credit, exchangeRate)
	return money.NewDualAmount(usd, lbp), nil
}

// checkCreditLimit rejects the sale when the new exposure exceeds a
// configured limit. A zero limit means unlimited.
func checkCreditLimit(c *CustomerCredit, credit money.DualAmount) error {
	if !c.CreditLimit.USD().IsZero() && c.CreditBalance.USD().Add(credit.USD()).GreaterThan(c.CreditLimit.USD()) {
		return shared.ErrCreditLimitExceeded
	}
	if !c.CreditLimit.LBP().IsZero() && c.CreditBalance.LBP().Add(credit.LBP()).GreaterThan(c.CreditLimit.LBP()) {
		return shared.ErrCreditLimitExceeded
	}
	return nil
}

func (b *SaleBuilder) loyaltyPoints(ctx context.Context, companyID uuid.UUID, override *decimal.Decimal, total money.DualAmount) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}
	perUSD, perLBP, err := b.ref.LoyaltyPolicy(ctx, companyID)
	if err != nil {
		return decimal.Zero, err
	}
	return total.USD().Mul(perUSD).Add(total.LBP().Mul(perLBP)), nil
}

func (b *SaleBuilder) resolveContext(ctx context.Context, companyID uuid.UUID, deviceID *uuid.UUID, requestedShift *uuid.UUID) (shiftID, branchID *uuid.UUID, err error) {
	if deviceID == nil {
		return nil, nil, nil
	}
	if shiftID, err = b.ref.ResolveOpenShift(ctx, companyID, *deviceID, requestedShift); err != nil {
		return nil, nil, err
	}
	if branchID, err = b.ref.DeviceBranch(ctx, *deviceID); err != nil {
		return nil, nil, err
	}
	return shiftID, branchID, nil
}

// insertTaxLines persists the VAT breakdown; when no per-code rows exist
// it falls back to one row on the document default code if that code is a
// valid VAT code. Negative=true flips signs for return reporting.
func (b *SaleBuilder) insertTaxLines(ctx context.Context, companyID uuid.UUID, sourceType string, sourceID uuid.UUID, tax *payload.Tax, rows []TaxLine, taxTotal, base money.DualAmount, negative bool) error {
	return insertDocumentTaxLines(ctx, b.ref, b.docs, companyID, sourceType, sourceID, tax, rows, taxTotal, base, negative)
}

func insertDocumentTaxLines(ctx context.Context, ref ReferenceStore, docs DocumentStore, companyID uuid.UUID, sourceType string, sourceID uuid.UUID, tax *payload.Tax, rows []TaxLine, taxTotal, base money.DualAmount, negative bool) error {
	if tax == nil {
		return nil
	}
	if len(rows) == 0 {
		if tax.TaxCodeID == nil {
			return nil
		}
		valid, err := ref.ValidVATRates(ctx, companyID, []uuid.UUID{*tax.TaxCodeID})
		if err != nil {
			return err
		}
		if _, ok := valid[*tax.TaxCodeID]; !ok {
			return nil
		}
		rowBase := money.NewDualAmount(tax.BaseUSD, tax.BaseLBP)
		if rowBase.IsZero() {
			rowBase = base
		}
		row := TaxLine{TaxCodeID: *tax.TaxCodeID, Base: rowBase, Tax: taxTotal}
		if tax.TaxDate != nil {
			d := tax.TaxDate.Time
			row.TaxDate = &d
		}
		rows = []TaxLine{row}
	}
	if negative {
		rows = negateTaxLines(rows)
	}
	return docs.InsertTaxLines(ctx, companyID, sourceType, sourceID, rows)
}

// moveStock allocates outbound inventory per line under the item,
// warehouse, and company policies, FEFO unless the payload pins a batch.
func (b *SaleBuilder) moveStock(ctx context.Context, companyID uuid.UUID, p *payload.SaleCompleted, lines []resolvedSaleLine, invoiceID uuid.UUID, invoiceDate time.Time, deviceID *uuid.UUID) error {
	companyPolicy, err := b.ref.InventoryPolicy(ctx, companyID)
	if err != nil {
		return err
	}
	whPolicy, err := b.inv.WarehousePolicy(ctx, companyID, p.WarehouseID)
	if err != nil {
		return err
	}
	itemIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		itemIDs = append(itemIDs, l.ItemID)
	}
	policies, err := b.inv.ItemPolicies(ctx, companyID, itemIDs)
	if err != nil {
		return err
	}

	for _, l := range lines {
		pol := policies[l.ItemID]

		minDays := pol.MinShelfLifeDaysForSale
		if whPolicy.MinShelfLifeDaysDefault > minDays {
			minDays = whPolicy.MinShelfLifeDaysDefault
		}
		var minExpiry *time.Time
		if minDays > 0 {
			d := invoiceDate.AddDate(0, 0, minDays)
			minExpiry = &d
		} else if pol.TrackExpiry {
			// Expiry-tracked items never allocate from expired batches.
			d := invoiceDate
			minExpiry = &d
		}

		allowUnbatched := !(pol.TrackBatches || pol.TrackExpiry || minDays > 0)
		allowNegative := inventory.NegativeStockPolicy{
			Warehouse: whPolicy.AllowNegativeStock,
			Item:      pol.AllowNegativeStock,
			Company:   &companyPolicy.AllowNegativeStock,
		}.Allow()

		tracked := pol.TrackBatches || pol.TrackExpiry
		hasPick := l.BatchNo != "" || l.ExpiryDate != nil
		if companyPolicy.RequireManualLotSelection && tracked && !hasPick {
			return shared.ErrManualLotRequired
		}

		var allocations []inventory.Allocation
		if hasPick {
			allocations, err = b.manualPick(ctx, companyID, p.WarehouseID, l, minExpiry, allowNegative)
		} else {
			var stocks []inventory.BatchStock
			stocks, err = b.inv.BatchStocks(ctx, companyID, l.ItemID, p.WarehouseID)
			if err == nil {
				allocations, err = inventory.Allocate(inventory.AllocateRequest{
					Qty:                     l.Qty,
					MinExpiry:               minExpiry,
					AllowUnbatchedRemainder: allowUnbatched,
					AllowNegativeStock:      allowNegative,
				}, stocks)
			}
		}
		if err != nil {
			return err
		}

		for _, a := range allocations {
			if err := b.inv.InsertStockMove(ctx, StockMove{
				CompanyID:      companyID,
				ItemID:         l.ItemID,
				WarehouseID:    p.WarehouseID,
				BatchID:        a.BatchID,
				QtyOut:         a.Qty,
				UnitCost:       l.UnitCost,
				MoveDate:       invoiceDate,
				SourceType:     "sales_invoice",
				SourceID:       invoiceID,
				SourceLineType: "sales_invoice_line",
				SourceLineID:   l.LineID,
				DeviceID:       deviceID,
				CashierID:      p.CashierID,
				Reason:         "POS sale",
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *SaleBuilder) manualPick(ctx context.Context, companyID, warehouseID uuid.UUID, l resolvedSaleLine, minExpiry *time.Time, allowNegative bool) ([]inventory.Allocation, error) {
	var expiry *time.Time
	if l.ExpiryDate != nil {
		d := l.ExpiryDate.Time
		expiry = &d
	}
	batch, err := b.inv.FindBatch(ctx, companyID, l.ItemID, l.BatchNo, expiry)
	if err != nil {
		return nil, err
	}
	if batch == nil || batch.BatchID == nil {
		return nil, shared.ErrBatchNotFound
	}
	onHand, err := b.inv.BatchOnHand(ctx, companyID, l.ItemID, warehouseID, *batch.BatchID)
	if err != nil {
		return nil, err
	}
	pick := *batch
	pick.OnHand = onHand
	if err := inventory.ValidateExplicitPick(pick, l.Qty, minExpiry, allowNegative); err != nil {
		return nil, err
	}
	return []inventory.Allocation{{BatchID: batch.BatchID, Qty: l.Qty}}, nil
}

type journalInputs struct {
	invoiceNo   string
	invoiceID   uuid.UUID
	invoiceDate time.Time
	base        money.DualAmount
	tax         money.DualAmount
	hasTax      bool
	total       money.DualAmount
	totalCost   money.DualAmount
	credit      money.DualAmount
	creditSale  bool
	applied     []SalesPaymentRow
	payments    money.DualAmount
	deviceID    *uuid.UUID
}

// postJournal emits the sale journal: debit payment accounts and AR,
// credit Sales and VAT Payable, plus the COGS/Inventory pair. Rounding
// residue between the settled payments and the invoice total is folded
// into the first debit leg so the journal balances exactly.
func (b *SaleBuilder) postJournal(ctx context.Context, ev *outbox.Event, p *payload.SaleCompleted, in journalInputs, result *Result) error {
	accounts, err := loadAccountMap(ctx, b.ref, ev.CompanyID)
	if err != nil {
		return err
	}
	methods, err := b.ref.PaymentMethodAccounts(ctx, ev.CompanyID)
	if err != nil {
		return err
	}

	jb := ledger.NewBuilder(accounts, ev.CompanyID, "sales_invoice", in.invoiceID, fmt.Sprintf("POS sale %s", in.invoiceNo))

	residual := in.total.Sub(in.payments).Sub(in.credit)
	folded := residual.IsZero()
	fold := func(amount money.DualAmount, leg string) money.DualAmount {
		if folded {
			return amount
		}
		folded = true
		result.Diagnostics = append(result.Diagnostics,
			fmt.Sprintf("rounding residual %s folded into %s leg", residual, leg))
		return amount.Add(residual)
	}

	for _, row := range in.applied {
		if row.Method == "credit" {
			continue
		}
		accountID, err := paymentAccount(methods, row.Method)
		if err != nil {
			return err
		}
		jb.DebitAccount(accountID, fold(row.Applied, row.Method), "Sales receipt")
	}

	if in.creditSale {
		jb.Debit(ledger.RoleAccountsReceivable, fold(in.credit, "receivable"), "Sales receivable")
	}
	jb.Credit(ledger.RoleSales, in.base, "Sales revenue")
	if in.hasTax {
		jb.Credit(ledger.RoleVATPayable, in.tax, "VAT payable")
	}
	if in.totalCost.IsPositive() {
		jb.Debit(ledger.RoleCOGS, in.totalCost, "COGS")
		jb.Credit(ledger.RoleInventory, in.totalCost, "Inventory reduction")
	}

	journal, err := jb.Build()
	if err != nil {
		if shared.IsValidation(err) {
			result.Diagnostics = append(result.Diagnostics, "no journal posted: all legs are zero")
			return nil
		}
		return err
	}
	_, err = b.docs.InsertJournal(ctx, JournalDoc{
		JournalNo:    fmt.Sprintf("GL-%s", in.invoiceNo),
		JournalDate:  in.invoiceDate,
		ExchangeRate: p.ExchangeRate,
		Memo:         fmt.Sprintf("POS sale %s", in.invoiceNo),
		DeviceID:     in.deviceID,
		CashierID:    p.CashierID,
		Journal:      journal,
	})
	return err
}
