package processor

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/money"
)

// resolveSaleVAT works out the VAT rows for a sale or return document.
// Preference order: the client's per-code breakdown (it captures the tax
// code at the time of sale), then a recomputation from current item tax
// codes and rates, then the client's document-level totals.
func resolveSaleVAT(
	ctx context.Context,
	ref ReferenceStore,
	companyID uuid.UUID,
	tax *payload.Tax,
	breakdown []payload.TaxRow,
	lines []payload.SaleLine,
	exchangeRate decimal.Decimal,
) (rows []TaxLine, total money.DualAmount, err error) {
	if tax == nil {
		return nil, money.Zero(), nil
	}

	if len(breakdown) > 0 {
		rows, total, err = filterClientBreakdown(ctx, ref, companyID, breakdown, exchangeRate)
		if err != nil {
			return nil, money.Zero(), err
		}
		if len(rows) > 0 {
			return rows, total, nil
		}
	}

	rows, total, err = computeVATFromItems(ctx, ref, companyID, saleLineBases(lines), exchangeRate, tax.TaxCodeID)
	if err != nil {
		return nil, money.Zero(), err
	}
	if len(rows) > 0 {
		return rows, total, nil
	}

	// Backward compatibility: trust the client's document-level totals.
	usd, lbp := money.Normalize(tax.TaxUSD, tax.TaxLBP, exchangeRate)
	return nil, money.NewDualAmount(usd, lbp), nil
}

// lineBase is the taxable base contributed by one document line.
type lineBase struct {
	ItemID uuid.UUID
	Base   money.DualAmount
}

func saleLineBases(lines []payload.SaleLine) []lineBase {
	out := make([]lineBase, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineBase{
			ItemID: l.ItemID,
			Base:   money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP),
		})
	}
	return out
}

// filterClientBreakdown normalizes the client-provided rows and keeps only
// those referencing a VAT tax code the company actually has.
func filterClientBreakdown(
	ctx context.Context,
	ref ReferenceStore,
	companyID uuid.UUID,
	breakdown []payload.TaxRow,
	exchangeRate decimal.Decimal,
) ([]TaxLine, money.DualAmount, error) {
	ids := make([]uuid.UUID, 0, len(breakdown))
	for _, r := range breakdown {
		ids = append(ids, r.TaxCodeID)
	}
	valid, err := ref.ValidVATRates(ctx, companyID, ids)
	if err != nil {
		return nil, money.Zero(), err
	}

	rows := make([]TaxLine, 0, len(breakdown))
	total := money.Zero()
	for _, r := range breakdown {
		if _, ok := valid[r.TaxCodeID]; !ok {
			continue
		}
		usd, lbp := money.Normalize(r.TaxUSD, r.TaxLBP, exchangeRate)
		amount := money.NewDualAmount(usd, lbp)
		row := TaxLine{
			TaxCodeID: r.TaxCodeID,
			Base:      money.NewDualAmount(r.BaseUSD, r.BaseLBP),
			Tax:       amount,
		}
		if r.TaxDate != nil {
			d := r.TaxDate.Time
			row.TaxDate = &d
		}
		rows = append(rows, row)
		total = total.Add(amount)
	}
	return rows, total, nil
}

// computeVATFromItems groups line bases by effective tax code (per-item
// code, falling back to the document default) and applies the current VAT
// rates. Rates apply to the LBP base; the USD side derives from the rate.
func computeVATFromItems(
	ctx context.Context,
	ref ReferenceStore,
	companyID uuid.UUID,
	lines []lineBase,
	exchangeRate decimal.Decimal,
	defaultTaxCodeID *uuid.UUID,
) ([]TaxLine, money.DualAmount, error) {
	itemIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		itemIDs = append(itemIDs, l.ItemID)
	}
	itemTax, err := ref.ItemTaxCodes(ctx, companyID, itemIDs)
	if err != nil {
		return nil, money.Zero(), err
	}

	baseByCode := make(map[uuid.UUID]money.DualAmount)
	order := make([]uuid.UUID, 0)
	for _, l := range lines {
		code := itemTax[l.ItemID]
		if code == nil {
			code = defaultTaxCodeID
		}
		if code == nil {
			continue
		}
		if _, seen := baseByCode[*code]; !seen {
			order = append(order, *code)
		}
		baseByCode[*code] = baseByCode[*code].Add(l.Base)
	}
	if len(baseByCode) == 0 {
		return nil, money.Zero(), nil
	}

	rates, err := ref.ValidVATRates(ctx, companyID, order)
	if err != nil {
		return nil, money.Zero(), err
	}

	rows := make([]TaxLine, 0, len(order))
	total := money.Zero()
	for _, code := range order {
		rate, ok := rates[code]
		if !ok {
			continue
		}
		base := baseByCode[code]
		taxLBP := decimal.Zero
		if !rate.IsZero() {
			taxLBP = base.LBP().Mul(rate)
		}
		taxUSD := decimal.Zero
		if !exchangeRate.IsZero() {
			taxUSD = taxLBP.Div(exchangeRate)
		}
		taxUSD, taxLBP = money.Normalize(taxUSD, taxLBP, exchangeRate)
		amount := money.NewDualAmount(taxUSD, taxLBP)
		rows = append(rows, TaxLine{TaxCodeID: code, Base: base, Tax: amount})
		total = total.Add(amount)
	}
	return rows, total, nil
}

// negateTaxLines flips sign on base and tax for return reporting.
func negateTaxLines(rows []TaxLine) []TaxLine {
	out := make([]TaxLine, len(rows))
	for i, r := range rows {
		out[i] = TaxLine{
			TaxCodeID: r.TaxCodeID,
			Base:      r.Base.Neg(),
			Tax:       r.Tax.Neg(),
			TaxDate:   r.TaxDate,
		}
	}
	return out
}
