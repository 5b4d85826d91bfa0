package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

func saleEvent(t *testing.T, p *payload.SaleCompleted) *outbox.Event {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return &outbox.Event{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		EventType: outbox.EventSaleCompleted,
		Payload:   raw,
		Status:    outbox.StatusPending,
		CreatedAt: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSaleBuilderDuplicateEvent(t *testing.T) {
	ref := newFakeReferenceStore()
	inv := newFakeInventoryStore()
	docs := newFakeDocumentStore()
	docs.invoiceExists = true

	b := NewSaleBuilder(ref, inv, docs)
	ev := saleEvent(t, &payload.SaleCompleted{
		WarehouseID:  uuid.New(),
		ExchangeRate: dec("90000"),
		Lines: []payload.SaleLine{
			{ItemID: uuid.New(), Qty: dec("1"), LineTotalUSD: dec("10")},
		},
	})

	result, err := b.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, result.Status)
	assert.Empty(t, docs.invoices)
	assert.Empty(t, docs.journals)
}

func TestSaleBuilderRejectsEmptyLines(t *testing.T) {
	b := NewSaleBuilder(newFakeReferenceStore(), newFakeInventoryStore(), newFakeDocumentStore())
	ev := saleEvent(t, &payload.SaleCompleted{WarehouseID: uuid.New(), ExchangeRate: dec("90000")})

	_, err := b.Process(context.Background(), ev)
	assert.ErrorIs(t, err, shared.ErrNoLines)
}

func TestSaleBuilderRejectsOverpayment(t *testing.T) {
	b := NewSaleBuilder(newFakeReferenceStore(), newFakeInventoryStore(), newFakeDocumentStore())
	ev := saleEvent(t, &payload.SaleCompleted{
		WarehouseID:  uuid.New(),
		ExchangeRate: dec("90000"),
		Lines: []payload.SaleLine{
			{ItemID: uuid.New(), Qty: dec("1"), UnitPriceUSD: dec("10"), LineTotalUSD: dec("10"), LineTotalLBP: dec("900000")},
		},
		Payments: []payload.Payment{
			{Method: "cash", AmountUSD: dec("11")},
		},
	})

	_, err := b.Process(context.Background(), ev)
	assert.ErrorIs(t, err, shared.ErrOverpayment)
}

func TestCheckCreditLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   money.DualAmount
		balance money.DualAmount
		credit  money.DualAmount
		wantErr error
	}{
		{
			name:    "within limit",
			limit:   money.NewDualAmount(dec("500"), decimal.Zero),
			balance: money.NewDualAmount(dec("480"), decimal.Zero),
			credit:  money.NewDualAmount(dec("20"), decimal.Zero),
		},
		{
			name:    "exceeds limit",
			limit:   money.NewDualAmount(dec("500"), decimal.Zero),
			balance: money.NewDualAmount(dec("480"), decimal.Zero),
			credit:  money.NewDualAmount(dec("30"), decimal.Zero),
			wantErr: shared.ErrCreditLimitExceeded,
		},
		{
			name:    "zero limit is unlimited",
			limit:   money.Zero(),
			balance: money.NewDualAmount(dec("100000"), decimal.Zero),
			credit:  money.NewDualAmount(dec("100000"), decimal.Zero),
		},
		{
			name:    "exceeds LBP limit",
			limit:   money.NewDualAmount(decimal.Zero, dec("1000000")),
			balance: money.NewDualAmount(decimal.Zero, dec("900000")),
			credit:  money.NewDualAmount(decimal.Zero, dec("200000")),
			wantErr: shared.ErrCreditLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customer := &CustomerCredit{CreditLimit: tt.limit, CreditBalance: tt.balance}
			err := checkCreditLimit(customer, tt.credit)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSaleBuilderPostsBalancedJournal(t *testing.T) {
	ref := newFakeReferenceStore()
	inv := newFakeInventoryStore()
	docs := newFakeDocumentStore()
	ref.customer = &CustomerCredit{PaymentTermsDays: 30}

	customerID := uuid.New()
	b := NewSaleBuilder(ref, inv, docs)
	ev := saleEvent(t, &payload.SaleCompleted{
		InvoiceNo:    "INV-100",
		ExchangeRate: dec("90000"),
		CustomerID:   &customerID,
		WarehouseID:  uuid.New(),
		Lines: []payload.SaleLine{
			{ItemID: uuid.New(), Qty: dec("1"), UnitPriceUSD: dec("10"), UnitPriceLBP: dec("900000"), LineTotalUSD: dec("10"), LineTotalLBP: dec("900000")},
			{ItemID: uuid.New(), Qty: dec("1"), UnitPriceUSD: dec("10"), UnitPriceLBP: dec("900000"), LineTotalUSD: dec("10"), LineTotalLBP: dec("900000")},
		},
		Tax: &payload.Tax{TaxUSD: dec("1"), TaxLBP: dec("90000")},
		Payments: []payload.Payment{
			{Method: "cash", AmountUSD: dec("19")},
			{Method: "credit", AmountUSD: dec("2")},
		},
	})

	result, err := b.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, result.Status)

	require.Len(t, docs.invoices, 1)
	invoice := docs.invoices[0]
	assert.Equal(t, "INV-100", invoice.InvoiceNo)
	assert.True(t, invoice.Total.USD().Equal(dec("21")), "total USD = %s", invoice.Total.USD())
	assert.True(t, invoice.Total.LBP().Equal(dec("1890000")), "total LBP = %s", invoice.Total.LBP())

	// Tenders persist as given; the credit row is a tender, not a payment.
	require.Len(t, docs.payments, 2)

	require.Len(t, docs.journals, 1)
	journal := docs.journals[0].Journal
	require.Len(t, journal.Entries, 4)

	debit, credit := journal.TotalDebit(), journal.TotalCredit()
	assert.True(t, debit.USD().Equal(credit.USD()), "USD debit %s != credit %s", debit.USD(), credit.USD())
	assert.True(t, debit.LBP().Equal(credit.LBP()), "LBP debit %s != credit %s", debit.LBP(), credit.LBP())
	assert.True(t, debit.USD().Equal(dec("21")))

	byRole := map[ledger.AccountRole]money.DualAmount{}
	for _, e := range journal.Entries {
		if e.Role != "" {
			if e.Debit.IsZero() {
				byRole[e.Role] = e.Credit
			} else {
				byRole[e.Role] = e.Debit
			}
		}
	}
	assert.True(t, byRole[ledger.RoleAccountsReceivable].USD().Equal(dec("2")))
	assert.True(t, byRole[ledger.RoleSales].USD().Equal(dec("20")))
	assert.True(t, byRole[ledger.RoleVATPayable].USD().Equal(dec("1")))

	// The unpaid remainder lands on the customer's exposure.
	require.Len(t, ref.creditAdds, 1)
	assert.True(t, ref.creditAdds[0].USD().Equal(dec("2")))
	assert.True(t, ref.creditAdds[0].LBP().Equal(dec("180000")))

	// Terms push the due date out from the invoice date.
	assert.Equal(t, invoice.InvoiceDate.AddDate(0, 0, 30), invoice.DueDate)

	require.Len(t, docs.emitted, 1)
	assert.Equal(t, "sales.created", docs.emitted[0].EventType)
}

func TestSaleBuilderCreditSaleRequiresCustomer(t *testing.T) {
	b := NewSaleBuilder(newFakeReferenceStore(), newFakeInventoryStore(), newFakeDocumentStore())
	ev := saleEvent(t, &payload.SaleCompleted{
		WarehouseID:  uuid.New(),
		ExchangeRate: dec("90000"),
		Lines: []payload.SaleLine{
			{ItemID: uuid.New(), Qty: dec("1"), UnitPriceUSD: dec("10"), LineTotalUSD: dec("10"), LineTotalLBP: dec("900000")},
		},
	})

	_, err := b.Process(context.Background(), ev)
	assert.ErrorIs(t, err, shared.ErrCustomerRequired)
}

func TestSaleBuilderSkipStockMoves(t *testing.T) {
	ref := newFakeReferenceStore()
	inv := newFakeInventoryStore()
	docs := newFakeDocumentStore()

	b := NewSaleBuilder(ref, inv, docs)
	ev := saleEvent(t, &payload.SaleCompleted{
		WarehouseID:    uuid.New(),
		ExchangeRate:   dec("90000"),
		SkipStockMoves: true,
		Lines: []payload.SaleLine{
			{ItemID: uuid.New(), Qty: dec("1"), UnitPriceUSD: dec("10"), LineTotalUSD: dec("10"), LineTotalLBP: dec("900000")},
		},
		Payments: []payload.Payment{
			{Method: "cash", AmountUSD: dec("10")},
		},
	})

	result, err := b.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, result.Status)
	assert.NotEmpty(t, result.Diagnostics)
	assert.Empty(t, inv.moves)
	assert.Empty(t, docs.journals)
}

func TestResolveDiscount(t *testing.T) {
	ten := dec("10")
	pct := dec("0.1")
	pre := dec("12")

	tests := []struct {
		name    string
		line    payload.SaleLine
		wantUSD decimal.Decimal
	}{
		{
			name: "explicit amount wins",
			line: payload.SaleLine{
				Qty: dec("2"), UnitPriceUSD: ten,
				DiscountAmountUSD: &pre, DiscountPct: &pct,
			},
			wantUSD: dec("12"),
		},
		{
			name: "pre-discount price delta",
			line: payload.SaleLine{
				Qty: dec("2"), UnitPriceUSD: ten,
				PreDiscountUnitPriceUSD: &pre,
			},
			wantUSD: dec("4"),
		},
		{
			name: "percentage of undiscounted value",
			line: payload.SaleLine{
				Qty: dec("2"), UnitPriceUSD: ten,
				DiscountPct: &pct,
			},
			wantUSD: dec("2"),
		},
		{
			name:    "no discount",
			line:    payload.SaleLine{Qty: dec("2"), UnitPriceUSD: ten},
			wantUSD: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveDiscount(tt.line)
			assert.True(t, got.USD().Equal(tt.wantUSD), "got %s, want %s", got.USD(), tt.wantUSD)
		})
	}
}

func TestCreditPortionSettlementTolerance(t *testing.T) {
	total := money.NewDualAmount(dec("21"), dec("1890000"))
	paid := money.NewDualAmount(dec("20.995"), dec("1889550"))

	credit, err := creditPortion(total, paid, dec("90000"), money.USD)
	require.NoError(t, err)
	assert.True(t, credit.IsZero(), "remainder inside tolerance should zero out, got %s", credit)
}
