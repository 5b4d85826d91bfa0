package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahtrading/posledger/internal/domain/inventory"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
)

// fakeReferenceStore is a configurable in-memory ReferenceStore.
type fakeReferenceStore struct {
	accounts       map[ledger.AccountRole]uuid.UUID
	methodAccounts map[string]uuid.UUID
	vatRates       map[uuid.UUID]decimal.Decimal
	itemTaxCodes   map[uuid.UUID]*uuid.UUID
	pointsPerUSD   decimal.Decimal
	pointsPerLBP   decimal.Decimal
	invPolicy      InventoryPolicy
	customer       *CustomerCredit
	periodErr      error
	openShiftID    *uuid.UUID
	branchID       *uuid.UUID
	supplierTerms  int

	nextDocNo    string
	creditAdds   []money.DualAmount
	creditCuts   []money.DualAmount
	creditCutIDs []uuid.UUID
}

func newFakeReferenceStore() *fakeReferenceStore {
	accounts := map[ledger.AccountRole]uuid.UUID{}
	for _, role := range []ledger.AccountRole{
		ledger.RoleAccountsReceivable, ledger.RoleCash, ledger.RoleSales,
		ledger.RoleSalesReturns, ledger.RoleVATPayable, ledger.RoleVATRecoverable,
		ledger.RoleInventory, ledger.RoleCOGS, ledger.RoleAccountsPayable,
		ledger.RoleGRNI, ledger.RoleRestockFees,
	} {
		accounts[role] = uuid.New()
	}
	return &fakeReferenceStore{
		accounts: accounts,
		methodAccounts: map[string]uuid.UUID{
			"cash": accounts[ledger.RoleCash],
			"card": uuid.New(),
		},
		vatRates:     map[uuid.UUID]decimal.Decimal{},
		itemTaxCodes: map[uuid.UUID]*uuid.UUID{},
		pointsPerUSD: decimal.Zero,
		pointsPerLBP: decimal.Zero,
		invPolicy:    InventoryPolicy{AllowNegativeStock: true},
		nextDocNo:    "DOC-000001",
	}
}

func (f *fakeReferenceStore) AccountDefaults(ctx context.Context, companyID uuid.UUID) (map[ledger.AccountRole]uuid.UUID, error) {
	return f.accounts, nil
}

func (f *fakeReferenceStore) PaymentMethodAccounts(ctx context.Context, companyID uuid.UUID) (map[string]uuid.UUID, error) {
	return f.methodAccounts, nil
}

func (f *fakeReferenceStore) AssertPeriodOpen(ctx context.Context, companyID uuid.UUID, postingDate time.Time) error {
	return f.periodErr
}

func (f *fakeReferenceStore) NextDocumentNo(ctx context.Context, companyID uuid.UUID, docType string) (string, error) {
	return f.nextDocNo, nil
}

func (f *fakeReferenceStore) ValidVATRates(ctx context.Context, companyID uuid.UUID, taxCodeIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := map[uuid.UUID]decimal.Decimal{}
	for _, id := range taxCodeIDs {
		if rate, ok := f.vatRates[id]; ok {
			out[id] = rate
		}
	}
	return out, nil
}

func (f *fakeReferenceStore) ItemTaxCodes(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	out := map[uuid.UUID]*uuid.UUID{}
	for _, id := range itemIDs {
		out[id] = f.itemTaxCodes[id]
	}
	return out, nil
}

func (f *fakeReferenceStore) LoyaltyPolicy(ctx context.Context, companyID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	return f.pointsPerUSD, f.pointsPerLBP, nil
}

func (f *fakeReferenceStore) InventoryPolicy(ctx context.Context, companyID uuid.UUID) (InventoryPolicy, error) {
	return f.invPolicy, nil
}

func (f *fakeReferenceStore) Customer(ctx context.Context, companyID, customerID uuid.UUID) (*CustomerCredit, error) {
	return f.customer, nil
}

func (f *fakeReferenceStore) AddCustomerCredit(ctx context.Context, companyID, customerID uuid.UUID, amount money.DualAmount) error {
	f.creditAdds = append(f.creditAdds, amount)
	return nil
}

func (f *fakeReferenceStore) ReduceCustomerCredit(ctx context.Context, companyID, customerID uuid.UUID, amount money.DualAmount) error {
	f.creditCuts = append(f.creditCuts, amount)
	f.creditCutIDs = append(f.creditCutIDs, customerID)
	return nil
}

func (f *fakeReferenceStore) SupplierPaymentTermsDays(ctx context.Context, companyID, supplierID uuid.UUID) (int, error) {
	return f.supplierTerms, nil
}

func (f *fakeReferenceStore) DeviceBranch(ctx context.Context, deviceID uuid.UUID) (*uuid.UUID, error) {
	return f.branchID, nil
}

func (f *fakeReferenceStore) ResolveOpenShift(ctx context.Context, companyID, deviceID uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error) {
	if requested != nil {
		return requested, nil
	}
	return f.openShiftID, nil
}

// fakeInventoryStore is a configurable in-memory InventoryStore.
type fakeInventoryStore struct {
	itemPolicies map[uuid.UUID]ItemPolicy
	whPolicy     WarehousePolicy
	batchStocks  []inventory.BatchStock
	avgCost      money.DualAmount
	invoiceCosts map[uuid.UUID]money.DualAmount
	findBatchFn  func(itemID uuid.UUID, batchNo string) (*inventory.BatchStock, error)

	moves    []StockMove
	batchIDs map[string]uuid.UUID
	touched  []uuid.UUID
}

func newFakeInventoryStore() *fakeInventoryStore {
	return &fakeInventoryStore{
		itemPolicies: map[uuid.UUID]ItemPolicy{},
		avgCost:      money.Zero(),
		invoiceCosts: map[uuid.UUID]money.DualAmount{},
		batchIDs:     map[string]uuid.UUID{},
	}
}

func (f *fakeInventoryStore) ItemPolicies(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]ItemPolicy, error) {
	return f.itemPolicies, nil
}

func (f *fakeInventoryStore) WarehousePolicy(ctx context.Context, companyID, warehouseID uuid.UUID) (WarehousePolicy, error) {
	return f.whPolicy, nil
}

func (f *fakeInventoryStore) BatchStocks(ctx context.Context, companyID, itemID, warehouseID uuid.UUID) ([]inventory.BatchStock, error) {
	return f.batchStocks, nil
}

func (f *fakeInventoryStore) FindBatch(ctx context.Context, companyID, itemID uuid.UUID, batchNo string, expiry *time.Time) (*inventory.BatchStock, error) {
	if f.findBatchFn != nil {
		return f.findBatchFn(itemID, batchNo)
	}
	return nil, nil
}

func (f *fakeInventoryStore) BatchOnHand(ctx context.Context, companyID, itemID, warehouseID, batchID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeInventoryStore) GetOrCreateBatch(ctx context.Context, companyID, itemID uuid.UUID, batchNo string, expiry *time.Time) (*uuid.UUID, error) {
	id, ok := f.batchIDs[batchNo]
	if !ok {
		id = uuid.New()
		f.batchIDs[batchNo] = id
	}
	return &id, nil
}

func (f *fakeInventoryStore) TouchBatchReceived(ctx context.Context, companyID uuid.UUID, batchID uuid.UUID, sourceType string, sourceID uuid.UUID, supplierID *uuid.UUID, receivedAt time.Time) error {
	f.touched = append(f.touched, batchID)
	return nil
}

func (f *fakeInventoryStore) AverageCost(ctx context.Context, companyID, itemID, warehouseID uuid.UUID) (money.DualAmount, error) {
	return f.avgCost, nil
}

func (f *fakeInventoryStore) InsertStockMove(ctx context.Context, move StockMove) error {
	f.moves = append(f.moves, move)
	return nil
}

func (f *fakeInventoryStore) CostsBySourceInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) (map[uuid.UUID]money.DualAmount, error) {
	return f.invoiceCosts, nil
}

// appliedLoyalty records one ApplyLoyaltyPoints call.
type appliedLoyalty struct {
	CustomerID uuid.UUID
	SourceType string
	SourceID   uuid.UUID
	Points     decimal.Decimal
}

// fakeDocumentStore is a recording in-memory DocumentStore.
type fakeDocumentStore struct {
	invoiceExists  bool
	returnExists   bool
	receiptExists  bool
	supplierExists bool

	invoiceSummary *InvoiceSummary
	payByMethod    map[string]money.DualAmount

	invoices     []SalesInvoiceDoc
	payments     []SalesPaymentRow
	returns      []SalesReturnDoc
	refunds      []SalesRefundRow
	receipts     []GoodsReceiptDoc
	supplierDocs []SupplierInvoiceDoc
	cashDocs     []CashMovementDoc
	taxLines     []TaxLine
	loyalty      []appliedLoyalty
	journals     []JournalDoc
	emitted      []EmittedEvent
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{payByMethod: map[string]money.DualAmount{}}
}

func (f *fakeDocumentStore) InvoiceExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return f.invoiceExists, nil
}

func (f *fakeDocumentStore) ReturnExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return f.returnExists, nil
}

func (f *fakeDocumentStore) ReceiptExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return f.receiptExists, nil
}

func (f *fakeDocumentStore) SupplierInvoiceExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return f.supplierExists, nil
}

func (f *fakeDocumentStore) InsertSalesInvoice(ctx context.Context, doc SalesInvoiceDoc) (uuid.UUID, error) {
	f.invoices = append(f.invoices, doc)
	return uuid.New(), nil
}

func (f *fakeDocumentStore) InsertSalesPayments(ctx context.Context, invoiceID uuid.UUID, rows []SalesPaymentRow) error {
	f.payments = append(f.payments, rows...)
	return nil
}

func (f *fakeDocumentStore) InsertSalesReturn(ctx context.Context, doc SalesReturnDoc) (uuid.UUID, error) {
	f.returns = append(f.returns, doc)
	return uuid.New(), nil
}

func (f *fakeDocumentStore) InsertSalesRefund(ctx context.Context, returnID uuid.UUID, companyID uuid.UUID, row SalesRefundRow) (uuid.UUID, error) {
	f.refunds = append(f.refunds, row)
	return uuid.New(), nil
}

func (f *fakeDocumentStore) InsertGoodsReceipt(ctx context.Context, doc GoodsReceiptDoc) (uuid.UUID, error) {
	f.receipts = append(f.receipts, doc)
	return uuid.New(), nil
}

func (f *fakeDocumentStore) InsertSupplierInvoice(ctx context.Context, doc SupplierInvoiceDoc) (uuid.UUID, error) {
	f.supplierDocs = append(f.supplierDocs, doc)
	return uuid.New(), nil
}

func (f *fakeDocumentStore) InsertCashMovement(ctx context.Context, doc CashMovementDoc) error {
	f.cashDocs = append(f.cashDocs, doc)
	return nil
}

func (f *fakeDocumentStore) InsertTaxLines(ctx context.Context, companyID uuid.UUID, sourceType string, sourceID uuid.UUID, rows []TaxLine) error {
	f.taxLines = append(f.taxLines, rows...)
	return nil
}

func (f *fakeDocumentStore) InvoiceByID(ctx context.Context, companyID, invoiceID uuid.UUID) (*InvoiceSummary, error) {
	return f.invoiceSummary, nil
}

func (f *fakeDocumentStore) PaymentsByMethod(ctx context.Context, invoiceID uuid.UUID) (map[string]money.DualAmount, error) {
	return f.payByMethod, nil
}

func (f *fakeDocumentStore) ApplyLoyaltyPoints(ctx context.Context, companyID, customerID uuid.UUID, sourceType string, sourceID uuid.UUID, points decimal.Decimal) error {
	f.loyalty = append(f.loyalty, appliedLoyalty{
		CustomerID: customerID,
		SourceType: sourceType,
		SourceID:   sourceID,
		Points:     points,
	})
	return nil
}

func (f *fakeDocumentStore) InsertJournal(ctx context.Context, doc JournalDoc) (uuid.UUID, error) {
	f.journals = append(f.journals, doc)
	return uuid.New(), nil
}

func (f *fakeDocumentStore) EmitEvent(ctx context.Context, companyID uuid.UUID, ev EmittedEvent) error {
	f.emitted = append(f.emitted, ev)
	return nil
}
