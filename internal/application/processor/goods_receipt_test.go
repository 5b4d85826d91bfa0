package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahtrading/posledger/internal/application/payload"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/outbox"
	"github.com/ahtrading/posledger/internal/domain/shared"
)

func receiptEvent(t *testing.T, p *payload.PurchaseReceived) *outbox.Event {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return &outbox.Event{
		ID:        uuid.New(),
		CompanyID: uuid.New(),
		EventType: outbox.EventPurchaseReceived,
		Payload:   raw,
		Status:    outbox.StatusPending,
		CreatedAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestGoodsReceiptBuilderPostsAccrual(t *testing.T) {
	ref := newFakeReferenceStore()
	inv := newFakeInventoryStore()
	docs := newFakeDocumentStore()

	supplierID := uuid.New()
	expiry := payload.Date{Time: time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC)}
	b := NewGoodsReceiptBuilder(ref, inv, docs)
	ev := receiptEvent(t, &payload.PurchaseReceived{
		ReceiptNo:    "GR-9",
		SupplierID:   &supplierID,
		WarehouseID:  uuid.New(),
		ExchangeRate: dec("90000"),
		Lines: []payload.PurchaseLine{
			{ItemID: uuid.New(), Qty: dec("10"), UnitCostUSD: dec("2"), LineTotalUSD: dec("20"), LineTotalLBP: dec("1800000"), BatchNo: "LOT-A", ExpiryDate: &expiry},
			{ItemID: uuid.New(), Qty: dec("5"), UnitCostUSD: dec("4"), LineTotalUSD: dec("20"), LineTotalLBP: dec("1800000")},
		},
	})

	result, err := b.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, result.Status)

	require.Len(t, docs.receipts, 1)
	receipt := docs.receipts[0]
	assert.Equal(t, "GR-9", receipt.ReceiptNo)
	assert.True(t, receipt.Total.USD().Equal(dec("40")))

	// The batch-tagged line gets a batch and its received metadata filled.
	require.Len(t, receipt.Lines, 2)
	assert.NotNil(t, receipt.Lines[0].BatchID)
	assert.Nil(t, receipt.Lines[1].BatchID)
	require.Len(t, inv.touched, 1)
	assert.Equal(t, *receipt.Lines[0].BatchID, inv.touched[0])

	require.Len(t, inv.moves, 2)
	assert.True(t, inv.moves[0].QtyIn.Equal(dec("10")))
	assert.Equal(t, "goods_receipt", inv.moves[0].SourceType)

	require.Len(t, docs.journals, 1)
	journal := docs.journals[0].Journal
	require.Len(t, journal.Entries, 2)
	for _, e := range journal.Entries {
		switch e.Role {
		case ledger.RoleInventory:
			assert.True(t, e.Debit.USD().Equal(dec("40")))
		case ledger.RoleGRNI:
			assert.True(t, e.Credit.USD().Equal(dec("40")))
		default:
			t.Fatalf("unexpected journal role %q", e.Role)
		}
	}

	require.Len(t, docs.emitted, 1)
	assert.Equal(t, "purchase.received", docs.emitted[0].EventType)
}

func TestGoodsReceiptBuilderZeroValueSkipsJournal(t *testing.T) {
	docs := newFakeDocumentStore()
	b := NewGoodsReceiptBuilder(newFakeReferenceStore(), newFakeInventoryStore(), docs)
	ev := receiptEvent(t, &payload.PurchaseReceived{
		WarehouseID:  uuid.New(),
		ExchangeRate: dec("90000"),
		Lines: []payload.PurchaseLine{
			{ItemID: uuid.New(), Qty: dec("3")},
		},
	})

	result, err := b.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, result.Status)
	assert.Empty(t, docs.journals)
}

func TestGoodsReceiptBuilderDuplicateEvent(t *testing.T) {
	docs := newFakeDocumentStore()
	docs.receiptExists = true

	b := NewGoodsReceiptBuilder(newFakeReferenceStore(), newFakeInventoryStore(), docs)
	ev := receiptEvent(t, &payload.PurchaseReceived{
		WarehouseID:  uuid.New(),
		ExchangeRate: dec("90000"),
		Lines:        []payload.PurchaseLine{{ItemID: uuid.New(), Qty: dec("1")}},
	})

	result, err := b.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, result.Status)
	assert.Empty(t, docs.receipts)
}

func TestGoodsReceiptBuilderRejectsEmptyLines(t *testing.T) {
	b := NewGoodsReceiptBuilder(newFakeReferenceStore(), newFakeInventoryStore(), newFakeDocumentStore())
	ev := receiptEvent(t, &payload.PurchaseReceived{WarehouseID: uuid.New(), ExchangeRate: dec("90000")})

	_, err := b.Process(context.Background(), ev)
	assert.ErrorIs(t, err, shared.ErrNoLines)
}
