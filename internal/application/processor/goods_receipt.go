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

// GoodsReceiptBuilder posts a purchase.received event as a goods receipt
// with inbound stock moves and an Inventory/GRNI accrual journal.
type GoodsReceiptBuilder struct {
	ref  ReferenceStore
	inv  InventoryStore
	docs DocumentStore
}

func NewGoodsReceiptBuilder(ref ReferenceStore, inv InventoryStore, docs DocumentStore) *GoodsReceiptBuilder {
	return &GoodsReceiptBuilder{ref: ref, inv: inv, docs: docs}
}

func (b *GoodsReceiptBuilder) EventType() outbox.EventType { return outbox.EventPurchaseReceived }

func (b *GoodsReceiptBuilder) Process(ctx context.Context, ev *outbox.Event) (Result, error) {
	decoded, err := payload.Decode(ev.EventType, ev.Payload)
	if err != nil {
		return Result{}, err
	}
	p := decoded.(*payload.PurchaseReceived)

	exists, err := b.docs.ReceiptExistsForEvent(ctx, ev.CompanyID, ev.ID)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Status: StatusDuplicate}, nil
	}

	if len(p.Lines) == 0 {
		return Result{}, shared.ErrNoLines
	}

	receiptNo := p.ReceiptNo
	if receiptNo == "" {
		if receiptNo, err = b.ref.NextDocumentNo(ctx, ev.CompanyID, "GR"); err != nil {
			return Result{}, err
		}
	}

	receivedAt := businessDate(p.ReceiptDate, ev.CreatedAt)
	if err := b.ref.AssertPeriodOpen(ctx, ev.CompanyID, receivedAt); err != nil {
		return Result{}, err
	}

	lines, total, err := b.resolveReceiptLines(ctx, ev.CompanyID, p.Lines)
	if err != nil {
		return Result{}, err
	}

	receiptID, err := b.docs.InsertGoodsReceipt(ctx, GoodsReceiptDoc{
		CompanyID:     ev.CompanyID,
		ReceiptNo:     receiptNo,
		SupplierID:    p.SupplierID,
		SupplierRef:   p.SupplierRef,
		Total:         total,
		ExchangeRate:  p.ExchangeRate,
		WarehouseID:   p.WarehouseID,
		SourceEventID: ev.ID,
		ReceivedAt:    receivedAt,
		Lines:         lines,
	})
	if err != nil {
		return Result{}, err
	}

	for _, l := range lines {
		if l.BatchID != nil {
			if err := b.inv.TouchBatchReceived(ctx, ev.CompanyID, *l.BatchID, "goods_receipt", receiptID, p.SupplierID, receivedAt); err != nil {
				return Result{}, err
			}
		}
		if err := b.inv.InsertStockMove(ctx, StockMove{
			CompanyID:      ev.CompanyID,
			ItemID:         l.ItemID,
			WarehouseID:    p.WarehouseID,
			BatchID:        l.BatchID,
			QtyIn:          l.Qty,
			UnitCost:       l.UnitCost,
			MoveDate:       receivedAt,
			SourceType:     "goods_receipt",
			SourceID:       receiptID,
			SourceLineType: "goods_receipt_line",
			SourceLineID:   l.ID,
			DeviceID:       ev.DeviceID,
			CashierID:      p.CashierID,
			Reason:         "Goods receipt",
		}); err != nil {
			return Result{}, err
		}
	}

	if err := b.postJournal(ctx, ev, p, receiptID, receiptNo, receivedAt, total); err != nil {
		return Result{}, err
	}

	if err := b.docs.EmitEvent(ctx, ev.CompanyID, EmittedEvent{
		EventType:  "purchase.received",
		SourceType: "goods_receipt",
		SourceID:   receiptID,
		Payload: map[string]any{
			"receipt_id": receiptID.String(),
			"receipt_no": receiptNo,
			"total_usd":  total.USD().String(),
			"total_lbp":  total.LBP().String(),
		},
	}); err != nil {
		return Result{}, err
	}

	return Result{Status: StatusProcessed, DocumentID: receiptID}, nil
}

// resolveReceiptLines assigns line ids, creates or reuses batches for
// batch-tagged lines, and sums the receipt value.
func (b *GoodsReceiptBuilder) resolveReceiptLines(ctx context.Context, companyID uuid.UUID, rows []payload.PurchaseLine) ([]GoodsReceiptLine, money.DualAmount, error) {
	var lines []GoodsReceiptLine
	total := money.Zero()
	for _, l := range rows {
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
				return nil, money.Zero(), err
			}
		}
		lineTotal := money.NewDualAmount(l.LineTotalUSD, l.LineTotalLBP)
		total = total.Add(lineTotal)
		lines = append(lines, GoodsReceiptLine{
			ID:        uuid.New(),
			ItemID:    l.ItemID,
			BatchID:   batchID,
			Qty:       l.Qty,
			UnitCost:  money.NewDualAmount(l.UnitCostUSD, l.UnitCostLBP),
			LineTotal: lineTotal,
		})
	}
	return lines, total, nil
}

func (b *GoodsReceiptBuilder) postJournal(ctx context.Context, ev *outbox.Event, p *payload.PurchaseReceived, receiptID uuid.UUID, receiptNo string, receivedAt time.Time, total money.DualAmount) error {
	if !total.IsPositive() {
		return nil
	}
	accounts, err := loadAccountMap(ctx, b.ref, ev.CompanyID)
	if err != nil {
		return err
	}
	jb := ledger.NewBuilder(accounts, ev.CompanyID, "goods_receipt", receiptID, fmt.Sprintf("Goods receipt %s", receiptNo))
	jb.Debit(ledger.RoleInventory, total, "Inventory received")
	jb.Credit(ledger.RoleGRNI, total, "Goods received not invoiced")
	journal, err := jb.Build()
	if err != nil {
		return err
	}
	_, err = b.docs.InsertJournal(ctx, JournalDoc{
		JournalNo:    fmt.Sprintf("GR-%s", shortID(receiptID)),
		JournalDate:  receivedAt,
		ExchangeRate: p.ExchangeRate,
		Memo:         fmt.Sprintf("Goods receipt %s", receiptNo),
		DeviceID:     ev.DeviceID,
		CashierID:    p.CashierID,
		Journal:      journal,
	})
	return err
}
