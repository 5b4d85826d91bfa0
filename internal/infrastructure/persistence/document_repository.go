package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahtrading/posledger/internal/application/processor"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/infrastructure/persistence/models"
)

// GormDocumentRepository persists documents, journals, and downstream
// events.
type GormDocumentRepository struct {
	db *gorm.DB
}

func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

var _ processor.DocumentStore = (*GormDocumentRepository)(nil)

func (r *GormDocumentRepository) InvoiceExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return r.existsForEvent(ctx, &models.SalesInvoiceModel{}, companyID, eventID)
}

func (r *GormDocumentRepository) ReturnExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return r.existsForEvent(ctx, &models.SalesReturnModel{}, companyID, eventID)
}

func (r *GormDocumentRepository) ReceiptExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return r.existsForEvent(ctx, &models.GoodsReceiptModel{}, companyID, eventID)
}

func (r *GormDocumentRepository) SupplierInvoiceExistsForEvent(ctx context.Context, companyID, eventID uuid.UUID) (bool, error) {
	return r.existsForEvent(ctx, &models.SupplierInvoiceModel{}, companyID, eventID)
}

func (r *GormDocumentRepository) existsForEvent(ctx context.Context, model any, companyID, eventID uuid.UUID) (bool, error) {
	var count int64
	err := dbFrom(ctx, r.db).Model(model).
		Where("company_id = ? AND source_event_id = ?", companyID, eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check event idempotency: %w", err)
	}
	return count > 0, nil
}

func (r *GormDocumentRepository) InsertSalesInvoice(ctx context.Context, doc processor.SalesInvoiceDoc) (uuid.UUID, error) {
	row := models.SalesInvoiceModel{
		ID:                 uuid.New(),
		CompanyID:          doc.CompanyID,
		InvoiceNo:          doc.InvoiceNo,
		CustomerID:         doc.CustomerID,
		SubtotalUSD:        doc.Subtotal.USD(),
		SubtotalLBP:        doc.Subtotal.LBP(),
		TotalUSD:           doc.Total.USD(),
		TotalLBP:           doc.Total.LBP(),
		DiscountTotalUSD:   doc.DiscountTotal.USD(),
		DiscountTotalLBP:   doc.DiscountTotal.LBP(),
		ExchangeRate:       doc.ExchangeRate,
		PricingCurrency:    doc.PricingCurrency,
		SettlementCurrency: doc.SettlementCurrency,
		WarehouseID:        doc.WarehouseID,
		SourceEventID:      doc.SourceEventID,
		DeviceID:           doc.DeviceID,
		ShiftID:            doc.ShiftID,
		BranchID:           doc.BranchID,
		CashierID:          doc.CashierID,
		InvoiceDate:        doc.InvoiceDate,
		DueDate:            doc.DueDate,
		ReceiptNo:          doc.ReceiptNo,
		ReceiptMeta:        doc.ReceiptMeta,
	}
	for _, l := range doc.Lines {
		row.Lines = append(row.Lines, models.SalesInvoiceLineModel{
			ID:                      l.ID,
			InvoiceID:               row.ID,
			ItemID:                  l.ItemID,
			Qty:                     l.Qty,
			UnitPriceUSD:            l.UnitPrice.USD(),
			UnitPriceLBP:            l.UnitPrice.LBP(),
			LineTotalUSD:            l.LineTotal.USD(),
			LineTotalLBP:            l.LineTotal.LBP(),
			PreDiscountUnitPriceUSD: l.PreDiscountUnitPrice.USD(),
			PreDiscountUnitPriceLBP: l.PreDiscountUnitPrice.LBP(),
			DiscountPct:             l.DiscountPct,
			DiscountAmountUSD:       l.DiscountAmount.USD(),
			DiscountAmountLBP:       l.DiscountAmount.LBP(),
			AppliedPromotionID:      l.AppliedPromotionID,
			AppliedPriceListID:      l.AppliedPriceListID,
		})
	}
	if err := dbFrom(ctx, r.db).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert sales invoice: %w", err)
	}
	return row.ID, nil
}

func (r *GormDocumentRepository) InsertSalesPayments(ctx context.Context, invoiceID uuid.UUID, rows []processor.SalesPaymentRow) error {
	if len(rows) == 0 {
		return nil
	}
	out := make([]models.SalesPaymentModel, 0, len(rows))
	for _, p := range rows {
		out = append(out, models.SalesPaymentModel{
			ID:                 uuid.New(),
			InvoiceID:          invoiceID,
			Method:             p.Method,
			AppliedUSD:         p.Applied.USD(),
			AppliedLBP:         p.Applied.LBP(),
			TenderUSD:          p.Tender.USD(),
			TenderLBP:          p.Tender.LBP(),
			SettlementCurrency: p.SettlementCurrency,
			Reference:          p.Reference,
			AuthCode:           p.AuthCode,
			Provider:           p.Provider,
		})
	}
	if err := dbFrom(ctx, r.db).Create(&out).Error; err != nil {
		return fmt.Errorf("insert sales payments: %w", err)
	}
	return nil
}

func (r *GormDocumentRepository) InsertSalesReturn(ctx context.Context, doc processor.SalesReturnDoc) (uuid.UUID, error) {
	row := models.SalesReturnModel{
		ID:                uuid.New(),
		CompanyID:         doc.CompanyID,
		ReturnNo:          doc.ReturnNo,
		InvoiceID:         doc.InvoiceID,
		TotalUSD:          doc.Total.USD(),
		TotalLBP:          doc.Total.LBP(),
		ExchangeRate:      doc.ExchangeRate,
		WarehouseID:       doc.WarehouseID,
		SourceEventID:     doc.SourceEventID,
		DeviceID:          doc.DeviceID,
		ShiftID:           doc.ShiftID,
		BranchID:          doc.BranchID,
		CashierID:         doc.CashierID,
		RefundMethod:      doc.RefundMethod,
		ReasonID:          doc.ReasonID,
		Reason:            doc.Reason,
		ReturnDate:        doc.ReturnDate,
		RestockingFeeUSD:  doc.RestockingFee.USD(),
		RestockingFeeLBP:  doc.RestockingFee.LBP(),
		RestockingFeeNote: doc.RestockingFeeNote,
	}
	for _, l := range doc.Lines {
		row.Lines = append(row.Lines, models.SalesReturnLineModel{
			ID:           l.ID,
			ReturnID:     row.ID,
			ItemID:       l.ItemID,
			Qty:          l.Qty,
			UnitPriceUSD: l.UnitPrice.USD(),
			UnitPriceLBP: l.UnitPrice.LBP(),
			LineTotalUSD: l.LineTotal.USD(),
			LineTotalLBP: l.LineTotal.LBP(),
			UnitCostUSD:  l.UnitCost.USD(),
			UnitCostLBP:  l.UnitCost.LBP(),
			ReasonID:     l.ReasonID,
		})
	}
	if err := dbFrom(ctx, r.db).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert sales return: %w", err)
	}
	return row.ID, nil
}

func (r *GormDocumentRepository) InsertSalesRefund(ctx context.Context, returnID uuid.UUID, companyID uuid.UUID, refund processor.SalesRefundRow) (uuid.UUID, error) {
	row := models.SalesRefundModel{
		ID:                 uuid.New(),
		CompanyID:          companyID,
		ReturnID:           returnID,
		Method:             refund.Method,
		AmountUSD:          refund.Amount.USD(),
		AmountLBP:          refund.Amount.LBP(),
		SettlementCurrency: refund.SettlementCurrency,
		BankAccountID:      refund.BankAccountID,
		Reference:          refund.Reference,
		SourceEventID:      refund.SourceEventID,
		DeviceID:           refund.DeviceID,
		CashierID:          refund.CashierID,
	}
	if err := dbFrom(ctx, r.db).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert sales refund: %w", err)
	}
	return row.ID, nil
}

func (r *GormDocumentRepository) InsertGoodsReceipt(ctx context.Context, doc processor.GoodsReceiptDoc) (uuid.UUID, error) {
	row := models.GoodsReceiptModel{
		ID:            uuid.New(),
		CompanyID:     doc.CompanyID,
		ReceiptNo:     doc.ReceiptNo,
		SupplierID:    doc.SupplierID,
		SupplierRef:   doc.SupplierRef,
		TotalUSD:      doc.Total.USD(),
		TotalLBP:      doc.Total.LBP(),
		ExchangeRate:  doc.ExchangeRate,
		WarehouseID:   doc.WarehouseID,
		SourceEventID: doc.SourceEventID,
		ReceivedAt:    doc.ReceivedAt,
	}
	for _, l := range doc.Lines {
		row.Lines = append(row.Lines, models.GoodsReceiptLineModel{
			ID:           l.ID,
			ReceiptID:    row.ID,
			ItemID:       l.ItemID,
			BatchID:      l.BatchID,
			Qty:          l.Qty,
			UnitCostUSD:  l.UnitCost.USD(),
			UnitCostLBP:  l.UnitCost.LBP(),
			LineTotalUSD: l.LineTotal.USD(),
			LineTotalLBP: l.LineTotal.LBP(),
		})
	}
	if err := dbFrom(ctx, r.db).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert goods receipt: %w", err)
	}
	return row.ID, nil
}

func (r *GormDocumentRepository) InsertSupplierInvoice(ctx context.Context, doc processor.SupplierInvoiceDoc) (uuid.UUID, error) {
	row := models.SupplierInvoiceModel{
		ID:            uuid.New(),
		CompanyID:     doc.CompanyID,
		InvoiceNo:     doc.InvoiceNo,
		SupplierID:    doc.SupplierID,
		SupplierRef:   doc.SupplierRef,
		TotalUSD:      doc.Total.USD(),
		TotalLBP:      doc.Total.LBP(),
		ExchangeRate:  doc.ExchangeRate,
		SourceEventID: doc.SourceEventID,
		InvoiceDate:   doc.InvoiceDate,
		DueDate:       doc.DueDate,
	}
	for _, l := range doc.Lines {
		row.Lines = append(row.Lines, models.SupplierInvoiceLineModel{
			ID:           uuid.New(),
			InvoiceID:    row.ID,
			ItemID:       l.ItemID,
			BatchID:      l.BatchID,
			Qty:          l.Qty,
			UnitCostUSD:  l.UnitCost.USD(),
			UnitCostLBP:  l.UnitCost.LBP(),
			LineTotalUSD: l.LineTotal.USD(),
			LineTotalLBP: l.LineTotal.LBP(),
		})
	}
	for _, p := range doc.Payments {
		row.Payments = append(row.Payments, models.SupplierPaymentModel{
			ID:        uuid.New(),
			InvoiceID: row.ID,
			Method:    p.Method,
			AmountUSD: p.Amount.USD(),
			AmountLBP: p.Amount.LBP(),
		})
	}
	if err := dbFrom(ctx, r.db).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert supplier invoice: %w", err)
	}
	return row.ID, nil
}

func (r *GormDocumentRepository) InsertCashMovement(ctx context.Context, doc processor.CashMovementDoc) error {
	row := models.CashMovementModel{
		ID:           doc.ID,
		CompanyID:    doc.CompanyID,
		ShiftID:      doc.ShiftID,
		DeviceID:     doc.DeviceID,
		MovementType: doc.MovementType,
		AmountUSD:    doc.Amount.USD(),
		AmountLBP:    doc.Amount.LBP(),
		Notes:        doc.Notes,
		CashierID:    doc.CashierID,
	}
	// Replays carry the same id; the conflict makes them no-ops.
	err := dbFrom(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert cash movement: %w", err)
	}
	return nil
}

func (r *GormDocumentRepository) InsertTaxLines(ctx context.Context, companyID uuid.UUID, sourceType string, sourceID uuid.UUID, rows []processor.TaxLine) error {
	if len(rows) == 0 {
		return nil
	}
	out := make([]models.TaxLineModel, 0, len(rows))
	for _, t := range rows {
		out = append(out, models.TaxLineModel{
			ID:         uuid.New(),
			CompanyID:  companyID,
			SourceType: sourceType,
			SourceID:   sourceID,
			TaxCodeID:  t.TaxCodeID,
			BaseUSD:    t.Base.USD(),
			BaseLBP:    t.Base.LBP(),
			TaxUSD:     t.Tax.USD(),
			TaxLBP:     t.Tax.LBP(),
			TaxDate:    t.TaxDate,
		})
	}
	if err := dbFrom(ctx, r.db).Create(&out).Error; err != nil {
		return fmt.Errorf("insert tax lines: %w", err)
	}
	return nil
}

func (r *GormDocumentRepository) InvoiceByID(ctx context.Context, companyID, invoiceID uuid.UUID) (*processor.InvoiceSummary, error) {
	var row models.SalesInvoiceModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND id = ?", companyID, invoiceID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	return &processor.InvoiceSummary{
		ID:         row.ID,
		CustomerID: row.CustomerID,
		Total:      money.NewDualAmount(row.TotalUSD, row.TotalLBP),
	}, nil
}

func (r *GormDocumentRepository) PaymentsByMethod(ctx context.Context, invoiceID uuid.UUID) (map[string]money.DualAmount, error) {
	var rows []struct {
		Method string
		USD    decimal.Decimal
		LBP    decimal.Decimal
	}
	err := dbFrom(ctx, r.db).
		Raw(`SELECT LOWER(method) AS method, SUM(applied_usd) AS usd, SUM(applied_lbp) AS lbp
		     FROM sales_payments
		     WHERE invoice_id = ?
		     GROUP BY LOWER(method)`, invoiceID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate invoice payments: %w", err)
	}
	out := make(map[string]money.DualAmount, len(rows))
	for _, row := range rows {
		out[row.Method] = money.NewDualAmount(row.USD, row.LBP)
	}
	return out, nil
}

// ApplyLoyaltyPoints inserts one ledger row guarded by the (company,
// source) key; only a fresh insert adjusts the customer aggregate, which
// floors at zero.
func (r *GormDocumentRepository) ApplyLoyaltyPoints(ctx context.Context, companyID, customerID uuid.UUID, sourceType string, sourceID uuid.UUID, points decimal.Decimal) error {
	if points.IsZero() {
		return nil
	}
	db := dbFrom(ctx, r.db)
	row := models.LoyaltyLedgerModel{
		ID:         uuid.New(),
		CompanyID:  companyID,
		CustomerID: customerID,
		SourceType: sourceType,
		SourceID:   sourceID,
		Points:     points,
	}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "source_type"}, {Name: "source_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert loyalty ledger row: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	err := db.Model(&models.CustomerModel{}).
		Where("company_id = ? AND id = ?", companyID, customerID).
		Updates(map[string]any{
			"loyalty_points": gorm.Expr("GREATEST(loyalty_points + ?, 0)", points),
			"updated_at":     gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("update customer loyalty balance: %w", err)
	}
	return nil
}

const journalSuffixRetries = 10

// InsertJournal posts a balanced journal. A replay for the same source
// returns the existing journal; a journal-number collision retries with a
// short random suffix a bounded number of times.
func (r *GormDocumentRepository) InsertJournal(ctx context.Context, doc processor.JournalDoc) (uuid.UUID, error) {
	db := dbFrom(ctx, r.db)
	j := doc.Journal

	var existing models.GLJournalModel
	err := db.Where("company_id = ? AND source_type = ? AND source_id = ?",
		j.CompanyID, j.SourceType, j.SourceID).
		First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, fmt.Errorf("lookup journal by source: %w", err)
	}

	journalNo := doc.JournalNo
	for attempt := 0; attempt <= journalSuffixRetries; attempt++ {
		if attempt > 0 {
			journalNo = fmt.Sprintf("%s-%s", doc.JournalNo, uuid.NewString()[:6])
		}
		row := models.GLJournalModel{
			ID:           uuid.New(),
			CompanyID:    j.CompanyID,
			JournalNo:    journalNo,
			JournalDate:  doc.JournalDate,
			ExchangeRate: doc.ExchangeRate,
			Memo:         doc.Memo,
			SourceType:   j.SourceType,
			SourceID:     j.SourceID,
			DeviceID:     doc.DeviceID,
			CashierID:    doc.CashierID,
		}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "journal_no"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return uuid.Nil, fmt.Errorf("insert journal: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		entries := make([]models.GLEntryModel, 0, len(j.Entries))
		for _, e := range j.Entries {
			entries = append(entries, models.GLEntryModel{
				ID:        uuid.New(),
				JournalID: row.ID,
				AccountID: e.AccountID,
				DebitUSD:  e.Debit.USD(),
				DebitLBP:  e.Debit.LBP(),
				CreditUSD: e.Credit.USD(),
				CreditLBP: e.Credit.LBP(),
				Memo:      e.Memo,
			})
		}
		if err := db.Create(&entries).Error; err != nil {
			return uuid.Nil, fmt.Errorf("insert journal entries: %w", err)
		}
		return row.ID, nil
	}
	return uuid.Nil, fmt.Errorf("insert journal: could not allocate a free journal number for %s", doc.JournalNo)
}

func (r *GormDocumentRepository) EmitEvent(ctx context.Context, companyID uuid.UUID, ev processor.EmittedEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	row := models.EventModel{
		ID:         uuid.New(),
		CompanyID:  companyID,
		EventType:  ev.EventType,
		SourceType: ev.SourceType,
		SourceID:   ev.SourceID,
		Payload:    payload,
	}
	err = dbFrom(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	return nil
}
