package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahtrading/posledger/internal/application/processor"
	"github.com/ahtrading/posledger/internal/domain/inventory"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/infrastructure/persistence/models"
)

// GormInventoryRepository reads and writes batch-level stock.
type GormInventoryRepository struct {
	db *gorm.DB
}

func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

var _ processor.InventoryStore = (*GormInventoryRepository)(nil)

func (r *GormInventoryRepository) ItemPolicies(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]processor.ItemPolicy, error) {
	if len(itemIDs) == 0 {
		return map[uuid.UUID]processor.ItemPolicy{}, nil
	}
	var rows []models.ItemModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND id IN ?", companyID, itemIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load item policies: %w", err)
	}
	out := make(map[uuid.UUID]processor.ItemPolicy, len(rows))
	for _, row := range rows {
		out[row.ID] = processor.ItemPolicy{
			TrackBatches:            row.TrackBatches,
			TrackExpiry:             row.TrackExpiry,
			MinShelfLifeDaysForSale: row.MinShelfLifeDaysForSale,
			AllowNegativeStock:      row.AllowNegativeStock,
			TaxCodeID:               row.TaxCodeID,
		}
	}
	return out, nil
}

func (r *GormInventoryRepository) WarehousePolicy(ctx context.Context, companyID, warehouseID uuid.UUID) (processor.WarehousePolicy, error) {
	var row models.WarehouseModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND id = ?", companyID, warehouseID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return processor.WarehousePolicy{}, nil
	}
	if err != nil {
		return processor.WarehousePolicy{}, fmt.Errorf("load warehouse policy: %w", err)
	}
	return processor.WarehousePolicy{
		MinShelfLifeDaysDefault: row.MinShelfLifeDaysForSaleDefault,
		AllowNegativeStock:      row.AllowNegativeStock,
	}, nil
}

// batchStockRow is the scan target for per-batch on-hand aggregation.
type batchStockRow struct {
	BatchID    *uuid.UUID
	BatchNo    string
	ExpiryDate *time.Time
	OnHand     decimal.Decimal
}

// batchStocksSQL keeps the unbatched pool (NULL batch_id) but excludes
// quarantined or blocked lots from allocation.
const batchStocksSQL = `
SELECT sm.batch_id, COALESCE(b.batch_no, '') AS batch_no, b.expiry_date,
       SUM(sm.qty_in - sm.qty_out) AS on_hand
FROM stock_moves sm
LEFT JOIN batches b ON b.id = sm.batch_id
WHERE sm.company_id = ? AND sm.item_id = ? AND sm.warehouse_id = ?
  AND (sm.batch_id IS NULL OR b.status = 'available')
GROUP BY sm.batch_id, b.batch_no, b.expiry_date`

func (r *GormInventoryRepository) BatchStocks(ctx context.Context, companyID, itemID, warehouseID uuid.UUID) ([]inventory.BatchStock, error) {
	var rows []batchStockRow
	err := dbFrom(ctx, r.db).
		Raw(batchStocksSQL, companyID, itemID, warehouseID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load batch stocks: %w", err)
	}
	out := make([]inventory.BatchStock, 0, len(rows))
	for _, row := range rows {
		out = append(out, inventory.BatchStock{
			BatchID:    row.BatchID,
			BatchNo:    row.BatchNo,
			ExpiryDate: row.ExpiryDate,
			OnHand:     row.OnHand,
		})
	}
	return out, nil
}

// FindBatch resolves a manual pick. When the pick names both a batch number
// and an expiry they must agree on the same lot; a mismatch is not found.
// Only available lots are eligible.
func (r *GormInventoryRepository) FindBatch(ctx context.Context, companyID, itemID uuid.UUID, batchNo string, expiry *time.Time) (*inventory.BatchStock, error) {
	q := dbFrom(ctx, r.db).
		Where("company_id = ? AND item_id = ? AND status = ?", companyID, itemID, "available")
	switch {
	case batchNo != "" && expiry != nil:
		q = q.Where("batch_no = ? AND expiry_date = ?", batchNo, expiry.Format("2006-01-02"))
	case batchNo != "":
		q = q.Where("batch_no = ?", batchNo)
	case expiry != nil:
		q = q.Where("expiry_date = ?", expiry.Format("2006-01-02"))
	default:
		return nil, nil
	}
	var row models.BatchModel
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find batch: %w", err)
	}
	return &inventory.BatchStock{
		BatchID:    &row.ID,
		BatchNo:    row.BatchNo,
		ExpiryDate: row.ExpiryDate,
	}, nil
}

func (r *GormInventoryRepository) BatchOnHand(ctx context.Context, companyID, itemID, warehouseID, batchID uuid.UUID) (decimal.Decimal, error) {
	var onHand decimal.Decimal
	err := dbFrom(ctx, r.db).
		Raw(`SELECT COALESCE(SUM(qty_in - qty_out), 0)
		     FROM stock_moves
		     WHERE company_id = ? AND item_id = ? AND warehouse_id = ? AND batch_id = ?`,
			companyID, itemID, warehouseID, batchID).
		Scan(&onHand).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("batch on hand: %w", err)
	}
	return onHand, nil
}

func (r *GormInventoryRepository) GetOrCreateBatch(ctx context.Context, companyID, itemID uuid.UUID, batchNo string, expiry *time.Time) (*uuid.UUID, error) {
	if batchNo == "" {
		if expiry == nil {
			return nil, nil
		}
		// Expiry-only payloads get a synthetic lot number so the unique
		// key stays meaningful.
		batchNo = "EXP-" + expiry.Format("2006-01-02")
	}

	db := dbFrom(ctx, r.db)
	row := models.BatchModel{
		ID:         uuid.New(),
		CompanyID:  companyID,
		ItemID:     itemID,
		BatchNo:    batchNo,
		ExpiryDate: expiry,
		Status:     "available",
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "item_id"}, {Name: "batch_no"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	var existing models.BatchModel
	err = db.Where("company_id = ? AND item_id = ? AND batch_no = ?", companyID, itemID, batchNo).
		First(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("load batch: %w", err)
	}
	if existing.ExpiryDate == nil && expiry != nil {
		err = db.Model(&models.BatchModel{}).Where("id = ?", existing.ID).
			Updates(map[string]any{"expiry_date": expiry, "updated_at": gorm.Expr("now()")}).Error
		if err != nil {
			return nil, fmt.Errorf("backfill batch expiry: %w", err)
		}
	}
	return &existing.ID, nil
}

// TouchBatchReceived fills the received metadata only where it is still
// NULL, so the first receipt wins and replays change nothing.
func (r *GormInventoryRepository) TouchBatchReceived(ctx context.Context, companyID uuid.UUID, batchID uuid.UUID, sourceType string, sourceID uuid.UUID, supplierID *uuid.UUID, receivedAt time.Time) error {
	err := dbFrom(ctx, r.db).Exec(`
		UPDATE batches
		SET received_at = COALESCE(received_at, ?),
		    received_source_type = COALESCE(NULLIF(received_source_type, ''), ?),
		    received_source_id = COALESCE(received_source_id, ?),
		    supplier_id = COALESCE(supplier_id, ?),
		    updated_at = now()
		WHERE company_id = ? AND id = ?`,
		receivedAt, sourceType, sourceID, supplierID, companyID, batchID).Error
	if err != nil {
		return fmt.Errorf("touch batch received metadata: %w", err)
	}
	return nil
}

func (r *GormInventoryRepository) AverageCost(ctx context.Context, companyID, itemID, warehouseID uuid.UUID) (money.DualAmount, error) {
	var row models.ItemWarehouseCostModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND item_id = ? AND warehouse_id = ?", companyID, itemID, warehouseID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return money.Zero(), nil
	}
	if err != nil {
		return money.Zero(), fmt.Errorf("load average cost: %w", err)
	}
	return money.NewDualAmount(row.AvgCostUSD, row.AvgCostLBP), nil
}

func (r *GormInventoryRepository) InsertStockMove(ctx context.Context, move processor.StockMove) error {
	var lineID *uuid.UUID
	if move.SourceLineID != uuid.Nil {
		id := move.SourceLineID
		lineID = &id
	}
	row := models.StockMoveModel{
		ID:             uuid.New(),
		CompanyID:      move.CompanyID,
		ItemID:         move.ItemID,
		WarehouseID:    move.WarehouseID,
		BatchID:        move.BatchID,
		QtyIn:          move.QtyIn,
		QtyOut:         move.QtyOut,
		UnitCostUSD:    move.UnitCost.USD(),
		UnitCostLBP:    move.UnitCost.LBP(),
		MoveDate:       move.MoveDate,
		SourceType:     move.SourceType,
		SourceID:       move.SourceID,
		SourceLineType: move.SourceLineType,
		SourceLineID:   lineID,
		DeviceID:       move.DeviceID,
		CashierID:      move.CashierID,
		Reason:         move.Reason,
	}
	if err := dbFrom(ctx, r.db).Create(&row).Error; err != nil {
		return fmt.Errorf("insert stock move: %w", err)
	}
	return nil
}

func (r *GormInventoryRepository) CostsBySourceInvoice(ctx context.Context, companyID, invoiceID uuid.UUID) (map[uuid.UUID]money.DualAmount, error) {
	var rows []models.StockMoveModel
	err := dbFrom(ctx, r.db).
		Select("item_id", "unit_cost_usd", "unit_cost_lbp").
		Where("company_id = ? AND source_type = ? AND source_id = ? AND qty_out > 0",
			companyID, "sales_invoice", invoiceID).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load invoice costs: %w", err)
	}
	out := make(map[uuid.UUID]money.DualAmount, len(rows))
	for _, row := range rows {
		if _, ok := out[row.ItemID]; ok {
			continue
		}
		out[row.ItemID] = money.NewDualAmount(row.UnitCostUSD, row.UnitCostLBP)
	}
	return out, nil
}
