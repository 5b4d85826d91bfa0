package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchModel is one item lot. Expiry is nullable for batch-only tracking.
type BatchModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_batches_item_no,priority:1"`
	ItemID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_batches_item_no,priority:2"`
	BatchNo    string     `gorm:"type:varchar(80);not null;uniqueIndex:uq_batches_item_no,priority:3"`
	ExpiryDate *time.Time `gorm:"type:date"`
	Status     string     `gorm:"type:varchar(20);not null;default:available"`

	// Received metadata, filled once on first sighting and never overwritten.
	ReceivedAt         *time.Time
	ReceivedSourceType string     `gorm:"type:varchar(40)"`
	ReceivedSourceID   *uuid.UUID `gorm:"type:uuid"`
	SupplierID         *uuid.UUID `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "batches"
}

// StockMoveModel is the append-only inventory movement ledger.
type StockMoveModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_moves_item_wh,priority:1"`
	ItemID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_moves_item_wh,priority:2"`
	WarehouseID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_moves_item_wh,priority:3"`
	BatchID        *uuid.UUID      `gorm:"type:uuid;index"`
	QtyIn          decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	QtyOut         decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	UnitCostUSD    decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	UnitCostLBP    decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	MoveDate       time.Time       `gorm:"type:date;not null"`
	SourceType     string          `gorm:"type:varchar(40);not null;index:idx_stock_moves_source,priority:1"`
	SourceID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_stock_moves_source,priority:2"`
	SourceLineType string          `gorm:"type:varchar(40)"`
	SourceLineID   *uuid.UUID      `gorm:"type:uuid"`
	DeviceID       *uuid.UUID      `gorm:"type:uuid"`
	CashierID      *uuid.UUID      `gorm:"type:uuid"`
	Reason         string          `gorm:"type:varchar(80)"`
	CreatedAt      time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (StockMoveModel) TableName() string {
	return "stock_moves"
}

// ItemWarehouseCostModel carries the moving-average cost used as the
// fallback when a payload omits unit costs.
type ItemWarehouseCostModel struct {
	CompanyID   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ItemID      uuid.UUID       `gorm:"type:uuid;primaryKey"`
	WarehouseID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AvgCostUSD  decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0"`
	AvgCostLBP  decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	UpdatedAt   time.Time       `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (ItemWarehouseCostModel) TableName() string {
	return "item_warehouse_costs"
}

// ItemModel carries the per-item policy slice this worker reads.
type ItemModel struct {
	ID                      uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CompanyID               uuid.UUID  `gorm:"type:uuid;not null;index"`
	TrackBatches            bool       `gorm:"not null;default:false"`
	TrackExpiry             bool       `gorm:"not null;default:false"`
	MinShelfLifeDaysForSale int        `gorm:"not null;default:0"`
	AllowNegativeStock      *bool      `gorm:"type:boolean"`
	TaxCodeID               *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (ItemModel) TableName() string {
	return "items"
}

// WarehouseModel carries the per-warehouse policy slice this worker reads.
type WarehouseModel struct {
	ID                             uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID                      uuid.UUID `gorm:"type:uuid;not null;index"`
	MinShelfLifeDaysForSaleDefault int       `gorm:"not null;default:0"`
	AllowNegativeStock             *bool     `gorm:"type:boolean"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}
