package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ahtrading/posledger/internal/application/processor"
	"github.com/ahtrading/posledger/internal/domain/ledger"
	"github.com/ahtrading/posledger/internal/domain/money"
	"github.com/ahtrading/posledger/internal/domain/shared"
	"github.com/ahtrading/posledger/internal/infrastructure/persistence/models"
)

// GormReferenceRepository reads company configuration and reference data.
type GormReferenceRepository struct {
	db *gorm.DB
}

func NewGormReferenceRepository(db *gorm.DB) *GormReferenceRepository {
	return &GormReferenceRepository{db: db}
}

var _ processor.ReferenceStore = (*GormReferenceRepository)(nil)

func (r *GormReferenceRepository) AccountDefaults(ctx context.Context, companyID uuid.UUID) (map[ledger.AccountRole]uuid.UUID, error) {
	var rows []models.CompanyAccountDefaultModel
	if err := dbFrom(ctx, r.db).Where("company_id = ?", companyID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load account defaults: %w", err)
	}
	out := make(map[ledger.AccountRole]uuid.UUID, len(rows))
	for _, row := range rows {
		out[ledger.AccountRole(strings.ToUpper(row.Role))] = row.AccountID
	}
	return out, nil
}

func (r *GormReferenceRepository) PaymentMethodAccounts(ctx context.Context, companyID uuid.UUID) (map[string]uuid.UUID, error) {
	var rows []models.PaymentMethodMappingModel
	if err := dbFrom(ctx, r.db).Where("company_id = ?", companyID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load payment method mappings: %w", err)
	}
	out := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		out[strings.ToLower(row.Method)] = row.AccountID
	}
	return out, nil
}

func (r *GormReferenceRepository) AssertPeriodOpen(ctx context.Context, companyID uuid.UUID, postingDate time.Time) error {
	var count int64
	err := dbFrom(ctx, r.db).Model(&models.AccountingPeriodLockModel{}).
		Where("company_id = ? AND ? BETWEEN start_date AND end_date", companyID, postingDate.Format("2006-01-02")).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check period lock: %w", err)
	}
	if count > 0 {
		return shared.ErrPeriodLocked
	}
	return nil
}

func (r *GormReferenceRepository) NextDocumentNo(ctx context.Context, companyID uuid.UUID, docType string) (string, error) {
	var no string
	if err := dbFrom(ctx, r.db).Raw("SELECT next_document_no(?, ?)", companyID, docType).Scan(&no).Error; err != nil {
		return "", fmt.Errorf("next document number: %w", err)
	}
	return no, nil
}

func (r *GormReferenceRepository) ValidVATRates(ctx context.Context, companyID uuid.UUID, taxCodeIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	if len(taxCodeIDs) == 0 {
		return map[uuid.UUID]decimal.Decimal{}, nil
	}
	var rows []models.TaxCodeModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND id IN ? AND code_type = ?", companyID, taxCodeIDs, "vat").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load vat codes: %w", err)
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.ID] = row.Rate
	}
	return out, nil
}

func (r *GormReferenceRepository) ItemTaxCodes(ctx context.Context, companyID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	if len(itemIDs) == 0 {
		return map[uuid.UUID]*uuid.UUID{}, nil
	}
	var rows []models.ItemModel
	err := dbFrom(ctx, r.db).
		Select("id", "tax_code_id").
		Where("company_id = ? AND id IN ?", companyID, itemIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load item tax codes: %w", err)
	}
	out := make(map[uuid.UUID]*uuid.UUID, len(rows))
	for _, row := range rows {
		out[row.ID] = row.TaxCodeID
	}
	return out, nil
}

type loyaltySetting struct {
	PointsPerUSD decimal.Decimal `json:"points_per_usd"`
	PointsPerLBP decimal.Decimal `json:"points_per_lbp"`
}

func (r *GormReferenceRepository) LoyaltyPolicy(ctx context.Context, companyID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	raw, err := r.setting(ctx, companyID, "loyalty")
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, decimal.Zero, nil
	}
	var s loyaltySetting
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse loyalty setting: %w", err)
	}
	return s.PointsPerUSD, s.PointsPerLBP, nil
}

type inventorySetting struct {
	AllowNegativeStock        *bool `json:"allow_negative_stock"`
	RequireManualLotSelection bool  `json:"require_manual_lot_selection"`
}

func (r *GormReferenceRepository) InventoryPolicy(ctx context.Context, companyID uuid.UUID) (processor.InventoryPolicy, error) {
	// Company default is permissive; the setting narrows it.
	policy := processor.InventoryPolicy{AllowNegativeStock: true}
	raw, err := r.setting(ctx, companyID, "inventory")
	if err != nil {
		return policy, err
	}
	if raw == nil {
		return policy, nil
	}
	var s inventorySetting
	if err := json.Unmarshal(raw, &s); err != nil {
		return policy, fmt.Errorf("parse inventory setting: %w", err)
	}
	if s.AllowNegativeStock != nil {
		policy.AllowNegativeStock = *s.AllowNegativeStock
	}
	policy.RequireManualLotSelection = s.RequireManualLotSelection
	return policy, nil
}

func (r *GormReferenceRepository) setting(ctx context.Context, companyID uuid.UUID, key string) ([]byte, error) {
	var row models.CompanySettingModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND key = ?", companyID, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s setting: %w", key, err)
	}
	return row.Value, nil
}

func (r *GormReferenceRepository) Customer(ctx context.Context, companyID, customerID uuid.UUID) (*processor.CustomerCredit, error) {
	var row models.CustomerModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND id = ?", companyID, customerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return &processor.CustomerCredit{
		ID:               row.ID,
		CreditLimit:      money.NewDualAmount(row.CreditLimitUSD, row.CreditLimitLBP),
		CreditBalance:    money.NewDualAmount(row.CreditBalanceUSD, row.CreditBalanceLBP),
		PaymentTermsDays: row.PaymentTermsDays,
	}, nil
}

func (r *GormReferenceRepository) AddCustomerCredit(ctx context.Context, companyID, customerID uuid.UUID, amount money.DualAmount) error {
	err := dbFrom(ctx, r.db).Model(&models.CustomerModel{}).
		Where("company_id = ? AND id = ?", companyID, customerID).
		Updates(map[string]any{
			"credit_balance_usd": gorm.Expr("credit_balance_usd + ?", amount.USD()),
			"credit_balance_lbp": gorm.Expr("credit_balance_lbp + ?", amount.LBP()),
			"updated_at":         gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("add customer credit: %w", err)
	}
	return nil
}

func (r *GormReferenceRepository) ReduceCustomerCredit(ctx context.Context, companyID, customerID uuid.UUID, amount money.DualAmount) error {
	err := dbFrom(ctx, r.db).Model(&models.CustomerModel{}).
		Where("company_id = ? AND id = ?", companyID, customerID).
		Updates(map[string]any{
			"credit_balance_usd": gorm.Expr("GREATEST(credit_balance_usd - ?, 0)", amount.USD()),
			"credit_balance_lbp": gorm.Expr("GREATEST(credit_balance_lbp - ?, 0)", amount.LBP()),
			"updated_at":         gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("reduce customer credit: %w", err)
	}
	return nil
}

func (r *GormReferenceRepository) SupplierPaymentTermsDays(ctx context.Context, companyID, supplierID uuid.UUID) (int, error) {
	var row models.SupplierModel
	err := dbFrom(ctx, r.db).
		Where("company_id = ? AND id = ?", companyID, supplierID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load supplier terms: %w", err)
	}
	return row.PaymentTermsDays, nil
}

func (r *GormReferenceRepository) DeviceBranch(ctx context.Context, deviceID uuid.UUID) (*uuid.UUID, error) {
	var row models.PosDeviceModel
	err := dbFrom(ctx, r.db).Where("id = ?", deviceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return row.BranchID, nil
}

func (r *GormReferenceRepository) ResolveOpenShift(ctx context.Context, companyID, deviceID uuid.UUID, requested *uuid.UUID) (*uuid.UUID, error) {
	db := dbFrom(ctx, r.db)

	if requested != nil {
		var count int64
		err := db.Model(&models.PosShiftModel{}).
			Where("company_id = ? AND device_id = ? AND id = ? AND closed_at IS NULL", companyID, deviceID, *requested).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("validate shift: %w", err)
		}
		if count > 0 {
			return requested, nil
		}
		// Requested shift is closed or foreign; fall through to the
		// device's current open shift.
	}

	var row models.PosShiftModel
	err := db.Where("company_id = ? AND device_id = ? AND closed_at IS NULL", companyID, deviceID).
		Order("opened_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve open shift: %w", err)
	}
	return &row.ID, nil
}
