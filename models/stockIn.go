package models

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
)

type StockIn struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	WarehouseId   int             `gorm:"index;not null" json:"warehouse_id"`
	SupplierId    int             `gorm:"index;default:null" json:"supplier_id"`
	StockInNumber string          `gorm:"size:50;not null" json:"stock_in_number"`
	Status        DocumentStatus  `gorm:"type:enum('Active','Cancelled');not null;default:'Active'" json:"status"`
	PaymentStatus PaymentStatus   `gorm:"type:enum('Unpaid','Partial','Paid');not null;default:'Unpaid'" json:"payment_status"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CancelReason  string          `gorm:"type:text" json:"cancel_reason"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	Details       []StockInDetail `json:"details"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type StockInDetail struct {
	ID        int             `gorm:"primary_key" json:"id"`
	StockInId int             `gorm:"index;not null" json:"stock_in_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	BatchId   int             `gorm:"index;not null" json:"batch_id"`
	BatchCode string          `gorm:"size:100;not null" json:"batch_code"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockInDetail struct {
	ProductId       int             `json:"product_id" binding:"required"`
	BatchCode       string          `json:"batch_code" binding:"required"`
	Qty             decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost        decimal.Decimal `json:"price"`
	ManufactureDate *time.Time      `json:"manufacture_date"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
}

type NewStockIn struct {
	SupplierId int                `json:"supplier_id"`
	Notes      string             `json:"note"`
	Reason     string             `json:"reason"`
	Details    []NewStockInDetail `json:"items" binding:"required,dive"`
}

func (input *NewStockIn) validate(ctx context.Context, businessId string) error {

	if len(input.Details) == 0 {
		return utils.NewValidationError("at least one line item is required")
	}
	seen := make(map[string]bool, len(input.Details))
	for _, item := range input.Details {
		code := strings.TrimSpace(item.BatchCode)
		if code == "" {
			return utils.NewValidationError("batch code is required for product %d", item.ProductId)
		}
		if seen[code] {
			return utils.NewValidationError("duplicate batch code %s", code)
		}
		seen[code] = true
		if !item.Qty.IsPositive() {
			return utils.NewValidationError("quantity must be positive for batch %s", code)
		}
		if item.UnitCost.IsNegative() {
			return utils.NewValidationError("cost price cannot be negative for batch %s", code)
		}
	}
	if input.SupplierId > 0 {
		if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
			return errors.New("supplier not found")
		}
	}
	return nil
}

func CreateStockIn(ctx context.Context, input *NewStockIn) (*StockIn, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	business, err := GetBusinessById(ctx, businessId)
	if err != nil {
		return nil, err
	}

	unlock, err := utils.BusinessLock(ctx, businessId, "stockIn.go", "CreateStockIn")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	stockInNumber, err := nextTransactionNumber(tx.WithContext(ctx), businessId, "stock_in", "SI-")
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	stockIn := StockIn{
		BusinessId:    businessId,
		WarehouseId:   business.PrimaryWarehouseId,
		SupplierId:    input.SupplierId,
		StockInNumber: stockInNumber,
		Status:        DocumentStatusActive,
		PaymentStatus: PaymentStatusUnpaid,
		AmountPaid:    decimal.Zero,
		Notes:         input.Notes,
	}
	if err := tx.WithContext(ctx).Create(&stockIn).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	var details []StockInDetail
	var total decimal.Decimal
	for _, item := range input.Details {
		code := strings.TrimSpace(item.BatchCode)

		var count int64
		if err := tx.WithContext(ctx).Model(&InventoryBatch{}).
			Where("business_id = ? AND product_id = ? AND batch_code = ?", businessId, item.ProductId, code).
			Count(&count).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if count > 0 {
			tx.Rollback()
			return nil, utils.NewValidationError("batch code %s already exists for product %d", code, item.ProductId)
		}

		batch := InventoryBatch{
			BusinessId:      businessId,
			WarehouseId:     business.PrimaryWarehouseId,
			ProductId:       item.ProductId,
			BatchCode:       code,
			QtyReceived:     item.Qty,
			QtyRemaining:    item.Qty,
			CostPrice:       item.UnitCost,
			ManufactureDate: item.ManufactureDate,
			ExpiryDate:      item.ExpiryDate,
			StockInId:       stockIn.ID,
		}
		if err := tx.WithContext(ctx).Create(&batch).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		lineTotal := item.Qty.Mul(item.UnitCost)
		details = append(details, StockInDetail{
			StockInId: stockIn.ID,
			ProductId: item.ProductId,
			BatchId:   batch.ID,
			BatchCode: code,
			Qty:       item.Qty,
			UnitCost:  item.UnitCost,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	if err := tx.WithContext(ctx).Create(&details).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Model(&stockIn).Update("total", total).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	stockIn.Total = total
	stockIn.Details = details

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &stockIn, nil
}

// UpdateStockIn replaces a stock-in's line items. Lines are matched to the
// document's batches by batch code: an existing code adjusts its batch by the
// net quantity change, a new code creates a batch, a removed code zeroes its
// batch out. Any adjustment that would cut into quantity already sold fails.
func UpdateStockIn(ctx context.Context, id int, input *NewStockIn) (*StockIn, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	unlock, err := utils.BusinessLock(ctx, businessId, "stockIn.go", "UpdateStockIn")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	stockIn, err := utils.FetchModelForUpdate[StockIn](tx.WithContext(ctx), businessId, id, "Details")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if stockIn.Status == DocumentStatusCancelled {
		tx.Rollback()
		return nil, &utils.EditForbiddenError{Reason: "cancelled"}
	}
	if stockIn.AmountPaid.IsPositive() {
		tx.Rollback()
		return nil, &utils.EditForbiddenError{Reason: "has payments"}
	}

	before := *stockIn

	oldByCode := make(map[string]StockInDetail, len(stockIn.Details))
	for _, d := range stockIn.Details {
		oldByCode[d.BatchCode] = d
	}
	newCodes := make(map[string]bool, len(input.Details))

	var details []StockInDetail
	var total decimal.Decimal
	for _, item := range input.Details {
		code := strings.TrimSpace(item.BatchCode)
		newCodes[code] = true

		var batch *InventoryBatch
		if old, ok := oldByCode[code]; ok {
			batch, err = fetchBatchForUpdate(tx.WithContext(ctx), businessId, old.BatchId)
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			if batch.ProductId != item.ProductId {
				tx.Rollback()
				return nil, utils.NewValidationError("batch %s does not belong to product %d", code, item.ProductId)
			}

			delta := item.Qty.Sub(old.Qty)
			if delta.IsPositive() {
				if err := receiveBatchQty(tx.WithContext(ctx), batch, delta); err != nil {
					tx.Rollback()
					return nil, err
				}
			} else if delta.IsNegative() {
				if err := unreceiveBatchQty(tx.WithContext(ctx), batch, delta.Neg()); err != nil {
					tx.Rollback()
					return nil, err
				}
			}

			if err := tx.WithContext(ctx).Model(batch).Updates(map[string]interface{}{
				"cost_price":       item.UnitCost,
				"manufacture_date": item.ManufactureDate,
				"expiry_date":      item.ExpiryDate,
			}).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		} else {
			var count int64
			if err := tx.WithContext(ctx).Model(&InventoryBatch{}).
				Where("business_id = ? AND product_id = ? AND batch_code = ?", businessId, item.ProductId, code).
				Count(&count).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
			if count > 0 {
				tx.Rollback()
				return nil, utils.NewValidationError("batch code %s already exists for product %d", code, item.ProductId)
			}

			batch = &InventoryBatch{
				BusinessId:      businessId,
				WarehouseId:     stockIn.WarehouseId,
				ProductId:       item.ProductId,
				BatchCode:       code,
				QtyReceived:     item.Qty,
				QtyRemaining:    item.Qty,
				CostPrice:       item.UnitCost,
				ManufactureDate: item.ManufactureDate,
				ExpiryDate:      item.ExpiryDate,
				StockInId:       stockIn.ID,
			}
			if err := tx.WithContext(ctx).Create(batch).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		lineTotal := item.Qty.Mul(item.UnitCost)
		details = append(details, StockInDetail{
			StockInId: stockIn.ID,
			ProductId: item.ProductId,
			BatchId:   batch.ID,
			BatchCode: code,
			Qty:       item.Qty,
			UnitCost:  item.UnitCost,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	// Lines removed entirely reverse their full received quantity.
	for code, old := range oldByCode {
		if newCodes[code] {
			continue
		}
		batch, err := fetchBatchForUpdate(tx.WithContext(ctx), businessId, old.BatchId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := unreceiveBatchQty(tx.WithContext(ctx), batch, old.Qty); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Where("stock_in_id = ?", stockIn.ID).Delete(&StockInDetail{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(&details).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	stockIn.SupplierId = input.SupplierId
	stockIn.Notes = input.Notes
	stockIn.Total = total
	if err := tx.WithContext(ctx).Model(stockIn).Updates(map[string]interface{}{
		"supplier_id": stockIn.SupplierId,
		"notes":       stockIn.Notes,
		"total":       stockIn.Total,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	stockIn.Details = details

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "updated"
	}
	if err := recordRevision(tx.WithContext(ctx), DocumentTypeStockIn, stockIn.ID, reason, &before, stockIn); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return stockIn, nil
}

// CancelStockIn reverses the receipt: every batch this document created is
// zeroed back out. Forbidden once the document has payments or once any of
// its batches has been sold from.
func CancelStockIn(ctx context.Context, id int, reason string) (*StockIn, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by user"
	}

	unlock, err := utils.BusinessLock(ctx, businessId, "stockIn.go", "CancelStockIn")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	stockIn, err := utils.FetchModelForUpdate[StockIn](tx.WithContext(ctx), businessId, id, "Details")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if stockIn.Status == DocumentStatusCancelled {
		tx.Rollback()
		return nil, &utils.AlreadyCancelledError{DocumentId: stockIn.ID}
	}
	if stockIn.AmountPaid.IsPositive() {
		tx.Rollback()
		return nil, &utils.CancelForbiddenError{Reason: "has payments"}
	}

	before := *stockIn

	// Locks are taken in ascending batch id order, same as edits.
	quantities := sumStockInLineQuantities(stockIn.Details)
	batchIds := make([]int, 0, len(quantities))
	for batchId := range quantities {
		batchIds = append(batchIds, batchId)
	}
	sort.Ints(batchIds)
	for _, batchId := range batchIds {
		batch, err := fetchBatchForUpdate(tx.WithContext(ctx), businessId, batchId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		qty := quantities[batchId]
		if qty.Cmp(batch.QtyRemaining) > 0 {
			tx.Rollback()
			return nil, &utils.CancelForbiddenError{Reason: "stock already consumed"}
		}
		if err := unreceiveBatchQty(tx.WithContext(ctx), batch, qty); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now()
	stockIn.Status = DocumentStatusCancelled
	stockIn.CancelReason = reason
	stockIn.CancelledAt = &now
	if err := tx.WithContext(ctx).Model(stockIn).Updates(map[string]interface{}{
		"status":        stockIn.Status,
		"cancel_reason": stockIn.CancelReason,
		"cancelled_at":  stockIn.CancelledAt,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recordRevision(tx.WithContext(ctx), DocumentTypeStockIn, stockIn.ID, reason, &before, stockIn); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return stockIn, nil
}

func GetStockIn(ctx context.Context, id int) (*StockIn, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockIn](ctx, businessId, id, "Details")
}

func GetStockIns(ctx context.Context, supplierId *int, status *DocumentStatus) ([]*StockIn, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*StockIn
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId).Preload("Details")
	if supplierId != nil && *supplierId > 0 {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
