package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryBatch is one received lot of one product, tracked separately for
// cost basis and expiry. QtyRemaining changes only through the document
// operations in this package; batches are never hard-deleted.
type InventoryBatch struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	WarehouseId     int             `gorm:"index;not null" json:"warehouse_id"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	BatchCode       string          `gorm:"size:100;not null" json:"batch_code"`
	QtyReceived     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_received"`
	QtyRemaining    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_remaining"`
	CostPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	ManufactureDate *time.Time      `json:"manufacture_date"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	StockInId       int             `gorm:"index;not null" json:"stock_in_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// fetchBatchForUpdate locks the batch row for the rest of the enclosing tx.
func fetchBatchForUpdate(tx *gorm.DB, businessId string, id int) (*InventoryBatch, error) {
	var batch InventoryBatch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&batch, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &batch, nil
}

// reserveBatchQty commits qty of the batch to a sale.
// The caller must hold the batch's row lock.
func reserveBatchQty(tx *gorm.DB, batch *InventoryBatch, qty decimal.Decimal) error {
	if qty.Cmp(batch.QtyRemaining) > 0 {
		return &utils.InsufficientStockError{
			BatchCode: batch.BatchCode,
			Requested: qty,
			Remaining: batch.QtyRemaining,
		}
	}
	batch.QtyRemaining = batch.QtyRemaining.Sub(qty)
	return tx.Model(batch).Update("qty_remaining", batch.QtyRemaining).Error
}

// releaseBatchQty returns qty to the batch (sale edit or cancel).
func releaseBatchQty(tx *gorm.DB, batch *InventoryBatch, qty decimal.Decimal) error {
	remaining := batch.QtyRemaining.Add(qty)
	if remaining.Cmp(batch.QtyReceived) > 0 {
		return utils.NewInvariantViolation("release of %s would push batch %s above its received quantity %s",
			qty, batch.BatchCode, batch.QtyReceived)
	}
	batch.QtyRemaining = remaining
	return tx.Model(batch).Update("qty_remaining", batch.QtyRemaining).Error
}

// receiveBatchQty grows the batch on a stock-in create or upward edit.
func receiveBatchQty(tx *gorm.DB, batch *InventoryBatch, qty decimal.Decimal) error {
	batch.QtyReceived = batch.QtyReceived.Add(qty)
	batch.QtyRemaining = batch.QtyRemaining.Add(qty)
	return tx.Model(batch).Updates(map[string]interface{}{
		"qty_received":  batch.QtyReceived,
		"qty_remaining": batch.QtyRemaining,
	}).Error
}

// unreceiveBatchQty shrinks the batch on a stock-in downward edit or cancel.
// Fails when the quantity being removed has already been sold.
func unreceiveBatchQty(tx *gorm.DB, batch *InventoryBatch, qty decimal.Decimal) error {
	if qty.Cmp(batch.QtyRemaining) > 0 {
		return utils.NewValidationError("cannot remove %s from batch %s: only %s remaining, rest already sold",
			qty, batch.BatchCode, batch.QtyRemaining)
	}
	batch.QtyReceived = batch.QtyReceived.Sub(qty)
	batch.QtyRemaining = batch.QtyRemaining.Sub(qty)
	return tx.Model(batch).Updates(map[string]interface{}{
		"qty_received":  batch.QtyReceived,
		"qty_remaining": batch.QtyRemaining,
	}).Error
}

func GetBatch(ctx context.Context, id int) (*InventoryBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[InventoryBatch](ctx, businessId, id)
}

func GetBatches(ctx context.Context, productId *int, inStockOnly bool) ([]*InventoryBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*InventoryBatch
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if productId != nil && *productId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", *productId)
	}
	if inStockOnly {
		dbCtx = dbCtx.Where("qty_remaining > 0")
	}
	if err := dbCtx.Order("created_at").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
