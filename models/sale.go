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
	"gorm.io/gorm"
)

type Sale struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	WarehouseId   int             `gorm:"index;not null" json:"warehouse_id"`
	CustomerId    int             `gorm:"index;default:null" json:"customer_id"`
	SaleNumber    string          `gorm:"size:50;not null" json:"sale_number"`
	Status        DocumentStatus  `gorm:"type:enum('Active','Cancelled');not null;default:'Active'" json:"status"`
	PaymentStatus PaymentStatus   `gorm:"type:enum('Unpaid','Partial','Paid');not null;default:'Unpaid'" json:"payment_status"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CancelReason  string          `gorm:"type:text" json:"cancel_reason"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	Details       []SaleDetail    `json:"details"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type SaleDetail struct {
	ID        int             `gorm:"primary_key" json:"id"`
	SaleId    int             `gorm:"index;not null" json:"sale_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	BatchId   int             `gorm:"index;not null" json:"batch_id"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	// CostPrice is copied from the batch at transaction time and never follows
	// later batch cost changes. Historical cost basis stays intact.
	CostPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	LineTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSaleDetail struct {
	ProductId int             `json:"product_id" binding:"required"`
	BatchId   int             `json:"batch_id" binding:"required"`
	Qty       decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"price"`
}

type NewSale struct {
	CustomerId int             `json:"customer_id"`
	Notes      string          `json:"note"`
	Reason     string          `json:"reason"`
	Details    []NewSaleDetail `json:"items" binding:"required,dive"`
}

func (input *NewSale) validate(ctx context.Context, businessId string) error {

	if len(input.Details) == 0 {
		return utils.NewValidationError("at least one line item is required")
	}
	for _, item := range input.Details {
		if !item.Qty.IsPositive() {
			return utils.NewValidationError("quantity must be positive for product %d", item.ProductId)
		}
		if item.UnitPrice.IsNegative() {
			return utils.NewValidationError("price cannot be negative for product %d", item.ProductId)
		}
	}
	if input.CustomerId > 0 {
		if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
			return errors.New("customer not found")
		}
	}
	return nil
}

// mapSaleDetailsInput locks each referenced batch, reserves stock and builds
// the detail rows with their cost snapshots. Must run inside tx.
func mapSaleDetailsInput(tx *gorm.DB, businessId string, items []NewSaleDetail) ([]SaleDetail, decimal.Decimal, error) {

	var details []SaleDetail
	var total decimal.Decimal

	for _, item := range items {
		batch, err := fetchBatchForUpdate(tx, businessId, item.BatchId)
		if err != nil {
			return nil, decimal.Zero, utils.NewValidationError("batch %d not found", item.BatchId)
		}
		if batch.ProductId != item.ProductId {
			return nil, decimal.Zero, utils.NewValidationError("batch %s does not belong to product %d", batch.BatchCode, item.ProductId)
		}

		if err := reserveBatchQty(tx, batch, item.Qty); err != nil {
			return nil, decimal.Zero, err
		}

		lineTotal := item.Qty.Mul(item.UnitPrice)
		details = append(details, SaleDetail{
			ProductId: item.ProductId,
			BatchId:   item.BatchId,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
			CostPrice: batch.CostPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return details, total, nil
}

func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {

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

	unlock, err := utils.BusinessLock(ctx, businessId, "sale.go", "CreateSale")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	details, total, err := mapSaleDetailsInput(tx.WithContext(ctx), businessId, input.Details)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	saleNumber, err := nextTransactionNumber(tx.WithContext(ctx), businessId, "sale", "SO-")
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	sale := Sale{
		BusinessId:    businessId,
		WarehouseId:   business.PrimaryWarehouseId,
		CustomerId:    input.CustomerId,
		SaleNumber:    saleNumber,
		Status:        DocumentStatusActive,
		PaymentStatus: PaymentStatusUnpaid,
		Total:         total,
		AmountPaid:    decimal.Zero,
		Notes:         input.Notes,
		Details:       details,
	}

	if err := tx.WithContext(ctx).Create(&sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

// UpdateSale replaces a sale's line items, reconciling inventory by the net
// per-batch change. A batch already on the document keeps its committed
// quantity, so the most a line can grow to is current_remaining + old_qty.
func UpdateSale(ctx context.Context, id int, input *NewSale) (*Sale, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	unlock, err := utils.BusinessLock(ctx, businessId, "sale.go", "UpdateSale")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	sale, err := utils.FetchModelForUpdate[Sale](tx.WithContext(ctx), businessId, id, "Details")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if sale.Status == DocumentStatusCancelled {
		tx.Rollback()
		return nil, &utils.EditForbiddenError{Reason: "cancelled"}
	}
	if sale.AmountPaid.IsPositive() {
		tx.Rollback()
		return nil, &utils.EditForbiddenError{Reason: "has payments"}
	}

	before := *sale

	newQuantities := make(map[int]decimal.Decimal, len(input.Details))
	for _, item := range input.Details {
		newQuantities[item.BatchId] = newQuantities[item.BatchId].Add(item.Qty)
	}
	oldQuantities := sumSaleLineQuantities(sale.Details)

	for _, d := range computeBatchDeltas(oldQuantities, newQuantities) {
		batch, err := fetchBatchForUpdate(tx.WithContext(ctx), businessId, d.BatchId)
		if err != nil {
			tx.Rollback()
			return nil, utils.NewValidationError("batch %d not found", d.BatchId)
		}
		delta := d.Delta()
		if delta.IsPositive() {
			if delta.Cmp(batch.QtyRemaining) > 0 {
				tx.Rollback()
				maxAllowed := batch.QtyRemaining.Add(d.OldQty)
				return nil, utils.NewValidationError("quantity %s for batch %s exceeds maximum allowed %s",
					d.NewQty, batch.BatchCode, maxAllowed)
			}
			if err := reserveBatchQty(tx.WithContext(ctx), batch, delta); err != nil {
				tx.Rollback()
				return nil, err
			}
		} else {
			if err := releaseBatchQty(tx.WithContext(ctx), batch, delta.Neg()); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	// Rebuild the detail rows with fresh cost snapshots for batches the
	// document did not hold before; product/batch pairing is re-validated.
	var details []SaleDetail
	var total decimal.Decimal
	for _, item := range input.Details {
		var batch InventoryBatch
		if err := tx.WithContext(ctx).Where("business_id = ?", businessId).First(&batch, item.BatchId).Error; err != nil {
			tx.Rollback()
			return nil, utils.NewValidationError("batch %d not found", item.BatchId)
		}
		if batch.ProductId != item.ProductId {
			tx.Rollback()
			return nil, utils.NewValidationError("batch %s does not belong to product %d", batch.BatchCode, item.ProductId)
		}
		lineTotal := item.Qty.Mul(item.UnitPrice)
		details = append(details, SaleDetail{
			SaleId:    sale.ID,
			ProductId: item.ProductId,
			BatchId:   item.BatchId,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
			CostPrice: batch.CostPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	if err := tx.WithContext(ctx).Where("sale_id = ?", sale.ID).Delete(&SaleDetail{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Create(&details).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	sale.CustomerId = input.CustomerId
	sale.Notes = input.Notes
	sale.Total = total
	if err := tx.WithContext(ctx).Model(sale).Updates(map[string]interface{}{
		"customer_id": sale.CustomerId,
		"notes":       sale.Notes,
		"total":       sale.Total,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	sale.Details = details

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "updated"
	}
	if err := recordRevision(tx.WithContext(ctx), DocumentTypeSale, sale.ID, reason, &before, sale); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return sale, nil
}

// CancelSale releases every line item's quantity back to its batch and marks
// the sale cancelled. Rows are kept for audit.
func CancelSale(ctx context.Context, id int, reason string) (*Sale, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by user"
	}

	unlock, err := utils.BusinessLock(ctx, businessId, "sale.go", "CancelSale")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	sale, err := utils.FetchModelForUpdate[Sale](tx.WithContext(ctx), businessId, id, "Details")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if sale.Status == DocumentStatusCancelled {
		tx.Rollback()
		return nil, &utils.AlreadyCancelledError{DocumentId: sale.ID}
	}

	before := *sale

	// Locks are taken in ascending batch id order, same as edits.
	quantities := sumSaleLineQuantities(sale.Details)
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
		if err := releaseBatchQty(tx.WithContext(ctx), batch, quantities[batchId]); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now()
	sale.Status = DocumentStatusCancelled
	sale.CancelReason = reason
	sale.CancelledAt = &now
	if err := tx.WithContext(ctx).Model(sale).Updates(map[string]interface{}{
		"status":        sale.Status,
		"cancel_reason": sale.CancelReason,
		"cancelled_at":  sale.CancelledAt,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := recordRevision(tx.WithContext(ctx), DocumentTypeSale, sale.ID, reason, &before, sale); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return sale, nil
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Sale](ctx, businessId, id, "Details")
}

func GetSales(ctx context.Context, customerId *int, status *DocumentStatus) ([]*Sale, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Sale
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId).Preload("Details")
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
