package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
)

// Payment is one settlement event against one document. A customer payment
// of 150 that covers two sales becomes two Payment rows. Voiding a payment
// reverses its effect on the document but keeps the row for the audit trail.
type Payment struct {
	ID           int              `gorm:"primary_key" json:"id"`
	BusinessId   string           `gorm:"index;not null" json:"business_id"`
	Direction    PaymentDirection `gorm:"type:enum('In','Out');not null" json:"direction"`
	DocumentType DocumentType     `gorm:"type:enum('Sale','StockIn');not null" json:"document_type"`
	DocumentId   int              `gorm:"index;not null" json:"document_id"`
	PartnerId    int              `gorm:"index;not null" json:"partner_id"`
	Amount       decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method       PaymentMethod    `gorm:"type:enum('Cash','Bank','Momo','Zalopay','Other');not null;default:'Cash'" json:"method"`
	Notes        string           `gorm:"type:text" json:"notes"`
	State        PaymentState     `gorm:"type:enum('Active','Voided');not null;default:'Active'" json:"state"`
	VoidReason   string           `gorm:"type:text" json:"void_reason"`
	VoidedAt     *time.Time       `json:"voided_at"`
	CreatedAt    time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// VoidPayment reverses a payment's effect on its source document. The amount
// flows back out of the document's amount_paid and the payment status is
// re-derived. Voiding an already-voided payment is rejected so the reversal
// can never be applied twice.
func VoidPayment(ctx context.Context, id int, reason string) (*Payment, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, utils.NewValidationError("void reason is required")
	}

	db := config.GetDB()
	tx := db.Begin()

	payment, err := utils.FetchModelForUpdate[Payment](tx.WithContext(ctx), businessId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if payment.State == PaymentStateVoided {
		tx.Rollback()
		return nil, &utils.AlreadyVoidedError{PaymentId: payment.ID}
	}

	switch payment.DocumentType {
	case DocumentTypeSale:
		sale, err := utils.FetchModelForUpdate[Sale](tx.WithContext(ctx), businessId, payment.DocumentId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		newPaid := sale.AmountPaid.Sub(payment.Amount)
		if newPaid.IsNegative() {
			tx.Rollback()
			return nil, utils.NewInvariantViolation("voiding payment %d would drive sale %s amount paid negative",
				payment.ID, sale.SaleNumber)
		}
		if err := tx.WithContext(ctx).Model(sale).Updates(map[string]interface{}{
			"amount_paid":    newPaid,
			"payment_status": derivePaymentStatus(newPaid, sale.Total),
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	case DocumentTypeStockIn:
		stockIn, err := utils.FetchModelForUpdate[StockIn](tx.WithContext(ctx), businessId, payment.DocumentId)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		newPaid := stockIn.AmountPaid.Sub(payment.Amount)
		if newPaid.IsNegative() {
			tx.Rollback()
			return nil, utils.NewInvariantViolation("voiding payment %d would drive stock-in %s amount paid negative",
				payment.ID, stockIn.StockInNumber)
		}
		if err := tx.WithContext(ctx).Model(stockIn).Updates(map[string]interface{}{
			"amount_paid":    newPaid,
			"payment_status": derivePaymentStatus(newPaid, stockIn.Total),
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	default:
		tx.Rollback()
		return nil, utils.NewInvariantViolation("payment %d references unknown document type %s",
			payment.ID, payment.DocumentType)
	}

	now := time.Now()
	payment.State = PaymentStateVoided
	payment.VoidReason = reason
	payment.VoidedAt = &now
	if err := tx.WithContext(ctx).Model(payment).Updates(map[string]interface{}{
		"state":       payment.State,
		"void_reason": payment.VoidReason,
		"voided_at":   payment.VoidedAt,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Payment](ctx, businessId, id)
}

// GetPayments lists payments, optionally filtered to one document.
func GetPayments(ctx context.Context, documentType *DocumentType, documentId *int) ([]*Payment, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*Payment
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if documentType != nil && *documentType != "" {
		dbCtx = dbCtx.Where("document_type = ?", *documentType)
	}
	if documentId != nil && *documentId > 0 {
		dbCtx = dbCtx.Where("document_id = ?", *documentId)
	}
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
