package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// openDocument is the slice of a document the allocator needs: identity and
// how much of it is still owed.
type openDocument struct {
	Id         int
	Total      decimal.Decimal
	AmountPaid decimal.Decimal
}

func (d openDocument) outstanding() decimal.Decimal {
	return d.Total.Sub(d.AmountPaid)
}

// allocationStep is one document's share of an incoming amount.
type allocationStep struct {
	DocumentId    int
	Amount        decimal.Decimal
	NewAmountPaid decimal.Decimal
	NewStatus     PaymentStatus
}

// AllocationResult summarizes what an allocation did. Remaining is the part
// of the payment no open document could absorb; it is reported back to the
// caller rather than stored.
type AllocationResult struct {
	TotalAllocated decimal.Decimal `json:"total_allocated"`
	InvoicesPaid   int             `json:"invoices_paid"`
	Remaining      decimal.Decimal `json:"remaining"`
}

// planAllocation walks the open documents in the order given and assigns each
// one min(outstanding, what is left of the amount) until the amount runs out.
// Documents with nothing outstanding are skipped. The walk is pure: callers
// supply the candidate order (oldest first) and apply the steps themselves.
func planAllocation(docs []openDocument, amount decimal.Decimal) ([]allocationStep, AllocationResult) {

	steps := make([]allocationStep, 0, len(docs))
	result := AllocationResult{
		TotalAllocated: decimal.Zero,
		Remaining:      amount,
	}

	for _, doc := range docs {
		if !result.Remaining.IsPositive() {
			break
		}
		outstanding := doc.outstanding()
		if !outstanding.IsPositive() {
			continue
		}

		portion := decimal.Min(outstanding, result.Remaining)
		newPaid := doc.AmountPaid.Add(portion)
		step := allocationStep{
			DocumentId:    doc.Id,
			Amount:        portion,
			NewAmountPaid: newPaid,
			NewStatus:     derivePaymentStatus(newPaid, doc.Total),
		}
		steps = append(steps, step)

		result.TotalAllocated = result.TotalAllocated.Add(portion)
		result.Remaining = result.Remaining.Sub(portion)
		if step.NewStatus == PaymentStatusPaid {
			result.InvoicesPaid++
		}
	}
	return steps, result
}

type NewCustomerPayment struct {
	CustomerId int             `json:"customer_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Method     PaymentMethod   `json:"method"`
	Notes      string          `json:"note"`
}

type NewSupplierPayment struct {
	SupplierId int             `json:"supplier_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Method     PaymentMethod   `json:"method"`
	Notes      string          `json:"note"`
}

// AllocateCustomerPayment spreads an incoming amount across the customer's
// unpaid sales, oldest first. One Payment row is created per sale touched.
// All allocations for a given partner are serialized through a partner lock
// so two concurrent payments cannot interleave their walks.
func AllocateCustomerPayment(ctx context.Context, input *NewCustomerPayment) (*AllocationResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("payment amount must be positive")
	}
	if input.Method == "" {
		input.Method = PaymentMethodCash
	}
	if err := utils.ValidateResourceId[Customer](ctx, businessId, input.CustomerId); err != nil {
		return nil, errors.New("customer not found")
	}

	unlock, err := utils.PartnerLock(ctx, businessId, "customer", input.CustomerId, "paymentAllocation.go", "AllocateCustomerPayment")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	var sales []Sale
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND customer_id = ? AND status = ? AND payment_status != ? AND total > 0",
			businessId, input.CustomerId, DocumentStatusActive, PaymentStatusPaid).
		Order("created_at ASC, id ASC").
		Find(&sales).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	docs := make([]openDocument, len(sales))
	for i, s := range sales {
		docs[i] = openDocument{Id: s.ID, Total: s.Total, AmountPaid: s.AmountPaid}
	}

	steps, result := planAllocation(docs, input.Amount)
	for _, step := range steps {
		payment := Payment{
			BusinessId:   businessId,
			Direction:    PaymentDirectionIn,
			DocumentType: DocumentTypeSale,
			DocumentId:   step.DocumentId,
			PartnerId:    input.CustomerId,
			Amount:       step.Amount,
			Method:       input.Method,
			Notes:        input.Notes,
			State:        PaymentStateActive,
		}
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		err = tx.WithContext(ctx).Model(&Sale{}).Where("id = ?", step.DocumentId).
			Updates(map[string]interface{}{
				"amount_paid":    step.NewAmountPaid,
				"payment_status": step.NewStatus,
			}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// AllocateSupplierPayment is the outgoing mirror of AllocateCustomerPayment:
// the amount settles the supplier's unpaid stock-ins oldest first.
func AllocateSupplierPayment(ctx context.Context, input *NewSupplierPayment) (*AllocationResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("payment amount must be positive")
	}
	if input.Method == "" {
		input.Method = PaymentMethodCash
	}
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return nil, errors.New("supplier not found")
	}

	unlock, err := utils.PartnerLock(ctx, businessId, "supplier", input.SupplierId, "paymentAllocation.go", "AllocateSupplierPayment")
	if err != nil {
		return nil, err
	}
	defer unlock()

	db := config.GetDB()
	tx := db.Begin()

	var stockIns []StockIn
	err = tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND supplier_id = ? AND status = ? AND payment_status != ? AND total > 0",
			businessId, input.SupplierId, DocumentStatusActive, PaymentStatusPaid).
		Order("created_at ASC, id ASC").
		Find(&stockIns).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	docs := make([]openDocument, len(stockIns))
	for i, s := range stockIns {
		docs[i] = openDocument{Id: s.ID, Total: s.Total, AmountPaid: s.AmountPaid}
	}

	steps, result := planAllocation(docs, input.Amount)
	for _, step := range steps {
		payment := Payment{
			BusinessId:   businessId,
			Direction:    PaymentDirectionOut,
			DocumentType: DocumentTypeStockIn,
			DocumentId:   step.DocumentId,
			PartnerId:    input.SupplierId,
			Amount:       step.Amount,
			Method:       input.Method,
			Notes:        input.Notes,
			State:        PaymentStateActive,
		}
		if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		err = tx.WithContext(ctx).Model(&StockIn{}).Where("id = ?", step.DocumentId).
			Updates(map[string]interface{}{
				"amount_paid":    step.NewAmountPaid,
				"payment_status": step.NewStatus,
			}).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &result, nil
}
