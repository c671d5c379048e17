package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError is a business-rule violation caught before any mutation.
// The caller can correct the input and retry.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError is raised when a reservation exceeds a batch's
// remaining quantity at commit time (usually a race with another sale).
type InsufficientStockError struct {
	BatchCode string
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for batch %s: requested %s, remaining %s",
		e.BatchCode, e.Requested, e.Remaining)
}

// State-machine violations. Never retried automatically.

type EditForbiddenError struct {
	Reason string
}

func (e *EditForbiddenError) Error() string { return "edit forbidden: " + e.Reason }

type CancelForbiddenError struct {
	Reason string
}

func (e *CancelForbiddenError) Error() string { return "cancel forbidden: " + e.Reason }

type AlreadyCancelledError struct {
	DocumentId int
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("document %d is already cancelled", e.DocumentId)
}

type AlreadyVoidedError struct {
	PaymentId int
}

func (e *AlreadyVoidedError) Error() string {
	return fmt.Sprintf("payment %d is already voided", e.PaymentId)
}

// InvariantViolationError signals an internal consistency bug (e.g. a release
// that would push a batch above its received quantity). The enclosing
// transaction must be rolled back entirely.
type InvariantViolationError struct {
	Message string
}

func (e *InvariantViolationError) Error() string { return "invariant violation: " + e.Message }

func NewInvariantViolation(format string, args ...any) error {
	return &InvariantViolationError{Message: fmt.Sprintf(format, args...)}
}

// IsConflictError reports whether err is a state-machine violation
// (surfaced as HTTP 409 by the API layer).
func IsConflictError(err error) bool {
	var editErr *EditForbiddenError
	var cancelErr *CancelForbiddenError
	var cancelledErr *AlreadyCancelledError
	var voidedErr *AlreadyVoidedError
	return errors.As(err, &editErr) || errors.As(err, &cancelErr) ||
		errors.As(err, &cancelledErr) || errors.As(err, &voidedErr)
}

// IsUserError reports whether err is recoverable by correcting the input.
func IsUserError(err error) bool {
	var validationErr *ValidationError
	var stockErr *InsufficientStockError
	return errors.As(err, &validationErr) || errors.As(err, &stockErr)
}
