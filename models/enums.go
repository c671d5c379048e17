package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// enumColumnString normalizes the raw column value handed to an enum Scan.
func enumColumnString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("unsupported enum column type %T", v)
}

type DocumentType string

const (
	DocumentTypeSale    DocumentType = "Sale"
	DocumentTypeStockIn DocumentType = "StockIn"
)

func parseDocumentType(s string) (DocumentType, error) {
	switch s {
	case "Sale":
		return DocumentTypeSale, nil
	case "StockIn":
		return DocumentTypeStockIn, nil
	}
	return "", fmt.Errorf("invalid document type %q", s)
}

func (t *DocumentType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("document type must be string")
	}
	parsed, err := parseDocumentType(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t DocumentType) Value() (driver.Value, error) {
	if _, err := parseDocumentType(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *DocumentType) Scan(v interface{}) error {
	s, err := enumColumnString(v)
	if err != nil {
		return err
	}
	parsed, err := parseDocumentType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type DocumentStatus string

const (
	DocumentStatusActive    DocumentStatus = "Active"
	DocumentStatusCancelled DocumentStatus = "Cancelled"
)

func parseDocumentStatus(s string) (DocumentStatus, error) {
	switch s {
	case "Active":
		return DocumentStatusActive, nil
	case "Cancelled":
		return DocumentStatusCancelled, nil
	}
	return "", fmt.Errorf("invalid document status %q", s)
}

func (t *DocumentStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("document status must be string")
	}
	parsed, err := parseDocumentStatus(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t DocumentStatus) Value() (driver.Value, error) {
	if _, err := parseDocumentStatus(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *DocumentStatus) Scan(v interface{}) error {
	s, err := enumColumnString(v)
	if err != nil {
		return err
	}
	parsed, err := parseDocumentStatus(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "Unpaid"
	PaymentStatusPartial PaymentStatus = "Partial"
	PaymentStatusPaid    PaymentStatus = "Paid"
)

func parsePaymentStatus(s string) (PaymentStatus, error) {
	switch s {
	case "Unpaid":
		return PaymentStatusUnpaid, nil
	case "Partial":
		return PaymentStatusPartial, nil
	case "Paid":
		return PaymentStatusPaid, nil
	}
	return "", fmt.Errorf("invalid payment status %q", s)
}

func (t *PaymentStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment status must be string")
	}
	parsed, err := parsePaymentStatus(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t PaymentStatus) Value() (driver.Value, error) {
	if _, err := parsePaymentStatus(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *PaymentStatus) Scan(v interface{}) error {
	s, err := enumColumnString(v)
	if err != nil {
		return err
	}
	parsed, err := parsePaymentStatus(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// derivePaymentStatus is the single source of truth for the
// amount_paid vs total derivation. amount_paid is expected in [0, total].
func derivePaymentStatus(amountPaid decimal.Decimal, total decimal.Decimal) PaymentStatus {
	if amountPaid.Cmp(decimal.Zero) <= 0 {
		return PaymentStatusUnpaid
	}
	if amountPaid.Cmp(total) >= 0 {
		return PaymentStatusPaid
	}
	return PaymentStatusPartial
}

type PaymentDirection string

const (
	PaymentDirectionIn  PaymentDirection = "In"
	PaymentDirectionOut PaymentDirection = "Out"
)

func parsePaymentDirection(s string) (PaymentDirection, error) {
	switch s {
	case "In":
		return PaymentDirectionIn, nil
	case "Out":
		return PaymentDirectionOut, nil
	}
	return "", fmt.Errorf("invalid payment direction %q", s)
}

func (t *PaymentDirection) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment direction must be string")
	}
	parsed, err := parsePaymentDirection(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t PaymentDirection) Value() (driver.Value, error) {
	if _, err := parsePaymentDirection(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *PaymentDirection) Scan(v interface{}) error {
	s, err := enumColumnString(v)
	if err != nil {
		return err
	}
	parsed, err := parsePaymentDirection(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "Cash"
	PaymentMethodBank    PaymentMethod = "Bank"
	PaymentMethodMomo    PaymentMethod = "Momo"
	PaymentMethodZalopay PaymentMethod = "Zalopay"
	PaymentMethodOther   PaymentMethod = "Other"
)

func parsePaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case "Cash":
		return PaymentMethodCash, nil
	case "Bank":
		return PaymentMethodBank, nil
	case "Momo":
		return PaymentMethodMomo, nil
	case "Zalopay":
		return PaymentMethodZalopay, nil
	case "Other":
		return PaymentMethodOther, nil
	}
	return "", fmt.Errorf("invalid payment method %q", s)
}

func (t *PaymentMethod) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment method must be string")
	}
	parsed, err := parsePaymentMethod(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t PaymentMethod) Value() (driver.Value, error) {
	if _, err := parsePaymentMethod(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *PaymentMethod) Scan(v interface{}) error {
	s, err := enumColumnString(v)
	if err != nil {
		return err
	}
	parsed, err := parsePaymentMethod(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type PaymentState string

const (
	PaymentStateActive PaymentState = "Active"
	PaymentStateVoided PaymentState = "Voided"
)

func parsePaymentState(s string) (PaymentState, error) {
	switch s {
	case "Active":
		return PaymentStateActive, nil
	case "Voided":
		return PaymentStateVoided, nil
	}
	return "", fmt.Errorf("invalid payment state %q", s)
}

func (t *PaymentState) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("payment state must be string")
	}
	parsed, err := parsePaymentState(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t PaymentState) Value() (driver.Value, error) {
	if _, err := parsePaymentState(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *PaymentState) Scan(v interface{}) error {
	s, err := enumColumnString(v)
	if err != nil {
		return err
	}
	parsed, err := parsePaymentState(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
