package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		paid     string
		total    string
		expected PaymentStatus
	}{
		{"0", "100", PaymentStatusUnpaid},
		{"-5", "100", PaymentStatusUnpaid},
		{"0.01", "100", PaymentStatusPartial},
		{"99.99", "100", PaymentStatusPartial},
		{"100", "100", PaymentStatusPaid},
		{"150", "100", PaymentStatusPaid},
		{"0", "0", PaymentStatusUnpaid},
	}
	for _, tc := range cases {
		paid, _ := decimal.NewFromString(tc.paid)
		total, _ := decimal.NewFromString(tc.total)
		if got := derivePaymentStatus(paid, total); got != tc.expected {
			t.Fatalf("derivePaymentStatus(%s, %s) expected %s, got %s", tc.paid, tc.total, tc.expected, got)
		}
	}
}

func TestDocumentStatusUnmarshalRejectsUnknown(t *testing.T) {
	var s DocumentStatus
	if err := json.Unmarshal([]byte(`"Active"`), &s); err != nil || s != DocumentStatusActive {
		t.Fatalf("expected Active, got %s (err %v)", s, err)
	}
	if err := json.Unmarshal([]byte(`"Draft"`), &s); err == nil {
		t.Fatal("expected error for unknown document status")
	}
	if err := json.Unmarshal([]byte(`5`), &s); err == nil {
		t.Fatal("expected error for non-string document status")
	}
}

func TestEnumScanRejectsUnknownColumnValues(t *testing.T) {
	var s DocumentStatus
	if err := s.Scan([]byte("Active")); err != nil || s != DocumentStatusActive {
		t.Fatalf("expected Active from []byte scan, got %s (err %v)", s, err)
	}
	if err := s.Scan("Cancelled"); err != nil || s != DocumentStatusCancelled {
		t.Fatalf("expected Cancelled from string scan, got %s (err %v)", s, err)
	}
	if err := s.Scan("Draft"); err == nil {
		t.Fatal("expected error scanning unknown document status")
	}
	if err := s.Scan(nil); err == nil {
		t.Fatal("expected error scanning NULL document status")
	}

	var ps PaymentStatus
	if err := ps.Scan("Partial"); err != nil || ps != PaymentStatusPartial {
		t.Fatalf("expected Partial, got %s (err %v)", ps, err)
	}
	if err := ps.Scan("Overdue"); err == nil {
		t.Fatal("expected error scanning unknown payment status")
	}

	var st PaymentState
	if err := st.Scan("Voided"); err != nil || st != PaymentStateVoided {
		t.Fatalf("expected Voided, got %s (err %v)", st, err)
	}
	if err := st.Scan("Deleted"); err == nil {
		t.Fatal("expected error scanning unknown payment state")
	}
}

func TestEnumValueRejectsUnknownValues(t *testing.T) {
	v, err := PaymentMethodCash.Value()
	if err != nil || v != "Cash" {
		t.Fatalf("expected Cash, got %v (err %v)", v, err)
	}
	if _, err := DocumentStatus("Draft").Value(); err == nil {
		t.Fatal("expected error valuing unknown document status")
	}
	if _, err := PaymentDirection("Sideways").Value(); err == nil {
		t.Fatal("expected error valuing unknown payment direction")
	}
	if _, err := DocumentType("").Value(); err == nil {
		t.Fatal("expected error valuing empty document type")
	}
}

func TestPaymentMethodUnmarshalRejectsUnknown(t *testing.T) {
	var m PaymentMethod
	if err := json.Unmarshal([]byte(`"Momo"`), &m); err != nil || m != PaymentMethodMomo {
		t.Fatalf("expected Momo, got %s (err %v)", m, err)
	}
	if err := json.Unmarshal([]byte(`"Bitcoin"`), &m); err == nil {
		t.Fatal("expected error for unknown payment method")
	}
}
