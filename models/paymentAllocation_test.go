package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q): %v", s, err)
	}
	return d
}

func TestPlanAllocationOldestFirst(t *testing.T) {
	docs := []openDocument{
		{Id: 1, Total: dec(t, "100"), AmountPaid: decimal.Zero},
		{Id: 2, Total: dec(t, "200"), AmountPaid: decimal.Zero},
	}

	steps, result := planAllocation(docs, dec(t, "150"))

	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].DocumentId != 1 || !steps[0].Amount.Equal(dec(t, "100")) {
		t.Fatalf("first step expected (doc 1, 100), got (doc %d, %s)", steps[0].DocumentId, steps[0].Amount)
	}
	if steps[0].NewStatus != PaymentStatusPaid {
		t.Fatalf("doc 1 expected Paid, got %s", steps[0].NewStatus)
	}
	if steps[1].DocumentId != 2 || !steps[1].Amount.Equal(dec(t, "50")) {
		t.Fatalf("second step expected (doc 2, 50), got (doc %d, %s)", steps[1].DocumentId, steps[1].Amount)
	}
	if steps[1].NewStatus != PaymentStatusPartial {
		t.Fatalf("doc 2 expected Partial, got %s", steps[1].NewStatus)
	}

	if !result.TotalAllocated.Equal(dec(t, "150")) {
		t.Fatalf("expected total allocated 150, got %s", result.TotalAllocated)
	}
	if result.InvoicesPaid != 1 {
		t.Fatalf("expected 1 invoice paid, got %d", result.InvoicesPaid)
	}
	if !result.Remaining.IsZero() {
		t.Fatalf("expected no remainder, got %s", result.Remaining)
	}
}

func TestPlanAllocationSurplusReported(t *testing.T) {
	docs := []openDocument{
		{Id: 1, Total: dec(t, "100"), AmountPaid: decimal.Zero},
		{Id: 2, Total: dec(t, "200"), AmountPaid: decimal.Zero},
	}

	steps, result := planAllocation(docs, dec(t, "500"))

	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if !result.TotalAllocated.Equal(dec(t, "300")) {
		t.Fatalf("expected total allocated 300, got %s", result.TotalAllocated)
	}
	if result.InvoicesPaid != 2 {
		t.Fatalf("expected 2 invoices paid, got %d", result.InvoicesPaid)
	}
	if !result.Remaining.Equal(dec(t, "200")) {
		t.Fatalf("expected remainder 200, got %s", result.Remaining)
	}
}

func TestPlanAllocationSkipsSettledDocuments(t *testing.T) {
	docs := []openDocument{
		{Id: 1, Total: dec(t, "100"), AmountPaid: dec(t, "100")},
		{Id: 2, Total: dec(t, "200"), AmountPaid: dec(t, "50")},
	}

	steps, result := planAllocation(docs, dec(t, "100"))

	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].DocumentId != 2 {
		t.Fatalf("expected step for doc 2, got doc %d", steps[0].DocumentId)
	}
	if !steps[0].NewAmountPaid.Equal(dec(t, "150")) {
		t.Fatalf("expected new amount paid 150, got %s", steps[0].NewAmountPaid)
	}
	if steps[0].NewStatus != PaymentStatusPartial {
		t.Fatalf("expected Partial, got %s", steps[0].NewStatus)
	}
	if result.InvoicesPaid != 0 {
		t.Fatalf("expected 0 invoices paid, got %d", result.InvoicesPaid)
	}
}

func TestPlanAllocationExactSettlement(t *testing.T) {
	docs := []openDocument{
		{Id: 7, Total: dec(t, "80.50"), AmountPaid: dec(t, "30.50")},
	}

	steps, result := planAllocation(docs, dec(t, "50"))

	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].NewStatus != PaymentStatusPaid {
		t.Fatalf("expected Paid on exact settlement, got %s", steps[0].NewStatus)
	}
	if !result.Remaining.IsZero() {
		t.Fatalf("expected no remainder, got %s", result.Remaining)
	}
}

func TestPlanAllocationIsDeterministic(t *testing.T) {
	docs := []openDocument{
		{Id: 3, Total: dec(t, "40"), AmountPaid: decimal.Zero},
		{Id: 5, Total: dec(t, "60"), AmountPaid: dec(t, "10")},
		{Id: 9, Total: dec(t, "25"), AmountPaid: decimal.Zero},
	}

	first, firstResult := planAllocation(docs, dec(t, "77"))
	second, secondResult := planAllocation(docs, dec(t, "77"))

	if len(first) != len(second) {
		t.Fatalf("step counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].DocumentId != second[i].DocumentId || !first[i].Amount.Equal(second[i].Amount) {
			t.Fatalf("step %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if !firstResult.TotalAllocated.Equal(secondResult.TotalAllocated) {
		t.Fatalf("totals differ: %s vs %s", firstResult.TotalAllocated, secondResult.TotalAllocated)
	}
}
