package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeBatchDeltasNetsAndOrders(t *testing.T) {
	oldLines := map[int]decimal.Decimal{
		1: dec(t, "10"),
		2: dec(t, "5"),
	}
	newLines := map[int]decimal.Decimal{
		3: dec(t, "4"),
		1: dec(t, "25"),
		2: dec(t, "5"),
	}

	deltas := computeBatchDeltas(oldLines, newLines)

	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas (batch 2 unchanged), got %d", len(deltas))
	}
	if deltas[0].BatchId != 1 || deltas[1].BatchId != 3 {
		t.Fatalf("expected batch order [1, 3], got [%d, %d]", deltas[0].BatchId, deltas[1].BatchId)
	}
	if !deltas[0].Delta().Equal(dec(t, "15")) {
		t.Fatalf("batch 1 expected delta 15, got %s", deltas[0].Delta())
	}
	if !deltas[1].Delta().Equal(dec(t, "4")) {
		t.Fatalf("batch 3 expected delta 4, got %s", deltas[1].Delta())
	}
}

func TestComputeBatchDeltasRemovedLineReversesFully(t *testing.T) {
	oldLines := map[int]decimal.Decimal{4: dec(t, "12")}
	newLines := map[int]decimal.Decimal{}

	deltas := computeBatchDeltas(oldLines, newLines)

	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if !deltas[0].Delta().Equal(dec(t, "-12")) {
		t.Fatalf("expected delta -12, got %s", deltas[0].Delta())
	}
}

func TestSumSaleLineQuantitiesMergesSameBatch(t *testing.T) {
	details := []SaleDetail{
		{BatchId: 1, Qty: dec(t, "3")},
		{BatchId: 1, Qty: dec(t, "2")},
		{BatchId: 2, Qty: dec(t, "7")},
	}

	sums := sumSaleLineQuantities(details)

	if !sums[1].Equal(dec(t, "5")) {
		t.Fatalf("batch 1 expected 5, got %s", sums[1])
	}
	if !sums[2].Equal(dec(t, "7")) {
		t.Fatalf("batch 2 expected 7, got %s", sums[2])
	}
}

// An edit may grow a line up to current_remaining + its old quantity: the
// delta, not the full new quantity, is what is checked against the batch.
func TestEditHeadroomUsesDeltaNotAbsoluteQty(t *testing.T) {
	remaining := dec(t, "30")
	oldQty := dec(t, "10")

	grown := computeBatchDeltas(
		map[int]decimal.Decimal{1: oldQty},
		map[int]decimal.Decimal{1: dec(t, "25")},
	)
	if grown[0].Delta().Cmp(remaining) > 0 {
		t.Fatalf("growing 10 -> 25 with 30 remaining should fit, delta %s", grown[0].Delta())
	}

	tooBig := computeBatchDeltas(
		map[int]decimal.Decimal{1: oldQty},
		map[int]decimal.Decimal{1: dec(t, "45")},
	)
	if tooBig[0].Delta().Cmp(remaining) <= 0 {
		t.Fatalf("growing 10 -> 45 with 30 remaining must not fit, delta %s", tooBig[0].Delta())
	}
	maxAllowed := remaining.Add(oldQty)
	if !maxAllowed.Equal(dec(t, "40")) {
		t.Fatalf("expected max allowed 40, got %s", maxAllowed)
	}
}
