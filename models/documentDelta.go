package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// batchDelta is the net quantity change for one batch when a document's line
// items are replaced during an edit. Netting old against new per batch (rather
// than releasing everything and re-reserving) is what lets an edit keep the
// quantity the document already holds: the maximum a sale line can grow to is
// current_remaining + old_qty_on_this_document.
type batchDelta struct {
	BatchId int
	OldQty  decimal.Decimal
	NewQty  decimal.Decimal
}

// Delta returns NewQty - OldQty. Positive means the document takes more from
// the batch, negative means it gives back.
func (d batchDelta) Delta() decimal.Decimal {
	return d.NewQty.Sub(d.OldQty)
}

// computeBatchDeltas nets old line quantities against new ones per batch.
// Lines on the same batch are summed first. Batches whose net quantity is
// unchanged are omitted. Output order is deterministic (ascending batch id)
// so lock acquisition order is stable across concurrent edits.
func computeBatchDeltas(oldLines map[int]decimal.Decimal, newLines map[int]decimal.Decimal) []batchDelta {

	ids := make(map[int]struct{}, len(oldLines)+len(newLines))
	for id := range oldLines {
		ids[id] = struct{}{}
	}
	for id := range newLines {
		ids[id] = struct{}{}
	}

	deltas := make([]batchDelta, 0, len(ids))
	for id := range ids {
		d := batchDelta{
			BatchId: id,
			OldQty:  oldLines[id],
			NewQty:  newLines[id],
		}
		if d.Delta().IsZero() {
			continue
		}
		deltas = append(deltas, d)
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].BatchId < deltas[j].BatchId })
	return deltas
}

// sumSaleLineQuantities folds sale details into a per-batch quantity map.
func sumSaleLineQuantities(details []SaleDetail) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(details))
	for _, d := range details {
		out[d.BatchId] = out[d.BatchId].Add(d.Qty)
	}
	return out
}

// sumStockInLineQuantities folds stock-in details into a per-batch quantity map.
func sumStockInLineQuantities(details []StockInDetail) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(details))
	for _, d := range details {
		out[d.BatchId] = out[d.BatchId].Add(d.Qty)
	}
	return out
}
