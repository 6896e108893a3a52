package inventory

import (
	"stockledger/internal/core/types"
)

// Position is the aggregate a product's live batches imply.
type Position struct {
	Quantity   int64
	Value      types.Money
	BatchCount int
}

// AverageCost is Value/Quantity, zero when nothing is on hand.
func (p Position) AverageCost() types.Money {
	return p.AverageCostOr(types.Zero())
}

// AverageCostOr is Value/Quantity, or fallback when nothing is on hand.
func (p Position) AverageCostOr(fallback types.Money) types.Money {
	return types.AverageCost(p.Value, p.Quantity, fallback)
}

// Receive returns the position after qty units arrive at unitCost:
//
//	newTotalValue = currentQty*currentAvg + qty*unitCost
//	newAvg        = newTotalValue / (currentQty + qty)
//
// currentQty*currentAvg is taken as the unrounded live value, so the new
// average equals a fresh valuation of the batches after the receipt.
func (p Position) Receive(qty int64, unitCost types.Money) Position {
	return Position{
		Quantity:   p.Quantity + qty,
		Value:      p.Value.Add(types.Extend(unitCost, qty)),
		BatchCount: p.BatchCount + 1,
	}
}

// Release returns the position after qty units worth value leave it.
// BatchCount is not tracked through a release.
func (p Position) Release(qty int64, value types.Money) Position {
	return Position{
		Quantity:   p.Quantity - qty,
		Value:      p.Value.Sub(value),
		BatchCount: p.BatchCount,
	}
}

// Valuate sums live batches.
func Valuate(batches []*Batch) Position {
	pos := Position{Value: types.Zero()}
	for _, b := range batches {
		if !b.IsLive() {
			continue
		}
		pos.Quantity += b.RemainingQuantity
		pos.Value = pos.Value.Add(b.Value())
		pos.BatchCount++
	}
	return pos
}

// Allocation is the outcome of walking batches oldest first.
type Allocation struct {
	Consumptions      []BatchConsumption
	TotalCost         types.Money
	Allocated         int64
	Available         int64
	RemainingToDeduct int64
}

// Fulfilled reports whether the whole request could be covered.
func (a Allocation) Fulfilled() bool {
	return a.RemainingToDeduct == 0
}

// AllocateFIFO plans the consumption of qty units from batches, which must be
// ordered oldest first. Exhausted and removed batches are skipped. Each unit is
// costed at its own batch's unit cost. The input is not modified.
func AllocateFIFO(batches []*Batch, qty int64) Allocation {
	alloc := Allocation{TotalCost: types.Zero(), RemainingToDeduct: qty}

	for _, b := range batches {
		if !b.IsLive() {
			continue
		}
		alloc.Available += b.RemainingQuantity
		if alloc.RemainingToDeduct == 0 {
			continue
		}

		take := min(alloc.RemainingToDeduct, b.RemainingQuantity)
		cost := types.Extend(b.UnitCost, take)

		alloc.Consumptions = append(alloc.Consumptions, BatchConsumption{
			BatchID:        b.ID,
			BatchCode:      b.BatchCode,
			Quantity:       take,
			UnitCost:       b.UnitCost,
			Cost:           cost,
			RemainingAfter: b.RemainingQuantity - take,
		})
		alloc.TotalCost = alloc.TotalCost.Add(cost)
		alloc.Allocated += take
		alloc.RemainingToDeduct -= take
	}

	return alloc
}

// LedgerState is what replaying a product's ledger yields.
type LedgerState struct {
	Quantity    int64
	Value       types.Money
	AverageCost types.Money
	Entries     int
}

// Replay folds ledger entries, in ledger order, into quantity, value and
// weighted average cost. IN adds its value, OUT removes the FIFO cost it
// recorded and REVALUATION applies its signed deltas. The average is
// value/quantity and carries over while nothing is on hand, which is how the
// engine resolves it from live batches.
func Replay(entries []*Transaction) LedgerState {
	state := LedgerState{Value: types.Zero(), AverageCost: types.Zero()}
	for _, e := range entries {
		switch e.Type {
		case TransactionIn, TransactionRevaluation:
			state.Value = state.Value.Add(e.TotalCostValue)
		case TransactionOut:
			state.Value = state.Value.Sub(e.TotalCostValue)
		}
		state.Quantity += e.Quantity
		state.AverageCost = types.AverageCost(state.Value, state.Quantity, state.AverageCost)
		state.Entries++
	}
	return state
}
