// Package inventory implements the costing engine: batch lifecycle, stock-in
// valuation with weighted average cost, FIFO stock-out consumption and the
// append-only transaction ledger.
package inventory

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// TransactionType is the direction of a stock movement.
type TransactionType string

const (
	TransactionIn  TransactionType = "IN"
	TransactionOut TransactionType = "OUT"
	// TransactionRevaluation realigns the ledger with live batches after an
	// administrative repair. Quantity and TotalCostValue are signed deltas and
	// the quantity may be zero.
	TransactionRevaluation TransactionType = "REVALUATION"
)

// Common reference types. Callers may use their own values.
const (
	ReferenceReceipt    = "RECEIPT"
	ReferenceSale       = "SALE"
	ReferenceAdjustment = "ADJUSTMENT"
	ReferenceOpening    = "OPENING_BALANCE"
	ReferenceDirect     = "DIRECT"
)

// Batch is a received lot of one product at one unit cost.
// RemainingQuantity only ever decreases after creation.
type Batch struct {
	ID                id.ID       `db:"id" json:"id"`
	ProductID         id.ID       `db:"product_id" json:"productId"`
	BatchCode         *string     `db:"batch_code" json:"batchCode,omitempty"`
	UnitCost          types.Money `db:"unit_cost" json:"unitCost"`
	OriginalQuantity  int64       `db:"original_quantity" json:"originalQuantity"`
	RemainingQuantity int64       `db:"remaining_quantity" json:"remainingQuantity"`
	ExpiryDate        *time.Time  `db:"expiry_date" json:"expiryDate,omitempty"`
	ManufacturingDate *time.Time  `db:"manufacturing_date" json:"manufacturingDate,omitempty"`
	SupplierID        *id.ID      `db:"supplier_id" json:"supplierId,omitempty"`
	ReceiptItemID     *id.ID      `db:"receipt_item_id" json:"receiptItemId,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	RemovedAt         *time.Time  `db:"removed_at" json:"removedAt,omitempty"`
	RemovedReason     *string     `db:"removed_reason" json:"removedReason,omitempty"`
}

// IsLive reports whether the batch still participates in costing.
func (b *Batch) IsLive() bool {
	return b.RemovedAt == nil && b.RemainingQuantity > 0
}

// Value is the cost of the units still on hand.
func (b *Batch) Value() types.Money {
	return types.Extend(b.UnitCost, b.RemainingQuantity)
}

// DaysUntilExpiry counts whole calendar days (UTC) from now to the expiry date.
// Negative when already expired. ok is false when the batch has no expiry date.
func (b *Batch) DaysUntilExpiry(now time.Time) (days int, ok bool) {
	if b.ExpiryDate == nil {
		return 0, false
	}
	today := truncateDay(now)
	expiry := truncateDay(*b.ExpiryDate)
	return int(expiry.Sub(today).Hours() / 24), true
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Transaction is one immutable ledger entry.
// Quantity is signed: positive for IN, negative for OUT. Seq is assigned by
// the store on append and orders the ledger.
type Transaction struct {
	Seq                       int64           `db:"seq" insert:"-" json:"seq"`
	ID                        id.ID           `db:"id" json:"id"`
	ProductID                 id.ID           `db:"product_id" json:"productId"`
	Type                      TransactionType `db:"type" json:"type"`
	Quantity                  int64           `db:"quantity" json:"quantity"`
	UnitCostPrice             types.Money     `db:"unit_cost_price" json:"unitCostPrice"`
	TotalCostValue            types.Money     `db:"total_cost_value" json:"totalCostValue"`
	RemainingQuantitySnapshot int64           `db:"remaining_quantity_snapshot" json:"remainingQuantitySnapshot"`
	NewAverageCostSnapshot    types.Money     `db:"new_average_cost_snapshot" json:"newAverageCostSnapshot"`
	BatchID                   *id.ID          `db:"batch_id" json:"batchId,omitempty"`
	ReferenceType             *string         `db:"reference_type" json:"referenceType,omitempty"`
	ReferenceID               *string         `db:"reference_id" json:"referenceId,omitempty"`
	Notes                     *string         `db:"notes" json:"notes,omitempty"`
	CreatedBy                 string          `db:"created_by" json:"createdBy"`
	CreatedAt                 time.Time       `db:"created_at" json:"createdAt"`
}

// CheckSign verifies the quantity sign the entry type requires.
func (t *Transaction) CheckSign() error {
	switch t.Type {
	case TransactionIn:
		if t.Quantity <= 0 {
			return apperror.NewInvalidQuantity(t.Quantity)
		}
	case TransactionOut:
		if t.Quantity >= 0 {
			return apperror.NewInvalidQuantity(t.Quantity)
		}
	case TransactionRevaluation:
	default:
		return apperror.NewValidation("unknown transaction type").WithDetail("type", string(t.Type))
	}
	return nil
}

// BatchConsumption describes how much of one batch a dispatch consumed.
type BatchConsumption struct {
	BatchID        id.ID       `json:"batchId"`
	BatchCode      *string     `json:"batchCode,omitempty"`
	Quantity       int64       `json:"quantity"`
	UnitCost       types.Money `json:"unitCost"`
	Cost           types.Money `json:"cost"`
	RemainingAfter int64       `json:"remainingAfter"`
}

// StockInResult is returned by Service.StockIn.
type StockInResult struct {
	Transaction         *Transaction `json:"transaction"`
	Batch               *Batch       `json:"batch"`
	PreviousAverageCost types.Money  `json:"previousAverageCost"`
	NewAverageCost      types.Money  `json:"newAverageCost"`
	TotalQuantity       int64        `json:"totalQuantity"`
}

// StockOutResult is returned by Service.StockOut.
type StockOutResult struct {
	Transaction       *Transaction       `json:"transaction"`
	AffectedBatches   []BatchConsumption `json:"affectedBatches"`
	TotalCostValue    types.Money        `json:"totalCostValue"`
	AverageCostUsed   types.Money        `json:"averageCostUsed"`
	RemainingQuantity int64              `json:"remainingQuantity"`
}

// InventorySummary is the live position of one product.
type InventorySummary struct {
	ProductID     id.ID       `json:"productId"`
	TotalQuantity int64       `json:"totalQuantity"`
	BatchCount    int         `json:"batchCount"`
	TotalValue    types.Money `json:"totalValue"`
	AverageCost   types.Money `json:"averageCost"`
}

// WACRecalculation compares the ledger's weighted average cost with the one
// implied by live batches. Producing it never mutates state.
type WACRecalculation struct {
	ProductID     id.ID       `json:"productId"`
	Previous      types.Money `json:"previous"`
	New           types.Money `json:"new"`
	TotalQuantity int64       `json:"totalQuantity"`
	TotalValue    types.Money `json:"totalValue"`
}

// Drift is New - Previous.
func (r *WACRecalculation) Drift() types.Money {
	return r.New.Sub(r.Previous)
}

// HasDrift reports a non-zero difference.
func (r *WACRecalculation) HasDrift() bool {
	return !r.Drift().IsZero()
}
