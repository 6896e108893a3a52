package inventory

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
)

// BatchStore persists lots. All calls made with the same unit-of-work context
// are read-after-write consistent.
type BatchStore interface {
	// LockProduct takes the exclusive per-product lock for the rest of the
	// unit of work carried by ctx. Must be called before any read-compute-write.
	LockProduct(ctx context.Context, productID id.ID) error

	// ListBatches returns every batch of the product, exhausted ones included,
	// oldest first.
	ListBatches(ctx context.Context, productID id.ID) ([]*Batch, error)

	// GetBatchesOrderedByAge returns live batches (remaining > 0, not removed)
	// ordered by created_at ascending, ties broken by id.
	GetBatchesOrderedByAge(ctx context.Context, productID id.ID) ([]*Batch, error)

	// GetBatch loads one batch.
	GetBatch(ctx context.Context, batchID id.ID) (*Batch, error)

	// CreateBatch inserts a new lot.
	CreateBatch(ctx context.Context, batch *Batch) error

	// DecrementRemaining lowers remaining_quantity by qty. It fails rather than
	// go below zero.
	DecrementRemaining(ctx context.Context, batchID id.ID, qty int64) error

	// SoftRemove takes a batch out of costing without deleting it.
	SoftRemove(ctx context.Context, batchID id.ID, reason string, at time.Time) error

	// ProductsWithLiveStock lists products owning at least one live batch.
	ProductsWithLiveStock(ctx context.Context) ([]id.ID, error)
}

// Ledger is the append-only movement log.
type Ledger interface {
	// Append writes an immutable entry. Zero quantities are rejected.
	Append(ctx context.Context, entry *Transaction) error

	// ListByProduct returns entries ordered by created_at ascending.
	ListByProduct(ctx context.Context, productID id.ID) ([]*Transaction, error)

	// Last returns the most recent entry for the product, or nil.
	Last(ctx context.Context, productID id.ID) (*Transaction, error)

	// Query pages through entries using the common list filter.
	Query(ctx context.Context, filter LedgerFilter) (domain.ListResult[*Transaction], error)
}

// LedgerFilter narrows ledger queries.
type LedgerFilter struct {
	domain.ListFilter

	ProductID     *id.ID
	Type          *TransactionType
	ReferenceType *string
	ReferenceID   *string
	From          *time.Time
	To            *time.Time
}

// PriceUpdater is the external product record maintained downstream of stock-in.
// Failures are tolerated by the engine.
type PriceUpdater interface {
	UpdateAverageCostAndPrice(ctx context.Context, productID id.ID, newAverageCost types.Money) error
	SetLatestPurchasePrice(ctx context.Context, productID id.ID, price types.Money) error
}

// Metrics receives engine measurements.
type Metrics interface {
	RecordMovement(kind TransactionType, quantity int64, value types.Money)
	RecordRejection(code string)
	RecordPricingFailure()
	RecordDrift(productID id.ID, drift types.Money)
}

type nopMetrics struct{}

func (nopMetrics) RecordMovement(TransactionType, int64, types.Money) {}
func (nopMetrics) RecordRejection(string)                            {}
func (nopMetrics) RecordPricingFailure()                             {}
func (nopMetrics) RecordDrift(id.ID, types.Money)                    {}

type nopPriceUpdater struct{}

func (nopPriceUpdater) UpdateAverageCostAndPrice(context.Context, id.ID, types.Money) error {
	return nil
}
func (nopPriceUpdater) SetLatestPurchasePrice(context.Context, id.ID, types.Money) error {
	return nil
}
