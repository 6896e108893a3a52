package reports

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
)

// Repository defines report data access. Every method reads committed batch
// state and never locks.
type Repository interface {
	// LiveBatches returns live batches, optionally restricted to productIDs,
	// ordered by product then age.
	LiveBatches(ctx context.Context, productIDs []id.ID) ([]*inventory.Batch, error)

	// ProductStock returns the live quantity of every product that has ever
	// had a batch, including products now at zero.
	ProductStock(ctx context.Context) ([]ProductStock, error)

	// ExpiringBatches returns live batches whose expiry date is on or before
	// until.
	ExpiringBatches(ctx context.Context, until time.Time) ([]*inventory.Batch, error)
}

// Cache memoizes report payloads under versioned keys.
type Cache interface {
	// BuildKey joins parts and appends the current cache version.
	BuildKey(ctx context.Context, parts ...string) (string, error)

	// FetchJSON decodes a cached value into dest or fills it with loader.
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// ValuationExporter renders a valuation report as a spreadsheet.
type ValuationExporter interface {
	Valuation(report *ValuationReport) ([]byte, error)
}
