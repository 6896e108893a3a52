// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations.
//
// The active transaction travels in context.Context: that context is the unit of
// work. Any operation called with a context that already carries a unit of work
// joins it instead of opening a new one, so several costing operations can be
// composed into one atomic business step.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, and nested transaction support.
//
// Domain services depend on this interface, not concrete implementations.
// The implementations live in infrastructure/storage/postgres and
// infrastructure/storage/memory.
type Manager interface {
	// RunInTransaction executes fn within a unit of work.
	// If fn returns an error, the unit is rolled back.
	// If fn succeeds, the unit is committed.
	//
	// Nested calls reuse the existing unit of work from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
// Use for queries that don't modify data.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	// Attempts to modify data will fail.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
