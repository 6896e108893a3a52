package receipt

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository defines persistence of receipts and their items.
type Repository interface {
	// Create inserts the header and all items. A duplicate code yields
	// apperror CodeDuplicate.
	Create(ctx context.Context, r *Receipt) error

	// GetByID loads a receipt with its items.
	GetByID(ctx context.Context, receiptID id.ID) (*Receipt, error)

	// GetByCode loads a receipt with its items.
	GetByCode(ctx context.Context, code string) (*Receipt, error)

	// GetForUpdate loads a receipt with its items and locks the header for the
	// rest of the unit of work.
	GetForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error)

	// UpdateStatus persists the state machine fields. It fails with
	// CodeConcurrentModification when the stored version is not r.Version-1.
	UpdateStatus(ctx context.Context, r *Receipt) error

	// List pages through receipt headers (items are not loaded).
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Receipt], error)
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	domain.ListFilter

	Status     *Status
	SupplierID *id.ID
	From       *time.Time
	To         *time.Time
}
