// Package domain provides cross-cutting domain contracts shared by the
// inventory, receipt and reporting packages.
package domain

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/filter"
)

// --- Filter & Pagination ---

// ListFilter contains common filtering options for list operations.
type ListFilter struct {
	// IDs filters by specific IDs
	IDs []id.ID

	// AdvancedFilters are arbitrary column conditions
	AdvancedFilters []filter.Item

	// OrderBy specifies sorting (e.g., "created_at", "-created_at")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-created_at",
	}
}

// Normalize clamps pagination to [1, max].
func (f *ListFilter) Normalize(max int) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > max {
		f.Limit = max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Events ---

// DomainEvent is a fact recorded in the transactional outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// EventPublisher records events inside the caller's unit of work.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// --- Audit ---

// AuditAction represents the type of audited operation.
type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionTransition AuditAction = "transition"
	AuditActionRepair     AuditAction = "repair"
	AuditActionRemove     AuditAction = "remove"
)

// AuditLogger records who changed what. Entries are written inside the
// caller's unit of work so they share its fate.
type AuditLogger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action AuditAction, changes map[string]any) error
}

// NopEventPublisher discards events.
type NopEventPublisher struct{}

// Publish implements EventPublisher.
func (NopEventPublisher) Publish(context.Context, DomainEvent) error { return nil }

// NopAuditLogger discards audit entries.
type NopAuditLogger struct{}

// LogChange implements AuditLogger.
func (NopAuditLogger) LogChange(context.Context, string, id.ID, AuditAction, map[string]any) error {
	return nil
}
