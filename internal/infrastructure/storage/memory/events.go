package memory

import (
	"context"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Publish implements domain.EventPublisher. Events share the fate of the
// unit of work they are published in.
func (s *Store) Publish(ctx context.Context, event domain.DomainEvent) error {
	return s.update(ctx, func(st *state) error {
		st.events = append(st.events, event)
		return nil
	})
}

// LogChange implements domain.AuditLogger.
func (s *Store) LogChange(ctx context.Context, entityType string, entityID id.ID, action domain.AuditAction, changes map[string]any) error {
	return s.update(ctx, func(st *state) error {
		st.audit = append(st.audit, AuditEntry{
			EntityType: entityType,
			EntityID:   entityID,
			Action:     action,
			Changes:    changes,
			Actor:      appctx.ActorOrSystem(ctx),
			At:         s.now().UTC(),
		})
		return nil
	})
}
