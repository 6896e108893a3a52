package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/storage/postgres"
)

// AuditHistory reads the audit trail of one entity.
type AuditHistory interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// auditedEntities maps URL segments to stored entity types.
var auditedEntities = map[string]string{
	"receipts": "Receipt",
	"products": "Product",
	"batches":  "Batch",
}

// AuditHandler exposes audit history.
type AuditHandler struct {
	*BaseHandler
	history AuditHistory
}

// NewAuditHandler creates an audit handler.
func NewAuditHandler(base *BaseHandler, history AuditHistory) *AuditHandler {
	return &AuditHandler{BaseHandler: base, history: history}
}

// History handles GET /audit/:entity/:id
func (h *AuditHandler) History(c *gin.Context) {
	entityType, ok := auditedEntities[c.Param("entity")]
	if !ok {
		h.Error(c, apperror.NewNotFound("audited entity", c.Param("entity")))
		return
	}
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var q struct {
		Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
	}
	if !h.BindQuery(c, &q) {
		return
	}
	if q.Limit == 0 {
		q.Limit = 100
	}

	entries, err := h.history.GetEntityHistory(c.Request.Context(), entityType, entityID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": dto.FromAuditEntries(entries)})
}
