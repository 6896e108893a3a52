package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/receipt"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReceiptHandler exposes the receipt workflow.
type ReceiptHandler struct {
	*BaseHandler
	service *receipt.Service
}

// NewReceiptHandler creates a receipt handler.
func NewReceiptHandler(base *BaseHandler, service *receipt.Service) *ReceiptHandler {
	return &ReceiptHandler{BaseHandler: base, service: service}
}

// Create handles POST /receipts
func (h *ReceiptHandler) Create(c *gin.Context) {
	var req dto.CreateReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.Error(c, err)
		return
	}
	rc, err := h.service.CreateReceipt(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rc)
}

// List handles GET /receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	var q dto.ReceiptListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	page, err := h.service.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(page))
}

// Get handles GET /receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	rc, err := h.service.GetReceipt(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rc)
}

// Approve handles POST /receipts/:id/approve
func (h *ReceiptHandler) Approve(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	rc, err := h.service.ApproveReceipt(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rc)
}

// Complete handles POST /receipts/:id/complete
func (h *ReceiptHandler) Complete(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.CompleteReceipt(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Cancel handles POST /receipts/:id/cancel
func (h *ReceiptHandler) Cancel(c *gin.Context) {
	receiptID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rc, err := h.service.CancelReceipt(c.Request.Context(), receiptID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rc)
}
