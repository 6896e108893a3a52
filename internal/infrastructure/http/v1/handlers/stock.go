package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler exposes the costing engine.
type StockHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, service *inventory.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service}
}

// StockIn handles POST /stock/in
func (h *StockHandler) StockIn(c *gin.Context) {
	var req dto.StockInRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.service.StockIn(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// StockOut handles POST /stock/out
func (h *StockHandler) StockOut(c *gin.Context) {
	var req dto.StockOutRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.service.StockOut(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// GetWAC handles GET /stock/:productId/wac
func (h *StockHandler) GetWAC(c *gin.Context) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}
	avg, err := h.service.GetWeightedAverageCost(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.WACResponse{ProductID: productID, AverageCost: avg})
}

// GetSummary handles GET /stock/:productId/summary
func (h *StockHandler) GetSummary(c *gin.Context) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}
	summary, err := h.service.GetInventorySummary(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// ListBatches handles GET /stock/:productId/batches
func (h *StockHandler) ListBatches(c *gin.Context) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}
	batches, err := h.service.ListBatches(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if batches == nil {
		batches = []*inventory.Batch{}
	}
	h.OK(c, gin.H{"items": batches})
}

// GetLedger handles GET /stock/:productId/ledger
func (h *StockHandler) GetLedger(c *gin.Context) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter(productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	page, err := h.service.QueryTransactions(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(page))
}

// Recalculate handles GET /stock/:productId/recalculate
func (h *StockHandler) Recalculate(c *gin.Context) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}
	recalc, err := h.service.RecalculateWAC(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"recalculation": recalc, "drift": recalc.Drift(), "hasDrift": recalc.HasDrift()})
}

// RepairWAC handles POST /stock/:productId/repair-wac
func (h *StockHandler) RepairWAC(c *gin.Context) {
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return
	}
	recalc, err := h.service.RepairWAC(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"recalculation": recalc, "repaired": recalc.HasDrift()})
}

// RemoveBatch handles POST /stock/batches/:batchId/remove
func (h *StockHandler) RemoveBatch(c *gin.Context) {
	batchID, ok := h.PathID(c, "batchId")
	if !ok {
		return
	}
	var req dto.RemoveBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.RemoveBatch(c.Request.Context(), batchID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"batchId": batchID, "transaction": entry})
}
