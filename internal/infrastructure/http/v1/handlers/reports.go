package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/dto"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportsHandler exposes valuation and alert reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service}
}

// Valuation handles GET /reports/valuation
func (h *ReportsHandler) Valuation(c *gin.Context) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	ids, err := q.IDs()
	if err != nil {
		h.Error(c, err)
		return
	}
	report, err := h.service.GetInventoryValueReport(c.Request.Context(), ids)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// ValuationXLSX handles GET /reports/valuation.xlsx
func (h *ReportsHandler) ValuationXLSX(c *gin.Context) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	ids, err := q.IDs()
	if err != nil {
		h.Error(c, err)
		return
	}
	data, err := h.service.ExportValuation(c.Request.Context(), ids)
	if err != nil {
		h.Error(c, err)
		return
	}
	filename := fmt.Sprintf("valuation-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// LowStock handles GET /reports/low-stock
func (h *ReportsHandler) LowStock(c *gin.Context) {
	var q dto.LowStockQuery
	if !h.BindQuery(c, &q) {
		return
	}
	alert, err := h.service.GetLowStockAlert(c.Request.Context(), q.MinimumQuantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, alert)
}

// Expiring handles GET /reports/expiring
func (h *ReportsHandler) Expiring(c *gin.Context) {
	var q dto.ExpiringQuery
	if !h.BindQuery(c, &q) {
		return
	}
	alert, err := h.service.GetExpiringBatchesAlert(c.Request.Context(), q.DaysBeforeExpiry)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, alert)
}
