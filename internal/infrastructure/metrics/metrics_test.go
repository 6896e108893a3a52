package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
)

func TestEngineMetrics(t *testing.T) {
	m := New()

	m.RecordMovement(inventory.TransactionIn, 100, types.MustMoney("1000"))
	m.RecordMovement(inventory.TransactionOut, 20, types.MustMoney("-200"))
	m.RecordRejection("INSUFFICIENT_STOCK")
	m.RecordPricingFailure()
	m.RecordDrift(id.New(), types.MustMoney("2"))
	m.RecordDrift(id.New(), types.Zero())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.movements.WithLabelValues("IN")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.movedUnits.WithLabelValues("OUT")))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.movedValue.WithLabelValues("OUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("INSUFFICIENT_STOCK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pricingFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.driftingTotal))
}

func TestTracker(t *testing.T) {
	m := New()
	boom := errors.New("boom")

	assert.NoError(t, m.Track("wac_audit").End(nil))
	assert.ErrorIs(t, m.Track("wac_audit").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("wac_audit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("wac_audit", "failure")))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/v1/stock/:productId/wac", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/abc/wac", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/v1/stock/:productId/wac", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "stockledger_http_requests_total")
}
