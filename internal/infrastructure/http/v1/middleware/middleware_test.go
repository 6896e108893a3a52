package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

func newEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Trace(), middleware.ErrorHandler(), middleware.Recovery(), middleware.UserContext())
	r.GET("/x", handler)
	return r
}

func serve(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestErrorHandler_AppError(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewInsufficientStock("p-1", 5, 2))
	})
	rec := serve(r, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{
		"code": "INSUFFICIENT_STOCK",
		"message": "Insufficient stock",
		"details": {"product_id": "p-1", "requested": 5, "available": 2}
	}`, rec.Body.String())
}

func TestErrorHandler_HidesInternalErrors(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(errors.New("pq: password authentication failed"))
	})
	rec := serve(r, map[string]string{middleware.HeaderRequestID: "req-7"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Contains(t, rec.Body.String(), `"request_id":"req-7"`)
	assert.Equal(t, "req-7", rec.Header().Get(middleware.HeaderRequestID))
}

func TestRecovery(t *testing.T) {
	r := newEngine(func(c *gin.Context) { panic("boom") })
	rec := serve(r, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), apperror.CodeInternal)
}

func TestUserContext(t *testing.T) {
	var seen string
	r := newEngine(func(c *gin.Context) {
		seen = appctx.ActorOrSystem(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	serve(r, map[string]string{middleware.HeaderUserID: "u-42"})
	assert.Equal(t, "u-42", seen)

	serve(r, nil)
	assert.Equal(t, appctx.SystemActor, seen)
}

func TestTrace_GeneratesIDs(t *testing.T) {
	var requestID string
	r := newEngine(func(c *gin.Context) {
		requestID = appctx.GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	rec := serve(r, nil)
	require.NotEmpty(t, requestID)
	assert.Equal(t, requestID, rec.Header().Get(middleware.HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderTraceID))
}
