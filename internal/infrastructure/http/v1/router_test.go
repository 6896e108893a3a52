package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/receipt"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/export"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

type idemRecord struct {
	hash     string
	done     bool
	status   int
	ctype    string
	response []byte
}

type fakeIdempotency struct {
	mu   sync.Mutex
	keys map[string]*idemRecord
}

func (f *fakeIdempotency) AcquireKey(_ context.Context, key, _, _, hash string) (*postgres.IdempotencyReplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.keys[key]
	if !ok {
		f.keys[key] = &idemRecord{hash: hash}
		return nil, nil
	}
	if rec.hash != hash {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	if !rec.done {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	return &postgres.IdempotencyReplay{StatusCode: rec.status, ContentType: rec.ctype, Body: rec.response}, nil
}

func (f *fakeIdempotency) CompleteKey(_ context.Context, key string, status int, ctype string, response any) error {
	return f.finish(key, status, ctype, response)
}

func (f *fakeIdempotency) FailKey(_ context.Context, key string, status int, ctype string, response any) error {
	return f.finish(key, status, ctype, response)
}

func (f *fakeIdempotency) finish(key string, status int, ctype string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.keys[key]
	rec.done, rec.status, rec.ctype, rec.response = true, status, ctype, body
	return nil
}

type api struct {
	router *gin.Engine
	store  *memory.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.NewStore()
	engine := inventory.NewService(store, store, store,
		inventory.WithPriceUpdater(store),
		inventory.WithEventPublisher(store),
		inventory.WithAuditLogger(store),
	)
	receipts := receipt.NewService(store, engine, &numerator.MockGenerator{}, store, store, store)
	rep := reports.NewService(memory.NewReportRepo(store), nil, export.NewExcel())

	router := v1.NewRouter(v1.RouterConfig{
		Logger:      logger.NewNop(),
		Inventory:   engine,
		Receipts:    receipts,
		Reports:     rep,
		Idempotency: &fakeIdempotency{keys: map[string]*idemRecord{}},
		Version:     "test",
		HealthChecks: map[string]handlers.Check{
			"store": func(context.Context) error { return nil },
		},
	})
	return &api{router: router, store: store}
}

func (a *api) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "clerk-1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (a *api) stockIn(t *testing.T, productID id.ID, qty int64, cost string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{
		"productId": productID.String(), "quantity": qty, "unitCost": cost,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestStockEndpoints(t *testing.T) {
	a := newAPI(t)
	p := id.New()
	a.stockIn(t, p, 100, "10")
	a.stockIn(t, p, 50, "13")

	rec := a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/wac", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wac := decode[struct {
		AverageCost types.Money `json:"averageCost"`
	}](t, rec)
	assert.True(t, types.MustMoney("11").Equal(wac.AverageCost), "got %s", wac.AverageCost)

	rec = a.do(t, http.MethodPost, "/api/v1/stock/out", map[string]any{
		"productId": p.String(), "quantity": 120, "referenceId": "SO-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[inventory.StockOutResult](t, rec)
	assert.True(t, types.MustMoney("1260").Equal(out.TotalCostValue), "got %s", out.TotalCostValue)
	assert.True(t, types.MustMoney("11").Equal(out.AverageCostUsed))
	assert.Equal(t, int64(30), out.RemainingQuantity)
	require.Len(t, out.AffectedBatches, 2)
	assert.Equal(t, int64(-120), out.Transaction.Quantity)
	assert.Equal(t, "clerk-1", out.Transaction.CreatedBy)
	require.NotNil(t, out.Transaction.ReferenceType)
	assert.Equal(t, inventory.ReferenceSale, *out.Transaction.ReferenceType)

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[inventory.InventorySummary](t, rec)
	assert.Equal(t, int64(30), summary.TotalQuantity)
	assert.Equal(t, 1, summary.BatchCount)
	assert.True(t, types.MustMoney("13").Equal(summary.AverageCost), "got %s", summary.AverageCost)

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	batches := decode[struct {
		Items []inventory.Batch `json:"items"`
	}](t, rec)
	assert.Len(t, batches.Items, 2)

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/ledger?type=OUT", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ledger := decode[struct {
		Items      []inventory.Transaction `json:"items"`
		TotalCount int64                   `json:"totalCount"`
	}](t, rec)
	assert.Equal(t, int64(1), ledger.TotalCount)
	require.Len(t, ledger.Items, 1)
	assert.Equal(t, inventory.TransactionOut, ledger.Items[0].Type)

	type recalcBody struct {
		Recalculation inventory.WACRecalculation `json:"recalculation"`
		HasDrift      bool                       `json:"hasDrift"`
	}
	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/recalculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recalc := decode[recalcBody](t, rec)
	assert.False(t, recalc.HasDrift)
	assert.True(t, types.MustMoney("13").Equal(recalc.Recalculation.New))

	rec = a.do(t, http.MethodPost, "/api/v1/stock/"+p.String()+"/repair-wac", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"repaired":false`)

	// 30@13 plus 10@3, then 20 of the 13.00 units vanish outside the engine.
	a.stockIn(t, p, 10, "3")
	require.NoError(t, a.store.DecrementRemaining(context.Background(), batches.Items[1].ID, 20))

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/recalculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recalc = decode[recalcBody](t, rec)
	assert.True(t, recalc.HasDrift)
	assert.True(t, types.MustMoney("10.5").Equal(recalc.Recalculation.Previous), "got %s", recalc.Recalculation.Previous)
	assert.True(t, types.MustMoney("8").Equal(recalc.Recalculation.New), "got %s", recalc.Recalculation.New)

	rec = a.do(t, http.MethodPost, "/api/v1/stock/"+p.String()+"/repair-wac", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"repaired":true`)

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/recalculate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[recalcBody](t, rec).HasDrift)
}

func TestStockIn_LinksReceiptItem(t *testing.T) {
	a := newAPI(t)
	p, item := id.New(), id.New()

	rec := a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{
		"productId": p.String(), "quantity": 4, "unitCost": "2", "receiptItemId": item.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[inventory.StockInResult](t, rec)
	require.NotNil(t, res.Batch.ReceiptItemID)
	assert.Equal(t, item, *res.Batch.ReceiptItemID)
	require.NotNil(t, res.Transaction.ReferenceType)
	assert.Equal(t, inventory.ReferenceReceipt, *res.Transaction.ReferenceType)

	rec = a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{
		"productId": p.String(), "quantity": 4, "unitCost": "2", "receiptItemId": "line-1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "receiptItemId", decode[errorBody](t, rec).Details["field"])
}

func TestStockEndpoints_Errors(t *testing.T) {
	a := newAPI(t)
	p := id.New()
	a.stockIn(t, p, 5, "2")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"insufficient stock", http.MethodPost, "/api/v1/stock/out",
			map[string]any{"productId": p.String(), "quantity": 6}, http.StatusUnprocessableEntity, apperror.CodeInsufficientStock},
		{"zero quantity", http.MethodPost, "/api/v1/stock/in",
			map[string]any{"productId": p.String(), "quantity": 0, "unitCost": "1"}, http.StatusBadRequest, apperror.CodeInvalidQuantity},
		{"bad product id", http.MethodPost, "/api/v1/stock/out",
			map[string]any{"productId": "nope", "quantity": 1}, http.StatusBadRequest, apperror.CodeValidation},
		{"bad path id", http.MethodGet, "/api/v1/stock/nope/wac", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"malformed body", http.MethodPost, "/api/v1/stock/in", "[", http.StatusBadRequest, apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, rec).Code)
		})
	}

	rec := a.do(t, http.MethodPost, "/api/v1/stock/out", map[string]any{"productId": p.String(), "quantity": 6})
	body := decode[errorBody](t, rec)
	assert.EqualValues(t, 6, body.Details["requested"])
	assert.EqualValues(t, 5, body.Details["available"])
}

func TestRemoveBatch(t *testing.T) {
	a := newAPI(t)
	p := id.New()
	a.stockIn(t, p, 10, "3")

	batches, err := a.store.ListBatches(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	path := "/api/v1/stock/batches/" + batches[0].ID.String() + "/remove"

	rec := a.do(t, http.MethodPost, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, path, map[string]any{"reason": "damaged"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, path, map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/summary", nil)
	assert.Equal(t, int64(0), decode[inventory.InventorySummary](t, rec).TotalQuantity)
}

func TestReceiptEndpoints(t *testing.T) {
	a := newAPI(t)
	supplier, p1, p2 := id.New(), id.New(), id.New()

	rec := a.do(t, http.MethodPost, "/api/v1/receipts", map[string]any{
		"supplierId": supplier.String(),
		"items": []map[string]any{
			{"productId": p1.String(), "quantity": 10, "unitCost": "2.5"},
			{"productId": p2.String(), "quantity": 4, "unitCost": "7"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[receipt.Receipt](t, rec)
	assert.True(t, strings.HasPrefix(created.Code, "RCPT-"))
	assert.Equal(t, receipt.StatusDraft, created.Status)
	assert.True(t, types.MustMoney("53").Equal(created.TotalAmount))

	base := "/api/v1/receipts/" + created.ID.String()

	rec = a.do(t, http.MethodPost, base+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperror.CodeInvalidStateTransition, decode[errorBody](t, rec).Code)

	rec = a.do(t, http.MethodPost, base+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[receipt.CompletionResult](t, rec)
	assert.Equal(t, receipt.StatusCompleted, done.Receipt.Status)
	assert.Len(t, done.StockIns, 2)

	rec = a.do(t, http.MethodGet, "/api/v1/stock/"+p1.String()+"/summary", nil)
	assert.Equal(t, int64(10), decode[inventory.InventorySummary](t, rec).TotalQuantity)

	rec = a.do(t, http.MethodPost, base+"/cancel", map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[receipt.Receipt](t, rec).Items, 2)

	rec = a.do(t, http.MethodGet, "/api/v1/receipts?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), created.ID.String())

	rec = a.do(t, http.MethodGet, "/api/v1/receipts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/receipts/"+id.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportEndpoints(t *testing.T) {
	a := newAPI(t)
	p := id.New()
	a.stockIn(t, p, 3, "4")
	expiry := time.Now().UTC().AddDate(0, 0, 5)
	rec := a.do(t, http.MethodPost, "/api/v1/stock/in", map[string]any{
		"productId": p.String(), "quantity": 2, "unitCost": "4", "expiryDate": expiry,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/v1/reports/valuation?productId="+p.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	valuation := decode[reports.ValuationReport](t, rec)
	assert.True(t, types.MustMoney("20").Equal(valuation.TotalValue))

	rec = a.do(t, http.MethodGet, "/api/v1/reports/low-stock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[reports.LowStockAlert](t, rec).Items, 1)

	rec = a.do(t, http.MethodGet, "/api/v1/reports/low-stock?minimumQuantity=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/reports/expiring?daysBeforeExpiry=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	expiring := decode[reports.ExpiryAlert](t, rec)
	require.Len(t, expiring.Items, 1)
	assert.Equal(t, reports.TierCritical, expiring.Items[0].Tier)

	rec = a.do(t, http.MethodGet, "/api/v1/reports/valuation.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestIdempotentStockOut(t *testing.T) {
	a := newAPI(t)
	p := id.New()
	a.stockIn(t, p, 10, "1")

	body := map[string]any{"productId": p.String(), "quantity": 4}
	first := a.do(t, http.MethodPost, "/api/v1/stock/out", body, "X-Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code)

	second := a.do(t, http.MethodPost, "/api/v1/stock/out", body, "X-Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	rec := a.do(t, http.MethodGet, "/api/v1/stock/"+p.String()+"/summary", nil)
	assert.Equal(t, int64(6), decode[inventory.InventorySummary](t, rec).TotalQuantity)

	other := a.do(t, http.MethodPost, "/api/v1/stock/out",
		map[string]any{"productId": p.String(), "quantity": 1}, "X-Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, other.Code, "same key, different body")
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"healthy"`)

	rec = a.do(t, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
