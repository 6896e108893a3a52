package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/jobs"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
)

type driftRecorder struct {
	mu     sync.Mutex
	drifts map[id.ID]types.Money
}

func newDriftRecorder() *driftRecorder {
	return &driftRecorder{drifts: map[id.ID]types.Money{}}
}

func (r *driftRecorder) RecordMovement(inventory.TransactionType, int64, types.Money) {}
func (r *driftRecorder) RecordRejection(string)                                        {}
func (r *driftRecorder) RecordPricingFailure()                                         {}
func (r *driftRecorder) RecordDrift(productID id.ID, drift types.Money) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drifts[productID] = drift
}

type fakeLock struct {
	busy  bool
	calls []string
}

func (l *fakeLock) RunExclusive(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) (bool, error) {
	l.calls = append(l.calls, key)
	if l.busy {
		return false, nil
	}
	return true, fn(ctx)
}

func seed(t *testing.T, store *memory.Store, engine *inventory.Service) (drifting, aligned id.ID) {
	t.Helper()
	ctx := context.Background()
	drifting, aligned = id.New(), id.New()

	var cheap id.ID
	for _, in := range []struct {
		product id.ID
		qty     int64
		cost    string
	}{
		{drifting, 100, "10"},
		{drifting, 50, "13"},
		{aligned, 10, "4"},
		{aligned, 10, "8"},
	} {
		res, err := engine.StockIn(ctx, inventory.StockInCommand{
			ProductID: in.product, Quantity: in.qty, UnitCost: types.MustMoney(in.cost),
		})
		require.NoError(t, err)
		if in.product == drifting && in.cost == "10" {
			cheap = res.Batch.ID
		}
	}
	// A FIFO dispatch moves the average and the ledger follows it.
	_, err := engine.StockOut(ctx, inventory.StockOutCommand{
		ProductID: aligned, Quantity: 10, ReferenceType: inventory.ReferenceSale,
	})
	require.NoError(t, err)

	// Units leaving behind the engine's back are what the audit catches.
	require.NoError(t, store.DecrementRemaining(ctx, cheap, 50))
	return drifting, aligned
}

func TestWACAuditJob_Run(t *testing.T) {
	store := memory.NewStore()
	engine := inventory.NewService(store, store, store)
	drifting, aligned := seed(t, store, engine)

	rec := newDriftRecorder()
	job := jobs.NewWACAuditJob(engine, rec, nil, logger.NewNop())

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Drifting, 1)
	assert.Equal(t, drifting, report.Drifting[0].ProductID)
	assert.True(t, types.MustMoney("11").Equal(report.Drifting[0].Previous))
	assert.True(t, types.MustMoney("11.5").Equal(report.Drifting[0].New))

	assert.True(t, types.MustMoney("0.5").Equal(rec.drifts[drifting]))
	assert.True(t, rec.drifts[aligned].IsZero())

	// Audit never repairs.
	again, err := engine.RecalculateWAC(context.Background(), drifting)
	require.NoError(t, err)
	assert.True(t, again.HasDrift())
}

type flakyEngine struct {
	products []id.ID
	fail     id.ID
}

func (e *flakyEngine) ProductsWithLiveStock(context.Context) ([]id.ID, error) {
	return e.products, nil
}

func (e *flakyEngine) RecalculateWAC(_ context.Context, productID id.ID) (*inventory.WACRecalculation, error) {
	if productID == e.fail {
		return nil, errors.New("boom")
	}
	return &inventory.WACRecalculation{ProductID: productID, Previous: types.Zero(), New: types.Zero()}, nil
}

func TestWACAuditJob_ContinuesPastFailures(t *testing.T) {
	bad := id.New()
	engine := &flakyEngine{products: []id.ID{id.New(), bad, id.New()}, fail: bad}
	job := jobs.NewWACAuditJob(engine, newDriftRecorder(), nil, logger.NewNop())

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Failed)
}

func TestWACAuditJob_Handle(t *testing.T) {
	only := id.New()
	other := id.New()
	engine := &flakyEngine{products: []id.ID{other}}
	rec := newDriftRecorder()
	lock := &fakeLock{}
	job := jobs.NewWACAuditJob(engine, rec, lock, logger.NewNop())

	task, err := jobs.NewWACAuditTask(jobs.WACAuditPayload{ProductIDs: []string{only.String()}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, []string{jobs.TaskWACAudit}, lock.calls)
	assert.Contains(t, rec.drifts, only)
	assert.NotContains(t, rec.drifts, other)
}

func TestWACAuditJob_HandleSkipsWhenLocked(t *testing.T) {
	rec := newDriftRecorder()
	job := jobs.NewWACAuditJob(&flakyEngine{products: []id.ID{id.New()}}, rec, &fakeLock{busy: true}, logger.NewNop())

	task, err := jobs.NewWACAuditTask(jobs.WACAuditPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Empty(t, rec.drifts)
}

func TestWACAuditJob_HandleBadPayload(t *testing.T) {
	job := jobs.NewWACAuditJob(&flakyEngine{}, newDriftRecorder(), nil, logger.NewNop())

	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskWACAudit, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(jobs.WACAuditPayload{ProductIDs: []string{"nope"}})
	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskWACAudit, body))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
