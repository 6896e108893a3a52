package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/infrastructure/jobs"
	"stockledger/pkg/logger"
)

func TestNewMux_RoutesByType(t *testing.T) {
	var got []string
	record := func(name string) asynq.HandlerFunc {
		return func(context.Context, *asynq.Task) error {
			got = append(got, name)
			return nil
		}
	}
	mux := jobs.NewMux([]jobs.TaskHandler{
		{Type: jobs.TaskWACAudit, Handler: record("audit")},
		{Type: jobs.TaskOutboxRelay, Handler: record("relay")},
		{Type: "", Handler: record("ignored")},
		{Type: "no-handler"},
	})

	require.NoError(t, mux.ProcessTask(context.Background(), jobs.NewOutboxRelayTask()))
	task, err := jobs.NewWACAuditTask(jobs.WACAuditPayload{})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))

	assert.Equal(t, []string{"relay", "audit"}, got)
	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("no-handler", nil)))
}

type cleanerFunc func(context.Context) (int64, error)

func (f cleanerFunc) CleanupExpired(ctx context.Context) (int64, error) { return f(ctx) }

func TestCleanupHandler(t *testing.T) {
	calls := 0
	h := jobs.CleanupHandler(cleanerFunc(func(context.Context) (int64, error) {
		calls++
		return 3, nil
	}), logger.NewNop())
	require.NoError(t, h(context.Background(), jobs.NewIdempotencyCleanupTask()))
	assert.Equal(t, 1, calls)

	failing := jobs.CleanupHandler(cleanerFunc(func(context.Context) (int64, error) {
		return 0, errors.New("db gone")
	}), logger.NewNop())
	assert.Error(t, failing(context.Background(), jobs.NewIdempotencyCleanupTask()))
}
