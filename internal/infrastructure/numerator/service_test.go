package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates sys_sequences for a single key: args are (key, n).
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
	err          error
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	if n, ok := args[1].(int64); ok {
		m.currentValue += n
	}
	return &mockRow{val: m.currentValue}
}

var period = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("RCPT")

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00002", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("RCPT")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00001", num)
	assert.Equal(t, int64(10), q.currentValue)

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00002", num)
	assert.Equal(t, 1, q.calls, "second number must come from the reserved range")

	for i := 0; i < 8; i++ {
		_, err = svc.GetNextNumber(ctx, cfg, opts, period)
		require.NoError(t, err)
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00011", num)
	assert.Equal(t, int64(20), q.currentValue)
}

func TestGetNextNumber_PropagatesQueryError(t *testing.T) {
	svc := New(&mockQuerier{err: errors.New("boom")})
	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("RCPT"), nil, period)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve sequence RCPT_2026")
}

func TestFormatNumber(t *testing.T) {
	cfg := corenumerator.Config{Prefix: "RC", PadWidth: 3}
	assert.Equal(t, "RC-007", formatNumber(cfg, period, 7))
	assert.Equal(t, "RC", buildKey(cfg, period))

	cfg.ResetPeriod = "month"
	assert.Equal(t, "RC_2026_03", buildKey(cfg, period))
}

func TestGetNextNumber_CachedRangeWaitsForCommit(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	cfg := corenumerator.DefaultConfig("RCPT")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	// Reserved inside a unit of work that never commits.
	rolledBack, _ := tx.WithCommitHooks(context.Background())
	num, err := svc.GetNextNumber(rolledBack, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00001", num)

	committed, hooks := tx.WithCommitHooks(context.Background())
	num, err = svc.GetNextNumber(committed, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls, "an uncommitted range is never served from memory")
	assert.Equal(t, "RCPT-2026-00011", num)

	hooks.Run(committed)
	num, err = svc.GetNextNumber(context.Background(), cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "RCPT-2026-00012", num)
	assert.Equal(t, 2, q.calls)
}
