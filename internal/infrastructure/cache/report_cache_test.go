package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total string `json:"total"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCache(client, time.Minute), mr
}

func TestReportCache_BuildKeyTracksVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, "reports", "valuation", "all")
	require.NoError(t, err)
	assert.Equal(t, "reports:valuation:all:v1", key)

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "reports", "valuation", "all")
	require.NoError(t, err)
	assert.Equal(t, "reports:valuation:all:v2", key)
}

func TestReportCache_FetchJSON(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Total: "410", Count: 2}, nil
	}

	var first, second payload
	require.NoError(t, c.FetchJSON(ctx, "k", &first, loader))
	require.NoError(t, c.FetchJSON(ctx, "k", &second, loader))

	assert.Equal(t, 1, calls)
	assert.Equal(t, payload{Total: "410", Count: 2}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestReportCache_LoaderErrorIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("db down")

	var out payload
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestReportCache_RedisErrorsFallBackToLoader(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Total: "390", Count: 1}, nil
	}

	mr.SetError("LOADING dataset in memory")
	var out payload
	require.NoError(t, c.FetchJSON(ctx, "k", &out, loader))
	assert.Equal(t, payload{Total: "390", Count: 1}, out)
	assert.Equal(t, 1, calls)

	mr.SetError("")
	assert.False(t, mr.Exists("k"), "nothing is written while redis fails")
	require.NoError(t, c.FetchJSON(ctx, "k", &out, loader))
	assert.Equal(t, 2, calls)
	assert.True(t, mr.Exists("k"))
}

func TestReportCache_UnreachableRedis(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var out payload
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return payload{Count: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
}

func TestReportCache_UnreadableEntryIsReloaded(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("k", "{not json"))

	var out payload
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return payload{Count: 4}, nil
	}))
	assert.Equal(t, 4, out.Count)

	raw, err := mr.Get("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"","count":4}`, raw)
}

func TestReportCache_ConcurrentMissesShareLoader(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return payload{Count: 7}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]payload, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.FetchJSON(ctx, "shared", &results[i], loader))
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 7, r.Count)
	}
}

type countingBumper struct{ n atomic.Int32 }

func (b *countingBumper) Bump(context.Context) error {
	b.n.Add(1)
	return nil
}

func TestRunBumps_CollapsesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan struct{}, 1)
	b := &countingBumper{}
	done := make(chan struct{})
	go func() {
		runBumps(ctx, signals, 20*time.Millisecond, b)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		notify(signals)
	}
	require.Eventually(t, func() bool { return b.n.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, b.n.Load(), int32(2))

	cancel()
	<-done
}
