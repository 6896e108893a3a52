package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/pkg/logger"
)

// StockChangedChannel is raised by the inv_transactions insert trigger with
// the product id as payload.
const StockChangedChannel = "stock_changed"

// Bumper invalidates a cache.
type Bumper interface {
	Bump(ctx context.Context) error
}

// Invalidator bumps the report cache whenever PostgreSQL reports a stock
// movement. Notifications arriving within the debounce window collapse into
// one bump.
type Invalidator struct {
	pool     *pgxpool.Pool
	cache    Bumper
	debounce time.Duration

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewInvalidator creates an invalidator. It does nothing until Start.
func NewInvalidator(pool *pgxpool.Pool, cache Bumper, debounce time.Duration) *Invalidator {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Invalidator{pool: pool, cache: cache, debounce: debounce}
}

// Start begins listening for NOTIFY events.
func (i *Invalidator) Start(ctx context.Context) {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()
	if i.started {
		return
	}
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.started = true

	signals := make(chan struct{}, 1)
	i.wg.Add(2)
	go i.listenLoop(signals)
	go i.bumpLoop(signals)
	logger.Info(i.ctx, "report cache invalidator started", "channel", StockChangedChannel)
}

// Stop gracefully stops the listener.
func (i *Invalidator) Stop() {
	i.lifecycleMu.Lock()
	if !i.started {
		i.lifecycleMu.Unlock()
		return
	}
	cancel := i.cancel
	i.started = false
	i.cancel = nil
	i.lifecycleMu.Unlock()

	cancel()
	i.wg.Wait()
	logger.Info(context.Background(), "report cache invalidator stopped")
}

// listenLoop holds a dedicated connection in LISTEN mode, reconnecting on failure.
func (i *Invalidator) listenLoop(signals chan<- struct{}) {
	defer i.wg.Done()

	for i.ctx.Err() == nil {
		conn, err := i.pool.Acquire(i.ctx)
		if err != nil {
			logger.Error(i.ctx, "failed to acquire connection for LISTEN", "error", err)
			sleep(i.ctx, time.Second)
			continue
		}

		if _, err := conn.Exec(i.ctx, "LISTEN "+StockChangedChannel); err != nil {
			logger.Error(i.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			sleep(i.ctx, time.Second)
			continue
		}

		i.waitForNotifications(conn, signals)
		conn.Release()
	}
}

func (i *Invalidator) waitForNotifications(conn *pgxpool.Conn, signals chan<- struct{}) {
	for {
		notification, err := conn.Conn().WaitForNotification(i.ctx)
		if err != nil {
			if i.ctx.Err() == nil {
				logger.Warn(i.ctx, "LISTEN connection lost", "error", err)
			}
			return
		}

		logger.Debug(i.ctx, "stock changed", "product_id", notification.Payload)
		notify(signals)
	}
}

// bumpLoop turns bursts of signals into single bumps.
func (i *Invalidator) bumpLoop(signals <-chan struct{}) {
	defer i.wg.Done()
	runBumps(i.ctx, signals, i.debounce, i.cache)
}

func runBumps(ctx context.Context, signals <-chan struct{}, debounce time.Duration, cache Bumper) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
		}

		sleep(ctx, debounce)
		if ctx.Err() != nil {
			return
		}
		if err := cache.Bump(ctx); err != nil {
			logger.Error(ctx, "report cache bump failed", "error", err)
		}
	}
}

// notify records a pending signal without blocking.
func notify(signals chan<- struct{}) {
	select {
	case signals <- struct{}{}:
	default:
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
