// Package lock provides Redis-backed mutual exclusion between worker
// instances, so the outbox relay and the drift audit run on one node at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"stockledger/pkg/logger"
)

// Locker runs functions under named leases.
type Locker struct {
	client *redislock.Client
	prefix string
}

// New creates a locker over rdb.
func New(rdb *redis.Client) *Locker {
	return &Locker{client: redislock.New(rdb), prefix: "stockledger:lock:"}
}

// RunExclusive runs fn while holding the lease named key. When another
// holder has it, fn is skipped and ran is false. The lease is refreshed every
// ttl/2 and fn's context is cancelled if a refresh fails.
func (l *Locker) RunExclusive(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	lease, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		if relErr := lease.Release(context.Background()); relErr != nil && !errors.Is(relErr, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "release lock failed", "key", key, "error", relErr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go l.keepAlive(runCtx, cancel, lease, key, ttl, done)

	return true, fn(runCtx)
}

func (l *Locker) keepAlive(ctx context.Context, cancel context.CancelFunc, lease *redislock.Lock, key string, ttl time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Refresh(ctx, ttl, nil); err != nil {
				logger.Error(ctx, "lock lease lost", "key", key, "error", err)
				cancel()
				return
			}
		}
	}
}
