package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"stockledger/pkg/logger"
)

// Relay drains the outbox.
type Relay interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// OutboxRelayJob delivers pending events, then parks exhausted ones.
type OutboxRelayJob struct {
	relay Relay
	lock  Exclusive
	log   *logger.Logger
}

// NewOutboxRelayJob creates the job. lock may be nil.
func NewOutboxRelayJob(relay Relay, lock Exclusive, log *logger.Logger) *OutboxRelayJob {
	return &OutboxRelayJob{relay: relay, lock: lock, log: log.WithComponent("outbox_relay")}
}

// Handle is the asynq handler for TaskOutboxRelay.
func (j *OutboxRelayJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j.lock == nil {
		return j.drain(ctx)
	}
	_, err := j.lock.RunExclusive(ctx, TaskOutboxRelay, time.Minute, j.drain)
	return err
}

// drain keeps processing while batches come back non-empty.
func (j *OutboxRelayJob) drain(ctx context.Context) error {
	total := 0
	for {
		n, err := j.relay.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		total += n
		if n == 0 || ctx.Err() != nil {
			break
		}
	}

	moved, err := j.relay.MoveToDLQ(ctx)
	if err != nil {
		return err
	}
	if total > 0 || moved > 0 {
		j.log.Infow("outbox drained", "published", total, "dead_lettered", moved)
	}
	return nil
}
