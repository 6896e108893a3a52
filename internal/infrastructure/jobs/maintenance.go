package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"stockledger/pkg/logger"
)

// TaskIdempotencyCleanup drops expired idempotency keys.
const TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// Cleaner removes expired rows.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CleanupHandler adapts a Cleaner to an asynq handler.
func CleanupHandler(c Cleaner, log *logger.Logger) asynq.HandlerFunc {
	log = log.WithComponent("idempotency_cleanup")
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := c.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Infow("expired idempotency keys removed", "count", n)
		}
		return nil
	}
}
