package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/infrastructure/jobs"
	"stockledger/pkg/logger"
)

type scriptedRelay struct {
	batches []int
	err     error
	calls   int
	dlq     int
}

func (r *scriptedRelay) ProcessBatch(context.Context) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.calls >= len(r.batches) {
		r.calls++
		return 0, nil
	}
	n := r.batches[r.calls]
	r.calls++
	return n, nil
}

func (r *scriptedRelay) MoveToDLQ(context.Context) (int64, error) {
	r.dlq++
	return 0, nil
}

func TestOutboxRelayJob_DrainsUntilEmpty(t *testing.T) {
	relay := &scriptedRelay{batches: []int{100, 100, 7}}
	lock := &fakeLock{}
	job := jobs.NewOutboxRelayJob(relay, lock, logger.NewNop())

	require.NoError(t, job.Handle(context.Background(), jobs.NewOutboxRelayTask()))
	assert.Equal(t, 4, relay.calls)
	assert.Equal(t, 1, relay.dlq)
	assert.Equal(t, []string{jobs.TaskOutboxRelay}, lock.calls)
}

func TestOutboxRelayJob_StopsOnError(t *testing.T) {
	relay := &scriptedRelay{err: errors.New("db down")}
	job := jobs.NewOutboxRelayJob(relay, nil, logger.NewNop())

	err := job.Handle(context.Background(), jobs.NewOutboxRelayTask())
	assert.EqualError(t, err, "db down")
	assert.Zero(t, relay.dlq)
}

func TestOutboxRelayJob_SkipsWhenLocked(t *testing.T) {
	relay := &scriptedRelay{batches: []int{1}}
	job := jobs.NewOutboxRelayJob(relay, &fakeLock{busy: true}, logger.NewNop())

	require.NoError(t, job.Handle(context.Background(), jobs.NewOutboxRelayTask()))
	assert.Zero(t, relay.calls)
}
