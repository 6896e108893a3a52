// Package jobs runs the worker's periodic tasks on asynq: the weighted
// average cost drift audit and the outbox relay.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the only queue the worker consumes.
	QueueDefault = "default"

	// TaskWACAudit compares ledger and batch-derived average costs.
	TaskWACAudit = "inventory:wac_audit"

	// TaskOutboxRelay drains sys_outbox to the broker.
	TaskOutboxRelay = "outbox:relay"
)

// WACAuditPayload optionally restricts the audit to some products.
type WACAuditPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	ProductIDs   []string  `json:"product_ids,omitempty"`
}

// NewWACAuditTask builds a drift audit task.
func NewWACAuditTask(payload WACAuditPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWACAudit, body, asynq.Queue(QueueDefault)), nil
}

// NewOutboxRelayTask builds an outbox relay task. It carries no payload.
func NewOutboxRelayTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxRelay, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}
