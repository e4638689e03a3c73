package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifyRelay drains the notification outbox into the event stream.
	TaskTypeNotifyRelay = "notify:relay"
	// TaskTypeKVSweep removes expired ledger entries from the Postgres store.
	TaskTypeKVSweep = "kv:sweep"
)

// NotifyRelayPayload bounds a single relay run.
type NotifyRelayPayload struct {
	BatchSize int32 `json:"batch_size"`
}

// NewNotifyRelayTask constructs an Asynq task for the outbox relay.
func NewNotifyRelayTask(payload NotifyRelayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyRelay, data), nil
}

// NewKVSweepTask constructs an Asynq task for the expired-entry sweep.
func NewKVSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeKVSweep, nil)
}
