package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pifp-labs/pifp-ledger/internal/jobs"
	"github.com/pifp-labs/pifp-ledger/internal/notify"
)

const defaultRelayBatch = 100

// PendingSource lists undelivered notifications and marks them delivered.
type PendingSource interface {
	Pending(ctx context.Context, limit int32) ([]notify.Notification, error)
	MarkDelivered(ctx context.Context, n notify.Notification) error
}

// StreamSink publishes notifications onto the event stream.
type StreamSink interface {
	Emit(ctx context.Context, n notify.Notification) error
}

// Relay moves durable outbox rows onto the Redis event stream.
type Relay struct {
	outbox  PendingSource
	stream  StreamSink
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewRelay constructs a relay between the outbox and the stream.
func NewRelay(outbox PendingSource, stream StreamSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *Relay {
	return &Relay{outbox: outbox, stream: stream, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeNotifyRelay tasks.
func (r *Relay) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NotifyRelayPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.BatchSize <= 0 {
		payload.BatchSize = defaultRelayBatch
	}
	tracker := r.metrics.Track("notify_relay")
	return tracker.End(r.run(ctx, payload.BatchSize))
}

func (r *Relay) run(ctx context.Context, batch int32) error {
	pending, err := r.outbox.Pending(ctx, batch)
	if err != nil {
		return fmt.Errorf("jobs: relay pending: %w", err)
	}
	for _, n := range pending {
		if err := r.stream.Emit(ctx, n); err != nil {
			return fmt.Errorf("jobs: relay emit: %w", err)
		}
		if err := r.outbox.MarkDelivered(ctx, n); err != nil {
			return fmt.Errorf("jobs: relay mark delivered: %w", err)
		}
		r.metrics.AddRelayed(string(n.Topic), 1)
	}
	if len(pending) > 0 && r.logger != nil {
		r.logger.Info("relayed notifications", slog.Int("count", len(pending)))
	}
	return nil
}
