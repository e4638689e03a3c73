package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pifp-labs/pifp-ledger/internal/jobs"
	"github.com/pifp-labs/pifp-ledger/internal/kv"
)

// Sweeper removes ledger entries whose retention has lapsed.
type Sweeper struct {
	store   *kv.Postgres
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSweeper constructs a sweeper over the Postgres key-value store.
func NewSweeper(store *kv.Postgres, logger *slog.Logger, metrics *jobmetrics.Metrics) *Sweeper {
	return &Sweeper{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeKVSweep tasks.
func (s *Sweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := s.metrics.Track("kv_sweep")
	return tracker.End(s.run(ctx))
}

func (s *Sweeper) run(ctx context.Context) error {
	removed, err := s.store.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("jobs: kv sweep: %w", err)
	}
	if removed > 0 && s.logger != nil {
		s.logger.Info("swept expired entries", slog.Int64("removed", removed))
	}
	return nil
}
