package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pifp-labs/pifp-ledger/internal/app"
	jobmetrics "github.com/pifp-labs/pifp-ledger/internal/jobs"
	"github.com/pifp-labs/pifp-ledger/internal/kv"
	"github.com/pifp-labs/pifp-ledger/internal/notify"
	"github.com/pifp-labs/pifp-ledger/internal/platform/cache"
	"github.com/pifp-labs/pifp-ledger/internal/platform/db"
	"github.com/pifp-labs/pifp-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	outbox := notify.NewOutbox(pool)
	stream := notify.NewStream(redisClient, cfg.EventStreamKey)
	relay := jobs.NewRelay(outbox, stream, logger, metrics)

	sweeper := jobs.NewSweeper(kv.NewPostgres(pool), logger, metrics)

	relayTask, err := jobs.NewNotifyRelayTask(jobs.NotifyRelayPayload{})
	if err != nil {
		logger.Error("build relay task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeNotifyRelay, Handler: relay.Handle},
			{Type: jobs.TaskTypeKVSweep, Handler: sweeper.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every " + cfg.RelayInterval.String(), Task: relayTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 * * * *", Task: jobs.NewKVSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
