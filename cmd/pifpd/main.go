package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pifp-labs/pifp-ledger/cmd/pifpd/cli"
	"github.com/pifp-labs/pifp-ledger/internal/app"
	"github.com/pifp-labs/pifp-ledger/internal/assets"
	"github.com/pifp-labs/pifp-ledger/internal/auth"
	"github.com/pifp-labs/pifp-ledger/internal/kv"
	"github.com/pifp-labs/pifp-ledger/internal/ledger"
	ledgerhttp "github.com/pifp-labs/pifp-ledger/internal/ledger/http"
	"github.com/pifp-labs/pifp-ledger/internal/notify"
	"github.com/pifp-labs/pifp-ledger/internal/observability"
	"github.com/pifp-labs/pifp-ledger/internal/platform/cache"
	"github.com/pifp-labs/pifp-ledger/internal/platform/db"
	"github.com/pifp-labs/pifp-ledger/internal/rbac"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
	"github.com/pifp-labs/pifp-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCLI(ctx, cfg, os.Args[2:]); err != nil {
			slog.Default().Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	store := kv.NewPostgres(dbpool)
	registry := rbac.NewRegistry(store)
	projects := ledger.NewStore(store)
	assetLedger := assets.NewPostgres(dbpool)
	outbox := notify.NewOutbox(dbpool)

	metrics := observability.NewMetrics()
	opsMetrics := observability.NewOpsMetrics(metrics.Registerer())

	service := ledger.NewService(ledger.ServiceConfig{
		Roles:   registry,
		Store:   projects,
		Assets:  assetLedger,
		Sink:    outbox,
		Logger:  logger,
		Metrics: opsMetrics,
		Escrow:  shared.Address(cfg.EscrowAddress),
	})

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)

	ledgerHandler := ledgerhttp.NewHandler(logger, service)
	adminHandler := ledgerhttp.NewAdminHandler(logger, service, authService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: ledgerHandler,
		AdminHandler:  adminHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCLI handles `pifpd jobs trigger <name>` and `pifpd jobs inspect`.
func runJobsCLI(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: pifpd jobs trigger <name> | pifpd jobs inspect")
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jc.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: pifpd jobs trigger <name>")
		}
		info, err := jc.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "inspect":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}
