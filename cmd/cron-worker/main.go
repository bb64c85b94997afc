package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/salesdesk-backend/internal/cron"
	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/backoff"
	"github.com/angelmondragon/salesdesk-backend/pkg/config"
	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/metrics"
	"github.com/angelmondragon/salesdesk-backend/pkg/migrate"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
	"github.com/angelmondragon/salesdesk-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	intakeMetrics := metrics.NewIntakeMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledger, err := stock.NewLedger(stock.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock ledger", err)
		os.Exit(1)
	}
	saleStore, err := sales.NewStore(sales.NewRepository(dbClient.DB()), emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sale store", err)
		os.Exit(1)
	}
	reconLog, err := reconciliation.NewLog(reconciliation.NewRepository(dbClient.DB()), emitter, intakeMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation log", err)
		os.Exit(1)
	}
	saleLocker, err := reconciliation.NewRedisLocker(redisClient, cfg.Reconciliation.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation lock", err)
		os.Exit(1)
	}
	retrier, err := reconciliation.NewRetrier(reconciliation.RetrierParams{
		Log:     reconLog,
		Ledger:  ledger,
		Sales:   saleStore,
		Locker:  saleLocker,
		Policy:  backoff.FromIntakeConfig(cfg.Intake),
		Metrics: intakeMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation retrier", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReconciliationSweepJob(cron.ReconciliationSweepJobParams{
		Logger:    logg,
		Retrier:   retrier,
		BatchSize: cfg.Reconciliation.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation sweep job", err)
		os.Exit(1)
	}
	recoveryJob, err := cron.NewStockRecoveryJob(cron.StockRecoveryJobParams{
		Logger:      logg,
		Recoverer:   retrier,
		BatchSize:   cfg.Reconciliation.BatchSize,
		SettleGrace: cfg.Reconciliation.SettleGrace,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stock recovery job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	registry, err := cron.NewRegistry(sweepJob, recoveryJob, retentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	cycleLock, err := cron.NewRedisLock(
		redislock.New(redisClient.Raw()),
		redisClient.CronLockKey(cfg.App.Env),
		cfg.Reconciliation.SweepInterval,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       cycleLock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Reconciliation.SweepInterval,
		JobTimeout: cfg.Reconciliation.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
