package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/salesdesk-backend/api/routes"
	"github.com/angelmondragon/salesdesk-backend/internal/customers"
	"github.com/angelmondragon/salesdesk-backend/internal/intake"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	conn := dbClient.DB()
	intakeMetrics := metrics.NewIntakeMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	policy := backoff.FromIntakeConfig(cfg.Intake)

	customerSvc, err := customers.NewService(customers.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}
	ledger, err := stock.NewLedger(stock.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock ledger", err)
		os.Exit(1)
	}
	saleStore, err := sales.NewStore(sales.NewRepository(conn), emitter, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sale store", err)
		os.Exit(1)
	}
	reconLog, err := reconciliation.NewLog(reconciliation.NewRepository(conn), emitter, intakeMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation log", err)
		os.Exit(1)
	}

	coordinator, err := intake.NewCoordinator(intake.Params{
		Customers:      customerSvc,
		Stock:          ledger,
		Sales:          saleStore,
		Reconciliation: reconLog,
		Policy:         policy,
		StepTimeout:    cfg.Intake.StepTimeout,
		HoldTTL:        cfg.Intake.HoldTTL,
		Metrics:        intakeMetrics,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sale intake coordinator", err)
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
		Policy:  policy,
		Metrics: intakeMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation retrier", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       prometheus.DefaultGatherer,
			Intake:         coordinator,
			Sales:          saleStore,
			Customers:      customerSvc,
			Stock:          ledger,
			Reconciliation: reconLog,
			Reconciler:     retrier,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
