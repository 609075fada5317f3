package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/bankee/internal/config"
	"github.com/congo-pay/bankee/internal/infra"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/logging"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/notification"
	"github.com/congo-pay/bankee/internal/reconciler"
	"github.com/congo-pay/bankee/internal/routes"
	"github.com/congo-pay/bankee/internal/server"
	"github.com/congo-pay/bankee/internal/txlog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.AutoMigrate {
		if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	mongoClient, err := infra.NewMongoClient(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("disconnect mongo", "error", err)
		}
	}()

	logStore := txlog.NewMongoStore(mongoClient.Database(cfg.MongoDatabase), txlog.DefaultCollection)
	if err := logStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure log indexes: %w", err)
	}
	ledgerStore := ledger.NewPostgresStore(db, cfg.LedgerLockTimeout)

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	var notifier notification.Notifier = notification.NewLoggerNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafka := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		notifier = kafka
	}

	m := metrics.New()

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Mongo:    mongoClient,
		Cache:    cache,
		Logger:   logger,
		Metrics:  m,
		Notifier: notifier,
		Ledger:   ledgerStore,
		Log:      logStore,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	rec := reconciler.New(ledgerStore, logStore, reconciler.Config{
		Interval:  cfg.ReconcileInterval,
		Grace:     cfg.SettlementGrace,
		ClaimTTL:  cfg.ReconcileClaimTTL,
		BatchSize: cfg.ReconcileBatchSize,
	}, logger, notifier, m)
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case runErr = <-srvErrCh:
		if runErr != nil {
			runErr = fmt.Errorf("server: %w", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown server: %w", err))
	}
	// Cancel in-flight settlements; interrupted records are reclaimed later.
	stop()
	if err := rec.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stop reconciler: %w", err))
	}
	return runErr
}
