package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketloader/internal/config"
	"marketloader/internal/coordinator"
	"marketloader/internal/events"
	"marketloader/internal/fetcher"
	"marketloader/internal/logging"
	"marketloader/internal/ratelimit"
	"marketloader/internal/report"
	"marketloader/internal/retry"
	"marketloader/internal/schedule"
	"marketloader/internal/storage"
	"marketloader/internal/symbols"
	"marketloader/internal/vci"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received interrupt signal, shutting down")
		cancel()
	}()

	summary, err := run(ctx, cfg, logger, time.Now(), os.Args[1:])
	if err != nil {
		logger.Error("market load failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
	if summary != nil && len(summary.Failed) > 0 {
		logger.Warn("market load finished with failures", "failed_count", len(summary.Failed))
	}
}

// run performs one ingestion run. Symbols given on the command line replace
// the configured symbol universe. A nil summary means the day was skipped.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, now time.Time, args []string) (*coordinator.Summary, error) {
	universe := args
	if len(universe) == 0 {
		var err error
		universe, err = symbols.Load(cfg.Symbols.File, cfg.Symbols.Exchanges...)
		if err != nil {
			return nil, err
		}
	}

	var kinds []fetcher.Kind
	if !cfg.Fetch.AutoPlan {
		var err error
		if kinds, err = cfg.Kinds(); err != nil {
			return nil, fmt.Errorf("invalid fetch kinds: %w", err)
		}
	}

	store, err := storage.Open(ctx, cfg.Database, storage.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	if cfg.Fetch.AutoPlan {
		hasData, err := store.HasData(ctx)
		if err != nil {
			return nil, err
		}
		plan := schedule.Plan(now, hasData)
		if plan.Skip {
			logger.Info("skipping run", "reason", plan.Reason, "date", now.Format("2006-01-02"))
			return nil, nil
		}
		logger.Info("fetch plan", "reason", plan.Reason, "kinds", plan.Kinds)
		kinds = plan.Kinds
	}

	limiter := ratelimit.New(cfg.Fetch.RateLimit, cfg.Provider.RequestsPerSecond)
	dispatcher := fetcher.NewDispatcher(
		vci.NewClient(cfg.Provider, logger),
		limiter,
		fetcher.WithLogger(logger),
		fetcher.WithIntradayPageSize(cfg.Fetch.IntradayPageSize),
		fetcher.WithFinancePeriod(cfg.Fetch.FinancePeriod),
	)

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseWait:    cfg.Retry.BaseWait,
		MinWait:     cfg.Retry.MinWait,
		MaxWait:     cfg.Retry.MaxWait,
		Retryable:   fetcher.IsThrottled,
		Logger:      logger,
	}

	coord := coordinator.New(coordinator.Config{
		BatchSize:  cfg.Fetch.BatchSize,
		Workers:    cfg.Fetch.Workers,
		MaxRounds:  cfg.Fetch.MaxRounds,
		BatchDelay: cfg.Fetch.BatchDelay,
		Kinds:      kinds,
	}, dispatcher, store, policy, logger)

	summary, runErr := coord.Run(ctx, universe)
	if summary == nil {
		return nil, runErr
	}

	var publisher report.Publisher
	if producer := events.NewProducer(cfg.Events.Brokers, cfg.Events.Topic); producer != nil {
		defer producer.Close()
		publisher = producer
	}

	reporter := report.New(cfg.Report.FailureLog, logger, publisher)
	if err := reporter.Report(context.WithoutCancel(ctx), summary); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return summary, runErr
}
