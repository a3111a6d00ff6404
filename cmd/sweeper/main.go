// Command sweeper runs the checkout maintenance loops: expiring stale
// pending sessions, retrying interrupted post-payment work, and pruning
// the webhook dedup ledger.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"neonnova/internal/checkout"
	"neonnova/internal/config"
	"neonnova/internal/db"
	"neonnova/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sweeper exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessions := db.NewSessionRepository(pool)
	snapshots := db.NewSnapshotRepository(pool)
	carts := db.NewCartRepository(pool)
	orders := db.NewOrderRepository(pool)

	metrics := buildMetrics(ctx, cfg)
	coordinator := checkout.NewPostPaymentCoordinator(snapshots, orders, carts, sessions, slog.Default())
	sweeper := scheduler.NewSweeper(sessions, coordinator, metrics, cfg.Sweeper, slog.Default())

	slog.Info("sweeper started", "interval", cfg.Sweeper.SweepInterval.String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Sweeper.SweepInterval)
		defer ticker.Stop()

		sweeper.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				sweeper.RunOnce(ctx)
			}
		}
	})

	err = g.Wait()
	slog.Info("sweeper stopped")
	return err
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func buildMetrics(ctx context.Context, cfg *config.Config) checkout.Metrics {
	if !cfg.Observability.EnableMetrics {
		return checkout.NoopMetrics{}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Warn("metrics disabled, could not load aws config", "error", err)
		return checkout.NoopMetrics{}
	}
	return checkout.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		slog.Default(),
	)
}
