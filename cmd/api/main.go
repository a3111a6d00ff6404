// Command api runs the NeonNova checkout HTTP API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"neonnova/internal/api/handlers"
	"neonnova/internal/checkout"
	"neonnova/internal/config"
	"neonnova/internal/core"
	"neonnova/internal/db"
	"neonnova/internal/external"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited with error", "error", err)
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

	if err := db.Migrate(cfg.Database); err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sessions := db.NewSessionRepository(pool)
	snapshots := db.NewSnapshotRepository(pool)
	carts := db.NewCartRepository(pool)
	orders := db.NewOrderRepository(pool)
	profiles := db.NewProfileRepository(pool)

	metrics := buildMetrics(ctx, cfg)

	provider := external.NewProviderClient(
		&http.Client{Timeout: cfg.Provider.RequestTimeout},
		external.ProviderClientConfig{
			SecretKey:  cfg.Provider.SecretKey,
			BaseURL:    cfg.Provider.BaseURL,
			SuccessURL: cfg.Server.CheckoutSuccessURL,
			CancelURL:  cfg.Server.CheckoutCancelURL,
		},
	)

	snapshotter := checkout.NewCartSnapshotter(carts, cfg.Server.Currency)
	manager := checkout.NewManager(snapshotter, snapshots, sessions, profiles, provider, metrics, slog.Default())
	coordinator := checkout.NewPostPaymentCoordinator(snapshots, orders, carts, sessions, slog.Default())

	verifier := external.NewSignatureVerifier(cfg.Provider.SignatureTolerance)
	reconciler := checkout.NewReconciler(verifier, cfg.Provider.WebhookSecret, sessions, coordinator, metrics, slog.Default())

	server := core.NewServer(cfg.Server.Port, pool)
	handlers.NewCheckoutHandler(manager, slog.Default()).RegisterRoutes(server.Router())
	handlers.NewPaymentWebhookHandler(reconciler, slog.Default()).RegisterRoutes(server.Router())

	return server.Start(ctx)
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
