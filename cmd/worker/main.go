package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/blockgraph/service/config"
	"github.com/brojonat/blockgraph/service/metrics"
	natspkg "github.com/brojonat/blockgraph/service/nats"
	"github.com/brojonat/blockgraph/service/solana"
	"github.com/brojonat/blockgraph/service/temporal"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	// Cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	logger.Info("Prometheus metrics collector initialized")

	// Initialize Solana RPC client
	endpoint, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		logger.Error("failed to select RPC endpoint", "error", err)
		os.Exit(1)
	}
	label := solana.EndpointLabel(endpoint)
	solanaClient := solana.NewClient(
		solana.NewRPCClient(endpoint),
		label,
		metricsCollector,
		logger,
		solana.WithCommitment(rpc.CommitmentType(cfg.SolanaCommitment)),
		solana.WithMaxAttempts(cfg.RPCMaxAttempts),
		solana.WithTimeout(cfg.RPCTimeout),
	)
	logger.Info("initialized solana RPC client",
		"endpoint", label,
		"total_endpoints", len(cfg.SolanaRPCURLs),
		"commitment", cfg.SolanaCommitment,
	)

	// Initialize NATS publisher
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	// Initialize Temporal worker
	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Fetcher:           solanaClient,
		Publisher:         natsPublisher,
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Metrics HTTP server
	g.Go(func() error {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	// Temporal worker; stops once gCtx is done
	g.Go(func() error {
		return worker.Run(gCtx)
	})

	logger.Info("temporal worker initialized, all dependencies ready",
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"metrics_addr", cfg.MetricsAddr,
	)

	if err := g.Wait(); err != nil {
		logger.Error("worker exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
