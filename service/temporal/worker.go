package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/blockgraph/service/analyzer"
	"github.com/brojonat/blockgraph/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Fetcher   analyzer.BlockFetcher
	Publisher PublisherInterface // Optional: if nil, PublishGraph fails
	Metrics   *metrics.Metrics   // Optional: if nil, no metrics will be recorded
	Logger    *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	registerAll(w, NewActivities(config.Fetcher, config.Publisher, config.Metrics, logger))
	logger.Info("registered workflow and activities",
		"workflow", "AnalyzeBlockWorkflow",
		"activities", []string{"FetchBlock", "BuildGraph", "PublishGraph"},
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// registry is the part of worker.Worker used for registration.
type registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// registerAll registers the workflow and its activities. Activities are
// registered by name, matching the ExecuteActivity calls in the workflow.
func registerAll(r registry, activities *Activities) {
	r.RegisterWorkflow(AnalyzeBlockWorkflow)
	r.RegisterActivity(activities.FetchBlock)
	r.RegisterActivity(activities.BuildGraph)
	r.RegisterActivity(activities.PublishGraph)
}

// Run processes workflows and activities until ctx is done, then stops the
// worker and closes its client.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		w.logger.Error("failed to start worker", "error", err)
		w.client.Close()
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()
	w.Stop()
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
