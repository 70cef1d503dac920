package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/blockgraph/service/analyzer"
	"github.com/brojonat/blockgraph/service/filter"
	"github.com/brojonat/blockgraph/service/metrics"
	natspkg "github.com/brojonat/blockgraph/service/nats"
	"github.com/brojonat/blockgraph/service/solana"
)

// AnalyzeBlockInput contains the input parameters for analyzing one block.
type AnalyzeBlockInput struct {
	Slot         uint64   `json:"slot"` // 0 resolves the latest slot
	Verbose      bool     `json:"verbose"`
	Priority     string   `json:"priority"` // "index" or "fee"
	ExcludeJQ    []string `json:"exclude_jq,omitempty"`
	IncludeVotes bool     `json:"include_votes"`
	Publish      bool     `json:"publish"`
}

// AnalyzeBlockResult contains the result of analyzing a block.
type AnalyzeBlockResult struct {
	Slot      uint64         `json:"slot"`
	Stats     analyzer.Stats `json:"stats"`
	Published bool           `json:"published"`
	Subject   string         `json:"subject,omitempty"`
	Error     *string        `json:"error,omitempty"`
}

// FetchBlockInput contains parameters for the FetchBlock activity.
type FetchBlockInput struct {
	Slot uint64 `json:"slot"`
}

// FetchBlockResult contains the fetched block.
type FetchBlockResult struct {
	Block *solana.Block `json:"block"`
}

// BuildGraphInput contains parameters for the BuildGraph activity.
type BuildGraphInput struct {
	Block        *solana.Block `json:"block"`
	Verbose      bool          `json:"verbose"`
	Priority     string        `json:"priority"`
	ExcludeJQ    []string      `json:"exclude_jq,omitempty"`
	IncludeVotes bool          `json:"include_votes"`
}

// BuildGraphResult contains the analysis of the block.
type BuildGraphResult struct {
	Result *analyzer.Result `json:"result"`
}

// PublishGraphInput contains parameters for the PublishGraph activity.
type PublishGraphInput struct {
	Result *analyzer.Result `json:"result"`
}

// PublishGraphResult contains the subject the graph was published on.
type PublishGraphResult struct {
	Subject string `json:"subject"`
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishGraph(ctx context.Context, event *natspkg.GraphEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	fetcher   analyzer.BlockFetcher
	publisher PublisherInterface // nil disables PublishGraph
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	fetcher analyzer.BlockFetcher,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		fetcher:   fetcher,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// FetchBlock fetches a block from the Solana RPC. Slot 0 fetches the latest
// slot at the client's commitment.
func (a *Activities) FetchBlock(ctx context.Context, input FetchBlockInput) (result *FetchBlockResult, err error) {
	defer a.recordDuration("FetchBlock", time.Now(), &err)

	slot := input.Slot
	if slot == 0 {
		slot, err = a.fetcher.GetLatestSlot(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to resolve latest slot", "error", err)
			return nil, fmt.Errorf("failed to resolve latest slot: %w", err)
		}
	}

	block, err := a.fetcher.GetBlock(ctx, slot)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch block",
			"slot", slot,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch block: %w", err)
	}

	a.logger.InfoContext(ctx, "fetched block",
		"slot", block.Slot,
		"transactions", len(block.Transactions),
	)

	return &FetchBlockResult{Block: block}, nil
}

// BuildGraph runs the scheduler over an already fetched block.
func (a *Activities) BuildGraph(ctx context.Context, input BuildGraphInput) (result *BuildGraphResult, err error) {
	defer a.recordDuration("BuildGraph", time.Now(), &err)

	if input.Block == nil {
		return nil, fmt.Errorf("block is required")
	}

	f, err := filter.New(filter.Options{
		IncludeVotes: input.IncludeVotes,
		ExcludeJQ:    input.ExcludeJQ,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}

	res, err := analyzer.New(a.fetcher, f, a.metrics, a.logger).AnalyzeBlock(ctx, input.Block, analyzer.Request{
		Slot:     input.Block.Slot,
		Verbose:  input.Verbose,
		Priority: analyzer.Priority(input.Priority),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze block: %w", err)
	}

	return &BuildGraphResult{Result: res}, nil
}

// PublishGraph publishes an analysis result to NATS JetStream.
func (a *Activities) PublishGraph(ctx context.Context, input PublishGraphInput) (result *PublishGraphResult, err error) {
	defer a.recordDuration("PublishGraph", time.Now(), &err)

	if a.publisher == nil {
		return nil, fmt.Errorf("no NATS publisher configured")
	}
	if input.Result == nil {
		return nil, fmt.Errorf("result is required")
	}

	event := natspkg.FromResult(input.Result)
	if err := a.publisher.PublishGraph(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish graph",
			"slot", event.Slot,
			"error", err,
		)
		return nil, fmt.Errorf("failed to publish graph: %w", err)
	}

	subject := natspkg.Subject(event.Slot)
	a.logger.InfoContext(ctx, "published graph", "slot", event.Slot, "subject", subject)

	return &PublishGraphResult{Subject: subject}, nil
}

func (a *Activities) recordDuration(activity string, start time.Time, err *error) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, *err, time.Since(start).Seconds())
	}
}
