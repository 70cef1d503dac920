// Package analyzer runs a block through the conflict-graph scheduler and
// produces the exported document with summary statistics.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/blockgraph/service/filter"
	"github.com/brojonat/blockgraph/service/graphia"
	"github.com/brojonat/blockgraph/service/metrics"
	"github.com/brojonat/blockgraph/service/priograph"
	"github.com/brojonat/blockgraph/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// BlockFetcher is the subset of the Solana client the analyzer needs.
type BlockFetcher interface {
	GetBlock(ctx context.Context, slot uint64) (*solana.Block, error)
	GetLatestSlot(ctx context.Context) (uint64, error)
}

// Priority selects the pop order within a wave.
type Priority string

const (
	PriorityIndex Priority = "index" // ascending block index
	PriorityFee   Priority = "fee"   // higher fee first, ties by block index
)

// ParsePriority validates a priority name. The empty string means index.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "", PriorityIndex:
		return PriorityIndex, nil
	case PriorityFee:
		return PriorityFee, nil
	default:
		return "", fmt.Errorf("invalid priority %q (must be index or fee)", s)
	}
}

// Request describes one analysis. Slot 0 means the latest slot.
type Request struct {
	Slot     uint64   `json:"slot"`
	Verbose  bool     `json:"verbose"`
	Priority Priority `json:"priority"`
}

// Stats summarizes one analyzed block.
type Stats struct {
	Transactions     int            `json:"transactions"`
	Included         int            `json:"included"`
	Excluded         int            `json:"excluded"`
	ExcludedByReason map[string]int `json:"excluded_by_reason,omitempty"`
	Resources        int            `json:"resources"`
	Edges            int            `json:"edges"`
	ResolvingEdges   int            `json:"resolving_edges"`
	KeptEdges        int            `json:"kept_edges"`
	Waves            int            `json:"waves"`
	MaxWaveWidth     int            `json:"max_wave_width"`
	Duration         time.Duration  `json:"duration"`
}

// WaveSummary aggregates the transactions of one wave.
type WaveSummary struct {
	Depth        int    `json:"depth"`
	Transactions int    `json:"transactions"`
	Fee          uint64 `json:"fee"`
	Compute      uint64 `json:"compute"`
}

// Result is the outcome of one analysis.
type Result struct {
	Slot      uint64            `json:"slot"`
	Blockhash string            `json:"blockhash"`
	Document  *graphia.Document `json:"document"`
	Stats     Stats             `json:"stats"`
	Waves     []WaveSummary     `json:"waves"`
}

// Analyzer wires the block fetcher, the relevance filter and the scheduler.
type Analyzer struct {
	fetcher BlockFetcher
	filter  *filter.Filter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Analyzer. A nil filter excludes votes only.
// If metrics is nil, no metrics will be recorded.
func New(fetcher BlockFetcher, f *filter.Filter, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	if f == nil {
		f, _ = filter.New(filter.Options{}, logger)
	}
	return &Analyzer{
		fetcher: fetcher,
		filter:  f,
		metrics: m,
		logger:  logger,
	}
}

// Analyze fetches the requested block and runs AnalyzeBlock on it.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	slot := req.Slot
	if slot == 0 {
		latest, err := a.fetcher.GetLatestSlot(ctx)
		if err != nil {
			a.recordBlock(0, err)
			return nil, fmt.Errorf("failed to resolve latest slot: %w", err)
		}
		slot = latest
		a.logger.InfoContext(ctx, "resolved latest slot", "slot", slot)
	}

	start := time.Now()
	block, err := a.fetcher.GetBlock(ctx, slot)
	if a.metrics != nil {
		a.metrics.RecordStageDuration("fetch", time.Since(start).Seconds())
	}
	if err != nil {
		a.recordBlock(slot, err)
		return nil, fmt.Errorf("failed to fetch block: %w", err)
	}

	return a.AnalyzeBlock(ctx, block, req)
}

// AnalyzeBlock builds the conflict graph of an already fetched block, drains
// it and renders the document. Transactions enter the graph in block order.
func (a *Analyzer) AnalyzeBlock(ctx context.Context, block *solana.Block, req Request) (*Result, error) {
	start := time.Now()

	priority, err := ParsePriority(string(req.Priority))
	if err != nil {
		a.recordBlock(block.Slot, err)
		return nil, err
	}

	byID := make(map[priograph.TxID]*solana.BlockTransaction, len(block.Transactions))
	for _, txn := range block.Transactions {
		byID[priograph.TxID(txn.Index)] = txn
	}

	var opts []priograph.Option
	if priority == PriorityFee {
		opts = append(opts, priograph.WithPriority(func(id priograph.TxID) uint64 {
			return ^byID[id].Fee
		}))
	}

	stats := Stats{Transactions: len(block.Transactions)}

	buildDone := metrics.Timer(time.Now(), a.stage("build"))
	g := priograph.New[solanago.PublicKey](opts...)
	for _, txn := range block.Transactions {
		if reason, excluded := a.filter.Exclude(txn); excluded {
			stats.Excluded++
			if stats.ExcludedByReason == nil {
				stats.ExcludedByReason = make(map[string]int)
			}
			stats.ExcludedByReason[reason]++
			if a.metrics != nil {
				a.metrics.RecordTransactionExcluded(reason)
			}
			continue
		}
		g.Insert(priograph.TxID(txn.Index), accesses(txn))
		stats.Included++
	}
	stats.Resources = g.Resources()
	buildDone()

	drainDone := metrics.Timer(time.Now(), a.stage("drain"))
	schedule := g.Drain()
	drainDone()

	exportDone := metrics.Timer(time.Now(), a.stage("export"))
	doc := graphia.Build(schedule, req.Verbose, func(id priograph.TxID) graphia.NodeMetadata {
		txn := byID[id]
		return graphia.NodeMetadata{
			Signature:     txn.Signature(),
			NumSignatures: len(txn.Signatures),
			Fee:           txn.Fee,
			Compute:       txn.ComputeUnits,
		}
	})
	exportDone()

	stats.Edges = len(schedule.Observations)
	stats.ResolvingEdges = schedule.Resolving()
	stats.KeptEdges = len(doc.Graph.Edges)
	stats.Waves = schedule.MaxDepth()
	stats.MaxWaveWidth = schedule.MaxWidth()
	stats.Duration = time.Since(start)

	waves := make([]WaveSummary, len(schedule.Waves))
	widths := make([]int, len(schedule.Waves))
	for i, w := range schedule.Waves {
		ws := WaveSummary{Depth: w.Depth, Transactions: len(w.Nodes)}
		for _, id := range w.Nodes {
			ws.Fee += byID[id].Fee
			ws.Compute += byID[id].ComputeUnits
		}
		waves[i] = ws
		widths[i] = len(w.Nodes)
	}

	if a.metrics != nil {
		a.metrics.RecordTransactions(stats.Included, stats.Excluded)
		a.metrics.RecordGraphEdges(stats.ResolvingEdges, stats.Edges-stats.ResolvingEdges)
		a.metrics.RecordSchedule(widths)
	}
	a.recordBlock(block.Slot, nil)

	a.logger.InfoContext(ctx, "analyzed block",
		"slot", block.Slot,
		"transactions", stats.Transactions,
		"included", stats.Included,
		"excluded", stats.Excluded,
		"edges", stats.Edges,
		"kept_edges", stats.KeptEdges,
		"waves", stats.Waves,
		"max_wave_width", stats.MaxWaveWidth,
		"duration", stats.Duration,
	)

	return &Result{
		Slot:      block.Slot,
		Blockhash: block.Blockhash,
		Document:  doc,
		Stats:     stats,
		Waves:     waves,
	}, nil
}

// accesses lists writes before reads, each in account order.
func accesses(txn *solana.BlockTransaction) []priograph.Access[solanago.PublicKey] {
	out := make([]priograph.Access[solanago.PublicKey], 0, len(txn.WriteAccounts)+len(txn.ReadAccounts))
	for _, key := range txn.WriteAccounts {
		out = append(out, priograph.Access[solanago.PublicKey]{Key: key, Kind: priograph.Write})
	}
	for _, key := range txn.ReadAccounts {
		out = append(out, priograph.Access[solanago.PublicKey]{Key: key, Kind: priograph.Read})
	}
	return out
}

func (a *Analyzer) stage(name string) func(float64) {
	return func(duration float64) {
		if a.metrics != nil {
			a.metrics.RecordStageDuration(name, duration)
		}
	}
}

func (a *Analyzer) recordBlock(slot uint64, err error) {
	if a.metrics != nil {
		a.metrics.RecordBlockAnalyzed(slot, err)
	}
}
