package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/blockgraph/service/filter"
	"github.com/brojonat/blockgraph/service/metrics"
	"github.com/brojonat/blockgraph/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	block     *solana.Block
	latest    uint64
	err       error
	slotErr   error
	requested []uint64
}

func (m *mockFetcher) GetBlock(ctx context.Context, slot uint64) (*solana.Block, error) {
	m.requested = append(m.requested, slot)
	if m.err != nil {
		return nil, m.err
	}
	b := *m.block
	b.Slot = slot
	return &b, nil
}

func (m *mockFetcher) GetLatestSlot(ctx context.Context) (uint64, error) {
	if m.slotErr != nil {
		return 0, m.slotErr
	}
	return m.latest, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	acctA = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	acctB = solanago.MustPublicKeyFromBase58("58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2")
)

func txn(index int, fee uint64, writes, reads []solanago.PublicKey) *solana.BlockTransaction {
	return &solana.BlockTransaction{
		Index:         index,
		Signatures:    []string{"sig" + string(rune('a'+index))},
		Fee:           fee,
		ComputeUnits:  uint64(1000 * (index + 1)),
		WriteAccounts: writes,
		ReadAccounts:  reads,
	}
}

func keys(k ...solanago.PublicKey) []solanago.PublicKey { return k }

// testBlock: 0 writes A, 1 is a vote, 2 reads A, 3 writes A, 4 writes B.
func testBlock() *solana.Block {
	return &solana.Block{
		Slot:      100,
		Blockhash: "hash",
		Transactions: []*solana.BlockTransaction{
			txn(0, 5000, keys(acctA), nil),
			txn(1, 5000, keys(acctB), keys(solanago.VoteProgramID)),
			txn(2, 7000, nil, keys(acctA)),
			txn(3, 5000, keys(acctA), nil),
			txn(4, 9000, keys(acctB), nil),
		},
	}
}

func TestAnalyze(t *testing.T) {
	fetcher := &mockFetcher{block: testBlock()}
	a := New(fetcher, nil, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())

	res, err := a.Analyze(context.Background(), Request{Slot: 100})
	require.NoError(t, err)

	assert.Equal(t, uint64(100), res.Slot)
	assert.Equal(t, "hash", res.Blockhash)

	s := res.Stats
	assert.Equal(t, 5, s.Transactions)
	assert.Equal(t, 4, s.Included)
	assert.Equal(t, 1, s.Excluded)
	assert.Equal(t, map[string]int{filter.ReasonVote: 1}, s.ExcludedByReason)
	assert.Equal(t, 2, s.Resources)
	assert.Equal(t, 3, s.Edges) // 0->2, 0->3, 2->3
	assert.Equal(t, 2, s.ResolvingEdges)
	assert.Equal(t, 2, s.KeptEdges)
	assert.Equal(t, 3, s.Waves)
	assert.Equal(t, 2, s.MaxWaveWidth)

	// The vote never becomes a node.
	nodes := res.Document.Graph.Nodes
	require.Len(t, nodes, 4)
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"0", "4", "2", "3"}, ids)
	assert.Equal(t, 1, nodes[1].Metadata.Depth)
	assert.Equal(t, uint64(9000), nodes[1].Metadata.Fee)
	assert.Equal(t, uint64(5000), nodes[1].Metadata.Compute)
	assert.Equal(t, "sige", nodes[1].Metadata.Signature)

	assert.Equal(t, []WaveSummary{
		{Depth: 1, Transactions: 2, Fee: 14000, Compute: 6000},
		{Depth: 2, Transactions: 1, Fee: 7000, Compute: 3000},
		{Depth: 3, Transactions: 1, Fee: 5000, Compute: 4000},
	}, res.Waves)
}

func TestAnalyze_Verbose(t *testing.T) {
	a := New(&mockFetcher{block: testBlock()}, nil, nil, testLogger())

	res, err := a.Analyze(context.Background(), Request{Slot: 100, Verbose: true})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.KeptEdges)
	assert.Len(t, res.Document.Graph.Edges, 3)
}

func TestAnalyze_LatestSlot(t *testing.T) {
	fetcher := &mockFetcher{block: testBlock(), latest: 777}
	a := New(fetcher, nil, nil, testLogger())

	res, err := a.Analyze(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, []uint64{777}, fetcher.requested)
	assert.Equal(t, uint64(777), res.Slot)
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("fetch failure", func(t *testing.T) {
		a := New(&mockFetcher{err: errors.New("slot skipped")}, nil, nil, testLogger())

		_, err := a.Analyze(context.Background(), Request{Slot: 5})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fetch block")
	})

	t.Run("latest slot failure", func(t *testing.T) {
		a := New(&mockFetcher{slotErr: errors.New("down")}, nil, nil, testLogger())

		_, err := a.Analyze(context.Background(), Request{})
		assert.ErrorContains(t, err, "failed to resolve latest slot")
	})

	t.Run("bad priority", func(t *testing.T) {
		a := New(&mockFetcher{block: testBlock()}, nil, nil, testLogger())

		_, err := a.Analyze(context.Background(), Request{Slot: 5, Priority: "random"})
		assert.ErrorContains(t, err, "invalid priority")
	})
}

func TestAnalyzeBlock_FeePriority(t *testing.T) {
	// Three independent transactions pop in one wave, highest fee first.
	block := &solana.Block{Slot: 1, Transactions: []*solana.BlockTransaction{
		txn(0, 100, nil, nil),
		txn(1, 300, nil, nil),
		txn(2, 300, nil, nil),
		txn(3, 200, nil, nil),
	}}
	a := New(&mockFetcher{}, nil, nil, testLogger())

	res, err := a.AnalyzeBlock(context.Background(), block, Request{Priority: PriorityFee})
	require.NoError(t, err)

	var ids []string
	for _, n := range res.Document.Graph.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "0"}, ids)
	assert.Equal(t, 1, res.Stats.Waves)
}

func TestAnalyzeBlock_JQExclusion(t *testing.T) {
	f, err := filter.New(filter.Options{ExcludeJQ: []string{`.fee >= 9000`}}, testLogger())
	require.NoError(t, err)
	a := New(&mockFetcher{}, f, nil, testLogger())

	res, err := a.AnalyzeBlock(context.Background(), testBlock(), Request{})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{filter.ReasonVote: 1, filter.ReasonJQ: 1}, res.Stats.ExcludedByReason)
	assert.Equal(t, 3, res.Stats.Included)
}

func TestAnalyzeBlock_Deterministic(t *testing.T) {
	a := New(&mockFetcher{}, nil, nil, testLogger())

	first, err := a.AnalyzeBlock(context.Background(), testBlock(), Request{Verbose: true})
	require.NoError(t, err)
	second, err := a.AnalyzeBlock(context.Background(), testBlock(), Request{Verbose: true})
	require.NoError(t, err)

	assert.Equal(t, first.Document, second.Document)
}

func TestAnalyzeBlock_EmptyBlock(t *testing.T) {
	a := New(&mockFetcher{}, nil, nil, testLogger())

	res, err := a.AnalyzeBlock(context.Background(), &solana.Block{Slot: 9}, Request{})
	require.NoError(t, err)

	assert.Empty(t, res.Document.Graph.Nodes)
	assert.Empty(t, res.Document.Graph.Edges)
	assert.Zero(t, res.Stats.Waves)
	assert.Empty(t, res.Waves)
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in       string
		expected Priority
		wantErr  bool
	}{
		{"", PriorityIndex, false},
		{"index", PriorityIndex, false},
		{"fee", PriorityFee, false},
		{"FEE", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.expected, got)
	}
}
