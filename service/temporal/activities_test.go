package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/blockgraph/service/analyzer"
	"github.com/brojonat/blockgraph/service/filter"
	"github.com/brojonat/blockgraph/service/metrics"
	natspkg "github.com/brojonat/blockgraph/service/nats"
	"github.com/brojonat/blockgraph/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock block fetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) GetBlock(ctx context.Context, slot uint64) (*solana.Block, error) {
	args := m.Called(ctx, slot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*solana.Block), args.Error(1)
}

func (m *MockFetcher) GetLatestSlot(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	acctA = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	acctB = solanago.MustPublicKeyFromBase58("58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2")
)

// testBlock: 0 and 1 write A, 2 writes B, 3 is a vote.
func testBlock(slot uint64) *solana.Block {
	return &solana.Block{
		Slot:      slot,
		Blockhash: "hash",
		Transactions: []*solana.BlockTransaction{
			{Index: 0, Signatures: []string{"sig0"}, Fee: 5000, ComputeUnits: 100, WriteAccounts: []solanago.PublicKey{acctA}},
			{Index: 1, Signatures: []string{"sig1"}, Fee: 8000, ComputeUnits: 200, WriteAccounts: []solanago.PublicKey{acctA}},
			{Index: 2, Signatures: []string{"sig2"}, Fee: 9000, ComputeUnits: 300, WriteAccounts: []solanago.PublicKey{acctB}},
			{Index: 3, Signatures: []string{"sig3"}, Fee: 5000, ReadAccounts: []solanago.PublicKey{solanago.VoteProgramID}},
		},
	}
}

func TestActivities_FetchBlock(t *testing.T) {
	tests := []struct {
		name          string
		input         FetchBlockInput
		setupMock     func(*MockFetcher)
		expectedError string
		expectedSlot  uint64
	}{
		{
			name:  "specific slot",
			input: FetchBlockInput{Slot: 42},
			setupMock: func(m *MockFetcher) {
				m.On("GetBlock", mock.Anything, uint64(42)).Return(testBlock(42), nil)
			},
			expectedSlot: 42,
		},
		{
			name:  "latest slot",
			input: FetchBlockInput{},
			setupMock: func(m *MockFetcher) {
				m.On("GetLatestSlot", mock.Anything).Return(uint64(900), nil)
				m.On("GetBlock", mock.Anything, uint64(900)).Return(testBlock(900), nil)
			},
			expectedSlot: 900,
		},
		{
			name:  "latest slot failure",
			input: FetchBlockInput{},
			setupMock: func(m *MockFetcher) {
				m.On("GetLatestSlot", mock.Anything).Return(uint64(0), errors.New("rpc down"))
			},
			expectedError: "failed to resolve latest slot",
		},
		{
			name:  "block failure",
			input: FetchBlockInput{Slot: 7},
			setupMock: func(m *MockFetcher) {
				m.On("GetBlock", mock.Anything, uint64(7)).Return(nil, errors.New("slot 7 was skipped"))
			},
			expectedError: "failed to fetch block",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := new(MockFetcher)
			tt.setupMock(fetcher)

			activities := NewActivities(fetcher, nil, metrics.NewMetrics(prometheus.NewRegistry()), testLogger())
			result, err := activities.FetchBlock(context.Background(), tt.input)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, result)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedSlot, result.Block.Slot)
			}
			fetcher.AssertExpectations(t)
		})
	}
}

func TestActivities_BuildGraph(t *testing.T) {
	activities := NewActivities(new(MockFetcher), nil, nil, testLogger())

	t.Run("default options", func(t *testing.T) {
		result, err := activities.BuildGraph(context.Background(), BuildGraphInput{Block: testBlock(10)})
		require.NoError(t, err)

		res := result.Result
		assert.Equal(t, uint64(10), res.Slot)
		assert.Equal(t, 3, res.Stats.Included)
		assert.Equal(t, map[string]int{filter.ReasonVote: 1}, res.Stats.ExcludedByReason)
		assert.Equal(t, 2, res.Stats.Waves)
		require.Len(t, res.Document.Graph.Edges, 1)
		assert.Equal(t, "0", res.Document.Graph.Edges[0].Source)
		assert.Equal(t, "1", res.Document.Graph.Edges[0].Target)
	})

	t.Run("include votes", func(t *testing.T) {
		result, err := activities.BuildGraph(context.Background(), BuildGraphInput{
			Block:        testBlock(10),
			IncludeVotes: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 4, result.Result.Stats.Included)
	})

	t.Run("fee priority", func(t *testing.T) {
		result, err := activities.BuildGraph(context.Background(), BuildGraphInput{
			Block:    testBlock(10),
			Priority: string(analyzer.PriorityFee),
		})
		require.NoError(t, err)
		// Priority orders a wave, it never reorders conflicting writers.
		nodes := result.Result.Document.Graph.Nodes
		require.Len(t, nodes, 3)
		assert.Equal(t, "2", nodes[0].ID)
		assert.Equal(t, "0", nodes[1].ID)
		assert.Equal(t, "1", nodes[2].ID)
	})

	t.Run("invalid jq", func(t *testing.T) {
		_, err := activities.BuildGraph(context.Background(), BuildGraphInput{
			Block:     testBlock(10),
			ExcludeJQ: []string{".fee >"},
		})
		assert.ErrorContains(t, err, "invalid filter")
	})

	t.Run("invalid priority", func(t *testing.T) {
		_, err := activities.BuildGraph(context.Background(), BuildGraphInput{
			Block:    testBlock(10),
			Priority: "random",
		})
		assert.ErrorContains(t, err, "failed to analyze block")
	})

	t.Run("missing block", func(t *testing.T) {
		_, err := activities.BuildGraph(context.Background(), BuildGraphInput{})
		assert.ErrorContains(t, err, "block is required")
	})
}

func TestActivities_PublishGraph(t *testing.T) {
	built, err := NewActivities(new(MockFetcher), nil, nil, testLogger()).
		BuildGraph(context.Background(), BuildGraphInput{Block: testBlock(55)})
	require.NoError(t, err)

	t.Run("publishes event", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		activities := NewActivities(new(MockFetcher), publisher, nil, testLogger())

		result, err := activities.PublishGraph(context.Background(), PublishGraphInput{Result: built.Result})
		require.NoError(t, err)
		assert.Equal(t, "graphs.55", result.Subject)

		events := publisher.GetPublishedEventsForSlot(55)
		require.Len(t, events, 1)
		assert.Equal(t, "hash", events[0].Blockhash)
		assert.Equal(t, built.Result.Stats.Edges, events[0].Stats.Edges)
	})

	t.Run("publish failure", func(t *testing.T) {
		publisher := natspkg.NewMockPublisher()
		publisher.SetPublishError(errors.New("no responders"))
		activities := NewActivities(new(MockFetcher), publisher, nil, testLogger())

		_, err := activities.PublishGraph(context.Background(), PublishGraphInput{Result: built.Result})
		assert.ErrorContains(t, err, "failed to publish graph")
	})

	t.Run("no publisher", func(t *testing.T) {
		activities := NewActivities(new(MockFetcher), nil, nil, testLogger())

		_, err := activities.PublishGraph(context.Background(), PublishGraphInput{Result: built.Result})
		assert.ErrorContains(t, err, "no NATS publisher configured")
	})
}
