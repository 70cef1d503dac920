package priograph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrain_WriteReadWrite(t *testing.T) {
	// T0 writes A, T1 reads A, T2 writes A.
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})
	g.Insert(1, []Access[string]{r("A")})
	g.Insert(2, []Access[string]{w("A")})

	assert.Equal(t, []Edge{{0, 1}, {0, 2}, {1, 2}}, g.Edges())

	s := g.Drain()

	require.Len(t, s.Waves, 3)
	assert.Equal(t, Wave{Depth: 1, Nodes: []TxID{0}}, s.Waves[0])
	assert.Equal(t, Wave{Depth: 2, Nodes: []TxID{1}}, s.Waves[1])
	assert.Equal(t, Wave{Depth: 3, Nodes: []TxID{2}}, s.Waves[2])

	assert.Equal(t, []Observation{
		{ID: 0, Source: 0, Target: 1, Resolving: true},
		{ID: 1, Source: 0, Target: 2, Resolving: false},
		{ID: 2, Source: 1, Target: 2, Resolving: true},
	}, s.Observations)

	// Non-verbose export skips edge id 1.
	kept := s.Kept(false)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].ID)
	assert.Equal(t, 2, kept[1].ID)
	assert.Len(t, s.Kept(true), 3)
}

func TestDrain_Disjoint(t *testing.T) {
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})
	g.Insert(1, []Access[string]{w("B")})

	s := g.Drain()

	assert.Empty(t, s.Observations)
	require.Len(t, s.Waves, 1)
	assert.Equal(t, []TxID{0, 1}, s.Waves[0].Nodes)
}

func TestDrain_NoAccessesAlwaysDepthOne(t *testing.T) {
	g := New[string]()
	for id := TxID(0); id < 50; id++ {
		g.Insert(id, []Access[string]{w("hot")})
	}
	g.Insert(50, nil)

	s := g.Drain()

	d, ok := s.Depth(50)
	require.True(t, ok)
	assert.Equal(t, 1, d)
	assert.Equal(t, 50, s.MaxDepth())
}

func TestDrain_EmptyGraph(t *testing.T) {
	s := New[string]().Drain()

	assert.Empty(t, s.Waves)
	assert.Zero(t, s.MaxDepth())
	assert.Zero(t, s.MaxWidth())
	assert.Zero(t, s.Len())
}

func TestDrain_FreedNodeWaitsForNextWave(t *testing.T) {
	// 1 depends only on 0; 2 is independent. 1 is freed while wave 1 is
	// being unblocked and must not join wave 1.
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})
	g.Insert(1, []Access[string]{r("A")})
	g.Insert(2, []Access[string]{w("B")})

	s := g.Drain()

	require.Len(t, s.Waves, 2)
	assert.Equal(t, []TxID{0, 2}, s.Waves[0].Nodes)
	assert.Equal(t, []TxID{1}, s.Waves[1].Nodes)
}

func TestDrain_ReadersShareAWave(t *testing.T) {
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})
	for id := TxID(1); id <= 4; id++ {
		g.Insert(id, []Access[string]{r("A")})
	}
	g.Insert(5, []Access[string]{w("A")})

	s := g.Drain()

	require.Len(t, s.Waves, 3)
	assert.Equal(t, []TxID{1, 2, 3, 4}, s.Waves[1].Nodes)
	assert.Equal(t, 4, s.MaxWidth())

	// Transaction 5 waits on 0 and on all four readers; only the last
	// reader's edge resolves it.
	var resolving []Observation
	for _, o := range s.Observations {
		if o.Target == 5 && o.Resolving {
			resolving = append(resolving, o)
		}
	}
	require.Len(t, resolving, 1)
	assert.Equal(t, TxID(4), resolving[0].Source)
}

// randomGraph builds a graph over a small key space so conflicts are dense.
func randomGraph(seed int64, n, keys int) *Graph[string] {
	rng := rand.New(rand.NewSource(seed))
	g := New[string]()
	for id := 0; id < n; id++ {
		var writes, reads []Access[string]
		for k := 0; k < keys; k++ {
			switch rng.Intn(4) {
			case 0:
				writes = append(writes, w(fmt.Sprintf("k%d", k)))
			case 1:
				reads = append(reads, r(fmt.Sprintf("k%d", k)))
			}
		}
		g.Insert(TxID(id), append(writes, reads...))
	}
	return g
}

func TestDrain_Properties(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			const n = 60
			g := randomGraph(seed, n, 8)
			edges := g.Edges()

			// Acyclicity: every edge points forward in insertion order.
			for _, e := range edges {
				assert.Less(t, e.Source, e.Target)
			}

			s := g.Drain()

			// Termination: everything drained in at most n waves.
			assert.True(t, g.IsEmpty())
			assert.Equal(t, n, s.Len())
			assert.LessOrEqual(t, s.MaxDepth(), n)

			// Wave monotonicity.
			for _, e := range edges {
				dp, ok := s.Depth(e.Source)
				require.True(t, ok)
				ds, ok := s.Depth(e.Target)
				require.True(t, ok)
				assert.Less(t, dp, ds, "edge %d -> %d", e.Source, e.Target)
			}

			// Edge counter totality.
			assert.Len(t, s.Observations, len(edges))
			assert.Len(t, s.Kept(false), s.Resolving())
			for i, o := range s.Observations {
				assert.Equal(t, i, o.ID)
			}

			// Every transaction with predecessors is resolved exactly once.
			resolvedBy := make(map[TxID]int)
			for _, o := range s.Observations {
				if o.Resolving {
					resolvedBy[o.Target]++
				}
			}
			for target, count := range resolvedBy {
				assert.Equal(t, 1, count, "target %d", target)
			}

			// Idempotent re-drain on a fresh graph.
			again := randomGraph(seed, n, 8).Drain()
			assert.Equal(t, s.Waves, again.Waves)
			assert.Equal(t, s.Observations, again.Observations)
		})
	}
}

func TestDrain_MatchesStepwiseAPI(t *testing.T) {
	// Drain must agree with the pop-all-then-unblock loop written by hand.
	s := randomGraph(7, 40, 5).Drain()

	g := randomGraph(7, 40, 5)
	var waves [][]TxID
	var observations []Observation
	for !g.IsEmpty() {
		var popped []TxID
		for {
			id, ok := g.Pop()
			if !ok {
				break
			}
			popped = append(popped, id)
		}
		waves = append(waves, popped)
		for _, p := range popped {
			for _, target := range g.Unblock(p) {
				observations = append(observations, Observation{
					ID:        len(observations),
					Source:    p,
					Target:    target,
					Resolving: !g.IsBlocked(target),
				})
			}
		}
	}

	require.Len(t, waves, len(s.Waves))
	for i := range waves {
		assert.Equal(t, waves[i], s.Waves[i].Nodes)
	}
	assert.Equal(t, observations, s.Observations)
}
