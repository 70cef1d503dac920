package priograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func w(key string) Access[string] { return Access[string]{Key: key, Kind: Write} }
func r(key string) Access[string] { return Access[string]{Key: key, Kind: Read} }

func TestInsert_ReadWriteOrdering(t *testing.T) {
	tests := []struct {
		name     string
		first    []Access[string]
		second   []Access[string]
		expected []Edge
	}{
		{"both write", []Access[string]{w("R")}, []Access[string]{w("R")}, []Edge{{0, 1}}},
		{"read then write", []Access[string]{r("R")}, []Access[string]{w("R")}, []Edge{{0, 1}}},
		{"write then read", []Access[string]{w("R")}, []Access[string]{r("R")}, []Edge{{0, 1}}},
		{"both read", []Access[string]{r("R")}, []Access[string]{r("R")}, []Edge{}},
		{"disjoint", []Access[string]{w("A")}, []Access[string]{w("B")}, []Edge{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New[string]()
			g.Insert(0, tt.first)
			g.Insert(1, tt.second)

			assert.Equal(t, tt.expected, g.Edges())
			assert.Equal(t, len(tt.expected), g.EdgeCount())
		})
	}
}

func TestInsert_SharedResourcesProduceOneEdge(t *testing.T) {
	g := New[string]()
	g.Insert(0, []Access[string]{w("A"), w("B"), r("C")})
	g.Insert(1, []Access[string]{w("A"), w("B"), w("C")})

	assert.Equal(t, []Edge{{Source: 0, Target: 1}}, g.Edges())
	assert.True(t, g.IsBlocked(1))

	id, ok := g.Pop()
	require.True(t, ok)
	assert.Equal(t, TxID(0), id)

	// A single unblock is enough to free transaction 1.
	assert.Equal(t, []TxID{1}, g.Unblock(0))
	assert.False(t, g.IsBlocked(1))
}

func TestInsert_NoAccessesIsReady(t *testing.T) {
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})
	g.Insert(1, nil)

	assert.False(t, g.IsBlocked(1))
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, g.Resources())
}

func TestInsert_Panics(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		g := New[string]()
		g.Insert(0, nil)
		assert.Panics(t, func() { g.Insert(0, nil) })
	})

	t.Run("negative id", func(t *testing.T) {
		g := New[string]()
		assert.Panics(t, func() { g.Insert(-1, nil) })
	})
}

func TestUnknownIDPanics(t *testing.T) {
	g := New[string]()
	g.Insert(0, nil)

	assert.Panics(t, func() { g.IsBlocked(42) })
	assert.Panics(t, func() { g.Unblock(42) })
	assert.False(t, g.Contains(42))
	assert.True(t, g.Contains(0))
}

func TestUnblockBeforePopPanics(t *testing.T) {
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})

	assert.Panics(t, func() { g.Unblock(0) })
}

func TestPop_PriorityOrder(t *testing.T) {
	t.Run("ascending id by default", func(t *testing.T) {
		g := New[string]()
		for _, id := range []TxID{5, 2, 9, 0} {
			g.Insert(id, nil)
		}

		var order []TxID
		for {
			id, ok := g.Pop()
			if !ok {
				break
			}
			order = append(order, id)
		}
		assert.Equal(t, []TxID{0, 2, 5, 9}, order)
		assert.True(t, g.IsEmpty())
	})

	t.Run("custom priority with id tie-break", func(t *testing.T) {
		fees := map[TxID]uint64{0: 10, 1: 50, 2: 50, 3: 5}
		g := New[string](WithPriority(func(id TxID) uint64 {
			return ^fees[id] // higher fee first
		}))
		for id := TxID(0); id < 4; id++ {
			g.Insert(id, nil)
		}

		var order []TxID
		for {
			id, ok := g.Pop()
			if !ok {
				break
			}
			order = append(order, id)
		}
		assert.Equal(t, []TxID{1, 2, 0, 3}, order)
	})

	t.Run("nil priority keeps default", func(t *testing.T) {
		g := New[string](WithPriority(nil))
		g.Insert(1, nil)
		g.Insert(0, nil)

		id, ok := g.Pop()
		require.True(t, ok)
		assert.Equal(t, TxID(0), id)
	})
}

func TestInsert_ResolvedBlockerAddsNoEdge(t *testing.T) {
	g := New[string]()
	g.Insert(0, []Access[string]{w("A")})

	id, ok := g.Pop()
	require.True(t, ok)
	g.Unblock(id)

	g.Insert(1, []Access[string]{w("A")})
	assert.Empty(t, g.Edges())
	assert.False(t, g.IsBlocked(1))
}
