// Package priograph builds the conflict graph of a block's transactions and
// drains it in waves of mutually non-conflicting transactions.
//
// Transactions are inserted in block order with their declared accesses. A
// Ledger derives the ordering constraints (write-after-write, write-after-read,
// read-after-write) and the Graph materializes them as blocking edges. Drain
// then pops every ready transaction (one wave), unblocks their successors and
// repeats until the graph is empty. The wave index is the transaction's depth.
//
// All operations are single-threaded and deterministic. Malformed use, such
// as inserting the same id twice or referencing an unknown id, panics.
package priograph

import "fmt"

// PriorityFunc computes the ordering key of a transaction once, when it is
// inserted. Lower keys pop first; equal keys pop in ascending id order.
type PriorityFunc func(id TxID) uint64

// Option configures a Graph.
type Option func(*options)

type options struct {
	priority PriorityFunc
}

// WithPriority replaces the default ordering (ascending id).
func WithPriority(fn PriorityFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.priority = fn
		}
	}
}

func defaultPriority(id TxID) uint64 {
	return uint64(id)
}

type nodeState uint8

const (
	stateBlocked nodeState = iota
	stateReady
	statePopped
	stateResolved
)

type node struct {
	id         TxID
	priority   uint64
	blockers   int
	successors []int
	state      nodeState
}

// Edge is a blocking dependency: Target cannot be scheduled before Source.
type Edge struct {
	Source TxID
	Target TxID
}

// Graph is an arena of transaction nodes indexed by insertion order, with
// per-node successor lists and a ready set of unblocked nodes.
//
// A Graph must not be copied after New.
type Graph[K comparable] struct {
	ledger    *Ledger[K]
	nodes     []node
	index     map[TxID]int
	ready     readySet
	priority  PriorityFunc
	edges     int
	remaining int
}

// New creates an empty graph.
func New[K comparable](opts ...Option) *Graph[K] {
	o := options{priority: defaultPriority}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph[K]{
		ledger:   NewLedger[K](),
		index:    make(map[TxID]int),
		priority: o.priority,
	}
	g.ready.nodes = &g.nodes
	return g
}

// Insert adds a transaction and its accesses. Accesses should list writes
// before reads; the order only affects the order in which edges are created.
//
// Every distinct transaction that must precede id gets exactly one edge to it,
// however many resources they share. A transaction with no blockers is ready
// immediately.
func (g *Graph[K]) Insert(id TxID, accesses []Access[K]) {
	if id < 0 {
		panic(fmt.Sprintf("priograph: negative transaction id %d", id))
	}
	if _, exists := g.index[id]; exists {
		panic(fmt.Sprintf("priograph: transaction %d inserted twice", id))
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{
		id:       id,
		priority: g.priority(id),
	})
	g.index[id] = idx
	g.remaining++

	var seen map[TxID]struct{}
	for _, access := range accesses {
		for _, blocker := range g.ledger.Record(access.Key, access.Kind, id) {
			if seen == nil {
				seen = make(map[TxID]struct{})
			}
			if _, dup := seen[blocker]; dup {
				continue
			}
			seen[blocker] = struct{}{}

			pred := g.mustIndex(blocker)
			if g.nodes[pred].state == stateResolved {
				continue
			}
			g.nodes[pred].successors = append(g.nodes[pred].successors, idx)
			g.nodes[idx].blockers++
			g.edges++
		}
	}

	if g.nodes[idx].blockers == 0 {
		g.nodes[idx].state = stateReady
		g.ready.push(idx)
	}
}

// Len returns the number of inserted transactions.
func (g *Graph[K]) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of blocking edges created so far.
func (g *Graph[K]) EdgeCount() int {
	return g.edges
}

// Resources returns the number of distinct resources accessed so far.
func (g *Graph[K]) Resources() int {
	return g.ledger.Len()
}

// IsEmpty reports whether every inserted transaction has been popped.
func (g *Graph[K]) IsEmpty() bool {
	return g.remaining == 0
}

// Contains reports whether id was inserted.
func (g *Graph[K]) Contains(id TxID) bool {
	_, ok := g.index[id]
	return ok
}

// IsBlocked reports whether id still waits on at least one predecessor.
func (g *Graph[K]) IsBlocked(id TxID) bool {
	return g.nodes[g.mustIndex(id)].blockers > 0
}

// Pop removes the highest priority ready transaction. It returns false when
// nothing is ready.
func (g *Graph[K]) Pop() (TxID, bool) {
	idx, ok := g.pop()
	if !ok {
		return 0, false
	}
	return g.nodes[idx].id, true
}

// Unblock resolves every edge leaving a popped transaction and returns the
// successors in edge creation order. Successors left without blockers become
// ready.
func (g *Graph[K]) Unblock(id TxID) []TxID {
	idx := g.mustIndex(id)
	out := make([]TxID, 0, len(g.nodes[idx].successors))
	g.unblock(idx, func(target int, _ bool) {
		out = append(out, g.nodes[target].id)
	})
	return out
}

// Edges returns the static conflict graph in creation order: predecessors in
// insertion order, each with its successors in the order they were inserted.
func (g *Graph[K]) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for i := range g.nodes {
		for _, succ := range g.nodes[i].successors {
			out = append(out, Edge{Source: g.nodes[i].id, Target: g.nodes[succ].id})
		}
	}
	return out
}

func (g *Graph[K]) pop() (int, bool) {
	idx, ok := g.ready.pop()
	if !ok {
		return 0, false
	}
	g.nodes[idx].state = statePopped
	g.remaining--
	return idx, true
}

// unblock decrements every successor of a popped node and reports, per edge,
// whether that edge was the successor's last blocker.
func (g *Graph[K]) unblock(idx int, visit func(target int, resolved bool)) {
	n := &g.nodes[idx]
	if n.state != statePopped {
		panic(fmt.Sprintf("priograph: unblock of transaction %d before it was popped", n.id))
	}
	n.state = stateResolved

	for _, succ := range n.successors {
		s := &g.nodes[succ]
		if s.blockers <= 0 {
			panic(fmt.Sprintf("priograph: transaction %d unblocked more times than it was blocked", s.id))
		}
		s.blockers--
		resolved := s.blockers == 0
		if resolved {
			s.state = stateReady
			g.ready.push(succ)
		}
		visit(succ, resolved)
	}
}

func (g *Graph[K]) mustIndex(id TxID) int {
	idx, ok := g.index[id]
	if !ok {
		panic(fmt.Sprintf("priograph: unknown transaction id %d", id))
	}
	return idx
}
