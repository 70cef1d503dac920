package priograph

// Observation is one edge seen while draining: Source was popped and its edge
// to Target was resolved. ID is a counter over every observation in drain
// order, so kept observations do not necessarily have contiguous ids.
type Observation struct {
	ID        int
	Source    TxID
	Target    TxID
	Resolving bool // this edge was Target's last blocker
}

// Wave is the set of transactions popped at one depth, in pop order.
type Wave struct {
	Depth int
	Nodes []TxID
}

// Schedule is the result of draining a graph.
type Schedule struct {
	Waves        []Wave
	Observations []Observation

	depths map[TxID]int
}

// Drain empties the graph wave by wave.
//
// Each wave first pops every ready transaction in priority order and assigns
// it the current depth. Only then are the popped transactions unblocked, so a
// successor freed during a wave is never popped in that same wave and depth is
// a true topological generation.
//
// Drain panics if transactions remain but none is ready, which cannot happen
// for a graph built through Insert.
func (g *Graph[K]) Drain() *Schedule {
	s := &Schedule{depths: make(map[TxID]int, len(g.nodes))}

	for depth := 1; !g.IsEmpty(); depth++ {
		var popped []int
		for {
			idx, ok := g.pop()
			if !ok {
				break
			}
			popped = append(popped, idx)
		}
		if len(popped) == 0 {
			panic("priograph: transactions remain but none is ready")
		}

		wave := Wave{Depth: depth, Nodes: make([]TxID, len(popped))}
		for i, idx := range popped {
			id := g.nodes[idx].id
			wave.Nodes[i] = id
			s.depths[id] = depth
		}
		s.Waves = append(s.Waves, wave)

		for _, idx := range popped {
			source := g.nodes[idx].id
			g.unblock(idx, func(target int, resolved bool) {
				s.Observations = append(s.Observations, Observation{
					ID:        len(s.Observations),
					Source:    source,
					Target:    g.nodes[target].id,
					Resolving: resolved,
				})
			})
		}
	}

	return s
}

// Depth returns the 1-based wave index assigned to id.
func (s *Schedule) Depth(id TxID) (int, bool) {
	d, ok := s.depths[id]
	return d, ok
}

// MaxDepth returns the number of waves.
func (s *Schedule) MaxDepth() int {
	return len(s.Waves)
}

// Len returns the number of scheduled transactions.
func (s *Schedule) Len() int {
	return len(s.depths)
}

// MaxWidth returns the size of the largest wave.
func (s *Schedule) MaxWidth() int {
	width := 0
	for _, w := range s.Waves {
		if len(w.Nodes) > width {
			width = len(w.Nodes)
		}
	}
	return width
}

// Resolving returns the number of observations that freed their target.
func (s *Schedule) Resolving() int {
	n := 0
	for _, o := range s.Observations {
		if o.Resolving {
			n++
		}
	}
	return n
}

// Kept applies the export filter: resolving observations only, or every
// observation when verbose is set.
func (s *Schedule) Kept(verbose bool) []Observation {
	if verbose {
		out := make([]Observation, len(s.Observations))
		copy(out, s.Observations)
		return out
	}
	out := make([]Observation, 0, len(s.Observations))
	for _, o := range s.Observations {
		if o.Resolving {
			out = append(out, o)
		}
	}
	return out
}
