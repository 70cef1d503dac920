package priograph

import "container/heap"

// readySet is a min-heap of arena indices ordered by (priority, id).
type readySet struct {
	nodes *[]node
	items []int
}

func (r *readySet) Len() int { return len(r.items) }

func (r *readySet) Less(i, j int) bool {
	a, b := &(*r.nodes)[r.items[i]], &(*r.nodes)[r.items[j]]
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.id < b.id
}

func (r *readySet) Swap(i, j int) { r.items[i], r.items[j] = r.items[j], r.items[i] }

func (r *readySet) Push(x any) { r.items = append(r.items, x.(int)) }

func (r *readySet) Pop() any {
	n := len(r.items)
	idx := r.items[n-1]
	r.items = r.items[:n-1]
	return idx
}

func (r *readySet) push(idx int) {
	heap.Push(r, idx)
}

func (r *readySet) pop() (int, bool) {
	if len(r.items) == 0 {
		return 0, false
	}
	return heap.Pop(r).(int), true
}
