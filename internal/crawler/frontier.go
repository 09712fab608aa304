package crawler

import "container/heap"

// entry is a capture waiting in the frontier.
type entry struct {
	addr     string
	priority int64
	seq      uint64
}

// frontier is a min-heap of entries ordered by priority, then discovery order.
// Priorities are negated timestamps, so the most recent capture pops first.
type frontier struct {
	items []entry
	seq   uint64
}

var _ heap.Interface = (*frontier)(nil)

func (f *frontier) Len() int { return len(f.items) }

func (f *frontier) Less(i, j int) bool {
	if f.items[i].priority != f.items[j].priority {
		return f.items[i].priority < f.items[j].priority
	}
	return f.items[i].seq < f.items[j].seq
}

func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

// Push implements heap.Interface. Use add instead.
func (f *frontier) Push(x any) {
	f.items = append(f.items, x.(entry)) //nolint:forcetypeassert // only entries are pushed
}

// Pop implements heap.Interface. Use next instead.
func (f *frontier) Pop() any {
	old := f.items
	n := len(old)
	item := old[n-1]
	f.items = old[:n-1]
	return item
}

// add queues addr with the given priority.
func (f *frontier) add(addr string, priority int64) {
	f.seq++
	heap.Push(f, entry{addr: addr, priority: priority, seq: f.seq})
}

// next removes and returns the highest-priority entry.
func (f *frontier) next() (entry, bool) {
	if len(f.items) == 0 {
		return entry{}, false
	}
	return heap.Pop(f).(entry), true //nolint:forcetypeassert // only entries are pushed
}
