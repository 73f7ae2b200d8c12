package window

import (
	"container/heap"
	"slices"
)

// ordered is a min-heap keyed by (timestamp, insertion sequence).
type ordered struct {
	h entryHeap
}

func newOrdered(capacity int) *ordered {
	return &ordered{h: make(entryHeap, 0, capacity)}
}

func (o *ordered) push(e Entry) {
	heap.Push(&o.h, e)
}

func (o *ordered) pop() Entry {
	return heap.Pop(&o.h).(Entry)
}

func (o *ordered) len() int {
	return o.h.Len()
}

func (o *ordered) entries() []Entry {
	out := slices.Clone(o.h)
	slices.SortFunc(out, compareEntries)
	return out
}

func compareEntries(a, b Entry) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return compareEntries(h[i], h[j]) < 0 }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(Entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
