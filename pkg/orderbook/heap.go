package orderbook

// entryHeap orders resting entries by arrival time, breaking exact-timestamp
// ties by lexicographic intent_id order (spec.md §4.B). Adapted from the
// teacher's container/heap-based MaxPriceHeap/MinPriceHeap
// (pkg/app/core/orderbook/heap.go), generalized from a price-ordered heap of
// bare int64s to a time-ordered heap of *Entry that also tracks each
// entry's heap index so Cancel can do an O(log n) heap.Remove instead of
// the teacher's O(n) linear scan.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].EnqueuedAt != h[j].EnqueuedAt {
		return h[i].EnqueuedAt < h[j].EnqueuedAt
	}
	return h[i].IntentID < h[j].IntentID
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}
