package progress

import (
	"container/heap"
	"sync"
)

type int64Heap []int64

func (h int64Heap) Len() int            { return len(h) }
func (h int64Heap) Less(i, j int) bool  { return h[i] < h[j] }
func (h int64Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *int64Heap) Push(x interface{}) { *h = append(*h, x.(int64)) }
func (h *int64Heap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Tracker follows which record numbers of one file are in flight and which
// are safely committed, so a restart can resume without re-processing
// committed work or skipping work that was still in flight.
//
// One Tracker covers one file; concurrent workers for that file share it.
type Tracker struct {
	mu           sync.Mutex
	active       int64Heap
	completed    map[int64]bool
	maxCompleted int64
}

// NewTracker starts tracking from a durable resume point: every record number
// at or below it is already committed.
func NewTracker(resumePoint int64) *Tracker {
	return &Tracker{
		active:       int64Heap{},
		completed:    make(map[int64]bool),
		maxCompleted: resumePoint,
	}
}

// RecordActive marks a record as in flight.
func (t *Tracker) RecordActive(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	heap.Push(&t.active, n)
}

// RecordComplete marks a record's batch as committed.
func (t *Tracker) RecordComplete(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[n] = true
	if n > t.maxCompleted {
		t.maxCompleted = n
	}
	t.drain()
}

// SafeResumePoint returns the highest record number such that everything at
// or below it is committed. Always strictly below every in-flight record.
func (t *Tracker) SafeResumePoint() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drain()
	if t.active.Len() > 0 {
		return t.active[0] - 1
	}
	return t.maxCompleted
}

// ActiveCount reports how many records are still in flight.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drain()
	return t.active.Len()
}

// drain discards completed entries sitting at the top of the active heap.
// Completion is recorded lazily so RecordComplete stays cheap for records in
// the middle of the heap. Caller holds the lock.
func (t *Tracker) drain() {
	for t.active.Len() > 0 && t.completed[t.active[0]] {
		delete(t.completed, t.active[0])
		heap.Pop(&t.active)
	}
}
