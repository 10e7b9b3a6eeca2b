package scheduling

import (
	"container/heap"
	"sync"
	"time"
)

// DispatchQueue is a thread-safe priority queue of pending task ids. Ordering
// is strictly (ascending priority, insertion sequence); the payload is never
// compared, so ties are always resolved deterministically.
type DispatchQueue struct {
	mu     sync.Mutex
	items  entryHeap
	seq    uint64
	closed bool
	// wake is closed and replaced on every push, broadcasting to all
	// blocked Pop callers.
	wake chan struct{}
}

type entry struct {
	priority int
	seq      uint64
	id       int64
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func NewDispatchQueue() *DispatchQueue {
	return &DispatchQueue{wake: make(chan struct{})}
}

// Push enqueues a task id at the given priority. Lower values are served
// first. Pushes to a closed queue are dropped.
func (q *DispatchQueue) Push(priority int, id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	heap.Push(&q.items, entry{priority: priority, seq: q.seq, id: id})
	q.seq++
	close(q.wake)
	q.wake = make(chan struct{})
}

// Pop removes the most urgent entry, blocking up to timeout. The bool is
// false when the queue stayed empty for the whole wait or is closed.
func (q *DispatchQueue) Pop(timeout time.Duration) (priority int, id int64, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			e := heap.Pop(&q.items).(entry)
			q.mu.Unlock()
			return e.priority, e.id, true
		}
		if q.closed {
			q.mu.Unlock()
			return 0, 0, false
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return 0, 0, false
		}
	}
}

// Clear atomically drops every queued entry and returns the ids that were
// pending, in no particular order.
func (q *DispatchQueue) Clear() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]int64, 0, q.items.Len())
	for _, e := range q.items {
		ids = append(ids, e.id)
	}
	q.items = q.items[:0]
	return ids
}

// Len reports how many entries are queued.
func (q *DispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// IsClosed reports whether the queue has been closed.
func (q *DispatchQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close wakes all blocked Pop callers and rejects further pushes.
func (q *DispatchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.wake)
}
