// Package workqueue provides the bounded producer/consumer queue used to hand
// work from foreign goroutines to a single consumer. Producers never block:
// a full queue rejects TryPush, while Push grows past the capacity. Consumers
// block on a condition variable while the queue is empty.
package workqueue

import (
	"sync"
	"sync/atomic"
)

// Queue is a fixed-capacity FIFO guarded by a mutex and a condition variable.
type Queue[T any] struct {
	// Atomic counters first for 32-bit alignment
	accepted   int64
	rejected   int64
	overflowed int64

	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	capacity int
	head     int
	size     int
	closed   bool
	discard  bool
	observer depthObserver
}

type depthObserver func(depth int)

// New returns a queue holding at most capacity items. A non-positive
// capacity is treated as 1.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{items: make([]T, capacity), capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// TryPush appends item unless the queue is full or closed. It never blocks.
func (q *Queue[T]) TryPush(item T) bool {
	q.mu.Lock()
	if q.closed || q.size >= q.capacity {
		q.mu.Unlock()
		atomic.AddInt64(&q.rejected, 1)
		return false
	}
	q.append(item)
	return true
}

// Push appends item unless the queue is closed. A full queue grows instead
// of rejecting, so Push only fails after Close. It never blocks.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		atomic.AddInt64(&q.rejected, 1)
		return false
	}
	if q.size == len(q.items) {
		q.grow()
	}
	if q.size >= q.capacity {
		atomic.AddInt64(&q.overflowed, 1)
	}
	q.append(item)
	return true
}

// append stores item and releases q.mu.
func (q *Queue[T]) append(item T) {
	q.items[(q.head+q.size)%len(q.items)] = item
	q.size++
	depth := q.size
	obs := q.observer
	q.mu.Unlock()

	atomic.AddInt64(&q.accepted, 1)
	q.cond.Signal()
	if obs != nil {
		obs(depth)
	}
}

func (q *Queue[T]) grow() {
	items := make([]T, 2*len(q.items))
	for i := 0; i < q.size; i++ {
		items[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = items
	q.head = 0
}

// Pop removes the oldest item, blocking while the queue is empty. It returns
// false once the queue is closed and, unless the close asked for a drain,
// without handing out remaining items.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	for q.size == 0 && !q.closed {
		q.cond.Wait()
	}
	var zero T
	if q.size == 0 || (q.closed && q.discard) {
		q.mu.Unlock()
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	depth := q.size
	obs := q.observer
	q.mu.Unlock()

	if obs != nil {
		obs(depth)
	}
	return item, true
}

// Close stops the queue. Further pushes are rejected and blocked consumers
// wake up. With drain set, consumers still receive the items already queued;
// otherwise those items are dropped and Pop returns false immediately.
func (q *Queue[T]) Close(drain bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.discard = !drain
	if q.discard {
		var zero T
		for i := range q.items {
			q.items[i] = zero
		}
		q.size = 0
	}
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap reports the capacity TryPush enforces.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats is a snapshot of the queue counters.
type Stats struct {
	Accepted int64
	Rejected int64
	// Overflowed counts Push calls that went past the capacity.
	Overflowed int64
	Depth      int
	Capacity   int
}

// Stats returns the current counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Accepted:   atomic.LoadInt64(&q.accepted),
		Rejected:   atomic.LoadInt64(&q.rejected),
		Overflowed: atomic.LoadInt64(&q.overflowed),
		Depth:      q.Len(),
		Capacity:   q.Cap(),
	}
}

func (q *Queue[T]) setObserver(obs depthObserver) {
	q.mu.Lock()
	q.observer = obs
	q.mu.Unlock()
}
