package workqueue

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

var (
	ErrWorkerRunning = errors.New("worker already running")
	ErrWorkerStopped = errors.New("worker stopped")
)

// Handler processes one queued item on the worker goroutine.
type Handler[T any] func(item T)

// Worker owns a Queue and a single consumer goroutine that feeds every item
// to its handler in FIFO order.
type Worker[T any] struct {
	// Atomic fields first for 32-bit alignment
	processed int64
	panics    int64
	running   int32

	name    string
	queue   *Queue[T]
	handle  Handler[T]
	wg      sync.WaitGroup
	logger  *zerolog.Logger
	stopped chan struct{}
}

// NewWorker creates a stopped worker with a queue of the given capacity.
func NewWorker[T any](name string, capacity int, handle Handler[T]) *Worker[T] {
	logger := logging.GetDefaultLogger().With().Str("component", "workqueue").Str("queue", name).Logger()
	w := &Worker[T]{
		name:    name,
		queue:   New[T](capacity),
		handle:  handle,
		logger:  &logger,
		stopped: make(chan struct{}),
	}
	w.queue.setObserver(func(depth int) {
		queueDepth.WithLabelValues(name).Set(float64(depth))
	})
	return w
}

// Start launches the consumer goroutine.
func (w *Worker[T]) Start() error {
	if w.queue.Closed() {
		return ErrWorkerStopped
	}
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return ErrWorkerRunning
	}
	w.wg.Add(1)
	go w.run()
	w.logger.Debug().Int("capacity", w.queue.Cap()).Msg("worker started")
	return nil
}

// Submit queues an item without blocking. It returns false if the queue is
// full or the worker has been stopped.
func (w *Worker[T]) Submit(item T) bool {
	if w.queue.TryPush(item) {
		queueSubmitted.WithLabelValues(w.name).Inc()
		return true
	}
	queueRejected.WithLabelValues(w.name).Inc()
	return false
}

// Deliver queues an item without blocking, growing the queue when it is
// full. It returns false only once the worker has been stopped.
func (w *Worker[T]) Deliver(item T) bool {
	if w.queue.Push(item) {
		queueSubmitted.WithLabelValues(w.name).Inc()
		return true
	}
	queueRejected.WithLabelValues(w.name).Inc()
	return false
}

// Stop closes the queue and waits for the consumer to exit. Items still
// queued are dropped unless drain is set.
func (w *Worker[T]) Stop(drain bool) {
	w.queue.Close(drain)
	w.wg.Wait()
	if atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		w.logger.Debug().Int64("processed", atomic.LoadInt64(&w.processed)).Msg("worker stopped")
	}
}

// IsRunning reports whether the consumer goroutine is active.
func (w *Worker[T]) IsRunning() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// Name returns the queue name used for logs and metrics.
func (w *Worker[T]) Name() string {
	return w.name
}

// Stats returns the queue counters plus handler statistics.
func (w *Worker[T]) Stats() WorkerStats {
	return WorkerStats{
		Stats:     w.queue.Stats(),
		Processed: atomic.LoadInt64(&w.processed),
		Panics:    atomic.LoadInt64(&w.panics),
	}
}

// WorkerStats extends Stats with handler counters.
type WorkerStats struct {
	Stats
	Processed int64
	Panics    int64
}

func (w *Worker[T]) run() {
	defer w.wg.Done()
	for {
		item, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.invoke(item)
		atomic.AddInt64(&w.processed, 1)
	}
}

func (w *Worker[T]) invoke(item T) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.panics, 1)
			w.logger.Error().Interface("panic", r).Msg("handler panic recovered")
		}
	}()
	w.handle(item)
}
