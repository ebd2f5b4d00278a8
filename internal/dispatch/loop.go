// Package dispatch implements the single coordinating goroutine. Every
// registry mutation, arbitration pass and offload state transition runs as a
// Task on a Loop; foreign goroutines (hardware callbacks, IPC readers,
// HTTP handlers) only ever Post tasks to it.
package dispatch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
	"github.com/bmndc/nokia-leo-sub000/internal/workqueue"
)

var (
	ErrLoopFull    = errors.New("dispatch: loop queue full")
	ErrLoopStopped = errors.New("dispatch: loop stopped")
)

// Task is a unit of work executed on the coordinating goroutine.
type Task func()

// Poster is implemented by anything that can schedule a Task onto the
// coordinating goroutine. Producers hold a Poster, never the Loop itself.
// Post must not drop a task while the poster is running: hardware, engine
// and child events all reach the loop, in the order they were posted.
type Poster interface {
	Post(task Task) error
}

// Loop runs posted tasks one at a time, in the order they were posted.
type Loop struct {
	dropped int64
	stopped int32

	worker *workqueue.Worker[Task]
	logger *zerolog.Logger
}

// NewLoop creates a loop whose queue holds at most capacity pending tasks.
func NewLoop(name string, capacity int) *Loop {
	logger := logging.GetDefaultLogger().With().Str("component", "dispatch").Str("loop", name).Logger()
	l := &Loop{logger: &logger}
	l.worker = workqueue.NewWorker[Task](name, capacity, func(task Task) {
		task()
	})
	return l
}

// Start launches the coordinating goroutine.
func (l *Loop) Start() error {
	if atomic.LoadInt32(&l.stopped) == 1 {
		return ErrLoopStopped
	}
	if err := l.worker.Start(); err != nil {
		return err
	}
	l.logger.Info().Msg("coordinating loop started")
	return nil
}

// Post schedules task without blocking. The queue grows past its capacity
// rather than dropping the task; Post only fails once the loop stopped.
func (l *Loop) Post(task Task) error {
	if task == nil {
		return nil
	}
	if atomic.LoadInt32(&l.stopped) == 1 {
		return ErrLoopStopped
	}
	if !l.worker.Deliver(task) {
		return ErrLoopStopped
	}
	return nil
}

// TryPost schedules task without blocking, rejecting it with ErrLoopFull
// when the queue is at capacity. Request/response callers use it so load
// turns into an error instead of an unbounded backlog.
func (l *Loop) TryPost(task Task) error {
	if task == nil {
		return nil
	}
	if atomic.LoadInt32(&l.stopped) == 1 {
		return ErrLoopStopped
	}
	if !l.worker.Submit(task) {
		atomic.AddInt64(&l.dropped, 1)
		loopTasksDropped.Inc()
		l.logger.Warn().Msg("loop queue full, task rejected")
		return ErrLoopFull
	}
	return nil
}

// Sync try-posts task and waits until it has run or ctx is done. It must not be
// called from the loop goroutine itself.
func (l *Loop) Sync(ctx context.Context, task Task) error {
	done := make(chan struct{})
	if err := l.TryPost(func() {
		defer close(done)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop and returns its error.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	var err error
	if syncErr := l.Sync(ctx, func() { err = fn() }); syncErr != nil {
		return syncErr
	}
	return err
}

// Stop rejects new tasks, runs the tasks already queued and joins the
// coordinating goroutine.
func (l *Loop) Stop() {
	if !atomic.CompareAndSwapInt32(&l.stopped, 0, 1) {
		return
	}
	l.worker.Stop(true)
	l.logger.Info().Int64("dropped", atomic.LoadInt64(&l.dropped)).Msg("coordinating loop stopped")
}

// Dropped reports how many tasks were rejected because the queue was full.
func (l *Loop) Dropped() int64 {
	return atomic.LoadInt64(&l.dropped)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(task Task) error

func (f PosterFunc) Post(task Task) error { return f(task) }

// Inline is a Poster that runs tasks immediately on the caller's goroutine.
// It is meant for single-threaded callers and tests.
var Inline Poster = PosterFunc(func(task Task) error {
	if task != nil {
		task()
	}
	return nil
})
