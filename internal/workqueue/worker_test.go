package workqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	w := NewWorker[int]("test-order", 16, func(v int) {
		mu.Lock()
		got = append(got, v)
		n := len(got)
		mu.Unlock()
		if n == 10 {
			close(done)
		}
	})
	require.NoError(t, w.Start())
	defer w.Stop(false)

	for i := 0; i < 10; i++ {
		require.True(t, w.Submit(i))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not process all items")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestWorkerRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	w := NewWorker[int]("test-full", 2, func(int) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})
	require.NoError(t, w.Start())

	require.True(t, w.Submit(1))
	<-started // consumer holds item 1, queue is empty again

	assert.True(t, w.Submit(2))
	assert.True(t, w.Submit(3))
	assert.False(t, w.Submit(4), "third queued item exceeds capacity 2")

	close(release)
	w.Stop(true)

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestWorkerStartTwice(t *testing.T) {
	w := NewWorker[int]("test-start", 1, func(int) {})
	require.NoError(t, w.Start())
	err := w.Start()
	assert.ErrorIs(t, err, ErrWorkerRunning)
	w.Stop(false)
	assert.False(t, w.IsRunning())
	assert.ErrorIs(t, w.Start(), ErrWorkerStopped)
	assert.False(t, w.Submit(1))
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	var calls int64
	w := NewWorker[int]("test-panic", 4, func(v int) {
		atomic.AddInt64(&calls, 1)
		if v == 0 {
			panic("boom")
		}
	})
	require.NoError(t, w.Start())
	w.Submit(0)
	w.Submit(1)
	w.Stop(true)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(1), w.Stats().Panics)
}

func TestWorkerStopJoinsPromptly(t *testing.T) {
	w := NewWorker[int]("test-stop", 4, func(int) {})
	require.NoError(t, w.Start())

	stopped := make(chan struct{})
	go func() {
		w.Stop(false)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestWorkerDeliverNeverRejectsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []int
	w := NewWorker[int]("test-deliver", 1, func(item int) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		got = append(got, item)
		mu.Unlock()
	})
	require.NoError(t, w.Start())

	require.True(t, w.Deliver(0))
	<-started
	for i := 1; i <= 4; i++ {
		assert.True(t, w.Deliver(i))
	}
	assert.False(t, w.Submit(5), "Submit still rejects past capacity")

	close(release)
	w.Stop(true)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.False(t, w.Deliver(6))
}
