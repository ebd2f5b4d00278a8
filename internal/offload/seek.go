package offload

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SeekStatus is the outcome of a seek.
type SeekStatus int

const (
	// SeekDone means the seek landed on its target.
	SeekDone SeekStatus = iota
	// SeekCancelled means a later seek superseded this one.
	SeekCancelled
	// SeekAtEnd means playback reached the end before the seek resolved.
	SeekAtEnd
	// SeekFailed means the pipeline failed while seeking.
	SeekFailed
)

func (s SeekStatus) String() string {
	switch s {
	case SeekDone:
		return "done"
	case SeekCancelled:
		return "cancelled"
	case SeekAtEnd:
		return "at_end"
	case SeekFailed:
		return "failed"
	default:
		return fmt.Sprintf("SeekStatus(%d)", int(s))
	}
}

// SeekResult is delivered to the waiter of a seek.
type SeekResult struct {
	Status   SeekStatus
	Position time.Duration
}

// SeekPromise resolves exactly once with the outcome of a seek. Then
// callbacks run on the goroutine that resolves it, which is the
// coordinating goroutine for every promise this package creates.
type SeekPromise struct {
	target time.Duration
	done   chan struct{}

	mu       sync.Mutex
	resolved bool
	result   SeekResult
	then     []func(SeekResult)
}

func newSeekPromise(target time.Duration) *SeekPromise {
	return &SeekPromise{target: target, done: make(chan struct{})}
}

// Target returns the requested position.
func (p *SeekPromise) Target() time.Duration { return p.target }

// Done is closed once the promise has resolved.
func (p *SeekPromise) Done() <-chan struct{} { return p.done }

// Resolved reports whether the promise has resolved.
func (p *SeekPromise) Resolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

// Result returns the outcome. It is only meaningful after Done.
func (p *SeekPromise) Result() SeekResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Wait blocks until the promise resolves or ctx is done.
func (p *SeekPromise) Wait(ctx context.Context) (SeekResult, error) {
	select {
	case <-p.done:
		return p.Result(), nil
	case <-ctx.Done():
		return SeekResult{}, ctx.Err()
	}
}

// Then registers fn to run on resolution. If the promise already resolved,
// fn runs immediately.
func (p *SeekPromise) Then(fn func(SeekResult)) {
	p.mu.Lock()
	if p.resolved {
		result := p.result
		p.mu.Unlock()
		fn(result)
		return
	}
	p.then = append(p.then, fn)
	p.mu.Unlock()
}

func (p *SeekPromise) resolve(result SeekResult) bool {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return false
	}
	p.resolved = true
	p.result = result
	then := p.then
	p.then = nil
	close(p.done)
	p.mu.Unlock()

	seekOutcomes.WithLabelValues(result.Status.String()).Inc()
	for _, fn := range then {
		fn(result)
	}
	return true
}
