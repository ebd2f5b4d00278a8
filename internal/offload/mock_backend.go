package offload

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errMockFailure = errors.New("mock hardware failure")

// MockBackend provides a Backend implementation for testing. Events are
// only produced when the test calls Emit, or by AutoCompleteSeeks.
type MockBackend struct {
	mu       sync.Mutex
	media    MediaKind
	source   Source
	target   Target
	listener Listener

	// Mock state
	started     bool
	playing     bool
	stopped     bool
	detached    bool
	position    time.Duration
	duration    time.Duration
	volume      float32
	rate        float64
	seeks       []time.Duration
	resumeCalls int
	pauseCalls  int

	// Mock behavior controls
	ShouldFailStart     bool
	ShouldFailResume    bool
	ShouldFailPause     bool
	ShouldFailSeek      bool
	ShouldFailSetVolume bool
	ShouldFailSetRate   bool
	ShouldFailStop      bool
	StartDelay          time.Duration
	// AutoCompleteSeeks emits EventSeekComplete from a separate goroutine
	// after every accepted seek.
	AutoCompleteSeeks bool
}

// NewMockBackend creates a mock pipeline reporting events to listener.
func NewMockBackend(media MediaKind, src Source, listener Listener) *MockBackend {
	return &MockBackend{
		media:    media,
		source:   src,
		listener: listener,
		duration: 3 * time.Minute,
		rate:     1.0,
	}
}

func (m *MockBackend) Start(ctx context.Context) error {
	if m.StartDelay > 0 {
		select {
		case <-time.After(m.StartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFailStart {
		return errMockFailure
	}
	m.started = true
	return nil
}

func (m *MockBackend) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	if m.ShouldFailResume {
		return errMockFailure
	}
	m.playing = true
	return nil
}

func (m *MockBackend) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	if m.ShouldFailPause {
		return errMockFailure
	}
	m.playing = false
	return nil
}

func (m *MockBackend) Seek(position time.Duration) error {
	m.mu.Lock()
	if m.ShouldFailSeek {
		m.mu.Unlock()
		return errMockFailure
	}
	m.seeks = append(m.seeks, position)
	m.position = position
	auto := m.AutoCompleteSeeks
	m.mu.Unlock()

	if auto {
		go m.Emit(Event{Type: EventSeekComplete, Position: position})
	}
	return nil
}

func (m *MockBackend) SetVolume(volume float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFailSetVolume {
		return errMockFailure
	}
	m.volume = volume
	return nil
}

func (m *MockBackend) SetRate(rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFailSetRate {
		return errMockFailure
	}
	m.rate = rate
	return nil
}

func (m *MockBackend) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *MockBackend) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *MockBackend) DetachTarget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detached = true
}

func (m *MockBackend) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFailStop {
		return errMockFailure
	}
	m.stopped = true
	m.playing = false
	return ctx.Err()
}

// Emit delivers ev to the listener as the hardware would.
func (m *MockBackend) Emit(ev Event) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener(ev)
	}
}

// SetPosition moves the reported hardware position.
func (m *MockBackend) SetPosition(position time.Duration) {
	m.mu.Lock()
	m.position = position
	m.mu.Unlock()
}

// SetDuration changes the reported stream duration.
func (m *MockBackend) SetDuration(duration time.Duration) {
	m.mu.Lock()
	m.duration = duration
	m.mu.Unlock()
}

// Seeks returns the positions of every accepted seek.
func (m *MockBackend) Seeks() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.seeks))
	copy(out, m.seeks)
	return out
}

// Playing reports whether the pipeline was resumed and not paused since.
func (m *MockBackend) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Stopped reports whether Stop succeeded.
func (m *MockBackend) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Detached reports whether DetachTarget was called.
func (m *MockBackend) Detached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detached
}

// Volume returns the last volume set.
func (m *MockBackend) Volume() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Rate returns the last playback rate applied.
func (m *MockBackend) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

// Target returns the render target of a video pipeline.
func (m *MockBackend) Target() Target { return m.target }

// MockFactory builds MockBackends and remembers them.
type MockFactory struct {
	mu       sync.Mutex
	backends []*MockBackend

	ShouldFailCreate bool
	// Configure, when set, adjusts every backend before it is returned.
	Configure func(*MockBackend)
}

func (f *MockFactory) NewAudio(src Source, listener Listener) (Backend, error) {
	return f.build(MediaAudio, src, Target{}, listener)
}

func (f *MockFactory) NewVideo(src Source, target Target, listener Listener) (Backend, error) {
	return f.build(MediaVideo, src, target, listener)
}

func (f *MockFactory) build(media MediaKind, src Source, target Target, listener Listener) (Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ShouldFailCreate {
		return nil, errMockFailure
	}
	b := NewMockBackend(media, src, listener)
	b.target = target
	if f.Configure != nil {
		f.Configure(b)
	}
	f.backends = append(f.backends, b)
	return b, nil
}

// Backends returns every backend built so far.
func (f *MockFactory) Backends() []*MockBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockBackend, len(f.backends))
	copy(out, f.backends)
	return out
}

// Last returns the most recently built backend, or nil.
func (f *MockFactory) Last() *MockBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.backends) == 0 {
		return nil
	}
	return f.backends[len(f.backends)-1]
}
