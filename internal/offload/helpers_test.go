package offload

import (
	"errors"
	"sync"
	"time"
)

type fakeEngine struct {
	mu        sync.Mutex
	playing   bool
	position  time.Duration
	seeks     []time.Duration
	shutdown  bool
	failSeek  bool
	playCalls int
}

func (e *fakeEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
	e.playCalls++
	return nil
}

func (e *fakeEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	return nil
}

func (e *fakeEngine) Seek(position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failSeek {
		return errors.New("engine seek failed")
	}
	e.seeks = append(e.seeks, position)
	e.position = position
	return nil
}

func (e *fakeEngine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *fakeEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdown = true
	return nil
}

type ownerRecorder struct {
	seeking int
	seeked  int
	ended   int
	offload []bool
}

func (o *ownerRecorder) OnSeeking() { o.seeking++ }
func (o *ownerRecorder) OnSeeked() { o.seeked++ }
func (o *ownerRecorder) OnPlaybackEnded() { o.ended++ }

func (o *ownerRecorder) OnOffloadChanged(offloaded bool) {
	o.offload = append(o.offload, offloaded)
}

type sessionRecorder struct {
	ended     int
	failures  []error
	positions []time.Duration
}

func (s *sessionRecorder) OnSessionEnded(*Player) { s.ended++ }

func (s *sessionRecorder) OnSessionFailed(_ *Player, err error, position time.Duration) {
	s.failures = append(s.failures, err)
	s.positions = append(s.positions, position)
}
