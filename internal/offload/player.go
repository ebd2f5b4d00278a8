package offload

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/dispatch"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
	"github.com/bmndc/nokia-leo-sub000/internal/workqueue"
)

// State is the play state of an offload session.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SessionObserver is told about session outcomes that need the owner to
// act. It is called on the coordinating goroutine.
type SessionObserver interface {
	OnSessionEnded(p *Player)
	OnSessionFailed(p *Player, err error, position time.Duration)
}

// Player drives one hardware playback session. Every method must be called
// on the coordinating goroutine; hardware events are posted there through
// the Poster given at construction.
//
// While a seek is in flight the player is in the Seeking sub-state and
// State reports the state it returns to once the seek lands.
type Player struct {
	// Atomic fields first for 32-bit alignment
	framesRendered int64
	framesDropped  int64
	lastFrame      uint64

	id       uuid.UUID
	media    MediaKind
	backend  Backend
	observer SessionObserver
	poster   dispatch.Poster
	frames   *workqueue.Worker[Frame]
	logger   zerolog.Logger

	generation uint64
	state      State
	volume     float32
	rate       float64
	failed     bool
	tornDown   bool

	seeking        bool
	seekTarget     time.Duration
	seekWaiter     *SeekPromise
	seeksIssued    int
	seeksCompleted int
	pendingSeek    *SeekPromise

	lastPosition time.Duration
}

// NewAudioSession builds an audio-only offload session.
func NewAudioSession(factory BackendFactory, src Source, observer SessionObserver, poster dispatch.Poster) (*Player, error) {
	p := newPlayer(MediaAudio, observer, poster)
	backend, err := factory.NewAudio(src, p.listener())
	if err != nil {
		return nil, startError(err)
	}
	p.backend = backend
	sessionsCreated.WithLabelValues(MediaAudio.String()).Inc()
	p.logger.Debug().Str("uri", src.URI).Msg("audio session created")
	return p, nil
}

// NewVideoSession builds a video offload session rendering to target. New
// frames are analyzed off the coordinating goroutine through a bounded
// queue of frameQueue entries; frames arriving while it is full are
// dropped from analysis.
func NewVideoSession(factory BackendFactory, src Source, target Target, frameQueue int, observer SessionObserver, poster dispatch.Poster) (*Player, error) {
	p := newPlayer(MediaVideo, observer, poster)
	p.frames = workqueue.NewWorker("offload-frames", frameQueue, p.analyzeFrame)
	backend, err := factory.NewVideo(src, target, p.listener())
	if err != nil {
		return nil, startError(err)
	}
	p.backend = backend
	sessionsCreated.WithLabelValues(MediaVideo.String()).Inc()
	p.logger.Debug().Str("uri", src.URI).Str("target", target.ID).Msg("video session created")
	return p, nil
}

func newPlayer(media MediaKind, observer SessionObserver, poster dispatch.Poster) *Player {
	id := uuid.New()
	return &Player{
		id:       id,
		media:    media,
		observer: observer,
		poster:   poster,
		volume:   1.0,
		rate:     1.0,
		logger: logging.GetSubsystemLogger("offload-player").With().
			Str("session", id.String()).
			Stringer("media", media).
			Logger(),
	}
}

// listener binds hardware events to the generation current at creation so
// events from a reset pipeline are discarded.
func (p *Player) listener() Listener {
	gen := p.generation
	return func(ev Event) {
		if ev.Type == EventNewFrame {
			p.submitFrame(ev.Frame)
			return
		}
		if err := p.poster.Post(func() { p.handleEvent(gen, ev) }); err != nil {
			p.logger.Warn().Err(err).Stringer("event", ev.Type).Msg("failed to post hardware event")
		}
	}
}

// ID returns the session identifier.
func (p *Player) ID() uuid.UUID { return p.id }

// Media returns the session's media kind.
func (p *Player) Media() MediaKind { return p.media }

// State returns the play state, or the state a pending seek returns to.
func (p *Player) State() State { return p.state }

// Seeking reports whether a seek is in flight in the hardware.
func (p *Player) Seeking() bool { return p.seeking }

// Start prepares the hardware. A seek requested before Start is replayed
// once the pipeline is ready.
func (p *Player) Start(ctx context.Context) error {
	if p.state != StateIdle || p.tornDown {
		return fmt.Errorf("start in %s: %w", p.state, ErrInvalidState)
	}
	p.state = StatePreparing
	if err := p.backend.Start(ctx); err != nil {
		p.state = StateIdle
		sessionFailures.WithLabelValues("start").Inc()
		p.logger.Warn().Err(err).Msg("hardware start failed")
		return startError(err)
	}
	if err := p.backend.SetVolume(p.volume); err != nil {
		p.logger.Warn().Err(err).Msg("failed to apply initial volume")
	}
	if p.rate != 1.0 {
		if err := p.backend.SetRate(p.rate); err != nil {
			p.state = StateIdle
			sessionFailures.WithLabelValues("start").Inc()
			return startError(err)
		}
	}
	if p.frames != nil {
		if err := p.frames.Start(); err != nil {
			p.logger.Warn().Err(err).Msg("frame analysis not started")
		}
	}
	p.state = StateReady
	p.logger.Debug().Msg("session ready")

	if pending := p.pendingSeek; pending != nil {
		p.pendingSeek = nil
		p.issueSeek(pending)
	}
	return nil
}

// Play starts playback, starting the hardware first when needed.
func (p *Player) Play(ctx context.Context) error {
	if p.tornDown {
		return fmt.Errorf("play after reset: %w", ErrInvalidState)
	}
	switch p.state {
	case StatePlaying:
		return nil
	case StatePreparing:
		return fmt.Errorf("play in %s: %w", p.state, ErrInvalidState)
	case StateIdle:
		if err := p.Start(ctx); err != nil {
			return err
		}
	case StateEnded:
		p.state = StatePaused
		p.issueSeek(newSeekPromise(0))
		if p.tornDown {
			return nil
		}
	}

	if err := p.backend.Resume(); err != nil {
		return runtimeError("resume", err)
	}
	p.state = StatePlaying
	p.logger.Debug().Bool("seeking", p.seeking).Msg("playing")
	return nil
}

// Pause pauses playback. It is a no-op unless playing.
func (p *Player) Pause() error {
	if p.tornDown || p.state != StatePlaying {
		return nil
	}
	if err := p.backend.Pause(); err != nil {
		return runtimeError("pause", err)
	}
	p.state = StatePaused
	p.lastPosition = p.backend.Position()
	p.logger.Debug().Dur("position", p.lastPosition).Msg("paused")
	return nil
}

// Seek moves playback to target. Only the latest seek is honored: a seek
// still in flight resolves as SeekCancelled when a new one is issued.
func (p *Player) Seek(target time.Duration) *SeekPromise {
	if target < 0 {
		target = 0
	}
	promise := newSeekPromise(target)
	if p.tornDown {
		promise.resolve(SeekResult{Status: SeekCancelled, Position: p.lastPosition})
		return promise
	}
	switch p.state {
	case StateIdle, StatePreparing:
		if p.pendingSeek != nil {
			p.pendingSeek.resolve(SeekResult{Status: SeekCancelled, Position: target})
		}
		p.pendingSeek = promise
		return promise
	case StateEnded:
		p.state = StatePaused
	}
	p.issueSeek(promise)
	return promise
}

func (p *Player) issueSeek(promise *SeekPromise) {
	if p.seekWaiter != nil {
		p.seekWaiter.resolve(SeekResult{Status: SeekCancelled, Position: promise.target})
	}
	p.seekWaiter = promise
	p.seeking = true
	p.seekTarget = promise.target
	p.seeksIssued++
	p.logger.Debug().Dur("target", promise.target).Int("in_flight", p.seeksIssued-p.seeksCompleted).Msg("seeking")
	if err := p.backend.Seek(promise.target); err != nil {
		p.fail(runtimeError("seek", err), p.seekTarget)
	}
}

// SetVolume sets the hardware output volume in [0, 1].
func (p *Player) SetVolume(volume float32) error {
	p.volume = volume
	if p.tornDown || p.state == StateIdle || p.state == StatePreparing {
		return nil
	}
	if err := p.backend.SetVolume(volume); err != nil {
		return runtimeError("set volume", err)
	}
	return nil
}

// SetRate forwards the playback rate. Before Start it is only recorded.
func (p *Player) SetRate(rate float64) error {
	p.rate = rate
	if p.tornDown || p.state == StateIdle || p.state == StatePreparing {
		return nil
	}
	if err := p.backend.SetRate(rate); err != nil {
		return runtimeError("set rate", err)
	}
	return nil
}

// Rate returns the last requested playback rate.
func (p *Player) Rate() float64 { return p.rate }

// Volume returns the last requested volume.
func (p *Player) Volume() float32 { return p.volume }

// Position is the seek target while seeking, the duration after the end of
// stream, and the hardware position otherwise.
func (p *Player) Position() time.Duration {
	switch {
	case p.seeking:
		return p.seekTarget
	case p.tornDown || p.state == StateEnded:
		return p.lastPosition
	case p.state == StateIdle || p.state == StatePreparing:
		if p.pendingSeek != nil {
			return p.pendingSeek.target
		}
		return p.lastPosition
	}
	p.lastPosition = p.backend.Position()
	return p.lastPosition
}

// TakeSeek detaches the outstanding seek, if any, so the caller can finish
// it elsewhere.
func (p *Player) TakeSeek() *SeekPromise {
	if w := p.seekWaiter; w != nil {
		p.seekWaiter = nil
		return w
	}
	if w := p.pendingSeek; w != nil {
		p.pendingSeek = nil
		return w
	}
	return nil
}

// Reset releases the hardware. The target is detached first and the call
// blocks until the pipeline is stopped or ctx is done. Events still queued
// for the old pipeline are discarded afterwards.
func (p *Player) Reset(ctx context.Context) error {
	if p.tornDown {
		return nil
	}
	p.tornDown = true
	p.generation++
	if w := p.TakeSeek(); w != nil {
		w.resolve(SeekResult{Status: SeekCancelled, Position: p.Position()})
	}
	p.seeking = false

	p.backend.DetachTarget()
	err := p.backend.Stop(ctx)
	if p.frames != nil {
		p.frames.Stop(false)
	}
	p.state = StateIdle
	if err != nil {
		p.logger.Warn().Err(err).Msg("hardware stop failed")
		return runtimeError("stop", err)
	}
	p.logger.Debug().Int64("frames", atomic.LoadInt64(&p.framesRendered)).Msg("session reset")
	return nil
}

func (p *Player) handleEvent(gen uint64, ev Event) {
	if gen != p.generation || p.tornDown {
		staleEvents.Inc()
		p.logger.Debug().Stringer("event", ev.Type).Msg("discarding stale hardware event")
		return
	}

	switch ev.Type {
	case EventSeekComplete:
		if p.seeksCompleted < p.seeksIssued {
			p.seeksCompleted++
		}
		if !p.seeking {
			return
		}
		// A backend that merged queued seeks reports only the newest one.
		landed := ev.Position != 0 && ev.Position == p.seekTarget
		if !landed && p.seeksCompleted < p.seeksIssued {
			return
		}
		p.seeking = false
		p.seeksCompleted = p.seeksIssued
		p.lastPosition = p.seekTarget
		if w := p.seekWaiter; w != nil {
			p.seekWaiter = nil
			w.resolve(SeekResult{Status: SeekDone, Position: p.seekTarget})
		}

	case EventPlaybackComplete:
		p.state = StateEnded
		p.lastPosition = p.backend.Duration()
		if p.lastPosition == 0 {
			p.lastPosition = ev.Position
		}
		if p.seeking {
			p.seeking = false
			p.seeksCompleted = p.seeksIssued
			if w := p.seekWaiter; w != nil {
				p.seekWaiter = nil
				w.resolve(SeekResult{Status: SeekAtEnd, Position: p.lastPosition})
			}
		}
		p.logger.Debug().Dur("position", p.lastPosition).Msg("end of stream")
		if p.observer != nil {
			p.observer.OnSessionEnded(p)
		}

	case EventError:
		err := ev.Err
		if err == nil {
			err = &HardwareError{Msg: "unspecified"}
		}
		p.fail(runtimeError("playback", err), ev.Position)

	case EventTeardown:
		p.fail(ErrTornDown, ev.Position)

	default:
		p.logger.Trace().Stringer("event", ev.Type).Dur("position", ev.Position).Msg("hardware event")
	}
}

func (p *Player) fail(err error, position time.Duration) {
	if p.failed {
		return
	}
	p.failed = true
	switch {
	case p.seeking:
		position = p.seekTarget
	case position <= 0:
		position = p.lastPosition
	}
	p.lastPosition = position
	sessionFailures.WithLabelValues("runtime").Inc()
	p.logger.Warn().Err(err).Dur("position", position).Msg("offload session failed")
	if p.observer != nil {
		p.observer.OnSessionFailed(p, err, position)
	}
}

func (p *Player) submitFrame(f Frame) {
	if p.frames == nil {
		return
	}
	if !p.frames.Submit(f) {
		atomic.AddInt64(&p.framesDropped, 1)
	}
}

func (p *Player) analyzeFrame(f Frame) {
	atomic.AddInt64(&p.framesRendered, 1)
	atomic.StoreUint64(&p.lastFrame, f.Sequence)
	framesAnalyzed.Inc()
}

// FrameStats reports video frames analyzed and dropped, and the sequence
// number of the last analyzed frame.
func (p *Player) FrameStats() (rendered, dropped int64, last uint64) {
	return atomic.LoadInt64(&p.framesRendered), atomic.LoadInt64(&p.framesDropped), atomic.LoadUint64(&p.lastFrame)
}
