package offload

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/dispatch"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

const defaultResetTimeout = 2 * time.Second

// Capabilities describes what the platform can offload.
type Capabilities struct {
	Audio bool
	Video bool
}

// CanOffload reports whether media playing on channel may be offloaded.
// Only the music channels (normal and content) are routed to the offload
// hardware.
func (c Capabilities) CanOffload(media MediaKind, channel audiochannel.Kind) bool {
	switch media {
	case MediaAudio:
		if !c.Audio {
			return false
		}
	case MediaVideo:
		if !c.Video {
			return false
		}
	default:
		return false
	}
	return channel == audiochannel.KindNormal || channel == audiochannel.KindContent
}

// CoordinatorConfig describes the playback a coordinator manages.
type CoordinatorConfig struct {
	Media          MediaKind
	Source         Source
	Target         Target
	Channel        audiochannel.Kind
	Capabilities   Capabilities
	FrameQueueSize int
	ResetTimeout   time.Duration
}

// Coordinator decides, per playback session, whether the hardware offload
// player or the software decode pipeline plays, and moves playback between
// them. Once a session has fallen back to software it never offloads again.
//
// All methods run on the coordinating goroutine.
type Coordinator struct {
	cfg     CoordinatorConfig
	factory BackendFactory
	decoder *DecodeStateMachine
	owner   Owner
	poster  dispatch.Poster
	logger  zerolog.Logger

	session         *Player
	sessionsCreated int
	fallenBack      bool
	shutdown        bool

	playing  bool
	captured bool
	rate     float64
	volume   float32
	muted    bool
}

// NewCoordinator creates a coordinator in software decoding mode.
func NewCoordinator(cfg CoordinatorConfig, factory BackendFactory, decoder *DecodeStateMachine, owner Owner, poster dispatch.Poster) *Coordinator {
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	return &Coordinator{
		cfg:     cfg,
		factory: factory,
		decoder: decoder,
		owner:   owner,
		poster:  poster,
		rate:    1.0,
		volume:  1.0,
		logger: logging.GetSubsystemLogger("offload-coordinator").With().
			Stringer("media", cfg.Media).
			Str("uri", cfg.Source.URI).
			Logger(),
	}
}

// Eligible reports whether a new offload session may be built right now.
func (c *Coordinator) Eligible() bool {
	if c.fallenBack || c.shutdown {
		return false
	}
	if !c.cfg.Capabilities.CanOffload(c.cfg.Media, c.cfg.Channel) || c.captured {
		return false
	}
	return c.cfg.Media != MediaAudio || c.rate == 1.0
}

// Offloaded reports whether a hardware session currently plays.
func (c *Coordinator) Offloaded() bool { return c.session != nil }

// FallenBack reports whether the playback permanently left offload.
func (c *Coordinator) FallenBack() bool { return c.fallenBack }

// SessionsCreated counts hardware sessions built for this playback.
func (c *Coordinator) SessionsCreated() int { return c.sessionsCreated }

// Session returns the active hardware session, if any.
func (c *Coordinator) Session() *Player { return c.session }

// Decoder returns the software pipeline state machine.
func (c *Coordinator) Decoder() *DecodeStateMachine { return c.decoder }

// SetChannel records the audio channel the playback is registered on.
func (c *Coordinator) SetChannel(kind audiochannel.Kind) { c.cfg.Channel = kind }

// OnFirstFrameReady is called once the software pipeline decoded its first
// frame. If the playback is eligible, a hardware session is built and takes
// over; any failure on the way leaves the software pipeline in charge for
// good.
func (c *Coordinator) OnFirstFrameReady(ctx context.Context) {
	if c.session != nil || !c.Eligible() {
		return
	}

	session, err := c.newSession()
	if err != nil {
		c.fallback("create", err, -1)
		return
	}
	c.sessionsCreated++

	if err := session.Start(ctx); err != nil {
		c.releaseUnused(session)
		c.fallback("start", err, -1)
		return
	}
	pending, err := c.decoder.EnterOffload()
	if err != nil {
		c.releaseUnused(session)
		c.fallback("enter", err, -1)
		return
	}

	c.session = session
	offloadActive.Inc()
	c.logger.Info().Str("session", session.ID().String()).Bool("pending_seek", pending != nil).Msg("playback offloaded")

	if err := session.SetVolume(c.effectiveVolume()); err != nil {
		c.fallback("volume", err, -1)
		return
	}
	if c.rate != 1.0 {
		if err := session.SetRate(c.rate); err != nil {
			c.fallback("rate", err, -1)
			return
		}
	}
	if pending != nil {
		c.replaySeek(pending)
	}
	if c.playing && c.session != nil {
		if err := c.session.Play(ctx); err != nil {
			c.fallback("play", err, -1)
		}
	}
}

func (c *Coordinator) newSession() (*Player, error) {
	switch c.cfg.Media {
	case MediaAudio:
		return NewAudioSession(c.factory, c.cfg.Source, c, c.poster)
	case MediaVideo:
		return NewVideoSession(c.factory, c.cfg.Source, c.cfg.Target, c.cfg.FrameQueueSize, c, c.poster)
	default:
		return nil, ErrUnsupported
	}
}

func (c *Coordinator) releaseUnused(session *Player) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ResetTimeout)
	defer cancel()
	if err := session.Reset(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("failed to release unused session")
	}
}

func (c *Coordinator) replaySeek(pending *PendingSeek) {
	visible := pending.Visibility == Visible
	c.session.Seek(pending.Target).Then(func(r SeekResult) {
		pending.Promise.resolve(r)
		if visible && r.Status != SeekCancelled && c.owner != nil {
			c.owner.OnSeeked()
		}
	})
}

// Play starts playback on whichever pipeline is in charge.
func (c *Coordinator) Play(ctx context.Context) error {
	c.playing = true
	if c.session == nil {
		return c.decoder.Play()
	}
	if err := c.session.Play(ctx); err != nil {
		c.fallback("play", err, -1)
	}
	return nil
}

// Pause pauses playback on whichever pipeline is in charge.
func (c *Coordinator) Pause() error {
	c.playing = false
	if c.session == nil {
		return c.decoder.Pause()
	}
	if err := c.session.Pause(); err != nil {
		c.fallback("pause", err, -1)
	}
	return nil
}

// Seek moves playback to target. The owner sees seeking/seeked events for
// it.
func (c *Coordinator) Seek(target time.Duration) (*SeekPromise, error) {
	if c.session == nil {
		return c.decoder.Seek(target, Visible)
	}
	if c.owner != nil {
		c.owner.OnSeeking()
	}
	promise := c.session.Seek(target)
	promise.Then(func(r SeekResult) {
		if r.Status != SeekCancelled && c.owner != nil {
			c.owner.OnSeeked()
		}
	})
	return promise, nil
}

// SetVolume forwards the arbitrated channel volume.
func (c *Coordinator) SetVolume(volume float32) {
	c.volume = volume
	c.applyVolume()
}

// SetMuted forwards the arbitrated channel mute state.
func (c *Coordinator) SetMuted(muted bool) {
	c.muted = muted
	c.applyVolume()
}

func (c *Coordinator) effectiveVolume() float32 {
	if c.muted {
		return 0
	}
	return c.volume
}

func (c *Coordinator) applyVolume() {
	if c.session == nil {
		return
	}
	if err := c.session.SetVolume(c.effectiveVolume()); err != nil {
		c.fallback("volume", err, -1)
	}
}

// SetPlaybackRate changes the playback rate. Audio sessions fall back to
// software for any rate other than 1; video sessions forward the rate and
// fall back when the hardware refuses it.
func (c *Coordinator) SetPlaybackRate(rate float64) {
	c.rate = rate
	if c.session == nil {
		return
	}
	if c.cfg.Media == MediaAudio {
		if rate != 1.0 {
			c.fallback("rate", nil, -1)
		}
		return
	}
	if err := c.session.SetRate(rate); err != nil {
		c.fallback("rate", err, -1)
	}
}

// SetCaptured routes the output to or away from a capture graph. Captured
// output cannot be offloaded.
func (c *Coordinator) SetCaptured(captured bool) {
	c.captured = captured
	if captured && c.session != nil {
		c.fallback("capture", nil, -1)
	}
}

// Position returns the current media time.
func (c *Coordinator) Position() time.Duration {
	if c.session != nil {
		return c.session.Position()
	}
	return c.decoder.Position()
}

// OnSessionEnded implements SessionObserver.
func (c *Coordinator) OnSessionEnded(p *Player) {
	if p != c.session {
		return
	}
	c.playing = false
	if c.owner != nil {
		c.owner.OnPlaybackEnded()
	}
}

// OnSessionFailed implements SessionObserver.
func (c *Coordinator) OnSessionFailed(p *Player, err error, position time.Duration) {
	if p != c.session {
		return
	}
	c.fallback("runtime", err, position)
}

// fallback leaves offload for good. With a live session the hardware is
// released and the software pipeline resumes at position (or at the
// session's position when negative) without surfacing a seek.
func (c *Coordinator) fallback(reason string, cause error, position time.Duration) {
	first := !c.fallenBack
	c.fallenBack = true
	session := c.session
	if session == nil {
		if first {
			fallbacksTotal.WithLabelValues(reason).Inc()
			c.logger.Info().Err(cause).Str("reason", reason).Msg("staying on software decoding")
		}
		return
	}
	c.session = nil
	offloadActive.Dec()

	if position < 0 {
		position = session.Position()
	}
	waiter := session.TakeSeek()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ResetTimeout)
	defer cancel()
	if err := session.Reset(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("session reset failed")
	}

	if _, err := c.decoder.ExitOffload(position, c.playing); err != nil {
		c.logger.Warn().Err(err).Msg("failed to resume software decoding")
	}
	if waiter != nil {
		waiter.resolve(SeekResult{Status: SeekDone, Position: position})
	}
	fallbacksTotal.WithLabelValues(reason).Inc()
	c.logger.Info().Err(cause).Str("reason", reason).Dur("position", position).Msg("fell back to software decoding")
}

// Shutdown releases the hardware session and stops the software pipeline.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if c.shutdown {
		return nil
	}
	c.shutdown = true
	if session := c.session; session != nil {
		c.session = nil
		offloadActive.Dec()
		if err := session.Reset(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("session reset failed during shutdown")
		}
	}
	return c.decoder.Shutdown()
}
