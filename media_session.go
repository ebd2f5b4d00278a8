package audiopolicy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
	"github.com/bmndc/nokia-leo-sub000/internal/offload"
)

// MediaSessionConfig describes one media element.
type MediaSessionConfig struct {
	Window    audiochannel.WindowID
	Principal string
	Media     offload.MediaKind
	Source    offload.Source
	Target    offload.Target
	// Engine is the software decode pipeline. It reports seek completion
	// and end of stream through EngineSeekCompleted and EnginePlaybackEnded.
	Engine offload.Engine
	// Owner receives seeking/seeked/ended/offload notifications. It is
	// called on the coordinating goroutine.
	Owner offload.Owner
}

// MediaSession binds a media element's channel agent to its offload
// coordinator: the arbitrated volume and mute state and the window's
// capture state drive the offload decision. Every method hops onto the
// coordinating goroutine.
type MediaSession struct {
	daemon      *Daemon
	agent       *audiochannel.Agent
	coordinator *offload.Coordinator
	logger      zerolog.Logger
}

// NewMediaSession creates a session with no channel. It starts on software
// decoding.
func (d *Daemon) NewMediaSession(ctx context.Context, cfg MediaSessionConfig) (*MediaSession, error) {
	m := &MediaSession{daemon: d}
	err := d.loop.Call(ctx, func() error {
		decoder := offload.NewDecodeStateMachine(cfg.Engine, cfg.Owner)
		m.coordinator = offload.NewCoordinator(offload.CoordinatorConfig{
			Media:          cfg.Media,
			Source:         cfg.Source,
			Target:         cfg.Target,
			Channel:        d.registry.Policy().DefaultKind,
			Capabilities:   d.Capabilities(),
			FrameQueueSize: d.cfg.FrameQueueSize,
			ResetTimeout:   d.cfg.ResetTimeout,
		}, d.factory, decoder, cfg.Owner, d.loop)
		m.agent = audiochannel.NewAgent(d.registry, cfg.Window, cfg.Principal, audiochannel.CallbackFuncs{
			VolumeChanged:  m.onVolumeChanged,
			CaptureChanged: m.coordinator.SetCaptured,
		})
		if w, ok := d.registry.LookupWindow(cfg.Window); ok && w.Captured() {
			m.coordinator.SetCaptured(true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger = logging.GetSubsystemLogger("media-session").With().
		Str("agent", m.agent.ID().String()).
		Uint64("window", uint64(cfg.Window)).
		Logger()
	return m, nil
}

func (m *MediaSession) onVolumeChanged(volume float32, muted bool) {
	m.coordinator.SetMuted(muted)
	m.coordinator.SetVolume(volume)
}

// RequestChannel registers the session on kind.
func (m *MediaSession) RequestChannel(ctx context.Context, kind audiochannel.Kind) error {
	return m.daemon.loop.Call(ctx, func() error {
		if err := m.agent.RequestChannel(kind); err != nil {
			return err
		}
		m.coordinator.SetChannel(kind)
		return nil
	})
}

// AbandonChannel leaves the current channel.
func (m *MediaSession) AbandonChannel(ctx context.Context) error {
	return m.daemon.loop.Call(ctx, func() error {
		m.agent.AbandonChannel()
		return nil
	})
}

// FirstFrameReady tells the coordinator the software pipeline decoded its
// first frame, which is when offload is attempted.
func (m *MediaSession) FirstFrameReady(ctx context.Context) error {
	return m.daemon.loop.Call(ctx, func() error {
		m.coordinator.OnFirstFrameReady(ctx)
		return nil
	})
}

func (m *MediaSession) Play(ctx context.Context) error {
	return m.daemon.loop.Call(ctx, func() error {
		return m.coordinator.Play(ctx)
	})
}

func (m *MediaSession) Pause(ctx context.Context) error {
	return m.daemon.loop.Call(ctx, m.coordinator.Pause)
}

// Seek starts a seek and returns its promise without waiting for it.
func (m *MediaSession) Seek(ctx context.Context, target time.Duration) (*offload.SeekPromise, error) {
	var promise *offload.SeekPromise
	err := m.daemon.loop.Call(ctx, func() error {
		var err error
		promise, err = m.coordinator.Seek(target)
		return err
	})
	return promise, err
}

func (m *MediaSession) SetPlaybackRate(ctx context.Context, rate float64) error {
	return m.daemon.loop.Call(ctx, func() error {
		m.coordinator.SetPlaybackRate(rate)
		return nil
	})
}

func (m *MediaSession) Position(ctx context.Context) (time.Duration, error) {
	var position time.Duration
	err := m.daemon.loop.Call(ctx, func() error {
		position = m.coordinator.Position()
		return nil
	})
	return position, err
}

// Offloaded reports whether the hardware session currently plays.
func (m *MediaSession) Offloaded(ctx context.Context) (bool, error) {
	var offloaded bool
	err := m.daemon.loop.Call(ctx, func() error {
		offloaded = m.coordinator.Offloaded()
		return nil
	})
	return offloaded, err
}

// EngineSeekCompleted is called by the software pipeline from any
// goroutine once a seek landed.
func (m *MediaSession) EngineSeekCompleted() {
	if err := m.daemon.loop.Post(m.coordinator.Decoder().SeekCompleted); err != nil {
		m.logger.Warn().Err(err).Msg("dropped seek completion")
	}
}

// EnginePlaybackEnded is called by the software pipeline from any
// goroutine at end of stream.
func (m *MediaSession) EnginePlaybackEnded() {
	if err := m.daemon.loop.Post(m.coordinator.Decoder().PlaybackEnded); err != nil {
		m.logger.Warn().Err(err).Msg("dropped end of stream")
	}
}

// Close releases the channel and any hardware session.
func (m *MediaSession) Close(ctx context.Context) error {
	return m.daemon.loop.Call(ctx, func() error {
		m.agent.AbandonChannel()
		return m.coordinator.Shutdown(ctx)
	})
}
