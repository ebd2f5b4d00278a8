package audiochannel

import (
	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

// Callback is implemented by the media element owning an agent.
type Callback interface {
	// OnVolumeChanged fires once per actual change of the channel's
	// effective (volume, muted) pair.
	OnVolumeChanged(volume float32, muted bool)
	// OnAudioCaptureChanged fires when the window's audio is routed to or
	// away from a capture graph.
	OnAudioCaptureChanged(captured bool)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	VolumeChanged  func(volume float32, muted bool)
	CaptureChanged func(captured bool)
}

func (c CallbackFuncs) OnVolumeChanged(volume float32, muted bool) {
	if c.VolumeChanged != nil {
		c.VolumeChanged(volume, muted)
	}
}

func (c CallbackFuncs) OnAudioCaptureChanged(captured bool) {
	if c.CaptureChanged != nil {
		c.CaptureChanged(captured)
	}
}

// Agent is the per-producer handle a media element uses to join and leave
// a channel. The registry owns the agent record; Agent only holds its ID.
type Agent struct {
	id        AgentID
	registry  *Registry
	window    WindowID
	principal string
	cb        Callback
	kind      Kind
	logger    zerolog.Logger
}

// NewAgent creates an unregistered agent for window on behalf of principal.
func NewAgent(registry *Registry, window WindowID, principal string, cb Callback) *Agent {
	id := NewAgentID()
	return &Agent{
		id:        id,
		registry:  registry,
		window:    window,
		principal: principal,
		cb:        cb,
		logger: logging.GetSubsystemLogger("audio-channel-agent").With().
			Str("agent", id.String()).
			Uint64("window", uint64(window)).
			Logger(),
	}
}

// ID returns the agent's registry handle.
func (a *Agent) ID() AgentID { return a.id }

// Window returns the window the agent belongs to.
func (a *Agent) Window() WindowID { return a.window }

// RequestChannel registers the agent on kind. A request while already
// registered succeeds without side effects. A denied permission returns a
// *PermissionError and leaves the agent unregistered.
func (a *Agent) RequestChannel(kind Kind) error {
	if !kind.Valid() {
		return ErrInvalidKind
	}
	if a.registry.IsRegistered(a.id) {
		return nil
	}

	policy := a.registry.Policy()
	granted := true
	if policy.RequiresPermission(kind) {
		decision := policy.check(a.principal, kind)
		permissionChecksTotal.WithLabelValues(kind.String(), decision.String()).Inc()
		switch decision {
		case PermissionDeny:
			a.logger.Info().Str("principal", a.principal).Stringer("kind", kind).Msg("channel permission denied")
			return &PermissionError{Principal: a.principal, Kind: kind}
		case PermissionUnknown:
			granted = false
		}
	}

	a.kind = kind
	a.registry.RegisterAgent(Registration{
		ID:       a.id,
		Window:   a.window,
		Kind:     kind,
		Callback: a.cb,
		Granted:  granted,
	})
	return nil
}

// AbandonChannel leaves the current channel. It is safe to call repeatedly
// and after the window was torn down. An owner left audible is told it is
// muted until it requests a channel again.
func (a *Agent) AbandonChannel() {
	volume, muted, ok := a.registry.AgentState(a.id)
	if !a.registry.UnregisterAgent(a.id) {
		return
	}
	a.logger.Debug().Stringer("kind", a.kind).Msg("channel abandoned")
	if ok && !muted && a.cb != nil {
		a.cb.OnVolumeChanged(volume, true)
	}
}

// Registered reports whether the agent currently holds a channel.
func (a *Agent) Registered() bool { return a.registry.IsRegistered(a.id) }

// Kind returns the kind last requested.
func (a *Agent) Kind() Kind { return a.kind }

// Muted returns the last delivered mute state. An unregistered agent is
// muted.
func (a *Agent) Muted() bool {
	_, muted, ok := a.registry.AgentState(a.id)
	return !ok || muted
}

// Volume returns the last delivered volume, or 0 when unregistered.
func (a *Agent) Volume() float32 {
	volume, _, _ := a.registry.AgentState(a.id)
	return volume
}
