package audiochannel

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

// AgentID is the stable handle of an agent record in the registry table.
type AgentID uuid.UUID

// NewAgentID returns a fresh random handle.
func NewAgentID() AgentID { return AgentID(uuid.New()) }

func (id AgentID) String() string { return uuid.UUID(id).String() }

// ChildID identifies a child process reporting channel activity.
type ChildID string

// ChildStatus is the activity a child process last reported.
type ChildStatus struct {
	TelephonyActive       bool `json:"telephony_active"`
	ContentOrNormalActive bool `json:"content_or_normal_active"`
	AnyActive             bool `json:"any_active"`
}

// Registration describes an agent joining a channel.
type Registration struct {
	ID       AgentID
	Window   WindowID
	Kind     Kind
	Callback Callback
	// Granted records whether permission for Kind was held at registration.
	Granted bool
}

type agentRecord struct {
	id      AgentID
	window  WindowID
	kind    Kind
	cb      Callback
	granted bool

	volume   float32
	muted    bool
	observed bool
}

type speakerPreference struct {
	window WindowID
	force  bool
}

// Registry is the process-wide table of windows, agents and child process
// statuses. It is the sole owner of every agent record; agents refer back
// to it through their AgentID.
type Registry struct {
	policy   Policy
	notifier *Notifier
	logger   *zerolog.Logger

	windows  map[WindowID]*WindowState
	agents   map[AgentID]*agentRecord
	children map[ChildID]ChildStatus
	speaker  []speakerPreference
}

// NewRegistry creates an empty registry. notifier may be nil.
func NewRegistry(policy Policy, notifier *Notifier) *Registry {
	return &Registry{
		policy:   policy,
		notifier: notifier,
		logger:   logging.GetSubsystemLogger("audio-channel-registry"),
		windows:  make(map[WindowID]*WindowState),
		agents:   make(map[AgentID]*agentRecord),
		children: make(map[ChildID]ChildStatus),
	}
}

// Policy returns the arbitration policy the registry was built with.
func (r *Registry) Policy() Policy { return r.policy }

// Window returns the state of window id, creating it on first use.
func (r *Registry) Window(id WindowID) *WindowState {
	w, ok := r.windows[id]
	if !ok {
		w = newWindowState(id)
		r.windows[id] = w
		windowsGauge.Set(float64(len(r.windows)))
		r.logger.Debug().Uint64("window", uint64(id)).Msg("window created")
	}
	return w
}

// LookupWindow returns the state of window id without creating it.
func (r *Registry) LookupWindow(id WindowID) (*WindowState, bool) {
	w, ok := r.windows[id]
	return w, ok
}

// RegisterAgent adds an agent to its window's channel and re-arbitrates the
// channel. It returns false, changing nothing, if the agent is already
// registered.
func (r *Registry) RegisterAgent(reg Registration) bool {
	if !reg.Kind.Valid() {
		return false
	}
	if _, ok := r.agents[reg.ID]; ok {
		r.logger.Debug().Str("agent", reg.ID.String()).Msg("agent already registered")
		return false
	}

	w := r.Window(reg.Window)
	w.idle = 0
	e := &w.entries[reg.Kind]
	if e.ActiveAgents == 0 && !e.overridden {
		e.Muted = r.policy.DefaultMuted(reg.Kind, reg.Granted)
	}

	r.agents[reg.ID] = &agentRecord{
		id:      reg.ID,
		window:  reg.Window,
		kind:    reg.Kind,
		cb:      reg.Callback,
		granted: reg.Granted,
	}
	w.agents = append(w.agents, reg.ID)
	e.ActiveAgents++

	activeAgentsGauge.WithLabelValues(reg.Kind.String()).Inc()
	registrationsTotal.WithLabelValues(reg.Kind.String()).Inc()
	r.logger.Debug().
		Str("agent", reg.ID.String()).
		Uint64("window", uint64(reg.Window)).
		Stringer("kind", reg.Kind).
		Bool("granted", reg.Granted).
		Int("active_agents", e.ActiveAgents).
		Msg("agent registered")

	r.arbitrate(w, reg.Kind)
	r.statusChanged()
	return true
}

// UnregisterAgent removes an agent from whichever channel it joined. It is
// idempotent and returns whether anything was removed.
func (r *Registry) UnregisterAgent(id AgentID) bool {
	rec, ok := r.agents[id]
	if !ok {
		return false
	}
	delete(r.agents, id)
	activeAgentsGauge.WithLabelValues(rec.kind.String()).Dec()

	if w, ok := r.windows[rec.window]; ok {
		w.removeAgent(id)
		e := &w.entries[rec.kind]
		if e.ActiveAgents > 0 {
			e.ActiveAgents--
		}
		r.logger.Debug().
			Str("agent", id.String()).
			Uint64("window", uint64(rec.window)).
			Stringer("kind", rec.kind).
			Int("active_agents", e.ActiveAgents).
			Msg("agent unregistered")
		r.arbitrate(w, rec.kind)
	}
	r.statusChanged()
	return true
}

// IsRegistered reports whether id currently holds a channel.
func (r *Registry) IsRegistered(id AgentID) bool {
	_, ok := r.agents[id]
	return ok
}

// AgentState returns the last (volume, muted) delivered to an agent.
func (r *Registry) AgentState(id AgentID) (volume float32, muted bool, ok bool) {
	rec, ok := r.agents[id]
	if !ok {
		return 0, true, false
	}
	return rec.volume, rec.muted, true
}

// RemoveWindow tears a window down. Its agents are dropped from the table
// without callbacks; their owners' later AbandonChannel calls are no-ops.
func (r *Registry) RemoveWindow(id WindowID) {
	w, ok := r.windows[id]
	if !ok {
		return
	}
	for _, agent := range w.agents {
		if rec, ok := r.agents[agent]; ok {
			activeAgentsGauge.WithLabelValues(rec.kind.String()).Dec()
			delete(r.agents, agent)
		}
	}
	delete(r.windows, id)
	r.dropSpeakerPreference(id)
	windowsGauge.Set(float64(len(r.windows)))
	r.logger.Debug().Uint64("window", uint64(id)).Int("agents", len(w.agents)).Msg("window removed")
	r.statusChanged()
}

// Sweep removes windows that were found without agents on two consecutive
// sweeps. It returns the number of windows removed.
func (r *Registry) Sweep() int {
	removed := 0
	for id, w := range r.windows {
		if len(w.agents) > 0 || w.captured {
			w.idle = 0
			continue
		}
		w.idle++
		if w.idle < 2 {
			continue
		}
		delete(r.windows, id)
		r.dropSpeakerPreference(id)
		removed++
	}
	if removed > 0 {
		windowsGauge.Set(float64(len(r.windows)))
		r.logger.Debug().Int("removed", removed).Int("remaining", len(r.windows)).Msg("swept idle windows")
	}
	return removed
}

// SetChannelVolume sets the volume of one channel and re-arbitrates it.
// Values are clamped to [0, 1].
func (r *Registry) SetChannelVolume(window WindowID, kind Kind, volume float32) {
	if !kind.Valid() {
		return
	}
	if math.IsNaN(float64(volume)) {
		volume = 0
	}
	volume = float32(math.Max(0, math.Min(1, float64(volume))))
	w := r.Window(window)
	w.entries[kind].Volume = volume
	r.arbitrate(w, kind)
}

// SetChannelMuted explicitly mutes or unmutes one channel. The explicit value
// sticks across reactivations of the channel.
func (r *Registry) SetChannelMuted(window WindowID, kind Kind, muted bool) {
	if !kind.Valid() {
		return
	}
	w := r.Window(window)
	e := &w.entries[kind]
	e.Muted = muted
	e.overridden = true
	r.arbitrate(w, kind)
	r.statusChanged()
}

// SetWindowCaptured flags a window's audio as routed to a capture graph and
// tells every agent in it.
func (r *Registry) SetWindowCaptured(window WindowID, captured bool) {
	w := r.Window(window)
	if w.captured == captured {
		return
	}
	w.captured = captured
	for _, id := range w.Agents() {
		if rec, ok := r.agents[id]; ok && rec.cb != nil {
			rec.cb.OnAudioCaptureChanged(captured)
		}
	}
}

// SetForceSpeaker records a window's forced-speaker preference. When
// several windows hold a preference, the most recently set one wins.
func (r *Registry) SetForceSpeaker(window WindowID, force bool) {
	r.dropSpeakerPreference(window)
	r.speaker = append(r.speaker, speakerPreference{window: window, force: force})
	r.statusChanged()
}

// ClearForceSpeaker drops a window's forced-speaker preference.
func (r *Registry) ClearForceSpeaker(window WindowID) {
	if r.dropSpeakerPreference(window) {
		r.statusChanged()
	}
}

// ForceSpeaker returns the effective forced-speaker preference.
func (r *Registry) ForceSpeaker() bool {
	if len(r.speaker) == 0 {
		return false
	}
	return r.speaker[len(r.speaker)-1].force
}

func (r *Registry) dropSpeakerPreference(window WindowID) bool {
	for i, p := range r.speaker {
		if p.window == window {
			r.speaker = append(r.speaker[:i], r.speaker[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateChildStatus records the activity reported by a child process.
func (r *Registry) UpdateChildStatus(child ChildID, status ChildStatus) {
	prev, existed := r.children[child]
	r.children[child] = status
	if !existed {
		childrenGauge.Set(float64(len(r.children)))
	}
	if existed && prev == status {
		return
	}
	r.logger.Debug().
		Str("child", string(child)).
		Bool("telephony", status.TelephonyActive).
		Bool("content_or_normal", status.ContentOrNormalActive).
		Bool("any", status.AnyActive).
		Msg("child status updated")
	r.statusChanged()
}

// RemoveChild forgets a child process after it shut down.
func (r *Registry) RemoveChild(child ChildID) {
	if _, ok := r.children[child]; !ok {
		return
	}
	delete(r.children, child)
	childrenGauge.Set(float64(len(r.children)))
	r.logger.Debug().Str("child", string(child)).Msg("child removed")
	r.statusChanged()
}

// IsAnyChannelActive reports whether any channel of any window is active,
// optionally including reports from child processes.
func (r *Registry) IsAnyChannelActive(checkChildren bool) bool {
	for _, w := range r.windows {
		if w.hasActive() {
			return true
		}
	}
	if checkChildren {
		for _, c := range r.children {
			if c.AnyActive {
				return true
			}
		}
	}
	return false
}

// IsTelephonyActive reports whether the telephony channel is active in this
// process or in any reporting child.
func (r *Registry) IsTelephonyActive() bool {
	for _, w := range r.windows {
		if w.hasActive(KindTelephony) {
			return true
		}
	}
	for _, c := range r.children {
		if c.TelephonyActive {
			return true
		}
	}
	return false
}

// IsContentOrNormalActive reports whether a content or normal channel is
// active in this process or in any reporting child.
func (r *Registry) IsContentOrNormalActive() bool {
	for _, w := range r.windows {
		if w.hasActive(KindContent, KindNormal) {
			return true
		}
	}
	for _, c := range r.children {
		if c.ContentOrNormalActive {
			return true
		}
	}
	return false
}

// LocalStatus summarizes this process only; children report it upstream.
func (r *Registry) LocalStatus() ChildStatus {
	var s ChildStatus
	for _, w := range r.windows {
		s.TelephonyActive = s.TelephonyActive || w.hasActive(KindTelephony)
		s.ContentOrNormalActive = s.ContentOrNormalActive || w.hasActive(KindContent, KindNormal)
		s.AnyActive = s.AnyActive || w.hasActive()
	}
	return s
}

// Status summarizes this process and every reporting child.
func (r *Registry) Status() Status {
	return Status{
		TelephonyActive:       r.IsTelephonyActive(),
		ContentOrNormalActive: r.IsContentOrNormalActive(),
		AnyActive:             r.IsAnyChannelActive(true),
		ForceSpeaker:          r.ForceSpeaker(),
	}
}

// WindowIDs returns the known windows in ascending order.
func (r *Registry) WindowIDs() []WindowID {
	ids := make([]WindowID, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) statusChanged() {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(r.Status())
}
