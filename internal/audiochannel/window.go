package audiochannel

// WindowID identifies a window (browsing context) owning audio producers.
type WindowID uint64

// Entry is the channel table entry of one kind inside one window.
type Entry struct {
	Volume       float32 `json:"volume"`
	Muted        bool    `json:"muted"`
	ActiveAgents int     `json:"active_agents"`

	// overridden is set once the mute state was chosen explicitly, so the
	// default policy no longer applies when the channel is reactivated.
	overridden bool
}

// Active reports whether the channel currently produces audible output.
func (e Entry) Active() bool {
	return e.ActiveAgents > 0 && !e.Muted
}

// WindowState owns the channel table of one window and the ordered list of
// agents registered in it.
type WindowState struct {
	id       WindowID
	entries  [NumKinds]Entry
	captured bool
	agents   []AgentID

	// idle counts consecutive sweeps that found the window empty.
	idle int
}

func newWindowState(id WindowID) *WindowState {
	w := &WindowState{id: id}
	for i := range w.entries {
		w.entries[i].Volume = 1.0
	}
	return w
}

// ID returns the window identifier.
func (w *WindowState) ID() WindowID { return w.id }

// Entry returns a copy of the channel table entry for kind.
func (w *WindowState) Entry(kind Kind) Entry {
	if !kind.Valid() {
		return Entry{}
	}
	return w.entries[kind]
}

// Captured reports whether the window's audio is routed to a capture graph.
func (w *WindowState) Captured() bool { return w.captured }

// Agents returns the registered agents in registration order.
func (w *WindowState) Agents() []AgentID {
	out := make([]AgentID, len(w.agents))
	copy(out, w.agents)
	return out
}

// AgentCount returns the number of registered agents across all kinds.
func (w *WindowState) AgentCount() int { return len(w.agents) }

func (w *WindowState) removeAgent(id AgentID) bool {
	for i, a := range w.agents {
		if a == id {
			w.agents = append(w.agents[:i], w.agents[i+1:]...)
			return true
		}
	}
	return false
}

func (w *WindowState) hasActive(kinds ...Kind) bool {
	if len(kinds) == 0 {
		for _, e := range w.entries {
			if e.Active() {
				return true
			}
		}
		return false
	}
	for _, k := range kinds {
		if w.entries[k].Active() {
			return true
		}
	}
	return false
}
