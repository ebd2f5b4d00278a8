package audiochannel

// Policy holds the arbitration rules that are fixed for the process.
type Policy struct {
	// DefaultKind is the process-configured default channel. It is never
	// muted by default and needs no permission.
	DefaultKind Kind
	// Permissions answers channel permission queries. Nil answers unknown.
	Permissions PermissionChecker
}

// DefaultMuted reports whether a channel of kind starts muted when its
// first agent registers. Kinds that need no permission count as granted.
func (p Policy) DefaultMuted(kind Kind, granted bool) bool {
	if !kind.NeedsPermission() || kind == p.DefaultKind || granted {
		return false
	}
	return true
}

// RequiresPermission reports whether a request for kind consults the
// permission subsystem.
func (p Policy) RequiresPermission(kind Kind) bool {
	return kind.NeedsPermission() && kind != p.DefaultKind
}

func (p Policy) check(principal string, kind Kind) PermissionDecision {
	if p.Permissions == nil {
		return PermissionUnknown
	}
	return p.Permissions.Check(principal, kind.PermissionName())
}

// arbitrate pushes the channel's current (volume, muted) to every agent
// registered on it, in registration order. A channel without agents is left
// alone.
func (r *Registry) arbitrate(w *WindowState, kind Kind) {
	e := w.entries[kind]
	if e.ActiveAgents == 0 {
		return
	}
	// Callbacks may unregister agents, so walk a copy.
	for _, id := range w.Agents() {
		rec, ok := r.agents[id]
		if !ok || rec.kind != kind {
			continue
		}
		rec.deliver(e.Volume, e.Muted)
	}
}

func (rec *agentRecord) deliver(volume float32, muted bool) {
	if rec.observed && rec.volume == volume && rec.muted == muted {
		return
	}
	rec.volume = volume
	rec.muted = muted
	rec.observed = true
	if rec.cb != nil {
		rec.cb.OnVolumeChanged(volume, muted)
	}
}
