package audiochannel

import "sort"

// ChannelSnapshot is the serializable view of one channel table entry.
type ChannelSnapshot struct {
	Kind         Kind    `json:"kind"`
	Volume       float32 `json:"volume"`
	Muted        bool    `json:"muted"`
	ActiveAgents int     `json:"active_agents"`
	Active       bool    `json:"active"`
}

// WindowSnapshot is the serializable view of one window.
type WindowSnapshot struct {
	ID       WindowID          `json:"id"`
	Captured bool              `json:"captured"`
	Agents   int               `json:"agents"`
	Channels []ChannelSnapshot `json:"channels"`
}

// ChildSnapshot is the last status reported by one child process.
type ChildSnapshot struct {
	ID ChildID `json:"id"`
	ChildStatus
}

// Snapshot is a point-in-time copy of the registry for status surfaces.
type Snapshot struct {
	Status   Status           `json:"status"`
	Windows  []WindowSnapshot `json:"windows"`
	Children []ChildSnapshot  `json:"children"`
}

// Snapshot copies the registry state. Only channels that were touched
// (registered, muted or re-leveled) are listed per window.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Status:   r.Status(),
		Windows:  make([]WindowSnapshot, 0, len(r.windows)),
		Children: make([]ChildSnapshot, 0, len(r.children)),
	}
	for _, id := range r.WindowIDs() {
		w := r.windows[id]
		ws := WindowSnapshot{ID: id, Captured: w.captured, Agents: len(w.agents), Channels: []ChannelSnapshot{}}
		for i, e := range w.entries {
			if e.ActiveAgents == 0 && !e.overridden && e.Volume == 1.0 {
				continue
			}
			ws.Channels = append(ws.Channels, ChannelSnapshot{
				Kind:         Kind(i),
				Volume:       e.Volume,
				Muted:        e.Muted,
				ActiveAgents: e.ActiveAgents,
				Active:       e.Active(),
			})
		}
		s.Windows = append(s.Windows, ws)
	}
	for id, c := range r.children {
		s.Children = append(s.Children, ChildSnapshot{ID: id, ChildStatus: c})
	}
	sort.Slice(s.Children, func(i, j int) bool { return s.Children[i].ID < s.Children[j].ID })
	return s
}
