package offload

import (
	"context"
	"fmt"
	"time"
)

// MediaKind tells audio-only elements from video elements.
type MediaKind int

const (
	MediaAudio MediaKind = iota
	MediaVideo
)

func (m MediaKind) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	default:
		return fmt.Sprintf("MediaKind(%d)", int(m))
	}
}

// Source is the resource handle the hardware decodes from.
type Source struct {
	URI      string
	MimeType string
}

// Target is the surface a video session renders to.
type Target struct {
	ID     string
	Width  int
	Height int
}

// EventType enumerates hardware notifications.
type EventType int

const (
	EventPrepared EventType = iota
	EventStarted
	EventPaused
	EventSeekComplete
	EventPlaybackComplete
	EventError
	EventTeardown
	EventNewFrame
)

var eventNames = map[EventType]string{
	EventPrepared:         "prepared",
	EventStarted:          "started",
	EventPaused:           "paused",
	EventSeekComplete:     "seek_complete",
	EventPlaybackComplete: "playback_complete",
	EventError:            "error",
	EventTeardown:         "teardown",
	EventNewFrame:         "new_frame",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a hardware notification. It is passed by value from the
// hardware goroutine to the coordinating goroutine.
type Event struct {
	Type     EventType
	Position time.Duration
	// Err is set for EventError.
	Err error
	// Frame is set for EventNewFrame.
	Frame Frame
}

// Frame describes one decoded video frame.
type Frame struct {
	Sequence  uint64
	Timestamp time.Duration
	Width     int
	Height    int
}

// Listener receives hardware events on an arbitrary goroutine.
type Listener func(Event)

// Backend drives one hardware playback pipeline. Methods are called from
// the coordinating goroutine only; events arrive through the Listener
// handed to the factory.
type Backend interface {
	// Start allocates and prepares the hardware. It returns once the
	// pipeline is ready to play.
	Start(ctx context.Context) error
	Resume() error
	Pause() error
	// Seek starts a seek. Each accepted Seek is answered by one
	// EventSeekComplete, in issue order, carrying the landed position.
	// A backend that merges queued seeks may report only the newest, as
	// long as that completion carries the newest target.
	Seek(position time.Duration) error
	SetVolume(volume float32) error
	// SetRate changes the playback speed. A pipeline that cannot play at
	// rate returns an error and playback falls back to software.
	SetRate(rate float64) error
	Position() time.Duration
	Duration() time.Duration
	// DetachTarget releases the rendering surface before Stop.
	DetachTarget()
	// Stop releases the hardware and blocks until it is free.
	Stop(ctx context.Context) error
}

// BackendFactory builds hardware pipelines.
type BackendFactory interface {
	NewAudio(src Source, listener Listener) (Backend, error)
	NewVideo(src Source, target Target, listener Listener) (Backend, error)
}
