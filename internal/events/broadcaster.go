// Package events pushes channel status changes to websocket subscribers.
package events

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

// EventType names a websocket event.
type EventType string

const (
	EventStatusChanged EventType = "audio-status-changed"
	EventSnapshot      EventType = "audio-registry-snapshot"
)

// Event is the JSON envelope written to subscribers.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	conn   *websocket.Conn
	ctx    context.Context
	logger zerolog.Logger
}

// Broadcaster fans status events out to websocket subscribers. Subscribers
// whose writes fail are dropped.
type Broadcaster struct {
	subscribers map[string]*subscriber
	mutex       sync.RWMutex
	latest      audiochannel.Status
	timeout     time.Duration
	logger      *zerolog.Logger
}

// NewBroadcaster creates a broadcaster with a per-write timeout.
func NewBroadcaster(timeout time.Duration) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*subscriber),
		timeout:     timeout,
		logger:      logging.GetSubsystemLogger("audio-events"),
	}
}

// Subscribe adds a websocket connection and sends it the current status.
func (b *Broadcaster) Subscribe(ctx context.Context, connectionID string, conn *websocket.Conn) {
	b.mutex.Lock()
	if _, exists := b.subscribers[connectionID]; exists {
		b.logger.Debug().Str("connectionID", connectionID).Msg("duplicate subscription, replacing existing entry")
	}
	sub := &subscriber{
		conn:   conn,
		ctx:    ctx,
		logger: b.logger.With().Str("connectionID", connectionID).Logger(),
	}
	b.subscribers[connectionID] = sub
	latest := b.latest
	b.mutex.Unlock()
	subscribersGauge.Inc()
	b.logger.Debug().Str("connectionID", connectionID).Msg("audio events subscription added")

	go b.send(sub, Event{Type: EventStatusChanged, Data: latest})
}

// Unsubscribe removes a websocket connection.
func (b *Broadcaster) Unsubscribe(connectionID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, ok := b.subscribers[connectionID]; !ok {
		return
	}
	delete(b.subscribers, connectionID)
	subscribersGauge.Dec()
	b.logger.Debug().Str("connectionID", connectionID).Msg("audio events subscription removed")
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// Serve subscribes conn and blocks until the peer goes away or ctx is done.
// Incoming messages are discarded.
func (b *Broadcaster) Serve(ctx context.Context, conn *websocket.Conn) {
	connectionID := uuid.NewString()
	ctx = conn.CloseRead(ctx)
	b.Subscribe(ctx, connectionID, conn)
	<-ctx.Done()
	b.Unsubscribe(connectionID)
	conn.Close(websocket.StatusNormalClosure, "")
}

// OnAudioStatusChanged implements audiochannel.StatusObserver.
func (b *Broadcaster) OnAudioStatusChanged(status audiochannel.Status) {
	b.mutex.Lock()
	b.latest = status
	b.mutex.Unlock()
	b.broadcast(Event{Type: EventStatusChanged, Data: status})
}

// BroadcastSnapshot pushes a full registry snapshot.
func (b *Broadcaster) BroadcastSnapshot(snapshot audiochannel.Snapshot) {
	b.broadcast(Event{Type: EventSnapshot, Data: snapshot})
}

func (b *Broadcaster) broadcast(event Event) {
	b.mutex.RLock()
	subscribersCopy := make(map[string]*subscriber, len(b.subscribers))
	for id, sub := range b.subscribers {
		subscribersCopy[id] = sub
	}
	b.mutex.RUnlock()

	var failed []string
	for connectionID, sub := range subscribersCopy {
		if !b.send(sub, event) {
			failed = append(failed, connectionID)
		}
	}

	for _, connectionID := range failed {
		b.Unsubscribe(connectionID)
		b.logger.Warn().Str("connectionID", connectionID).Msg("removed failed audio events subscriber")
	}
}

func (b *Broadcaster) send(sub *subscriber, event Event) bool {
	if sub.ctx.Err() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(sub.ctx, b.timeout)
	defer cancel()

	if err := wsjson.Write(ctx, sub.conn, event); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
			sub.logger.Debug().Err(err).Msg("websocket connection closed during event send")
		} else {
			sub.logger.Warn().Err(err).Msg("failed to send event to subscriber")
		}
		eventsFailed.Inc()
		return false
	}
	eventsSent.WithLabelValues(string(event.Type)).Inc()
	return true
}
