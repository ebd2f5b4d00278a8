package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
)

type rawEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startServer(t *testing.T, b *Broadcaster) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		b.Serve(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) rawEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ev rawEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return ev
}

func TestBroadcasterStatusEvents(t *testing.T) {
	b := NewBroadcaster(time.Second)
	b.OnAudioStatusChanged(audiochannel.Status{AnyActive: true})
	url := startServer(t, b)

	conn := dial(t, url)
	defer conn.Close(websocket.StatusNormalClosure, "")

	initial := read(t, conn)
	assert.Equal(t, EventStatusChanged, initial.Type)
	assert.JSONEq(t, `{"telephony_active":false,"content_or_normal_active":false,"any_active":true,"force_speaker":false}`, string(initial.Data))
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	b.OnAudioStatusChanged(audiochannel.Status{TelephonyActive: true, AnyActive: true, ForceSpeaker: true})
	ev := read(t, conn)
	var status audiochannel.Status
	require.NoError(t, json.Unmarshal(ev.Data, &status))
	assert.Equal(t, audiochannel.Status{TelephonyActive: true, AnyActive: true, ForceSpeaker: true}, status)

	registry := audiochannel.NewRegistry(audiochannel.Policy{}, nil)
	registry.Window(4)
	b.BroadcastSnapshot(registry.Snapshot())
	ev = read(t, conn)
	assert.Equal(t, EventSnapshot, ev.Type)
	assert.Contains(t, string(ev.Data), `"id":4`)
}

func TestBroadcasterDropsClosedSubscribers(t *testing.T) {
	b := NewBroadcaster(time.Second)
	url := startServer(t, b)

	conn := dial(t, url)
	read(t, conn)
	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "bye")
	assert.Eventually(t, func() bool {
		b.OnAudioStatusChanged(audiochannel.Status{})
		return b.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
