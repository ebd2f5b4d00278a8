package audiopolicy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/config"
	"github.com/bmndc/nokia-leo-sub000/internal/events"
	"github.com/bmndc/nokia-leo-sub000/internal/ipc"
	"github.com/bmndc/nokia-leo-sub000/internal/offload"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.IPCSocketPath = filepath.Join(t.TempDir(), "policy.sock")
	cfg.HTTPAddress = ""
	cfg.SweepInterval = 0
	cfg.EventTimeout = time.Second
	return cfg
}

// startDaemon runs a daemon until the test ends.
func startDaemon(t *testing.T, cfg *config.Config, factory offload.BackendFactory) *Daemon {
	t.Helper()
	d, err := NewDaemon(cfg, factory)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	if cfg.IPCSocketPath != "" {
		require.Eventually(t, func() bool {
			_, err := os.Stat(cfg.IPCSocketPath)
			return err == nil
		}, 2*time.Second, 10*time.Millisecond)
	}
	return d
}

func callContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewDaemonRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *config.Config)
	}{
		{"unknown default channel", func(cfg *config.Config) { cfg.DefaultChannel = "radio" }},
		{"malformed grants", func(cfg *config.Config) { cfg.ChannelGrants = "=alarm" }},
		{"unknown granted kind", func(cfg *config.Config) { cfg.ChannelGrants = "app://a=radio" }},
		{"empty loop queue", func(cfg *config.Config) { cfg.LoopQueueSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)
			_, err := NewDaemon(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestDaemonCapabilities(t *testing.T) {
	cfg := testConfig(t)
	d, err := NewDaemon(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, offload.Capabilities{}, d.Capabilities(), "no factory, no offload")

	cfg.OffloadVideo = false
	d, err = NewDaemon(cfg, &offload.MockFactory{})
	require.NoError(t, err)
	assert.Equal(t, offload.Capabilities{Audio: true}, d.Capabilities())
}

func TestDaemonRunTwice(t *testing.T) {
	cfg := testConfig(t)
	d := startDaemon(t, cfg, nil)
	assert.ErrorIs(t, d.Run(context.Background()), ErrDaemonRunning)
}

func TestDaemonAggregatesChildren(t *testing.T) {
	cfg := testConfig(t)
	d := startDaemon(t, cfg, nil)

	aggregates := make(chan audiochannel.Status, 16)
	client := ipc.NewClient(cfg.IPCSocketPath, time.Second, func(s audiochannel.Status) { aggregates <- s })
	require.NoError(t, client.Connect(callContext(t)))
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Report(audiochannel.ChildStatus{ContentOrNormalActive: true, AnyActive: true}))
	require.Eventually(t, func() bool {
		var active bool
		err := d.Do(callContext(t), func(r *audiochannel.Registry) error {
			active = r.IsContentOrNormalActive()
			return nil
		})
		return err == nil && active
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return client.Aggregate().ContentOrNormalActive
	}, 2*time.Second, 10*time.Millisecond)

	client.Close()
	require.Eventually(t, func() bool {
		snapshot, err := d.Snapshot(callContext(t))
		return err == nil && len(snapshot.Children) == 0 && !snapshot.Status.AnyActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemonSweepsIdleWindows(t *testing.T) {
	cfg := testConfig(t)
	cfg.SweepInterval = 10 * time.Millisecond
	d := startDaemon(t, cfg, nil)

	_, err := d.ControlRPC(callContext(t), "setChannelVolume", map[string]interface{}{
		"window": 4.0,
		"kind":   "alarm",
		"volume": 0.5,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, err := d.Snapshot(callContext(t))
		return err == nil && len(snapshot.Windows) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRouter(t *testing.T) {
	cfg := testConfig(t)
	d := startDaemon(t, cfg, nil)
	srv := httptest.NewServer(d.Router())
	t.Cleanup(srv.Close)

	require.NoError(t, d.Do(callContext(t), func(r *audiochannel.Registry) error {
		return audiochannel.NewAgent(r, 2, "app://music", audiochannel.CallbackFuncs{}).
			RequestChannel(audiochannel.KindContent)
	}))

	t.Run("status", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/status")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var status audiochannel.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, audiochannel.Status{ContentOrNormalActive: true, AnyActive: true}, status)
	})

	t.Run("windows", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/windows")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var snapshot audiochannel.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
		require.Len(t, snapshot.Windows, 1)
		assert.Equal(t, audiochannel.WindowID(2), snapshot.Windows[0].ID)
		require.NotEmpty(t, snapshot.Windows[0].Channels)
		assert.Equal(t, audiochannel.KindContent, snapshot.Windows[0].Channels[0].Kind)
	})

	rpc := func(t *testing.T, body string) (int, map[string]interface{}) {
		resp, err := http.Post(srv.URL+"/api/rpc", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	t.Run("rpc", func(t *testing.T) {
		code, out := rpc(t, `{"id":1,"method":"setChannelMuted","params":{"window":2,"kind":"content","muted":true}}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, 1.0, out["id"])
		entry, ok := out["result"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, true, entry["muted"])
		assert.Contains(t, entry, "volume")
		assert.Contains(t, entry, "active_agents")
		assert.NotContains(t, entry, "Volume")

		code, out = rpc(t, `{"method":"getStatus"}`)
		assert.Equal(t, http.StatusOK, code)
		result, ok := out["result"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, false, result["any_active"])
	})

	t.Run("rpc errors", func(t *testing.T) {
		code, _ := rpc(t, `{"method":"reboot"}`)
		assert.Equal(t, http.StatusNotFound, code)

		code, out := rpc(t, `{"method":"setChannelVolume","params":{"window":2,"kind":"content","volume":3}}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, out["error"], "out of range")

		code, _ = rpc(t, `{"params":{}}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRouterEvents(t *testing.T) {
	cfg := testConfig(t)
	d := startDaemon(t, cfg, nil)
	srv := httptest.NewServer(d.Router())
	t.Cleanup(srv.Close)

	ctx := callContext(t)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var initial events.Event
	require.NoError(t, wsjson.Read(ctx, conn, &initial))
	assert.Equal(t, events.EventStatusChanged, initial.Type)

	require.Eventually(t, func() bool { return d.Events().Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, err = d.ControlRPC(ctx, "setForceSpeaker", map[string]interface{}{"window": 1.0, "force": true})
	require.NoError(t, err)

	var changed struct {
		Type events.EventType    `json:"type"`
		Data audiochannel.Status `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &changed))
	assert.Equal(t, events.EventStatusChanged, changed.Type)
	assert.True(t, changed.Data.ForceSpeaker)
}
