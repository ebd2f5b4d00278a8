package audiopolicy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/offload"
)

type stubEngine struct {
	mu       sync.Mutex
	playing  bool
	position time.Duration
	seeks    []time.Duration
}

func (e *stubEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
	return nil
}

func (e *stubEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	return nil
}

func (e *stubEngine) Seek(position time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeks = append(e.seeks, position)
	e.position = position
	return nil
}

func (e *stubEngine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *stubEngine) Shutdown() error { return nil }

func (e *stubEngine) Seeks() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.seeks...)
}

func (e *stubEngine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

type stubOwner struct {
	mu      sync.Mutex
	seeked  int
	ended   int
	offload []bool
}

func (o *stubOwner) OnSeeking() {}

func (o *stubOwner) OnSeeked() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seeked++
}

func (o *stubOwner) OnPlaybackEnded() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended++
}

func (o *stubOwner) OnOffloadChanged(offloaded bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offload = append(o.offload, offloaded)
}

func (o *stubOwner) counts() (seeked, ended int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seeked, o.ended
}

type mediaFixture struct {
	daemon  *Daemon
	factory *offload.MockFactory
	engine  *stubEngine
	owner   *stubOwner
	session *MediaSession
}

func newMediaFixture(t *testing.T, media offload.MediaKind, window audiochannel.WindowID) *mediaFixture {
	t.Helper()
	factory := &offload.MockFactory{}
	d := startDaemon(t, testConfig(t), factory)
	fx := &mediaFixture{daemon: d, factory: factory, engine: &stubEngine{}, owner: &stubOwner{}}
	session, err := d.NewMediaSession(callContext(t), MediaSessionConfig{
		Window:    window,
		Principal: "app://music",
		Media:     media,
		Source:    offload.Source{URI: "file:///music/track.ogg", MimeType: "audio/ogg"},
		Engine:    fx.engine,
		Owner:     fx.owner,
	})
	require.NoError(t, err)
	fx.session = session
	return fx
}

func (fx *mediaFixture) offloaded(t *testing.T) bool {
	offloaded, err := fx.session.Offloaded(callContext(t))
	require.NoError(t, err)
	return offloaded
}

func TestMediaSessionFollowsChannelVolume(t *testing.T) {
	fx := newMediaFixture(t, offload.MediaAudio, 1)
	ctx := callContext(t)

	require.NoError(t, fx.session.RequestChannel(ctx, audiochannel.KindContent))
	require.NoError(t, fx.session.Play(ctx))
	assert.True(t, fx.engine.Playing())

	require.NoError(t, fx.session.FirstFrameReady(ctx))
	require.True(t, fx.offloaded(t))
	backend := fx.factory.Last()
	require.NotNil(t, backend)
	assert.True(t, backend.Playing())
	assert.False(t, fx.engine.Playing())
	assert.Equal(t, float32(1), backend.Volume())

	_, err := fx.daemon.ControlRPC(ctx, "setChannelVolume", map[string]interface{}{
		"window": 1.0, "kind": "content", "volume": 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, float32(0.4), backend.Volume())

	_, err = fx.daemon.ControlRPC(ctx, "setChannelMuted", map[string]interface{}{
		"window": 1.0, "kind": "content", "muted": true,
	})
	require.NoError(t, err)
	assert.Equal(t, float32(0), backend.Volume())

	require.NoError(t, fx.session.Close(ctx))
	assert.True(t, backend.Stopped())
	var registered bool
	require.NoError(t, fx.daemon.Do(ctx, func(r *audiochannel.Registry) error {
		registered = r.IsContentOrNormalActive()
		return nil
	}))
	assert.False(t, registered)
}

func TestMediaSessionAbandonMutesBackend(t *testing.T) {
	fx := newMediaFixture(t, offload.MediaAudio, 5)
	ctx := callContext(t)

	require.NoError(t, fx.session.RequestChannel(ctx, audiochannel.KindContent))
	require.NoError(t, fx.session.Play(ctx))
	require.NoError(t, fx.session.FirstFrameReady(ctx))
	require.True(t, fx.offloaded(t))
	backend := fx.factory.Last()
	require.Equal(t, float32(1), backend.Volume())

	require.NoError(t, fx.session.AbandonChannel(ctx))
	assert.Equal(t, float32(0), backend.Volume(), "an abandoned channel is silent")
	assert.True(t, fx.offloaded(t))
}

func TestMediaSessionCaptureFallsBack(t *testing.T) {
	fx := newMediaFixture(t, offload.MediaAudio, 2)
	ctx := callContext(t)

	require.NoError(t, fx.session.RequestChannel(ctx, audiochannel.KindNormal))
	require.NoError(t, fx.session.Play(ctx))
	require.NoError(t, fx.session.FirstFrameReady(ctx))
	require.True(t, fx.offloaded(t))
	backend := fx.factory.Last()
	backend.SetPosition(12 * time.Second)

	_, err := fx.daemon.ControlRPC(ctx, "setWindowCaptured", map[string]interface{}{"window": 2.0, "captured": true})
	require.NoError(t, err)

	assert.False(t, fx.offloaded(t))
	assert.True(t, backend.Stopped())
	assert.Equal(t, []time.Duration{12 * time.Second}, fx.engine.Seeks())
	assert.True(t, fx.engine.Playing())

	_, err = fx.daemon.ControlRPC(ctx, "setWindowCaptured", map[string]interface{}{"window": 2.0, "captured": false})
	require.NoError(t, err)
	require.NoError(t, fx.session.FirstFrameReady(ctx))
	assert.False(t, fx.offloaded(t), "fallback is permanent")
	assert.Len(t, fx.factory.Backends(), 1)
}

func TestMediaSessionIneligibleChannel(t *testing.T) {
	fx := newMediaFixture(t, offload.MediaAudio, 3)
	ctx := callContext(t)

	require.NoError(t, fx.session.RequestChannel(ctx, audiochannel.KindNotification))
	require.NoError(t, fx.session.FirstFrameReady(ctx))
	assert.False(t, fx.offloaded(t))
	assert.Empty(t, fx.factory.Backends())
}

func TestMediaSessionSoftwareSeek(t *testing.T) {
	fx := newMediaFixture(t, offload.MediaAudio, 4)
	ctx := callContext(t)

	promise, err := fx.session.Seek(ctx, 30*time.Second)
	require.NoError(t, err)
	position, err := fx.session.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, position)

	fx.session.EngineSeekCompleted()
	result, err := promise.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, offload.SeekDone, result.Status)
	assert.Equal(t, 30*time.Second, result.Position)

	fx.session.EnginePlaybackEnded()
	require.Eventually(t, func() bool {
		_, ended := fx.owner.counts()
		return ended == 1
	}, 2*time.Second, 10*time.Millisecond)
	seeked, _ := fx.owner.counts()
	assert.Equal(t, 1, seeked)
}

func TestMediaSessionPermissionDenied(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChannelGrants = "app://music=!alarm"
	d := startDaemon(t, cfg, &offload.MockFactory{})
	session, err := d.NewMediaSession(callContext(t), MediaSessionConfig{
		Window:    1,
		Principal: "app://music",
		Media:     offload.MediaAudio,
		Engine:    &stubEngine{},
		Owner:     &stubOwner{},
	})
	require.NoError(t, err)

	err = session.RequestChannel(callContext(t), audiochannel.KindAlarm)
	assert.ErrorIs(t, err, audiochannel.ErrPermissionDenied)
	var permErr *audiochannel.PermissionError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, "app://music", permErr.Principal)
}
