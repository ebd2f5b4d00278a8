package offload

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStateMachineSeekVisibility(t *testing.T) {
	tests := []struct {
		name       string
		visibility Visibility
		seeking    int
		seeked     int
	}{
		{"Visible", Visible, 1, 1},
		{"Suppressed", Suppressed, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			owner := &ownerRecorder{}
			d := NewDecodeStateMachine(engine, owner)

			promise, err := d.Seek(9*time.Second, tt.visibility)
			require.NoError(t, err)
			assert.Equal(t, 9*time.Second, d.Position())
			assert.False(t, promise.Resolved())

			d.SeekCompleted()
			assert.Equal(t, SeekResult{Status: SeekDone, Position: 9 * time.Second}, promise.Result())
			assert.Equal(t, tt.seeking, owner.seeking)
			assert.Equal(t, tt.seeked, owner.seeked)
		})
	}
}

func TestDecodeStateMachineOffloadHandover(t *testing.T) {
	engine := &fakeEngine{}
	owner := &ownerRecorder{}
	d := NewDecodeStateMachine(engine, owner)
	require.NoError(t, d.Play())

	promise, err := d.Seek(4*time.Second, Visible)
	require.NoError(t, err)
	pending, err := d.EnterOffload()
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, 4*time.Second, pending.Target)
	assert.Same(t, promise, pending.Promise)
	assert.Equal(t, DecodePausedForOffload, d.State())
	assert.False(t, engine.playing)
	assert.Equal(t, []bool{true}, owner.offload)

	// The engine finishing the abandoned seek changes nothing.
	d.SeekCompleted()
	assert.False(t, promise.Resolved())

	for name, op := range map[string]func() error{
		"play":  d.Play,
		"pause": d.Pause,
		"seek": func() error {
			_, err := d.Seek(time.Second, Visible)
			return err
		},
		"enter": func() error {
			_, err := d.EnterOffload()
			return err
		},
	} {
		assert.True(t, errors.Is(op(), ErrInvalidState), name)
	}

	resumed, err := d.ExitOffload(33*time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, DecodeDecoding, d.State())
	assert.Equal(t, 33*time.Second, d.Position())
	assert.True(t, engine.playing)
	assert.Equal(t, 1, owner.seeking, "the repositioning seek is suppressed")
	assert.Equal(t, []bool{true, false}, owner.offload)

	d.SeekCompleted()
	assert.Equal(t, SeekDone, resumed.Result().Status)
	assert.Equal(t, 0, owner.seeked)

	_, err = d.ExitOffload(0, false)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestDecodeStateMachineSeekSupersedes(t *testing.T) {
	d := NewDecodeStateMachine(&fakeEngine{}, nil)
	first, err := d.Seek(time.Second, Visible)
	require.NoError(t, err)
	second, err := d.Seek(2*time.Second, Visible)
	require.NoError(t, err)

	assert.Equal(t, SeekCancelled, first.Result().Status)
	d.SeekCompleted()
	assert.Equal(t, SeekResult{Status: SeekDone, Position: 2 * time.Second}, second.Result())
}

func TestDecodeStateMachineEngineSeekFailure(t *testing.T) {
	engine := &fakeEngine{failSeek: true}
	d := NewDecodeStateMachine(engine, nil)
	promise, err := d.Seek(time.Second, Suppressed)
	require.Error(t, err)
	assert.Equal(t, SeekFailed, promise.Result().Status)
	assert.Equal(t, time.Duration(0), d.Position())
}

func TestDecodeStateMachineEndAndShutdown(t *testing.T) {
	engine := &fakeEngine{}
	owner := &ownerRecorder{}
	d := NewDecodeStateMachine(engine, owner)
	require.NoError(t, d.Play())

	pending, err := d.Seek(time.Minute, Visible)
	require.NoError(t, err)
	d.PlaybackEnded()
	assert.Equal(t, SeekAtEnd, pending.Result().Status)
	assert.Equal(t, 1, owner.ended)
	assert.False(t, d.Playing())

	require.NoError(t, d.Shutdown())
	require.NoError(t, d.Shutdown())
	assert.True(t, engine.shutdown)
	assert.Equal(t, DecodeShutdown, d.State())
	assert.True(t, errors.Is(d.Play(), ErrInvalidState))
	d.PlaybackEnded()
	assert.Equal(t, 1, owner.ended)
}
