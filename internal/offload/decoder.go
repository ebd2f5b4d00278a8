package offload

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmndc/nokia-leo-sub000/internal/logging"
)

// DecodeState is the state of the software decode pipeline.
type DecodeState int

const (
	DecodeDecoding DecodeState = iota
	// DecodePausedForOffload means the hardware session owns playback.
	DecodePausedForOffload
	DecodeShutdown
)

func (s DecodeState) String() string {
	switch s {
	case DecodeDecoding:
		return "decoding"
	case DecodePausedForOffload:
		return "paused_for_offload"
	case DecodeShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("DecodeState(%d)", int(s))
	}
}

// Visibility decides whether a seek is surfaced to the playback owner.
type Visibility int

const (
	Visible Visibility = iota
	// Suppressed seeks move the pipeline without seeking/seeked events.
	Suppressed
)

// Engine is the software decode pipeline. Seek is asynchronous: the engine
// calls DecodeStateMachine.SeekCompleted once it lands.
type Engine interface {
	Play() error
	Pause() error
	Seek(position time.Duration) error
	Position() time.Duration
	Shutdown() error
}

// Owner is the playback owner (the media element).
type Owner interface {
	OnSeeking()
	OnSeeked()
	OnPlaybackEnded()
	OnOffloadChanged(offloaded bool)
}

// PendingSeek is a seek the decode pipeline accepted but did not finish.
type PendingSeek struct {
	Target     time.Duration
	Visibility Visibility
	Promise    *SeekPromise
}

// DecodeStateMachine owns the software pipeline's state. It is driven on
// the coordinating goroutine.
type DecodeStateMachine struct {
	engine  Engine
	owner   Owner
	state   DecodeState
	playing bool
	pending *PendingSeek
	logger  zerolog.Logger
}

// NewDecodeStateMachine wraps engine. owner may be nil.
func NewDecodeStateMachine(engine Engine, owner Owner) *DecodeStateMachine {
	return &DecodeStateMachine{
		engine: engine,
		owner:  owner,
		logger: *logging.GetSubsystemLogger("decode-state-machine"),
	}
}

// State returns the pipeline state.
func (d *DecodeStateMachine) State() DecodeState { return d.state }

// Playing reports the owner's play intent as last seen by the pipeline.
func (d *DecodeStateMachine) Playing() bool { return d.playing }

func (d *DecodeStateMachine) direct(op string) error {
	if d.state != DecodeDecoding {
		return fmt.Errorf("%s while %s: %w", op, d.state, ErrInvalidState)
	}
	return nil
}

// Play starts software playback.
func (d *DecodeStateMachine) Play() error {
	if err := d.direct("play"); err != nil {
		return err
	}
	if err := d.engine.Play(); err != nil {
		return err
	}
	d.playing = true
	return nil
}

// Pause pauses software playback.
func (d *DecodeStateMachine) Pause() error {
	if err := d.direct("pause"); err != nil {
		return err
	}
	if err := d.engine.Pause(); err != nil {
		return err
	}
	d.playing = false
	return nil
}

// Seek starts a software seek. A seek still in flight is superseded.
func (d *DecodeStateMachine) Seek(target time.Duration, visibility Visibility) (*SeekPromise, error) {
	if err := d.direct("seek"); err != nil {
		return nil, err
	}
	return d.seek(target, visibility)
}

func (d *DecodeStateMachine) seek(target time.Duration, visibility Visibility) (*SeekPromise, error) {
	if target < 0 {
		target = 0
	}
	promise := newSeekPromise(target)
	if prev := d.pending; prev != nil {
		prev.Promise.resolve(SeekResult{Status: SeekCancelled, Position: target})
	}
	d.pending = &PendingSeek{Target: target, Visibility: visibility, Promise: promise}
	if visibility == Visible && d.owner != nil {
		d.owner.OnSeeking()
	}
	if err := d.engine.Seek(target); err != nil {
		d.pending = nil
		promise.resolve(SeekResult{Status: SeekFailed, Position: d.engine.Position()})
		return promise, err
	}
	d.logger.Debug().Dur("target", target).Bool("visible", visibility == Visible).Msg("decoder seeking")
	return promise, nil
}

// SeekCompleted is called by the engine when its seek landed. It is
// ignored when the pipeline handed playback to the hardware meanwhile.
func (d *DecodeStateMachine) SeekCompleted() {
	if d.state != DecodeDecoding || d.pending == nil {
		return
	}
	pending := d.pending
	d.pending = nil
	if pending.Visibility == Visible && d.owner != nil {
		d.owner.OnSeeked()
	}
	pending.Promise.resolve(SeekResult{Status: SeekDone, Position: pending.Target})
}

// PlaybackEnded is called by the engine at the end of stream.
func (d *DecodeStateMachine) PlaybackEnded() {
	if d.state != DecodeDecoding {
		return
	}
	d.playing = false
	if d.pending != nil {
		d.pending.Promise.resolve(SeekResult{Status: SeekAtEnd, Position: d.engine.Position()})
		d.pending = nil
	}
	if d.owner != nil {
		d.owner.OnPlaybackEnded()
	}
}

// Position is the pending seek target while seeking, otherwise the engine
// position.
func (d *DecodeStateMachine) Position() time.Duration {
	if d.pending != nil {
		return d.pending.Target
	}
	return d.engine.Position()
}

// EnterOffload pauses the software pipeline for a hardware session and
// hands over any seek still in flight.
func (d *DecodeStateMachine) EnterOffload() (*PendingSeek, error) {
	if err := d.direct("enter offload"); err != nil {
		return nil, err
	}
	if err := d.engine.Pause(); err != nil {
		return nil, err
	}
	d.state = DecodePausedForOffload
	pending := d.pending
	d.pending = nil
	d.logger.Debug().Bool("pending_seek", pending != nil).Msg("paused for offload")
	if d.owner != nil {
		d.owner.OnOffloadChanged(true)
	}
	return pending, nil
}

// ExitOffload resumes the software pipeline at position after the hardware
// session is gone. The repositioning seek is not surfaced to the owner.
func (d *DecodeStateMachine) ExitOffload(position time.Duration, playing bool) (*SeekPromise, error) {
	if d.state != DecodePausedForOffload {
		return nil, fmt.Errorf("exit offload while %s: %w", d.state, ErrInvalidState)
	}
	d.state = DecodeDecoding
	d.playing = playing
	if d.owner != nil {
		d.owner.OnOffloadChanged(false)
	}
	promise, err := d.seek(position, Suppressed)
	if err != nil {
		return promise, err
	}
	if playing {
		if err := d.engine.Play(); err != nil {
			return promise, err
		}
	}
	d.logger.Debug().Dur("position", position).Bool("playing", playing).Msg("resumed software decoding")
	return promise, nil
}

// Shutdown stops the pipeline for good.
func (d *DecodeStateMachine) Shutdown() error {
	if d.state == DecodeShutdown {
		return nil
	}
	d.state = DecodeShutdown
	if d.pending != nil {
		d.pending.Promise.resolve(SeekResult{Status: SeekCancelled, Position: d.pending.Target})
		d.pending = nil
	}
	return d.engine.Shutdown()
}
