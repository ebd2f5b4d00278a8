package offload

import (
	"errors"
	"fmt"
)

var (
	// ErrStartFailed is returned when a hardware session cannot be started.
	// The coordinator recovers by staying on the decode pipeline.
	ErrStartFailed = errors.New("offload: session start failed")
	// ErrRuntime wraps errors reported by the hardware while playing.
	ErrRuntime = errors.New("offload: hardware runtime error")
	// ErrInvalidState is returned for calls that make no sense in the
	// current state. State is left unchanged.
	ErrInvalidState = errors.New("offload: invalid state")
	// ErrTornDown is reported when the platform reclaimed the hardware.
	ErrTornDown = errors.New("offload: hardware torn down")
	// ErrUnsupported is returned by factories that cannot build a session
	// for the requested media kind.
	ErrUnsupported = errors.New("offload: unsupported media kind")
)

// HardwareError carries the platform error code of a runtime failure.
type HardwareError struct {
	Code int
	Msg  string
}

func (e *HardwareError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("hardware error %d", e.Code)
	}
	return fmt.Sprintf("hardware error %d: %s", e.Code, e.Msg)
}

func (e *HardwareError) Unwrap() error { return ErrRuntime }

func startError(err error) error {
	return fmt.Errorf("%w: %w", ErrStartFailed, err)
}

func runtimeError(op string, err error) error {
	if errors.Is(err, ErrRuntime) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRuntime, err)
}
