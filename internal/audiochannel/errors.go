package audiochannel

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the permission subsystem refuses
	// a channel to a principal. The caller may retry once permission exists.
	ErrPermissionDenied = errors.New("audiochannel: permission denied")
	// ErrInvalidKind is returned for channel kinds outside the closed set.
	ErrInvalidKind = errors.New("audiochannel: invalid channel kind")
)

// PermissionError records which principal was refused which channel.
type PermissionError struct {
	Principal string
	Kind      Kind
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("audiochannel: %s denied %s", e.Principal, e.Kind.PermissionName())
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}
