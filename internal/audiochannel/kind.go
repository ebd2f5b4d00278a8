// Package audiochannel arbitrates logical audio channels between the audio
// producers of every window in the process, and aggregates channel activity
// reported by child processes.
//
// Nothing in this package is safe for concurrent use. All calls must be made
// from the coordinating goroutine (see package dispatch).
package audiochannel

import (
	"fmt"
	"strings"
)

// Kind is a logical audio channel. The set is closed.
type Kind int

const (
	KindNormal Kind = iota
	KindContent
	KindNotification
	KindAlarm
	KindTelephony
	KindRinger
	KindPublicNotification
	KindSystem

	// NumKinds is the number of channel kinds; it sizes per-window tables.
	NumKinds int = iota
)

var kindNames = [NumKinds]string{
	KindNormal:             "normal",
	KindContent:            "content",
	KindNotification:       "notification",
	KindAlarm:              "alarm",
	KindTelephony:          "telephony",
	KindRinger:             "ringer",
	KindPublicNotification: "publicnotification",
	KindSystem:             "system",
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= 0 && int(k) < NumKinds
}

// PermissionName is the permission a principal needs to use the channel.
func (k Kind) PermissionName() string {
	return "audio-channel-" + k.String()
}

// NeedsPermission reports whether registering on k consults the permission
// subsystem. Normal and Content are available to every principal.
func (k Kind) NeedsPermission() bool {
	return k != KindNormal && k != KindContent
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a channel name to its Kind. Matching is case-insensitive.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, name)
}

// Kinds returns every kind in table order.
func Kinds() []Kind {
	out := make([]Kind, NumKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}
