package audiochannel

import (
	"fmt"
	"strings"
)

// PermissionDecision is the answer of the permission subsystem.
type PermissionDecision int

const (
	PermissionUnknown PermissionDecision = iota
	PermissionAllow
	PermissionDeny
)

func (d PermissionDecision) String() string {
	switch d {
	case PermissionAllow:
		return "allow"
	case PermissionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// PermissionChecker is queried once per channel request with the
// requesting principal and a permission name such as "audio-channel-alarm".
type PermissionChecker interface {
	Check(principal, permission string) PermissionDecision
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(principal, permission string) PermissionDecision

func (f PermissionFunc) Check(principal, permission string) PermissionDecision {
	return f(principal, permission)
}

// StaticPermissions is an in-memory permission table. Missing entries answer
// PermissionUnknown.
type StaticPermissions map[string]map[string]PermissionDecision

// Set records a decision for principal on kind.
func (s StaticPermissions) Set(principal string, kind Kind, decision PermissionDecision) {
	perms, ok := s[principal]
	if !ok {
		perms = make(map[string]PermissionDecision)
		s[principal] = perms
	}
	perms[kind.PermissionName()] = decision
}

func (s StaticPermissions) Check(principal, permission string) PermissionDecision {
	if perms, ok := s[principal]; ok {
		return perms[permission]
	}
	return PermissionUnknown
}

// ParseGrants builds a StaticPermissions table from
// "principal=kind,kind;principal=kind". A kind prefixed with "!" is denied.
func ParseGrants(grants string) (StaticPermissions, error) {
	table := make(StaticPermissions)
	for _, entry := range strings.Split(grants, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		principal, kinds, ok := strings.Cut(entry, "=")
		principal = strings.TrimSpace(principal)
		if !ok || principal == "" {
			return nil, fmt.Errorf("audiochannel: malformed grant %q", entry)
		}
		for _, name := range strings.Split(kinds, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			decision := PermissionAllow
			if strings.HasPrefix(name, "!") {
				decision = PermissionDeny
				name = name[1:]
			}
			kind, err := ParseKind(name)
			if err != nil {
				return nil, err
			}
			table.Set(principal, kind, decision)
		}
	}
	return table, nil
}
