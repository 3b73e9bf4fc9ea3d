// Package events derives service events from filter-match transitions and
// delivers them synchronously to subscribed listeners.
package events

import (
	"github.com/zjrosen/svcreg/internal/filter"
	"github.com/zjrosen/svcreg/internal/properties"
)

// Kind is the type of a delivered service event.
type Kind int

const (
	// Registered: a new registration matches the subscription filter.
	Registered Kind = iota + 1
	// Modified: updated properties match the filter.
	Modified
	// ModifiedEndMatch: properties matched before an update and no longer do.
	ModifiedEndMatch
	// Unregistering: a matching registration is about to be removed.
	Unregistering
)

func (k Kind) String() string {
	switch k {
	case Registered:
		return "REGISTERED"
	case Modified:
		return "MODIFIED"
	case ModifiedEndMatch:
		return "MODIFIED_ENDMATCH"
	case Unregistering:
		return "UNREGISTERING"
	default:
		return "UNKNOWN"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k := Registered; k <= Unregistering; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// MutationType is the registry operation that triggered a dispatch.
type MutationType int

const (
	MutationRegister MutationType = iota
	MutationUpdate
	MutationUnregister
)

func (m MutationType) String() string {
	switch m {
	case MutationRegister:
		return "register"
	case MutationUpdate:
		return "update"
	case MutationUnregister:
		return "unregister"
	default:
		return "unknown"
	}
}

// Derive computes the event a subscription with filter f receives for a
// mutation. old is the snapshot before the mutation (the last known
// properties for an unregister), new the snapshot after it. A nil f
// matches everything. ok is false when nothing is delivered.
func Derive(m MutationType, old, new *properties.Dictionary, f *filter.Filter) (kind Kind, ok bool) {
	switch m {
	case MutationRegister:
		if f.Match(new) {
			return Registered, true
		}
	case MutationUpdate:
		if f.Match(new) {
			return Modified, true
		}
		if f.Match(old) {
			return ModifiedEndMatch, true
		}
	case MutationUnregister:
		if f.Match(old) {
			return Unregistering, true
		}
	}
	return 0, false
}
