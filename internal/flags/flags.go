// Package flags holds feature toggles read from configuration.
// Flags are read-only after initialization and unknown flags are disabled.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/svcreg/internal/log"
)

const (
	// FlagFilterCache routes Lookup and Subscribe filters through the
	// compiled-filter cache.
	FlagFilterCache = "filter-cache"

	// FlagSnapshotDiff makes scenario output show a property diff for
	// MODIFIED events.
	FlagSnapshotDiff = "snapshot-diff"
)

// Defaults returns the value of every known flag when configuration is silent.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagFilterCache:  true,
		FlagSnapshotDiff: true,
	}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. The map is copied.
// A nil map yields a registry with every flag disabled.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: maps.Clone(flags)}
	if r.flags == nil {
		r.flags = make(map[string]bool)
	}
	log.Debug(log.CatConfig, "feature flags initialized", "count", len(r.flags), "enabled", r.EnabledNames())
	return r
}

// Enabled reports whether the named flag is on. Unknown flags and a nil
// registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "unknown flag accessed", "flag", name)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	return maps.Clone(r.flags)
}

// EnabledNames returns the sorted names of the flags that are on.
func (r *Registry) EnabledNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	for name, on := range r.flags {
		if on {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
