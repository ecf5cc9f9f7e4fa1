// Package flags provides feature flags for exhibit behaviors that differ
// between installations. Flags are read-only after initialization and
// unknown flags read as disabled.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/displayboard/internal/log"
)

const (
	// FlagStartupScream plays the first scream immediately instead of after
	// the first interval.
	FlagStartupScream = "startup-scream"

	// FlagShutdownFade fades ambient and rat channels out on shutdown
	// instead of cutting them.
	FlagShutdownFade = "shutdown-fade"

	// FlagWatchSounds rescans the sound library when files change on disk.
	FlagWatchSounds = "watch-sounds"
)

// Defaults returns the value each known flag has when not configured.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagStartupScream: true,
		FlagShutdownFade:  true,
		FlagWatchSounds:   false,
	}
}

// Registry holds feature flag state.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from configured values layered over Defaults.
func New(configured map[string]bool) *Registry {
	flags := Defaults()
	maps.Copy(flags, configured)
	r := &Registry{flags: flags}
	log.Debug(log.CatConfig, "Feature flags initialized", "flags", r.All())
	for name := range configured {
		if _, known := Defaults()[name]; !known {
			log.Warn(log.CatConfig, "Unknown feature flag in config", "flag", name)
		}
	}
	return r
}

// Enabled reports whether the named flag is on. Nil-safe; unknown flags are off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of every flag.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Names returns the flag names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.All()))
}
