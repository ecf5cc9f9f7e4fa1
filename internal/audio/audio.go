// Package audio defines the sound playback boundary used by the soundscape
// and bell loops, plus the sound library scanned from disk.
//
// Channels are addressed by index. Each loop owns a fixed index range so no
// two loops ever drive the same channel.
package audio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownBackend is returned by Open for an unregistered backend name.
var ErrUnknownBackend = errors.New("unknown audio backend")

// PlayOptions controls one playback.
type PlayOptions struct {
	Volume float64       // Linear gain in [0,1]
	Offset time.Duration // Start position within the sound
	FadeIn time.Duration // Ramp from silence to Volume
}

// Sound is a loaded, playable file.
type Sound interface {
	Path() string
	Length() time.Duration
}

// Channel is one mixer voice.
type Channel interface {
	Index() int
	Play(s Sound, opts PlayOptions) error
	Fadeout(d time.Duration)
	Stop()
	Busy() bool
}

// Backend loads sounds and hands out channels.
type Backend interface {
	Load(path string) (Sound, error)
	Channel(index int) (Channel, error)
	// Play plays s on any free channel outside the reserved range.
	Play(s Sound, opts PlayOptions) error
	Close() error
}

// Options configures a backend.
type Options struct {
	Channels     int // Total mixer channels
	Reserved     int // Channels [0, Reserved) are never picked by Backend.Play
	DefaultGain  float64
	SampleRateHz int
}

// Factory builds a backend.
type Factory func(opts Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"null": func(opts Options) (Backend, error) { return NewNullBackend(opts), nil },
	}
)

// Register makes a backend available to Open. Backends requiring cgo
// register themselves from build-tagged packages.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Backends lists registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open builds the named backend.
func Open(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return f(opts)
}

// ClampVolume limits v to [0,1].
func ClampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
