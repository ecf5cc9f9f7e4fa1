package audio

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zjrosen/displayboard/internal/log"
)

// NullBackend logs playback instead of producing sound. It is used when no
// audio device is present and by tests, which inspect its play history.
type NullBackend struct {
	mu       sync.Mutex
	opts     Options
	channels map[int]*NullChannel
	history  []Played
	closed   bool
	// LengthOf reports the length of a loaded sound. Defaults to zero.
	LengthOf func(path string) time.Duration
	// Strict makes Load fail for paths that do not exist on disk.
	Strict bool
}

// Played records one playback on a NullBackend.
type Played struct {
	Channel int // -1 for Backend.Play
	Path    string
	Opts    PlayOptions
}

// NewNullBackend creates a NullBackend.
func NewNullBackend(opts Options) *NullBackend {
	return &NullBackend{opts: opts, channels: make(map[int]*NullChannel)}
}

type nullSound struct {
	path   string
	length time.Duration
}

func (s nullSound) Path() string          { return s.path }
func (s nullSound) Length() time.Duration { return s.length }

// Load implements Backend.
func (b *NullBackend) Load(path string) (Sound, error) {
	if b.Strict {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	var length time.Duration
	if b.LengthOf != nil {
		length = b.LengthOf(path)
	}
	return nullSound{path: path, length: length}, nil
}

// Channel implements Backend.
func (b *NullBackend) Channel(index int) (Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opts.Channels > 0 && (index < 0 || index >= b.opts.Channels) {
		return nil, fmt.Errorf("channel %d out of range [0,%d)", index, b.opts.Channels)
	}
	ch, ok := b.channels[index]
	if !ok {
		ch = &NullChannel{index: index, backend: b}
		b.channels[index] = ch
	}
	return ch, nil
}

// Play implements Backend.
func (b *NullBackend) Play(s Sound, opts PlayOptions) error {
	b.record(Played{Channel: -1, Path: s.Path(), Opts: opts})
	log.Debug(log.CatAudio, "Play", "sound", s.Path(), "volume", opts.Volume)
	return nil
}

// Close implements Backend.
func (b *NullBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// History returns every playback so far.
func (b *NullBackend) History() []Played {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Played(nil), b.history...)
}

// Closed reports whether Close was called.
func (b *NullBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *NullBackend) record(p Played) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, p)
}

// NullChannel is a NullBackend channel.
type NullChannel struct {
	mu       sync.Mutex
	index    int
	backend  *NullBackend
	busy     bool
	fadeouts int
	stops    int
}

// Index implements Channel.
func (c *NullChannel) Index() int { return c.index }

// Play implements Channel.
func (c *NullChannel) Play(s Sound, opts PlayOptions) error {
	c.mu.Lock()
	c.busy = true
	c.mu.Unlock()
	c.backend.record(Played{Channel: c.index, Path: s.Path(), Opts: opts})
	log.Debug(log.CatAudio, "Channel play", "channel", c.index, "sound", s.Path(), "volume", opts.Volume)
	return nil
}

// Fadeout implements Channel.
func (c *NullChannel) Fadeout(time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.fadeouts++
}

// Stop implements Channel.
func (c *NullChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.stops++
}

// Busy implements Channel.
func (c *NullChannel) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Fadeouts returns how many times Fadeout was called.
func (c *NullChannel) Fadeouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fadeouts
}

// Stops returns how many times Stop was called.
func (c *NullChannel) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}
