package hardware

import (
	"fmt"
	"image/color"
	"sync"
)

// NullStrip keeps pixels in memory.
type NullStrip struct {
	mu     sync.Mutex
	pixels []color.RGBA
	shown  []color.RGBA
	shows  int
	closed bool
}

// NewNullStrip creates a strip of n pixels.
func NewNullStrip(n int) *NullStrip {
	return &NullStrip{pixels: make([]color.RGBA, n), shown: make([]color.RGBA, n)}
}

func (s *NullStrip) Len() int { return len(s.pixels) }

func (s *NullStrip) SetPixel(i int, c color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.pixels) {
		return fmt.Errorf("pixel %d out of range [0,%d)", i, len(s.pixels))
	}
	s.pixels[i] = c
	return nil
}

func (s *NullStrip) Fill(c color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pixels {
		s.pixels[i] = c
	}
	return nil
}

func (s *NullStrip) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.shown, s.pixels)
	s.shows++
	return nil
}

func (s *NullStrip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Shown returns the pixels as of the last Show.
func (s *NullStrip) Shown() []color.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]color.RGBA(nil), s.shown...)
}

// Shows returns how many times Show was called.
func (s *NullStrip) Shows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows
}

// NullServo records positions.
type NullServo struct {
	mu        sync.Mutex
	positions []float64
	closed    bool
}

func (s *NullServo) SetPosition(pos float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, ClampPosition(pos))
	return nil
}

func (s *NullServo) Center() error { return s.SetPosition(0) }

func (s *NullServo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Positions returns every position set so far.
func (s *NullServo) Positions() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.positions...)
}

// NullSwitch records its state changes.
type NullSwitch struct {
	mu      sync.Mutex
	history []bool
}

func (s *NullSwitch) Set(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, on)
	return nil
}

func (s *NullSwitch) Close() error { return nil }

// History returns every state set so far.
func (s *NullSwitch) History() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.history...)
}

// On reports the last state set.
func (s *NullSwitch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) > 0 && s.history[len(s.history)-1]
}
