package hardware

import (
	"image/color"
	"sync"

	"github.com/zjrosen/displayboard/internal/log"
)

// guard turns the first device error into a logged warning and every later
// call into a no-op. Exhibit hardware flakes; the show goes on without it.
type guard struct {
	name   string
	mu     sync.Mutex
	failed bool
}

func (g *guard) do(op string, fn func() error) error {
	g.mu.Lock()
	failed := g.failed
	g.mu.Unlock()
	if failed {
		return nil
	}
	if err := fn(); err != nil {
		g.mu.Lock()
		g.failed = true
		g.mu.Unlock()
		log.ErrorErr(log.CatHW, "Device failed, disabling", err, "device", g.name, "op", op)
	}
	return nil
}

// Failed reports whether the device has been disabled.
func (g *guard) Failed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed
}

// GuardedStrip wraps a Strip with fail-soft semantics.
type GuardedStrip struct {
	guard
	inner Strip
}

// GuardStrip wraps s. A nil s behaves as an always-failed device of length 0.
func GuardStrip(name string, s Strip) *GuardedStrip {
	g := &GuardedStrip{guard: guard{name: name}, inner: s}
	if s == nil {
		g.failed = true
	}
	return g
}

func (g *GuardedStrip) Len() int {
	if g.inner == nil {
		return 0
	}
	return g.inner.Len()
}

func (g *GuardedStrip) SetPixel(i int, c color.RGBA) error {
	return g.do("set_pixel", func() error { return g.inner.SetPixel(i, c) })
}

func (g *GuardedStrip) Fill(c color.RGBA) error {
	return g.do("fill", func() error { return g.inner.Fill(c) })
}

func (g *GuardedStrip) Show() error {
	return g.do("show", func() error { return g.inner.Show() })
}

func (g *GuardedStrip) Close() error {
	if g.inner == nil {
		return nil
	}
	if err := g.inner.Close(); err != nil {
		log.ErrorErr(log.CatHW, "Device close failed", err, "device", g.name)
	}
	return nil
}

// GuardedServo wraps a Servo with fail-soft semantics.
type GuardedServo struct {
	guard
	inner Servo
}

// GuardServo wraps s. A nil s behaves as an always-failed device.
func GuardServo(name string, s Servo) *GuardedServo {
	g := &GuardedServo{guard: guard{name: name}, inner: s}
	if s == nil {
		g.failed = true
	}
	return g
}

func (g *GuardedServo) SetPosition(pos float64) error {
	return g.do("set_position", func() error { return g.inner.SetPosition(ClampPosition(pos)) })
}

func (g *GuardedServo) Center() error {
	return g.do("center", func() error { return g.inner.Center() })
}

func (g *GuardedServo) Close() error {
	if g.inner == nil {
		return nil
	}
	if err := g.inner.Close(); err != nil {
		log.ErrorErr(log.CatHW, "Device close failed", err, "device", g.name)
	}
	return nil
}

// GuardedSwitch wraps a Switch with fail-soft semantics.
type GuardedSwitch struct {
	guard
	inner Switch
}

// GuardSwitch wraps s. A nil s behaves as an always-failed device.
func GuardSwitch(name string, s Switch) *GuardedSwitch {
	g := &GuardedSwitch{guard: guard{name: name}, inner: s}
	if s == nil {
		g.failed = true
	}
	return g
}

func (g *GuardedSwitch) Set(on bool) error {
	return g.do("set", func() error { return g.inner.Set(on) })
}

func (g *GuardedSwitch) Close() error {
	if g.inner == nil {
		return nil
	}
	if err := g.inner.Close(); err != nil {
		log.ErrorErr(log.CatHW, "Device close failed", err, "device", g.name)
	}
	return nil
}
