// Package hardware defines the physical outputs of the exhibit: the LED
// strip, the bell servo and the mister switch. Implementations live in
// subpackages; this package holds the interfaces, null devices and the
// fail-soft guards the loops actually talk to.
package hardware

import (
	"errors"
	"image/color"
)

// ErrUnavailable is returned when a device cannot be opened on this host.
var ErrUnavailable = errors.New("hardware unavailable")

// Strip is an addressable RGB LED strip. Pixels are buffered until Show.
type Strip interface {
	Len() int
	SetPixel(i int, c color.RGBA) error
	Fill(c color.RGBA) error
	Show() error
	Close() error
}

// Servo positions a hobby servo. Position -1 is full left, 1 full right.
type Servo interface {
	SetPosition(pos float64) error
	Center() error
	Close() error
}

// Switch drives a single digital output.
type Switch interface {
	Set(on bool) error
	Close() error
}

// Black is an unlit pixel.
var Black = color.RGBA{A: 0xff}

// ClampPosition limits a servo position to [-1, 1].
func ClampPosition(pos float64) float64 {
	switch {
	case pos < -1:
		return -1
	case pos > 1:
		return 1
	default:
		return pos
	}
}
