// Package periph drives the exhibit hardware through periph.io: a WS2812
// strip over SPI, a servo on a hardware PWM pin and a GPIO output switch.
package periph

import (
	"fmt"
	"image/color"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/zjrosen/displayboard/internal/hardware"
	"github.com/zjrosen/displayboard/internal/log"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// Init loads the periph host drivers once per process.
func Init() error {
	hostOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			hostErr = fmt.Errorf("%w: %w", hardware.ErrUnavailable, err)
			return
		}
		for _, f := range state.Failed {
			log.Debug(log.CatHW, "Driver failed to load", "driver", f.D.String(), "error", f.Err)
		}
	})
	return hostErr
}

func pin(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: no pin %q", hardware.ErrUnavailable, name)
	}
	return p, nil
}

// StripConfig configures an SPI LED strip.
type StripConfig struct {
	Port       string // SPI port name; empty selects the first one
	NumPixels  int
	Brightness float64 // [0,1], applied at Show
}

// Strip is a WS2812 strip driven over SPI.
type Strip struct {
	port       spi.PortCloser
	dev        *nrzled.Dev
	brightness float64
	buf        []byte
	pixels     []color.RGBA
}

// OpenStrip opens the SPI port and configures the strip.
func OpenStrip(cfg StripConfig) (*Strip, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: open spi %q: %w", hardware.ErrUnavailable, cfg.Port, err)
	}
	opts := nrzled.DefaultOpts
	opts.NumPixels = cfg.NumPixels
	opts.Channels = 3
	opts.Freq = 2500 * physic.KiloHertz
	dev, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: nrzled: %w", hardware.ErrUnavailable, err)
	}
	log.Info(log.CatHW, "LED strip opened", "pixels", cfg.NumPixels, "brightness", cfg.Brightness)
	return &Strip{
		port:       port,
		dev:        dev,
		brightness: cfg.Brightness,
		buf:        make([]byte, cfg.NumPixels*3),
		pixels:     make([]color.RGBA, cfg.NumPixels),
	}, nil
}

func (s *Strip) Len() int { return len(s.pixels) }

func (s *Strip) SetPixel(i int, c color.RGBA) error {
	if i < 0 || i >= len(s.pixels) {
		return fmt.Errorf("pixel %d out of range [0,%d)", i, len(s.pixels))
	}
	s.pixels[i] = c
	return nil
}

func (s *Strip) Fill(c color.RGBA) error {
	for i := range s.pixels {
		s.pixels[i] = c
	}
	return nil
}

// Show scales the buffer by the configured brightness and writes it out.
func (s *Strip) Show() error {
	for i, c := range s.pixels {
		s.buf[i*3] = scale(c.R, s.brightness)
		s.buf[i*3+1] = scale(c.G, s.brightness)
		s.buf[i*3+2] = scale(c.B, s.brightness)
	}
	_, err := s.dev.Write(s.buf)
	return err
}

func (s *Strip) Close() error {
	haltErr := s.dev.Halt()
	closeErr := s.port.Close()
	if haltErr != nil {
		return haltErr
	}
	return closeErr
}

func scale(v uint8, b float64) uint8 {
	return uint8(float64(v)*b + 0.5) //nolint:gosec // b is within [0,1]
}

// ServoConfig configures a PWM servo.
type ServoConfig struct {
	Pin      string
	MinPulse time.Duration // Pulse width at position -1
	MaxPulse time.Duration // Pulse width at position 1
}

const servoFrequency = 50 * physic.Hertz

// Servo drives a hobby servo with a 50 Hz PWM signal.
type Servo struct {
	pin gpio.PinIO
	cfg ServoConfig
}

// OpenServo resolves the PWM pin.
func OpenServo(cfg ServoConfig) (*Servo, error) {
	p, err := pin(cfg.Pin)
	if err != nil {
		return nil, err
	}
	if cfg.MaxPulse <= cfg.MinPulse {
		return nil, fmt.Errorf("servo max pulse %s must exceed min pulse %s", cfg.MaxPulse, cfg.MinPulse)
	}
	return &Servo{pin: p, cfg: cfg}, nil
}

// SetPosition maps pos in [-1,1] onto [MinPulse, MaxPulse].
func (s *Servo) SetPosition(pos float64) error {
	return s.pin.PWM(PulseDuty(hardware.ClampPosition(pos), s.cfg.MinPulse, s.cfg.MaxPulse), servoFrequency)
}

func (s *Servo) Center() error { return s.SetPosition(0) }

func (s *Servo) Close() error { return s.pin.Halt() }

// PulseDuty converts a servo position to a PWM duty cycle at 50 Hz.
func PulseDuty(pos float64, minPulse, maxPulse time.Duration) gpio.Duty {
	pulse := float64(minPulse) + (pos+1)/2*float64(maxPulse-minPulse)
	period := float64(time.Second) / 50
	return gpio.Duty(pulse / period * float64(gpio.DutyMax))
}

// Switch drives one GPIO output.
type Switch struct {
	pin gpio.PinIO
}

// OpenSwitch resolves the pin and drives it low.
func OpenSwitch(name string) (*Switch, error) {
	p, err := pin(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", hardware.ErrUnavailable, name, err)
	}
	return &Switch{pin: p}, nil
}

func (s *Switch) Set(on bool) error {
	return s.pin.Out(gpio.Level(on))
}

func (s *Switch) Close() error {
	_ = s.pin.Out(gpio.Low)
	return s.pin.Halt()
}
