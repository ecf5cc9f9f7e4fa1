package cmd

import (
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/hardware"
	"github.com/zjrosen/displayboard/internal/hardware/periph"
	"github.com/zjrosen/displayboard/internal/log"
)

// Each opener returns a guarded device. When the real device cannot be
// opened the exhibit runs on an in-memory stand-in so the loop keeps its
// timing and shows up in the dashboard.

func openStrip(c config.LightingConfig) hardware.Strip {
	s, err := periph.OpenStrip(periph.StripConfig{
		Port:       c.Port,
		NumPixels:  c.NumLEDs,
		Brightness: c.Brightness,
	})
	if err != nil {
		log.ErrorErr(log.CatHW, "LED strip unavailable, lighting runs dark", err)
		return hardware.GuardStrip("leds", hardware.NewNullStrip(c.NumLEDs))
	}
	return hardware.GuardStrip("leds", s)
}

func openServo(c config.ServoConfig) hardware.Servo {
	s, err := periph.OpenServo(periph.ServoConfig{
		Pin:      c.Pin,
		MinPulse: c.MinPulse,
		MaxPulse: c.MaxPulse,
	})
	if err != nil {
		log.ErrorErr(log.CatHW, "Bell servo unavailable, bell will not swing", err, "pin", c.Pin)
		return hardware.GuardServo("bell-servo", &hardware.NullServo{})
	}
	return hardware.GuardServo("bell-servo", s)
}

func openSwitch(pin string) hardware.Switch {
	s, err := periph.OpenSwitch(pin)
	if err != nil {
		log.ErrorErr(log.CatHW, "Mister relay unavailable", err, "pin", pin)
		return hardware.GuardSwitch("mister", &hardware.NullSwitch{})
	}
	return hardware.GuardSwitch("mister", s)
}
