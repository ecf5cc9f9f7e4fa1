// Package mister pulses the fog mister relay.
package mister

import (
	"context"
	"fmt"

	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/hardware"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
)

// Mister owns the relay switch.
type Mister struct {
	cfg   config.MisterConfig
	relay hardware.Switch
	rand  random.Source
}

// New creates a Mister.
func New(cfg config.MisterConfig, relay hardware.Switch, r random.Source) *Mister {
	return &Mister{cfg: cfg, relay: relay, rand: r}
}

// Loop returns the mister loop. The relay is forced off at start and exit.
func (m *Mister) Loop(opts ...behavior.Option) (*behavior.Loop, error) {
	all := append([]behavior.Option{
		behavior.WithCategory(log.CatMister),
		behavior.WithInitialWait(),
		behavior.WithRand(m.rand),
		behavior.WithSetup(func(context.Context) error { return m.relay.Set(false) }),
		behavior.WithTeardown(m.off),
	}, opts...)
	return behavior.New("mister", m.cfg.Interval, m.Pulse, all...)
}

// Pulse switches the mister on for the configured duration. Shutdown cuts
// the pulse short; the relay is switched off either way.
func (m *Mister) Pulse(_ context.Context, sig *shutdown.Signal) error {
	log.Info(log.CatMister, "Mister on", "duration", m.cfg.Duration)
	if err := m.relay.Set(true); err != nil {
		return fmt.Errorf("mister on: %w", err)
	}
	sig.Wait(m.cfg.Duration)
	if err := m.relay.Set(false); err != nil {
		return fmt.Errorf("mister off: %w", err)
	}
	log.Info(log.CatMister, "Mister off")
	return nil
}

func (m *Mister) off() {
	if err := m.relay.Set(false); err != nil {
		log.ErrorErr(log.CatMister, "Failed to switch mister off", err)
	}
}
