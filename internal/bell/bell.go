// Package bell drives the screaming bell: at random intervals it may toll,
// playing the bell sound from a random point while the servo swings the
// bell back and forth.
package bell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/hardware"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
)

// Bell owns the bell servo and the bell audio channel.
type Bell struct {
	cfg     config.BellConfig
	backend audio.Backend
	servo   hardware.Servo
	rand    random.Source
	channel audio.Channel
}

// New creates a Bell. servo should already be fail-soft guarded.
func New(cfg config.BellConfig, backend audio.Backend, servo hardware.Servo, r random.Source) *Bell {
	return &Bell{cfg: cfg, backend: backend, servo: servo, rand: r}
}

// Loop returns the bell trigger loop. It waits one interval before the first
// possible toll.
func (b *Bell) Loop(opts ...behavior.Option) (*behavior.Loop, error) {
	all := append([]behavior.Option{
		behavior.WithCategory(log.CatBell),
		behavior.WithInitialWait(),
		behavior.WithRand(b.rand),
		behavior.WithSetup(b.setup),
		behavior.WithTeardown(b.teardown),
	}, opts...)
	return behavior.New("bell", b.cfg.Interval, b.trigger, all...)
}

func (b *Bell) setup(context.Context) error {
	ch, err := b.backend.Channel(b.cfg.Channel)
	if err != nil {
		return fmt.Errorf("bell channel: %w", err)
	}
	b.channel = ch
	return b.servo.Center()
}

func (b *Bell) teardown() {
	b.channel.Stop()
	if err := b.servo.Center(); err != nil {
		log.ErrorErr(log.CatBell, "Failed to center servo", err)
	}
}

// trigger tolls with the configured probability.
func (b *Bell) trigger(_ context.Context, sig *shutdown.Signal) error {
	if b.rand.Float64() >= b.cfg.TriggerProbability {
		log.Info(log.CatBell, "The bell remains silent")
		return nil
	}
	return b.Toll(sig)
}

// Toll plays the bell sound and swings the bell. The servo is always
// centered afterwards and the sound stops unless shutdown is in progress.
func (b *Bell) Toll(sig *shutdown.Signal) error {
	log.Info(log.CatBell, "The bell tolls")
	soundErr := b.startSound()
	swingErr := b.swing(sig)

	var centerErr error
	if err := b.servo.Center(); err != nil {
		centerErr = fmt.Errorf("center servo: %w", err)
	}
	if !sig.IsSet() {
		b.channel.Stop()
	}
	return errors.Join(soundErr, swingErr, centerErr)
}

func (b *Bell) startSound() error {
	snd, err := b.backend.Load(b.cfg.Sound)
	if err != nil {
		return fmt.Errorf("load bell sound: %w", err)
	}
	offsetSecs := random.IntRange(b.rand, int(b.cfg.StartOffsetMin/time.Second), int(b.cfg.StartOffsetMax/time.Second))
	opts := audio.PlayOptions{
		Volume: random.Uniform(b.rand, b.cfg.VolumeMin, b.cfg.VolumeMax),
		Offset: time.Duration(offsetSecs) * time.Second,
	}
	log.Info(log.CatBell, "Starting bell sound", "offset", opts.Offset, "volume", fmt.Sprintf("%.2f", opts.Volume))
	if err := b.channel.Play(snd, opts); err != nil {
		return fmt.Errorf("play bell sound: %w", err)
	}
	return nil
}

// swing moves the servo a random number of times. It stops at the first
// servo error or as soon as sig is set.
func (b *Bell) swing(sig *shutdown.Signal) error {
	swings := random.IntRange(b.rand, b.cfg.SwingsMin, b.cfg.SwingsMax)
	log.Info(log.CatBell, "Bell swinging", "swings", swings)
	for i := 0; i < swings; i++ {
		if sig.IsSet() {
			return nil
		}
		pos := random.Uniform(b.rand, b.cfg.PositionMin, b.cfg.PositionMax)
		if err := b.servo.SetPosition(pos); err != nil {
			return fmt.Errorf("swing %d: %w", i+1, err)
		}
		if sig.Wait(b.cfg.Pause.Draw(b.rand)) {
			log.Info(log.CatBell, "Bell movement interrupted")
			return nil
		}
	}
	return nil
}
