// Package lighting animates the LED strip with a slow green breathe and
// random per-pixel flicker.
package lighting

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/hardware"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
)

// Effect renders frames onto a strip.
type Effect struct {
	cfg   config.LightingConfig
	strip hardware.Strip
	rand  random.Source
	now   func() time.Time
	start time.Time
}

// New creates an Effect. now defaults to time.Now when nil.
func New(cfg config.LightingConfig, strip hardware.Strip, r random.Source, now func() time.Time) *Effect {
	if now == nil {
		now = time.Now
	}
	return &Effect{cfg: cfg, strip: strip, rand: r, now: now}
}

// Loop returns the animation loop. The first frame is drawn one update
// interval after start and the strip is blanked when the loop exits.
func (e *Effect) Loop(opts ...behavior.Option) (*behavior.Loop, error) {
	all := append([]behavior.Option{
		behavior.WithCategory(log.CatLight),
		behavior.WithInitialWait(),
		behavior.WithRand(e.rand),
		behavior.WithSetup(func(context.Context) error {
			e.start = e.now()
			return nil
		}),
		behavior.WithTeardown(e.Blank),
	}, opts...)
	return behavior.New("lighting", behavior.Fixed(e.cfg.UpdateInterval), e.frame, all...)
}

// Breathe returns the brightness factor at elapsed time into the animation.
// It oscillates between MinBrightness and MinBrightness+Range.
func Breathe(b config.BreatheConfig, elapsed time.Duration) float64 {
	wave := (math.Sin(elapsed.Seconds()*b.Frequency) + 1) / 2
	return b.MinBrightness + wave*b.Range
}

// Pixel returns one pixel's color for brightness factor breathe.
func (e *Effect) Pixel(breathe float64) color.RGBA {
	f := e.cfg.Flicker
	if e.rand.Float64() < f.Probability {
		return color.RGBA{
			R: scale(e.channel(f.Red), breathe),
			G: scale(e.channel(f.Green), breathe),
			B: scale(e.channel(f.Blue), breathe),
			A: 0xff,
		}
	}
	return color.RGBA{G: scale(e.cfg.BaseGreen, breathe), A: 0xff}
}

func (e *Effect) channel(r [2]uint8) uint8 {
	return uint8(random.IntRange(e.rand, int(r[0]), int(r[1])))
}

func scale(v uint8, factor float64) uint8 {
	return uint8(math.Min(255, float64(v)*factor))
}

func (e *Effect) frame(context.Context, *shutdown.Signal) error {
	breathe := Breathe(e.cfg.Breathe, e.now().Sub(e.start))
	for i := 0; i < e.strip.Len(); i++ {
		if err := e.strip.SetPixel(i, e.Pixel(breathe)); err != nil {
			return fmt.Errorf("set pixel %d: %w", i, err)
		}
	}
	return e.strip.Show()
}

// Blank turns every pixel off.
func (e *Effect) Blank() {
	if err := e.strip.Fill(hardware.Black); err != nil {
		log.ErrorErr(log.CatLight, "Failed to blank strip", err)
		return
	}
	if err := e.strip.Show(); err != nil {
		log.ErrorErr(log.CatLight, "Failed to show blank strip", err)
	}
}
