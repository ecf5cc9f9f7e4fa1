// Package soundscape builds the exhibit's sound loops: the ambient bed, the
// occasional chain rattle, voice and scream, and the rat horde that
// scurries across its own set of channels.
package soundscape

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
)

// ambientRetry is how long the ambient loop idles when it has no tracks or
// a track fails to load or play.
const ambientRetry = 5 * time.Second

// Deps are the collaborators shared by every sound loop.
type Deps struct {
	Backend audio.Backend
	Library *audio.Store
	Rand    *random.Factory
	Options []behavior.Option // Applied to every loop (tracer, stats, events)
}

func (d Deps) options(extra ...behavior.Option) []behavior.Option {
	opts := append([]behavior.Option{behavior.WithCategory(log.CatSound)}, d.Options...)
	return append(opts, extra...)
}

// NewAmbientLoop cross-fades through the ambient tracks on one channel:
// fade in, play until one fade before the end, fade out, next track.
func NewAmbientLoop(d Deps, cfg config.AmbientConfig, opts ...behavior.Option) (*behavior.Loop, error) {
	var ch audio.Channel
	idx := 0
	body := func(_ context.Context, sig *shutdown.Signal) error {
		files := d.Library.Library().Files(audio.CategoryAmbient)
		if len(files) == 0 {
			sig.Wait(ambientRetry)
			return nil
		}
		path := files[idx%len(files)]
		idx++

		snd, err := d.Backend.Load(path)
		if err != nil {
			sig.Wait(ambientRetry)
			return fmt.Errorf("load ambient %s: %w", path, err)
		}
		if err := ch.Play(snd, audio.PlayOptions{Volume: cfg.Volume, FadeIn: cfg.Fade}); err != nil {
			sig.Wait(ambientRetry)
			return fmt.Errorf("play ambient %s: %w", path, err)
		}
		log.Debug(log.CatSound, "Ambient track", "sound", path, "length", snd.Length())

		if sig.Wait(max(0, snd.Length()-cfg.Fade)) {
			return nil
		}
		ch.Fadeout(cfg.Fade)
		sig.Wait(cfg.Fade)
		return nil
	}
	setup := func(context.Context) error {
		var err error
		ch, err = d.Backend.Channel(cfg.Channel)
		return err
	}
	return behavior.New("ambient", behavior.IntervalSpec{}, body,
		d.options(append([]behavior.Option{behavior.WithSetup(setup), behavior.WithRand(d.Rand.Source())}, opts...)...)...)
}

// NewOneShotLoop plays one random sound from cfg.Category per interval at a
// volume drawn from [VolumeMin, VolumeMax]. With waitFirst the loop waits one
// interval before its first sound.
func NewOneShotLoop(name string, d Deps, cfg config.OneShotConfig, waitFirst bool, opts ...behavior.Option) (*behavior.Loop, error) {
	r := d.Rand.Source()
	body := func(context.Context, *shutdown.Signal) error {
		files := d.Library.Library().Files(cfg.Category)
		if len(files) == 0 {
			log.Debug(log.CatSound, "No sounds to play", "loop", name, "category", cfg.Category)
			return nil
		}
		path := random.Choice(r, files)
		snd, err := d.Backend.Load(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		vol := random.Uniform(r, cfg.VolumeMin, cfg.VolumeMax)
		if err := d.Backend.Play(snd, audio.PlayOptions{Volume: vol}); err != nil {
			return fmt.Errorf("play %s: %w", path, err)
		}
		log.Info(log.CatSound, "Played sound", "loop", name, "sound", path, "volume", fmt.Sprintf("%.2f", vol))
		return nil
	}
	extra := []behavior.Option{behavior.WithRand(d.Rand.Source())}
	if waitFirst {
		extra = append(extra, behavior.WithInitialWait())
	}
	return behavior.New(name, cfg.Interval, body, d.options(append(extra, opts...)...)...)
}

// NewRatsLoop fades out the rat channels, then starts a random horde on them.
func NewRatsLoop(d Deps, cfg config.RatsConfig, opts ...behavior.Option) (*behavior.Loop, error) {
	r := d.Rand.Source()
	channels := make(map[int]audio.Channel, len(cfg.Channels))
	body := func(_ context.Context, sig *shutdown.Signal) error {
		for _, idx := range cfg.Channels {
			channels[idx].Fadeout(cfg.Fade)
		}
		if sig.Wait(cfg.Fade) {
			return nil
		}

		picks := PickHorde(r, d.Library.Library().Files(audio.CategoryRats), cfg.Channels, cfg.BaseVolume)
		for _, p := range picks {
			snd, err := d.Backend.Load(p.Item)
			if err != nil {
				log.Warn(log.CatSound, "Rat sound failed to load", "sound", p.Item, "error", err)
				continue
			}
			if err := channels[p.Channel].Play(snd, audio.PlayOptions{Volume: p.Volume}); err != nil {
				log.Warn(log.CatSound, "Rat sound failed to play", "sound", p.Item, "channel", p.Channel, "error", err)
			}
		}
		log.Debug(log.CatSound, "Rat horde", "rats", len(picks))
		return nil
	}
	setup := func(context.Context) error {
		for _, idx := range cfg.Channels {
			ch, err := d.Backend.Channel(idx)
			if err != nil {
				return err
			}
			channels[idx] = ch
		}
		return nil
	}
	return behavior.New("rats", cfg.Interval, body,
		d.options(append([]behavior.Option{behavior.WithSetup(setup), behavior.WithRand(d.Rand.Source())}, opts...)...)...)
}

// FadeOut returns a shutdown hook that fades the ambient and rat channels
// and waits for the fades to finish.
func FadeOut(backend audio.Backend, ambient config.AmbientConfig, rats config.RatsConfig, sd config.ShutdownConfig) func() {
	return func() {
		if ch, err := backend.Channel(ambient.Channel); err == nil {
			ch.Fadeout(sd.AmbientFade)
		}
		for _, idx := range rats.Channels {
			if ch, err := backend.Channel(idx); err == nil {
				ch.Fadeout(sd.RatsFade)
			}
		}
		log.Info(log.CatSound, "Fading out sounds", "wait", sd.FadeWait)
		time.Sleep(sd.FadeWait)
	}
}
