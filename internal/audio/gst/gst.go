//go:build gst

// Package gst plays exhibit sounds through GStreamer. Each channel owns one
// pipeline at a time; fades are volume ramps driven from a goroutine.
//
// Build with -tags gst on a host with the GStreamer development headers.
package gst

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/log"
)

const (
	probeTimeout = 2 * time.Second
	rampStep     = 20 * time.Millisecond
)

func init() {
	audio.Register("gst", func(opts audio.Options) (audio.Backend, error) {
		return New(opts)
	})
}

var initOnce sync.Once

// Backend implements audio.Backend on GStreamer pipelines.
type Backend struct {
	opts     audio.Options
	mu       sync.Mutex
	channels []*Channel
	next     int
}

// New initializes GStreamer and allocates opts.Channels channels.
func New(opts audio.Options) (*Backend, error) {
	initOnce.Do(func() { gst.Init(nil) })
	if opts.Channels <= 0 {
		return nil, fmt.Errorf("gst backend needs at least one channel")
	}
	b := &Backend{opts: opts, channels: make([]*Channel, opts.Channels)}
	for i := range b.channels {
		b.channels[i] = &Channel{index: i}
	}
	log.Info(log.CatAudio, "GStreamer backend ready", "channels", opts.Channels, "reserved", opts.Reserved)
	return b, nil
}

type sound struct {
	path   string
	length time.Duration
}

func (s sound) Path() string          { return s.path }
func (s sound) Length() time.Duration { return s.length }

// Load probes path for its duration by prerolling a paused pipeline.
func (b *Backend) Load(path string) (audio.Sound, error) {
	p, _, err := newPipeline(path, 0)
	if err != nil {
		return nil, err
	}
	defer p.SetState(gst.StateNull) //nolint:errcheck // best effort teardown

	if err := p.SetState(gst.StatePaused); err != nil {
		return nil, fmt.Errorf("preroll %s: %w", path, err)
	}
	if err := waitAsyncDone(p, probeTimeout); err != nil {
		return nil, fmt.Errorf("preroll %s: %w", path, err)
	}
	ok, dur := p.QueryDuration(gst.FormatTime)
	if !ok {
		return nil, fmt.Errorf("query duration of %s failed", path)
	}
	return sound{path: path, length: time.Duration(dur)}, nil
}

// Channel implements audio.Backend.
func (b *Backend) Channel(index int) (audio.Channel, error) {
	if index < 0 || index >= len(b.channels) {
		return nil, fmt.Errorf("channel %d out of range [0,%d)", index, len(b.channels))
	}
	return b.channels[index], nil
}

// Play picks the first idle unreserved channel, or the oldest one when all
// are busy.
func (b *Backend) Play(s audio.Sound, opts audio.PlayOptions) error {
	b.mu.Lock()
	free := b.opts.Reserved
	if free >= len(b.channels) {
		b.mu.Unlock()
		return fmt.Errorf("no unreserved channels")
	}
	var picked *Channel
	for i := free; i < len(b.channels); i++ {
		if !b.channels[i].Busy() {
			picked = b.channels[i]
			break
		}
	}
	if picked == nil {
		picked = b.channels[free+b.next%(len(b.channels)-free)]
		b.next++
	}
	b.mu.Unlock()
	return picked.Play(s, opts)
}

// Close stops every channel.
func (b *Backend) Close() error {
	for _, ch := range b.channels {
		ch.Stop()
	}
	return nil
}

// Channel is one GStreamer pipeline slot.
type Channel struct {
	index    int
	mu       sync.Mutex
	pipeline *gst.Pipeline
	volume   *gst.Element
	gain     float64
	cancel   chan struct{}
}

// Index implements audio.Channel.
func (c *Channel) Index() int { return c.index }

// Play stops whatever the channel is playing and starts s.
func (c *Channel) Play(s audio.Sound, opts audio.PlayOptions) error {
	c.Stop()

	target := audio.ClampVolume(opts.Volume)
	start := target
	if opts.FadeIn > 0 {
		start = 0
	}
	p, vol, err := newPipeline(s.Path(), start)
	if err != nil {
		return err
	}
	if opts.Offset > 0 {
		if err := p.SetState(gst.StatePaused); err != nil {
			return fmt.Errorf("pause %s: %w", s.Path(), err)
		}
		if err := waitAsyncDone(p, probeTimeout); err != nil {
			p.SetState(gst.StateNull) //nolint:errcheck // best effort teardown
			return fmt.Errorf("seek %s: %w", s.Path(), err)
		}
		if !p.SeekSimple(int64(opts.Offset), gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit) {
			log.Warn(log.CatAudio, "Seek failed, playing from start", "sound", s.Path(), "offset", opts.Offset)
		}
	}
	if err := p.SetState(gst.StatePlaying); err != nil {
		p.SetState(gst.StateNull) //nolint:errcheck // best effort teardown
		return fmt.Errorf("play %s: %w", s.Path(), err)
	}

	c.mu.Lock()
	c.pipeline, c.volume, c.gain = p, vol, start
	c.mu.Unlock()

	if opts.FadeIn > 0 {
		c.ramp(target, opts.FadeIn, false)
	}
	return nil
}

// Fadeout ramps the volume to zero over d and then stops the pipeline.
// It returns immediately.
func (c *Channel) Fadeout(d time.Duration) {
	if d <= 0 {
		c.Stop()
		return
	}
	c.ramp(0, d, true)
}

// Stop halts playback immediately.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRampLocked()
	if c.pipeline != nil {
		c.pipeline.SetState(gst.StateNull) //nolint:errcheck // best effort teardown
		c.pipeline, c.volume = nil, nil
	}
}

// Busy reports whether the pipeline is still playing.
func (c *Channel) Busy() bool {
	c.mu.Lock()
	p := c.pipeline
	c.mu.Unlock()
	if p == nil {
		return false
	}
	for {
		msg := p.GetPipelineBus().Pop()
		if msg == nil {
			return true
		}
		switch msg.Type() {
		case gst.MessageEOS, gst.MessageError:
			c.Stop()
			return false
		}
	}
}

func (c *Channel) ramp(target float64, d time.Duration, stopAfter bool) {
	c.mu.Lock()
	c.stopRampLocked()
	if c.volume == nil {
		c.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	c.cancel = cancel
	from, vol, pipeline := c.gain, c.volume, c.pipeline
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(rampStep)
		defer ticker.Stop()
		started := time.Now()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
			}
			frac := float64(time.Since(started)) / float64(d)
			if frac > 1 {
				frac = 1
			}
			g := from + (target-from)*frac
			vol.SetProperty("volume", g) //nolint:errcheck // property exists on volume elements
			c.mu.Lock()
			if c.pipeline == pipeline {
				c.gain = g
			}
			c.mu.Unlock()
			if frac >= 1 {
				if stopAfter {
					c.mu.Lock()
					if c.pipeline == pipeline {
						c.pipeline.SetState(gst.StateNull) //nolint:errcheck // best effort teardown
						c.pipeline, c.volume = nil, nil
					}
					c.mu.Unlock()
				}
				return
			}
		}
	}()
}

func (c *Channel) stopRampLocked() {
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

func newPipeline(path string, gain float64) (*gst.Pipeline, *gst.Element, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	u := url.URL{Scheme: "file", Path: abs}
	desc := fmt.Sprintf("uridecodebin uri=%q ! audioconvert ! audioresample ! volume name=gain volume=%f ! autoaudiosink", u.String(), gain)
	p, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, nil, fmt.Errorf("build pipeline for %s: %w", path, err)
	}
	vol, err := p.GetElementByName("gain")
	if err != nil {
		p.SetState(gst.StateNull) //nolint:errcheck // best effort teardown
		return nil, nil, fmt.Errorf("volume element: %w", err)
	}
	return p, vol, nil
}

func waitAsyncDone(p *gst.Pipeline, timeout time.Duration) error {
	bus := p.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageAsyncDone:
			return nil
		case gst.MessageError:
			return msg.ParseError()
		}
	}
	return fmt.Errorf("timeout after %s", timeout)
}
