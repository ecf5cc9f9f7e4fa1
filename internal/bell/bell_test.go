package bell

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/hardware"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
)

// fixedSource returns queued Float64 values, then repeats the last one.
type fixedSource struct {
	mu     sync.Mutex
	floats []float64
}

func (f *fixedSource) Float64() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.floats[0]
	if len(f.floats) > 1 {
		f.floats = f.floats[1:]
	}
	return v
}

func (f *fixedSource) IntN(n int) int { return n - 1 }

// failingServo fails SetPosition after ok successful calls.
type failingServo struct {
	hardware.NullServo
	ok      int
	centers int
}

func (s *failingServo) SetPosition(pos float64) error {
	if s.ok == 0 {
		return errors.New("servo jammed")
	}
	s.ok--
	return s.NullServo.SetPosition(pos)
}

func (s *failingServo) Center() error {
	s.centers++
	return nil
}

func testConfig() config.BellConfig {
	cfg := config.Defaults().Bell
	cfg.Sound = "bell/screamingBell.mp3"
	cfg.Pause = behavior.Fixed(time.Millisecond)
	return cfg
}

func setupBell(t *testing.T, cfg config.BellConfig, servo hardware.Servo, r random.Source) (*Bell, *audio.NullBackend) {
	t.Helper()
	backend := audio.NewNullBackend(audio.Options{Channels: 16})
	b := New(cfg, backend, servo, r)
	require.NoError(t, b.setup(context.Background()))
	return b, backend
}

func TestToll_PlaysSoundSwingsAndCenters(t *testing.T) {
	servo := &hardware.NullServo{}
	b, backend := setupBell(t, testConfig(), servo, random.New(5))

	require.NoError(t, b.Toll(shutdown.New()))

	history := backend.History()
	require.Len(t, history, 1)
	require.Equal(t, 5, history[0].Channel)
	require.Equal(t, time.Duration(0), history[0].Opts.Offset%time.Second, "offset is whole seconds")
	require.LessOrEqual(t, history[0].Opts.Offset, 90*time.Second)
	require.GreaterOrEqual(t, history[0].Opts.Volume, 0.3)

	positions := servo.Positions()
	// setup center, 1..5 swings, final center
	require.GreaterOrEqual(t, len(positions), 3)
	require.LessOrEqual(t, len(positions), 7)
	require.Equal(t, 0.0, positions[len(positions)-1])

	ch, err := backend.Channel(5)
	require.NoError(t, err)
	require.False(t, ch.Busy(), "sound stopped after toll")
}

func TestToll_ServoFailureStillCenters(t *testing.T) {
	servo := &failingServo{ok: 1}
	r := &fixedSource{floats: []float64{0.5}}
	b, _ := setupBell(t, testConfig(), servo, r)
	centersAfterSetup := servo.centers

	err := b.Toll(shutdown.New())
	require.ErrorContains(t, err, "servo jammed")
	require.Equal(t, centersAfterSetup+1, servo.centers)
}

func TestToll_ShutdownLeavesSoundPlaying(t *testing.T) {
	servo := &hardware.NullServo{}
	b, backend := setupBell(t, testConfig(), servo, random.New(1))
	sig := shutdown.New()
	sig.Set()

	require.NoError(t, b.Toll(sig))

	ch, err := backend.Channel(5)
	require.NoError(t, err)
	require.True(t, ch.Busy())
	require.Equal(t, []float64{0, 0}, servo.Positions(), "no swings once shutdown started")
}

func TestTrigger_Probability(t *testing.T) {
	cfg := testConfig()

	silent := &fixedSource{floats: []float64{0.9}}
	b, backend := setupBell(t, cfg, &hardware.NullServo{}, silent)
	require.NoError(t, b.trigger(context.Background(), shutdown.New()))
	require.Empty(t, backend.History())

	tolls := &fixedSource{floats: []float64{0.1, 0.5}}
	b, backend = setupBell(t, cfg, &hardware.NullServo{}, tolls)
	require.NoError(t, b.trigger(context.Background(), shutdown.New()))
	require.Len(t, backend.History(), 1)
}

func TestTrigger_RateConvergesToProbability(t *testing.T) {
	cfg := testConfig()
	cfg.TriggerProbability = 0.8
	b, backend := setupBell(t, cfg, &hardware.NullServo{}, random.New(2024))

	// A set signal skips the swings so each toll is only the sound start.
	sig := shutdown.New()
	sig.Set()
	const runs = 10000
	for i := 0; i < runs; i++ {
		require.NoError(t, b.trigger(context.Background(), sig))
	}

	rate := float64(len(backend.History())) / runs
	require.InDelta(t, 0.8, rate, 0.02)
}

func TestLoop_TeardownCentersServo(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = behavior.Fixed(time.Hour)
	servo := &hardware.NullServo{}
	backend := audio.NewNullBackend(audio.Options{Channels: 16})

	l, err := New(cfg, backend, servo, random.New(2)).Loop()
	require.NoError(t, err)

	sig := shutdown.New()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), sig) }()
	time.Sleep(20 * time.Millisecond)
	sig.Set()
	require.NoError(t, <-done)

	require.Equal(t, []float64{0, 0}, servo.Positions())
	require.Empty(t, backend.History())
}
