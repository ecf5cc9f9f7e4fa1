package soundscape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
)

func newDeps(t *testing.T, files ...string) (Deps, *audio.NullBackend) {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o644))
	}
	store := audio.NewStore(root, config.Defaults().SoundCategories())
	require.NoError(t, store.Rescan(context.Background()))

	backend := audio.NewNullBackend(audio.Options{Channels: 16})
	return Deps{Backend: backend, Library: store, Rand: random.NewFactory(99)}, backend
}

// brokenBackend fails every Load.
type brokenBackend struct {
	*audio.NullBackend
	loads atomic.Int64
}

func (b *brokenBackend) Load(path string) (audio.Sound, error) {
	b.loads.Add(1)
	return nil, errors.New("corrupt file")
}

func runFor(t *testing.T, l *behavior.Loop, d time.Duration) {
	t.Helper()
	sig := shutdown.New()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), sig) }()
	time.Sleep(d)
	sig.Set()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "loop did not stop")
	}
}

func TestRatsLoop_PlaysHordeOnRatChannels(t *testing.T) {
	deps, backend := newDeps(t, "rats/a.wav", "rats/b.wav", "rats/c.wav", "rats/d.wav", "rats/e.wav")
	cfg := config.Defaults().Rats
	cfg.Fade = time.Millisecond
	cfg.Interval = behavior.Fixed(10 * time.Millisecond)

	l, err := NewRatsLoop(deps, cfg)
	require.NoError(t, err)
	runFor(t, l, 100*time.Millisecond)

	history := backend.History()
	require.NotEmpty(t, history)
	for _, p := range history {
		require.Contains(t, cfg.Channels, p.Channel)
		require.Equal(t, "rats", filepath.Base(filepath.Dir(p.Path)))
		require.LessOrEqual(t, p.Opts.Volume, cfg.BaseVolume+1e-9)
	}

	ch, err := backend.Channel(1)
	require.NoError(t, err)
	require.Positive(t, ch.(*audio.NullChannel).Fadeouts())
}

func TestRatsLoop_TwoRatsTwoChannels(t *testing.T) {
	cfg := config.Defaults().Rats
	cfg.Channels = []int{6, 7}
	cfg.Fade = time.Millisecond
	cfg.Interval = behavior.Fixed(time.Hour)

	// Hordes of one rat are valid too; find a seed that sends both.
	for seed := int64(1); seed <= 40; seed++ {
		deps, backend := newDeps(t, "rats/a.wav", "rats/b.wav")
		deps.Rand = random.NewFactory(seed)

		l, err := NewRatsLoop(deps, cfg)
		require.NoError(t, err)
		runFor(t, l, 30*time.Millisecond)

		history := backend.History()
		require.NotEmpty(t, history)
		require.LessOrEqual(t, len(history), 2)
		if len(history) == 1 {
			require.Equal(t, 6, history[0].Channel)
			continue
		}

		require.Equal(t, 6, history[0].Channel)
		require.Equal(t, 7, history[1].Channel)
		require.NotEqual(t, history[0].Path, history[1].Path)
		require.LessOrEqual(t, history[0].Opts.Volume+history[1].Opts.Volume, cfg.BaseVolume+1e-9)
		return
	}
	require.FailNow(t, "no seed produced a two-rat horde")
}

func TestAmbientLoop_BrokenTrackDoesNotSpin(t *testing.T) {
	deps, _ := newDeps(t, "ambient/a.wav")
	broken := &brokenBackend{NullBackend: audio.NewNullBackend(audio.Options{Channels: 16})}
	deps.Backend = broken

	l, err := NewAmbientLoop(deps, config.Defaults().Ambient)
	require.NoError(t, err)
	runFor(t, l, 300*time.Millisecond)

	require.Equal(t, int64(1), broken.loads.Load())
}

func TestRatsLoop_EmptyPoolPlaysNothing(t *testing.T) {
	deps, backend := newDeps(t)
	cfg := config.Defaults().Rats
	cfg.Fade = time.Millisecond
	cfg.Interval = behavior.Fixed(5 * time.Millisecond)

	l, err := NewRatsLoop(deps, cfg)
	require.NoError(t, err)
	runFor(t, l, 50*time.Millisecond)

	require.Empty(t, backend.History())
}

func TestOneShotLoop_VolumeWithinRange(t *testing.T) {
	deps, backend := newDeps(t, "chains/one.wav", "chains/two.ogg")
	cfg := config.Defaults().Chains
	cfg.Interval = behavior.Fixed(5 * time.Millisecond)

	l, err := NewOneShotLoop("chains", deps, cfg, false)
	require.NoError(t, err)
	runFor(t, l, 60*time.Millisecond)

	history := backend.History()
	require.NotEmpty(t, history)
	for _, p := range history {
		require.Equal(t, -1, p.Channel)
		require.GreaterOrEqual(t, p.Opts.Volume, cfg.VolumeMin)
		require.LessOrEqual(t, p.Opts.Volume, cfg.VolumeMax)
	}
}

func TestOneShotLoop_WaitFirst(t *testing.T) {
	deps, backend := newDeps(t, "screams/aaah.wav")
	cfg := config.Defaults().Screams

	l, err := NewOneShotLoop("screams", deps, cfg, true)
	require.NoError(t, err)
	runFor(t, l, 30*time.Millisecond)
	require.Empty(t, backend.History())

	l, err = NewOneShotLoop("screams", deps, cfg, false)
	require.NoError(t, err)
	runFor(t, l, 30*time.Millisecond)
	require.Len(t, backend.History(), 1)
}

func TestAmbientLoop_CyclesTracksOnItsChannel(t *testing.T) {
	deps, backend := newDeps(t, "ambient/1.wav", "ambient/2.wav")
	backend.LengthOf = func(string) time.Duration { return 20 * time.Millisecond }
	cfg := config.AmbientConfig{Channel: 0, Fade: 5 * time.Millisecond, Volume: 0.6}

	l, err := NewAmbientLoop(deps, cfg)
	require.NoError(t, err)
	runFor(t, l, 150*time.Millisecond)

	history := backend.History()
	require.GreaterOrEqual(t, len(history), 3)
	for i, p := range history {
		require.Equal(t, 0, p.Channel)
		require.Equal(t, 0.6, p.Opts.Volume)
		require.Equal(t, 5*time.Millisecond, p.Opts.FadeIn)
		want := []string{"1.wav", "2.wav"}[i%2]
		require.Equal(t, want, filepath.Base(p.Path))
	}
}

func TestAmbientLoop_SetupFailsOnBadChannel(t *testing.T) {
	deps, _ := newDeps(t, "ambient/1.wav")
	l, err := NewAmbientLoop(deps, config.AmbientConfig{Channel: 40})
	require.NoError(t, err)
	require.ErrorIs(t, l.Run(context.Background(), shutdown.New()), behavior.ErrSetup)
}

func TestFadeOut(t *testing.T) {
	backend := audio.NewNullBackend(audio.Options{Channels: 16})
	sd := config.ShutdownConfig{AmbientFade: time.Millisecond, RatsFade: time.Millisecond, FadeWait: 10 * time.Millisecond}

	start := time.Now()
	FadeOut(backend, config.AmbientConfig{Channel: 0}, config.RatsConfig{Channels: []int{1, 2}}, sd)()
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	for _, idx := range []int{0, 1, 2} {
		ch, err := backend.Channel(idx)
		require.NoError(t, err)
		require.Equal(t, 1, ch.(*audio.NullChannel).Fadeouts())
	}
}
