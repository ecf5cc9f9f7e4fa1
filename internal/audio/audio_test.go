package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSounds(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o644))
	}
}

func TestScanLibrary(t *testing.T) {
	root := t.TempDir()
	writeSounds(t, root,
		"rats/b.wav", "rats/a.OGG", "rats/notes.txt",
		"chains/clank.mp3",
		"ambient/.hidden/skip.wav",
	)

	lib, err := ScanLibrary(context.Background(), root, []string{CategoryRats, CategoryChains, CategoryAmbient, CategoryScreams})
	require.NoError(t, err)

	require.Equal(t, []string{filepath.Join(root, "rats/a.OGG"), filepath.Join(root, "rats/b.wav")}, lib.Files(CategoryRats))
	require.Len(t, lib.Files(CategoryChains), 1)
	require.Empty(t, lib.Files(CategoryAmbient))
	require.Empty(t, lib.Files(CategoryScreams))
	require.Equal(t, 3, lib.Total())
	require.Equal(t, []string{"ambient", "chains", "rats", "screams"}, lib.Categories())
}

func TestStore_RescanSwapsAndNotifies(t *testing.T) {
	root := t.TempDir()
	writeSounds(t, root, "screams/one.wav")

	s := NewStore(root, []string{CategoryScreams})
	require.Zero(t, s.Library().Total())

	var swaps atomic.Int64
	s.OnSwap(func(*Library) { swaps.Add(1) })

	require.NoError(t, s.Rescan(context.Background()))
	require.Equal(t, 1, s.Library().Total())

	writeSounds(t, root, "screams/two.wav")
	require.NoError(t, s.Rescan(context.Background()))
	require.Equal(t, 2, s.Library().Total())
	require.Equal(t, int64(2), swaps.Load())
}

func TestStore_RescanMissingRootKeepsLibrary(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"), []string{CategoryRats})
	require.Error(t, s.Rescan(context.Background()))
	require.NotNil(t, s.Library())
}

func TestOpen(t *testing.T) {
	b, err := Open("null", Options{Channels: 8})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = Open("alsa-direct", Options{})
	require.ErrorIs(t, err, ErrUnknownBackend)
	require.Contains(t, Backends(), "null")
}

func TestNullBackend_ChannelsAndHistory(t *testing.T) {
	b := NewNullBackend(Options{Channels: 6})
	b.LengthOf = func(string) time.Duration { return 3 * time.Second }

	s, err := b.Load("bell.mp3")
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, s.Length())

	ch, err := b.Channel(5)
	require.NoError(t, err)
	require.NoError(t, ch.Play(s, PlayOptions{Volume: 0.5, Offset: 10 * time.Second}))
	require.True(t, ch.Busy())
	ch.Stop()
	require.False(t, ch.Busy())

	_, err = b.Channel(6)
	require.Error(t, err)

	require.Equal(t, []Played{{Channel: 5, Path: "bell.mp3", Opts: PlayOptions{Volume: 0.5, Offset: 10 * time.Second}}}, b.History())
}

func TestNullBackend_StrictLoad(t *testing.T) {
	b := NewNullBackend(Options{})
	b.Strict = true
	_, err := b.Load(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}

type countingBackend struct {
	*NullBackend
	loads atomic.Int64
}

func (c *countingBackend) Load(path string) (Sound, error) {
	c.loads.Add(1)
	return c.NullBackend.Load(path)
}

func TestCachedBackend(t *testing.T) {
	inner := &countingBackend{NullBackend: NewNullBackend(Options{})}
	cb := NewCachedBackend(inner, time.Hour)

	for i := 0; i < 3; i++ {
		s, err := cb.Load("chains/clank.mp3")
		require.NoError(t, err)
		require.Equal(t, "chains/clank.mp3", s.Path())
	}
	require.Equal(t, int64(1), inner.loads.Load())

	cb.Invalidate()
	_, err := cb.Load("chains/clank.mp3")
	require.NoError(t, err)
	require.Equal(t, int64(2), inner.loads.Load())
}

func TestClampVolume(t *testing.T) {
	require.Equal(t, 0.0, ClampVolume(-0.2))
	require.Equal(t, 1.0, ClampVolume(1.5))
	require.Equal(t, 0.4, ClampVolume(0.4))
}
