package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopStats_Iteration(t *testing.T) {
	r := NewRegistry()
	s := r.Loop("rats")
	now := time.Now()

	s.Started()
	s.Iteration(now, nil)
	s.Iteration(now.Add(time.Second), errors.New("channel busy"))

	snap := s.Snapshot()
	require.Equal(t, "rats", snap.Name)
	require.Equal(t, uint64(2), snap.Iterations)
	require.Equal(t, uint64(1), snap.Failures)
	require.Equal(t, "channel busy", snap.LastError)
	require.True(t, snap.Running)
	require.InDelta(t, 0.5, snap.FailureRate(), 1e-9)

	s.Stopped()
	require.False(t, s.Snapshot().Running)
}

func TestRegistry_SameNameSameStats(t *testing.T) {
	r := NewRegistry()
	require.Same(t, r.Loop("bell"), r.Loop("bell"))
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"screams", "ambient", "lighting"} {
		r.Loop(n)
	}
	snaps := r.Snapshot()
	require.Len(t, snaps, 3)
	require.Equal(t, "ambient", snaps[0].Name)
	require.Equal(t, "screams", snaps[2].Name)
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	require.NotNil(t, r.Loop("x"))
	require.Nil(t, r.Snapshot())
}

func TestLoopStats_Concurrent(t *testing.T) {
	s := NewRegistry().Loop("chains")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Iteration(time.Now(), nil)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(1000), s.Snapshot().Iterations)
}

func TestLoopSnapshot_FormatLastRun(t *testing.T) {
	now := time.Now()
	require.Equal(t, "-", LoopSnapshot{}.FormatLastRun(now))
	require.Equal(t, "3s ago", LoopSnapshot{LastRun: now.Add(-3500 * time.Millisecond)}.FormatLastRun(now))
}
