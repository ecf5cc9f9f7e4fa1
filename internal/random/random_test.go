package random

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNew_SameSeedSameStream(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestFactory_SourcesDiffer(t *testing.T) {
	f := NewFactory(42)
	a, b := f.Source(), f.Source()
	same := 0
	for i := 0; i < 10; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	require.Less(t, same, 10)
}

func TestUniform_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New(rapid.Uint64().Draw(t, "seed"))
		lo := rapid.Float64Range(-100, 100).Draw(t, "lo")
		span := rapid.Float64Range(0, 100).Draw(t, "span")
		hi := lo + span
		v := Uniform(r, lo, hi)
		if hi == lo {
			require.Equal(t, lo, v)
			return
		}
		require.GreaterOrEqual(t, v, lo)
		require.Less(t, v, hi)
	})
}

// topSource always draws the largest float64 below one.
type topSource struct{}

func (topSource) Float64() float64 { return math.Nextafter(1, 0) }
func (topSource) IntN(n int) int   { return n - 1 }

func TestUniform_TinySpanStaysBelowHi(t *testing.T) {
	lo := 1.0
	hi := math.Nextafter(lo, 2)
	v := Uniform(topSource{}, lo, hi)
	require.Less(t, v, hi)
	require.Equal(t, lo, v)
}

func TestIntRange_Inclusive(t *testing.T) {
	r := New(1)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		v := IntRange(r, 1, 5)
		require.GreaterOrEqual(t, v, 1)
		require.LessOrEqual(t, v, 5)
		seen[v] = true
	}
	require.Len(t, seen, 5)
	require.Equal(t, 3, IntRange(r, 3, 3))
}

func TestSample_DistinctIndices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New(rapid.Uint64().Draw(t, "seed"))
		n := rapid.IntRange(0, 30).Draw(t, "n")
		k := rapid.IntRange(0, 40).Draw(t, "k")

		got := Sample(r, n, k)
		require.Len(t, got, min(n, k))
		seen := map[int]bool{}
		for _, i := range got {
			require.GreaterOrEqual(t, i, 0)
			require.Less(t, i, n)
			require.False(t, seen[i], "duplicate index %d", i)
			seen[i] = true
		}
	})
}
