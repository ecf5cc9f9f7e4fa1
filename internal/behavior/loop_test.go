package behavior

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/zjrosen/displayboard/internal/events"
	"github.com/zjrosen/displayboard/internal/metrics"
	"github.com/zjrosen/displayboard/internal/pubsub"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
	"github.com/zjrosen/displayboard/internal/tracing"
)

// runAsync starts l and returns a channel carrying Run's result.
func runAsync(l *Loop, sig *shutdown.Signal) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background(), sig) }()
	return done
}

func waitDone(t *testing.T, done <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(within):
		require.FailNow(t, "loop did not stop in time")
	}
	return nil
}

func TestIntervalSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    IntervalSpec
		wantErr string
	}{
		{name: "zero", spec: IntervalSpec{}},
		{name: "range", spec: IntervalSpec{Min: time.Second, Max: 2 * time.Second}},
		{name: "negative", spec: IntervalSpec{Min: -1}, wantErr: "negative"},
		{name: "inverted", spec: IntervalSpec{Min: 2 * time.Second, Max: time.Second}, wantErr: "below min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestIntervalSpec_DrawWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "min"))
		hi := lo + time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "span"))
		spec := IntervalSpec{Min: lo, Max: hi}
		r := random.New(rapid.Uint64().Draw(t, "seed"))

		for i := 0; i < 10; i++ {
			d := spec.Draw(r)
			if d < lo || d > hi {
				t.Fatalf("draw %s outside [%s, %s]", d, lo, hi)
			}
		}
	})
}

func TestNew_RejectsInvalidInterval(t *testing.T) {
	_, err := New("bad", IntervalSpec{Min: time.Second}, func(context.Context, *shutdown.Signal) error { return nil })
	require.ErrorContains(t, err, "loop bad")

	_, err = New("nil-body", IntervalSpec{}, nil)
	require.ErrorContains(t, err, "nil body")
}

func TestLoop_ZeroIntervalRunsFast(t *testing.T) {
	var count atomic.Int64
	l, err := New("fast", IntervalSpec{}, func(context.Context, *shutdown.Signal) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	time.Sleep(time.Second)
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))

	require.Greater(t, count.Load(), int64(100))
}

func TestLoop_StopsPromptlyDuringLongWait(t *testing.T) {
	var count atomic.Int64
	l, err := New("slow", Fixed(time.Hour), func(context.Context, *shutdown.Signal) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, int64(1), count.Load())
}

func TestLoop_BodyFailuresDoNotStopLoop(t *testing.T) {
	var count atomic.Int64
	stats := metrics.NewRegistry().Loop("flaky")
	l, err := New("flaky", IntervalSpec{}, func(context.Context, *shutdown.Signal) error {
		switch count.Add(1) {
		case 1:
			return errors.New("sound load failed")
		case 2:
			panic("servo exploded")
		}
		return nil
	}, WithStats(stats))
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	require.Eventually(t, func() bool { return count.Load() >= 5 }, 2*time.Second, time.Millisecond)
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))

	snap := stats.Snapshot()
	require.Equal(t, uint64(2), snap.Failures)
	require.GreaterOrEqual(t, snap.Iterations, uint64(5))
	require.False(t, snap.Running)
}

func TestLoop_SetupFailureSkipsBodyAndTeardown(t *testing.T) {
	var ran, tornDown atomic.Bool
	l, err := New("bell", IntervalSpec{},
		func(context.Context, *shutdown.Signal) error {
			ran.Store(true)
			return nil
		},
		WithSetup(func(context.Context) error { return errors.New("servo unavailable") }),
		WithTeardown(func() { tornDown.Store(true) }),
	)
	require.NoError(t, err)

	err = l.Run(context.Background(), shutdown.New())
	require.ErrorIs(t, err, ErrSetup)
	require.ErrorContains(t, err, "servo unavailable")
	require.False(t, ran.Load())
	require.False(t, tornDown.Load())
}

func TestLoop_TeardownRunsOnceOnExit(t *testing.T) {
	var teardowns atomic.Int64
	l, err := New("lighting", Fixed(10*time.Millisecond),
		func(context.Context, *shutdown.Signal) error { return nil },
		WithSetup(func(context.Context) error { return nil }),
		WithTeardown(func() { teardowns.Add(1) }),
	)
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	time.Sleep(50 * time.Millisecond)
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))
	require.Equal(t, int64(1), teardowns.Load())
}

func TestLoop_TeardownPanicIsContained(t *testing.T) {
	sig := shutdown.New()
	sig.Set()
	l, err := New("mister", IntervalSpec{},
		func(context.Context, *shutdown.Signal) error { return nil },
		WithTeardown(func() { panic("pin stuck") }),
	)
	require.NoError(t, err)
	require.NotPanics(t, func() { require.NoError(t, l.Run(context.Background(), sig)) })
}

func TestLoop_InitialWaitDelaysFirstIteration(t *testing.T) {
	var count atomic.Int64
	l, err := New("chains", Fixed(time.Hour),
		func(context.Context, *shutdown.Signal) error {
			count.Add(1)
			return nil
		},
		WithInitialWait(),
	)
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	time.Sleep(50 * time.Millisecond)
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))
	require.Zero(t, count.Load())
}

func TestLoop_AlreadySetRunsNoIteration(t *testing.T) {
	sig := shutdown.New()
	sig.Set()
	var count atomic.Int64
	l, err := New("screams", IntervalSpec{}, func(context.Context, *shutdown.Signal) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background(), sig))
	require.Zero(t, count.Load())
}

func TestLoop_RecordsSpansAndEvents(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe(context.Background())

	var count atomic.Int64
	l, err := New("rats", IntervalSpec{}, func(context.Context, *shutdown.Signal) error {
		if count.Add(1) == 1 {
			return errors.New("no rats")
		}
		return nil
	}, WithTracer(tp.Tracer("test")), WithEvents(bus))
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second, time.Millisecond)
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))

	spans := sr.Ended()
	require.NotEmpty(t, spans)
	require.Equal(t, tracing.SpanLoopIteration, spans[0].Name())
	require.Equal(t, "no rats", spans[0].Status().Description)

	var kinds []pubsub.EventType
	for len(sub) > 0 {
		kinds = append(kinds, (<-sub).Type)
	}
	require.Equal(t, pubsub.StartedEvent, kinds[0])
	require.Equal(t, pubsub.FailedEvent, kinds[1])
	require.Equal(t, pubsub.StoppedEvent, kinds[len(kinds)-1])
}

func TestLoop_WithMetricsRegistersByName(t *testing.T) {
	reg := metrics.NewRegistry()
	var count atomic.Int64
	body := func(context.Context, *shutdown.Signal) error {
		if count.Add(1) == 2 {
			return errors.New("jammed")
		}
		return nil
	}
	l, err := New("bell", IntervalSpec{}, body, WithMetrics(reg))
	require.NoError(t, err)

	sig := shutdown.New()
	done := runAsync(l, sig)
	require.Eventually(t, func() bool { return count.Load() >= 3 }, time.Second, time.Millisecond)
	sig.Set()
	require.NoError(t, waitDone(t, done, time.Second))

	snaps := reg.Snapshot()
	require.Len(t, snaps, 1)
	require.Equal(t, "bell", snaps[0].Name)
	require.Equal(t, uint64(1), snaps[0].Failures)
	require.Equal(t, "jammed", snaps[0].LastError)
	require.False(t, snaps[0].Running)
}
