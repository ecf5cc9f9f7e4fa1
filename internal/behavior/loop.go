// Package behavior runs the exhibit's recurring behaviors: do something,
// wait a random interval, repeat until the shutdown signal is set.
package behavior

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/displayboard/internal/events"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/metrics"
	"github.com/zjrosen/displayboard/internal/pubsub"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
	"github.com/zjrosen/displayboard/internal/tracing"
)

// DefaultFloor is the shortest wait a loop performs between iterations.
const DefaultFloor = 5 * time.Millisecond

// ErrSetup wraps a failed setup hook. Only the failing loop stops.
var ErrSetup = errors.New("loop setup failed")

// Body is one iteration of a behavior. It must return promptly once sig is
// set and must only suspend through sig.Wait.
type Body func(ctx context.Context, sig *shutdown.Signal) error

// Loop drives a Body on a random interval.
type Loop struct {
	name        string
	interval    IntervalSpec
	body        Body
	setup       func(ctx context.Context) error
	teardown    func()
	initialWait bool
	floor       time.Duration
	rand        random.Source
	tracer      trace.Tracer
	stats       *metrics.LoopStats
	registry    *metrics.Registry
	bus         *events.Bus
	category    log.Category
}

// Option configures a Loop.
type Option func(*Loop)

// WithSetup runs fn once before the first iteration.
func WithSetup(fn func(ctx context.Context) error) Option {
	return func(l *Loop) { l.setup = fn }
}

// WithTeardown runs fn once when the loop exits after a successful setup.
func WithTeardown(fn func()) Option {
	return func(l *Loop) { l.teardown = fn }
}

// WithInitialWait makes the loop wait one interval before its first iteration.
func WithInitialWait() Option {
	return func(l *Loop) { l.initialWait = true }
}

// WithRand sets the random source used for interval draws.
func WithRand(r random.Source) Option {
	return func(l *Loop) { l.rand = r }
}

// WithFloor overrides DefaultFloor.
func WithFloor(d time.Duration) Option {
	return func(l *Loop) { l.floor = d }
}

// WithTracer records a span per iteration.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) { l.tracer = t }
}

// WithStats records iteration counters into s.
func WithStats(s *metrics.LoopStats) Option {
	return func(l *Loop) { l.stats = s }
}

// WithMetrics records counters in reg under the loop's name. WithStats
// takes precedence.
func WithMetrics(reg *metrics.Registry) Option {
	return func(l *Loop) { l.registry = reg }
}

// WithEvents publishes lifecycle and failure events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(l *Loop) { l.bus = bus }
}

// WithCategory sets the log category for this loop's messages.
func WithCategory(cat log.Category) Option {
	return func(l *Loop) { l.category = cat }
}

// New builds a Loop. The interval must satisfy IntervalSpec.Validate.
func New(name string, interval IntervalSpec, body Body, opts ...Option) (*Loop, error) {
	if err := interval.Validate(); err != nil {
		return nil, fmt.Errorf("loop %s: %w", name, err)
	}
	if body == nil {
		return nil, fmt.Errorf("loop %s: nil body", name)
	}
	l := &Loop{
		name:     name,
		interval: interval,
		body:     body,
		floor:    DefaultFloor,
		category: log.CatOrch,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rand == nil {
		l.rand = random.NewFactory(0).Source()
	}
	if l.tracer == nil {
		l.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if l.stats == nil {
		l.stats = l.registry.Loop(name)
	}
	return l, nil
}

// Name returns the loop name.
func (l *Loop) Name() string { return l.name }

// Interval returns the loop's interval.
func (l *Loop) Interval() IntervalSpec { return l.interval }

// Run executes the loop until sig is set. It returns a wrapped ErrSetup when
// setup fails and nil otherwise; body failures are logged and never end the loop.
func (l *Loop) Run(ctx context.Context, sig *shutdown.Signal) error {
	if l.setup != nil {
		if err := l.runSetup(ctx); err != nil {
			events.Publish(l.bus, l.name, pubsub.FailedEvent, err.Error())
			return fmt.Errorf("%s: %w: %w", l.name, ErrSetup, err)
		}
	}
	if l.teardown != nil {
		defer l.runTeardown()
	}

	l.stats.Started()
	defer l.stats.Stopped()
	events.Publish(l.bus, l.name, pubsub.StartedEvent, l.interval.String())
	defer events.Publish(l.bus, l.name, pubsub.StoppedEvent, "")
	log.Info(l.category, "Loop started", "loop", l.name, "interval", l.interval)

	if l.initialWait && sig.Wait(l.nextWait()) {
		return nil
	}

	for n := 1; !sig.IsSet(); n++ {
		if err := l.iterate(ctx, sig, n); err != nil {
			log.ErrorErr(l.category, "Loop iteration failed", err, "loop", l.name, "iteration", n)
			events.Publish(l.bus, l.name, pubsub.FailedEvent, err.Error())
		} else {
			events.Publish(l.bus, l.name, pubsub.TickEvent, "")
		}
		if sig.Wait(l.nextWait()) {
			break
		}
	}
	log.Info(l.category, "Loop stopped", "loop", l.name)
	return nil
}

func (l *Loop) nextWait() time.Duration {
	return max(l.interval.Draw(l.rand), l.floor)
}

func (l *Loop) iterate(ctx context.Context, sig *shutdown.Signal, n int) (err error) {
	ctx, span := l.tracer.Start(ctx, tracing.SpanLoopIteration, trace.WithAttributes(
		attribute.String(tracing.AttrLoopName, l.name),
		attribute.Int(tracing.AttrIteration, n),
	))
	defer func() {
		if r := recover(); r != nil {
			log.Error(l.category, "Loop panic recovered",
				"loop", l.name,
				"panic", r,
				"stack", string(debug.Stack()))
			span.AddEvent(tracing.EventPanicRecovered)
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		l.stats.Iteration(time.Now(), err)
		span.End()
	}()
	return l.body(ctx, sig)
}

func (l *Loop) runSetup(ctx context.Context) (err error) {
	ctx, span := l.tracer.Start(ctx, tracing.SpanLoopSetup, trace.WithAttributes(
		attribute.String(tracing.AttrLoopName, l.name),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return l.setup(ctx)
}

func (l *Loop) runTeardown() {
	defer func() {
		if r := recover(); r != nil {
			log.Error(l.category, "Loop teardown panic recovered",
				"loop", l.name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	l.teardown()
}
