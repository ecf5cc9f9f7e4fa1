// Package orchestrator runs the exhibit: every behavior loop as its own
// task, the video supervisor on the calling goroutine, and an orderly
// shutdown that never hangs on a misbehaving task.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/events"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/pubsub"
	"github.com/zjrosen/displayboard/internal/shutdown"
	"github.com/zjrosen/displayboard/internal/tracing"
)

const source = "orchestrator"

// Runner is a named background behavior. *behavior.Loop satisfies it.
type Runner interface {
	Name() string
	Run(ctx context.Context, sig *shutdown.Signal) error
}

// Foreground blocks until sig is set. *video.Supervisor satisfies it.
type Foreground interface {
	Run(ctx context.Context, sig *shutdown.Signal)
}

// Hook runs once during shutdown after every task has been joined.
type Hook struct {
	Name string
	Fn   func()
}

// Task is a started Runner.
type Task struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the runner's name.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error. Only valid after Done is closed.
func (t *Task) Err() error { return t.err }

// Orchestrator wires runners, the foreground supervisor and shutdown hooks.
type Orchestrator struct {
	cfg        config.ShutdownConfig
	runners    []Runner
	foreground Foreground
	hooks      []Hook
	tracer     trace.Tracer
	bus        *events.Bus

	shutdownOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner adds a background runner.
func WithRunner(r Runner) Option {
	return func(o *Orchestrator) { o.runners = append(o.runners, r) }
}

// WithForeground sets what Run blocks on. Without one Run idles until
// shutdown.
func WithForeground(f Foreground) Option {
	return func(o *Orchestrator) { o.foreground = f }
}

// WithHook registers a shutdown hook.
func WithHook(name string, fn func()) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, Hook{Name: name, Fn: fn}) }
}

// WithTracer records a span around shutdown.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithEvents publishes task lifecycle events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// New creates an Orchestrator.
func New(cfg config.ShutdownConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return o
}

// Start launches every runner in its own goroutine.
func (o *Orchestrator) Start(ctx context.Context, sig *shutdown.Signal) []*Task {
	tasks := make([]*Task, 0, len(o.runners))
	for _, r := range o.runners {
		t := &Task{name: r.Name(), done: make(chan struct{})}
		go o.runTask(ctx, sig, r, t)
		tasks = append(tasks, t)
	}
	log.Info(log.CatOrch, "Started tasks", "count", len(tasks))
	return tasks
}

func (o *Orchestrator) runTask(ctx context.Context, sig *shutdown.Signal, r Runner, t *Task) {
	defer close(t.done)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(log.CatOrch, "Task panic recovered",
				"task", t.name,
				"panic", rec,
				"stack", string(debug.Stack()))
			t.err = fmt.Errorf("task %s panicked: %v", t.name, rec)
		}
	}()
	if err := r.Run(ctx, sig); err != nil {
		t.err = err
		log.ErrorErr(log.CatOrch, "Task ended with error", err, "task", t.name)
		events.Publish(o.bus, t.name, pubsub.FailedEvent, err.Error())
	}
}

// Run blocks until sig is set, driving the foreground supervisor if one is
// configured. When the supervisor returns early (video skipped) Run keeps
// idling so the behavior loops carry on.
func (o *Orchestrator) Run(ctx context.Context, sig *shutdown.Signal) {
	if o.foreground != nil {
		o.foreground.Run(ctx, sig)
	}
	for !sig.Wait(o.idleCycle()) {
	}
}

func (o *Orchestrator) idleCycle() time.Duration {
	if o.cfg.IdleCycle <= 0 {
		return time.Second
	}
	return o.cfg.IdleCycle
}

// Shutdown sets sig, joins every task with a bounded wait and runs the
// shutdown hooks. Join problems are logged, never returned. Safe to call
// more than once; hooks run only on the first call.
func (o *Orchestrator) Shutdown(sig *shutdown.Signal, tasks []*Task) {
	_, span := o.tracer.Start(context.Background(), tracing.SpanShutdown,
		trace.WithAttributes(attribute.Int("tasks", len(tasks))))
	defer span.End()

	sig.Set()
	log.Info(log.CatOrch, "Shutting down", "tasks", len(tasks))

	for _, t := range tasks {
		if t == nil {
			continue
		}
		timer := time.NewTimer(o.cfg.JoinTimeout)
		select {
		case <-t.done:
			if t.err != nil {
				log.Warn(log.CatOrch, "Task had failed", "task", t.name, "error", t.err)
			}
		case <-timer.C:
			log.Error(log.CatOrch, "Task did not stop in time", "task", t.name, "timeout", o.cfg.JoinTimeout)
			span.AddEvent("task.join_timeout", trace.WithAttributes(attribute.String(tracing.AttrLoopName, t.name)))
		}
		timer.Stop()
	}

	o.shutdownOnce.Do(func() {
		for _, h := range o.hooks {
			o.runHook(h)
		}
		events.Publish(o.bus, source, pubsub.StoppedEvent, "")
		log.Info(log.CatOrch, "Shutdown complete")
	})
}

func (o *Orchestrator) runHook(h Hook) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(log.CatOrch, "Shutdown hook panic recovered",
				"hook", h.Name,
				"panic", rec,
				"stack", string(debug.Stack()))
		}
	}()
	h.Fn()
}
