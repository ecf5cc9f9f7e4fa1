// Package video keeps the looping video player running for the life of the
// exhibit.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/events"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/metrics"
	"github.com/zjrosen/displayboard/internal/pubsub"
	"github.com/zjrosen/displayboard/internal/shutdown"
	"github.com/zjrosen/displayboard/internal/tracing"
)

const source = "video"

// State is the supervised player's lifecycle state.
type State int

const (
	NotStarted State = iota
	Running
	ExitedCrashed  // died inside the crash grace window
	ExitedNormally // died later, or was stopped
	Terminating
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case ExitedCrashed:
		return "exited_crashed"
	case ExitedNormally:
		return "exited_normally"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// CommandFactoryFunc creates the player command. Tests substitute it to run
// a helper process instead of the real player.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// player is one launched process.
type player struct {
	cmd      *exec.Cmd
	started  time.Time
	done     chan struct{}
	exitedAt time.Time
	err      error
}

func (p *player) pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Supervisor owns one player process. Poll, Stop and Run must be called from
// a single goroutine; State may be read from anywhere.
type Supervisor struct {
	cfg      config.VideoConfig
	factory  CommandFactoryFunc
	headless func() bool
	tracer   trace.Tracer
	bus      *events.Bus
	stats    *metrics.LoopStats

	proc *player

	mu    sync.Mutex
	state State
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCommandFactory overrides how the player command is built.
func WithCommandFactory(fn CommandFactoryFunc) Option {
	return func(s *Supervisor) { s.factory = fn }
}

// WithHeadless overrides display detection.
func WithHeadless(fn func() bool) Option {
	return func(s *Supervisor) { s.headless = fn }
}

// WithTracer records launch and stop spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Supervisor) { s.tracer = t }
}

// WithEvents publishes lifecycle events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(s *Supervisor) { s.bus = bus }
}

// WithStats records launches and crashes.
func WithStats(stats *metrics.LoopStats) Option {
	return func(s *Supervisor) { s.stats = stats }
}

// NewSupervisor creates a Supervisor for cfg.
func NewSupervisor(cfg config.VideoConfig, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg: cfg,
		factory: func(ctx context.Context, name string, args ...string) *exec.Cmd {
			// #nosec G204 -- player and args come from the exhibit config
			return exec.CommandContext(ctx, name, args...)
		},
		headless: Headless,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if s.stats == nil {
		s.stats = metrics.NewRegistry().Loop(source)
	}
	return s
}

// State returns the state observed by the last Poll or Stop.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Skipped reports whether Run would return without launching anything.
func (s *Supervisor) Skipped() (bool, string) {
	if s.cfg.Disabled {
		return true, "video disabled by configuration"
	}
	if s.headless() {
		return true, "no DISPLAY or WAYLAND_DISPLAY"
	}
	return false, ""
}

// Run polls the player until sig is set, then stops it. It returns at once
// when video is disabled or there is no display.
func (s *Supervisor) Run(ctx context.Context, sig *shutdown.Signal) {
	if skip, reason := s.Skipped(); skip {
		log.Info(log.CatVideo, "Skipping video loop", "reason", reason)
		events.Publish(s.bus, source, pubsub.StoppedEvent, reason)
		return
	}

	s.stats.Started()
	defer s.stats.Stopped()
	defer s.Stop()

	log.Info(log.CatVideo, "Video loop started", "player", s.cfg.Player, "file", s.cfg.File)
	for !sig.IsSet() {
		s.Poll(ctx, sig)
		if sig.Wait(s.cfg.PollInterval) {
			break
		}
	}
}

// Poll advances the state machine by one tick: launch when there is no
// process, report Running while it lives, classify and clear it once it
// has exited. Nothing is relaunched once sig is set.
func (s *Supervisor) Poll(ctx context.Context, sig *shutdown.Signal) (state State) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatVideo, "Supervisor poll panic recovered",
				"panic", r,
				"stack", string(debug.Stack()))
			s.proc = nil
			state = NotStarted
		}
		s.setState(state)
	}()

	if s.proc == nil {
		if sig.IsSet() {
			return NotStarted
		}
		return s.launch(ctx, sig)
	}
	select {
	case <-s.proc.done:
		return s.reap()
	default:
		return Running
	}
}

func (s *Supervisor) args() []string {
	return append(append([]string(nil), s.cfg.Args...), s.cfg.File)
}

func (s *Supervisor) launch(ctx context.Context, sig *shutdown.Signal) State {
	ctx, span := s.tracer.Start(ctx, tracing.SpanPlayerLaunch, trace.WithAttributes(
		attribute.String(tracing.AttrPlayerPath, s.cfg.Player),
		attribute.String(tracing.AttrPlayerFile, s.cfg.File),
	))
	defer span.End()

	log.Info(log.CatVideo, "Starting video player", "player", s.cfg.Player, "file", s.cfg.File)
	cmd := s.factory(ctx, s.cfg.Player, s.args()...)
	if err := cmd.Start(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(tracing.AttrState, NotStarted.String()))
		log.ErrorErr(log.CatVideo, "Failed to start video player", err,
			"player", s.cfg.Player,
			"hint", launchHint(err, s.cfg.Player))
		s.stats.Iteration(time.Now(), err)
		events.Publish(s.bus, source, pubsub.FailedEvent, err.Error())
		return NotStarted
	}

	p := &player{cmd: cmd, started: time.Now(), done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		p.exitedAt = time.Now()
		close(p.done)
	}()
	s.proc = p
	span.SetAttributes(attribute.Int(tracing.AttrPlayerPID, p.pid()))

	grace := time.NewTimer(s.cfg.CrashGrace)
	defer grace.Stop()
	select {
	case <-p.done:
		span.AddEvent(tracing.EventPlayerCrashed)
		span.SetStatus(codes.Error, "player exited during crash grace window")
		return s.reap()
	case <-grace.C:
	case <-sig.Done():
	}

	span.SetAttributes(attribute.String(tracing.AttrState, Running.String()))
	log.Debug(log.CatVideo, "Video player running", "pid", p.pid())
	s.stats.Iteration(time.Now(), nil)
	events.Publish(s.bus, source, pubsub.StartedEvent, fmt.Sprintf("pid %d", p.pid()))
	return Running
}

// reap clears an exited process and classifies its exit.
func (s *Supervisor) reap() State {
	p := s.proc
	s.proc = nil

	lifetime := p.exitedAt.Sub(p.started)
	if lifetime < s.cfg.CrashGrace {
		err := fmt.Errorf("player exited after %s: %w", lifetime.Truncate(time.Millisecond), exitError(p.err))
		log.ErrorErr(log.CatVideo, "Video player died immediately after starting", err,
			"pid", p.pid(),
			"hint", "check the display and video hardware, or set VIDEO_DISABLED=1 to suppress this")
		s.stats.Iteration(time.Now(), err)
		events.Publish(s.bus, source, pubsub.FailedEvent, err.Error())
		return ExitedCrashed
	}

	log.Warn(log.CatVideo, "Video player exited, restarting on next poll",
		"pid", p.pid(),
		"ran", lifetime.Truncate(time.Second),
		"exit", exitError(p.err))
	events.Publish(s.bus, source, pubsub.StoppedEvent, "player exited")
	return ExitedNormally
}

// Stop terminates the player: a graceful terminate request, then a kill if
// it is still alive after StopTimeout. It is a no-op without a process.
func (s *Supervisor) Stop() {
	p := s.proc
	if p == nil {
		return
	}
	s.setState(Terminating)
	_, span := s.tracer.Start(context.Background(), tracing.SpanPlayerStop, trace.WithAttributes(
		attribute.Int(tracing.AttrPlayerPID, p.pid()),
	))
	defer span.End()
	defer func() {
		s.proc = nil
		s.setState(ExitedNormally)
	}()

	select {
	case <-p.done:
		return
	default:
	}

	log.Info(log.CatVideo, "Stopping video player", "pid", p.pid())
	if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warn(log.CatVideo, "Terminate request failed", "pid", p.pid(), "error", err)
	}

	timeout := time.NewTimer(s.cfg.StopTimeout)
	defer timeout.Stop()
	select {
	case <-p.done:
		return
	case <-timeout.C:
	}

	log.Warn(log.CatVideo, "Video player ignored terminate, killing", "pid", p.pid(), "timeout", s.cfg.StopTimeout)
	span.AddEvent("player.killed")
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.ErrorErr(log.CatVideo, "Failed to kill video player", err, "pid", p.pid())
		span.SetStatus(codes.Error, err.Error())
		return
	}
	select {
	case <-p.done:
	case <-time.After(s.cfg.StopTimeout):
		log.Error(log.CatVideo, "Video player did not exit after kill", "pid", p.pid())
	}
}

func launchHint(err error, player string) string {
	if errors.Is(err, exec.ErrNotFound) {
		return InstallHint(runtime.GOOS, player)
	}
	return "set VIDEO_DISABLED=1 to run without video"
}

func exitError(err error) error {
	if err == nil {
		return errors.New("exit status 0")
	}
	return err
}
