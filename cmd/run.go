package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zjrosen/displayboard/internal/audio"
	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/bell"
	"github.com/zjrosen/displayboard/internal/config"
	"github.com/zjrosen/displayboard/internal/dashboard"
	"github.com/zjrosen/displayboard/internal/events"
	"github.com/zjrosen/displayboard/internal/flags"
	"github.com/zjrosen/displayboard/internal/instance"
	"github.com/zjrosen/displayboard/internal/lighting"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/metrics"
	"github.com/zjrosen/displayboard/internal/mister"
	"github.com/zjrosen/displayboard/internal/orchestrator"
	"github.com/zjrosen/displayboard/internal/random"
	"github.com/zjrosen/displayboard/internal/shutdown"
	"github.com/zjrosen/displayboard/internal/soundscape"
	"github.com/zjrosen/displayboard/internal/tracing"
	"github.com/zjrosen/displayboard/internal/video"
	"github.com/zjrosen/displayboard/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the exhibit until interrupted",
	Long: `Run every enabled behavior until SIGINT or SIGTERM, then fade the sound
out, stop the video player and release the hardware.

Example:
  displayboard run                      # Everything enabled in the config
  displayboard run --no-video -v        # Headless bench test with info logs
  displayboard run --dashboard          # Live view of every loop`,
	RunE: runExhibit,
}

// runOptions are the command-line overrides for one run.
type runOptions struct {
	noSounds   bool
	noVideo    bool
	noLighting bool
	noBell     bool
	mister     bool
	dashboard  bool
	seed       int64
	verbose    bool
	debug      bool
	logFile    string
}

var runOpts runOptions

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.BoolVar(&runOpts.noSounds, "no-sounds", false, "disable all sound loops")
	f.BoolVar(&runOpts.noVideo, "no-video", false, "do not launch the video player")
	f.BoolVar(&runOpts.noLighting, "no-lighting", false, "disable the LED strip")
	f.BoolVar(&runOpts.noBell, "no-bell", false, "disable the bell")
	f.BoolVar(&runOpts.mister, "mister", false, "enable the fog mister")
	f.BoolVar(&runOpts.dashboard, "dashboard", false, "show the live terminal dashboard")
	f.Int64Var(&runOpts.seed, "seed", 0, "random seed for reproducible runs (0 seeds from the clock)")
	f.BoolVarP(&runOpts.verbose, "verbose", "v", false, "log at info level")
	f.BoolVarP(&runOpts.debug, "debug", "d", false, "log at debug level")
	f.StringVar(&runOpts.logFile, "log-file", "", "write logs to this file instead of stderr")
}

// apply folds the command-line overrides into c.
func (o runOptions) apply(c *config.Config) {
	if o.noSounds {
		c.Features.Sounds = false
	}
	if o.noVideo {
		c.Features.Video = false
	}
	if o.noLighting {
		c.Features.Lighting = false
	}
	if o.noBell {
		c.Features.Bell = false
	}
	if o.mister {
		c.Features.Mister = true
	}
	if o.seed != 0 {
		c.Seed = o.seed
	}
	if o.logFile != "" {
		c.Log.File = o.logFile
	}
	switch {
	case o.debug:
		c.Log.Level = "debug"
	case o.verbose:
		c.Log.Level = "info"
	}
	if !c.Features.Video {
		c.Video.Disabled = true
	}
}

func setupLogging(c config.Config, withDashboard bool) (func(), error) {
	cleanup := func() {}
	switch {
	case withDashboard:
		path := c.Log.File
		if path == "" {
			path = "displayboard.log"
		}
		fn, err := log.InitWithTeaLog(path, "displayboard")
		if err != nil {
			return nil, fmt.Errorf("initializing logging: %w", err)
		}
		cleanup = fn
	case c.Log.File != "":
		fn, err := log.Init(c.Log.File)
		if err != nil {
			return nil, fmt.Errorf("initializing logging: %w", err)
		}
		cleanup = fn
	default:
		log.InitWriter(os.Stderr)
	}
	log.SetMinLevel(log.ParseLevel(c.Log.Level))
	return cleanup, nil
}

// checkVideo fails with an install hint when the supervisor will launch a
// player that is not on PATH. A skipped supervisor needs no player.
func checkVideo(w io.Writer, supervisor *video.Supervisor, player string) error {
	if skip, _ := supervisor.Skipped(); skip {
		return nil
	}
	if _, err := video.CheckPlayer(player); err != nil {
		fmt.Fprintf(w, "Error: %s is not installed.\n", player)
		fmt.Fprintf(w, "Install it with: %s\n", video.InstallHint(runtime.GOOS, player))
		log.ErrorErr(log.CatVideo, "Video player missing", err)
		return err
	}
	return nil
}

func runExhibit(_ *cobra.Command, _ []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	runOpts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanupLog, err := setupLogging(cfg, runOpts.dashboard)
	if err != nil {
		return err
	}
	defer cleanupLog()

	runID := uuid.NewString()
	log.Info(log.CatConfig, "Displayboard starting", "run_id", runID, "config", cfgUsed, "version", version)

	lock, err := instance.Acquire(cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	provider, err := tracing.NewProvider(cfg.Tracing, runID)
	if err != nil {
		log.ErrorErr(log.CatTrace, "Tracing disabled", err)
		provider = tracing.Noop()
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Failed to flush traces", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &exhibit{
		cfg:     cfg,
		flags:   flags.New(cfg.Flags),
		rand:    random.NewFactory(cfg.Seed),
		stats:   metrics.NewRegistry(),
		bus:     events.NewBus(),
		tracer:  provider,
	}
	defer ex.bus.Close()
	defer ex.close()

	supervisor := video.NewSupervisor(cfg.Video,
		video.WithTracer(provider.Tracer()),
		video.WithEvents(ex.bus),
		video.WithStats(ex.stats.Loop("video")))
	if err := checkVideo(os.Stderr, supervisor, cfg.Video.Player); err != nil {
		return err
	}

	orchOpts, err := ex.build(ctx)
	if err != nil {
		return err
	}
	orchOpts = append(orchOpts,
		orchestrator.WithForeground(supervisor),
		orchestrator.WithTracer(provider.Tracer()),
		orchestrator.WithEvents(ex.bus))
	orch := orchestrator.New(cfg.Shutdown, orchOpts...)

	sig := shutdown.New()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			log.Info(log.CatOrch, "Received signal, shutting down", "signal", s.String())
			sig.Set()
		case <-sig.Done():
		}
	}()

	tasks := orch.Start(ctx, sig)

	var dashDone chan error
	if runOpts.dashboard {
		dashDone = make(chan error, 1)
		go func() {
			dashDone <- dashboard.Run(ctx, dashboard.Config{
				RunID:  runID,
				Stats:  ex.stats,
				Events: ex.bus,
				Logs:   log.NewListener(ctx),
				OnQuit: sig.Set,
			})
		}()
	} else {
		fmt.Fprintf(os.Stderr, "displayboard running (run %s). Press Ctrl+C to stop.\n", runID[:8])
	}

	orch.Run(ctx, sig)
	orch.Shutdown(sig, tasks)
	cancel()

	if dashDone != nil {
		if err := <-dashDone; err != nil {
			log.ErrorErr(log.CatOrch, "Dashboard failed", err)
		}
	}
	logSummary(ex.stats)
	return nil
}

func logSummary(stats *metrics.Registry) {
	for _, s := range stats.Snapshot() {
		log.Info(log.CatOrch, "Loop summary",
			"loop", s.Name,
			"iterations", s.Iterations,
			"failures", s.Failures,
			"failure_rate", fmt.Sprintf("%.2f", s.FailureRate()))
	}
}

// exhibit assembles the behavior loops from the configuration.
type exhibit struct {
	cfg     config.Config
	flags   *flags.Registry
	rand    *random.Factory
	stats   *metrics.Registry
	bus     *events.Bus
	tracer  *tracing.Provider
	closers []func()
}

func (e *exhibit) loopOptions() []behavior.Option {
	return []behavior.Option{
		behavior.WithTracer(e.tracer.Tracer()),
		behavior.WithMetrics(e.stats),
		behavior.WithEvents(e.bus),
	}
}

func (e *exhibit) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

// close releases resources in reverse order of acquisition.
func (e *exhibit) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// build creates every enabled loop and returns them as orchestrator options.
// Only configuration errors are returned; missing hardware degrades to
// no-op devices.
func (e *exhibit) build(ctx context.Context) ([]orchestrator.Option, error) {
	var opts []orchestrator.Option
	add := func(l *behavior.Loop, err error) error {
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithRunner(l))
		return nil
	}

	f := e.cfg.Features
	var backend audio.Backend
	if f.Sounds || f.Bell {
		backend = e.openAudio()
	}

	if f.Sounds {
		store := e.openLibrary(ctx, backend)
		deps := soundscape.Deps{Backend: backend, Library: store, Rand: e.rand, Options: e.loopOptions()}
		if err := errors.Join(
			add(soundscape.NewAmbientLoop(deps, e.cfg.Ambient)),
			add(soundscape.NewOneShotLoop("chains", deps, e.cfg.Chains, true)),
			add(soundscape.NewOneShotLoop("voices", deps, e.cfg.Voices, true)),
			add(soundscape.NewOneShotLoop("screams", deps, e.cfg.Screams, !e.flags.Enabled(flags.FlagStartupScream))),
			add(soundscape.NewRatsLoop(deps, e.cfg.Rats)),
		); err != nil {
			return nil, err
		}
		if e.flags.Enabled(flags.FlagShutdownFade) {
			opts = append(opts, orchestrator.WithHook("sound-fade",
				soundscape.FadeOut(backend, e.cfg.Ambient, e.cfg.Rats, e.cfg.Shutdown)))
		}
	}

	if f.Lighting {
		strip := openStrip(e.cfg.Lighting)
		e.onClose(func() { _ = strip.Close() })
		effect := lighting.New(e.cfg.Lighting, strip, e.rand.Source(), nil)
		if err := add(effect.Loop(e.loopOptions()...)); err != nil {
			return nil, err
		}
	}

	if f.Bell {
		servo := openServo(e.cfg.Bell.Servo)
		e.onClose(func() { _ = servo.Close() })
		b := bell.New(e.cfg.Bell, backend, servo, e.rand.Source())
		if err := add(b.Loop(e.loopOptions()...)); err != nil {
			return nil, err
		}
	}

	if f.Mister {
		relay := openSwitch(e.cfg.Mister.Pin)
		e.onClose(func() { _ = relay.Close() })
		m := mister.New(e.cfg.Mister, relay, e.rand.Source())
		if err := add(m.Loop(e.loopOptions()...)); err != nil {
			return nil, err
		}
	}

	if len(opts) == 0 {
		log.Warn(log.CatOrch, "No behaviors enabled")
	}
	return opts, nil
}

// openAudio opens the configured backend, falling back to the null backend
// so the exhibit keeps its timing without a sound device.
func (e *exhibit) openAudio() audio.Backend {
	opts := audio.Options{
		Channels:    e.cfg.Audio.Channels,
		Reserved:    reservedChannels(e.cfg),
		DefaultGain: e.cfg.Audio.DefaultVolume,
	}
	backend, err := audio.Open(e.cfg.Audio.Backend, opts)
	if err != nil {
		log.ErrorErr(log.CatAudio, "Audio backend unavailable, sounds will be silent", err, "backend", e.cfg.Audio.Backend)
		backend = audio.NewNullBackend(opts)
	}
	e.onClose(func() {
		if err := backend.Close(); err != nil {
			log.ErrorErr(log.CatAudio, "Failed to close audio backend", err)
		}
	})
	return audio.NewCachedBackend(backend, e.cfg.Audio.CacheTTL)
}

// reservedChannels returns one past the highest channel owned by a loop, so
// Backend.Play never steals an owned channel.
func reservedChannels(c config.Config) int {
	highest := max(c.Ambient.Channel, c.Bell.Channel)
	for _, ch := range c.Rats.Channels {
		highest = max(highest, ch)
	}
	return highest + 1
}

// openLibrary scans the sound library and, with the watch-sounds flag,
// rescans it whenever files change.
func (e *exhibit) openLibrary(ctx context.Context, backend audio.Backend) *audio.Store {
	store := audio.NewStore(e.cfg.SoundsDir, e.cfg.SoundCategories())
	if cached, ok := backend.(*audio.CachedBackend); ok {
		store.OnSwap(func(*audio.Library) { cached.Invalidate() })
	}
	if err := store.Rescan(ctx); err != nil {
		log.ErrorErr(log.CatAudio, "Failed to scan sound library", err, "dir", e.cfg.SoundsDir)
	}

	if !e.flags.Enabled(flags.FlagWatchSounds) {
		return store
	}
	dirs := []string{e.cfg.SoundsDir}
	for _, cat := range e.cfg.SoundCategories() {
		dirs = append(dirs, filepath.Join(e.cfg.SoundsDir, cat))
	}
	wcfg := watcher.DefaultConfig(dirs...)
	wcfg.Match = audio.IsSoundFile
	w, err := watcher.New(wcfg)
	if err != nil {
		log.ErrorErr(log.CatWatcher, "Sound watcher unavailable", err)
		return store
	}
	changes, err := w.Start()
	if err != nil {
		log.ErrorErr(log.CatWatcher, "Sound watcher unavailable", err)
		_ = w.Stop()
		return store
	}
	e.onClose(func() { _ = w.Stop() })
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				log.Info(log.CatWatcher, "Sound files changed, rescanning")
				if err := store.Rescan(ctx); err != nil {
					log.ErrorErr(log.CatWatcher, "Rescan failed", err)
				}
			}
		}
	}()
	return store
}
