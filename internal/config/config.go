// Package config provides configuration types and defaults for displayboard.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/displayboard/internal/behavior"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/tracing"
)

// Config holds all configuration options for displayboard.
type Config struct {
	AssetsDir string          `mapstructure:"assets_dir" yaml:"assets_dir"`
	SoundsDir string          `mapstructure:"sounds_dir" yaml:"sounds_dir"` // Default: <assets_dir>/sounds
	VideoDir  string          `mapstructure:"video_dir" yaml:"video_dir"`   // Default: <assets_dir>/video
	LockFile  string          `mapstructure:"lock_file" yaml:"lock_file"`   // Default: <tmp>/displayboard.lock
	Seed      int64           `mapstructure:"seed" yaml:"seed"` // 0 seeds from the clock
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Features  FeaturesConfig  `mapstructure:"features" yaml:"features"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Ambient   AmbientConfig   `mapstructure:"ambient" yaml:"ambient"`
	Chains    OneShotConfig   `mapstructure:"chains" yaml:"chains"`
	Voices    OneShotConfig   `mapstructure:"voices" yaml:"voices"`
	Screams   OneShotConfig   `mapstructure:"screams" yaml:"screams"`
	Rats      RatsConfig      `mapstructure:"rats" yaml:"rats"`
	Lighting  LightingConfig  `mapstructure:"lighting" yaml:"lighting"`
	Bell      BellConfig      `mapstructure:"bell" yaml:"bell"`
	Mister    MisterConfig    `mapstructure:"mister" yaml:"mister"`
	Video     VideoConfig     `mapstructure:"video" yaml:"video"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown" yaml:"shutdown"`
	Tracing   tracing.Config  `mapstructure:"tracing" yaml:"tracing"`
	Flags     map[string]bool `mapstructure:"flags" yaml:"flags"`
}

// LogConfig selects log verbosity and destination.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn (default), error
	File  string `mapstructure:"file" yaml:"file"`   // Empty logs to stderr
}

// FeaturesConfig switches whole behaviors on or off.
type FeaturesConfig struct {
	Sounds   bool `mapstructure:"sounds" yaml:"sounds"`
	Video    bool `mapstructure:"video" yaml:"video"`
	Lighting bool `mapstructure:"lighting" yaml:"lighting"`
	Bell     bool `mapstructure:"bell" yaml:"bell"`
	Mister   bool `mapstructure:"mister" yaml:"mister"`
}

// AudioConfig configures the playback backend.
type AudioConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"` // "gst" or "null"
	Channels      int           `mapstructure:"channels" yaml:"channels"`
	DefaultVolume float64       `mapstructure:"default_volume" yaml:"default_volume"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// AmbientConfig configures the ambient cross-fade loop.
type AmbientConfig struct {
	Channel int           `mapstructure:"channel" yaml:"channel"`
	Fade    time.Duration `mapstructure:"fade" yaml:"fade"`
	Volume  float64       `mapstructure:"volume" yaml:"volume"`
}

// OneShotConfig configures a loop that plays one random sound per interval.
type OneShotConfig struct {
	Category  string                `mapstructure:"category" yaml:"category"`
	Interval  behavior.IntervalSpec `mapstructure:"interval" yaml:"interval"`
	VolumeMin float64               `mapstructure:"volume_min" yaml:"volume_min"`
	VolumeMax float64               `mapstructure:"volume_max" yaml:"volume_max"`
}

// RatsConfig configures the rat horde loop.
type RatsConfig struct {
	Channels   []int                 `mapstructure:"channels" yaml:"channels"`
	Fade       time.Duration         `mapstructure:"fade" yaml:"fade"`
	Interval   behavior.IntervalSpec `mapstructure:"interval" yaml:"interval"`
	BaseVolume float64               `mapstructure:"base_volume" yaml:"base_volume"`
}

// LightingConfig configures the LED strip animation.
type LightingConfig struct {
	Port           string        `mapstructure:"port" yaml:"port"` // SPI port; empty picks the first
	NumLEDs        int           `mapstructure:"num_leds" yaml:"num_leds"`
	Brightness     float64       `mapstructure:"brightness" yaml:"brightness"`
	UpdateInterval time.Duration `mapstructure:"update_interval" yaml:"update_interval"`
	Breathe        BreatheConfig `mapstructure:"breathe" yaml:"breathe"`
	Flicker        FlickerConfig `mapstructure:"flicker" yaml:"flicker"`
	BaseGreen      uint8         `mapstructure:"base_green" yaml:"base_green"`
}

// BreatheConfig shapes the slow brightness wave.
type BreatheConfig struct {
	Frequency     float64 `mapstructure:"frequency" yaml:"frequency"`
	MinBrightness float64 `mapstructure:"min_brightness" yaml:"min_brightness"`
	Range         float64 `mapstructure:"range" yaml:"range"`
}

// FlickerConfig controls random per-pixel flicker.
type FlickerConfig struct {
	Probability float64  `mapstructure:"probability" yaml:"probability"`
	Red         [2]uint8 `mapstructure:"red" yaml:"red"`
	Green       [2]uint8 `mapstructure:"green" yaml:"green"`
	Blue        [2]uint8 `mapstructure:"blue" yaml:"blue"`
}

// BellConfig configures the bell trigger loop.
type BellConfig struct {
	Sound              string                `mapstructure:"sound" yaml:"sound"` // Default: <sounds_dir>/bell/screamingBell.mp3
	Channel            int                   `mapstructure:"channel" yaml:"channel"`
	Interval           behavior.IntervalSpec `mapstructure:"interval" yaml:"interval"`
	TriggerProbability float64               `mapstructure:"trigger_probability" yaml:"trigger_probability"`
	StartOffsetMin     time.Duration         `mapstructure:"start_offset_min" yaml:"start_offset_min"`
	StartOffsetMax     time.Duration         `mapstructure:"start_offset_max" yaml:"start_offset_max"`
	VolumeMin          float64               `mapstructure:"volume_min" yaml:"volume_min"`
	VolumeMax          float64               `mapstructure:"volume_max" yaml:"volume_max"`
	SwingsMin          int                   `mapstructure:"swings_min" yaml:"swings_min"`
	SwingsMax          int                   `mapstructure:"swings_max" yaml:"swings_max"`
	PositionMin        float64               `mapstructure:"position_min" yaml:"position_min"`
	PositionMax        float64               `mapstructure:"position_max" yaml:"position_max"`
	Pause              behavior.IntervalSpec `mapstructure:"pause" yaml:"pause"`
	Servo              ServoConfig           `mapstructure:"servo" yaml:"servo"`
}

// ServoConfig wires the bell servo.
type ServoConfig struct {
	Pin      string        `mapstructure:"pin" yaml:"pin"`
	MinPulse time.Duration `mapstructure:"min_pulse" yaml:"min_pulse"`
	MaxPulse time.Duration `mapstructure:"max_pulse" yaml:"max_pulse"`
}

// MisterConfig configures the fog mister loop.
type MisterConfig struct {
	Pin      string                `mapstructure:"pin" yaml:"pin"`
	Interval behavior.IntervalSpec `mapstructure:"interval" yaml:"interval"`
	Duration time.Duration         `mapstructure:"duration" yaml:"duration"`
}

// VideoConfig configures the supervised video player.
type VideoConfig struct {
	Disabled     bool          `mapstructure:"disabled" yaml:"disabled"`
	Player       string        `mapstructure:"player" yaml:"player"`
	Args         []string      `mapstructure:"args" yaml:"args"`
	File         string        `mapstructure:"file" yaml:"file"` // Default: <video_dir>/main_loop.mp4
	CrashGrace   time.Duration `mapstructure:"crash_grace" yaml:"crash_grace"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// ShutdownConfig bounds how long shutdown may take.
type ShutdownConfig struct {
	JoinTimeout time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
	IdleCycle   time.Duration `mapstructure:"idle_cycle" yaml:"idle_cycle"`
	AmbientFade time.Duration `mapstructure:"ambient_fade" yaml:"ambient_fade"`
	RatsFade    time.Duration `mapstructure:"rats_fade" yaml:"rats_fade"`
	FadeWait    time.Duration `mapstructure:"fade_wait" yaml:"fade_wait"`
}

// Defaults returns the configuration of the reference exhibit.
func Defaults() Config {
	return Config{
		AssetsDir: "assets",
		Log: LogConfig{
			Level: "warn",
		},
		Features: FeaturesConfig{
			Sounds:   true,
			Video:    true,
			Lighting: true,
			Bell:     true,
			Mister:   false,
		},
		Audio: AudioConfig{
			Backend:       "gst",
			Channels:      16,
			DefaultVolume: 0.75,
			CacheTTL:      time.Hour,
		},
		Ambient: AmbientConfig{
			Channel: 0,
			Fade:    3 * time.Second,
			Volume:  0.75,
		},
		Chains: OneShotConfig{
			Category:  "chains",
			Interval:  behavior.IntervalSpec{Min: 15 * time.Second, Max: 120 * time.Second},
			VolumeMin: 0,
			VolumeMax: 0.5,
		},
		Voices: OneShotConfig{
			Category:  "skaven",
			Interval:  behavior.IntervalSpec{Min: 20 * time.Second, Max: 40 * time.Second},
			VolumeMin: 0,
			VolumeMax: 1,
		},
		Screams: OneShotConfig{
			Category:  "screams",
			Interval:  behavior.Fixed(120 * time.Second),
			VolumeMin: 0.75,
			VolumeMax: 0.75,
		},
		Rats: RatsConfig{
			Channels:   []int{1, 2, 3, 4},
			Fade:       500 * time.Millisecond,
			Interval:   behavior.IntervalSpec{Min: 2 * time.Second, Max: 6 * time.Second},
			BaseVolume: 0.75,
		},
		Lighting: LightingConfig{
			NumLEDs:        30,
			Brightness:     0.4,
			UpdateInterval: 50 * time.Millisecond,
			Breathe: BreatheConfig{
				Frequency:     0.2,
				MinBrightness: 0.3,
				Range:         0.6,
			},
			Flicker: FlickerConfig{
				Probability: 0.05,
				Red:         [2]uint8{0, 30},
				Green:       [2]uint8{50, 255},
				Blue:        [2]uint8{0, 20},
			},
			BaseGreen: 50,
		},
		Bell: BellConfig{
			Channel:            5,
			Interval:           behavior.IntervalSpec{Min: 10 * time.Second, Max: 40 * time.Second},
			TriggerProbability: 0.8,
			StartOffsetMin:     0,
			StartOffsetMax:     90 * time.Second,
			VolumeMin:          0.3,
			VolumeMax:          1,
			SwingsMin:          1,
			SwingsMax:          5,
			PositionMin:        -1,
			PositionMax:        1,
			Pause:              behavior.IntervalSpec{Min: 300 * time.Millisecond, Max: 600 * time.Millisecond},
			Servo: ServoConfig{
				Pin:      "GPIO18",
				MinPulse: 500 * time.Microsecond,
				MaxPulse: 2500 * time.Microsecond,
			},
		},
		Mister: MisterConfig{
			Pin:      "GPIO22",
			Interval: behavior.IntervalSpec{Min: 5 * time.Minute, Max: 15 * time.Minute},
			Duration: 5 * time.Second,
		},
		Video: VideoConfig{
			Player:       "mpv",
			Args:         []string{"--fullscreen", "--loop", "--no-terminal"},
			CrashGrace:   100 * time.Millisecond,
			PollInterval: 100 * time.Millisecond,
			StopTimeout:  5 * time.Second,
		},
		Shutdown: ShutdownConfig{
			JoinTimeout: 5 * time.Second,
			IdleCycle:   time.Second,
			AmbientFade: 2 * time.Second,
			RatsFade:    time.Second,
			FadeWait:    2 * time.Second,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Resolve fills derived paths from AssetsDir.
func (c *Config) Resolve() {
	if c.SoundsDir == "" {
		c.SoundsDir = filepath.Join(c.AssetsDir, "sounds")
	}
	if c.VideoDir == "" {
		c.VideoDir = filepath.Join(c.AssetsDir, "video")
	}
	if c.LockFile == "" {
		c.LockFile = filepath.Join(os.TempDir(), "displayboard.lock")
	}
	if c.Video.File == "" {
		c.Video.File = filepath.Join(c.VideoDir, "main_loop.mp4")
	}
	if c.Bell.Sound == "" {
		c.Bell.Sound = filepath.Join(c.SoundsDir, "bell", "screamingBell.mp3")
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "file" && c.Tracing.FilePath == "" {
		c.Tracing.FilePath = DefaultTracesFilePath()
	}
}

// DefaultTracesFilePath returns the default JSONL trace path.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "displayboard-traces.jsonl")
	}
	return filepath.Join(home, ".config", "displayboard", "traces", "traces.jsonl")
}

// SoundCategories returns every category directory the loops read from.
func (c Config) SoundCategories() []string {
	return []string{"ambient", "rats", c.Chains.Category, c.Screams.Category, c.Voices.Category}
}

// Validate checks the whole configuration and joins every problem found.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(ValidateAudio(c.Audio))
	add(validateOneShot("chains", c.Chains))
	add(validateOneShot("voices", c.Voices))
	add(validateOneShot("screams", c.Screams))
	add(ValidateRats(c.Rats, c.Audio))
	add(ValidateLighting(c.Lighting))
	add(ValidateBell(c.Bell, c.Audio))
	add(validateInterval("mister.interval", c.Mister.Interval))
	add(ValidateVideo(c.Video))
	add(ValidateTracing(c.Tracing))
	if c.Ambient.Channel < 0 || c.Ambient.Channel >= c.Audio.Channels {
		add(fmt.Errorf("ambient.channel %d outside [0,%d)", c.Ambient.Channel, c.Audio.Channels))
	}
	add(validateChannelOwners(c))
	if c.Shutdown.JoinTimeout <= 0 {
		add(fmt.Errorf("shutdown.join_timeout must be positive, got %s", c.Shutdown.JoinTimeout))
	}
	return errors.Join(errs...)
}

// validateChannelOwners rejects configs where two loops share a channel.
func validateChannelOwners(c Config) error {
	owner := map[int]string{c.Ambient.Channel: "ambient.channel"}
	claim := func(ch int, field string) error {
		if prev, ok := owner[ch]; ok {
			return fmt.Errorf("%s: channel %d already used by %s", field, ch, prev)
		}
		owner[ch] = field
		return nil
	}
	if err := claim(c.Bell.Channel, "bell.channel"); err != nil {
		return err
	}
	for _, ch := range c.Rats.Channels {
		if prev := owner[ch]; prev == "rats.channels" {
			continue // duplicates are reported by ValidateRats
		}
		if err := claim(ch, "rats.channels"); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAudio checks the audio section.
func ValidateAudio(a AudioConfig) error {
	if a.Channels < 1 {
		return fmt.Errorf("audio.channels must be at least 1, got %d", a.Channels)
	}
	if a.DefaultVolume < 0 || a.DefaultVolume > 1 {
		return fmt.Errorf("audio.default_volume must be between 0.0 and 1.0, got %v", a.DefaultVolume)
	}
	return nil
}

func validateInterval(field string, s behavior.IntervalSpec) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func validateVolumeRange(field string, lo, hi float64) error {
	if lo < 0 || hi > 1 || lo > hi {
		return fmt.Errorf("%s volume range [%v, %v] must satisfy 0 <= min <= max <= 1", field, lo, hi)
	}
	return nil
}

func validateOneShot(field string, o OneShotConfig) error {
	if o.Category == "" {
		return fmt.Errorf("%s.category is required", field)
	}
	if err := validateInterval(field+".interval", o.Interval); err != nil {
		return err
	}
	return validateVolumeRange(field, o.VolumeMin, o.VolumeMax)
}

// ValidateRats checks the rats section against the channel count.
func ValidateRats(r RatsConfig, a AudioConfig) error {
	if len(r.Channels) == 0 {
		return fmt.Errorf("rats.channels must list at least one channel")
	}
	seen := make(map[int]bool, len(r.Channels))
	for _, ch := range r.Channels {
		if ch < 0 || ch >= a.Channels {
			return fmt.Errorf("rats.channels: channel %d outside [0,%d)", ch, a.Channels)
		}
		if seen[ch] {
			return fmt.Errorf("rats.channels: channel %d listed twice", ch)
		}
		seen[ch] = true
	}
	if err := validateInterval("rats.interval", r.Interval); err != nil {
		return err
	}
	return validateVolumeRange("rats", 0, r.BaseVolume)
}

// ValidateLighting checks the lighting section.
func ValidateLighting(l LightingConfig) error {
	if l.NumLEDs < 1 {
		return fmt.Errorf("lighting.num_leds must be at least 1, got %d", l.NumLEDs)
	}
	if l.Brightness < 0 || l.Brightness > 1 {
		return fmt.Errorf("lighting.brightness must be between 0.0 and 1.0, got %v", l.Brightness)
	}
	if l.UpdateInterval < 0 {
		return fmt.Errorf("lighting.update_interval must not be negative")
	}
	if l.Flicker.Probability < 0 || l.Flicker.Probability > 1 {
		return fmt.Errorf("lighting.flicker.probability must be between 0.0 and 1.0, got %v", l.Flicker.Probability)
	}
	for name, r := range map[string][2]uint8{"red": l.Flicker.Red, "green": l.Flicker.Green, "blue": l.Flicker.Blue} {
		if r[0] > r[1] {
			return fmt.Errorf("lighting.flicker.%s range [%d, %d] is inverted", name, r[0], r[1])
		}
	}
	return nil
}

// ValidateBell checks the bell section.
func ValidateBell(b BellConfig, a AudioConfig) error {
	if b.Channel < 0 || b.Channel >= a.Channels {
		return fmt.Errorf("bell.channel %d outside [0,%d)", b.Channel, a.Channels)
	}
	if err := validateInterval("bell.interval", b.Interval); err != nil {
		return err
	}
	if err := validateInterval("bell.pause", b.Pause); err != nil {
		return err
	}
	if b.TriggerProbability < 0 || b.TriggerProbability > 1 {
		return fmt.Errorf("bell.trigger_probability must be between 0.0 and 1.0, got %v", b.TriggerProbability)
	}
	if b.StartOffsetMin < 0 || b.StartOffsetMin > b.StartOffsetMax {
		return fmt.Errorf("bell start offset range [%s, %s] is invalid", b.StartOffsetMin, b.StartOffsetMax)
	}
	if err := validateVolumeRange("bell", b.VolumeMin, b.VolumeMax); err != nil {
		return err
	}
	if b.SwingsMin < 0 || b.SwingsMin > b.SwingsMax {
		return fmt.Errorf("bell swings range [%d, %d] is invalid", b.SwingsMin, b.SwingsMax)
	}
	if b.PositionMin < -1 || b.PositionMax > 1 || b.PositionMin > b.PositionMax {
		return fmt.Errorf("bell position range [%v, %v] must lie within [-1, 1]", b.PositionMin, b.PositionMax)
	}
	if b.Servo.MaxPulse <= b.Servo.MinPulse {
		return fmt.Errorf("bell.servo.max_pulse must exceed min_pulse")
	}
	return nil
}

// ValidateVideo checks the video section.
func ValidateVideo(v VideoConfig) error {
	if v.Player == "" {
		return fmt.Errorf("video.player is required")
	}
	if v.PollInterval <= 0 {
		return fmt.Errorf("video.poll_interval must be positive, got %s", v.PollInterval)
	}
	if v.CrashGrace < 0 || v.StopTimeout < 0 {
		return fmt.Errorf("video.crash_grace and video.stop_timeout must not be negative")
	}
	return nil
}

// ValidateTracing checks the tracing section.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	switch t.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", t.Exporter)
	}
	if t.Enabled && t.Exporter == "otlp" && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// WriteDefaultConfig creates a config file at configPath with default
// settings and comments, creating the parent directory if needed.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
