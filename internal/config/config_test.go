package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(DefaultConfigTemplate())))

	var got Config
	require.NoError(t, v.Unmarshal(&got))
	require.Equal(t, Defaults(), got)
}

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())
}

func TestResolve_DerivesPaths(t *testing.T) {
	cfg := Defaults()
	cfg.AssetsDir = "/srv/exhibit"
	cfg.Resolve()

	require.Equal(t, "/srv/exhibit/sounds", cfg.SoundsDir)
	require.Equal(t, "/srv/exhibit/video/main_loop.mp4", cfg.Video.File)
	require.Equal(t, "/srv/exhibit/sounds/bell/screamingBell.mp3", cfg.Bell.Sound)
	require.NotEmpty(t, cfg.LockFile)
}

func TestResolve_KeepsExplicitPaths(t *testing.T) {
	cfg := Defaults()
	cfg.SoundsDir = "/media/sounds"
	cfg.Video.File = "/media/loop.mkv"
	cfg.Resolve()

	require.Equal(t, "/media/sounds", cfg.SoundsDir)
	require.Equal(t, "/media/loop.mkv", cfg.Video.File)
	require.Equal(t, "/media/sounds/bell/screamingBell.mp3", cfg.Bell.Sound)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "inverted chains interval", mutate: func(c *Config) { c.Chains.Interval.Min = time.Hour }, wantErr: "chains.interval"},
		{name: "rats channel out of range", mutate: func(c *Config) { c.Rats.Channels = []int{1, 99} }, wantErr: "channel 99"},
		{name: "duplicate rats channel", mutate: func(c *Config) { c.Rats.Channels = []int{1, 1} }, wantErr: "listed twice"},
		{name: "bell probability", mutate: func(c *Config) { c.Bell.TriggerProbability = 1.5 }, wantErr: "trigger_probability"},
		{name: "bell position", mutate: func(c *Config) { c.Bell.PositionMax = 2 }, wantErr: "position range"},
		{name: "voices volume", mutate: func(c *Config) { c.Voices.VolumeMax = 1.2 }, wantErr: "voices volume"},
		{name: "no leds", mutate: func(c *Config) { c.Lighting.NumLEDs = 0 }, wantErr: "num_leds"},
		{name: "inverted flicker", mutate: func(c *Config) { c.Lighting.Flicker.Red = [2]uint8{40, 10} }, wantErr: "flicker.red"},
		{name: "no player", mutate: func(c *Config) { c.Video.Player = "" }, wantErr: "video.player"},
		{name: "bad exporter", mutate: func(c *Config) { c.Tracing.Exporter = "jaeger" }, wantErr: "tracing.exporter"},
		{name: "rats on bell channel", mutate: func(c *Config) { c.Rats.Channels = []int{1, 5} }, wantErr: "channel 5 already used by bell.channel"},
		{name: "bell on ambient channel", mutate: func(c *Config) { c.Bell.Channel = 0 }, wantErr: "channel 0 already used by ambient.channel"},
		{name: "rats on ambient channel", mutate: func(c *Config) { c.Rats.Channels = []int{0, 2} }, wantErr: "rats.channels: channel 0 already used"},
		{name: "zero join timeout", mutate: func(c *Config) { c.Shutdown.JoinTimeout = 0 }, wantErr: "join_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exhibit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets_dir: /srv/exhibit
rats:
  interval:
    min: 1s
    max: 3s
flags:
  watch-sounds: true
`), 0o600))

	cfg, used, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, "/srv/exhibit/sounds", cfg.SoundsDir)
	require.Equal(t, time.Second, cfg.Rats.Interval.Min)
	require.Equal(t, 3*time.Second, cfg.Rats.Interval.Max)
	require.Equal(t, []int{1, 2, 3, 4}, cfg.Rats.Channels)
	require.Equal(t, 0.8, cfg.Bell.TriggerProbability)
	require.True(t, cfg.Flags["watch-sounds"])
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DISPLAYBOARD_BELL_CHANNEL", "7")
	t.Setenv("VIDEO_DISABLED", "true")

	_, _, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err, "explicit missing file is an error")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("{}\n"), 0o600))
	cfg, _, err := Load(empty)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Bell.Channel)
	require.True(t, cfg.Video.Disabled)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestFindConfig(t *testing.T) {
	dir := t.TempDir()
	second := filepath.Join(dir, "second.yaml")
	require.NoError(t, os.WriteFile(second, nil, 0o600))

	require.Equal(t, second, findConfig([]string{filepath.Join(dir, "first.yaml"), dir, second}))
	require.Empty(t, findConfig([]string{filepath.Join(dir, "nope.yaml")}))
}

func TestRender_RoundTrips(t *testing.T) {
	want := Defaults()
	want.Bell.Channel = 6
	want.Resolve()

	out, err := Render(want)
	require.NoError(t, err)
	require.Contains(t, string(out), "update_interval: 50ms")
	require.Contains(t, string(out), "trigger_probability: 0.8")

	path := filepath.Join(t.TempDir(), "rendered.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o600))
	got, _, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
