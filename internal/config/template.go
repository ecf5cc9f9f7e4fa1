package config

// DefaultConfigTemplate returns the commented YAML written by
// `displayboard config init`. Its values match Defaults().
func DefaultConfigTemplate() string {
	return `# displayboard configuration
#
# Durations use Go syntax: 500ms, 3s, 2m.
# Every key can be overridden by an environment variable with the
# DISPLAYBOARD_ prefix, e.g. DISPLAYBOARD_VIDEO_DISABLED=true.

# Root of the exhibit assets. sounds_dir and video_dir default to
# <assets_dir>/sounds and <assets_dir>/video.
assets_dir: assets
# sounds_dir: /opt/displayboard/assets/sounds
# video_dir: /opt/displayboard/assets/video

# Lock file preventing two controllers from driving the same hardware.
# Default: <tmp>/displayboard.lock
# lock_file: /run/displayboard.lock

# Random seed. 0 seeds from the clock; any other value replays a run.
seed: 0

log:
  level: warn   # debug, info, warn, error
  file: ""      # empty logs to stderr

# Behaviors to run. Command-line flags (--no-sounds, --mister, ...) override these.
features:
  sounds: true
  video: true
  lighting: true
  bell: true
  mister: false

audio:
  backend: gst          # gst (requires a -tags gst build) or null
  channels: 16
  default_volume: 0.75
  cache_ttl: 1h         # how long decoded sounds stay cached after last use

# Ambient tracks cross-fade forever on one channel.
ambient:
  channel: 0
  fade: 3s
  volume: 0.75

# One random chain rattle per interval.
chains:
  category: chains
  interval:
    min: 15s
    max: 2m
  volume_min: 0
  volume_max: 0.5

# One random voice per interval.
voices:
  category: skaven
  interval:
    min: 20s
    max: 40s
  volume_min: 0
  volume_max: 1

screams:
  category: screams
  interval:
    min: 2m
    max: 2m
  volume_min: 0.75
  volume_max: 0.75

# A random subset of rat sounds on dedicated channels with normalized volumes.
rats:
  channels: [1, 2, 3, 4]
  fade: 500ms
  interval:
    min: 2s
    max: 6s
  base_volume: 0.75

lighting:
  port: ""              # SPI port; empty picks the first
  num_leds: 30
  brightness: 0.4
  update_interval: 50ms
  breathe:
    frequency: 0.2
    min_brightness: 0.3
    range: 0.6
  flicker:
    probability: 0.05
    red: [0, 30]
    green: [50, 255]
    blue: [0, 20]
  base_green: 50

bell:
  # sound: assets/sounds/bell/screamingBell.mp3
  channel: 5
  interval:
    min: 10s
    max: 40s
  trigger_probability: 0.8
  start_offset_min: 0s
  start_offset_max: 1m30s
  volume_min: 0.3
  volume_max: 1
  swings_min: 1
  swings_max: 5
  position_min: -1
  position_max: 1
  pause:
    min: 300ms
    max: 600ms
  servo:
    pin: GPIO18
    min_pulse: 500us
    max_pulse: 2500us

mister:
  pin: GPIO22
  interval:
    min: 5m
    max: 15m
  duration: 5s

video:
  disabled: false       # VIDEO_DISABLED=true also disables playback
  player: mpv
  args: ["--fullscreen", "--loop", "--no-terminal"]
  # file: assets/video/main_loop.mp4
  crash_grace: 100ms
  poll_interval: 100ms
  stop_timeout: 5s

shutdown:
  join_timeout: 5s      # per task
  idle_cycle: 1s
  ambient_fade: 2s
  rats_fade: 1s
  fade_wait: 2s

tracing:
  enabled: false
  exporter: file        # none, file, stdout, otlp
  file_path: ""
  otlp_endpoint: localhost:4317
  sample_rate: 1
  service_name: displayboard

# Feature flags:
#   startup-scream  first scream plays at startup (default true)
#   shutdown-fade   fade ambient and rats out on shutdown (default true)
#   watch-sounds    rescan sounds when files change (default false)
# flags:
#   watch-sounds: true
`
}
