package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjrosen/displayboard/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DISPLAYBOARD"

// SearchPaths returns the config file locations tried in order when no
// explicit path is given.
func SearchPaths() []string {
	paths := []string{"displayboard.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "displayboard", "config.yaml"))
	}
	return append(paths, "/opt/displayboard/config.yaml")
}

// Load builds the effective configuration: the default template, then the
// config file (explicit, or the first of SearchPaths that exists), then
// environment variables. It returns the config file used, if any.
func Load(explicit string) (Config, string, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(DefaultConfigTemplate())); err != nil {
		return Config{}, "", fmt.Errorf("reading default config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("video.disabled", EnvPrefix+"_VIDEO_DISABLED", "VIDEO_DISABLED"); err != nil {
		return Config{}, "", err
	}

	path := explicit
	if path == "" {
		path = findConfig(SearchPaths())
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("reading config %s: %w", path, err)
		}
		log.Debug(log.CatConfig, "Loaded config file", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	cfg.Resolve()
	return cfg, path, nil
}

func findConfig(candidates []string) string {
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn(log.CatConfig, "Skipping unreadable config", "path", p, "error", err)
		}
	}
	return ""
}
