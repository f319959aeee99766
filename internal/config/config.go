// Package config loads csvtv's YAML configuration and persisted settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Every field is optional in
// the YAML file; missing values keep their defaults.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Resolver ResolverConfig `yaml:"resolver"`
	Playback PlaybackConfig `yaml:"playback"`
	Pointer  PointerConfig  `yaml:"pointer"`
	Workers  int            `yaml:"workers"`
	Log      LogConfig      `yaml:"log"`
	Diag     DiagConfig     `yaml:"diag"`
}

// SourceConfig controls where the channel list comes from.
type SourceConfig struct {
	Locator string        `yaml:"locator"`
	Timeout time.Duration `yaml:"timeout"`
	Watch   bool          `yaml:"watch"`
}

// ResolverConfig controls URL probing and the resolution cache.
type ResolverConfig struct {
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
	CacheSize    int           `yaml:"cacheSize"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
	RateLimit    int           `yaml:"rateLimit"` // probes per second, 0 = unlimited
	UserAgent    string        `yaml:"userAgent"`
}

// PlaybackConfig holds buffer thresholds, the retry policy and the network
// settings handed to the media engine.
type PlaybackConfig struct {
	MinBuffer                      time.Duration `yaml:"minBuffer"`
	MaxBuffer                      time.Duration `yaml:"maxBuffer"`
	BufferForPlayback              time.Duration `yaml:"bufferForPlayback"`
	BufferForPlaybackAfterRebuffer time.Duration `yaml:"bufferForPlaybackAfterRebuffer"`

	MaxRetries   int           `yaml:"maxRetries"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	ExitDelay    time.Duration `yaml:"exitDelay"`
	FadeDuration time.Duration `yaml:"fadeDuration"`

	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	UserAgent      string        `yaml:"userAgent"`
	FFmpegPath     string        `yaml:"ffmpegPath"`
	FFprobePath    string        `yaml:"ffprobePath"`
}

// PointerConfig holds the D-pad pointer policies.
type PointerConfig struct {
	Step               int           `yaml:"step"`
	ScrollThreshold    int           `yaml:"scrollThreshold"`
	HideDelay          time.Duration `yaml:"hideDelay"`
	GeometryDebounce   time.Duration `yaml:"geometryDebounce"`
	HoverRetries       int           `yaml:"hoverRetries"`
	HoverRetryDelay    time.Duration `yaml:"hoverRetryDelay"`
	ContentHeightSlack int           `yaml:"contentHeightSlack"`
}

// LogConfig selects the log level and destination.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DiagConfig enables the diagnostics HTTP listener when Addr is set.
type DiagConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Timeout: 15 * time.Second,
			Watch:   true,
		},
		Resolver: ResolverConfig{
			ProbeTimeout: 10 * time.Second,
			CacheSize:    1024,
			UserAgent:    "csvtv",
		},
		Playback: PlaybackConfig{
			MinBuffer:                      60 * time.Second,
			MaxBuffer:                      120 * time.Second,
			BufferForPlayback:              5 * time.Second,
			BufferForPlaybackAfterRebuffer: 10 * time.Second,
			MaxRetries:                     3,
			RetryDelay:                     3 * time.Second,
			ExitDelay:                      2 * time.Second,
			FadeDuration:                   200 * time.Millisecond,
			ConnectTimeout:                 10 * time.Second,
			ReadTimeout:                    10 * time.Second,
			UserAgent:                      "csvtv",
			FFmpegPath:                     "ffmpeg",
			FFprobePath:                    "ffprobe",
		},
		Pointer: PointerConfig{
			Step:               15,
			ScrollThreshold:    30,
			HideDelay:          3 * time.Second,
			GeometryDebounce:   time.Second,
			HoverRetries:       2,
			HoverRetryDelay:    50 * time.Millisecond,
			ContentHeightSlack: 500,
		},
		Workers: 8,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CSVTV_SOURCE"); v != "" {
		c.Source.Locator = v
	}
	if v := os.Getenv("CSVTV_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CSVTV_DIAG_ADDR"); v != "" {
		c.Diag.Addr = v
	}
}

// Validate checks invariants the components rely on.
func (c Config) Validate() error {
	p := c.Playback
	if p.MinBuffer < p.BufferForPlaybackAfterRebuffer {
		return fmt.Errorf("playback.minBuffer (%s) must not be below playback.bufferForPlaybackAfterRebuffer (%s)",
			p.MinBuffer, p.BufferForPlaybackAfterRebuffer)
	}
	if p.MaxBuffer < p.MinBuffer {
		return fmt.Errorf("playback.maxBuffer (%s) must not be below playback.minBuffer (%s)", p.MaxBuffer, p.MinBuffer)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("playback.maxRetries must not be negative")
	}
	if c.Pointer.Step <= 0 {
		return fmt.Errorf("pointer.step must be positive")
	}
	if c.Pointer.ScrollThreshold < 0 {
		return fmt.Errorf("pointer.scrollThreshold must not be negative")
	}
	if c.Resolver.CacheSize <= 0 {
		return fmt.Errorf("resolver.cacheSize must be positive")
	}
	if c.Resolver.RateLimit < 0 {
		return fmt.Errorf("resolver.rateLimit must not be negative")
	}
	return nil
}

// DefaultDir returns the per-user directory holding config.yaml and settings.yaml.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "csvtv"), nil
}
