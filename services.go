package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/benbjohnson/clock"

	"github.com/olivier-w/csvtv/internal/config"
	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/loop"
	"github.com/olivier-w/csvtv/internal/player"
	"github.com/olivier-w/csvtv/internal/resolve"
	"github.com/olivier-w/csvtv/internal/source"
	"github.com/olivier-w/csvtv/internal/worker"
)

// rootOptions are the persistent flags.
type rootOptions struct {
	configDir string
	logLevel  string
	logFile   string
	diagAddr  string
}

// services is the object graph shared by every command.
type services struct {
	cfg      config.Config
	settings *config.Settings
	fetcher  *source.Fetcher
	loader   *source.Loader
	setup    *source.Setup
	resolver *resolve.Resolver
	router   *resolve.Router
	pool     *worker.Pool
	loop     *loop.Loop

	logOut io.Closer
}

func newServices(opts *rootOptions, override string) (*services, error) {
	dir := opts.configDir
	if dir == "" {
		d, err := config.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(dir, "csvtv.log")
	}
	if opts.diagAddr != "" {
		cfg.Diag.Addr = opts.diagAddr
	}

	out, err := log.OpenFile(cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Output: out})

	if override == "" {
		override = cfg.Source.Locator
	}

	pool, err := worker.New(cfg.Workers)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	l := loop.New(clock.New())

	resolver, err := resolve.New(resolve.Options{
		ProbeTimeout: cfg.Resolver.ProbeTimeout,
		CacheSize:    cfg.Resolver.CacheSize,
		CacheTTL:     cfg.Resolver.CacheTTL,
		RateLimit:    cfg.Resolver.RateLimit,
		UserAgent:    cfg.Resolver.UserAgent,
		Runner:       pool,
		Poster:       l,
	})
	if err != nil {
		pool.Release()
		_ = out.Close()
		return nil, err
	}

	settings := config.NewSettings(filepath.Join(dir, "settings.yaml"))
	fetcher := source.NewFetcher(source.Options{
		Timeout:   cfg.Source.Timeout,
		UserAgent: cfg.Resolver.UserAgent,
	})

	logger := log.WithComponent("main")
	logger.Info().
		Str("config_dir", dir).
		Str("log_level", cfg.Log.Level).
		Int("workers", cfg.Workers).
		Msg("starting csvtv")

	return &services{
		cfg:      cfg,
		settings: settings,
		fetcher:  fetcher,
		loader:   source.NewLoader(fetcher, settings, override),
		setup:    source.NewSetup(fetcher, settings),
		resolver: resolver,
		router:   resolve.NewRouter(resolver),
		pool:     pool,
		loop:     l,
		logOut:   out,
	}, nil
}

// newEngine creates a media engine using the configured ffmpeg binaries.
func (s *services) newEngine(video bool) *player.FFmpegEngine {
	return player.NewFFmpegEngine(player.EngineOptions{
		FFmpegPath:   s.cfg.Playback.FFmpegPath,
		FFprobePath:  s.cfg.Playback.FFprobePath,
		ProbeTimeout: s.cfg.Resolver.ProbeTimeout,
		Video:        video,
	})
}

func (s *services) close() {
	s.loop.Close()
	s.resolver.Close()
	s.pool.Release()
	_ = s.logOut.Close()
}
