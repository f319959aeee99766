package source

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/metrics"
)

// Level records which step of the fallback chain produced a Result.
type Level int

const (
	LevelPrimary Level = iota
	LevelBundled
	LevelSettingsOnly
)

func (l Level) String() string {
	switch l {
	case LevelPrimary:
		return "primary"
	case LevelBundled:
		return "bundled"
	default:
		return "settings_only"
	}
}

// Result is what the browse screen renders.
type Result struct {
	Locator  string // locator that produced Channels, empty for settings-only
	Channels []media.Channel
	Rows     []Row
	Level    Level
	Err      error // last failure seen while falling back
}

// LocatorStore reads the persisted source locator.
type LocatorStore interface {
	SourceLocator() (string, bool, error)
}

// Loader applies the load fallback chain: configured locator, then the
// bundled default, then a settings-only presentation.
type Loader struct {
	fetcher  *Fetcher
	store    LocatorStore
	override string
	logger   zerolog.Logger

	mu   sync.Mutex
	last Result
	done bool
}

// NewLoader creates a Loader. A non-empty override takes precedence over
// the stored locator.
func NewLoader(f *Fetcher, store LocatorStore, override string) *Loader {
	return &Loader{
		fetcher:  f,
		store:    store,
		override: override,
		logger:   log.WithComponent("loader"),
	}
}

// Locator returns the locator Load will try first.
func (l *Loader) Locator() string {
	if l.override != "" {
		return l.override
	}
	if l.store == nil {
		return DefaultLocator
	}
	locator, ok, err := l.store.SourceLocator()
	if err != nil {
		l.logger.Warn().Err(err).Msg("reading stored locator failed")
		return DefaultLocator
	}
	if !ok || locator == "" {
		return DefaultLocator
	}
	return locator
}

// Load never fails; errors are reported in Result.Err.
func (l *Loader) Load(ctx context.Context) Result {
	res := l.load(ctx)
	l.mu.Lock()
	l.last, l.done = res, true
	l.mu.Unlock()
	return res
}

// Last returns the most recent Load result and whether Load has completed.
func (l *Loader) Last() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.done
}

func (l *Loader) load(ctx context.Context) Result {
	primary := l.Locator()

	channels, err := l.fetcher.Fetch(ctx, primary)
	if err == nil {
		return l.result(primary, channels, LevelPrimary, nil)
	}
	l.logger.Error().Err(err).Str(log.FieldLocator, log.SafeURL(primary)).Msg("loading channel list failed")

	if primary != DefaultLocator {
		l.logger.Info().Str(log.FieldLocator, DefaultLocator).Msg("falling back to bundled channel list")
		channels, ferr := l.fetcher.Fetch(ctx, DefaultLocator)
		if ferr == nil {
			return l.result(DefaultLocator, channels, LevelBundled, err)
		}
		err = ferr
		l.logger.Error().Err(err).Msg("loading bundled channel list failed")
	}

	metrics.ChannelsLoaded.Set(0)
	return Result{Rows: SettingsOnlyRows(), Level: LevelSettingsOnly, Err: err}
}

func (l *Loader) result(locator string, channels []media.Channel, level Level, err error) Result {
	metrics.ChannelsLoaded.Set(float64(len(channels)))
	l.logger.Info().
		Str(log.FieldLocator, log.SafeURL(locator)).
		Int(log.FieldCount, len(channels)).
		Stringer("level", level).
		Msg("channel list loaded")
	return Result{
		Locator:  locator,
		Channels: channels,
		Rows:     Rows(channels),
		Level:    level,
		Err:      err,
	}
}
