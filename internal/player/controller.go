package player

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/loop"
	"github.com/olivier-w/csvtv/internal/metrics"
)

// Engine decodes and outputs one media source at a time. Events may be
// emitted from any goroutine.
type Engine interface {
	Prepare(src Source, emit func(Event)) error
	SetPlayWhenReady(play bool)
	Position() time.Duration
	// Stop releases the current source. Events it emits afterwards are ignored.
	Stop()
}

// View is the playback screen driven by the controller. Calls happen on
// the UI loop.
type View interface {
	SetLoadingVisible(visible bool)
	SetSurfaceVisible(visible bool)
	// SetErrorText shows text over the surface; empty text hides it.
	SetErrorText(text string)
	SetControlsEnabled(enabled bool)
	// CrossFade fades the loading indicator out and the surface in.
	CrossFade(d time.Duration)
}

// Navigator leaves the playback screen.
type Navigator interface {
	Back()
}

// Options configures a Controller. Zero durations and counts select the
// defaults.
type Options struct {
	Engine    Engine
	View      View
	Navigator Navigator
	Scheduler loop.Scheduler

	Buffer       BufferConfig
	Network      Network
	MaxRetries   int
	RetryDelay   time.Duration
	ExitDelay    time.Duration
	FadeDuration time.Duration
}

const (
	defaultMaxRetries   = 3
	defaultRetryDelay   = 3 * time.Second
	defaultExitDelay    = 2 * time.Second
	defaultFadeDuration = 200 * time.Millisecond
)

// Session is the state of the stream being played.
type Session struct {
	MediaURL   string
	Transport  Transport
	Buffer     BufferConfig
	RetryCount int
	State      State
	Position   time.Duration
}

// Controller owns the playback session and turns engine events into view
// updates, retries and navigation. All methods must be called on the UI
// loop.
type Controller struct {
	engine Engine
	view   View
	nav    Navigator
	sched  loop.Scheduler
	logger zerolog.Logger

	buffer       BufferConfig
	network      Network
	maxRetries   int
	retryDelay   time.Duration
	exitDelay    time.Duration
	fadeDuration time.Duration

	session  *Session
	gen      uint64
	paused   bool
	released bool

	retryTimer loop.Timer
	exitTimer  loop.Timer

	subscribers []func(Notification)
}

// NewController validates opts and returns an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Engine == nil || opts.View == nil || opts.Scheduler == nil {
		return nil, errors.New("player: engine, view and scheduler are required")
	}
	if opts.Buffer == (BufferConfig{}) {
		opts.Buffer = DefaultBufferConfig()
	}
	if err := opts.Buffer.Validate(); err != nil {
		return nil, fmt.Errorf("invalid buffer config: %w", err)
	}
	if opts.Network == (Network{}) {
		opts.Network = DefaultNetwork()
	}
	if opts.MaxRetries < 0 {
		return nil, errors.New("player: max retries must not be negative")
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.ExitDelay <= 0 {
		opts.ExitDelay = defaultExitDelay
	}
	if opts.FadeDuration <= 0 {
		opts.FadeDuration = defaultFadeDuration
	}
	return &Controller{
		engine:       opts.Engine,
		view:         opts.View,
		nav:          opts.Navigator,
		sched:        opts.Scheduler,
		logger:       log.WithComponent("player"),
		buffer:       opts.Buffer,
		network:      opts.Network,
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		exitDelay:    opts.ExitDelay,
		fadeDuration: opts.FadeDuration,
	}, nil
}

// Subscribe registers fn for notifications.
func (c *Controller) Subscribe(fn func(Notification)) {
	c.subscribers = append(c.subscribers, fn)
}

// Play starts mediaURL, replacing any current session. contentType is the
// resolver's classification and may be empty.
func (c *Controller) Play(mediaURL, contentType string) error {
	if c.released {
		return fmt.Errorf("%w: controller released", ErrPlayback)
	}
	c.stopSession()

	c.session = &Session{
		MediaURL:  mediaURL,
		Transport: SelectTransport(mediaURL, contentType),
		Buffer:    c.buffer,
		State:     StateIdle,
	}
	c.paused = false

	c.view.SetLoadingVisible(true)
	c.view.SetSurfaceVisible(false)
	c.view.SetErrorText("")
	c.view.SetControlsEnabled(false)

	c.logger.Info().
		Str(log.FieldURL, log.SafeURL(mediaURL)).
		Stringer("transport", c.session.Transport).
		Msg("starting playback")
	return c.prepare(false)
}

// prepare opens the session's source at its saved position. Engine events
// are marshalled to the UI loop and dropped once the session is replaced.
func (c *Controller) prepare(playWhenReady bool) error {
	c.gen++
	gen := c.gen
	s := c.session
	src := Source{
		URL:       s.MediaURL,
		Transport: s.Transport,
		Buffer:    s.Buffer,
		Network:   c.network,
		Start:     s.Position,
	}
	emit := func(ev Event) {
		c.sched.Post(func() {
			if c.released || gen != c.gen {
				return
			}
			c.Apply(ev)
		})
	}
	if err := c.engine.Prepare(src, emit); err != nil {
		err = fmt.Errorf("%w: %v", ErrPlayback, err)
		emit(PlaybackError{Err: err})
		return err
	}
	c.engine.SetPlayWhenReady(playWhenReady && !c.paused)
	return nil
}

// Apply is the transition function. It runs on the UI loop.
func (c *Controller) Apply(ev Event) {
	if c.released || c.session == nil {
		return
	}
	s := c.session
	switch ev := ev.(type) {
	case StateChanged:
		if s.State == StateFailed {
			return
		}
		c.setState(ev.State)
		switch ev.State {
		case StateBuffering:
			c.view.SetLoadingVisible(true)
			c.view.SetSurfaceVisible(false)
			c.view.SetErrorText("")
			c.view.SetControlsEnabled(false)
		case StateReady:
			c.view.CrossFade(c.fadeDuration)
			c.view.SetErrorText("")
			c.view.SetControlsEnabled(true)
			if !c.paused {
				c.engine.SetPlayWhenReady(true)
			}
		case StateEnded:
			c.view.SetLoadingVisible(false)
			c.view.SetSurfaceVisible(true)
			c.view.SetControlsEnabled(true)
		case StateIdle:
			c.view.SetLoadingVisible(false)
			c.view.SetSurfaceVisible(false)
			c.view.SetControlsEnabled(true)
		}
		c.notify(Notification{State: s.State, Attempt: s.RetryCount})

	case PlaybackError:
		c.onError(ev.Err)

	case RenderedFirstFrame:
		s.Position = ev.Position
		c.logger.Debug().Dur(log.FieldPosition, ev.Position).Msg("first frame rendered")
	}
}

func (c *Controller) onError(err error) {
	s := c.session
	if s.State == StateFailed {
		return
	}
	if err == nil {
		err = ErrPlayback
	}
	c.view.SetLoadingVisible(false)
	c.view.SetSurfaceVisible(false)

	if c.retryTimer != nil {
		// A retry is already scheduled for an earlier failure.
		return
	}

	if s.RetryCount < c.maxRetries {
		if pos := c.engine.Position(); pos > s.Position {
			s.Position = pos
		}
		s.RetryCount++
		metrics.PlaybackRetries.Inc()
		msg := fmt.Sprintf("Playback error, retrying (%d/%d)...", s.RetryCount, c.maxRetries)
		c.view.SetErrorText(msg)
		c.logger.Warn().Err(err).Int(log.FieldAttempt, s.RetryCount).Msg("playback error, retrying")
		c.notify(Notification{State: s.State, Attempt: s.RetryCount, Message: msg, Err: err})

		gen := c.gen
		c.retryTimer = c.sched.After(c.retryDelay, func() {
			c.retryTimer = nil
			if c.released || gen != c.gen {
				return
			}
			c.engine.Stop()
			_ = c.prepare(true)
		})
		return
	}

	c.setState(StateFailed)
	msg := fmt.Sprintf("Failed to play stream after %d attempts: %s", c.maxRetries, errorMessage(err))
	c.view.SetErrorText(msg)
	c.view.SetControlsEnabled(true)
	c.logger.Error().Err(err).Str(log.FieldURL, log.SafeURL(s.MediaURL)).Msg("playback failed")
	c.notify(Notification{State: StateFailed, Attempt: s.RetryCount, Message: msg, Err: err})

	c.exitTimer = c.sched.After(c.exitDelay, func() {
		c.exitTimer = nil
		if c.released || c.nav == nil {
			return
		}
		c.nav.Back()
	})
}

// errorMessage strips the sentinel prefix added by prepare.
func errorMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrPlayback.Error()+": ")
}

func (c *Controller) setState(next State) {
	s := c.session
	if s.State == next {
		return
	}
	c.logger.Debug().
		Stringer(log.FieldOldState, s.State).
		Stringer(log.FieldNewState, next).
		Msg("playback state changed")
	s.State = next
	metrics.PlaybackStates.WithLabelValues(next.String()).Inc()
}

// Pause saves the position and stops output.
func (c *Controller) Pause() {
	if c.released || c.session == nil {
		return
	}
	c.paused = true
	c.session.Position = c.engine.Position()
	c.engine.SetPlayWhenReady(false)
}

// Resume restarts output after Pause.
func (c *Controller) Resume() {
	if c.released || c.session == nil {
		return
	}
	c.paused = false
	c.engine.SetPlayWhenReady(true)
}

// TogglePause switches between Pause and Resume.
func (c *Controller) TogglePause() {
	if c.paused {
		c.Resume()
	} else {
		c.Pause()
	}
}

// Paused reports whether output is paused by the user.
func (c *Controller) Paused() bool {
	return c.paused
}

// Release stops the engine and cancels pending retries. Further calls are
// no-ops.
func (c *Controller) Release() {
	if c.released {
		return
	}
	c.stopSession()
	c.released = true
	c.session = nil
}

func (c *Controller) stopSession() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.exitTimer != nil {
		c.exitTimer.Stop()
		c.exitTimer = nil
	}
	if c.session != nil {
		c.engine.Stop()
	}
	c.gen++
}

// State returns the current state, StateIdle when nothing is playing.
func (c *Controller) State() State {
	if c.session == nil {
		return StateIdle
	}
	return c.session.State
}

// Session returns a copy of the current session.
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Position returns the engine position of the current session.
func (c *Controller) Position() time.Duration {
	if c.session == nil || c.released {
		return 0
	}
	return c.engine.Position()
}

func (c *Controller) notify(n Notification) {
	for _, fn := range c.subscribers {
		fn(n)
	}
}
