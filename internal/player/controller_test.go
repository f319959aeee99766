package player

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivier-w/csvtv/internal/loop"
)

type fakeEngine struct {
	sources    []Source
	emits      []func(Event)
	play       []bool
	stops      int
	position   time.Duration
	prepareErr error
}

func (e *fakeEngine) Prepare(src Source, emit func(Event)) error {
	if e.prepareErr != nil {
		return e.prepareErr
	}
	e.sources = append(e.sources, src)
	e.emits = append(e.emits, emit)
	return nil
}

func (e *fakeEngine) SetPlayWhenReady(play bool) { e.play = append(e.play, play) }
func (e *fakeEngine) Position() time.Duration    { return e.position }
func (e *fakeEngine) Stop()                      { e.stops++ }

func (e *fakeEngine) emit(ev Event) { e.emits[len(e.emits)-1](ev) }

func (e *fakeEngine) lastPlay() bool { return e.play[len(e.play)-1] }

type fakeView struct {
	loading  bool
	surface  bool
	errText  string
	controls bool
	fades    []time.Duration
}

func (v *fakeView) SetLoadingVisible(b bool)  { v.loading = b }
func (v *fakeView) SetSurfaceVisible(b bool)  { v.surface = b }
func (v *fakeView) SetErrorText(s string)     { v.errText = s }
func (v *fakeView) SetControlsEnabled(b bool) { v.controls = b }
func (v *fakeView) CrossFade(d time.Duration) {
	v.fades = append(v.fades, d)
	v.loading = false
	v.surface = true
}

type fakeNav struct{ backs int }

func (n *fakeNav) Back() { n.backs++ }

type harness struct {
	sched *loop.Manual
	eng   *fakeEngine
	view  *fakeView
	nav   *fakeNav
	ctl   *Controller
	notes []Notification
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched: loop.NewManual(),
		eng:   &fakeEngine{},
		view:  &fakeView{},
		nav:   &fakeNav{},
	}
	ctl, err := NewController(Options{
		Engine:    h.eng,
		View:      h.view,
		Navigator: h.nav,
		Scheduler: h.sched,
	})
	require.NoError(t, err)
	ctl.Subscribe(func(n Notification) { h.notes = append(h.notes, n) })
	h.ctl = ctl
	return h
}

func TestPlayShowsLoadingAndPreparesPaused(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/live/index.m3u8", ""))

	assert.True(t, h.view.loading)
	assert.False(t, h.view.surface)
	assert.False(t, h.view.controls)
	require.Len(t, h.eng.sources, 1)
	src := h.eng.sources[0]
	assert.Equal(t, TransportHLS, src.Transport)
	assert.Equal(t, DefaultBufferConfig(), src.Buffer)
	assert.Zero(t, src.Start)
	assert.False(t, h.eng.lastPlay())
	assert.Equal(t, StateIdle, h.ctl.State())
}

func TestReadyCrossFadesAndStartsOutput(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/movie.mp4", "video/mp4"))

	h.eng.emit(StateChanged{State: StateBuffering})
	h.sched.Drain()
	assert.Equal(t, StateBuffering, h.ctl.State())
	assert.True(t, h.view.loading)

	h.eng.emit(StateChanged{State: StateReady})
	h.eng.emit(RenderedFirstFrame{Position: 0})
	h.sched.Drain()
	assert.Equal(t, StateReady, h.ctl.State())
	assert.Equal(t, []time.Duration{defaultFadeDuration}, h.view.fades)
	assert.False(t, h.view.loading)
	assert.True(t, h.view.surface)
	assert.True(t, h.view.controls)
	assert.True(t, h.eng.lastPlay())

	h.eng.emit(StateChanged{State: StateEnded})
	h.sched.Drain()
	assert.Equal(t, StateEnded, h.ctl.State())
	assert.True(t, h.view.surface)
	assert.False(t, h.view.loading)

	h.eng.emit(StateChanged{State: StateIdle})
	h.sched.Drain()
	assert.False(t, h.view.surface)
	assert.False(t, h.view.loading)
}

func TestEventsAreAppliedOnlyOnTheLoop(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/movie.mp4", ""))

	h.eng.emit(StateChanged{State: StateReady})
	assert.Equal(t, StateIdle, h.ctl.State())
	assert.Equal(t, 1, h.sched.Queued())
	h.sched.Drain()
	assert.Equal(t, StateReady, h.ctl.State())
}

func TestErrorsRetryThenFailAndNavigateBack(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("rtmp://live.example.com/app/stream", ""))
	boom := errors.New("connection reset")

	for attempt := 1; attempt <= 3; attempt++ {
		h.eng.emit(PlaybackError{Err: boom})
		h.sched.Drain()

		s, ok := h.ctl.Session()
		require.True(t, ok)
		assert.Equal(t, attempt, s.RetryCount)
		assert.Equal(t, []string{
			"Playback error, retrying (1/3)...",
			"Playback error, retrying (2/3)...",
			"Playback error, retrying (3/3)...",
		}[attempt-1], h.view.errText)
		assert.False(t, h.view.loading)
		assert.False(t, h.view.surface)

		h.sched.Advance(defaultRetryDelay - time.Millisecond)
		assert.Len(t, h.eng.sources, attempt, "retry fired early")
		h.sched.Advance(time.Millisecond)
		require.Len(t, h.eng.sources, attempt+1)
		assert.True(t, h.eng.lastPlay(), "retry should prepare with playWhenReady")
	}

	h.eng.emit(PlaybackError{Err: boom})
	h.sched.Drain()
	assert.Equal(t, StateFailed, h.ctl.State())
	assert.Equal(t, "Failed to play stream after 3 attempts: connection reset", h.view.errText)
	assert.Len(t, h.eng.sources, 4)

	h.sched.Advance(defaultExitDelay - time.Millisecond)
	assert.Zero(t, h.nav.backs)
	h.sched.Advance(time.Millisecond)
	assert.Equal(t, 1, h.nav.backs)

	last := h.notes[len(h.notes)-1]
	assert.Equal(t, StateFailed, last.State)
	assert.ErrorIs(t, last.Err, boom)
}

func TestOnlyOneRetryIsPending(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/live.m3u8", ""))

	h.eng.emit(PlaybackError{Err: errors.New("a")})
	h.eng.emit(PlaybackError{Err: errors.New("b")})
	h.sched.Drain()

	s, _ := h.ctl.Session()
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, 1, h.sched.Pending())
}

func TestRetryResumesFromSavedPosition(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/movie.mp4", ""))
	h.eng.emit(StateChanged{State: StateReady})
	h.eng.emit(RenderedFirstFrame{Position: 0})
	h.sched.Drain()

	h.eng.position = 42 * time.Second
	h.eng.emit(PlaybackError{Err: errors.New("eof")})
	h.sched.Advance(defaultRetryDelay)

	require.Len(t, h.eng.sources, 2)
	assert.Equal(t, 42*time.Second, h.eng.sources[1].Start)
	assert.GreaterOrEqual(t, h.eng.stops, 1)
}

func TestRetriesAccumulateAcrossReady(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/live.m3u8", ""))

	for i := 0; i < 10 && h.ctl.State() != StateFailed; i++ {
		h.eng.emit(StateChanged{State: StateReady})
		h.sched.Drain()
		h.eng.emit(PlaybackError{Err: errors.New("stream dropped")})
		h.sched.Advance(defaultRetryDelay)
	}

	assert.Equal(t, StateFailed, h.ctl.State())
	s, _ := h.ctl.Session()
	assert.Equal(t, defaultMaxRetries, s.RetryCount)
	assert.Len(t, h.eng.sources, defaultMaxRetries+1)

	h.sched.Advance(defaultExitDelay)
	assert.Equal(t, 1, h.nav.backs)
	assert.Zero(t, h.sched.Pending())
}

func TestReleaseCancelsRetryAndDropsEvents(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/live.m3u8", ""))

	h.eng.emit(PlaybackError{Err: errors.New("a")})
	h.sched.Drain()
	emit := h.eng.emits[0]

	h.ctl.Release()
	h.ctl.Release()
	assert.Equal(t, 1, h.eng.stops)
	assert.Zero(t, h.sched.Pending())

	emit(StateChanged{State: StateReady})
	h.sched.Advance(10 * time.Second)
	assert.Len(t, h.eng.sources, 1)
	assert.Equal(t, StateIdle, h.ctl.State())
	assert.Zero(t, h.nav.backs)

	assert.ErrorIs(t, h.ctl.Play("https://cdn.example.com/other.m3u8", ""), ErrPlayback)
}

func TestStaleEventsFromReplacedSessionAreIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/a.m3u8", ""))
	stale := h.eng.emits[0]
	require.NoError(t, h.ctl.Play("https://cdn.example.com/b.m3u8", ""))

	stale(StateChanged{State: StateReady})
	stale(PlaybackError{Err: errors.New("old")})
	h.sched.Drain()

	s, ok := h.ctl.Session()
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/b.m3u8", s.MediaURL)
	assert.Equal(t, StateIdle, s.State)
	assert.Zero(t, s.RetryCount)
	assert.Zero(t, h.sched.Pending())
}

func TestPrepareFailureSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	h.eng.prepareErr = errors.New("ffmpeg not found")

	err := h.ctl.Play("https://cdn.example.com/a.m3u8", "")
	require.ErrorIs(t, err, ErrPlayback)
	h.sched.Drain()

	assert.Equal(t, "Playback error, retrying (1/3)...", h.view.errText)
	assert.Equal(t, 1, h.sched.Pending())
}

func TestPauseKeepsOutputStoppedAcrossReady(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Play("https://cdn.example.com/movie.mp4", ""))
	h.eng.position = 5 * time.Second

	h.ctl.TogglePause()
	assert.True(t, h.ctl.Paused())
	assert.False(t, h.eng.lastPlay())
	s, _ := h.ctl.Session()
	assert.Equal(t, 5*time.Second, s.Position)

	h.eng.emit(StateChanged{State: StateReady})
	h.sched.Drain()
	assert.False(t, h.eng.lastPlay())

	h.ctl.TogglePause()
	assert.True(t, h.eng.lastPlay())
}

func TestNewControllerValidatesOptions(t *testing.T) {
	_, err := NewController(Options{})
	assert.Error(t, err)

	_, err = NewController(Options{
		Engine:    &fakeEngine{},
		View:      &fakeView{},
		Scheduler: loop.NewManual(),
		Buffer: BufferConfig{
			MinBuffer:                      time.Second,
			MaxBuffer:                      2 * time.Second,
			BufferForPlayback:              5 * time.Second,
			BufferForPlaybackAfterRebuffer: time.Second,
		},
	})
	assert.Error(t, err)
}
