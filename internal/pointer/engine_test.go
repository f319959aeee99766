package pointer

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivier-w/csvtv/internal/loop"
)

type fakePage struct {
	scripts  []string
	respond  func(script string) (string, error)
	deferred []func()
	async    bool

	scrollX, scrollY int
	scrolls          [][2]int
	reported         int
	touches          []TouchEvent
	visible          bool
	history          int
	backs            int
}

func (p *fakePage) Evaluate(script string, done func(string, error)) {
	p.scripts = append(p.scripts, script)
	result, err := "null", error(nil)
	if p.respond != nil {
		result, err = p.respond(script)
	}
	if p.async {
		p.deferred = append(p.deferred, func() { done(result, err) })
		return
	}
	done(result, err)
}

func (p *fakePage) ScrollTo(x, y int) {
	p.scrollX, p.scrollY = x, y
	p.scrolls = append(p.scrolls, [2]int{x, y})
}

func (p *fakePage) ScrollOffset() (int, int)    { return p.scrollX, p.scrollY }
func (p *fakePage) ContentHeight() int          { return p.reported }
func (p *fakePage) DispatchTouch(ev TouchEvent) { p.touches = append(p.touches, ev) }
func (p *fakePage) SetVisible(v bool)           { p.visible = v }
func (p *fakePage) CanGoBack() bool             { return p.history > 0 }
func (p *fakePage) GoBack() {
	p.history--
	p.backs++
}

func (p *fakePage) count(marker string) int {
	n := 0
	for _, s := range p.scripts {
		if strings.Contains(s, marker) {
			n++
		}
	}
	return n
}

const (
	markGeometry = "maxScrollY"
	markElement  = "querySelectorAll(selectors[i])"
	markHover    = "'mouseover'"
	markClick    = "'mousedown'"
	markPause    = "videos[i].pause()"
	markToggle   = "no_video"
)

type fakeSurface struct {
	w, h        int
	orientation Orientation
	attached    FullscreenView
	calls       []string
	x, y        float64
	visible     bool
}

func (s *fakeSurface) Size() (int, int)        { return s.w, s.h }
func (s *fakeSurface) PointerSize() (int, int) { return 10, 10 }
func (s *fakeSurface) MovePointer(x, y float64) {
	s.x, s.y = x, y
	s.calls = append(s.calls, "move")
}
func (s *fakeSurface) SetPointerVisible(v bool) {
	s.visible = v
	if v {
		s.calls = append(s.calls, "show")
	} else {
		s.calls = append(s.calls, "hide")
	}
}
func (s *fakeSurface) Orientation() Orientation          { return s.orientation }
func (s *fakeSurface) SetOrientation(o Orientation)      { s.orientation = o }
func (s *fakeSurface) AttachFullscreen(v FullscreenView) { s.attached = v }
func (s *fakeSurface) DetachFullscreen(FullscreenView)   { s.attached = nil }

type fakeVideo struct{ exited int }

func (v *fakeVideo) Exited() { v.exited++ }

type fakeNav struct{ backs int }

func (n *fakeNav) Back() { n.backs++ }

type rig struct {
	sched   *loop.Manual
	page    *fakePage
	surface *fakeSurface
	nav     *fakeNav
	notes   []string
	engine  *Engine
}

// newRig builds an engine over a 200x100 view with the given measured
// content size, loads the page and settles it.
func newRig(t *testing.T, contentW, contentH int) *rig {
	t.Helper()
	r := &rig{
		sched:   loop.NewManual(),
		page:    &fakePage{reported: contentH, visible: true},
		surface: &fakeSurface{w: 200, h: 100, orientation: OrientationPortrait},
		nav:     &fakeNav{},
	}
	geometry := `{"width":` + strconv.Itoa(contentW) + `,"height":` + strconv.Itoa(contentH) + `}`
	r.page.respond = func(script string) (string, error) {
		switch {
		case strings.Contains(script, markGeometry):
			return geometry, nil
		case strings.Contains(script, markHover):
			return `"DIV|"`, nil
		}
		return "null", nil
	}
	e, err := New(Options{
		Page:      r.page,
		Surface:   r.surface,
		Scheduler: r.sched,
		Navigator: r.nav,
		Notify:    func(msg string) { r.notes = append(r.notes, msg) },
	})
	require.NoError(t, err)
	r.engine = e
	e.OnPageLoaded()
	r.sched.Drain()
	return r
}

func (r *rig) press(key Key, times int) {
	for i := 0; i < times; i++ {
		r.engine.OnKey(key, ActionDown)
		r.sched.Drain()
	}
}

func TestPageLoadCentersPointerAndMeasures(t *testing.T) {
	r := newRig(t, 200, 1000)
	s := r.engine.State()
	assert.Equal(t, 100.0, s.X)
	assert.Equal(t, 50.0, s.Y)
	assert.True(t, s.Visible)
	assert.Equal(t, 200, s.ContentWidth)
	assert.Equal(t, 1000, s.ContentHeight)
	assert.Equal(t, 1, r.page.count(markGeometry))
	assert.Equal(t, 1, r.page.count("MutationObserver"))
	assert.Equal(t, 1, r.page.count("translateZ"))
}

func TestMovingPastBottomEdgeScrollsAndClamps(t *testing.T) {
	r := newRig(t, 200, 1000)

	// The threshold line is 90-30 = 60, so the first step from 50 scrolls.
	r.press(KeyDown, 1)
	s := r.engine.State()
	require.Len(t, r.page.scrolls, 1)
	assert.Equal(t, [2]int{0, 15}, r.page.scrolls[0])
	assert.Equal(t, 60.0, s.Y)

	r.press(KeyDown, 4)
	s = r.engine.State()
	assert.Equal(t, 60.0, s.Y)
	assert.Equal(t, 75, s.ScrollY)
	assert.Len(t, r.page.scrolls, 5)
	assert.LessOrEqual(t, s.Y, 90.0)
}

func TestMovingPastEdgeWithoutScrollRoomClampsToBounds(t *testing.T) {
	r := newRig(t, 200, 100)

	r.press(KeyDown, 10)
	r.press(KeyRight, 20)
	s := r.engine.State()
	assert.Empty(t, r.page.scrolls)
	assert.Equal(t, 90.0, s.Y)
	assert.Equal(t, 190.0, s.X)

	r.press(KeyUp, 20)
	r.press(KeyLeft, 20)
	s = r.engine.State()
	assert.Empty(t, r.page.scrolls)
	assert.Zero(t, s.X)
	assert.Zero(t, s.Y)
}

func TestMovingPastLeftEdgeScrollsBackToOrigin(t *testing.T) {
	r := newRig(t, 600, 100)
	r.page.scrollX = 20

	r.press(KeyLeft, 5) // 100 -> 25 crosses the threshold on the fifth press
	s := r.engine.State()
	require.Len(t, r.page.scrolls, 1)
	assert.Equal(t, [2]int{5, 0}, r.page.scrolls[0])
	assert.Equal(t, 30.0, s.X)

	r.press(KeyLeft, 1)
	assert.Equal(t, [2]int{0, 0}, r.page.scrolls[1])

	r.press(KeyLeft, 3)
	assert.Len(t, r.page.scrolls, 2, "no scroll once at the left edge")
	assert.Zero(t, r.engine.State().X)
}

func TestMovingPastRightEdgeScrollsHorizontally(t *testing.T) {
	r := newRig(t, 230, 100)

	r.press(KeyRight, 5) // 100 -> 175 crosses 190-30 on the fifth press
	s := r.engine.State()
	require.Len(t, r.page.scrolls, 1)
	assert.Equal(t, [2]int{15, 0}, r.page.scrolls[0])
	assert.Equal(t, 160.0, s.X)

	r.press(KeyRight, 3)
	// Horizontal room is 230-200 = 30.
	assert.Equal(t, [2]int{30, 0}, r.page.scrolls[len(r.page.scrolls)-1])
	assert.Equal(t, 190.0, r.engine.State().X)
}

func TestPointerHidesAfterInactivityAndReappearsOnKey(t *testing.T) {
	r := newRig(t, 200, 100)
	r.press(KeyRight, 1)
	require.True(t, r.engine.State().HideTimerActive)

	r.sched.Advance(2999 * time.Millisecond)
	assert.True(t, r.engine.State().Visible)
	r.sched.Advance(time.Millisecond)
	assert.False(t, r.engine.State().Visible)
	assert.False(t, r.surface.visible)
	assert.False(t, r.engine.State().HideTimerActive)

	r.surface.calls = nil
	r.press(KeyDown, 1)
	assert.True(t, r.engine.State().Visible)
	require.GreaterOrEqual(t, len(r.surface.calls), 2)
	assert.Equal(t, []string{"show", "move"}, r.surface.calls[:2])
}

func TestEachKeyRestartsHideTimer(t *testing.T) {
	r := newRig(t, 200, 100)
	r.press(KeyRight, 1)
	r.sched.Advance(2 * time.Second)
	r.press(KeyLeft, 1)
	r.sched.Advance(2 * time.Second)
	assert.True(t, r.engine.State().Visible)
	r.sched.Advance(time.Second)
	assert.False(t, r.engine.State().Visible)
}

func TestHoverRetriesWhenNothingIsUnderPointer(t *testing.T) {
	r := newRig(t, 200, 100)
	base := r.page.respond
	r.page.respond = func(script string) (string, error) {
		if strings.Contains(script, markHover) {
			return `""`, nil
		}
		return base(script)
	}

	r.press(KeyRight, 1)
	assert.Equal(t, 1, r.page.count(markHover))
	r.sched.Advance(50 * time.Millisecond)
	assert.Equal(t, 2, r.page.count(markHover))
	r.sched.Advance(50 * time.Millisecond)
	assert.Equal(t, 3, r.page.count(markHover))
	r.sched.Advance(time.Second)
	assert.Equal(t, 3, r.page.count(markHover))
}

func TestHoverHitDoesNotRetry(t *testing.T) {
	r := newRig(t, 200, 100)
	r.press(KeyRight, 1)
	r.sched.Advance(time.Second)
	assert.Equal(t, 1, r.page.count(markHover))
	assert.Equal(t, 1, r.page.count(markElement))
}

func TestScrollSnapsPointerToElement(t *testing.T) {
	r := newRig(t, 200, 1000)
	base := r.page.respond
	r.page.respond = func(script string) (string, error) {
		if strings.Contains(script, markElement) {
			return `{"tag":"A","className":"card","top":95,"centerX":40}`, nil
		}
		return base(script)
	}

	r.press(KeyRight, 1) // no scroll, no snap
	assert.Equal(t, 115.0, r.engine.State().X)

	r.press(KeyDown, 1) // scrolls to 15, snaps to top 95 - 15 = 80
	s := r.engine.State()
	assert.Equal(t, 40.0, s.X)
	assert.Equal(t, 80.0, s.Y)
	assert.Equal(t, 40.0, r.surface.x)
}

func TestSelectClicksAndTouchesAtPointer(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.page.scrollY = 40

	r.press(KeyEnter, 1)
	require.Equal(t, 1, r.page.count(markClick))
	click := r.page.scripts[len(r.page.scripts)-1]
	assert.Contains(t, click, "var x = 100;")
	assert.Contains(t, click, "var y = 90 - window.scrollY;")
	assert.Equal(t, []TouchEvent{
		{Action: TouchDown, X: 100, Y: 50},
		{Action: TouchUp, X: 100, Y: 50},
	}, r.page.touches)
	assert.True(t, r.engine.State().Visible)
}

func TestGeometryHeightIsCapped(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.page.respond = func(script string) (string, error) {
		if strings.Contains(script, markGeometry) {
			return `{"width":300,"height":5000}`, nil
		}
		return "null", nil
	}
	r.sched.Advance(time.Second)
	r.engine.OnPageGeometryChanged()
	r.sched.Drain()
	assert.Equal(t, 1000, r.engine.State().ContentHeight)
	assert.Equal(t, 300, r.engine.State().ContentWidth)

	r.page.respond = func(script string) (string, error) {
		return `{"height":1400,"width":300}`, nil
	}
	r.engine.Resume()
	r.sched.Drain()
	assert.Equal(t, 1400, r.engine.State().ContentHeight)

	r.page.respond = func(script string) (string, error) { return "null", nil }
	r.engine.Resume()
	r.sched.Drain()
	assert.Equal(t, 200, r.engine.State().ContentWidth)
	assert.Equal(t, 1000, r.engine.State().ContentHeight)
}

func TestGeometryChangesAreDebounced(t *testing.T) {
	r := newRig(t, 200, 1000)
	require.Equal(t, 1, r.page.count(markGeometry))

	r.engine.OnPageGeometryChanged()
	r.engine.OnPageGeometryChanged()
	r.sched.Drain()
	assert.Equal(t, 1, r.page.count(markGeometry))

	r.sched.Advance(999 * time.Millisecond)
	assert.Equal(t, 1, r.page.count(markGeometry))
	r.sched.Advance(time.Millisecond)
	assert.Equal(t, 2, r.page.count(markGeometry))

	r.sched.Advance(5 * time.Second)
	r.engine.OnPageGeometryChanged()
	r.sched.Drain()
	assert.Equal(t, 3, r.page.count(markGeometry))
}

func TestFullscreenSuspendsPointerAndBackExits(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.page.scrollY = 120
	video := &fakeVideo{}

	r.engine.EnterFullscreen(video)
	assert.True(t, r.engine.Fullscreen())
	assert.Equal(t, OrientationLandscape, r.surface.orientation)
	assert.Same(t, video, r.surface.attached)
	assert.False(t, r.page.visible)
	assert.False(t, r.engine.State().Visible)
	assert.Zero(t, r.sched.Pending(), "hide timer should be cancelled")

	assert.False(t, r.engine.OnKey(KeyDown, ActionDown))
	assert.True(t, r.engine.OnKey(KeyPlayPause, ActionDown))
	assert.True(t, r.engine.OnKey(KeyCenter, ActionDown))
	r.sched.Drain()
	assert.Equal(t, 2, r.page.count(markToggle))
	assert.Empty(t, r.page.scrolls)

	r.page.scrollY = 0
	assert.True(t, r.engine.OnKey(KeyBack, ActionDown))
	assert.False(t, r.engine.Fullscreen())
	assert.Equal(t, OrientationPortrait, r.surface.orientation)
	assert.Nil(t, r.surface.attached)
	assert.True(t, r.page.visible)
	assert.Equal(t, 1, video.exited)
	assert.Equal(t, 120, r.page.scrollY)
	assert.Equal(t, 1, r.page.count(markPause))
	assert.Zero(t, r.nav.backs)
}

func TestSecondFullscreenRequestExits(t *testing.T) {
	r := newRig(t, 200, 1000)
	first := &fakeVideo{}
	r.engine.EnterFullscreen(first)
	r.engine.EnterFullscreen(&fakeVideo{})
	assert.False(t, r.engine.Fullscreen())
	assert.Equal(t, 1, first.exited)
}

func TestBackUsesPageHistory(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.page.history = 1
	assert.True(t, r.engine.OnKey(KeyBack, ActionDown))
	assert.Equal(t, 1, r.page.backs)
	assert.False(t, r.engine.OnKey(KeyBack, ActionDown))
}

func TestKeyUpAndUnknownKeysAreNotConsumed(t *testing.T) {
	r := newRig(t, 200, 1000)
	assert.False(t, r.engine.OnKey(KeyDown, ActionUp))
	assert.False(t, r.engine.OnKey(KeyUnknown, ActionDown))
	assert.Equal(t, 50.0, r.engine.State().Y)
}

func TestPageErrorNotifiesAndNavigatesBack(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.engine.OnPageError("net::ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, []string{"Failed to load page: net::ERR_NAME_NOT_RESOLVED"}, r.notes)

	r.sched.Advance(1999 * time.Millisecond)
	assert.Zero(t, r.nav.backs)
	r.sched.Advance(time.Millisecond)
	assert.Equal(t, 1, r.nav.backs)
}

func TestDestroyCancelsTimersAndDropsLateResults(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.page.async = true
	video := &fakeVideo{}

	r.press(KeyDown, 2) // arms hide and geometry timers
	r.engine.EnterFullscreen(video)
	r.engine.OnPageError("boom")
	before := r.engine.State()

	r.engine.Destroy()
	assert.Zero(t, r.sched.Pending())
	assert.Equal(t, 1, video.exited)
	assert.GreaterOrEqual(t, r.page.count(markPause), 2)

	for _, done := range r.page.deferred {
		done()
	}
	r.sched.Advance(10 * time.Second)
	assert.Equal(t, before.ContentHeight, r.engine.State().ContentHeight)
	assert.Zero(t, r.nav.backs)

	n := len(r.page.scripts)
	assert.False(t, r.engine.OnKey(KeyDown, ActionDown))
	r.engine.OnPageLoaded()
	r.engine.Destroy()
	assert.Len(t, r.page.scripts, n)
}

func TestStaleResultsFromPreviousPageAreIgnored(t *testing.T) {
	r := newRig(t, 200, 1000)
	r.page.async = true
	r.page.respond = func(script string) (string, error) {
		if strings.Contains(script, markGeometry) {
			return `{"width":200,"height":400}`, nil
		}
		return "null", nil
	}
	r.engine.Resume()
	stale := r.page.deferred
	r.page.deferred = nil

	r.page.async = false
	r.page.respond = func(script string) (string, error) {
		if strings.Contains(script, markGeometry) {
			return `{"width":200,"height":800}`, nil
		}
		return "null", nil
	}
	r.page.reported = 800
	r.engine.OnPageLoaded()
	r.sched.Drain()

	for _, done := range stale {
		done()
	}
	r.sched.Drain()
	assert.Equal(t, 800, r.engine.State().ContentHeight)
}

func TestNewRequiresHost(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
