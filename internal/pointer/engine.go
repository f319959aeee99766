package pointer

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/loop"
)

// Config holds the pointer policies. Distances are view pixels.
type Config struct {
	Step             float64
	ScrollThreshold  float64
	HideDelay        time.Duration
	GeometryDebounce time.Duration
	HoverRetries     int
	HoverRetryDelay  time.Duration
	// HeightSlack bounds how far a measured content height may exceed
	// the page engine's reported height.
	HeightSlack int
	// ErrorExitDelay is how long a page load error stays visible before
	// navigating back.
	ErrorExitDelay time.Duration
}

// DefaultConfig returns the standard policies.
func DefaultConfig() Config {
	return Config{
		Step:             15,
		ScrollThreshold:  30,
		HideDelay:        3 * time.Second,
		GeometryDebounce: time.Second,
		HoverRetries:     2,
		HoverRetryDelay:  50 * time.Millisecond,
		HeightSlack:      500,
		ErrorExitDelay:   2 * time.Second,
	}
}

// State is the pointer state. X and Y are view-local.
type State struct {
	X, Y            float64
	ScrollX         int
	ScrollY         int
	ContentWidth    int
	ContentHeight   int
	Visible         bool
	HideTimerActive bool
}

// Options configures an Engine.
type Options struct {
	Page      Page
	Surface   Surface
	Scheduler loop.Scheduler
	Navigator Navigator
	// Notify shows a transient message.
	Notify func(msg string)
	Config Config
}

// Engine drives the pointer. All methods must be called on the UI loop.
type Engine struct {
	page    Page
	surface Surface
	sched   loop.Scheduler
	nav     Navigator
	notify  func(string)
	cfg     Config
	logger  zerolog.Logger

	state State
	// gen changes on every page load; evaluation results from an older
	// page are dropped.
	gen       uint64
	moveSeq   uint64
	destroyed bool

	hideTimer     loop.Timer
	hoverTimer    loop.Timer
	geometryTimer loop.Timer
	exitTimer     loop.Timer
	lastGeometry  time.Time

	fullscreen      FullscreenView
	prevOrientation Orientation
	prevScrollX     int
	prevScrollY     int
}

// New creates an engine. Call OnPageLoaded once the first page is ready.
func New(opts Options) (*Engine, error) {
	if opts.Page == nil || opts.Surface == nil || opts.Scheduler == nil {
		return nil, errors.New("pointer: page, surface and scheduler are required")
	}
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.Step <= 0 || cfg.ScrollThreshold < 0 || cfg.HideDelay <= 0 {
		return nil, errors.New("pointer: step and hide delay must be positive")
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(string) {}
	}
	return &Engine{
		page:    opts.Page,
		surface: opts.Surface,
		sched:   opts.Scheduler,
		nav:     opts.Navigator,
		notify:  notify,
		cfg:     cfg,
		logger:  log.WithComponent("pointer"),
	}, nil
}

// State returns a copy of the pointer state.
func (e *Engine) State() State {
	return e.state
}

// Fullscreen reports whether a fullscreen view is showing.
func (e *Engine) Fullscreen() bool {
	return e.fullscreen != nil
}

// eval runs script and delivers its result on the loop, unless the engine
// was destroyed or the page reloaded in the meantime.
func (e *Engine) eval(script string, fn func(result string, err error)) {
	if e.destroyed {
		return
	}
	gen := e.gen
	e.page.Evaluate(script, func(result string, err error) {
		e.sched.Post(func() {
			if e.destroyed || gen != e.gen {
				return
			}
			if fn != nil {
				fn(result, err)
			}
		})
	})
}

// OnKey handles a key event and reports whether it was consumed.
func (e *Engine) OnKey(key Key, action Action) bool {
	if e.destroyed || action != ActionDown {
		return false
	}
	if e.fullscreen != nil {
		switch key {
		case KeyCenter, KeyEnter, KeyPlayPause:
			e.eval(togglePlayScript, func(result string, err error) {
				e.logger.Debug().Str("action", resultString(result)).Msg("fullscreen video toggled")
			})
			return true
		case KeyBack:
			e.ExitFullscreen()
			return true
		}
		return false
	}

	switch key {
	case KeyUp:
		e.OnDirectionalKey(0, -1)
	case KeyDown:
		e.OnDirectionalKey(0, 1)
	case KeyLeft:
		e.OnDirectionalKey(-1, 0)
	case KeyRight:
		e.OnDirectionalKey(1, 0)
	case KeyCenter, KeyEnter:
		e.OnSelectKey()
	case KeyBack:
		return e.OnBack()
	default:
		return false
	}
	return true
}

// OnDirectionalKey moves the pointer one step in the direction (dx, dy),
// each in -1..1.
func (e *Engine) OnDirectionalKey(dx, dy int) {
	if e.destroyed || e.fullscreen != nil {
		return
	}
	e.showPointer()
	e.move(float64(dx)*e.cfg.Step, float64(dy)*e.cfg.Step)
}

func (e *Engine) move(dx, dy float64) {
	s := &e.state
	s.ScrollX, s.ScrollY = e.page.ScrollOffset()
	w, h := e.surface.Size()
	pw, ph := e.surface.PointerSize()
	maxX := float64(max(w-pw, 0))
	maxY := float64(max(h-ph, 0))
	th := e.cfg.ScrollThreshold
	step := int(e.cfg.Step)

	s.X += dx
	s.Y += dy

	switch {
	case dx < 0 && s.X < th && s.ScrollX > 0:
		e.scrollTo(max(s.ScrollX-step, 0), s.ScrollY)
		s.X = th
	case dx > 0 && s.X > maxX-th && s.ScrollX < e.maxScrollX(w):
		e.scrollTo(min(s.ScrollX+step, e.maxScrollX(w)), s.ScrollY)
		s.X = maxX - th
	}

	scrolledY := false
	switch {
	case dy < 0 && s.Y < th && s.ScrollY > 0:
		e.scrollTo(s.ScrollX, max(s.ScrollY-step, 0))
		s.Y = th
		scrolledY = true
	case dy > 0 && s.Y > maxY-th && s.ScrollY < e.maxScrollY(h):
		e.scrollTo(s.ScrollX, min(s.ScrollY+step, e.maxScrollY(h)))
		s.Y = maxY - th
		scrolledY = true
	}

	s.X = clamp(s.X, 0, maxX)
	s.Y = clamp(s.Y, 0, maxY)
	e.surface.MovePointer(s.X, s.Y)

	e.moveSeq++
	e.detectElement(scrolledY)
	e.startHover()
	if scrolledY {
		e.OnPageGeometryChanged()
	}
}

func (e *Engine) maxScrollX(viewW int) int {
	return max(e.state.ContentWidth-viewW, 0)
}

func (e *Engine) maxScrollY(viewH int) int {
	return max(e.state.ContentHeight-viewH, 0)
}

func (e *Engine) scrollTo(x, y int) {
	e.page.ScrollTo(x, y)
	e.state.ScrollX, e.state.ScrollY = x, y
}

// pageY converts the pointer to page-space vertical position.
func (e *Engine) pageY() int {
	return int(e.state.Y) + e.state.ScrollY
}

// detectElement looks for an interactive element under the pointer. After
// a vertical scroll the pointer snaps to the element it landed on.
func (e *Engine) detectElement(scrolled bool) {
	seq := e.moveSeq
	e.eval(elementAtScript(int(e.state.X), e.pageY()), func(result string, err error) {
		if err != nil || seq != e.moveSeq {
			return
		}
		el, ok := parseElement(result)
		if !ok {
			return
		}
		e.logger.Debug().Str("tag", el.Tag).Str("class", el.ClassName).Msg("interactive element under pointer")
		if !scrolled {
			return
		}
		w, h := e.surface.Size()
		pw, ph := e.surface.PointerSize()
		e.state.X = clamp(el.CenterX, 0, float64(w-pw))
		e.state.Y = clamp(el.Top-float64(e.state.ScrollY), 0, float64(h-ph))
		e.surface.MovePointer(e.state.X, e.state.Y)
	})
}

func (e *Engine) startHover() {
	if e.hoverTimer != nil {
		e.hoverTimer.Stop()
		e.hoverTimer = nil
	}
	e.hover(e.moveSeq, 0)
}

// hover dispatches the hover family, retrying while layout settles.
func (e *Engine) hover(seq uint64, attempt int) {
	e.eval(hoverScript(int(e.state.X), e.pageY()), func(result string, err error) {
		if seq != e.moveSeq {
			return
		}
		if resultString(result) == "" && attempt < e.cfg.HoverRetries {
			e.hoverTimer = e.sched.After(e.cfg.HoverRetryDelay, func() {
				e.hoverTimer = nil
				if e.destroyed {
					return
				}
				e.hover(seq, attempt+1)
			})
		}
	})
}

// OnSelectKey clicks at the pointer with DOM mouse events and a native
// touch pair.
func (e *Engine) OnSelectKey() {
	if e.destroyed || e.fullscreen != nil {
		return
	}
	e.showPointer()
	e.state.ScrollX, e.state.ScrollY = e.page.ScrollOffset()
	s := e.state
	x := int(s.X)
	e.eval(clickScript(x, e.pageY()), func(result string, err error) {
		if resultString(result) == clickMiss {
			e.logger.Debug().Int("x", x).Float64("y", s.Y).Msg("click found no element")
		}
	})
	e.page.DispatchTouch(TouchEvent{Action: TouchDown, X: float64(x), Y: s.Y})
	e.page.DispatchTouch(TouchEvent{Action: TouchUp, X: float64(x), Y: s.Y})
}

func (e *Engine) showPointer() {
	e.state.Visible = true
	e.surface.SetPointerVisible(true)
	e.resetHideTimer()
}

func (e *Engine) hidePointer() {
	e.state.Visible = false
	e.surface.SetPointerVisible(false)
}

func (e *Engine) resetHideTimer() {
	e.stopHideTimer()
	e.state.HideTimerActive = true
	e.hideTimer = e.sched.After(e.cfg.HideDelay, func() {
		e.hideTimer = nil
		e.state.HideTimerActive = false
		if e.destroyed {
			return
		}
		e.hidePointer()
	})
}

func (e *Engine) stopHideTimer() {
	if e.hideTimer != nil {
		e.hideTimer.Stop()
		e.hideTimer = nil
	}
	e.state.HideTimerActive = false
}

// OnPageLoaded resets the pointer for a freshly loaded page, measures it
// and installs the page scripts.
func (e *Engine) OnPageLoaded() {
	if e.destroyed {
		return
	}
	e.gen++
	e.moveSeq++
	if e.hoverTimer != nil {
		e.hoverTimer.Stop()
		e.hoverTimer = nil
	}
	if e.geometryTimer != nil {
		e.geometryTimer.Stop()
		e.geometryTimer = nil
	}

	w, h := e.surface.Size()
	sx, sy := e.page.ScrollOffset()
	e.state = State{X: float64(w / 2), Y: float64(h / 2), ScrollX: sx, ScrollY: sy}
	e.surface.MovePointer(e.state.X, e.state.Y)
	e.showPointer()

	e.updateGeometry()
	e.eval(fullscreenFixScript, nil)
	e.eval(mutationObserverScript, nil)
}

// OnPageError reports a failed page load and leaves the screen shortly
// after.
func (e *Engine) OnPageError(description string) {
	if e.destroyed {
		return
	}
	e.logger.Warn().Str("error", description).Msg("page failed to load")
	e.notify("Failed to load page: " + description)
	if e.exitTimer != nil {
		return
	}
	e.exitTimer = e.sched.After(e.cfg.ErrorExitDelay, func() {
		e.exitTimer = nil
		if e.destroyed || e.nav == nil {
			return
		}
		e.nav.Back()
	})
}

// OnPageGeometryChanged recomputes the content size, at most once per
// debounce interval. A change inside the interval is applied when it ends.
func (e *Engine) OnPageGeometryChanged() {
	if e.destroyed || e.geometryTimer != nil {
		return
	}
	wait := e.cfg.GeometryDebounce - e.sched.Now().Sub(e.lastGeometry)
	if wait <= 0 {
		e.updateGeometry()
		return
	}
	e.geometryTimer = e.sched.After(wait, func() {
		e.geometryTimer = nil
		if e.destroyed {
			return
		}
		e.updateGeometry()
	})
}

func (e *Engine) updateGeometry() {
	e.lastGeometry = e.sched.Now()
	e.eval(geometryScript, func(result string, err error) {
		reported := e.page.ContentHeight()
		w, h := 0, 0
		if err == nil {
			w, h, err = parseGeometry(result)
		}
		if err != nil {
			vw, _ := e.surface.Size()
			e.state.ContentWidth, e.state.ContentHeight = vw, reported
			e.logger.Debug().Err(err).Msg("content measurement failed, using page height")
			return
		}
		e.state.ContentWidth = w
		e.state.ContentHeight = capHeight(h, reported, e.cfg.HeightSlack)
		e.logger.Debug().
			Int("width", e.state.ContentWidth).
			Int("height", e.state.ContentHeight).
			Int("reported_height", reported).
			Msg("content dimensions updated")
	})
}

// EnterFullscreen presents v in the full-window container in landscape,
// hiding the page and the pointer. A second request while fullscreen exits
// instead.
func (e *Engine) EnterFullscreen(v FullscreenView) {
	if e.destroyed {
		return
	}
	if e.fullscreen != nil {
		e.ExitFullscreen()
		return
	}
	e.fullscreen = v
	e.prevOrientation = e.surface.Orientation()
	e.prevScrollX, e.prevScrollY = e.page.ScrollOffset()
	e.surface.SetOrientation(OrientationLandscape)
	e.surface.AttachFullscreen(v)
	e.page.SetVisible(false)
	e.stopHideTimer()
	e.hidePointer()
	e.logger.Debug().Msg("entered fullscreen")
}

// ExitFullscreen restores the page, orientation and scroll position.
func (e *Engine) ExitFullscreen() {
	v := e.fullscreen
	if v == nil {
		return
	}
	e.fullscreen = nil
	e.eval(pauseVideosScript, nil)
	e.surface.SetOrientation(e.prevOrientation)
	e.surface.DetachFullscreen(v)
	e.page.SetVisible(true)
	e.scrollTo(e.prevScrollX, e.prevScrollY)
	v.Exited()
	e.updateGeometry()
	e.logger.Debug().Msg("exited fullscreen")
}

// OnBack exits fullscreen or goes back in page history. It reports false
// when the host should leave the page screen.
func (e *Engine) OnBack() bool {
	if e.destroyed {
		return false
	}
	if e.fullscreen != nil {
		e.ExitFullscreen()
		return true
	}
	if e.page.CanGoBack() {
		e.page.GoBack()
		return true
	}
	return false
}

// Pause stops any page video while the screen is in the background.
func (e *Engine) Pause() {
	e.eval(pauseVideosScript, nil)
}

// Resume re-measures the page on return to the foreground.
func (e *Engine) Resume() {
	if e.destroyed {
		return
	}
	e.updateGeometry()
}

// Destroy exits fullscreen, pauses page video and cancels every timer.
// Evaluation results that arrive later are ignored.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.stopHideTimer()
	for _, t := range []*loop.Timer{&e.hoverTimer, &e.geometryTimer, &e.exitTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
	if e.fullscreen != nil {
		e.ExitFullscreen()
	}
	e.eval(pauseVideosScript, nil)
	e.destroyed = true
}
