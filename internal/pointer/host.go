// Package pointer turns D-pad key presses into a virtual mouse pointer over
// an embedded page: motion, edge scrolling, hover and click synthesis,
// auto-hide and fullscreen video handling.
package pointer

// Key is a remote-control key.
type Key int

const (
	KeyUnknown Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyCenter
	KeyEnter
	KeyPlayPause
	KeyBack
)

// Action is the phase of a key event.
type Action int

const (
	ActionDown Action = iota
	ActionUp
)

// Orientation is the requested screen orientation.
type Orientation int

const (
	OrientationUnspecified Orientation = iota
	OrientationLandscape
	OrientationPortrait
)

// TouchAction is the phase of a synthesized touch.
type TouchAction int

const (
	TouchDown TouchAction = iota
	TouchUp
)

// TouchEvent is a native touch at view-local coordinates.
type TouchEvent struct {
	Action TouchAction
	X, Y   float64
}

// Page is the scriptable embedded page.
type Page interface {
	// Evaluate runs script in the page. done receives the JSON encoding of
	// the script's value and may be called on any goroutine.
	Evaluate(script string, done func(result string, err error))
	ScrollTo(x, y int)
	ScrollOffset() (x, y int)
	// ContentHeight is the page engine's own measure of the content
	// height in view pixels.
	ContentHeight() int
	DispatchTouch(ev TouchEvent)
	SetVisible(visible bool)
	CanGoBack() bool
	GoBack()
}

// Surface is the container the page and the pointer are drawn in.
type Surface interface {
	// Size is the container size in pixels.
	Size() (w, h int)
	PointerSize() (w, h int)
	MovePointer(x, y float64)
	SetPointerVisible(visible bool)
	Orientation() Orientation
	SetOrientation(o Orientation)
	// AttachFullscreen shows v in the full-window container; DetachFullscreen
	// removes it.
	AttachFullscreen(v FullscreenView)
	DetachFullscreen(v FullscreenView)
}

// FullscreenView is a native fullscreen presentation requested by the
// page, typically a video element.
type FullscreenView interface {
	// Exited is called once the view has been detached.
	Exited()
}

// Navigator leaves the page screen.
type Navigator interface {
	Back()
}
