package webpage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/pointer"
)

// Default cell size in page pixels.
const (
	DefaultCellWidth  = 8
	DefaultCellHeight = 16
)

const scriptTimeout = 2 * time.Second

var errNoDocument = errors.New("no document loaded")

// Options configures a Page.
type Options struct {
	CellWidth  int
	CellHeight int
	// Navigate is called when the page follows a link or goes back. The
	// host loads the URL and calls SetDocument with the result.
	Navigate func(url string)
	// Bridge receives the page's dimension change notifications.
	Bridge func()
}

// Page is a laid-out document with a script runtime, implementing
// pointer.Page. Scroll offsets and coordinates are in page pixels.
type Page struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	doc        *Document
	vm         *goja.Runtime
	viewW      int // pixels
	viewH      int
	scrollX    int
	scrollY    int
	visible    bool
	hovered    int
	navigating bool
	goingBack  bool
	history    []string

	scriptErrors int
}

// NewPage returns an empty page.
func NewPage(opts Options) *Page {
	if opts.CellWidth <= 0 {
		opts.CellWidth = DefaultCellWidth
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = DefaultCellHeight
	}
	return &Page{opts: opts, logger: log.WithComponent("webpage"), visible: true, hovered: -1}
}

// SetViewport sets the visible area in cells.
func (p *Page) SetViewport(cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewW = cols * p.opts.CellWidth
	p.viewH = rows * p.opts.CellHeight
	p.clampScroll()
}

// ViewportPixels returns the visible area in page pixels.
func (p *Page) ViewportPixels() (w, h int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewW, p.viewH
}

// CellSize returns the pixel size of one terminal cell.
func (p *Page) CellSize() (w, h int) {
	return p.opts.CellWidth, p.opts.CellHeight
}

// SetDocument replaces the page content and records it in the history
// unless it was reached by going back.
func (p *Page) SetDocument(doc *Document) error {
	vm, err := p.newRuntime(doc)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc = doc
	p.vm = vm
	p.scrollX, p.scrollY = 0, 0
	p.hovered = -1
	p.navigating = false
	if p.goingBack {
		p.goingBack = false
	} else if n := len(p.history); n == 0 || p.history[n-1] != doc.URL {
		p.history = append(p.history, doc.URL)
	}
	return nil
}

// Document returns the current document.
func (p *Page) Document() *Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// CancelNavigation clears a pending navigation that the host did not load.
func (p *Page) CancelNavigation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigating = false
	p.goingBack = false
}

type jsElement struct {
	Tag    string            `json:"tag"`
	Attrs  map[string]string `json:"attrs"`
	Parent int               `json:"parent"`
	X      int               `json:"x"`
	Y      int               `json:"y"`
	W      int               `json:"w"`
	H      int               `json:"h"`
}

func (p *Page) newRuntime(doc *Document) (*goja.Runtime, error) {
	cw, ch := p.opts.CellWidth, p.opts.CellHeight
	els := make([]jsElement, len(doc.Elements))
	for i, e := range doc.Elements {
		je := jsElement{Tag: e.Tag, Attrs: e.Attrs, Parent: e.Parent}
		if e.Laid {
			je.X, je.Y = e.Col0*cw, e.Row0*ch
			je.W, je.H = (e.Col1-e.Col0+1)*cw, (e.Row1-e.Row0+1)*ch
		}
		els[i] = je
	}
	data, err := json.Marshal(els)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	pageW, pageH := doc.Cols*cw, len(doc.Lines)*ch
	set := func(name string, v any) {
		if err == nil {
			err = vm.Set(name, v)
		}
	}
	set("__elements", string(data))
	set("__view", func() map[string]any {
		p.mu.Lock()
		defer p.mu.Unlock()
		return map[string]any{
			"width":      p.viewW,
			"height":     p.viewH,
			"pageWidth":  max(pageW, p.viewW),
			"pageHeight": max(pageH, p.viewH),
		}
	})
	set("__scrolled", func(x, y int) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.scrollX, p.scrollY = x, y
	})
	set("__event", func(i int, typ string) {
		p.onEvent(doc, i, typ)
	})
	set("__bridge", func() {
		if p.opts.Bridge != nil {
			p.opts.Bridge()
		}
	})
	set("__log", func(msg string) {
		p.logger.Debug().Str(log.FieldURL, log.SafeURL(doc.URL)).Msg(msg)
	})
	if err != nil {
		return nil, err
	}
	if _, err := vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("installing page runtime: %w", err)
	}
	bridge := vm.NewObject()
	if err := bridge.Set("updateDimensions", vm.Get("__bridge")); err != nil {
		return nil, err
	}
	if err := vm.GlobalObject().Set(pointer.BridgeName, bridge); err != nil {
		return nil, err
	}
	return vm, nil
}

func (p *Page) onEvent(doc *Document, i int, typ string) {
	if i < 0 || i >= len(doc.Elements) {
		return
	}
	switch typ {
	case "mouseover":
		p.mu.Lock()
		p.hovered = i
		p.mu.Unlock()
	case "click", "play":
		p.activate(doc, i)
	}
}

// activate follows the link or media target of element i or its nearest
// ancestor that has one.
func (p *Page) activate(doc *Document, i int) {
	target := ""
	for j := i; j >= 0; j = doc.Elements[j].Parent {
		if target = doc.Elements[j].Href(); target != "" {
			break
		}
	}
	if target == "" {
		return
	}
	p.mu.Lock()
	if p.doc != doc || p.navigating {
		p.mu.Unlock()
		return
	}
	p.navigating = true
	p.mu.Unlock()

	p.logger.Debug().Str(log.FieldURL, log.SafeURL(doc.URL)).Str("target", log.SafeURL(target)).Msg("following link")
	if p.opts.Navigate != nil {
		p.opts.Navigate(target)
	}
}

// Evaluate runs script and passes its JSON-encoded result to done.
func (p *Page) Evaluate(script string, done func(result string, err error)) {
	res, err := p.evaluate(script)
	if err != nil {
		p.mu.Lock()
		p.scriptErrors++
		p.mu.Unlock()
		p.logger.Debug().Err(err).Msg("page script failed")
	}
	if done != nil {
		done(res, err)
	}
}

func (p *Page) evaluate(script string) (string, error) {
	p.mu.Lock()
	vm := p.vm
	sx, sy := p.scrollX, p.scrollY
	p.mu.Unlock()
	if vm == nil {
		return "null", errNoDocument
	}

	if err := vm.Set("scrollX", sx); err != nil {
		return "null", err
	}
	if err := vm.Set("scrollY", sy); err != nil {
		return "null", err
	}

	timer := time.AfterFunc(scriptTimeout, func() {
		vm.Interrupt("script timed out")
	})
	v, err := vm.RunString(script)
	timer.Stop()
	vm.ClearInterrupt()
	if err != nil {
		return "null", err
	}

	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return "null", errors.New("JSON.stringify unavailable")
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return "null", err
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return "null", nil
	}
	return out.String(), nil
}

// ScrollTo scrolls to a page-pixel offset, clamped to the content.
func (p *Page) ScrollTo(x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollX, p.scrollY = x, y
	p.clampScroll()
}

func (p *Page) clampScroll() {
	maxX, maxY := 0, 0
	if p.doc != nil {
		maxX = max(0, p.doc.Cols*p.opts.CellWidth-p.viewW)
		maxY = max(0, len(p.doc.Lines)*p.opts.CellHeight-p.viewH)
	}
	p.scrollX = max(0, min(p.scrollX, maxX))
	p.scrollY = max(0, min(p.scrollY, maxY))
}

// ScrollOffset returns the current scroll offset in page pixels.
func (p *Page) ScrollOffset() (x, y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollX, p.scrollY
}

// ContentHeight is the laid-out height in page pixels.
func (p *Page) ContentHeight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return 0
	}
	return len(p.doc.Lines) * p.opts.CellHeight
}

// DispatchTouch activates the element under a lifted touch. A click
// delivered by script for the same press has already navigated.
func (p *Page) DispatchTouch(ev pointer.TouchEvent) {
	if ev.Action != pointer.TouchUp {
		return
	}
	p.mu.Lock()
	doc := p.doc
	px := int(ev.X) + p.scrollX
	py := int(ev.Y) + p.scrollY
	p.mu.Unlock()
	if doc == nil {
		return
	}
	if i := p.elementAt(doc, px, py); i >= 0 {
		p.activate(doc, i)
	}
}

// elementAt returns the innermost interactive element at a page point.
func (p *Page) elementAt(doc *Document, px, py int) int {
	col, row := px/p.opts.CellWidth, py/p.opts.CellHeight
	if row < 0 || row >= len(doc.Lines) || col < 0 || col >= len(doc.Lines[row]) {
		return -1
	}
	return doc.Lines[row][col].Link
}

// SetVisible shows or hides the page behind a fullscreen view.
func (p *Page) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = visible
}

// Visible reports whether the page is shown.
func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// CanGoBack reports whether an earlier page is in the history.
func (p *Page) CanGoBack() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.history) > 1
}

// GoBack navigates to the previous history entry.
func (p *Page) GoBack() {
	p.mu.Lock()
	if len(p.history) < 2 {
		p.mu.Unlock()
		return
	}
	p.history = p.history[:len(p.history)-1]
	prev := p.history[len(p.history)-1]
	p.goingBack = true
	p.navigating = true
	p.mu.Unlock()

	if p.opts.Navigate != nil {
		p.opts.Navigate(prev)
	}
}

var (
	linkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true)
	hoverStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("39"))
	pointerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

const pointerGlyph = '▲'

type cellKind int

const (
	plainCell cellKind = iota
	linkCell
	hoverCell
	pointerCell
)

// Render draws the visible part of the page. The pointer position is in
// view pixels.
func (p *Page) Render(pointerX, pointerY float64, pointerVisible bool) string {
	p.mu.Lock()
	doc := p.doc
	cw, ch := p.opts.CellWidth, p.opts.CellHeight
	cols, rows := p.viewW/cw, p.viewH/ch
	col0, row0 := p.scrollX/cw, p.scrollY/ch
	hovered := p.hovered
	p.mu.Unlock()
	if doc == nil || cols <= 0 || rows <= 0 {
		return ""
	}

	pc, pr := -1, -1
	if pointerVisible {
		pc, pr = int(pointerX)/cw, int(pointerY)/ch
	}

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteByte('\n')
		}
		var line Line
		if row0+r < len(doc.Lines) {
			line = doc.Lines[row0+r]
		}
		var run strings.Builder
		kind := plainCell
		flush := func() {
			if run.Len() == 0 {
				return
			}
			switch kind {
			case linkCell:
				sb.WriteString(linkStyle.Render(run.String()))
			case hoverCell:
				sb.WriteString(hoverStyle.Render(run.String()))
			case pointerCell:
				sb.WriteString(pointerStyle.Render(run.String()))
			default:
				sb.WriteString(run.String())
			}
			run.Reset()
		}
		for c := 0; c < cols; c++ {
			cell := Cell{R: ' ', Link: -1}
			if i := col0 + c; i < len(line) {
				cell = line[i]
			}
			k := plainCell
			switch {
			case r == pr && c == pc:
				k, cell.R = pointerCell, pointerGlyph
			case cell.Link >= 0 && cell.Link == hovered:
				k = hoverCell
			case cell.Link >= 0:
				k = linkCell
			}
			if cell.R == 0 {
				// Second half of a wide rune.
				continue
			}
			if k != kind {
				flush()
				kind = k
			}
			run.WriteRune(cell.R)
		}
		flush()
	}
	return sb.String()
}
