package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/olivier-w/csvtv/internal/loop"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/pointer"
	"github.com/olivier-w/csvtv/internal/webpage"
)

// pageSurface is the terminal area the page and the pointer are drawn in.
// The pointer engine calls it on the loop; View reads it from the program.
type pageSurface struct {
	page *webpage.Page
	out  *sender

	mu          sync.Mutex
	x, y        float64
	visible     bool
	orientation pointer.Orientation
	fullscreen  pointer.FullscreenView
}

func (s *pageSurface) Size() (w, h int) {
	return s.page.ViewportPixels()
}

func (s *pageSurface) PointerSize() (w, h int) {
	return s.page.CellSize()
}

func (s *pageSurface) MovePointer(x, y float64) {
	s.mu.Lock()
	s.x, s.y = x, y
	s.mu.Unlock()
	s.out.Send(refreshMsg{})
}

func (s *pageSurface) SetPointerVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	s.mu.Unlock()
	s.out.Send(refreshMsg{})
}

func (s *pageSurface) Orientation() pointer.Orientation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orientation
}

// SetOrientation is recorded only; a terminal cannot rotate.
func (s *pageSurface) SetOrientation(o pointer.Orientation) {
	s.mu.Lock()
	s.orientation = o
	s.mu.Unlock()
}

func (s *pageSurface) AttachFullscreen(v pointer.FullscreenView) {
	s.mu.Lock()
	s.fullscreen = v
	s.mu.Unlock()
	s.out.Send(refreshMsg{})
}

func (s *pageSurface) DetachFullscreen(v pointer.FullscreenView) {
	s.mu.Lock()
	if s.fullscreen == v {
		s.fullscreen = nil
	}
	s.mu.Unlock()
	s.out.Send(refreshMsg{})
}

type surfaceSnapshot struct {
	x, y       float64
	visible    bool
	fullscreen *pageVideo
}

func (s *pageSurface) snapshot() surfaceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.fullscreen.(*pageVideo)
	return surfaceSnapshot{x: s.x, y: s.y, visible: s.visible, fullscreen: v}
}

// pageVideo is a page video shown in the full window.
type pageVideo struct {
	src string
	out *sender
}

func (v *pageVideo) Exited() {
	v.out.Send(refreshMsg{})
}

// pageNavigator leaves the page screen.
type pageNavigator struct {
	out *sender
}

func (n pageNavigator) Back() {
	n.out.Send(backMsg{from: screenPage})
}

// pageChrome is the number of rows around the page area.
const pageChrome = 3

// pageModel shows a web page driven by the D-pad pointer.
type pageModel struct {
	channel media.Channel
	pending string // URL being fetched
	loading bool

	page    *webpage.Page
	engine  *pointer.Engine
	surface *pageSurface
	sched   loop.Scheduler
	out     *sender

	spinner spinner.Model
	width   int
	height  int
}

func newPageModel(ch media.Channel, sched loop.Scheduler, out *sender, cfg pointer.Config) (*pageModel, error) {
	m := &pageModel{channel: ch, sched: sched, out: out}
	m.page = webpage.NewPage(webpage.Options{
		Navigate: func(url string) {
			out.Send(pageNavigateMsg{url: url})
		},
		Bridge: func() {
			sched.Post(func() {
				if m.engine != nil {
					m.engine.OnPageGeometryChanged()
				}
			})
		},
	})
	m.surface = &pageSurface{page: m.page, out: out}

	engine, err := pointer.New(pointer.Options{
		Page:      m.page,
		Surface:   m.surface,
		Scheduler: sched,
		Navigator: pageNavigator{out: out},
		Notify: func(text string) {
			out.Send(noticeMsg{text: text})
		},
		Config: cfg,
	})
	if err != nil {
		return nil, err
	}
	m.engine = engine

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})
	m.spinner = s
	return m, nil
}

// load marks url as the page being fetched.
func (m *pageModel) load(url string) tea.Cmd {
	m.pending = url
	m.loading = true
	return tea.Batch(m.spinner.Tick, tea.SetWindowTitle("csvtv — "+m.channel.Title))
}

// fetched installs a fetched document. Results for a URL other than the
// pending one are stale and dropped.
func (m *pageModel) fetched(msg pageFetchedMsg) {
	if !m.loading || msg.url != m.pending {
		return
	}
	m.loading = false
	page, engine := m.page, m.engine
	if msg.err != nil {
		errText := msg.err.Error()
		m.sched.Post(func() {
			page.CancelNavigation()
			engine.OnPageError(errText)
		})
		return
	}
	doc := msg.doc
	m.sched.Post(func() {
		if err := page.SetDocument(doc); err != nil {
			page.CancelNavigation()
			engine.OnPageError(err.Error())
			return
		}
		engine.OnPageLoaded()
	})
}

// cancel drops a navigation the host handles elsewhere.
func (m *pageModel) cancel() {
	m.loading = false
	m.pending = ""
	page := m.page
	m.sched.Post(page.CancelNavigation)
}

func (m *pageModel) pause() {
	m.sched.Post(m.engine.Pause)
}

func (m *pageModel) resume() {
	m.sched.Post(m.engine.Resume)
}

func (m *pageModel) close() {
	m.sched.Post(m.engine.Destroy)
}

func (m *pageModel) resize(w, h int) {
	m.width, m.height = w, h
	if w <= 0 || h <= pageChrome {
		return
	}
	m.page.SetViewport(w, h-pageChrome)
	engine := m.engine
	m.sched.Post(engine.OnPageGeometryChanged)
}

// cols returns the layout width for fetched documents.
func (m *pageModel) cols() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func firstVideo(doc *webpage.Document) string {
	if doc == nil {
		return ""
	}
	for _, el := range doc.Elements {
		if el.Tag == "VIDEO" && el.Href() != "" {
			return el.Href()
		}
	}
	return ""
}

func (m *pageModel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.loading {
			if isBack(msg) {
				m.out.Send(backMsg{from: screenPage})
			}
			return nil
		}
		engine, page, out := m.engine, m.page, m.out
		if msg.String() == "f" {
			src := firstVideo(page.Document())
			if src == "" {
				return func() tea.Msg { return noticeMsg{text: "No video on this page"} }
			}
			m.sched.Post(func() {
				engine.EnterFullscreen(&pageVideo{src: src, out: out})
			})
			return nil
		}
		key := remoteKey(msg)
		if key == pointer.KeyUnknown {
			return nil
		}
		m.sched.Post(func() {
			if !engine.OnKey(key, pointer.ActionDown) && key == pointer.KeyBack {
				out.Send(backMsg{from: screenPage})
			}
		})
		return nil

	case spinner.TickMsg:
		if !m.loading {
			return nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	}
	return nil
}

func (m *pageModel) View(notice string) string {
	snap := m.surface.snapshot()
	w := m.width
	if w <= 0 {
		w = 80
	}

	title := m.channel.Title
	if doc := m.page.Document(); doc != nil && doc.Title != "" {
		title = doc.Title
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(truncate("csvtv · "+title, w)))
	b.WriteString("\n")

	rows := m.height - pageChrome
	if rows < 1 {
		rows = 1
	}
	var body string
	switch {
	case snap.fullscreen != nil:
		body = fullscreenPanel(snap.fullscreen.src, w, rows)
	case m.loading:
		body = "  " + m.spinner.View() + " " + statusStyle.Render("Loading "+truncate(m.pending, w-14)+"...")
	default:
		body = m.page.Render(snap.x, snap.y, snap.visible)
	}
	b.WriteString(padLines(body, rows))
	b.WriteString("\n")

	status := m.pending
	if doc := m.page.Document(); doc != nil && !m.loading {
		status = doc.URL
	}
	if notice != "" {
		b.WriteString(noticeStyle.Render(truncate(notice, w)))
	} else {
		b.WriteString(statusStyle.Render(truncate(status, w)))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(truncate(pageHelp(snap.fullscreen != nil), w)))
	return b.String()
}

func fullscreenPanel(src string, w, h int) string {
	panel := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("▶ video"),
		"",
		statusStyle.Render(truncate(src, w-8)),
	)
	return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, panel)
}
