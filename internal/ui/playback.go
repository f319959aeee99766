package ui

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/loop"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/player"
	"github.com/olivier-w/csvtv/internal/util"
	"github.com/olivier-w/csvtv/internal/video"
)

// StreamEngine is the media engine behind the playback screen.
type StreamEngine interface {
	player.Engine
	// SetViewport sizes video output in terminal cells.
	SetViewport(w, h int)
	// Frame returns the latest rendered video frame.
	Frame() (string, bool)
}

// sender delivers messages to the running program. Messages sent before
// the program is attached are dropped.
type sender struct {
	mu   sync.Mutex
	send func(tea.Msg)
}

func (s *sender) Send(msg tea.Msg) {
	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send != nil {
		send(msg)
	}
}

func (s *sender) attach(send func(tea.Msg)) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

// playbackSnapshot is what the screen renders.
type playbackSnapshot struct {
	loading  bool
	surface  bool
	controls bool
	errText  string
	message  string
	state    player.State
	paused   bool
	position time.Duration
	attempt  int
}

// playbackHost is the controller's view and navigator. The controller
// calls it on the loop; the screen reads snapshots from the program.
type playbackHost struct {
	out *sender

	mu   sync.Mutex
	snap playbackSnapshot
}

func (h *playbackHost) update(fn func(s *playbackSnapshot)) {
	h.mu.Lock()
	fn(&h.snap)
	h.mu.Unlock()
	h.out.Send(refreshMsg{})
}

func (h *playbackHost) snapshot() playbackSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *playbackHost) SetLoadingVisible(v bool) {
	h.update(func(s *playbackSnapshot) { s.loading = v })
}

func (h *playbackHost) SetSurfaceVisible(v bool) {
	h.update(func(s *playbackSnapshot) { s.surface = v })
}

func (h *playbackHost) SetErrorText(text string) {
	h.update(func(s *playbackSnapshot) { s.errText = text })
}

func (h *playbackHost) SetControlsEnabled(v bool) {
	h.update(func(s *playbackSnapshot) { s.controls = v })
}

// CrossFade swaps the loading indicator for the surface and starts the fade.
func (h *playbackHost) CrossFade(d time.Duration) {
	h.update(func(s *playbackSnapshot) {
		s.loading = false
		s.surface = true
	})
	h.out.Send(fadeMsg{d: d})
}

func (h *playbackHost) Back() {
	h.out.Send(backMsg{from: screenPlayback})
}

func (h *playbackHost) notify(n player.Notification) {
	h.update(func(s *playbackSnapshot) {
		s.state = n.State
		s.attempt = n.Attempt
		if n.Message != "" {
			s.message = n.Message
		}
		if n.State == player.StateReady {
			s.message = ""
		}
	})
}

// Frame and fade ticks name their screen so a replaced screen's ticks stop.
type fadeFrameMsg struct{ m *playbackModel }

type frameTickMsg struct{ m *playbackModel }

func (m *playbackModel) frameTickCmd() tea.Cmd {
	return tea.Tick(video.TickInterval(), func(time.Time) tea.Msg {
		return frameTickMsg{m: m}
	})
}

func (m *playbackModel) fadeFrameCmd() tea.Cmd {
	return tea.Tick(time.Second/fadeFPS, func(time.Time) tea.Msg {
		return fadeFrameMsg{m: m}
	})
}

const fadeFPS = 60

// playbackModel plays one stream.
type playbackModel struct {
	channel  media.Channel
	url      string
	ctype    string
	returnTo screen

	host   *playbackHost
	ctrl   *player.Controller
	engine StreamEngine
	sched  loop.Scheduler
	logger zerolog.Logger

	spinner spinner.Model
	spring  harmonica.Spring
	alpha   float64
	vel     float64
	fading  bool

	width  int
	height int
}

func newPlaybackModel(ch media.Channel, url, contentType string, engine StreamEngine, sched loop.Scheduler, out *sender, opts player.Options) (*playbackModel, error) {
	host := &playbackHost{out: out}
	opts.Engine = engine
	opts.View = host
	opts.Navigator = host
	opts.Scheduler = sched
	ctrl, err := player.NewController(opts)
	if err != nil {
		return nil, err
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	return &playbackModel{
		channel: ch,
		url:     url,
		ctype:   contentType,
		host:    host,
		ctrl:    ctrl,
		engine:  engine,
		sched:   sched,
		logger:  log.WithComponent("ui"),
		spinner: s,
	}, nil
}

// start begins playback on the loop.
func (m *playbackModel) start() tea.Cmd {
	m.resize(m.width, m.height)
	ctrl, host := m.ctrl, m.host
	url, ctype := m.url, m.ctype
	logger := m.logger
	m.sched.Post(func() {
		ctrl.Subscribe(host.notify)
		if err := ctrl.Play(url, ctype); err != nil {
			logger.Warn().Err(err).Str(log.FieldURL, log.SafeURL(url)).Msg("starting playback failed")
		}
	})
	return tea.Batch(m.spinner.Tick, m.frameTickCmd(), tea.SetWindowTitle("▶ "+m.channel.Title+" — csvtv"))
}

// close releases the controller on the loop.
func (m *playbackModel) close() {
	m.sched.Post(m.ctrl.Release)
}

const playbackChrome = 8

func (m *playbackModel) resize(w, h int) {
	m.width, m.height = w, h
	if w > 0 && h > playbackChrome {
		m.engine.SetViewport(w-4, h-playbackChrome)
	}
}

func (m *playbackModel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case " ", "p":
			if !m.host.snapshot().controls {
				return nil
			}
			ctrl, host := m.ctrl, m.host
			m.sched.Post(func() {
				ctrl.TogglePause()
				paused := ctrl.Paused()
				host.update(func(s *playbackSnapshot) { s.paused = paused })
			})
		}
		return nil

	case tickMsg:
		ctrl, host := m.ctrl, m.host
		m.sched.Post(func() {
			pos := ctrl.Position()
			host.mu.Lock()
			host.snap.position = pos
			host.mu.Unlock()
		})
		return nil

	case frameTickMsg:
		if msg.m != m {
			return nil
		}
		return m.frameTickCmd()

	case fadeMsg:
		d := msg.d
		if d <= 0 {
			d = 200 * time.Millisecond
		}
		// A critically damped spring settles in about five time constants.
		m.spring = harmonica.NewSpring(harmonica.FPS(fadeFPS), 5/d.Seconds(), 1.0)
		m.alpha, m.vel = 0, 0
		m.fading = true
		return m.fadeFrameCmd()

	case fadeFrameMsg:
		if msg.m != m || !m.fading {
			return nil
		}
		m.alpha, m.vel = m.spring.Update(m.alpha, m.vel, 1)
		if math.Abs(1-m.alpha) < 0.01 {
			m.alpha, m.vel = 1, 0
			m.fading = false
			return nil
		}
		return m.fadeFrameCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	}
	return nil
}

func (m *playbackModel) View(notice string) string {
	snap := m.host.snapshot()
	w := m.width
	if w < 30 {
		w = 50
	}

	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(headerStyle.Render("csvtv"))
	b.WriteString("\n\n  ")
	b.WriteString(titleStyle.Render(truncate(m.channel.Title, w-4)))
	b.WriteString("\n  ")
	b.WriteString(groupStyle.Render(truncate(m.channel.Group, w-4)))
	b.WriteString("\n\n")

	switch {
	case snap.errText != "":
		b.WriteString("  " + errorStyle.Render(snap.errText) + "\n")
	case snap.surface:
		if frame, ok := m.engine.Frame(); ok && m.alpha >= 0.5 {
			for _, line := range strings.Split(frame, "\n") {
				b.WriteString("  " + line + "\n")
			}
		} else {
			b.WriteString("  " + fadeText("♪ audio", m.alpha) + "\n")
		}
	case snap.loading:
		b.WriteString("  " + m.spinner.View() + " " + statusStyle.Render("Loading stream...") + "\n")
	}
	b.WriteString("\n")

	left := "▶  " + snap.state.String()
	if snap.paused {
		left = "❚❚  paused"
	}
	if snap.attempt > 0 && snap.state != player.StateReady {
		left += fmt.Sprintf("  retry %d", snap.attempt)
	}
	right := util.FormatDuration(snap.position)
	b.WriteString("  " + statusLine(statusStyle.Render(left), timeStyle.Render(right), w) + "\n")

	switch {
	case snap.message != "" && snap.errText == "":
		b.WriteString("  " + noticeStyle.Render(snap.message) + "\n")
	case notice != "":
		b.WriteString("  " + noticeStyle.Render(notice) + "\n")
	}
	b.WriteString("\n  " + helpStyle.Render(playbackHelp(snap.controls)) + "\n")
	return b.String()
}
