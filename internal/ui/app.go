package ui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/config"
	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/loop"
	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/player"
	"github.com/olivier-w/csvtv/internal/pointer"
	"github.com/olivier-w/csvtv/internal/resolve"
	"github.com/olivier-w/csvtv/internal/source"
	"github.com/olivier-w/csvtv/internal/webpage"
)

type screen int

const (
	screenLoading screen = iota
	screenBrowse
	screenSetup
	screenPlayback
	screenPage
)

const noticeTTL = 5 * time.Second

// Runner executes blocking work off the program goroutine.
type Runner interface {
	Go(task func()) error
}

// LocatorSettings is the persisted source locator.
type LocatorSettings interface {
	SourceLocator() (string, bool, error)
	SetSourceLocator(locator string) error
	Clear() error
}

// Deps are the services the terminal host drives.
type Deps struct {
	Context   context.Context
	Config    config.Config
	Loader    *source.Loader
	Setup     *source.Setup
	Settings  LocatorSettings
	Router    *resolve.Router
	Scheduler loop.Scheduler
	Pool      Runner
	// NewEngine creates the media engine for one playback screen.
	NewEngine func() StreamEngine
	// PageClient fetches pages for the page screen.
	PageClient *http.Client
}

// App is the root model: channel browser, setup, playback and page
// screens. Controllers and the pointer engine run on the Scheduler; the
// program receives their updates through Attach.
type App struct {
	deps   Deps
	out    *sender
	logger zerolog.Logger

	screen   screen
	loading  loadingModel
	browser  BrowserModel
	setup    SetupModel
	playback *playbackModel
	page     *pageModel

	result     source.Result
	stored     string // locator saved before setup started
	storedOK   bool
	routing    bool
	watching   string
	stopWatch  context.CancelFunc
	notice     string
	noticeTime time.Time
	width      int
	height     int
	quitting   bool
}

// NewApp validates deps and returns the root model.
func NewApp(deps Deps) (App, error) {
	if deps.Loader == nil || deps.Setup == nil || deps.Settings == nil || deps.Router == nil {
		return App{}, errors.New("ui: loader, setup, settings and router are required")
	}
	if deps.Scheduler == nil || deps.Pool == nil || deps.NewEngine == nil {
		return App{}, errors.New("ui: scheduler, pool and engine factory are required")
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}
	if deps.PageClient == nil {
		deps.PageClient = http.DefaultClient
	}
	return App{
		deps:    deps,
		out:     &sender{},
		logger:  log.WithComponent("ui"),
		loading: newLoading(deps.Loader.Locator()),
	}, nil
}

// Attach connects the app to the running program. Call it with
// (*tea.Program).Send before Run.
func (a App) Attach(send func(tea.Msg)) {
	a.out.attach(send)
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.loading.Init(), a.load(), tickCmd())
}

// background runs work on the pool and delivers its message to the program.
func (a App) background(work func() tea.Msg) tea.Cmd {
	pool, out := a.deps.Pool, a.out
	return func() tea.Msg {
		if err := pool.Go(func() { out.Send(work()) }); err != nil {
			return noticeMsg{text: err.Error()}
		}
		return nil
	}
}

func (a App) load() tea.Cmd {
	loader, ctx := a.deps.Loader, a.deps.Context
	return a.background(func() tea.Msg {
		return channelsLoadedMsg{result: loader.Load(ctx)}
	})
}

func (a App) fetchPage(url string) tea.Cmd {
	ctx, client := a.deps.Context, a.deps.PageClient
	ua := a.deps.Config.Resolver.UserAgent
	cols := a.page.cols()
	return a.background(func() tea.Msg {
		doc, err := webpage.Fetch(ctx, client, ua, url, cols)
		return pageFetchedMsg{url: url, doc: doc, err: err}
	})
}

func (a *App) setNotice(text string) {
	a.notice = text
	a.noticeTime = time.Now()
}

// watch follows a file:// channel list and reloads when it changes.
func (a *App) watch(locator string) {
	if !a.deps.Config.Source.Watch || source.KindOf(locator) != source.KindFile || locator == a.watching {
		return
	}
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	ctx, cancel := context.WithCancel(a.deps.Context)
	out := a.out
	if err := source.Watch(ctx, locator, func() { out.Send(sourceChangedMsg{}) }); err != nil {
		cancel()
		a.logger.Warn().Err(err).Str(log.FieldLocator, locator).Msg("watching channel list failed")
		return
	}
	a.watching = locator
	a.stopWatch = cancel
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.loading, _ = a.loading.Update(msg)
		a.browser, _ = a.browser.Update(msg)
		if a.playback != nil {
			a.playback.Update(msg)
		}
		if a.page != nil {
			a.page.Update(msg)
		}
		return a, nil

	case tickMsg:
		if a.notice != "" && time.Since(a.noticeTime) > noticeTTL {
			a.notice = ""
		}
		if a.playback != nil && a.screen == screenPlayback {
			a.playback.Update(msg)
		}
		return a, tickCmd()

	case refreshMsg:
		return a, nil

	case noticeMsg:
		a.setNotice(msg.text)
		return a, nil

	case spinner.TickMsg:
		var cmds []tea.Cmd
		var cmd tea.Cmd
		a.loading, cmd = a.loading.Update(msg)
		cmds = append(cmds, cmd)
		if a.playback != nil {
			cmds = append(cmds, a.playback.Update(msg))
		}
		if a.page != nil {
			cmds = append(cmds, a.page.Update(msg))
		}
		return a, tea.Batch(cmds...)

	case channelsLoadedMsg:
		return a.channelsLoaded(msg.result)

	case sourceChangedMsg:
		a.logger.Info().Str(log.FieldLocator, a.watching).Msg("channel list changed, reloading")
		return a, a.load()

	case SettingsSelectedMsg:
		return a.startSetup()

	case SetupSubmittedMsg:
		setup, ctx := a.deps.Setup, a.deps.Context
		input, current := msg.Input, a.stored
		return a, a.background(func() tea.Msg {
			outcome, err := setup.Apply(ctx, input, current)
			return setupDoneMsg{outcome: outcome, err: err}
		})

	case SetupCancelledMsg:
		if a.storedOK {
			if err := a.deps.Settings.SetSourceLocator(a.stored); err != nil {
				a.setNotice("Could not restore settings: " + err.Error())
			}
		}
		a.screen = screenBrowse
		return a, a.browser.Init()

	case setupDoneMsg:
		if msg.err != nil {
			a.setup.busy = false
			a.setNotice(msg.err.Error())
			return a, nil
		}
		a.logger.Info().
			Str(log.FieldLocator, log.SafeURL(msg.outcome.Locator)).
			Bool("valid", msg.outcome.Valid).
			Int(log.FieldCount, msg.outcome.Channels).
			Msg("channel source saved")
		a.setNotice(msg.outcome.Message)
		a.screen = screenLoading
		a.loading = newLoading(msg.outcome.Locator)
		return a, tea.Batch(a.loading.Init(), a.load())

	case ChannelSelectedMsg:
		return a.route(msg.Channel, msg.Channel.URL, false)

	case BrowserCancelledMsg:
		return a.quit()

	case routedMsg:
		return a.routed(msg)

	case pageNavigateMsg:
		if a.screen != screenPage || a.page == nil {
			return a, nil
		}
		cmd := a.page.load(msg.url)
		model, routeCmd := a.route(a.page.channel, msg.url, true)
		return model, tea.Batch(cmd, routeCmd)

	case pageFetchedMsg:
		if a.page != nil {
			if msg.err != nil {
				a.logger.Warn().Err(msg.err).Str(log.FieldURL, log.SafeURL(msg.url)).Msg("page fetch failed")
			}
			a.page.fetched(msg)
		}
		return a, nil

	case backMsg:
		return a.back(msg.from)

	case fadeMsg, fadeFrameMsg, frameTickMsg:
		if a.playback != nil {
			return a, a.playback.Update(msg)
		}
		return a, nil
	}

	return a.updateScreen(msg)
}

func (a App) updateScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.screen {
	case screenBrowse:
		a.browser, cmd = a.browser.Update(msg)
	case screenSetup:
		a.setup, cmd = a.setup.Update(msg)
	}
	return a, cmd
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a.quit()
	}
	switch a.screen {
	case screenLoading:
		if isQuit(msg) {
			return a.quit()
		}
		return a, nil

	case screenPlayback:
		switch {
		case isQuit(msg):
			return a.quit()
		case isBack(msg):
			return a.back(screenPlayback)
		}
		return a, a.playback.Update(msg)

	case screenPage:
		if isQuit(msg) {
			return a.quit()
		}
		return a, a.page.Update(msg)
	}
	return a.updateScreen(msg)
}

func (a App) channelsLoaded(res source.Result) (tea.Model, tea.Cmd) {
	a.result = res
	if res.Err != nil {
		switch res.Level {
		case source.LevelBundled:
			a.setNotice("Channel list failed to load, showing default channels")
		case source.LevelSettingsOnly:
			a.setNotice("No channel list could be loaded")
		}
	}
	a.watch(res.Locator)

	// A reload while another screen is showing only refreshes the list.
	a.browser = NewBrowser(res)
	if a.width > 0 {
		a.browser, _ = a.browser.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
	}
	if a.screen != screenLoading {
		return a, nil
	}
	a.screen = screenBrowse
	return a, a.browser.Init()
}

func (a App) startSetup() (tea.Model, tea.Cmd) {
	stored, ok, err := a.deps.Settings.SourceLocator()
	if err != nil {
		a.setNotice("Reading settings failed: " + err.Error())
		return a, nil
	}
	if err := a.deps.Settings.Clear(); err != nil {
		a.setNotice("Clearing settings failed: " + err.Error())
		return a, nil
	}
	a.stored, a.storedOK = stored, ok
	a.setup = NewSetup(stored)
	a.screen = screenSetup
	return a, a.setup.Init()
}

func (a App) route(ch media.Channel, url string, fromPage bool) (tea.Model, tea.Cmd) {
	if !fromPage {
		if a.routing {
			return a, nil
		}
		a.routing = true
		a.setNotice("Opening " + ch.Title + "...")
	}
	router, out := a.deps.Router, a.out
	a.deps.Scheduler.Post(func() {
		router.Route(url, func(d resolve.Destination) {
			out.Send(routedMsg{channel: ch, url: url, dest: d, fromPage: fromPage})
		})
	})
	return a, nil
}

func (a App) routed(msg routedMsg) (tea.Model, tea.Cmd) {
	d := msg.dest
	a.logger.Debug().
		Str(log.FieldURL, log.SafeURL(msg.url)).
		Stringer("destination", d.Kind).
		Msg("selection routed")

	if msg.fromPage {
		if a.screen != screenPage || a.page == nil || a.page.pending != msg.url {
			return a, nil
		}
		if d.Kind == resolve.DestinationStream {
			a.page.cancel()
			a.page.pause()
			ch := a.page.channel
			ch.URL = msg.url
			return a.openPlayback(ch, d, screenPage)
		}
		a.page.pending = d.URL
		return a, a.fetchPage(d.URL)
	}

	if !a.routing || a.screen != screenBrowse {
		return a, nil
	}
	a.routing = false
	a.notice = ""
	if d.Kind == resolve.DestinationStream {
		return a.openPlayback(msg.channel, d, screenBrowse)
	}
	return a.openPage(msg.channel, d)
}

func (a App) openPlayback(ch media.Channel, d resolve.Destination, returnTo screen) (tea.Model, tea.Cmd) {
	pm, err := newPlaybackModel(ch, d.URL, d.ContentType, a.deps.NewEngine(), a.deps.Scheduler, a.out, PlayerOptions(a.deps.Config.Playback))
	if err != nil {
		a.setNotice("Cannot play " + ch.Title + ": " + err.Error())
		return a, nil
	}
	pm.returnTo = returnTo
	pm.width, pm.height = a.width, a.height
	a.playback = pm
	a.screen = screenPlayback
	return a, pm.start()
}

func (a App) openPage(ch media.Channel, d resolve.Destination) (tea.Model, tea.Cmd) {
	pm, err := newPageModel(ch, a.deps.Scheduler, a.out, pointerConfig(a.deps.Config.Pointer))
	if err != nil {
		a.setNotice("Cannot open " + ch.Title + ": " + err.Error())
		return a, nil
	}
	pm.resize(a.width, a.height)
	if d.Err != nil {
		a.logger.Info().Err(d.Err).Str(log.FieldURL, log.SafeURL(d.URL)).Msg("resolution failed, opening as page")
	}
	a.page = pm
	a.screen = screenPage
	return a, tea.Batch(pm.load(d.URL), a.fetchPage(d.URL))
}

// back leaves the screen from; requests from a screen no longer showing
// are ignored.
func (a App) back(from screen) (tea.Model, tea.Cmd) {
	if from != a.screen {
		return a, nil
	}
	switch from {
	case screenPlayback:
		returnTo := a.playback.returnTo
		a.playback.close()
		a.playback = nil
		if returnTo == screenPage && a.page != nil {
			a.screen = screenPage
			a.page.resume()
			return a, tea.SetWindowTitle("csvtv — " + a.page.channel.Title)
		}
	case screenPage:
		a.page.close()
		a.page = nil
	default:
		return a, nil
	}
	a.screen = screenBrowse
	return a, a.browser.Init()
}

func (a App) quit() (tea.Model, tea.Cmd) {
	if a.playback != nil {
		a.playback.close()
		a.playback = nil
	}
	if a.page != nil {
		a.page.close()
		a.page = nil
	}
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	a.quitting = true
	return a, tea.Sequence(tea.SetWindowTitle(""), tea.Quit)
}

func (a App) View() string {
	if a.quitting {
		return ""
	}
	switch a.screen {
	case screenLoading:
		return a.loading.View() + a.noticeView()
	case screenSetup:
		return a.setup.View() + a.noticeView()
	case screenPlayback:
		return a.playback.View(a.notice)
	case screenPage:
		return a.page.View(a.notice)
	}
	return a.browser.View() + "\n" + a.noticeView() + "  " + helpStyle.Render(browseHelp())
}

func (a App) noticeView() string {
	if a.notice == "" {
		return ""
	}
	return "  " + noticeStyle.Render(a.notice) + "\n"
}

// PlayerOptions converts the playback config into controller options.
func PlayerOptions(c config.PlaybackConfig) player.Options {
	network := player.DefaultNetwork()
	network.UserAgent = c.UserAgent
	network.ConnectTimeout = c.ConnectTimeout
	network.ReadTimeout = c.ReadTimeout
	return player.Options{
		Buffer: player.BufferConfig{
			MinBuffer:                      c.MinBuffer,
			MaxBuffer:                      c.MaxBuffer,
			BufferForPlayback:              c.BufferForPlayback,
			BufferForPlaybackAfterRebuffer: c.BufferForPlaybackAfterRebuffer,
		},
		Network:      network,
		MaxRetries:   c.MaxRetries,
		RetryDelay:   c.RetryDelay,
		ExitDelay:    c.ExitDelay,
		FadeDuration: c.FadeDuration,
	}
}

func pointerConfig(c config.PointerConfig) pointer.Config {
	cfg := pointer.DefaultConfig()
	cfg.Step = float64(c.Step)
	cfg.ScrollThreshold = float64(c.ScrollThreshold)
	if c.HideDelay > 0 {
		cfg.HideDelay = c.HideDelay
	}
	if c.GeometryDebounce > 0 {
		cfg.GeometryDebounce = c.GeometryDebounce
	}
	cfg.HoverRetries = c.HoverRetries
	if c.HoverRetryDelay > 0 {
		cfg.HoverRetryDelay = c.HoverRetryDelay
	}
	if c.ContentHeightSlack > 0 {
		cfg.HeightSlack = c.ContentHeightSlack
	}
	return cfg
}
