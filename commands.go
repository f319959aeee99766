package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/olivier-w/csvtv/internal/diag"
	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/player"
	"github.com/olivier-w/csvtv/internal/resolve"
	"github.com/olivier-w/csvtv/internal/source"
	"github.com/olivier-w/csvtv/internal/ui"
	"github.com/olivier-w/csvtv/internal/video"
)

// flushTimeout bounds how long shutdown waits for cleanup posted to the loop.
const flushTimeout = 2 * time.Second

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "csvtv [locator]",
		Short: "Browse and play a CSV or M3U channel list in the terminal",
		Long: "csvtv loads a channel list from a Google Sheets id, an http(s) URL or a file:// path,\n" +
			"groups it by groupName and plays the selected stream or opens it as a page.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			override := ""
			if len(args) == 1 {
				override = locatorArg(args[0])
			}
			return runBrowse(cmd.Context(), opts, override)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configDir, "config", "", "directory holding config.yaml and settings.yaml")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFile, "log-file", "", `log destination, "-" for stderr`)
	flags.StringVar(&opts.diagAddr, "diag-addr", "", "serve /metrics, /healthz and /channels on this address")

	root.AddCommand(
		newSetupCmd(opts),
		newResolveCmd(opts),
		newPlayCmd(opts),
		newChannelsCmd(opts),
	)
	return root
}

func runBrowse(parent context.Context, opts *rootOptions, override string) error {
	svc, err := newServices(opts, override)
	if err != nil {
		return err
	}
	defer svc.close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return svc.loop.Run(ctx) })
	if addr := svc.cfg.Diag.Addr; addr != "" {
		g.Go(func() error { return diag.New(addr, svc.loader.Last).Run(ctx) })
	}

	app, err := ui.NewApp(ui.Deps{
		Context:   ctx,
		Config:    svc.cfg,
		Loader:    svc.loader,
		Setup:     svc.setup,
		Settings:  svc.settings,
		Router:    svc.router,
		Scheduler: svc.loop,
		Pool:      svc.pool,
		NewEngine: func() ui.StreamEngine {
			return svc.newEngine(video.Available())
		},
		PageClient: resolve.NewLenientClient(svc.cfg.Source.Timeout),
	})
	if err != nil {
		return err
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	app.Attach(p.Send)

	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		flush(svc.loop)
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// fileLocator turns a path to an existing file into a file:// locator and
// returns anything else unchanged.
func fileLocator(arg string) string {
	if _, err := os.Stat(arg); err != nil {
		return arg
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return arg
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func locatorArg(arg string) string {
	return source.ResolveSetupInput(fileLocator(arg), "")
}

// flush waits until callbacks already posted to the loop have run.
func flush(l interface{ Post(func()) }) {
	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(flushTimeout):
	}
}

func newSetupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup [input]",
		Short: "Validate and save the channel list source",
		Long: "setup accepts a Google Sheets id or link, an http(s) URL, a file:// URL or a local path.\n" +
			"Without input the default channel list is selected.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices(opts, "")
			if err != nil {
				return err
			}
			defer svc.close()

			input := ""
			if len(args) == 1 {
				input = fileLocator(args[0])
			}
			current, _, err := svc.settings.SourceLocator()
			if err != nil {
				return err
			}
			outcome, err := svc.setup.Apply(cmd.Context(), input, current)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
			if !outcome.Valid {
				return errors.New("channel list is invalid, the default list was saved")
			}
			return nil
		},
	}
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Show where a channel URL would open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices(opts, "")
			if err != nil {
				return err
			}
			defer svc.close()

			t, err := svc.resolver.Resolve(cmd.Context(), args[0])
			printDestination(cmd.OutOrStdout(), resolve.Decide(args[0], t, err))
			return nil
		},
	}
}

func printDestination(w io.Writer, d resolve.Destination) {
	fmt.Fprintf(w, "destination:  %s\n", d.Kind)
	fmt.Fprintf(w, "url:          %s\n", d.URL)
	if d.ContentType != "" {
		fmt.Fprintf(w, "content type: %s\n", d.ContentType)
	}
	if d.Playlist != resolve.PlaylistNone {
		fmt.Fprintf(w, "playlist:     %s\n", d.Playlist)
	}
	if d.Err != nil {
		fmt.Fprintf(w, "error:        %v\n", d.Err)
	}
}

func newChannelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "channels [locator]",
		Short: "Print the channel list grouped by row",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override := ""
			if len(args) == 1 {
				override = locatorArg(args[0])
			}
			svc, err := newServices(opts, override)
			if err != nil {
				return err
			}
			defer svc.close()

			res := svc.loader.Load(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), channelTable(res))
			if res.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (%s list shown)\n", res.Err, res.Level)
			}
			return nil
		},
	}
}

func channelTable(res source.Result) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("GROUP", "TITLE", "URL")
	for _, row := range res.Rows {
		if row.IsSettings() {
			continue
		}
		for _, c := range row.Channels {
			if source.IsPlaceholder(c) {
				t.Row(row.Header, "-", "")
				continue
			}
			t.Row(row.Header, c.Title, log.SafeURL(c.URL))
		}
	}
	return t.Render()
}

func newPlayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play <url>",
		Short: "Play a stream without the browser, reporting state changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices(opts, "")
			if err != nil {
				return err
			}
			defer svc.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, svc, args[0], cmd.OutOrStdout())
		},
	}
}

// consoleView reports what the playback screen would show.
type consoleView struct {
	w      io.Writer
	cancel context.CancelFunc

	mu   sync.Mutex
	last string
}

func (v *consoleView) print(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if line == v.last {
		return
	}
	v.last = line
	fmt.Fprintln(v.w, line)
}

func (v *consoleView) SetLoadingVisible(visible bool) {
	if visible {
		v.print("loading...")
	}
}

func (v *consoleView) SetSurfaceVisible(bool) {}

func (v *consoleView) SetErrorText(text string) {
	if text != "" {
		v.print(text)
	}
}

func (v *consoleView) SetControlsEnabled(bool) {}

func (v *consoleView) CrossFade(time.Duration) {
	v.print("playing")
}

func (v *consoleView) Back() {
	v.cancel()
}

func runPlay(parent context.Context, svc *services, raw string, w io.Writer) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.loop.Run(ctx) })

	view := &consoleView{w: w, cancel: cancel}
	opts := ui.PlayerOptions(svc.cfg.Playback)
	opts.Engine = svc.newEngine(false)
	opts.View = view
	opts.Navigator = view
	opts.Scheduler = svc.loop
	ctrl, err := player.NewController(opts)
	if err != nil {
		return err
	}

	// failed is only touched on the loop goroutine.
	var failed error
	svc.router.Route(raw, func(d resolve.Destination) {
		if d.Kind != resolve.DestinationStream {
			failed = fmt.Errorf("%s is not a stream (opens as a page)", raw)
			cancel()
			return
		}
		ctrl.Subscribe(func(n player.Notification) {
			switch n.State {
			case player.StateFailed:
				failed = n.Err
			case player.StateReady:
				failed = nil
			case player.StateEnded:
				view.print("ended")
				cancel()
			}
		})
		if err := ctrl.Play(d.URL, d.ContentType); err != nil {
			failed = err
			cancel()
		}
	})

	<-ctx.Done()
	released := make(chan struct{})
	svc.loop.Post(func() {
		ctrl.Release()
		close(released)
	})
	select {
	case <-released:
	case <-time.After(flushTimeout):
	}
	svc.loop.Close()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return failed
}
