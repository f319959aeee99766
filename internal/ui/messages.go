package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/resolve"
	"github.com/olivier-w/csvtv/internal/source"
	"github.com/olivier-w/csvtv/internal/webpage"
)

type tickMsg time.Time

// refreshMsg asks for a redraw after state owned by the loop changed.
type refreshMsg struct{}

type channelsLoadedMsg struct {
	result source.Result
}

// sourceChangedMsg reports that a watched channel list file was written.
type sourceChangedMsg struct{}

type setupDoneMsg struct {
	outcome source.SetupOutcome
	err     error
}

// routedMsg is a resolved selection. fromPage marks a link followed
// inside a page rather than a channel chosen in the browser.
type routedMsg struct {
	channel  media.Channel
	url      string
	dest     resolve.Destination
	fromPage bool
}

type pageFetchedMsg struct {
	url string
	doc *webpage.Document
	err error
}

// pageNavigateMsg is a link followed from inside a page.
type pageNavigateMsg struct {
	url string
}

// backMsg leaves the playback or page screen.
type backMsg struct {
	from screen
}

type noticeMsg struct {
	text string
}

// fadeMsg starts the cross-fade from the loading indicator to the picture.
type fadeMsg struct {
	d time.Duration
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
