package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/olivier-w/csvtv/internal/media"
	"github.com/olivier-w/csvtv/internal/source"
)

// ChannelSelectedMsg is sent when a playable entry is chosen.
type ChannelSelectedMsg struct {
	Channel media.Channel
}

// SettingsSelectedMsg is sent when the settings entry is chosen.
type SettingsSelectedMsg struct{}

// BrowserCancelledMsg is sent when the user quits from the browser.
type BrowserCancelledMsg struct{}

// browserChrome is the rows below the list for the notice and help.
const browserChrome = 3

type channelItem struct {
	channel media.Channel
	group   string
}

func (i channelItem) Title() string { return i.channel.Title }

func (i channelItem) Description() string {
	switch {
	case i.channel.IsSettings():
		return "change the channel list source"
	case source.IsPlaceholder(i.channel):
		return i.group
	}
	return i.group + " · " + i.channel.URL
}

func (i channelItem) FilterValue() string { return i.group + " " + i.channel.Title }

// BrowserModel lists the channel rows, one entry per channel, grouped in
// row order.
type BrowserModel struct {
	list  list.Model
	level source.Level
	err   error
}

// NewBrowser builds the browser for a load result.
func NewBrowser(res source.Result) BrowserModel {
	var items []list.Item
	for _, row := range res.Rows {
		for _, c := range row.Channels {
			items = append(items, channelItem{channel: c, group: row.Header})
		}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#FFFFFF"}).
		BorderLeftForeground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}).
		BorderLeftForeground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	l := list.New(items, delegate, 80, 20)
	l.Title = browserTitle(res)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.SetStatusBarItemName("channel", "channels")
	l.Styles.Title = headerStyle

	return BrowserModel{list: l, level: res.Level, err: res.Err}
}

func browserTitle(res source.Result) string {
	switch res.Level {
	case source.LevelBundled:
		return "csvtv · default channels"
	case source.LevelSettingsOnly:
		return "csvtv · no channels"
	}
	return fmt.Sprintf("csvtv · %d channels", len(res.Channels))
}

// Len returns the number of entries, including placeholders and settings.
func (m BrowserModel) Len() int {
	return len(m.list.Items())
}

// Filtering reports whether the filter input has focus.
func (m BrowserModel) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m BrowserModel) Init() tea.Cmd {
	return tea.SetWindowTitle("csvtv")
}

func (m BrowserModel) Update(msg tea.Msg) (BrowserModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Filtering() {
			break
		}

		switch msg.String() {
		case "enter":
			item, ok := m.list.SelectedItem().(channelItem)
			if !ok {
				return m, nil
			}
			switch {
			case item.channel.IsSettings():
				return m, func() tea.Msg { return SettingsSelectedMsg{} }
			case source.IsPlaceholder(item.channel):
				return m, nil
			}
			c := item.channel
			return m, func() tea.Msg { return ChannelSelectedMsg{Channel: c} }
		case "s":
			return m, func() tea.Msg { return SettingsSelectedMsg{} }
		case "q", "ctrl+c":
			return m, func() tea.Msg { return BrowserCancelledMsg{} }
		}

	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - browserChrome)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m BrowserModel) View() string {
	return m.list.View()
}
