package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/olivier-w/csvtv/internal/log"
)

// loadingModel is shown while the channel list loads.
type loadingModel struct {
	locator string
	spinner spinner.Model
	width   int
}

func newLoading(locator string) loadingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})
	return loadingModel{locator: locator, spinner: s}
}

func (m loadingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.SetWindowTitle("csvtv"))
}

func (m loadingModel) Update(msg tea.Msg) (loadingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m loadingModel) View() string {
	w := m.width
	if w < 30 {
		w = 50
	}

	lines := "\n"
	lines += "  " + headerStyle.Render("csvtv") + "\n"
	lines += "\n"
	lines += "  " + m.spinner.View() + " " + statusStyle.Render("Loading channel list...") + "\n"
	if m.locator != "" {
		lines += "  " + helpStyle.Render(truncate(log.SafeURL(m.locator), w-4)) + "\n"
	}
	lines += "\n"
	return lines
}
