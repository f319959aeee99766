package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// SetupSubmittedMsg carries the raw setup input. Blank input selects the
// default channel list.
type SetupSubmittedMsg struct {
	Input string
}

// SetupCancelledMsg returns to the browser without changing the source.
type SetupCancelledMsg struct{}

// SetupModel asks for a sheet id, sheet link or channel list location.
type SetupModel struct {
	input   textinput.Model
	current string
	busy    bool
}

// NewSetup creates the setup screen. current is the locator in use.
func NewSetup(current string) SetupModel {
	ti := textinput.New()
	ti.Placeholder = "sheet id, https://..., file://..."
	ti.CharLimit = 2048
	ti.Width = 60
	ti.Focus()
	return SetupModel{input: ti, current: current}
}

func (m SetupModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.SetWindowTitle("csvtv — setup"))
}

func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			input := strings.TrimSpace(m.input.Value())
			return m, func() tea.Msg { return SetupSubmittedMsg{Input: input} }
		case "esc":
			if m.busy {
				return m, nil
			}
			return m, func() tea.Msg { return SetupCancelledMsg{} }
		case "ctrl+c":
			return m, func() tea.Msg { return BrowserCancelledMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m SetupModel) View() string {
	s := "\n"
	s += "  " + headerStyle.Render("csvtv setup") + "\n"
	s += "\n"
	s += "  " + statusStyle.Render("Channel list (Google Sheets id or link, URL or file):") + "\n"
	s += "  " + m.input.View() + "\n"
	if m.current != "" {
		s += "  " + helpStyle.Render("current: "+m.current) + "\n"
	}
	s += "\n"
	if m.busy {
		s += "  " + statusStyle.Render("Checking channel list...") + "\n"
	} else {
		s += "  " + helpStyle.Render("enter confirm (blank = default list)  esc back  ctrl+c quit") + "\n"
	}
	return s
}
