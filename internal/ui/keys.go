package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/olivier-w/csvtv/internal/pointer"
)

func isQuit(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func isBack(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "esc", "backspace":
		return true
	}
	return false
}

// remoteKey maps a terminal key to the remote control key it stands for.
func remoteKey(msg tea.KeyMsg) pointer.Key {
	switch msg.String() {
	case "up", "k":
		return pointer.KeyUp
	case "down", "j":
		return pointer.KeyDown
	case "left", "h":
		return pointer.KeyLeft
	case "right", "l":
		return pointer.KeyRight
	case "enter":
		return pointer.KeyEnter
	case " ":
		return pointer.KeyCenter
	case "p":
		return pointer.KeyPlayPause
	case "esc", "backspace":
		return pointer.KeyBack
	}
	return pointer.KeyUnknown
}

func browseHelp() string {
	return "enter open  / filter  s setup  q quit"
}

func playbackHelp(controls bool) string {
	if !controls {
		return "esc back  q quit"
	}
	return "space pause  esc back  q quit"
}

func pageHelp(fullscreen bool) string {
	if fullscreen {
		return "enter play/pause  esc exit fullscreen  q quit"
	}
	return "arrows move  enter click  f fullscreen video  esc back  q quit"
}
