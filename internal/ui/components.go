package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/mattn/go-runewidth"
)

var (
	fadeFrom, _ = colorful.Hex("#303030")
	fadeTo, _   = colorful.Hex("#FFFFFF")
)

// fadeText renders s with its brightness scaled by alpha in [0, 1].
func fadeText(s string, alpha float64) string {
	if alpha <= 0 {
		return spaces(runewidth.StringWidth(s))
	}
	if alpha > 1 {
		alpha = 1
	}
	c := fadeFrom.BlendLab(fadeTo, alpha).Clamped()
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(c.Hex())).Render(s)
}

// statusLine places left and right at the edges of width columns.
func statusLine(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 2 {
		gap = 2
	}
	return left + spaces(gap) + right
}

func spaces(n int) string {
	if n < 0 {
		n = 0
	}
	return strings.Repeat(" ", n)
}

// truncate shortens s to width columns with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// padLines pads view with blank lines up to height.
func padLines(view string, height int) string {
	n := strings.Count(view, "\n") + 1
	if height <= n {
		return view
	}
	return view + strings.Repeat("\n", height-n)
}
