package statsui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// fillWidth right-pads every line of s to width cells. Lines may carry
// ANSI styling, so widths come from lipgloss.
func fillWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	var b strings.Builder
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if gap := width - lipgloss.Width(line); gap > 0 {
			b.WriteString(strings.Repeat(" ", gap))
		}
	}
	return b.String()
}

// fitBox pads s to width and clips or extends it to exactly height lines.
func fitBox(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(fillWidth(s, width), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	blank := strings.Repeat(" ", width)
	for len(lines) < height {
		lines = append(lines, blank)
	}
	return strings.Join(lines, "\n")
}

// clip shortens plain text to width cells with a trailing ellipsis.
func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
