package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// wrapText breaks each paragraph of text at spaces so no line is wider
// than width cells, then styles the lines. Words longer than width are
// split.
func wrapText(text string, width int, style lipgloss.Style) string {
	paragraphs := strings.Split(text, "\n")
	for i, p := range paragraphs {
		lines := []string{p}
		if width > 0 {
			lines = wrapParagraph(p, width)
		}
		for j, line := range lines {
			lines[j] = style.Render(line)
		}
		paragraphs[i] = strings.Join(lines, "\n")
	}
	return strings.Join(paragraphs, "\n")
}

func wrapParagraph(p string, width int) []string {
	var lines []string
	var line strings.Builder
	lineWidth := 0
	flush := func() {
		lines = append(lines, line.String())
		line.Reset()
		lineWidth = 0
	}
	for _, word := range strings.Split(p, " ") {
		for _, chunk := range splitWord(word, width) {
			w := runewidth.StringWidth(chunk)
			if lineWidth > 0 && lineWidth+1+w > width {
				flush()
			}
			if lineWidth > 0 {
				line.WriteByte(' ')
				lineWidth++
			}
			line.WriteString(chunk)
			lineWidth += w
		}
	}
	flush()
	return lines
}

// splitWord cuts word into pieces of at most width cells.
func splitWord(word string, width int) []string {
	if runewidth.StringWidth(word) <= width {
		return []string{word}
	}
	var parts []string
	var part strings.Builder
	partWidth := 0
	for _, r := range word {
		rw := runewidth.RuneWidth(r)
		if partWidth > 0 && partWidth+rw > width {
			parts = append(parts, part.String())
			part.Reset()
			partWidth = 0
		}
		part.WriteRune(r)
		partWidth += rw
	}
	return append(parts, part.String())
}
