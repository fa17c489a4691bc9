package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

// PlotOptions size a plot. Zero width fits the terminal.
type PlotOptions struct {
	Width  int
	Height int
	Color  bool // force colour even when w is not a terminal
}

const (
	defaultPlotHeight = 10
	minPlotWidth      = 10
	labelWidth        = 8
	axisSeparator     = " │ "
	colorReset        = "\x1b[0m"
	fallbackWidth     = 80
	brailleBase       = 0x2800
)

var palette = []struct{ name, code string }{
	{"cyan", "\x1b[36m"},
	{"magenta", "\x1b[35m"},
	{"yellow", "\x1b[33m"},
	{"green", "\x1b[32m"},
	{"blue", "\x1b[34m"},
}

// PlotSeries renders the series as braille line charts on one shared
// value axis.
func PlotSeries(w io.Writer, title string, series []Series, opts PlotOptions) error {
	series = nonEmpty(series)
	if len(series) == 0 {
		return nil
	}
	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}
	width := opts.Width
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	if width < minPlotWidth {
		width = minPlotWidth
	}

	lo, hi := seriesRange(series)
	canvases := make([]canvas, len(series))
	for i, s := range series {
		canvases[i] = newCanvas(width, height)
		canvases[i].plot(s.Values, lo, hi)
	}
	useColor := shouldUseColor(w, opts.Color)

	var b strings.Builder
	if title != "" {
		b.WriteString(title + "\n")
	}
	for row := 0; row < height; row++ {
		b.WriteString(fmt.Sprintf("%*s%s", labelWidth, axisLabel(row, height, lo, hi), axisSeparator))
		for col := 0; col < width; col++ {
			var mask uint8
			owner := -1
			for i, c := range canvases {
				if m := c.cells[row][col]; m != 0 {
					mask |= m
					if owner < 0 {
						owner = i
					}
				}
			}
			ch := rune(brailleBase + int(mask))
			if useColor && owner >= 0 {
				b.WriteString(palette[owner%len(palette)].code)
				b.WriteRune(ch)
				b.WriteString(colorReset)
				continue
			}
			b.WriteRune(ch)
		}
		b.WriteByte('\n')
	}
	b.WriteString(legend(series, useColor))
	b.WriteString("\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// PlotWidthFor returns the plot width that fits next to the value axis.
func PlotWidthFor(totalWidth int) int {
	width := totalWidth - labelWidth - runewidth.StringWidth(axisSeparator)
	if width < minPlotWidth {
		return minPlotWidth
	}
	return width
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if force {
		return true
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func nonEmpty(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func seriesRange(series []Series) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		l, h := minMax(s.Values)
		lo = math.Min(lo, l)
		hi = math.Max(hi, h)
	}
	if hi-lo < 1e-9 {
		lo--
		hi++
	}
	return lo, hi
}

func axisLabel(row, height int, lo, hi float64) string {
	switch row {
	case 0:
		return fmt.Sprintf("%.2f", hi)
	case height - 1:
		return fmt.Sprintf("%.2f", lo)
	case (height - 1) / 2:
		return fmt.Sprintf("%.2f", (lo+hi)/2)
	}
	return ""
}

func legend(series []Series, useColor bool) string {
	parts := make([]string, 0, len(series))
	for i, s := range series {
		p := palette[i%len(palette)]
		if useColor {
			parts = append(parts, p.code+s.Name+colorReset)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Name, p.name))
	}
	return "Legend: " + strings.Join(parts, ", ")
}

// canvas holds braille cells; each cell is 2 dots wide and 4 dots high.
type canvas struct {
	cells [][]uint8
}

func newCanvas(width, height int) canvas {
	cells := make([][]uint8, height)
	for i := range cells {
		cells[i] = make([]uint8, width)
	}
	return canvas{cells: cells}
}

func (c canvas) plot(values []float64, lo, hi float64) {
	dotsX := len(c.cells[0]) * 2
	dotsY := len(c.cells) * 4
	prevX, prevY := -1, -1
	for i, v := range values {
		x := 0
		if len(values) > 1 {
			x = i * (dotsX - 1) / (len(values) - 1)
		}
		y := dotsY - 1 - int(math.Round((v-lo)/(hi-lo)*float64(dotsY-1)))
		y = clamp(y, 0, dotsY-1)
		if prevX < 0 {
			c.set(x, y)
		} else {
			line(prevX, prevY, x, y, c.set)
		}
		prevX, prevY = x, y
	}
}

func (c canvas) set(x, y int) {
	c.cells[y/4][x/2] |= dotBit(x%2, y%4)
}

// dotBit maps a dot inside a cell to its bit in the braille block.
func dotBit(x, y int) uint8 {
	if y == 3 {
		return 0x40 << x
	}
	return 1 << (x*3 + y)
}

func line(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
