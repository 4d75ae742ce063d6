/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Seednode/golmi/view"
)

// CellHeight is how many canvas pixels one terminal row covers. Terminal
// cells are about twice as tall as wide, so a square block spans twice as
// many columns as rows.
const CellHeight = 2

const (
	runeHorizontal = '─'
	runeVertical   = '│'
	runeCross      = '┼'
	runeFalling    = '╲'
	runeRising     = '╱'
)

// Cell is one terminal character. A zero Cell is transparent.
type Cell struct {
	Rune rune
	FG   view.Color
	BG   view.Color
	Bold bool
}

// Canvas is a view.Surface over a grid of terminal cells. One pixel is one
// column wide and 1/CellHeight of a row tall.
type Canvas struct {
	cols, rows int
	cells      []Cell
}

var _ view.Surface = (*Canvas)(nil)

func NewCanvas(cols, rows int) *Canvas {
	return &Canvas{cols: cols, rows: rows, cells: make([]Cell, cols*rows)}
}

func (c *Canvas) Width() int  { return c.cols }
func (c *Canvas) Height() int { return c.rows * CellHeight }

func (c *Canvas) Cols() int { return c.cols }
func (c *Canvas) Rows() int { return c.rows }

// At returns the cell at col, row, or a zero Cell outside the canvas.
func (c *Canvas) At(col, row int) Cell {
	if col < 0 || row < 0 || col >= c.cols || row >= c.rows {
		return Cell{}
	}
	return c.cells[row*c.cols+col]
}

func (c *Canvas) Clear() {
	clear(c.cells)
}

// FillRect sets the background of every cell whose top-left corner lies in
// the rectangle. Outlines are left to the caller's grid and border lines.
func (c *Canvas) FillRect(x, y, w, h float64, fill view.Color, _ view.Stroke) {
	col0, row0 := c.cell(x, y)
	col1, row1 := c.cell(x+w, y+h)
	for row := max(row0, 0); row < min(row1, c.rows); row++ {
		for col := max(col0, 0); col < min(col1, c.cols); col++ {
			c.cells[row*c.cols+col].BG = fill
		}
	}
}

// Line rasterizes the segment with Bresenham's algorithm.
func (c *Canvas) Line(x1, y1, x2, y2 float64, stroke view.Stroke) {
	col0, row0 := c.cell(x1, y1)
	col1, row1 := c.cell(x2, y2)

	// lines on the far edge would fall just outside the canvas
	col0, col1 = min(col0, c.cols-1), min(col1, c.cols-1)
	row0, row1 = min(row0, c.rows-1), min(row1, c.rows-1)

	r := lineRune(x2-x1, y2-y1)

	dx := abs(col1 - col0)
	dy := -abs(row1 - row0)
	sx, sy := 1, 1
	if col0 > col1 {
		sx = -1
	}
	if row0 > row1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.plot(col0, row0, r, stroke)
		if col0 == col1 && row0 == row1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			col0 += sx
		}
		if e2 <= dx {
			e += dx
			row0 += sy
		}
	}
}

func (c *Canvas) plot(col, row int, r rune, stroke view.Stroke) {
	if col < 0 || row < 0 || col >= c.cols || row >= c.rows {
		return
	}
	cell := &c.cells[row*c.cols+col]
	switch {
	case cell.Rune == runeHorizontal && r == runeVertical,
		cell.Rune == runeVertical && r == runeHorizontal,
		cell.Rune == runeCross:
		r = runeCross
	case cell.Rune == runeFalling && r == runeRising,
		cell.Rune == runeRising && r == runeFalling:
		r = 'X'
	}
	cell.Rune = r
	cell.FG = stroke.Color
	cell.Bold = cell.Bold || stroke.Glow != ""
}

func (c *Canvas) cell(x, y float64) (int, int) {
	return int(math.Floor(x)), int(math.Floor(y / CellHeight))
}

func lineRune(dx, dy float64) rune {
	switch {
	case dy == 0:
		return runeHorizontal
	case dx == 0:
		return runeVertical
	case (dx > 0) == (dy > 0):
		return runeFalling
	default:
		return runeRising
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Flatten stacks canvases of equal size, first at the bottom. A cell takes
// its rune from the topmost layer that drew one and its background from the
// topmost layer that filled it.
func Flatten(layers ...*Canvas) []Cell {
	if len(layers) == 0 {
		return nil
	}
	out := make([]Cell, len(layers[0].cells))
	for _, l := range layers {
		for i, cell := range l.cells {
			if cell.BG != "" {
				out[i].BG = cell.BG
				// a fill hides lines drawn below it
				if cell.Rune == 0 {
					out[i].Rune = 0
					out[i].Bold = false
				}
			}
			if cell.Rune != 0 {
				out[i].Rune = cell.Rune
				out[i].FG = cell.FG
				out[i].Bold = cell.Bold
			}
		}
	}
	return out
}

// Compose renders stacked canvases as styled terminal lines.
func Compose(r *lipgloss.Renderer, layers ...*Canvas) string {
	if len(layers) == 0 {
		return ""
	}
	cols := layers[0].cols
	cells := Flatten(layers...)

	var b strings.Builder
	for row := 0; row < layers[0].rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		line := cells[row*cols : (row+1)*cols]
		// group runs of same-styled cells to keep the escape count down
		for start := 0; start < len(line); {
			end := start + 1
			for end < len(line) && sameStyle(line[start], line[end]) {
				end++
			}
			b.WriteString(style(r, line[start]).Render(runes(line[start:end])))
			start = end
		}
	}
	return b.String()
}

func sameStyle(a, b Cell) bool {
	return a.FG == b.FG && a.BG == b.BG && a.Bold == b.Bold
}

func runes(cells []Cell) string {
	var b strings.Builder
	for _, c := range cells {
		if c.Rune == 0 {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(c.Rune)
	}
	return b.String()
}

func style(r *lipgloss.Renderer, c Cell) lipgloss.Style {
	s := r.NewStyle()
	if c.FG != "" {
		s = s.Foreground(terminalColor(c.FG))
	}
	if c.BG != "" {
		s = s.Background(terminalColor(c.BG))
	}
	if c.Bold {
		s = s.Bold(true)
	}
	return s
}
