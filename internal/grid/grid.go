// Package grid holds the in-memory spreadsheet snapshot handed to the decoders:
// typed cell values, merge rectangles and per-cell fill colours.
package grid

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the type of a cell value.
type Kind int

const (
	Empty Kind = iota
	Text
	Number
	Date
)

// Cell is a single typed cell value. The zero Cell is empty.
type Cell struct {
	Kind   Kind
	Text   string
	Number float64
	Time   time.Time
}

// TextCell returns a Text cell, or an Empty cell when s is blank.
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: Text, Text: s}
}

// NumberCell returns a Number cell.
func NumberCell(n float64) Cell {
	return Cell{Kind: Number, Number: n}
}

// DateCell returns a Date cell truncated to the calendar day.
func DateCell(t time.Time) Cell {
	return Cell{Kind: Date, Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// IsEmpty reports whether the cell carries no value. Absent cells and
// whitespace-only strings are both empty.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case Empty:
		return true
	case Text:
		return strings.TrimSpace(c.Text) == ""
	default:
		return false
	}
}

// String renders the value as text.
func (c Cell) String() string {
	switch c.Kind {
	case Text:
		return c.Text
	case Number:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case Date:
		return c.Time.Format("2006-01-02")
	default:
		return ""
	}
}

// Int returns the cell as an integer when it holds one (a whole number, or
// text that parses as one).
func (c Cell) Int() (int, bool) {
	switch c.Kind {
	case Number:
		if c.Number != math.Trunc(c.Number) {
			return 0, false
		}
		return int(c.Number), true
	case Text:
		s := strings.TrimSpace(c.Text)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	}
	return 0, false
}

// Rect is a merged range. Coordinates are 1-based and inclusive, as the
// spreadsheet reports them.
type Rect struct {
	MinRow, MinCol int
	MaxRow, MaxCol int
}

// Contains reports whether the 0-based (row, col) lies inside r.
func (r Rect) Contains(row, col int) bool {
	return row+1 >= r.MinRow && row+1 <= r.MaxRow && col+1 >= r.MinCol && col+1 <= r.MaxCol
}

// TopLeft returns the 0-based coordinates of the cell that owns the range.
func (r Rect) TopLeft() (row, col int) {
	return r.MinRow - 1, r.MinCol - 1
}

// Grid is a rectangular snapshot of one worksheet. Rows and columns are
// 0-based. Fills maps a cell to its RRGGBB fill colour, if any.
type Grid struct {
	cells  [][]Cell
	cols   int
	Merges []Rect
	Fills  map[[2]int]string
}

// New returns an empty grid of the given size.
func New(rows, cols int) *Grid {
	g := &Grid{
		cells: make([][]Cell, rows),
		cols:  cols,
		Fills: make(map[[2]int]string),
	}
	for i := range g.cells {
		g.cells[i] = make([]Cell, cols)
	}
	return g
}

// Rows returns the number of rows.
func (g *Grid) Rows() int { return len(g.cells) }

// Cols returns the number of columns.
func (g *Grid) Cols() int { return g.cols }

// At returns the cell at (row, col). Out-of-range coordinates yield an empty cell.
func (g *Grid) At(row, col int) Cell {
	if row < 0 || row >= len(g.cells) || col < 0 || col >= g.cols {
		return Cell{}
	}
	return g.cells[row][col]
}

// Set stores v at (row, col), growing the grid when needed.
func (g *Grid) Set(row, col int, v Cell) {
	if row < 0 || col < 0 {
		return
	}
	g.grow(row+1, col+1)
	g.cells[row][col] = v
}

// SetText is a shorthand for Set(row, col, TextCell(s)).
func (g *Grid) SetText(row, col int, s string) {
	g.Set(row, col, TextCell(s))
}

// Fill returns the fill colour stored for (row, col).
func (g *Grid) Fill(row, col int) (string, bool) {
	c, ok := g.Fills[[2]int{row, col}]
	return c, ok
}

// SetFill records the fill colour of (row, col).
func (g *Grid) SetFill(row, col int, rgb string) {
	if g.Fills == nil {
		g.Fills = make(map[[2]int]string)
	}
	g.Fills[[2]int{row, col}] = rgb
}

// MergeAt returns the merge rectangle covering (row, col), if any. When
// rectangles overlap the last one wins, matching Resolve.
func (g *Grid) MergeAt(row, col int) (Rect, bool) {
	for i := len(g.Merges) - 1; i >= 0; i-- {
		if g.Merges[i].Contains(row, col) {
			return g.Merges[i], true
		}
	}
	return Rect{}, false
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	out := New(g.Rows(), g.Cols())
	for r := range g.cells {
		copy(out.cells[r], g.cells[r])
	}
	out.Merges = append([]Rect(nil), g.Merges...)
	for k, v := range g.Fills {
		out.Fills[k] = v
	}
	return out
}

// Grow extends the grid to at least rows x cols. It never shrinks.
func (g *Grid) Grow(rows, cols int) {
	g.grow(rows, cols)
}

func (g *Grid) grow(rows, cols int) {
	if cols > g.cols {
		for i := range g.cells {
			row := make([]Cell, cols)
			copy(row, g.cells[i])
			g.cells[i] = row
		}
		g.cols = cols
	}
	for len(g.cells) < rows {
		g.cells = append(g.cells, make([]Cell, g.cols))
	}
}
