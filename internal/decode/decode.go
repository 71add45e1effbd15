// Package decode recovers class sessions from a timetable spreadsheet grid.
//
// Two layouts are supported, each by its own Decoder:
//
//   - SlotGrid: one row per (day, group), one column per fixed-length slot.
//     Runs of identical labels become one session.
//   - TextRange: one row per group, one or more columns per date, each
//     occupied cell holding a label with an embedded "start-end" time range.
//
// Decoders are pure: all scan state lives in the Decode call, so concurrent
// calls on different grids are safe.
package decode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rozklad/internal/grid"
	"rozklad/internal/model"
)

var (
	// ErrNoRows is returned when a slot grid has no row with a valid date and group.
	ErrNoRows = errors.New("decode: no rows with a valid date and group")
	// ErrNoGroupRow is returned when no group number is found in the group column.
	ErrNoGroupRow = errors.New("decode: no group row found")
	// ErrNoDateHeader is returned when no date-typed header cell precedes the group rows.
	ErrNoDateHeader = errors.New("decode: no date header found")
)

// Decoder turns a raw worksheet grid into sessions.
//
// Decode resolves merged ranges itself. A missing structural anchor aborts
// the pass with an empty Result and one of the Err* sentinels; malformed
// cells are skipped and reported in Result.Skipped.
type Decoder interface {
	Decode(g *grid.Grid) (Result, error)
}

// Result is the output of one decode pass.
type Result struct {
	// Sessions are in the order they were closed during the scan.
	Sessions []model.Session
	Skipped  []Skip
}

// Skip describes a cell that could not be decoded.
type Skip struct {
	Row, Col int
	Text     string
	Reason   string
}

func (s Skip) String() string {
	return fmt.Sprintf("(%d,%d) %q: %s", s.Row, s.Col, s.Text, s.Reason)
}

// DefaultDateLayouts are tried, in order, on text cells that should hold a date.
var DefaultDateLayouts = []string{"02/01/2006", "2/1/2006", "02.01.2006", "2.01.2006", "2006-01-02"}

// normalizeLabel collapses line breaks and whitespace runs to single spaces.
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cellDate returns the calendar date held by c, either as a typed date or as
// text in one of layouts.
func cellDate(c grid.Cell, layouts []string) (time.Time, bool) {
	switch c.Kind {
	case grid.Date:
		return c.Time, true
	case grid.Text:
		s := strings.TrimSpace(c.Text)
		for _, l := range layouts {
			if t, err := time.Parse(l, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
