package decode

import (
	"time"

	"rozklad/internal/classify"
	"rozklad/internal/grid"
	"rozklad/internal/model"
)

// TextRangeOptions describes the free-text layout.
type TextRangeOptions struct {
	// GroupColumn holds the group number of each group row.
	GroupColumn int
	// Baseline is the "previous end" of the first session of a (date, group),
	// in minutes since midnight.
	Baseline int
	// DefaultColor is used when a cell has no usable fill.
	DefaultColor string
	DateLayouts  []string
}

// DefaultTextRangeOptions returns the layout defaults: groups in column A,
// baseline 06:30, white fallback colour.
func DefaultTextRangeOptions() TextRangeOptions {
	return TextRangeOptions{
		GroupColumn:  0,
		Baseline:     6*60 + 30,
		DefaultColor: "FFFFFF",
		DateLayouts:  DefaultDateLayouts,
	}
}

// TextRange decodes the free-text layout.
type TextRange struct {
	opts TextRangeOptions
}

// NewTextRange returns a TextRange decoder.
func NewTextRange(opts TextRangeOptions) *TextRange {
	if opts.DefaultColor == "" {
		opts.DefaultColor = "FFFFFF"
	}
	if len(opts.DateLayouts) == 0 {
		opts.DateLayouts = DefaultDateLayouts
	}
	return &TextRange{opts: opts}
}

// Decode implements Decoder.
func (d *TextRange) Decode(raw *grid.Grid) (Result, error) {
	g := grid.Resolve(raw)

	firstGroupRow := d.findFirstGroupRow(g)
	if firstGroupRow < 0 {
		return Result{}, ErrNoGroupRow
	}
	dates, dateCol := d.dateColumns(g, firstGroupRow)
	if dateCol < 0 {
		return Result{}, ErrNoDateHeader
	}

	var res Result
	gaps := newGapTracker(d.opts.Baseline)
	for r := firstGroupRow; r < g.Rows(); r++ {
		group, ok := g.At(r, d.opts.GroupColumn).Int()
		if !ok {
			continue
		}
		for c := dateCol; c < g.Cols(); c++ {
			cell := g.At(r, c)
			if cell.IsEmpty() || c == d.opts.GroupColumn {
				continue
			}
			if d.continuesMerge(g, dates, dateCol, r, c) {
				continue
			}
			if cell.Kind != grid.Text {
				res.Skipped = append(res.Skipped, Skip{Row: r, Col: c, Text: cell.String(), Reason: "not a text cell"})
				continue
			}

			text := normalizeLabel(cell.String())
			startTok, endTok, ok := ExtractTimes(text)
			if !ok {
				res.Skipped = append(res.Skipped, Skip{Row: r, Col: c, Text: text, Reason: "fewer than two time tokens"})
				continue
			}
			start, err1 := model.ParseClock(startTok)
			end, err2 := model.ParseClock(endTok)
			if err1 != nil || err2 != nil {
				res.Skipped = append(res.Skipped, Skip{Row: r, Col: c, Text: text, Reason: "time out of range"})
				continue
			}
			duration := end - start
			if duration < 0 {
				res.Skipped = append(res.Skipped, Skip{Row: r, Col: c, Text: text, Reason: "end before start"})
				continue
			}

			date := dates[c]
			res.Sessions = append(res.Sessions, model.Session{
				Date:            date,
				DayName:         model.PolishWeekday(date),
				Group:           group,
				Subject:         text,
				StartMinutes:    start,
				DurationMinutes: duration,
				SpacingBefore:   gaps.close(keyOf(date, group), start, duration),
				Category:        classify.Subject(text),
				Color:           grid.ResolveColor(g, r, c, d.opts.DefaultColor),
			})
		}
	}
	return res, nil
}

func (d *TextRange) findFirstGroupRow(g *grid.Grid) int {
	for r := 0; r < g.Rows(); r++ {
		if _, ok := g.At(r, d.opts.GroupColumn).Int(); ok {
			return r
		}
	}
	return -1
}

// dateColumns finds the header row nearest above the first group row that
// holds a date, and forward-fills its dates to the right. It returns the date
// of every column from the first date column on, and that column (-1 if none).
func (d *TextRange) dateColumns(g *grid.Grid, firstGroupRow int) ([]time.Time, int) {
	for r := firstGroupRow - 1; r >= 0; r-- {
		first := -1
		for c := 0; c < g.Cols(); c++ {
			if c == d.opts.GroupColumn {
				continue
			}
			if _, ok := cellDate(g.At(r, c), d.opts.DateLayouts); ok {
				first = c
				break
			}
		}
		if first < 0 {
			continue
		}

		dates := make([]time.Time, g.Cols())
		var cur time.Time
		for c := first; c < g.Cols(); c++ {
			if t, ok := cellDate(g.At(r, c), d.opts.DateLayouts); ok {
				cur = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
			dates[c] = cur
		}
		return dates, first
	}
	return nil, -1
}

// continuesMerge reports whether (r, c) is a later column of a merged cell
// already seen in this row for the same date. Merged cells spanning several
// columns of one date are a single session.
func (d *TextRange) continuesMerge(g *grid.Grid, dates []time.Time, dateCol, r, c int) bool {
	m, ok := g.MergeAt(r, c)
	if !ok {
		return false
	}
	_, tc := m.TopLeft()
	prev := c - 1
	return prev >= tc && prev >= dateCol && sameDay(dates[prev], dates[c])
}
