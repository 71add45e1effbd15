package decode

import (
	"time"

	"rozklad/internal/classify"
	"rozklad/internal/grid"
	"rozklad/internal/model"
)

// SlotGridOptions describes the fixed-slot layout. Columns are 0-based.
type SlotGridOptions struct {
	DayColumn   int
	DateColumn  int
	GroupColumn int
	// StartColumn is the first slot column; it starts at FirstSlot.
	StartColumn int
	// FirstSlot and Baseline are minutes since midnight.
	FirstSlot   int
	SlotMinutes int
	Baseline    int

	// ValidateGroups restricts group numbers to [MinGroup, MaxGroup].
	ValidateGroups bool
	MinGroup       int
	MaxGroup       int

	DateLayouts []string
}

// DefaultSlotGridOptions matches the published layout: slots from column G at
// 07:00, groups 1..23.
func DefaultSlotGridOptions() SlotGridOptions {
	return SlotGridOptions{
		DayColumn:      0,
		DateColumn:     1,
		GroupColumn:    2,
		StartColumn:    6,
		FirstSlot:      7 * 60,
		SlotMinutes:    15,
		Baseline:       7 * 60,
		ValidateGroups: true,
		MinGroup:       1,
		MaxGroup:       23,
		DateLayouts:    DefaultDateLayouts,
	}
}

// SlotGrid decodes the fixed-slot layout.
type SlotGrid struct {
	opts SlotGridOptions
}

// NewSlotGrid returns a SlotGrid decoder. A non-positive SlotMinutes falls back to 15.
func NewSlotGrid(opts SlotGridOptions) *SlotGrid {
	if opts.SlotMinutes <= 0 {
		opts.SlotMinutes = 15
	}
	if len(opts.DateLayouts) == 0 {
		opts.DateLayouts = DefaultDateLayouts
	}
	return &SlotGrid{opts: opts}
}

// slotRow is a sheet row that passed date and group filtering.
type slotRow struct {
	index int
	date  time.Time
	group int
	day   string
}

// dayRows holds the rows of one date, groups in order of first appearance.
type dayRows struct {
	date   time.Time
	day    string
	groups []int
	rows   map[int][]slotRow
}

// Decode implements Decoder.
func (d *SlotGrid) Decode(raw *grid.Grid) (Result, error) {
	g := grid.Resolve(raw)

	days := d.selectRows(g)
	if len(days) == 0 {
		return Result{}, ErrNoRows
	}

	var res Result
	gaps := newGapTracker(d.opts.Baseline)
	for _, day := range days {
		for _, group := range day.groups {
			key := keyOf(day.date, group)
			for _, row := range day.rows[group] {
				emit := func(sp span) {
					res.Sessions = append(res.Sessions, model.Session{
						Date:            day.date,
						DayName:         day.day,
						Group:           group,
						Subject:         sp.subject,
						StartMinutes:    sp.start,
						DurationMinutes: sp.duration,
						SpacingBefore:   gaps.close(key, sp.start, sp.duration),
						Category:        classify.Subject(sp.subject),
					})
				}
				d.scanRow(g, row.index, emit)
			}
		}
	}
	return res, nil
}

// scanRow runs the contiguous-run state machine over the slot columns of one row.
func (d *SlotGrid) scanRow(g *grid.Grid, row int, emit func(span)) {
	var state runState
	for col := d.opts.StartColumn; col < g.Cols(); col++ {
		slotStart := d.opts.FirstSlot + (col-d.opts.StartColumn)*d.opts.SlotMinutes
		label := ""
		if c := g.At(row, col); !c.IsEmpty() {
			label = normalizeLabel(c.String())
		}
		next, closed, ok := state.step(label, slotStart, d.opts.SlotMinutes)
		if ok {
			emit(closed)
		}
		state = next
	}
	if last, ok := state.flush(); ok {
		emit(last)
	}
}

// selectRows keeps rows with a parseable date and an accepted group number,
// ordered by first appearance of the date, then of the group.
func (d *SlotGrid) selectRows(g *grid.Grid) []*dayRows {
	var out []*dayRows
	byDate := make(map[string]*dayRows)

	for r := 0; r < g.Rows(); r++ {
		date, ok := cellDate(g.At(r, d.opts.DateColumn), d.opts.DateLayouts)
		if !ok {
			continue
		}
		group, ok := g.At(r, d.opts.GroupColumn).Int()
		if !ok {
			continue
		}
		if d.opts.ValidateGroups && (group < d.opts.MinGroup || group > d.opts.MaxGroup) {
			continue
		}

		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		k := date.Format("2006-01-02")
		day, ok := byDate[k]
		if !ok {
			label := normalizeLabel(g.At(r, d.opts.DayColumn).String())
			if label == "" {
				label = model.PolishWeekday(date)
			}
			day = &dayRows{date: date, day: label, rows: make(map[int][]slotRow)}
			byDate[k] = day
			out = append(out, day)
		}
		if _, seen := day.rows[group]; !seen {
			day.groups = append(day.groups, group)
		}
		day.rows[group] = append(day.rows[group], slotRow{index: r, date: date, group: group, day: day.day})
	}
	return out
}
