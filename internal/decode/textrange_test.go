package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rozklad/internal/grid"
	"rozklad/internal/model"
)

func TestExtractTimes(t *testing.T) {
	tests := []struct {
		text       string
		start, end string
		ok         bool
	}{
		{"Seminarium 8-9.30", "08:00", "09:30", true},
		{"wykład 13:15 do 15:00", "13:15", "15:00", true},
		{"Anatomia 8.00-10.15 sala 2", "08:00", "10:15", true},
		{"12-14", "12:00", "14:00", true},
		{"sala 5", "", "", false},
		{"Pediatria", "", "", false},
		{"rok 2024", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			start, end, ok := ExtractTimes(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

var (
	monday  = time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)
	tuesday = time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC)
)

// textSheet lays out two dates: Monday in B..C, Tuesday in D..F.
func textSheet() *grid.Grid {
	g := grid.New(5, 6)
	g.SetText(0, 0, "Plan zajęć")
	g.SetText(1, 0, "Grupa")
	g.Set(1, 1, grid.DateCell(monday))
	g.Set(1, 3, grid.DateCell(tuesday))

	g.Set(2, 0, grid.NumberCell(1))
	g.SetText(2, 1, "Seminarium 8-9.30")
	g.SetText(2, 2, "wykład\n13:15   do 15:00")
	g.SetText(2, 3, "Fizjologia w1 10:00-12:00")
	g.SetFill(2, 3, "FFFF0000")
	g.SetText(2, 4, "Anatomia 9-8")

	g.SetText(3, 0, "2")
	g.SetText(3, 1, "sala 5")
	g.SetText(3, 4, "Chirurgia sem 12-14")
	g.SetFill(3, 4, "000000")

	g.SetText(4, 0, "uwagi")
	g.SetText(4, 1, "Ćwiczenia 8-10")

	g.Merges = []grid.Rect{
		// D3:D4, one lecture for both groups.
		{MinRow: 3, MinCol: 4, MaxRow: 4, MaxCol: 4},
		// E4:F4, one seminar over two Tuesday columns.
		{MinRow: 4, MinCol: 5, MaxRow: 4, MaxCol: 6},
	}
	return g
}

func TestTextRangeDecode(t *testing.T) {
	res, err := NewTextRange(DefaultTextRangeOptions()).Decode(textSheet())
	require.NoError(t, err)

	type row struct {
		date    time.Time
		group   int
		start   string
		dur     int
		spacing int
		cat     model.Category
		color   string
	}
	want := []row{
		{monday, 1, "08:00", 90, 90, model.CategorySeminar, "FFFFFF"},
		{monday, 1, "13:15", 105, 225, model.CategoryLecture, "FFFFFF"},
		{tuesday, 1, "10:00", 120, 210, model.CategoryLecture, "FF0000"},
		{tuesday, 2, "10:00", 120, 210, model.CategoryLecture, "FF0000"},
		{tuesday, 2, "12:00", 120, 0, model.CategorySeminar, "FFFFFF"},
	}
	require.Len(t, res.Sessions, len(want))
	for i, w := range want {
		got := res.Sessions[i]
		assert.Equal(t, w.date, got.Date, "session %d", i)
		assert.Equal(t, w.group, got.Group, "session %d", i)
		assert.Equal(t, w.start, got.StartClock(), "session %d", i)
		assert.Equal(t, w.dur, got.DurationMinutes, "session %d", i)
		assert.Equal(t, w.spacing, got.SpacingBefore, "session %d", i)
		assert.Equal(t, w.cat, got.Category, "session %d", i)
		assert.Equal(t, w.color, got.Color, "session %d", i)
	}

	assert.Equal(t, "PONIEDZIAŁEK", res.Sessions[0].DayName)
	assert.Equal(t, "WTOREK", res.Sessions[2].DayName)
	assert.Equal(t, "wykład 13:15 do 15:00", res.Sessions[1].Subject)

	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "end before start", res.Skipped[0].Reason)
	assert.Equal(t, 4, res.Skipped[0].Col)
	assert.Equal(t, "fewer than two time tokens", res.Skipped[1].Reason)
	assert.Equal(t, "sala 5", res.Skipped[1].Text)
}

func TestTextRangeNeverEmitsNegativeDuration(t *testing.T) {
	res, err := NewTextRange(DefaultTextRangeOptions()).Decode(textSheet())
	require.NoError(t, err)

	for _, s := range res.Sessions {
		assert.GreaterOrEqual(t, s.DurationMinutes, 0)
		assert.GreaterOrEqual(t, s.SpacingBefore, 0)
	}
}

func TestTextRangeTextDateHeader(t *testing.T) {
	g := grid.New(2, 3)
	g.SetText(0, 1, "03.12.2024")
	g.SetText(1, 0, "4")
	g.SetText(1, 1, "Interna 7:00-7:45")
	g.SetText(1, 2, "Interna 9-10")

	res, err := NewTextRange(DefaultTextRangeOptions()).Decode(g)
	require.NoError(t, err)

	require.Len(t, res.Sessions, 2)
	assert.Equal(t, tuesday, res.Sessions[1].Date, "column C inherits the date of B")
	assert.Equal(t, 30, res.Sessions[0].SpacingBefore)
	assert.Equal(t, 75, res.Sessions[1].SpacingBefore)
}

func TestTextRangeMissingAnchors(t *testing.T) {
	t.Run("no group row", func(t *testing.T) {
		g := grid.New(2, 2)
		g.Set(0, 1, grid.DateCell(monday))
		g.SetText(1, 0, "Grupa A")
		g.SetText(1, 1, "Seminarium 8-9")

		res, err := NewTextRange(DefaultTextRangeOptions()).Decode(g)
		assert.ErrorIs(t, err, ErrNoGroupRow)
		assert.Empty(t, res.Sessions)
	})

	t.Run("no date header", func(t *testing.T) {
		g := grid.New(2, 2)
		g.SetText(0, 1, "Poniedziałek")
		g.Set(1, 0, grid.NumberCell(1))
		g.SetText(1, 1, "Seminarium 8-9")

		res, err := NewTextRange(DefaultTextRangeOptions()).Decode(g)
		assert.ErrorIs(t, err, ErrNoDateHeader)
		assert.Empty(t, res.Sessions)
	})
}

func TestTextRangeBaselineIsConfigurable(t *testing.T) {
	g := grid.New(2, 2)
	g.Set(0, 1, grid.DateCell(monday))
	g.Set(1, 0, grid.NumberCell(1))
	g.SetText(1, 1, "Seminarium 8-9")

	opts := DefaultTextRangeOptions()
	opts.Baseline = 7 * 60
	opts.DefaultColor = "EEEEEE"
	res, err := NewTextRange(opts).Decode(g)
	require.NoError(t, err)

	require.Len(t, res.Sessions, 1)
	assert.Equal(t, 60, res.Sessions[0].SpacingBefore)
	assert.Equal(t, "EEEEEE", res.Sessions[0].Color)
}

func TestTextRangeSkipsNonTextCells(t *testing.T) {
	g := grid.New(2, 4)
	g.Set(0, 1, grid.DateCell(monday))
	g.Set(1, 0, grid.NumberCell(1))
	g.Set(1, 1, grid.DateCell(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	g.Set(1, 2, grid.NumberCell(8.3))
	g.SetText(1, 3, "Seminarium 8-9")

	res, err := NewTextRange(DefaultTextRangeOptions()).Decode(g)
	require.NoError(t, err)

	require.Len(t, res.Sessions, 1, "a date or number in the body is not a time range")
	assert.Equal(t, "Seminarium 8-9", res.Sessions[0].Subject)
	require.Len(t, res.Skipped, 2)
	for _, s := range res.Skipped {
		assert.Equal(t, "not a text cell", s.Reason)
	}
}
