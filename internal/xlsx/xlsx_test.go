package xlsx

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rozklad/internal/decode"
	"rozklad/internal/grid"
)

// writeWorkbook builds a small text-range timetable and saves it under dir.
func writeWorkbook(t *testing.T, dir string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	require.NoError(t, err)
	custom := `dd"."mm"."yyyy`
	customStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	require.NoError(t, err)
	redFill, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FF0000"}},
	})
	require.NoError(t, err)

	require.NoError(t, f.SetCellValue(sheet, "A1", "Grupa"))
	// 45628 is 2024-12-02, 45629 is 2024-12-03.
	require.NoError(t, f.SetCellValue(sheet, "B1", 45628))
	require.NoError(t, f.SetCellStyle(sheet, "B1", "B1", dateStyle))
	require.NoError(t, f.SetCellValue(sheet, "D1", 45629))
	require.NoError(t, f.SetCellStyle(sheet, "D1", "D1", customStyle))

	require.NoError(t, f.SetCellValue(sheet, "A2", 1))
	require.NoError(t, f.SetCellValue(sheet, "B2", "Seminarium 8-9.30"))
	require.NoError(t, f.SetCellValue(sheet, "D2", "Fizjologia w1 10:00-12:00"))
	require.NoError(t, f.SetCellStyle(sheet, "D2", "D3", redFill))
	require.NoError(t, f.MergeCell(sheet, "D2", "D3"))

	require.NoError(t, f.SetCellValue(sheet, "A3", 2))
	require.NoError(t, f.SetCellValue(sheet, "E3", 12.5))

	path := filepath.Join(dir, "plan.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeWorkbook(t, t.TempDir())

	g, err := LoadFile(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, g.Rows())
	assert.Equal(t, 5, g.Cols())

	assert.Equal(t, grid.Text, g.At(0, 0).Kind)
	assert.Equal(t, "Grupa", g.At(0, 0).Text)

	b1 := g.At(0, 1)
	require.Equal(t, grid.Date, b1.Kind)
	assert.Equal(t, time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC), b1.Time)

	d1 := g.At(0, 3)
	require.Equal(t, grid.Date, d1.Kind, "custom day/month/year format is a date")
	assert.Equal(t, time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC), d1.Time)

	group, ok := g.At(1, 0).Int()
	require.True(t, ok)
	assert.Equal(t, 1, group)

	assert.Equal(t, grid.Number, g.At(2, 4).Kind)
	assert.InDelta(t, 12.5, g.At(2, 4).Number, 1e-9)

	assert.True(t, g.At(2, 3).IsEmpty(), "merge cover cells are not resolved by the loader")
	require.Len(t, g.Merges, 1)
	assert.Equal(t, grid.Rect{MinRow: 2, MinCol: 4, MaxRow: 3, MaxCol: 4}, g.Merges[0])

	fill, ok := g.Fill(1, 3)
	require.True(t, ok)
	assert.Equal(t, "FF0000", fill)
}

func TestLoadFeedsTextRangeDecoder(t *testing.T) {
	path := writeWorkbook(t, t.TempDir())
	g, err := LoadFile(path, Options{Sheet: "Sheet1"})
	require.NoError(t, err)

	res, err := decode.NewTextRange(decode.DefaultTextRangeOptions()).Decode(g)
	require.NoError(t, err)

	require.Len(t, res.Sessions, 3)
	assert.Equal(t, "08:00", res.Sessions[0].StartClock())
	assert.Equal(t, 2, res.Sessions[2].Group)
	assert.Equal(t, "FF0000", res.Sessions[2].Color)
	assert.Equal(t, "WTOREK", res.Sessions[2].DayName)
}

func TestLoadUnknownSheet(t *testing.T) {
	path := writeWorkbook(t, t.TempDir())

	_, err := LoadFile(path, Options{Sheet: "Nope"})
	assert.Error(t, err)
}

func TestIsDateCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"dd/mm/yyyy", true},
		{"d.m.yy", true},
		{`dd"."mm"."yyyy`, true},
		{"h:mm", false},
		{"0.00", false},
		{`"day" 0`, false},
		{"[Red]0.00", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isDateCode(tt.code), tt.code)
	}
}

func TestLoadMergePastLastFilledColumn(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	require.NoError(t, f.SetCellValue(sheet, "A1", "PONIEDZIAŁEK"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "02/12/2024"))
	require.NoError(t, f.SetCellValue(sheet, "C1", 7))
	require.NoError(t, f.SetCellValue(sheet, "G1", "Anatomia w1"))
	// Nothing is written right of G1; the merge alone reaches J1.
	require.NoError(t, f.MergeCell(sheet, "G1", "J1"))
	path := filepath.Join(t.TempDir(), "plan.xlsx")
	require.NoError(t, f.SaveAs(path))

	g, err := LoadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, g.Cols(), "the grid covers the whole merge")

	res, err := decode.NewSlotGrid(decode.DefaultSlotGridOptions()).Decode(g)
	require.NoError(t, err)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, "Anatomia w1", res.Sessions[0].Subject)
	assert.Equal(t, "07:00", res.Sessions[0].StartClock())
	assert.Equal(t, 60, res.Sessions[0].DurationMinutes)
}

func TestLoadGradientFillUsesStartColor(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	gradient, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "gradient", Color: []string{"00FF00", "0000FF"}, Shading: 0},
	})
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue(sheet, "A1", "Pediatria sem 8-10"))
	require.NoError(t, f.SetCellStyle(sheet, "A1", "A1", gradient))
	path := filepath.Join(t.TempDir(), "plan.xlsx")
	require.NoError(t, f.SaveAs(path))

	g, err := LoadFile(path, Options{})
	require.NoError(t, err)

	fill, ok := g.Fill(0, 0)
	require.True(t, ok)
	assert.Equal(t, "00FF00", fill)
}

func TestFillColor(t *testing.T) {
	tests := []struct {
		name string
		fill excelize.Fill
		want string
	}{
		{"solid pattern", excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFFF0000"}}, "FF0000"},
		{"pattern none", excelize.Fill{Type: "pattern", Pattern: 0, Color: []string{"FF0000"}}, ""},
		{"gradient start", excelize.Fill{Type: "gradient", Color: []string{"00FF00", "0000FF"}}, "00FF00"},
		{"no colour", excelize.Fill{Type: "gradient"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fillColor(tt.fill))
		})
	}
}
