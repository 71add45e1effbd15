// Package xlsx loads one worksheet of an .xlsx workbook into a grid.Grid.
package xlsx

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rozklad/internal/grid"
)

// Options selects the worksheet to load.
type Options struct {
	// Sheet is the worksheet name. Empty means the active sheet.
	Sheet string
}

// Load reads a workbook from r and returns the selected sheet as a grid.
func Load(r io.Reader, opts Options) (*grid.Grid, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()
	return fromFile(f, opts)
}

// LoadFile is Load for a file on disk.
func LoadFile(path string, opts Options) (*grid.Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %s: %w", path, err)
	}
	defer f.Close()
	return fromFile(f, opts)
}

func fromFile(f *excelize.File, opts Options) (*grid.Grid, error) {
	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, fmt.Errorf("xlsx: workbook has no sheets")
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("xlsx: read sheet %q: %w", sheet, err)
	}

	l := &loader{f: f, sheet: sheet, date1904: uses1904(f), styles: make(map[int]styleInfo)}

	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	g := grid.New(len(rows), cols)

	for r, row := range rows {
		for c, raw := range row {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("xlsx: cell name (%d,%d): %w", r, c, err)
			}
			cell, fill := l.cell(name, raw)
			g.Set(r, c, cell)
			if fill != "" {
				g.SetFill(r, c, fill)
			}
		}
	}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: merges of %q: %w", sheet, err)
	}
	for _, m := range merges {
		rect, err := toRect(m.GetStartAxis(), m.GetEndAxis())
		if err != nil {
			return nil, fmt.Errorf("xlsx: merge %s:%s: %w", m.GetStartAxis(), m.GetEndAxis(), err)
		}
		g.Merges = append(g.Merges, rect)
		g.Grow(rect.MaxRow, rect.MaxCol)

		// The top-left of a merge may carry a fill without a value.
		tr, tc := rect.TopLeft()
		if _, ok := g.Fill(tr, tc); ok {
			continue
		}
		if _, fill := l.style(m.GetStartAxis()); fill != "" {
			g.SetFill(tr, tc, fill)
		}
	}
	return g, nil
}

type styleInfo struct {
	date bool
	fill string
}

type loader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]styleInfo
}

func (l *loader) cell(name, raw string) (grid.Cell, string) {
	isDate, fill := l.style(name)

	typ, _ := l.f.GetCellType(l.sheet, name)
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return grid.TextCell(raw), fill
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return grid.DateCell(t), fill
		}
		return grid.TextCell(raw), fill
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return grid.TextCell(raw), fill
	}
	if isDate {
		if t, err := excelize.ExcelDateToTime(n, l.date1904); err == nil {
			return grid.DateCell(t), fill
		}
	}
	return grid.NumberCell(n), fill
}

// style reports whether the cell uses a date number format and its fill colour.
func (l *loader) style(name string) (bool, string) {
	idx, err := l.f.GetCellStyle(l.sheet, name)
	if err != nil || idx == 0 {
		return false, ""
	}
	if s, ok := l.styles[idx]; ok {
		return s.date, s.fill
	}

	var info styleInfo
	if st, err := l.f.GetStyle(idx); err == nil && st != nil {
		info.date = isDateFormat(st.NumFmt, st.CustomNumFmt)
		info.fill = fillColor(st.Fill)
	}
	l.styles[idx] = info
	return info.date, info.fill
}

func fillColor(fl excelize.Fill) string {
	if len(fl.Color) == 0 {
		return ""
	}
	switch fl.Type {
	case "pattern":
		if fl.Pattern == 0 {
			return ""
		}
	case "gradient":
	default:
		return ""
	}
	return grid.NormalizeRGB(fl.Color[0])
}

// isDateFormat reports whether a number format renders a calendar date.
func isDateFormat(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		return isDateCode(*custom)
	}
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateCode reports whether a custom format code has day, month or year
// tokens outside quoted literals and bracketed sections.
func isDateCode(code string) bool {
	var b strings.Builder
	quoted, bracket := false, false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	return strings.Contains(s, "yy") || strings.Contains(s, "d") && strings.Contains(s, "m")
}

func toRect(start, end string) (grid.Rect, error) {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return grid.Rect{}, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return grid.Rect{}, err
	}
	return grid.Rect{
		MinRow: min(r1, r2),
		MinCol: min(c1, c2),
		MaxRow: max(r1, r2),
		MaxCol: max(c1, c2),
	}, nil
}

func uses1904(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}
