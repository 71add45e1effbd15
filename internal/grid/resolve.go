package grid

import "strings"

// Resolve returns a copy of g in which every cell covered by a merge
// rectangle carries the value and fill of the rectangle's top-left cell.
//
// An empty top-left value is propagated as empty. Rectangles are applied in
// order, so on overlap the last one wins. The copy grows to cover every
// rectangle, so a merge reaching past the last filled cell is kept whole.
func Resolve(g *Grid) *Grid {
	out := g.Clone()
	for _, m := range g.Merges {
		if m.MinRow < 1 || m.MinCol < 1 {
			continue
		}
		out.grow(m.MaxRow, m.MaxCol)
		tr, tc := m.TopLeft()
		// Read from the already-resolved output so chained merges agree with
		// the last-applied rule.
		v := out.At(tr, tc)
		fill, hasFill := out.Fill(tr, tc)
		for r := m.MinRow - 1; r < m.MaxRow; r++ {
			for c := m.MinCol - 1; c < m.MaxCol; c++ {
				out.cells[r][c] = v
				if hasFill {
					out.Fills[[2]int{r, c}] = fill
				} else {
					delete(out.Fills, [2]int{r, c})
				}
			}
		}
	}
	return out
}

// ResolveColor returns the fill of (row, col), reading it from the owning
// merge's top-left cell when the cell is merged. Unknown fills and pure
// black fall back to def: spreadsheet tools report an unset fill as black.
func ResolveColor(g *Grid, row, col int, def string) string {
	if m, ok := g.MergeAt(row, col); ok {
		row, col = m.TopLeft()
	}
	c, ok := g.Fill(row, col)
	if !ok {
		return def
	}
	c = NormalizeRGB(c)
	if c == "" || c == "000000" {
		return def
	}
	return c
}

// NormalizeRGB turns "#rrggbb", "rrggbb" or ARGB "AARRGGBB" into upper-case
// "RRGGBB". Anything else yields "".
func NormalizeRGB(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 8 {
		s = s[2:]
	}
	if len(s) != 6 {
		return ""
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return ""
		}
	}
	return strings.ToUpper(s)
}
