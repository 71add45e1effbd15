package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"rozklad/internal/model"
)

// Category colours follow the week page accents.
var (
	colorLecture   = color.New(color.FgBlue, color.Bold)
	colorSeminar   = color.New(color.FgCyan)
	colorPractical = color.New(color.FgGreen)
	colorOther     = color.New(color.FgYellow)
	colorMuted     = color.New(color.FgWhite, color.Faint)
)

// DisableColor disables all color output.
func DisableColor() {
	color.NoColor = true
}

// pad fills s with spaces to width display cells.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func formatCategory(c model.Category, width int) string {
	s := pad(string(c), width)
	switch c {
	case model.CategoryLecture:
		return colorLecture.Sprint(s)
	case model.CategorySeminar:
		return colorSeminar.Sprint(s)
	case model.CategoryPractical:
		return colorPractical.Sprint(s)
	default:
		return colorOther.Sprint(s)
	}
}

func formatMuted(s string) string {
	return colorMuted.Sprint(s)
}

// textWidth returns the display cells left on a terminal line after used
// cells, or 0 when w is not a terminal or too narrow to bother.
func textWidth(w io.Writer, used int) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width-used < 16 {
		return 0
	}
	return width - used
}

// fit truncates s to width display cells. A width of 0 keeps s whole.
func fit(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
