// Package week groups sessions into Monday..Sunday windows.
package week

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"rozklad/internal/model"
)

// Day is one column of the week view.
type Day struct {
	Date     time.Time
	Name     string
	Sessions []model.Session
}

// Week holds 7 days starting from Monday. Dates are UTC calendar dates.
type Week struct {
	Start time.Time
	Days  [7]Day
}

// Of returns the week containing date, with no sessions.
func Of(date time.Time) (Week, error) {
	monday := startOfWeek(date)
	days, err := Dates(monday, len(Week{}.Days))
	if err != nil {
		return Week{}, err
	}
	w := Week{Start: monday}
	for i, d := range days {
		w.Days[i] = Day{Date: d, Name: model.PolishWeekday(d)}
	}
	return w, nil
}

// Dates enumerates n consecutive calendar days from start.
func Dates(start time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Count:   n,
		Dtstart: truncateToDay(start),
	})
	if err != nil {
		return nil, fmt.Errorf("week: daily rule from %s: %w", start.Format("2006-01-02"), err)
	}
	return r.All(), nil
}

// End returns the Sunday of the week.
func (w Week) End() time.Time {
	return w.Start.AddDate(0, 0, 6)
}

// Shift returns the week n weeks after w (before, for negative n).
func (w Week) Shift(n int) (Week, error) { return Of(w.Start.AddDate(0, 0, 7*n)) }

// Contains reports whether date falls within the week.
func (w Week) Contains(date time.Time) bool {
	d := truncateToDay(date)
	return !d.Before(w.Start) && !d.After(w.End())
}

// With distributes sessions to their days, keeping their order. Sessions
// outside the week are ignored. A day whose sessions carry a day label uses
// that label instead of the computed weekday name.
func (w Week) With(sessions []model.Session) Week {
	for i := range w.Days {
		w.Days[i].Sessions = nil
	}
	for _, s := range sessions {
		if !w.Contains(s.Date) {
			continue
		}
		i := int(truncateToDay(s.Date).Sub(w.Start).Hours() / 24)
		if len(w.Days[i].Sessions) == 0 && s.DayName != "" {
			w.Days[i].Name = s.DayName
		}
		w.Days[i].Sessions = append(w.Days[i].Sessions, s)
	}
	return w
}

// Count returns the number of sessions in the week.
func (w Week) Count() int {
	n := 0
	for _, d := range w.Days {
		n += len(d.Sessions)
	}
	return n
}

func startOfWeek(date time.Time) time.Time {
	d := truncateToDay(date)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// truncateToDay keeps the calendar date of t as a UTC midnight.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
