package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Category is the presentation class of a session. It never affects decoding.
type Category string

const (
	CategoryLecture   Category = "lecture"
	CategorySeminar   Category = "seminar"
	CategoryPractical Category = "practical"
	CategoryOther     Category = "other"
)

// CSSClass returns the stylesheet class used by the week page for c.
func (c Category) CSSClass() string {
	switch c {
	case CategoryLecture:
		return "accent-blue-gradient"
	case CategorySeminar:
		return "accent-cyan-gradient"
	case CategoryPractical:
		return "accent-green-gradient"
	default:
		return "accent-orange-gradient"
	}
}

// sessionNamespace scopes the name-based UUIDs returned by Session.Key.
var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rozklad/session"))

// Session is one decoded, contiguous class occurrence for a group on a date.
//
// Sessions are produced by a single decode pass and are immutable afterwards.
// They have no identity of their own; Key is derived from content only.
type Session struct {
	// Date is the calendar date at midnight UTC.
	Date time.Time `json:"date"`
	// DayName is the weekday label (Polish for the time-range format,
	// whatever the sheet provides for the slot grid).
	DayName string `json:"day"`
	Group   int    `json:"group"`
	Subject string `json:"subject"`

	StartMinutes    int `json:"start_minutes"`
	DurationMinutes int `json:"duration_minutes"`
	// SpacingBefore is the idle time since the previous session of the same
	// (date, group) ended, floored at zero.
	SpacingBefore int `json:"spacing_before"`

	Category Category `json:"category"`
	// Color is the resolved RRGGBB cell fill. Only the time-range format sets it.
	Color string `json:"color,omitempty"`
}

// EndMinutes returns StartMinutes + DurationMinutes.
func (s Session) EndMinutes() int {
	return s.StartMinutes + s.DurationMinutes
}

// StartClock formats the start as HH:MM.
func (s Session) StartClock() string {
	return FormatClock(s.StartMinutes)
}

// EndClock formats the end as HH:MM.
func (s Session) EndClock() string {
	return FormatClock(s.EndMinutes())
}

// StartTime returns the absolute start in loc.
func (s Session) StartTime(loc *time.Location) time.Time {
	return atMinutes(s.Date, s.StartMinutes, loc)
}

// EndTime returns the absolute end in loc.
func (s Session) EndTime(loc *time.Location) time.Time {
	return atMinutes(s.Date, s.EndMinutes(), loc)
}

// Key is a stable hex identifier derived from date, group, start and subject.
// It is used as iCalendar UID and Google Calendar event id (base32hex-safe).
func (s Session) Key() string {
	name := s.Date.Format("2006-01-02") + "|" + strconv.Itoa(s.Group) + "|" +
		strconv.Itoa(s.StartMinutes) + "|" + strconv.Itoa(s.DurationMinutes) + "|" + s.Subject
	id := uuid.NewSHA1(sessionNamespace, []byte(name))
	return fmt.Sprintf("%x", id[:])
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock parses "H:MM" / "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("model: invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func atMinutes(date time.Time, minutes int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minutes, 0, 0, loc)
}

var polishWeekdays = [...]string{
	time.Monday:    "PONIEDZIAŁEK",
	time.Tuesday:   "WTOREK",
	time.Wednesday: "ŚRODA",
	time.Thursday:  "CZWARTEK",
	time.Friday:    "PIĄTEK",
	time.Saturday:  "SOBOTA",
	time.Sunday:    "NIEDZIELA",
}

// PolishWeekday returns the upper-case Polish weekday label of t.
func PolishWeekday(t time.Time) string {
	return polishWeekdays[t.Weekday()]
}
