// Package ics renders sessions as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"rozklad/internal/model"
)

// Options controls the exported calendar.
type Options struct {
	// Name is shown by calendar clients (X-WR-CALNAME).
	Name string
	// Location interprets session clock times. Defaults to UTC.
	Location *time.Location
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export writes one VEVENT per session. The UID of each event is the
// session key, so re-exports of an unchanged timetable are stable.
func Export(w io.Writer, sessions []model.Session, opts Options) error {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//rozklad//course schedule//PL")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, s := range sessions {
		ev := cal.AddEvent(s.Key() + "@rozklad")
		ev.SetDtStampTime(now)
		ev.SetStartAt(s.StartTime(loc))
		ev.SetEndAt(s.EndTime(loc))
		ev.SetSummary(s.Subject)
		ev.SetDescription(fmt.Sprintf("Grupa %d, %s-%s", s.Group, s.StartClock(), s.EndClock()))
		ev.SetProperty(ical.ComponentPropertyCategories, string(s.Category))
		ev.SetProperty(ical.ComponentProperty("X-ROZKLAD-GROUP"), strconv.Itoa(s.Group))
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("ics: write: %w", err)
	}
	return nil
}
