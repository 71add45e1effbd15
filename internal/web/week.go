package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	appLog "rozklad/internal/log"
	"rozklad/internal/model"
	"rozklad/internal/store"
	"rozklad/internal/week"
)

const dateLayout = "2006-01-02"

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("02.01.2006") },
}

type weekPage struct {
	Group  int
	Groups []int
	Start  string
	End    string
	Title  string
	Days   []dayView
	Count  int
	// Updated is the source's update date, empty before the first import.
	Updated string
	Error   string
}

type dayView struct {
	Date   time.Time
	Name   string
	Blocks []blockView
}

type blockView struct {
	Subject string
	Start   string
	End     string
	Class   string
	Style   template.CSS
}

// handleWeek renders the week view for one group.
//
//	GET  /?group=7&start=2024-12-02&week=-1
//	POST / with group, start and a previous_week or next_week button
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	group, wk, err := s.resolveWeek(r)
	if err != nil {
		appLog.Error("week page: resolve week failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build week")
		return
	}

	page := weekPage{
		Group: group,
		Start: wk.Start.Format(dateLayout),
		End:   wk.End().Format(dateLayout),
		Title: fmt.Sprintf("%s - %s", wk.Start.Format("02.01"), wk.End().Format("02.01.2006")),
	}

	sessions, err := s.store.ListSessions(ctx, store.Query{Group: group, From: wk.Start, To: wk.End()})
	if err != nil {
		appLog.Error("week page: list sessions failed", err, "group", group, "start", page.Start)
		page.Error = "Nie udało się wczytać planu."
	}
	wk = wk.With(sessions)
	page.Count = wk.Count()
	for _, d := range wk.Days {
		page.Days = append(page.Days, newDayView(d))
	}

	if groups, err := s.store.Groups(ctx); err != nil {
		appLog.Error("week page: list groups failed", err)
	} else {
		page.Groups = groups
	}
	if info, err := s.store.LastUpdate(ctx); err == nil {
		page.Updated = info.Date
	} else if !errors.Is(err, store.ErrNoUpdate) {
		appLog.Error("week page: last update failed", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "week.html", page); err != nil {
		appLog.Error("week page: render failed", err)
	}
}

// resolveWeek reads the group and the requested week from a parsed form.
// Missing or invalid values fall back to the configured group and the
// current week.
func (s *Server) resolveWeek(r *http.Request) (int, week.Week, error) {
	group := s.cfg.DefaultGroup
	if n, err := strconv.Atoi(formValue(r, "group", "group_number")); err == nil && n > 0 {
		group = n
	}

	base := s.now().In(s.loc)
	if t, err := time.Parse(dateLayout, formValue(r, "start", "start_date")); err == nil {
		base = t
	}
	wk, err := week.Of(base)
	if err != nil {
		return group, week.Week{}, err
	}

	shift := 0
	switch {
	case r.Form.Has("previous_week"):
		shift = -1
	case r.Form.Has("next_week"):
		shift = 1
	default:
		// "+1" arrives as " 1" when the plus is not escaped.
		if n, err := strconv.Atoi(strings.TrimSpace(r.Form.Get("week"))); err == nil {
			shift = n
		}
	}
	if shift != 0 {
		if wk, err = wk.Shift(shift); err != nil {
			return group, week.Week{}, err
		}
	}
	return group, wk, nil
}

func formValue(r *http.Request, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Form.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func newDayView(d week.Day) dayView {
	v := dayView{Date: d.Date, Name: d.Name}
	for _, s := range d.Sessions {
		v.Blocks = append(v.Blocks, blockView{
			Subject: s.Subject,
			Start:   s.StartClock(),
			End:     s.EndClock(),
			Class:   s.Category.CSSClass(),
			Style:   blockStyle(s),
		})
	}
	return v
}

// blockStyle places a session block one pixel per minute below the
// previous one and marks it with the cell colour.
func blockStyle(s model.Session) template.CSS {
	style := fmt.Sprintf("margin-top:%dpx;height:%dpx;", s.SpacingBefore, s.DurationMinutes)
	if isRGB(s.Color) {
		style += "border-left-color:#" + s.Color + ";"
	}
	return template.CSS(style)
}

func isRGB(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
