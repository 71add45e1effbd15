package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"rozklad/internal/ics"
	appLog "rozklad/internal/log"
	"rozklad/internal/model"
	"rozklad/internal/store"
)

// sessionDTO is the JSON view of a session.
type sessionDTO struct {
	Key             string `json:"key"`
	Date            string `json:"date"`
	Day             string `json:"day"`
	Group           int    `json:"group"`
	Subject         string `json:"subject"`
	Start           string `json:"start"`
	End             string `json:"end"`
	StartMinutes    int    `json:"start_minutes"`
	DurationMinutes int    `json:"duration_minutes"`
	SpacingBefore   int    `json:"spacing_before"`
	Category        string `json:"category"`
	Class           string `json:"class"`
	Color           string `json:"color,omitempty"`
}

func newSessionDTO(s model.Session) sessionDTO {
	return sessionDTO{
		Key:             s.Key(),
		Date:            s.Date.Format(dateLayout),
		Day:             s.DayName,
		Group:           s.Group,
		Subject:         s.Subject,
		Start:           s.StartClock(),
		End:             s.EndClock(),
		StartMinutes:    s.StartMinutes,
		DurationMinutes: s.DurationMinutes,
		SpacingBefore:   s.SpacingBefore,
		Category:        string(s.Category),
		Class:           s.Category.CSSClass(),
		Color:           s.Color,
	}
}

type sessionsResponse struct {
	Group    int          `json:"group,omitempty"`
	From     string       `json:"from,omitempty"`
	To       string       `json:"to,omitempty"`
	Count    int          `json:"count"`
	Sessions []sessionDTO `json:"sessions"`
}

// handleSessions lists stored sessions.
//
// GET /api/sessions?group=7&from=2024-12-02&to=2024-12-08
//   - group: 0 or absent means every group
//   - from, to: inclusive dates, absent means unbounded
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := s.store.ListSessions(r.Context(), q)
	if err != nil {
		appLog.Error("api sessions: list failed", err, "group", q.Group)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	resp := sessionsResponse{
		Group:    q.Group,
		Count:    len(sessions),
		Sessions: make([]sessionDTO, 0, len(sessions)),
	}
	if !q.From.IsZero() {
		resp.From = q.From.Format(dateLayout)
	}
	if !q.To.IsZero() {
		resp.To = q.To.Format(dateLayout)
	}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, newSessionDTO(sess))
	}
	writeJSON(w, http.StatusOK, resp)
}

type groupsResponse struct {
	Groups  []int `json:"groups"`
	Default int   `json:"default"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.Groups(r.Context())
	if err != nil {
		appLog.Error("api groups: list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	if groups == nil {
		groups = []int{}
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups, Default: s.cfg.DefaultGroup})
}

type statusResponse struct {
	Updated   bool             `json:"updated"`
	Info      store.UpdateInfo `json:"info"`
	Timezone  string           `json:"timezone"`
	ServerNow time.Time        `json:"server_now"`
}

// handleStatus reports the last published update.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Timezone: s.loc.String(), ServerNow: s.now().In(s.loc)}
	info, err := s.store.LastUpdate(r.Context())
	switch {
	case err == nil:
		resp.Updated = true
		resp.Info = info
	case !errors.Is(err, store.ErrNoUpdate):
		appLog.Error("api status: last update failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendar serves an iCalendar feed.
//
// GET /calendar.ics?group=7 (absent group means every group)
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), q)
	if err != nil {
		appLog.Error("calendar: list failed", err, "group", q.Group)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	name := "Rozkład zajęć"
	if q.Group > 0 {
		name = fmt.Sprintf("Rozkład zajęć, grupa %d", q.Group)
	}

	var buf bytes.Buffer
	if err := ics.Export(&buf, sessions, ics.Options{Name: name, Location: s.loc, Now: s.now()}); err != nil {
		appLog.Error("calendar: export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="rozklad.ics"`)
	_, _ = w.Write(buf.Bytes())
}

// handleUpdate runs an update check and reports its outcome.
//
// GET|POST /update?force=1
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		writeError(w, http.StatusServiceUnavailable, "updates are not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	force, _ := strconv.ParseBool(r.Form.Get("force"))

	out, err := s.updater.Check(r.Context(), force)
	if err != nil {
		appLog.Error("manual update failed", err, "force", force)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	appLog.Info("manual update done", "status", out.Status, "sessions", out.Sessions, "force", force)
	writeJSON(w, http.StatusOK, out)
}

func parseQuery(r *http.Request) (store.Query, error) {
	var q store.Query
	v := r.URL.Query()

	if g := v.Get("group"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid group %q", g)
		}
		q.Group = n
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := v.Get(p.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return q, fmt.Errorf("invalid %s date %q, want YYYY-MM-DD", p.key, raw)
		}
		*p.dst = t
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errors.New("to is before from")
	}
	return q, nil
}
