package gcal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"rozklad/internal/model"
)

// fakeCalendar stores events by id and answers 409 on duplicate inserts.
// Listing honours the private extended property filter and timeMin.
type fakeCalendar struct {
	mu      sync.Mutex
	events  map[string]calendar.Event
	updates int
	deleted []string
}

const eventsPath = "/calendars/primary/events"

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, eventsPath):
		f.list(w, r)
		return
	case r.Method == http.MethodDelete && strings.Contains(r.URL.Path, eventsPath+"/"):
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if _, ok := f.events[id]; !ok {
			http.NotFound(w, r)
			return
		}
		delete(f.events, id)
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, eventsPath):
		if _, ok := f.events[ev.Id]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":409,"message":"The requested identifier already exists."}}`))
			return
		}
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, eventsPath+"/"):
		f.updates++
	default:
		http.NotFound(w, r)
		return
	}
	f.events[ev.Id] = ev
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ev)
}

func (f *fakeCalendar) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var since time.Time
	if v := q.Get("timeMin"); v != "" {
		since, _ = time.Parse(time.RFC3339, v)
	}
	prop := q.Get("privateExtendedProperty")

	items := []calendar.Event{}
	for _, ev := range f.events {
		if prop != "" {
			k, v, _ := strings.Cut(prop, "=")
			if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private[k] != v {
				continue
			}
		}
		if start, err := time.Parse(time.RFC3339, ev.Start.DateTime); err == nil && start.Before(since) {
			continue
		}
		items = append(items, ev)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
}

func newTestSyncer(t *testing.T, opts Options) (*Syncer, *fakeCalendar) {
	t.Helper()
	fake := &fakeCalendar{events: make(map[string]calendar.Event)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	s, err := NewSyncer(svc, opts)
	require.NoError(t, err)
	return s, fake
}

func sessionsFixture() []model.Session {
	d := func(day int) time.Time { return time.Date(2024, 12, day, 0, 0, 0, 0, time.UTC) }
	return []model.Session{
		{Date: d(2), Group: 7, Subject: "Interna w1", StartMinutes: 480, DurationMinutes: 90, Category: model.CategoryLecture},
		{Date: d(3), Group: 7, Subject: "Chirurgia sem", StartMinutes: 600, DurationMinutes: 60, Category: model.CategorySeminar},
		{Date: d(3), Group: 8, Subject: "Pediatria", StartMinutes: 600, DurationMinutes: 60, Category: model.CategoryOther},
		{Date: d(30), Group: 7, Subject: "Far future", StartMinutes: 600, DurationMinutes: 60, Category: model.CategoryOther},
		{Date: time.Date(2024, 11, 29, 0, 0, 0, 0, time.UTC), Group: 7, Subject: "Past", StartMinutes: 600, DurationMinutes: 60},
	}
}

func TestSyncInsertThenUpdate(t *testing.T) {
	s, fake := newTestSyncer(t, Options{ColorID: "6", Groups: []int{7}, HorizonDays: 14})
	now := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	st, err := s.Sync(ctx, sessionsFixture(), now)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 2, Skipped: 3}, st)

	st, err = s.Sync(ctx, sessionsFixture(), now)
	require.NoError(t, err)
	assert.Equal(t, Stats{Updated: 2, Skipped: 3}, st)
	assert.Equal(t, 2, fake.updates)
	require.Len(t, fake.events, 2)

	ev := fake.events[sessionsFixture()[0].Key()]
	assert.Equal(t, "Interna w1", ev.Summary)
	assert.Equal(t, "6", ev.ColorId)
	assert.Equal(t, "Europe/Warsaw", ev.Start.TimeZone)
	assert.Equal(t, "2024-12-02T08:00:00+01:00", ev.Start.DateTime)
	assert.Equal(t, "2024-12-02T09:30:00+01:00", ev.End.DateTime)
}

func TestSyncDeletesStaleEvents(t *testing.T) {
	s, fake := newTestSyncer(t, Options{Groups: []int{7}, HorizonDays: 14})
	now := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	sessions := sessionsFixture()
	_, err := s.Sync(ctx, sessions, now)
	require.NoError(t, err)
	require.Len(t, fake.events, 2)

	fake.events["handmade"] = calendar.Event{
		Id:    "handmade",
		Start: &calendar.EventDateTime{DateTime: "2024-12-04T10:00:00+01:00"},
	}
	past := s.event(model.Session{Date: time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC), Group: 7, Subject: "Old", StartMinutes: 600, DurationMinutes: 60})
	fake.events[past.Id] = *past

	// The seminar moved to another hour, so it has a new key.
	moved := sessions[1]
	moved.StartMinutes = 720
	revised := []model.Session{sessions[0], moved}

	st, err := s.Sync(ctx, revised, now)
	require.NoError(t, err)
	assert.Equal(t, Stats{Inserted: 1, Updated: 1, Deleted: 1}, st)
	assert.Equal(t, []string{sessions[1].Key()}, fake.deleted)

	assert.Contains(t, fake.events, sessions[0].Key())
	assert.Contains(t, fake.events, moved.Key())
	assert.Contains(t, fake.events, "handmade")
	assert.Contains(t, fake.events, past.Id)
	assert.NotContains(t, fake.events, sessions[1].Key())
}

func TestSyncReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, err := calendar.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	s, err := NewSyncer(svc, Options{})
	require.NoError(t, err)

	st, err := s.Sync(context.Background(), sessionsFixture()[:2], time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.Equal(t, 2, st.Failed)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, SaveToken(path, tok))
	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}
