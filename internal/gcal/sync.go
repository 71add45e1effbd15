// Package gcal pushes sessions into a Google Calendar.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	appLog "rozklad/internal/log"
	"rozklad/internal/model"
)

// Options selects what is synced and how events look.
type Options struct {
	CalendarID string
	// ColorID is a Google Calendar event colour ("6" is orange).
	ColorID  string
	TimeZone string
	// Groups limits the sync; empty means every group.
	Groups []int
	// HorizonDays limits the sync to [today, today+HorizonDays]; 0 means no limit.
	HorizonDays int
}

// Stats counts the outcome of one Sync call.
type Stats struct {
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
	Deleted  int
}

// Events written by a Syncer carry this private extended property, so
// pruning never touches events created by hand or by other tools.
const (
	sourceKey   = "rozklad"
	sourceValue = "session"
)

// Syncer writes sessions as Calendar events keyed by Session.Key, so
// repeated syncs update instead of duplicating.
type Syncer struct {
	svc  *calendar.Service
	opts Options
	loc  *time.Location
}

// NewSyncer returns a Syncer using svc.
func NewSyncer(svc *calendar.Service, opts Options) (*Syncer, error) {
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.TimeZone == "" {
		opts.TimeZone = "Europe/Warsaw"
	}
	loc, err := time.LoadLocation(opts.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("gcal: time zone: %w", err)
	}
	return &Syncer{svc: svc, opts: opts, loc: loc}, nil
}

// Sync upserts every selected session. Per-event failures are logged and
// counted; the joined error is returned alongside the stats.
//
// When every upsert succeeded, events of ours inside the sync window whose
// key is no longer among the selected sessions are deleted. Events before
// today are left alone.
func (s *Syncer) Sync(ctx context.Context, sessions []model.Session, now time.Time) (Stats, error) {
	var (
		st   Stats
		errs []error
	)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, s.opts.HorizonDays)
	keep := make(map[string]struct{}, len(sessions))

	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if !s.selected(sess, from, to) {
			st.Skipped++
			continue
		}
		keep[sess.Key()] = struct{}{}

		inserted, err := s.upsert(ctx, s.event(sess))
		switch {
		case err != nil:
			st.Failed++
			errs = append(errs, err)
			appLog.Error("gcal upsert failed", err, "key", sess.Key(), "group", sess.Group, "date", sess.Date.Format("2006-01-02"))
		case inserted:
			st.Inserted++
		default:
			st.Updated++
		}
	}

	if len(errs) == 0 {
		deleted, err := s.prune(ctx, keep, from, to)
		st.Deleted = deleted
		if err != nil {
			errs = append(errs, err)
			appLog.Error("gcal prune failed", err, "deleted", deleted)
		}
	}

	appLog.Info("gcal sync done", "inserted", st.Inserted, "updated", st.Updated, "skipped", st.Skipped, "failed", st.Failed, "deleted", st.Deleted)
	return st, errors.Join(errs...)
}

// prune deletes our events in [from, to] whose id is not in keep.
func (s *Syncer) prune(ctx context.Context, keep map[string]struct{}, from, to time.Time) (int, error) {
	call := s.svc.Events.List(s.opts.CalendarID).
		PrivateExtendedProperty(sourceKey + "=" + sourceValue).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339))
	if s.opts.HorizonDays > 0 {
		call = call.TimeMax(to.AddDate(0, 0, 1).Format(time.RFC3339))
	}

	var stale []string
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			if _, ok := keep[ev.Id]; !ok && ev.Status != "cancelled" {
				stale = append(stale, ev.Id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("gcal: list events: %w", err)
	}

	deleted := 0
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.svc.Events.Delete(s.opts.CalendarID, id).Context(ctx).Do(); err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && (gerr.Code == http.StatusGone || gerr.Code == http.StatusNotFound) {
				continue
			}
			return deleted, fmt.Errorf("gcal: delete %s: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *Syncer) selected(sess model.Session, from, to time.Time) bool {
	if len(s.opts.Groups) > 0 && !slices.Contains(s.opts.Groups, sess.Group) {
		return false
	}
	if sess.Date.Before(from) {
		return false
	}
	if s.opts.HorizonDays > 0 && sess.Date.After(to) {
		return false
	}
	return true
}

// event builds the Calendar event for sess. Status is set so an update
// revives an event pruned by an earlier sync.
func (s *Syncer) event(sess model.Session) *calendar.Event {
	return &calendar.Event{
		Id:          sess.Key(),
		Summary:     sess.Subject,
		Description: fmt.Sprintf("Grupa %d (%s)", sess.Group, sess.Category),
		ColorId:     s.opts.ColorID,
		Status:      "confirmed",
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{sourceKey: sourceValue},
		},
		Start: &calendar.EventDateTime{
			DateTime: sess.StartTime(s.loc).Format(time.RFC3339),
			TimeZone: s.opts.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: sess.EndTime(s.loc).Format(time.RFC3339),
			TimeZone: s.opts.TimeZone,
		},
	}
}

// upsert inserts ev and falls back to an update when the id already exists.
func (s *Syncer) upsert(ctx context.Context, ev *calendar.Event) (inserted bool, err error) {
	_, err = s.svc.Events.Insert(s.opts.CalendarID, ev).Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Code != http.StatusConflict {
		return false, fmt.Errorf("gcal: insert %s: %w", ev.Id, err)
	}
	if _, err := s.svc.Events.Update(s.opts.CalendarID, ev.Id, ev).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("gcal: update %s: %w", ev.Id, err)
	}
	return false, nil
}
