// Package update runs the "check for a new timetable" pipeline: scrape the
// source page, download the workbook when it changed, decode it and replace
// the stored sessions.
package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rozklad/internal/decode"
	"rozklad/internal/gcal"
	appLog "rozklad/internal/log"
	"rozklad/internal/model"
	"rozklad/internal/source"
	"rozklad/internal/store"
	"rozklad/internal/xlsx"
)

// Status of a Check.
type Status string

const (
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
)

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (source.Result, error)
}

// Store is the persistence the pipeline needs.
type Store interface {
	LastUpdate(ctx context.Context) (store.UpdateInfo, error)
	Publish(ctx context.Context, sessions []model.Session, info store.UpdateInfo) error
}

// Archiver keeps a copy of each downloaded workbook.
type Archiver interface {
	Put(ctx context.Context, updateDate string, body []byte) (string, error)
}

// Syncer pushes sessions to an external calendar.
type Syncer interface {
	Sync(ctx context.Context, sessions []model.Session, now time.Time) (gcal.Stats, error)
}

// Notifier announces a published update.
type Notifier interface {
	Notify(ctx context.Context, out Outcome) error
}

// Outcome describes one Check.
type Outcome struct {
	Status   Status           `json:"status"`
	Info     store.UpdateInfo `json:"info"`
	Sessions int              `json:"sessions"`
	Skipped  int              `json:"skipped"`
	// Archived is the object name, if the workbook was archived.
	Archived string `json:"archived,omitempty"`
}

// Options locates the timetable on the source page.
type Options struct {
	PageURL string
	Match   string
	Exclude string
	Sheet   string
	// WorkbookPath, if set, keeps the last downloaded workbook on disk.
	WorkbookPath string
}

// Updater runs checks one at a time.
type Updater struct {
	mu sync.Mutex

	opts    Options
	page    *url.URL
	fetcher Fetcher
	store   Store
	decoder decode.Decoder

	archive Archiver
	sync    Syncer
	preview func(context.Context) error
	notify  Notifier

	now func() time.Time
}

// New returns an Updater. Optional stages are attached with the With* methods.
func New(opts Options, fetcher Fetcher, st Store, dec decode.Decoder) (*Updater, error) {
	page, err := url.Parse(opts.PageURL)
	if err != nil || page.Host == "" {
		return nil, fmt.Errorf("update: invalid page url %q", opts.PageURL)
	}
	return &Updater{
		opts:    opts,
		page:    page,
		fetcher: fetcher,
		store:   st,
		decoder: dec,
		now:     time.Now,
	}, nil
}

// WithArchive stores each new workbook with a.
func (u *Updater) WithArchive(a Archiver) *Updater { u.archive = a; return u }

// WithSync pushes sessions with s after each update.
func (u *Updater) WithSync(s Syncer) *Updater { u.sync = s; return u }

// WithPreview re-renders the preview after each update.
func (u *Updater) WithPreview(fn func(context.Context) error) *Updater { u.preview = fn; return u }

// WithNotify announces each update with n, after the other stages.
func (u *Updater) WithNotify(n Notifier) *Updater { u.notify = n; return u }

// Check looks for a new publication and imports it. With force, the
// workbook is imported even if the update date and link are unchanged.
//
// A decode failure leaves the stored sessions untouched. Archive, sync,
// preview and notification failures are logged and do not fail the check.
func (u *Updater) Check(ctx context.Context, force bool) (Outcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	start := u.now()
	page, err := u.fetcher.Fetch(ctx, u.page.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("update: fetch page: %w", err)
	}
	link, err := source.FindLink(bytes.NewReader(page.Body), u.page, u.opts.Match, u.opts.Exclude)
	if err != nil {
		return Outcome{}, fmt.Errorf("update: %w", err)
	}

	last, err := u.store.LastUpdate(ctx)
	switch {
	case errors.Is(err, store.ErrNoUpdate):
	case err != nil:
		return Outcome{}, fmt.Errorf("update: %w", err)
	case !force && last.Date == link.UpdateDate && last.URL == link.URL:
		appLog.Info("no new timetable", "update_date", link.UpdateDate)
		return Outcome{Status: StatusUnchanged, Info: last, Sessions: last.Sessions}, nil
	}

	appLog.Info("new timetable detected", "update_date", link.UpdateDate, "previous", last.Date, "force", force)

	wb, err := u.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		return Outcome{}, fmt.Errorf("update: fetch workbook: %w", err)
	}
	u.keepWorkbook(wb.Body)

	g, err := xlsx.Load(bytes.NewReader(wb.Body), xlsx.Options{Sheet: u.opts.Sheet})
	if err != nil {
		return Outcome{}, fmt.Errorf("update: %w", err)
	}
	res, err := u.decoder.Decode(g)
	if err != nil {
		return Outcome{}, fmt.Errorf("update: %w", err)
	}
	for _, s := range res.Skipped {
		appLog.Debug("cell skipped", "cell", s.String())
	}

	info := store.UpdateInfo{
		Date:      link.UpdateDate,
		URL:       link.URL,
		SHA256:    sha256Hex(wb.Body),
		Sessions:  len(res.Sessions),
		UpdatedAt: u.now().UTC(),
	}
	if err := u.store.Publish(ctx, res.Sessions, info); err != nil {
		return Outcome{}, fmt.Errorf("update: %w", err)
	}

	out := Outcome{Status: StatusUpdated, Info: info, Sessions: len(res.Sessions), Skipped: len(res.Skipped)}
	appLog.Info("timetable updated",
		"sessions", out.Sessions,
		"skipped", out.Skipped,
		"update_date", info.Date,
		"elapsed", u.now().Sub(start),
	)

	u.afterPublish(ctx, &out, wb.Body, res.Sessions)
	return out, nil
}

func (u *Updater) afterPublish(ctx context.Context, out *Outcome, body []byte, sessions []model.Session) {
	if u.archive != nil {
		name, err := u.archive.Put(ctx, out.Info.Date, body)
		if err != nil {
			appLog.Error("archive failed", err)
		} else {
			out.Archived = name
		}
	}
	if u.sync != nil {
		if _, err := u.sync.Sync(ctx, sessions, u.now()); err != nil {
			appLog.Error("calendar sync failed", err)
		}
	}
	if u.preview != nil {
		if err := u.preview(ctx); err != nil {
			appLog.Error("preview capture failed", err)
		}
	}
	if u.notify != nil {
		if err := u.notify.Notify(ctx, *out); err != nil {
			appLog.Error("update notification failed", err)
		}
	}
}

func (u *Updater) keepWorkbook(body []byte) {
	path := u.opts.WorkbookPath
	if path == "" {
		return
	}
	err := os.MkdirAll(filepath.Dir(path), 0o700)
	if err == nil {
		err = os.WriteFile(path, body, 0o600)
	}
	if err != nil {
		appLog.Error("saving workbook failed", err, "path", path)
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
