// Package store persists decoded sessions and update metadata in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // SQLite driver

	"rozklad/internal/model"
)

// ErrNoUpdate is returned by LastUpdate before the first successful update.
var ErrNoUpdate = errors.New("store: no update recorded")

const (
	dateLayout    = "2006-01-02"
	lastUpdateKey = "last_update"
)

// UpdateInfo identifies the published workbook the stored sessions came from.
type UpdateInfo struct {
	// Date is the update date text scraped from the source page.
	Date string `json:"date"`
	// URL is the absolute workbook URL.
	URL       string    `json:"url"`
	SHA256    string    `json:"sha256,omitempty"`
	Sessions  int       `json:"sessions"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Query filters ListSessions. Zero values mean "no filter".
type Query struct {
	Group    int
	From, To time.Time // inclusive calendar dates
}

// SQLite stores sessions in a single SQLite file.
type SQLite struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and runs migrations.
func New(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ReplaceSessions swaps the whole session table for sessions.
func (s *SQLite) ReplaceSessions(ctx context.Context, sessions []model.Session) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceSessions(ctx, tx, sessions)
	})
}

// Publish replaces all sessions and records info in one transaction.
func (s *SQLite) Publish(ctx context.Context, sessions []model.Session, info UpdateInfo) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceSessions(ctx, tx, sessions); err != nil {
			return err
		}
		return setMeta(ctx, tx, lastUpdateKey, info)
	})
}

// SetLastUpdate records info as the current publication.
func (s *SQLite) SetLastUpdate(ctx context.Context, info UpdateInfo) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return setMeta(ctx, tx, lastUpdateKey, info)
	})
}

// LastUpdate returns the recorded publication or ErrNoUpdate.
func (s *SQLite) LastUpdate(ctx context.Context) (UpdateInfo, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastUpdateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return UpdateInfo{}, ErrNoUpdate
	}
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("querying last update: %w", err)
	}
	var info UpdateInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return UpdateInfo{}, fmt.Errorf("decoding last update: %w", err)
	}
	return info, nil
}

// ListSessions returns matching sessions ordered by date, then decode order.
func (s *SQLite) ListSessions(ctx context.Context, q Query) ([]model.Session, error) {
	query := `
		SELECT date, day, group_number, subject, start_minutes, duration_minutes,
		       spacing_before, category, color
		FROM sessions
		WHERE (? = 0 OR group_number = ?)
		  AND (? = '' OR date >= ?)
		  AND (? = '' OR date <= ?)
		ORDER BY date, position
	`
	from, to := formatDate(q.From), formatDate(q.To)
	rows, err := s.db.QueryContext(ctx, query, q.Group, q.Group, from, from, to, to)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var (
			sess     model.Session
			date     string
			category string
		)
		if err := rows.Scan(&date, &sess.DayName, &sess.Group, &sess.Subject, &sess.StartMinutes,
			&sess.DurationMinutes, &sess.SpacingBefore, &category, &sess.Color); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("parsing session date: %w", err)
		}
		sess.Category = model.Category(category)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

// Groups returns the distinct group numbers in ascending order.
func (s *SQLite) Groups(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT group_number FROM sessions ORDER BY group_number`)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var g int
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// DateBounds returns the first and last session dates. ok is false when the
// table is empty.
func (s *SQLite) DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM sessions`).Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("querying date bounds: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	if first, err = time.Parse(dateLayout, lo.String); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parsing date: %w", err)
	}
	if last, err = time.Parse(dateLayout, hi.String); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parsing date: %w", err)
	}
	return first, last, true, nil
}

// Count returns the number of stored sessions.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func replaceSessions(ctx context.Context, tx *sql.Tx, sessions []model.Session) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (
			position, date, day, group_number, subject, start_minutes,
			duration_minutes, spacing_before, category, color
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, sess := range sessions {
		if _, err := stmt.ExecContext(ctx,
			i,
			sess.Date.Format(dateLayout),
			sess.DayName,
			sess.Group,
			sess.Subject,
			sess.StartMinutes,
			sess.DurationMinutes,
			sess.SpacingBefore,
			string(sess.Category),
			sess.Color,
		); err != nil {
			return fmt.Errorf("inserting session %d: %w", i, err)
		}
	}
	return nil
}

func setMeta(ctx context.Context, tx *sql.Tx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
