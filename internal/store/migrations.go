package store

import "fmt"

// migrate runs database migrations.
func (s *SQLite) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			position         INTEGER PRIMARY KEY,
			date             DATE NOT NULL,
			day              TEXT NOT NULL,
			group_number     INTEGER NOT NULL,
			subject          TEXT NOT NULL,
			start_minutes    INTEGER NOT NULL,
			duration_minutes INTEGER NOT NULL CHECK(duration_minutes >= 0),
			spacing_before   INTEGER NOT NULL CHECK(spacing_before >= 0),
			category         TEXT NOT NULL CHECK(category IN ('lecture', 'seminar', 'practical', 'other')),
			color            TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_group_date ON sessions(group_number, date);

		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}
