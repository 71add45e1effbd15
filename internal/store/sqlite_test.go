package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rozklad/internal/model"
)

func newTestRepo(t *testing.T) *SQLite {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func day(d int) time.Time {
	return time.Date(2024, 12, d, 0, 0, 0, 0, time.UTC)
}

func sampleSessions() []model.Session {
	return []model.Session{
		{Date: day(3), DayName: "WTOREK", Group: 2, Subject: "Chirurgia sem", StartMinutes: 480, DurationMinutes: 90, SpacingBefore: 60, Category: model.CategorySeminar},
		{Date: day(2), DayName: "PONIEDZIAŁEK", Group: 1, Subject: "Interna w1", StartMinutes: 420, DurationMinutes: 60, SpacingBefore: 0, Category: model.CategoryLecture, Color: "FF0000"},
		{Date: day(2), DayName: "PONIEDZIAŁEK", Group: 1, Subject: "Interna sala 3", StartMinutes: 540, DurationMinutes: 120, SpacingBefore: 60, Category: model.CategoryPractical},
		{Date: day(9), DayName: "PONIEDZIAŁEK", Group: 1, Subject: "Pediatria", StartMinutes: 600, DurationMinutes: 45, SpacingBefore: 180, Category: model.CategoryOther},
	}
}

func TestReplaceAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSessions(ctx, sampleSessions()))

	all, err := repo.ListSessions(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, day(2), all[0].Date)
	assert.Equal(t, "Interna w1", all[0].Subject, "decode order kept within a date")
	assert.Equal(t, "Interna sala 3", all[1].Subject)
	assert.Equal(t, "FF0000", all[0].Color)
	assert.Equal(t, model.CategoryPractical, all[1].Category)

	week, err := repo.ListSessions(ctx, Query{Group: 1, From: day(2), To: day(8)})
	require.NoError(t, err)
	require.Len(t, week, 2)
	for _, s := range week {
		assert.Equal(t, 1, s.Group)
	}

	groups, err := repo.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, groups)

	first, last, ok, err := repo.DateBounds(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2), first)
	assert.Equal(t, day(9), last)
}

func TestReplaceIsWholesale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSessions(ctx, sampleSessions()))
	require.NoError(t, repo.ReplaceSessions(ctx, sampleSessions()[:1]))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.ReplaceSessions(ctx, nil))
	_, _, ok, err := repo.DateBounds(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplaceRollsBackOnInvalidSession(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.ReplaceSessions(ctx, sampleSessions()))

	bad := sampleSessions()
	bad[3].DurationMinutes = -15
	assert.Error(t, repo.ReplaceSessions(ctx, bad))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n, "previous sessions survive a failed replace")
}

func TestLastUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.LastUpdate(ctx)
	assert.ErrorIs(t, err, ErrNoUpdate)

	info := UpdateInfo{
		Date:      "02.12.2024",
		URL:       "https://www.ur.edu.pl/files/v-rok.xlsx",
		Sessions:  4,
		UpdatedAt: time.Date(2024, 12, 2, 6, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Publish(ctx, sampleSessions(), info))

	got, err := repo.LastUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Date, got.Date)
	assert.Equal(t, info.URL, got.URL)
	assert.True(t, info.UpdatedAt.Equal(got.UpdatedAt))

	info.Date = "05.12.2024"
	require.NoError(t, repo.SetLastUpdate(ctx, info))
	got, err = repo.LastUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "05.12.2024", got.Date)
}
