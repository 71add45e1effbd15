package update

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rozklad/internal/decode"
	"rozklad/internal/gcal"
	"rozklad/internal/model"
	"rozklad/internal/source"
	"rozklad/internal/store"
)

const pageURL = "https://www.ur.edu.pl/pl/rozklady-zajec"

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  map[string]int
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (source.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[u]++
	b, ok := f.bodies[u]
	if !ok {
		return source.Result{}, fmt.Errorf("404 %s", u)
	}
	return source.Result{URL: u, Body: b}, nil
}

func (f *fakeFetcher) publish(date, file string, workbook []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[pageURL] = []byte(fmt.Sprintf(`<table><tr>
		<td><a href="/files/%s">V rok kierunek lekarski</a></td>
		<td>aktualizacja %s</td></tr></table>`, file, date))
	f.bodies["https://www.ur.edu.pl/files/"+file] = workbook
}

type fakeArchive struct{ err error }

func (a *fakeArchive) Put(_ context.Context, date string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "workbooks/" + date + ".xlsx", nil
}

type fakeSync struct{ got []model.Session }

func (s *fakeSync) Sync(_ context.Context, sessions []model.Session, _ time.Time) (gcal.Stats, error) {
	s.got = sessions
	return gcal.Stats{Inserted: len(sessions)}, nil
}

type fakeNotify struct {
	got []Outcome
	err error
}

func (n *fakeNotify) Notify(_ context.Context, out Outcome) error {
	n.got = append(n.got, out)
	return n.err
}

// slotWorkbook returns an .xlsx with one slot-grid row per subject label run.
func slotWorkbook(t *testing.T, date string, labels ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "PONIEDZIAŁEK"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", date))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", 3))
	for i, l := range labels {
		cell, err := excelize.CoordinatesToCellName(7+i, 1)
		require.NoError(t, err)
		if l != "" {
			require.NoError(t, f.SetCellValue("Sheet1", cell, l))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newTestUpdater(t *testing.T) (*Updater, *fakeFetcher, *store.SQLite) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "rozklad.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ff := &fakeFetcher{bodies: map[string][]byte{}, calls: map[string]int{}}
	u, err := New(Options{
		PageURL:      pageURL,
		Match:        "V rok kierunek lekarski",
		Exclude:      "IV rok kierunek lekarski",
		WorkbookPath: filepath.Join(t.TempDir(), "plan.xlsx"),
	}, ff, st, decode.NewSlotGrid(decode.DefaultSlotGridOptions()))
	require.NoError(t, err)
	return u, ff, st
}

func TestCheckImportsAndSkipsUnchanged(t *testing.T) {
	u, ff, st := newTestUpdater(t)
	ctx := context.Background()

	previews := 0
	syncer := &fakeSync{}
	notifier := &fakeNotify{}
	u.WithArchive(&fakeArchive{}).WithSync(syncer).WithPreview(func(context.Context) error {
		previews++
		return nil
	}).WithNotify(notifier)

	ff.publish("02.12.2024", "v1.xlsx", slotWorkbook(t, "02/12/2024", "Anatomia w1", "Anatomia w1", "", "sala 4"))

	out, err := u.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, out.Status)
	assert.Equal(t, 2, out.Sessions)
	assert.Equal(t, "workbooks/02.12.2024.xlsx", out.Archived)
	assert.Len(t, syncer.got, 2)
	assert.Equal(t, 1, previews)
	require.Len(t, notifier.got, 1)
	assert.Equal(t, out, notifier.got[0])

	sessions, err := st.ListSessions(ctx, store.Query{Group: 3})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "07:00", sessions[0].StartClock())
	assert.Equal(t, 30, sessions[0].DurationMinutes)
	assert.Equal(t, model.CategoryPractical, sessions[1].Category)
	assert.Equal(t, 15, sessions[1].SpacingBefore)

	out, err = u.Check(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, out.Status)
	assert.Equal(t, 1, ff.calls["https://www.ur.edu.pl/files/v1.xlsx"], "unchanged page does not download")
	assert.Equal(t, 1, previews)
	assert.Len(t, notifier.got, 1, "unchanged checks are not announced")

	out, err = u.Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, out.Status)
	assert.Equal(t, 2, ff.calls["https://www.ur.edu.pl/files/v1.xlsx"])
}

func TestCheckDecodeFailureKeepsStore(t *testing.T) {
	u, ff, st := newTestUpdater(t)
	ctx := context.Background()

	ff.publish("02.12.2024", "v1.xlsx", slotWorkbook(t, "02/12/2024", "Anatomia w1"))
	_, err := u.Check(ctx, false)
	require.NoError(t, err)

	ff.publish("09.12.2024", "v2.xlsx", slotWorkbook(t, "not a date", "Anatomia w1"))
	_, err = u.Check(ctx, false)
	require.ErrorIs(t, err, decode.ErrNoRows)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, err := st.LastUpdate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "02.12.2024", last.Date)
}

func TestCheckOptionalStagesAreBestEffort(t *testing.T) {
	u, ff, _ := newTestUpdater(t)
	notifier := &fakeNotify{err: errors.New("broker unreachable")}
	u.WithArchive(&fakeArchive{err: errors.New("s3 down")}).WithPreview(func(context.Context) error {
		return errors.New("no chromium")
	}).WithNotify(notifier)

	ff.publish("02.12.2024", "v1.xlsx", slotWorkbook(t, "02/12/2024", "Anatomia w1"))
	out, err := u.Check(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, out.Status)
	assert.Empty(t, out.Archived)
	assert.Len(t, notifier.got, 1)
}

func TestCheckSourceErrors(t *testing.T) {
	u, ff, _ := newTestUpdater(t)

	_, err := u.Check(context.Background(), false)
	assert.Error(t, err, "page missing")

	ff.bodies[pageURL] = []byte(`<table><tr><td>VI rok</td></tr></table>`)
	_, err = u.Check(context.Background(), false)
	assert.ErrorIs(t, err, source.ErrRowNotFound)
}

func TestNewRejectsBadPage(t *testing.T) {
	_, err := New(Options{PageURL: "rozklady"}, nil, nil, nil)
	assert.Error(t, err)
}
