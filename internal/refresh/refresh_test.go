package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbcal/internal/config"
	"dbcal/internal/ics"
	"dbcal/internal/model"
	"dbcal/internal/store"
)

func feedBody(uids ...string) []byte {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}
	for i, uid := range uids {
		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+uid,
			"DTSTAMP:20240301T000000Z",
			"SUMMARY:Event "+uid,
			fmt.Sprintf("DTSTART:202403%02dT090000Z", i+1),
			"END:VEVENT",
		)
	}
	lines = append(lines, "END:VCALENDAR", "")
	return []byte(strings.Join(lines, "\r\n"))
}

func newImporter(t *testing.T, feeds []config.FeedConfig) (*Importer, *store.Store) {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewImporter(st, ics.NewFetcher(t.TempDir()), feeds, time.UTC), st
}

func TestImportLocalFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.ics")
	require.NoError(t, os.WriteFile(path, feedBody("a", "b"), 0o600))

	feed := config.FeedConfig{ID: "team", Name: "Team", Path: path, Collection: "team"}
	im, st := newImporter(t, []config.FeedConfig{feed})

	require.NoError(t, im.ImportAll(context.Background()))

	coll, err := st.GetCollection("team")
	require.NoError(t, err)
	assert.Equal(t, "Team", coll.Name)
	assert.Equal(t, model.FieldDate, coll.DateField)

	items, err := st.ListItems("team")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// A changed file replaces the previous import.
	require.NoError(t, os.WriteFile(path, feedBody("c"), 0o600))
	require.NoError(t, im.ImportPath(context.Background(), path))

	items, err = st.ListItems("team")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0][model.FieldUID])
	assert.Equal(t, "team", items[0][model.FieldFeedID])

	cal, err := st.CalendarItems()
	require.NoError(t, err)
	require.Len(t, cal, 1)
	assert.Equal(t, "Event c", cal[0][model.FieldTitle])

	assert.Equal(t, []string{path}, im.LocalPaths())
	assert.Error(t, im.ImportPath(context.Background(), filepath.Join(t.TempDir(), "other.ics")))
}

func TestImportAllKeepsGoing(t *testing.T) {
	good := filepath.Join(t.TempDir(), "good.ics")
	require.NoError(t, os.WriteFile(good, feedBody("x"), 0o600))

	im, st := newImporter(t, []config.FeedConfig{
		{ID: "missing", Path: filepath.Join(t.TempDir(), "missing.ics"), Collection: "missing"},
		{ID: "good", Path: good, Collection: "good"},
	})

	err := im.ImportAll(context.Background())
	assert.Error(t, err)

	items, err := st.ListItems("good")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every so often")
	assert.Error(t, err)

	_, err = NewScheduler("*/15 * * * *")
	assert.NoError(t, err)
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	var order []string
	s, err := NewScheduler("@every 1h",
		Job{Name: "a", Run: func(context.Context) error { order = append(order, "a"); return errors.New("boom") }},
		Job{Name: "b", Run: func(context.Context) error { order = append(order, "b"); return nil }},
	)
	require.NoError(t, err)

	err = s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: boom")
	assert.Equal(t, []string{"a", "b"}, order)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.RunOnce(ctx), context.Canceled)
}

func TestStartRunsOnSchedule(t *testing.T) {
	var runs atomic.Int32
	s, err := NewScheduler("@every 1s", Job{Name: "count", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 100*time.Millisecond)
}
