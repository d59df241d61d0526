package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbcal/internal/calendar"
	"dbcal/internal/config"
	"dbcal/internal/model"
	"dbcal/internal/store"
)

type testServer struct {
	*Server
	store *store.Store
	http  *httptest.Server
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Capture.Output = filepath.Join(t.TempDir(), "preview.png")
	if mutate != nil {
		mutate(cfg)
	}

	s := NewServer(cfg, st, time.UTC)
	s.now = func() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return &testServer{Server: s, store: st, http: hs}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(data, &v), string(data))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	code, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", string(body))
}

func TestListenAndServeReady(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Listen = "127.0.0.1:0" })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.ListenAndServe(ctx) }()

	select {
	case <-ts.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("listener not ready")
	}

	resp, err := http.Get("http://" + ts.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestCollectionAndItemAPI(t *testing.T) {
	ts := newTestServer(t, nil)

	code, body := ts.do(t, http.MethodGet, "/api/collections", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	code, _ = ts.do(t, http.MethodPost, "/api/collections", `{"date_field":"due"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodPost, "/api/collections", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ts.do(t, http.MethodPost, "/api/collections", `{"name":"Tasks","date_field":"due","title_field":"name"}`)
	require.Equal(t, http.StatusCreated, code)
	coll := decode[store.Collection](t, body)
	assert.Equal(t, "due", coll.DateField)

	base := "/api/collections/" + coll.ID + "/items"
	code, body = ts.do(t, http.MethodPost, base, `{"name":"Ship","due":"2024-03-05T10:00:00","recurrence_rule":"daily"}`)
	require.Equal(t, http.StatusCreated, code)
	created := decode[map[string]any](t, body)
	assert.Equal(t, "DAILY", created[model.FieldRecurrenceRule])

	code, _ = ts.do(t, http.MethodPost, base, `{"name":"Odd","due":"2024-03-05T10:00:00","recurrence_rule":"fortnightly"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	id, ok := created[model.FieldID].(float64)
	require.True(t, ok)
	itemPath := base + "/" + strconv.FormatInt(int64(id), 10)

	code, _ = ts.do(t, http.MethodPut, itemPath, `{"recurrence_rule":"HOURLY"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = ts.do(t, http.MethodPut, itemPath, `{"name":"Ship it"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ship it", decode[map[string]any](t, body)["name"])

	code, body = ts.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, body), 1)

	code, _ = ts.do(t, http.MethodPut, base+"/abc", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodGet, "/api/collections/missing/items", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = ts.do(t, http.MethodPost, "/api/collections/missing/items", `{}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodDelete, itemPath, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = ts.do(t, http.MethodDelete, itemPath, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodDelete, "/api/collections/"+coll.ID, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = ts.do(t, http.MethodDelete, "/api/collections/"+coll.ID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func seed(t *testing.T, st *store.Store) (tasks, meetings *store.Collection) {
	t.Helper()
	tasks, err := st.CreateCollection("Tasks", "due", "name")
	require.NoError(t, err)
	meetings, err = st.CreateCollection("Meetings", "at", "subject")
	require.NoError(t, err)

	_, err = st.AddItem(tasks.ID, model.Item{"name": "Ship", "due": "2024-03-05T09:00:00"})
	require.NoError(t, err)
	_, err = st.AddItem(meetings.ID, model.Item{
		"subject":                 "Sync",
		"at":                      "2024-03-04T09:30:00",
		model.FieldEnd:            "2024-03-04T10:30:00",
		model.FieldRecurrenceRule: "DAILY",
		model.FieldRecurrenceEnd:  "2024-03-06",
	})
	require.NoError(t, err)
	return tasks, meetings
}

func TestCalendarJSONGlobalWeek(t *testing.T) {
	ts := newTestServer(t, nil)
	_, meetings := seed(t, ts.store)

	code, body := ts.do(t, http.MethodGet, "/api/calendar?mode=week&date=2024-03-05", "")
	require.Equal(t, http.StatusOK, code)
	resp := decode[calendarResponse](t, body)

	assert.Equal(t, "week", resp.Mode)
	assert.Equal(t, "Week of Mar 3", resp.Title)
	require.Len(t, resp.Days, 7)

	tue := resp.Days[2]
	assert.Equal(t, "2024-03-05", tue.Date)
	require.Len(t, tue.Events, 2)
	assert.Equal(t, 2, tue.Columns)
	assert.Equal(t, "[Tasks] Ship", tue.Events[0].Label)
	assert.Equal(t, "[Meetings] Sync", tue.Events[1].Label)
	assert.InDelta(t, 9.5, tue.Events[1].StartHour, 1e-9)
	assert.InDelta(t, 50, tue.Events[1].Box.Left, 1e-9)

	// The filter hides the task but keeps the packing.
	code, body = ts.do(t, http.MethodGet, "/api/calendar?mode=week&date=2024-03-05&filter="+meetings.ID, "")
	require.Equal(t, http.StatusOK, code)
	resp = decode[calendarResponse](t, body)
	tue = resp.Days[2]
	require.Len(t, tue.Events, 1)
	assert.Equal(t, 1, tue.Events[0].Column)
	assert.Equal(t, 2, tue.Events[0].Columns)
	assert.Len(t, tue.Occurrences, 1)

	// Wed is the last day of the daily series, Thu has nothing.
	assert.Len(t, resp.Days[3].Occurrences, 1)
	assert.Empty(t, resp.Days[4].Occurrences)
}

func TestCalendarJSONCollectionMonth(t *testing.T) {
	ts := newTestServer(t, nil)
	tasks, _ := seed(t, ts.store)

	code, body := ts.do(t, http.MethodGet, "/api/calendar?collection="+tasks.ID, "")
	require.Equal(t, http.StatusOK, code)
	resp := decode[calendarResponse](t, body)
	assert.Equal(t, "month", resp.Mode)
	assert.Equal(t, "March 2024", resp.Title)
	require.Len(t, resp.Days, 42)

	var labels []string
	for _, d := range resp.Days {
		assert.Empty(t, d.Events)
		for _, o := range d.Occurrences {
			labels = append(labels, d.Date+" "+o.Label)
		}
	}
	assert.Equal(t, []string{"2024-03-05 Ship"}, labels)

	code, _ = ts.do(t, http.MethodGet, "/api/calendar?mode=year", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodGet, "/api/calendar?date=03/05/2024", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = ts.do(t, http.MethodGet, "/api/calendar?collection=missing", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCalendarCacheInvalidatedOnWrite(t *testing.T) {
	ts := newTestServer(t, nil)
	tasks, _ := seed(t, ts.store)

	count := func() int {
		code, body := ts.do(t, http.MethodGet, "/api/calendar?mode=day&date=2024-03-05", "")
		require.Equal(t, http.StatusOK, code)
		return len(decode[calendarResponse](t, body).Days[0].Occurrences)
	}
	assert.Equal(t, 2, count())

	// Direct store writes are not seen until the cache is dropped.
	_, err := ts.store.AddItem(tasks.ID, model.Item{"name": "Late", "due": "2024-03-05T18:00:00"})
	require.NoError(t, err)
	assert.Equal(t, 2, count())
	ts.Invalidate()
	assert.Equal(t, 3, count())

	code, _ := ts.do(t, http.MethodPost, "/api/collections/"+tasks.ID+"/items", `{"name":"Later","due":"2024-03-05T20:00:00"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 4, count())
}

func TestCalendarCacheSkipsViewsBuiltAcrossInvalidate(t *testing.T) {
	ts := newTestServer(t, nil)
	now := ts.now()

	_, gen, fresh := ts.lookupView("k", now)
	assert.False(t, fresh)

	// A write lands while the view is being built.
	ts.Invalidate()
	assert.False(t, ts.storeView("k", gen, cachedView{at: now}))
	_, _, fresh = ts.lookupView("k", now)
	assert.False(t, fresh)

	_, gen, _ = ts.lookupView("k", now)
	assert.True(t, ts.storeView("k", gen, cachedView{at: now}))
	_, _, fresh = ts.lookupView("k", now)
	assert.True(t, fresh)
}

func TestCalendarCacheEvictsExpiredViews(t *testing.T) {
	ts := newTestServer(t, nil)
	seed(t, ts.store)
	start := ts.now()

	for day := 4; day <= 6; day++ {
		_, _, err := ts.view(viewRequest{mode: calendar.ModeDay, date: time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)})
		require.NoError(t, err)
	}
	assert.Len(t, ts.views, 3)

	ts.now = func() time.Time { return start.Add(ViewCacheTTL) }
	_, _, err := ts.view(viewRequest{mode: calendar.ModeDay, date: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, ts.views, 1)
}

func TestCalendarItems(t *testing.T) {
	ts := newTestServer(t, nil)
	seed(t, ts.store)

	code, body := ts.do(t, http.MethodGet, "/api/calendar/items", "")
	require.Equal(t, http.StatusOK, code)
	items := decode[[]map[string]any](t, body)
	require.Len(t, items, 2)

	titles := map[string]string{}
	for _, it := range items {
		titles[it[model.FieldCollectionName].(string)] = it[model.FieldTitle].(string)
	}
	assert.Equal(t, map[string]string{"Tasks": "Ship", "Meetings": "Sync"}, titles)
}

func TestCalendarHTML(t *testing.T) {
	ts := newTestServer(t, nil)
	seed(t, ts.store)

	code, body := ts.do(t, http.MethodGet, "/calendar?mode=day&date=2024-03-04&filter=x", "")
	require.Equal(t, http.StatusOK, code)
	html := string(body)
	assert.Contains(t, html, `data-ready="true"`)
	assert.Contains(t, html, "Monday, March 4")
	assert.Contains(t, html, "date=2024-03-05")
	assert.Contains(t, html, "filter=x")
	assert.NotContains(t, html, "[Meetings] Sync")

	code, body = ts.do(t, http.MethodGet, "/calendar?mode=day&date=2024-03-04", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "[Meetings] Sync")
	assert.Contains(t, string(body), "9:30am - 10:30am")
}

func TestCalendarICS(t *testing.T) {
	ts := newTestServer(t, nil)
	_, meetings := seed(t, ts.store)

	code, body := ts.do(t, http.MethodGet, "/calendar.ics?collection="+meetings.ID, "")
	require.Equal(t, http.StatusOK, code)
	out := string(body)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "SUMMARY:Sync")
	assert.Contains(t, out, "FREQ=DAILY")
	assert.NotContains(t, out, "SUMMARY:Ship")

	code, body = ts.do(t, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "SUMMARY:Ship")
}

func TestPreview(t *testing.T) {
	ts := newTestServer(t, nil)

	code, _ := ts.do(t, http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, os.WriteFile(ts.cfg.Capture.Output, []byte("\x89PNG"), 0o644))
	code, body := ts.do(t, http.MethodGet, "/preview.png", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "\x89PNG", string(body))
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	code, _ := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodGet, "/api/collections", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/api/collections", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
