package render

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbcal/internal/calendar"
	"dbcal/internal/layout"
	"dbcal/internal/model"
)

var items = []model.Item{
	{
		model.FieldID:             "1",
		model.FieldTitle:          "Standup",
		model.FieldDate:           "2024-03-04T09:00:00",
		model.FieldEnd:            "2024-03-04T09:30:00",
		model.FieldCollectionID:   "work",
		model.FieldCollectionName: "Work",
		"room":                    "4B",
		"meeting_owner":           "Sam",
	},
	{
		model.FieldID:             "2",
		model.FieldTitle:          "Review",
		model.FieldDate:           "2024-03-04T09:00:00",
		model.FieldCollectionID:   "work",
		model.FieldCollectionName: "Work",
	},
}

func build(t *testing.T, mode calendar.Mode) calendar.View {
	t.Helper()
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	return calendar.Build(mode, base, items, calendar.Options{DateKey: model.FieldDate, TitleKey: model.FieldTitle})
}

func TestNewPageMonth(t *testing.T) {
	p := NewPage(build(t, calendar.ModeMonth), Options{
		Today: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		Query: url.Values{"collection": {"work"}},
	})

	assert.False(t, p.Timeline)
	assert.Equal(t, "March 2024", p.Title)
	require.Len(t, p.Weeks, 6)
	assert.Equal(t, []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}, p.DayNames)

	// March 2024 starts on a Friday: five leading February days.
	first := p.Weeks[0][0]
	assert.True(t, first.Other)
	assert.Equal(t, 25, first.Day)

	monday := p.Weeks[1][1]
	assert.Equal(t, "2024-03-04", monday.Key)
	assert.Equal(t, []string{"Standup", "Review"}, monday.Labels)
	assert.True(t, p.Weeks[1][2].Today)

	assert.Contains(t, p.PrevURL, "date=2024-02-04")
	assert.Contains(t, p.NextURL, "date=2024-04-04")
	assert.Contains(t, p.NextURL, "collection=work")
	assert.Contains(t, p.TodayURL, "date=2024-03-05")
	require.Len(t, p.Modes, 3)
	assert.True(t, p.Modes[0].Active)
}

func TestNewPageDay(t *testing.T) {
	p := NewPage(build(t, calendar.ModeDay), Options{DateKey: model.FieldDate, Global: true})

	assert.True(t, p.Timeline)
	require.Len(t, p.Hours, 24)
	assert.Equal(t, "12 AM", p.Hours[0])
	require.Len(t, p.Columns, 1)

	col := p.Columns[0]
	assert.Equal(t, "Monday, March 4", col.Header)
	require.Len(t, col.Events, 2)

	// Review runs the default hour and is placed first; Standup takes the
	// second column.
	review, standup := col.Events[0], col.Events[1]
	assert.Equal(t, "[Work] Review", review.Label)
	assert.Equal(t, "9:00am - 10:00am", review.Time)
	assert.Equal(t, layout.Box{Top: 360, Height: 40, Left: 0, Width: 50}, review.Box)
	assert.Equal(t, "9:00am - 9:30am", standup.Time)
	assert.InDelta(t, 50, standup.Box.Left, 1e-9)
	assert.Equal(t, []Detail{{Key: "meeting owner", Value: "Sam"}, {Key: "room", Value: "4B"}}, standup.Details)
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, NewPage(build(t, calendar.ModeWeek), Options{})))

	out := buf.String()
	assert.Contains(t, out, `data-ready="true"`)
	assert.Contains(t, out, "Week of Mar 3")
	assert.Contains(t, out, "Mon, Mar 4")
	assert.Contains(t, out, "top:360.00px;height:40.00px")
	assert.Equal(t, 2, strings.Count(out, `class="time-grid-event"`))

	buf.Reset()
	require.NoError(t, HTML(&buf, NewPage(build(t, calendar.ModeMonth), Options{})))
	assert.Contains(t, buf.String(), `class="calendar-event">Standup</div>`)
}

func TestDayNames(t *testing.T) {
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, DayNames(time.Monday))
}

func TestLabel(t *testing.T) {
	it := model.Item{"name": "Ship", model.FieldTitle: "Flat", model.FieldCollectionName: "Tasks"}
	assert.Equal(t, "Ship", Label(it, "name", false))
	assert.Equal(t, "[Tasks] Flat", Label(it, "name", true))
	assert.Equal(t, "Untitled", Label(model.Item{}, "name", false))
}
