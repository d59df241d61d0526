// Package render turns calendar views into the HTML page served at
// /calendar and captured for previews.
package render

import (
	"fmt"
	"html/template"
	"net/url"
	"sort"
	"strings"
	"time"

	"dbcal/internal/calendar"
	"dbcal/internal/layout"
	"dbcal/internal/model"
)

// Options controls labels and navigation links of a page.
type Options struct {
	Scale     layout.Scale
	WeekStart time.Weekday
	// DateKey is excluded from the day view's field details.
	DateKey string
	// Global labels events as "[collection] title".
	Global bool
	Today  time.Time
	// Path and Query are the base of the prev/next/mode links; mode and
	// date are replaced, other parameters are kept.
	Path  string
	Query url.Values
}

// Page is the template data of the calendar page.
type Page struct {
	Title    string
	Mode     string
	Timeline bool
	DayNames []string

	Weeks   [][]Cell
	Columns []Column
	Hours   []string

	GridHeight float64
	HourHeight float64

	PrevURL, NextURL, TodayURL string
	Modes                      []ModeLink

	Truncated int
}

// Cell is one day of the month grid.
type Cell struct {
	Day    int
	Key    string
	Other  bool
	Today  bool
	Labels []string
}

// Column is one day of the time grid.
type Column struct {
	Header string
	Key    string
	Today  bool
	Events []Event
}

// Event is a positioned time grid entry.
type Event struct {
	Label   string
	Time    string
	Box     layout.Box
	Style   template.CSS
	Details []Detail
}

type Detail struct {
	Key   string
	Value string
}

type ModeLink struct {
	Name   string
	URL    string
	Active bool
}

var weekdayShort = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// NewPage lays out v for the template.
func NewPage(v calendar.View, opts Options) Page {
	if opts.Scale.PixelsPerHour <= 0 {
		opts.Scale = layout.DefaultScale
	}
	if opts.Today.IsZero() {
		opts.Today = time.Now().In(v.Window.Location())
	}
	today := model.KeyOf(opts.Today)

	p := Page{
		Title:      v.Title,
		Mode:       string(v.Mode),
		Timeline:   v.Mode.Timeline(),
		DayNames:   DayNames(opts.WeekStart),
		GridHeight: opts.Scale.GridHeight(),
		HourHeight: opts.Scale.PixelsPerHour,
		PrevURL:    navURL(opts, v.Mode, calendar.Step(v.Mode, v.Base, -1)),
		NextURL:    navURL(opts, v.Mode, calendar.Step(v.Mode, v.Base, 1)),
		TodayURL:   navURL(opts, v.Mode, opts.Today),
		Truncated:  len(v.Truncated),
	}
	for _, m := range []calendar.Mode{calendar.ModeMonth, calendar.ModeWeek, calendar.ModeDay} {
		p.Modes = append(p.Modes, ModeLink{
			Name:   string(m),
			URL:    navURL(opts, m, v.Base),
			Active: m == v.Mode,
		})
	}

	if !p.Timeline {
		var week []Cell
		for _, d := range v.Days {
			cell := Cell{Day: d.Date.Day(), Key: string(d.Key), Other: !d.InMonth, Today: d.Key == today}
			for _, o := range d.Occurrences {
				cell.Labels = append(cell.Labels, Label(o.Item, v.TitleKey, opts.Global))
			}
			week = append(week, cell)
			if len(week) == 7 {
				p.Weeks = append(p.Weeks, week)
				week = nil
			}
		}
		return p
	}

	for h := 0; h < 24; h++ {
		p.Hours = append(p.Hours, layout.HourLabel(h))
	}
	for _, d := range v.Days {
		col := Column{Key: string(d.Key), Today: d.Key == today}
		if v.Mode == calendar.ModeDay {
			col.Header = d.Date.Format("Monday, January 2")
		} else {
			col.Header = d.Date.Format("Mon, Jan 2")
		}
		for _, pi := range d.Packed {
			box := layout.Place(pi, opts.Scale)
			ev := Event{
				Label: Label(pi.Occurrence.Item, v.TitleKey, opts.Global),
				Time:  layout.FormatHour(pi.StartHour) + " - " + layout.FormatHour(pi.EndHour),
				Box:   box,
				Style: boxStyle(box),
			}
			if v.Mode == calendar.ModeDay {
				ev.Details = Details(pi.Occurrence.Item, opts.DateKey, v.TitleKey)
			}
			col.Events = append(col.Events, ev)
		}
		p.Columns = append(p.Columns, col)
	}
	return p
}

// DayNames returns short weekday names starting at weekStart.
func DayNames(weekStart time.Weekday) []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = weekdayShort[(int(weekStart)+i)%7]
	}
	return out
}

// Label is the text shown for an item.
func Label(it model.Item, titleKey string, global bool) string {
	if global {
		return fmt.Sprintf("[%s] %s", it.String(model.FieldCollectionName), it.Title(model.FieldTitle))
	}
	return it.Title(titleKey)
}

// Details lists the non built-in fields of an item, sorted by key, with
// underscores shown as spaces.
func Details(it model.Item, dateKey, titleKey string) []Detail {
	skip := map[string]bool{dateKey: true, titleKey: true, model.FieldUID: true, model.FieldFeedID: true}
	for _, k := range model.BuiltinFields {
		skip[k] = true
	}

	var out []Detail
	for k := range it {
		if skip[k] {
			continue
		}
		v := it.String(k)
		if v == "" {
			continue
		}
		out = append(out, Detail{Key: strings.ReplaceAll(k, "_", " "), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func boxStyle(b layout.Box) template.CSS {
	return template.CSS(fmt.Sprintf("top:%.2fpx;height:%.2fpx;left:%.4f%%;width:calc(%.4f%% - 2px)",
		b.Top, b.Height, b.Left, b.Width))
}

func navURL(opts Options, mode calendar.Mode, date time.Time) string {
	q := url.Values{}
	for k, vs := range opts.Query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("mode", string(mode))
	q.Set("date", date.Format("2006-01-02"))
	path := opts.Path
	if path == "" {
		path = "/calendar"
	}
	return path + "?" + q.Encode()
}
