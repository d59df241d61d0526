// Package calendar builds month, week and day views from items: it picks
// the visible window, expands recurrences over it and packs the time grid
// of each day.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"dbcal/internal/model"
)

// Mode selects the calendar view.
type Mode string

const (
	ModeMonth Mode = "month"
	ModeWeek  Mode = "week"
	ModeDay   Mode = "day"
)

// ParseMode validates a mode name. Empty input selects ModeMonth.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeMonth, nil
	case ModeMonth, ModeWeek, ModeDay:
		return m, nil
	default:
		return "", fmt.Errorf("calendar: unknown mode %q", s)
	}
}

// Timeline reports whether the mode renders a 24 hour time grid.
func (m Mode) Timeline() bool {
	return m == ModeWeek || m == ModeDay
}

// ParseWeekStart maps "sunday"/"monday" to a weekday. Anything else is
// Sunday.
func ParseWeekStart(s string) time.Weekday {
	if strings.EqualFold(strings.TrimSpace(s), "monday") {
		return time.Monday
	}
	return time.Sunday
}

// Range returns the window shown for base in the given mode.
//
// Month windows cover whole weeks: from the week-start day on or before the
// 1st, for ceil((lead+daysInMonth)/7) weeks.
func Range(mode Mode, base time.Time, weekStart time.Weekday) model.Window {
	day := model.StartOfDay(base)

	switch mode {
	case ModeWeek:
		start := day.AddDate(0, 0, -lead(day.Weekday(), weekStart))
		return model.Window{Start: start, End: model.EndOfDay(start.AddDate(0, 0, 6))}
	case ModeDay:
		return model.DayWindow(day)
	default:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		lead := lead(first.Weekday(), weekStart)
		cells := (lead + daysIn(first) + 6) / 7 * 7
		start := first.AddDate(0, 0, -lead)
		return model.Window{Start: start, End: model.EndOfDay(start.AddDate(0, 0, cells-1))}
	}
}

// Step moves base by n months, weeks or days. Month steps clamp the day of
// month so that e.g. Jan 31 + 1 month is Feb 28.
func Step(mode Mode, base time.Time, n int) time.Time {
	switch mode {
	case ModeWeek:
		return base.AddDate(0, 0, 7*n)
	case ModeDay:
		return base.AddDate(0, 0, n)
	default:
		first := time.Date(base.Year(), base.Month()+time.Month(n), 1,
			base.Hour(), base.Minute(), base.Second(), base.Nanosecond(), base.Location())
		d := base.Day()
		if max := daysIn(first); d > max {
			d = max
		}
		return first.AddDate(0, 0, d-1)
	}
}

// Title is the heading shown above a view.
func Title(mode Mode, base time.Time, w model.Window) string {
	switch mode {
	case ModeWeek:
		return "Week of " + w.Start.Format("Jan 2")
	case ModeDay:
		return base.Format("Monday, January 2")
	default:
		return base.Format("January 2006")
	}
}

func lead(d, weekStart time.Weekday) int {
	return (int(d) - int(weekStart) + 7) % 7
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}
