package model

import (
	"errors"
	"time"
)

// ErrInvertedWindow is returned when a window ends before it starts.
var ErrInvertedWindow = errors.New("window end is before start")

// DayKey identifies a calendar day ("2006-01-02") in the window's location.
type DayKey string

const dayKeyLayout = "2006-01-02"

// KeyOf returns the day key of t in t's own location.
func KeyOf(t time.Time) DayKey {
	return DayKey(t.Format(dayKeyLayout))
}

// StartOfDay truncates t to 00:00:00.000 of its calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay moves t to 23:59:59.999 of its calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in a's
// location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Window is an inclusive view range: Start at the beginning of its day, End
// at 23:59:59.999 of its day.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow normalizes start and end to whole days. end is read in start's
// location.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{
		Start: StartOfDay(start),
		End:   EndOfDay(end.In(start.Location())),
	}
	if w.End.Before(w.Start) {
		return Window{}, ErrInvertedWindow
	}
	return w, nil
}

// DayWindow is the window covering only t's calendar day.
func DayWindow(t time.Time) Window {
	return Window{Start: StartOfDay(t), End: EndOfDay(t)}
}

// Location returns the location dates in the window are read in.
func (w Window) Location() *time.Location {
	if loc := w.Start.Location(); loc != nil {
		return loc
	}
	return time.Local
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Days returns midnight of every day in the window, in order.
func (w Window) Days() []time.Time {
	var out []time.Time
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
