// Package recur expands items with recurrence rules into concrete
// calendar-day occurrences inside a view window.
//
// Expansion is pure: no logging, no shared state. The same items may be
// expanded against different windows concurrently.
package recur

import (
	"time"

	"dbcal/internal/model"
)

// MaxSteps caps the walk of a single item. It is the only bound against
// degenerate rules (e.g. an end date before the base date combined with a
// far-future window) and must not be removed.
const MaxSteps = 1000

// Result is the outcome of an expansion.
type Result struct {
	// ByDay buckets occurrences by calendar day. Within a bucket the order
	// follows the input item order.
	ByDay map[model.DayKey][]model.Occurrence

	// Truncated lists IDs of items whose walk stopped at MaxSteps.
	Truncated []string
}

// Expand maps each calendar day to the occurrences falling on it.
//
// dateKey names the field holding each item's base date; items without it
// fall back to the "date" field and are skipped when neither parses.
// Non-recurring items are always emitted once on their base date, even
// outside w. Recurring items are only emitted inside w.
func Expand(items []model.Item, dateKey string, w model.Window) map[model.DayKey][]model.Occurrence {
	return ExpandAll(items, dateKey, w).ByDay
}

// ExpandAll is Expand plus the list of items that hit MaxSteps.
func ExpandAll(items []model.Item, dateKey string, w model.Window) Result {
	res := Result{ByDay: make(map[model.DayKey][]model.Occurrence)}

	for _, it := range items {
		occs, capped := Occurrences(it, dateKey, w)
		for _, o := range occs {
			res.ByDay[o.Day] = append(res.ByDay[o.Day], o)
		}
		if capped {
			res.Truncated = append(res.Truncated, it.ID())
		}
	}
	return res
}

// Occurrences expands a single item. The second result reports whether the
// walk stopped at MaxSteps.
func Occurrences(it model.Item, dateKey string, w model.Window) ([]model.Occurrence, bool) {
	loc := w.Location()
	base, ok := it.BaseDate(dateKey, loc)
	if !ok {
		return nil, false
	}
	return walk(it, base, it.Recurrence(loc), w)
}

func walk(it model.Item, base time.Time, rec model.Recurrence, w model.Window) ([]model.Occurrence, bool) {
	if rec.Rule == model.RuleNone {
		return []model.Occurrence{newOccurrence(it, base)}, false
	}

	var until time.Time
	bounded := rec.EndDate != nil
	if bounded {
		until = model.EndOfDay(*rec.EndDate)
	}

	cur := base
	if rec.Rule == model.RuleDaily && cur.Before(w.Start) {
		cur = fastForward(base, w.Start)
	}
	byWeekday := rec.Rule == model.RuleWeekly && len(rec.Weekdays) > 0

	var out []model.Occurrence
	for steps := 0; ; steps++ {
		if cur.After(w.End) {
			return out, false
		}
		if bounded && cur.After(until) {
			return out, false
		}
		if steps >= MaxSteps {
			return out, true
		}

		if (!byWeekday || rec.HasWeekday(cur.Weekday())) && visible(cur, w) {
			out = append(out, newOccurrence(it, cur))
		}

		next, ok := advance(cur, rec.Rule, byWeekday)
		if !ok {
			return out, false
		}
		cur = next
	}
}

// visible admits cursors inside the window, and anything on the window's
// first calendar day regardless of time of day. The walk has already
// stopped for cursors past the window end.
func visible(cur time.Time, w model.Window) bool {
	return w.Contains(cur) || model.SameDay(cur, w.Start)
}

// advance returns the next cursor for rule. Month and year steps keep the
// day of month and let the date arithmetic roll over short months.
func advance(cur time.Time, rule model.Rule, byWeekday bool) (time.Time, bool) {
	switch rule {
	case model.RuleDaily:
		return cur.AddDate(0, 0, 1), true
	case model.RuleWeekly:
		if byWeekday {
			return cur.AddDate(0, 0, 1), true
		}
		return cur.AddDate(0, 0, 7), true
	case model.RuleMonthly:
		return cur.AddDate(0, 1, 0), true
	case model.RuleYearly:
		return cur.AddDate(1, 0, 0), true
	}
	return time.Time{}, false
}

// fastForward moves a daily cursor onto the window's first day, keeping the
// base time of day.
func fastForward(base, start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d, base.Hour(), base.Minute(), base.Second(), 0, start.Location())
}

func newOccurrence(it model.Item, at time.Time) model.Occurrence {
	return model.Occurrence{
		Item: it,
		Date: at,
		Day:  model.KeyOf(at),
	}
}
