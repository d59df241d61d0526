// Package layout places same-day occurrences on a 24 hour timeline so that
// overlapping events land in separate columns.
package layout

import (
	"cmp"
	"slices"
	"time"

	"dbcal/internal/model"
)

// DefaultDuration is the length, in hours, of an event without an end
// timestamp.
const DefaultDuration = 1.0

// Interval maps an occurrence onto its day's timeline.
//
// The start hour comes from the time of day of the item's date field. The
// end hour comes from the end field, or DefaultDuration after the start.
// An end on a later calendar day is clamped to 24; all-day items span
// [0,24).
func Interval(o model.Occurrence, keys model.FieldKeys) model.TimedInterval {
	loc := o.Date.Location()
	if loc == nil {
		loc = time.Local
	}

	base, ok := o.Item.BaseDate(keys.Date, loc)
	if !ok {
		base = o.Date
	}

	start := hourOf(base)
	end := start + DefaultDuration
	if e, ok := o.Item.Time(keys.End, loc); ok {
		switch {
		case model.SameDay(base, e):
			end = hourOf(e)
		case e.After(base):
			end = 24
		}
	}
	if o.Item.Bool(keys.AllDay) {
		start, end = 0, 24
	}

	if end <= start {
		end = start + DefaultDuration
	}
	if end > 24 {
		end = 24
	}

	return model.TimedInterval{
		Occurrence: o,
		StartHour:  start,
		EndHour:    end,
	}
}

// Pack assigns a column to every occurrence of one calendar day.
//
// Intervals are visited by start hour, longest first on ties, and each takes
// the leftmost column whose watermark (end of its last interval) is at or
// before its start. Columns is the number of columns opened over the whole
// day, so widths stay uniform across the day.
func Pack(occs []model.Occurrence, keys model.FieldKeys) []model.PackedInterval {
	packed := make([]model.PackedInterval, len(occs))
	for i, o := range occs {
		packed[i].TimedInterval = Interval(o, keys)
	}

	slices.SortStableFunc(packed, func(a, b model.PackedInterval) int {
		if c := cmp.Compare(a.StartHour, b.StartHour); c != 0 {
			return c
		}
		return cmp.Compare(b.EndHour, a.EndHour)
	})

	var watermarks []float64
	for i := range packed {
		p := &packed[i]
		col := -1
		for c, mark := range watermarks {
			if mark <= p.StartHour {
				col = c
				break
			}
		}
		if col < 0 {
			col = len(watermarks)
			watermarks = append(watermarks, p.EndHour)
		} else {
			watermarks[col] = p.EndHour
		}
		p.Column = col
	}

	for i := range packed {
		packed[i].Columns = len(watermarks)
	}
	return packed
}

func hourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
