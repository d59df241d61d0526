package calendar

import (
	"time"

	"dbcal/internal/layout"
	"dbcal/internal/model"
	"dbcal/internal/recur"
)

// Options controls how items are read when building a view.
type Options struct {
	// DateKey names the date field; empty means "created_at".
	DateKey string
	// TitleKey names the field shown as the event label.
	TitleKey string

	WeekStart time.Weekday

	// Filter hides items for which it returns false. Hidden items still
	// take part in column packing, so toggling a filter never reflows the
	// remaining events.
	Filter func(model.Item) bool
}

// Day is one cell of a view.
type Day struct {
	Date time.Time
	Key  model.DayKey
	// InMonth is false for the leading/trailing days of a month grid.
	InMonth bool

	Occurrences []model.Occurrence
	// Packed is only filled in timeline modes.
	Packed []model.PackedInterval
}

// View is a fully assembled calendar page.
type View struct {
	Mode      Mode
	Base      time.Time
	Window    model.Window
	Title     string
	TitleKey  string
	Days      []Day
	Truncated []string
}

// Build expands items over the window of mode around base and assembles
// the per-day cells.
func Build(mode Mode, base time.Time, items []model.Item, opts Options) View {
	dateKey := opts.DateKey
	if dateKey == "" {
		dateKey = model.FieldCreatedAt
	}
	keys := model.KeysFor(dateKey)

	w := Range(mode, base, opts.WeekStart)
	res := recur.ExpandAll(items, dateKey, w)

	v := View{
		Mode:      mode,
		Base:      base,
		Window:    w,
		Title:     Title(mode, base, w),
		TitleKey:  opts.TitleKey,
		Truncated: res.Truncated,
	}

	for _, d := range w.Days() {
		key := model.KeyOf(d)
		occs := res.ByDay[key]
		cell := Day{
			Date:    d,
			Key:     key,
			InMonth: mode != ModeMonth || d.Month() == base.Month(),
		}
		if mode.Timeline() {
			cell.Packed = visiblePacked(layout.Pack(occs, keys), opts.Filter)
		}
		cell.Occurrences = visible(occs, opts.Filter)
		v.Days = append(v.Days, cell)
	}
	return v
}

// Columns returns the column count of a packed day, 1 when empty.
func (d Day) Columns() int {
	if len(d.Packed) == 0 {
		return 1
	}
	return d.Packed[0].Columns
}

func visible(occs []model.Occurrence, keep func(model.Item) bool) []model.Occurrence {
	if keep == nil {
		return occs
	}
	out := make([]model.Occurrence, 0, len(occs))
	for _, o := range occs {
		if keep(o.Item) {
			out = append(out, o)
		}
	}
	return out
}

func visiblePacked(packed []model.PackedInterval, keep func(model.Item) bool) []model.PackedInterval {
	if keep == nil {
		return packed
	}
	out := make([]model.PackedInterval, 0, len(packed))
	for _, p := range packed {
		if keep(p.Occurrence.Item) {
			out = append(out, p)
		}
	}
	return out
}

// CollectionFilter keeps items whose collection_id is in ids. An empty set
// keeps everything.
func CollectionFilter(ids []string) func(model.Item) bool {
	if len(ids) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	return func(it model.Item) bool {
		return allowed[it.String(model.FieldCollectionID)]
	}
}
