package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"dbcal/internal/model"
)

// ExportOptions selects the fields read from each item.
type ExportOptions struct {
	// DateKey names the date field; empty means created_at.
	DateKey  string
	TitleKey string
	Location *time.Location
	Name     string
}

// Export renders items as a VCALENDAR. Items without a parsable date are
// skipped. Items imported from a feed keep their UID; others get a stable
// UID derived from their collection and id.
func Export(items []model.Item, opts ExportOptions) string {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	keys := model.KeysFor(opts.DateKey)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//dbcal//calendar//EN")
	if opts.Name != "" {
		cal.SetName(opts.Name)
	}

	stamp := time.Now().UTC()
	for _, it := range items {
		start, ok := it.BaseDate(keys.Date, loc)
		if !ok {
			continue
		}

		ev := cal.AddEvent(itemUID(it))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(it.Title(opts.TitleKey))
		if v := it.String(FieldDescription); v != "" {
			ev.SetDescription(v)
		}
		if v := it.String(FieldLocation); v != "" {
			ev.SetLocation(v)
		}

		if it.Bool(keys.AllDay) {
			day := model.StartOfDay(start)
			ev.SetAllDayStartAt(day)
			ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
		} else {
			end, ok := it.Time(keys.End, loc)
			if !ok || !end.After(start) {
				end = start.Add(time.Hour)
			}
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}

		if rule, ok := RRuleFromRecurrence(it.Recurrence(loc)); ok {
			ev.SetProperty(ical.ComponentPropertyRrule, rule)
		}
	}
	return cal.Serialize()
}

func itemUID(it model.Item) string {
	if uid := it.String(model.FieldUID); uid != "" {
		return uid
	}
	name := fmt.Sprintf("dbcal:%s:%s", it.String(model.FieldCollectionID), it.ID())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String() + "@dbcal"
}
