package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dbcal/internal/log"
	"dbcal/internal/model"
)

// Extra item fields filled from VEVENT properties.
const (
	FieldDescription  = "description"
	FieldLocation     = "location"
	FieldRecurrenceID = "recurrence_id"
)

const propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")

// ParseFeed converts the VEVENTs of an ICS payload into items anchored on
// the "date" field. Timed events are stored as RFC 3339 instants, all-day
// events as dates in loc.
//
// Events without UID or DTSTART are skipped. Overrides of a recurring
// instance (RECURRENCE-ID) become standalone items.
func ParseFeed(src Source, body []byte, loc *time.Location) ([]model.Item, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src, err)
	}

	events := cal.Events()
	items := make([]model.Item, 0, len(events))
	for _, ev := range events {
		it, err := eventItem(ev, loc)
		if err != nil {
			appLog.Debug("skipping vevent", "id", src.ID, "err", err)
			continue
		}
		items = append(items, it)
	}

	appLog.Info("feed parsed", "id", src.ID, "source", src.String(), "events", len(events), "items", len(items))
	return items, nil
}

func eventItem(ev *ical.VEvent, loc *time.Location) (model.Item, error) {
	uid := propValue(ev, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return nil, errors.New("missing UID")
	}
	dtstart := ev.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil || dtstart.Value == "" {
		return nil, fmt.Errorf("%s: missing DTSTART", uid)
	}

	it := model.Item{
		model.FieldUID:   uid,
		model.FieldTitle: propValue(ev, ical.ComponentPropertySummary),
	}
	if v := propValue(ev, ical.ComponentPropertyDescription); v != "" {
		it[FieldDescription] = v
	}
	if v := propValue(ev, ical.ComponentPropertyLocation); v != "" {
		it[FieldLocation] = v
	}

	var start time.Time
	if isDateValue(dtstart) {
		d, err := time.ParseInLocation("20060102", dtstart.Value, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: DTSTART: %w", uid, err)
		}
		start = d
		it[model.FieldDate] = d.Format("2006-01-02")
		it[model.FieldAllDay] = true
	} else {
		t, err := ev.GetStartAt()
		if err != nil {
			return nil, fmt.Errorf("%s: DTSTART: %w", uid, err)
		}
		start = t.In(loc)
		it[model.FieldDate] = start.Format(time.RFC3339)
		if end, err := ev.GetEndAt(); err == nil && end.After(t) {
			it[model.FieldEnd] = end.In(loc).Format(time.RFC3339)
		}
	}

	if rid := ev.GetProperty(propRecurrenceID); rid != nil && strings.TrimSpace(rid.Value) != "" {
		// The master already yields this slot.
		if orig, ok := recurrenceIDTime(rid, loc); ok && orig.Equal(start) {
			return nil, fmt.Errorf("%s: override keeps the original start", uid)
		}
		it[FieldRecurrenceID] = strings.TrimSpace(rid.Value)
		it[model.FieldRecurrenceRule] = string(model.RuleNone)
		return it, nil
	}

	rec := model.Recurrence{Rule: model.RuleNone}
	if raw := propValue(ev, ical.ComponentPropertyRrule); raw != "" {
		var err error
		rec, err = RecurrenceFromRRule(raw, start, loc)
		if err != nil {
			appLog.Debug("unsupported RRULE, importing single instance", "uid", uid, "rrule", raw, "err", err)
		}
	}
	it[model.FieldRecurrenceRule] = string(rec.Rule)
	if rec.EndDate != nil {
		it[model.FieldRecurrenceEnd] = rec.EndDate.Format("2006-01-02")
	}
	if len(rec.Weekdays) > 0 {
		it[model.FieldRecurrenceDays] = model.FormatWeekdays(rec.Weekdays)
	}
	return it, nil
}

func propValue(ev *ical.VEvent, p ical.ComponentProperty) string {
	prop := ev.GetProperty(p)
	if prop == nil {
		return ""
	}
	return strings.TrimSpace(prop.Value)
}

// recurrenceIDTime parses a RECURRENCE-ID in UTC, its TZID zone or loc.
func recurrenceIDTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool) {
	v := strings.TrimSpace(p.Value)
	if isDateValue(p) {
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, err == nil
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t, err == nil
	}
	zone := loc
	if ids, ok := p.ICalParameters["TZID"]; ok && len(ids) > 0 {
		if z, err := time.LoadLocation(ids[0]); err == nil {
			zone = z
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, zone)
	return t, err == nil
}

// isDateValue reports an all-day DTSTART: VALUE=DATE or a bare YYYYMMDD.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}
