package ics

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"dbcal/internal/model"
	"dbcal/internal/recur"
)

// rrule weekdays in RFC 5545 order, MO first.
var rruleDays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// RecurrenceFromRRule maps an RRULE value onto the supported frequencies.
//
// BYDAY becomes the weekday set of a weekly rule, UNTIL the inclusive end
// date. COUNT is resolved to the date of the last instance starting at
// dtstart. INTERVAL and the other BY* parts have no equivalent and are
// dropped. Frequencies below DAILY degrade to NONE.
func RecurrenceFromRRule(value string, dtstart time.Time, loc *time.Location) (model.Recurrence, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return model.Recurrence{Rule: model.RuleNone}, err
	}

	rec := model.Recurrence{}
	switch opt.Freq {
	case rrule.DAILY:
		rec.Rule = model.RuleDaily
	case rrule.WEEKLY:
		rec.Rule = model.RuleWeekly
	case rrule.MONTHLY:
		rec.Rule = model.RuleMonthly
	case rrule.YEARLY:
		rec.Rule = model.RuleYearly
	default:
		return model.Recurrence{Rule: model.RuleNone}, nil
	}

	if rec.Rule == model.RuleWeekly {
		for i := range opt.Byweekday {
			d := time.Weekday((opt.Byweekday[i].Day() + 1) % 7)
			if !rec.HasWeekday(d) {
				rec.Weekdays = append(rec.Weekdays, d)
			}
		}
	}

	switch {
	case !opt.Until.IsZero():
		until := opt.Until.In(loc)
		if d, ok := dateOnlyUntil(value, loc); ok {
			until = d
		}
		rec.EndDate = &until
	case opt.Count > 0 && opt.Count <= recur.MaxSteps && !dtstart.IsZero():
		opt.Dtstart = dtstart
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return rec, err
		}
		if all := r.All(); len(all) > 0 {
			last := all[len(all)-1].In(loc)
			rec.EndDate = &last
		}
	}
	return rec, nil
}

// dateOnlyUntil reads a date-form UNTIL (YYYYMMDD) as that calendar day in
// loc. rrule-go parses it as UTC midnight, which is the previous day west of
// UTC.
func dateOnlyUntil(value string, loc *time.Location) (time.Time, bool) {
	for _, part := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "UNTIL") {
			continue
		}
		v = strings.TrimSpace(v)
		if strings.Contains(v, "T") {
			return time.Time{}, false
		}
		d, err := time.ParseInLocation("20060102", v, loc)
		return d, err == nil
	}
	return time.Time{}, false
}

// RRuleFromRecurrence renders rec as an RRULE value (without the "RRULE:"
// prefix). It returns false for NONE and unknown rules.
func RRuleFromRecurrence(rec model.Recurrence) (string, bool) {
	opt := rrule.ROption{}
	switch rec.Rule {
	case model.RuleDaily:
		opt.Freq = rrule.DAILY
	case model.RuleWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range rec.Weekdays {
			opt.Byweekday = append(opt.Byweekday, rruleDays[(int(d)+6)%7])
		}
	case model.RuleMonthly:
		opt.Freq = rrule.MONTHLY
	case model.RuleYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", false
	}
	if rec.EndDate != nil {
		opt.Until = model.EndOfDay(*rec.EndDate).UTC().Truncate(time.Second)
	}
	return opt.RRuleString(), true
}
