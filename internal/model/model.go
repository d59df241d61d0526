package model

import (
	"strings"
	"time"
)

// Item is a single record handed over by the item store. It is the source
// event of the calendar: a flat mapping of field keys to scalar values
// (strings, numbers, bools, time.Time or nil).
//
// Engines only read items. Occurrences keep the same Item value, so a
// recurring event yields many occurrences backed by one map.
type Item map[string]any

// Built-in field keys shared by every collection.
const (
	FieldID             = "id"
	FieldCreatedAt      = "created_at"
	FieldDate           = "date"
	FieldTitle          = "title"
	FieldEnd            = "end_date_time"
	FieldAllDay         = "is_all_day"
	FieldRecurrenceRule = "recurrence_rule"
	FieldRecurrenceEnd  = "recurrence_end_date"
	FieldRecurrenceDays = "recurrence_days"
	FieldCollectionID   = "collection_id"
	FieldCollectionName = "collection_name"

	// Set on items imported from ICS feeds.
	FieldUID    = "uid"
	FieldFeedID = "feed_id"
)

// BuiltinFields lists the keys managed by the system rather than by a
// collection schema.
var BuiltinFields = []string{
	FieldID, FieldCreatedAt, FieldCollectionID, FieldCollectionName,
	FieldRecurrenceRule, FieldRecurrenceEnd, FieldRecurrenceDays,
	FieldEnd, FieldAllDay, FieldTitle,
}

// Rule is the recurrence frequency of an item.
type Rule string

const (
	RuleNone    Rule = "NONE"
	RuleDaily   Rule = "DAILY"
	RuleWeekly  Rule = "WEEKLY"
	RuleMonthly Rule = "MONTHLY"
	RuleYearly  Rule = "YEARLY"
)

// ParseRule normalizes a stored rule value. Empty input means RuleNone.
// Unknown values are kept as-is so the expansion engine can degrade them.
func ParseRule(s string) Rule {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return RuleNone
	}
	return Rule(s)
}

// Known reports whether r is one of the supported frequencies.
func (r Rule) Known() bool {
	switch r {
	case RuleNone, RuleDaily, RuleWeekly, RuleMonthly, RuleYearly:
		return true
	}
	return false
}

// Recurrence describes how an item repeats.
type Recurrence struct {
	Rule Rule

	// EndDate is the last calendar day an occurrence may fall on, inclusive
	// through 23:59:59.999. Nil means unbounded.
	EndDate *time.Time

	// Weekdays restricts RuleWeekly to the given days. Empty means "same
	// weekday as the base date, every 7 days". Ignored for other rules.
	Weekdays []time.Weekday
}

// HasWeekday reports whether d is in the weekday set.
func (r Recurrence) HasWeekday(d time.Weekday) bool {
	for _, w := range r.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// Occurrence is one concrete calendar-day instance of an item.
type Occurrence struct {
	Item Item

	// Date carries the calendar day of the instance with the base date's
	// time of day.
	Date time.Time
	Day  DayKey
}

// TimedInterval is an occurrence mapped onto a 24 hour timeline.
// StartHour is in [0,24), EndHour in (0,24] and EndHour > StartHour.
type TimedInterval struct {
	Occurrence Occurrence
	StartHour  float64
	EndHour    float64
}

// PackedInterval is a TimedInterval with its assigned column. Columns is
// identical for every interval packed for the same day.
type PackedInterval struct {
	TimedInterval
	Column  int
	Columns int
}

// FieldKeys names the item fields read when mapping occurrences to
// intervals.
type FieldKeys struct {
	Date   string
	End    string
	AllDay string
}

// KeysFor returns the built-in end/all-day keys paired with dateKey.
func KeysFor(dateKey string) FieldKeys {
	if dateKey == "" {
		dateKey = FieldCreatedAt
	}
	return FieldKeys{
		Date:   dateKey,
		End:    FieldEnd,
		AllDay: FieldAllDay,
	}
}
