package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Zone-less layouts, tried in order with time.ParseInLocation.
// Fractional seconds are accepted after the seconds field by the parser.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Lookup returns the value stored under key. Nil values and empty strings
// count as absent.
func (it Item) Lookup(key string) (any, bool) {
	if it == nil || key == "" {
		return nil, false
	}
	v, ok := it[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return nil, false
	}
	return v, true
}

// String renders the value under key as text, or "" when absent.
func (it Item) String(key string) string {
	v, ok := it.Lookup(key)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// ID returns the item identifier as text.
func (it Item) ID() string {
	return it.String(FieldID)
}

// Title returns the title field, falling back to "Untitled".
func (it Item) Title(key string) string {
	if key == "" {
		key = FieldTitle
	}
	if s := it.String(key); s != "" {
		return s
	}
	return "Untitled"
}

// Bool reads flag fields stored as bools, small integers or strings.
func (it Item) Bool(key string) bool {
	v, ok := it.Lookup(key)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}

// Time parses the value under key. Zone-less values are read in loc.
func (it Item) Time(key string, loc *time.Location) (time.Time, bool) {
	v, ok := it.Lookup(key)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(v, loc)
}

// BaseDate resolves the date an item is anchored on: the value of dateKey,
// or the default "date" field when dateKey is absent. A present but
// unparsable value does not fall back.
func (it Item) BaseDate(dateKey string, loc *time.Location) (time.Time, bool) {
	v, ok := it.Lookup(dateKey)
	if !ok {
		v, ok = it.Lookup(FieldDate)
	}
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(v, loc)
}

// Recurrence reads the built-in recurrence fields.
func (it Item) Recurrence(loc *time.Location) Recurrence {
	rec := Recurrence{Rule: ParseRule(it.String(FieldRecurrenceRule))}
	if end, ok := it.Time(FieldRecurrenceEnd, loc); ok {
		rec.EndDate = &end
	}
	if rec.Rule == RuleWeekly {
		if v, ok := it.Lookup(FieldRecurrenceDays); ok {
			rec.Weekdays = ParseWeekdays(v)
		}
	}
	return rec
}

// ParseWeekdays reads a weekday set, either the stored comma-separated form
// ("1,3") or a list of numbers. Entries outside 0..6 are dropped.
func ParseWeekdays(v any) []time.Weekday {
	var raw []string
	switch x := v.(type) {
	case string:
		raw = strings.Split(x, ",")
	case []string:
		raw = x
	case []int:
		for _, n := range x {
			raw = append(raw, strconv.Itoa(n))
		}
	case []any:
		for _, e := range x {
			raw = append(raw, fmt.Sprint(e))
		}
	default:
		raw = []string{fmt.Sprint(x)}
	}

	out := make([]time.Weekday, 0, len(raw))
	seen := make(map[time.Weekday]bool, len(raw))
	for _, s := range raw {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		d := time.Weekday(n)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// FormatWeekdays is the inverse of ParseWeekdays for the stored form.
func FormatWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

// ParseTime converts a stored scalar into a time in loc. Numbers are Unix
// milliseconds. Strings may be RFC 3339 or one of the zone-less layouts.
func ParseTime(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.In(loc), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, false
		}
		return x.In(loc), true
	case int64:
		return time.UnixMilli(x).In(loc), true
	case int:
		return time.UnixMilli(int64(x)).In(loc), true
	case float64:
		return time.UnixMilli(int64(x)).In(loc), true
	case string:
		return parseTimeString(x, loc)
	}
	return time.Time{}, false
}

func parseTimeString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
