package panel

import (
	"fmt"
	"time"
)

// Wire layouts expected by the prediction backend.
const (
	DateLayout     = "2006-01-02"
	ClockLayout    = "15:04"
	DateTimeLayout = "2006-01-02 15:04"
)

var (
	clockLayouts    = []string{ClockLayout, "15:04:05"}
	dateTimeLayouts = []string{DateTimeLayout, "2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
)

// Components is the numeric date/time representation used by the
// chart and naming endpoints. Month is one-based.
type Components struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
}

// ParseDate parses a YYYY-MM-DD date. The result carries no zone meaning.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("panel: parse date %q: %w", value, err)
	}
	return t, nil
}

// ParseClock parses HH:mm, tolerating a trailing seconds component.
func ParseClock(value string) (time.Time, error) {
	return parseAny("time", value, clockLayouts)
}

// ParseDateTime parses YYYY-MM-DD HH:mm and the datetime-local spelling.
func ParseDateTime(value string) (time.Time, error) {
	return parseAny("datetime", value, dateTimeLayouts)
}

func parseAny(kind, value string, layouts []string) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("panel: parse %s %q: %w", kind, value, firstErr)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// FormatClock renders t as HH:mm.
func FormatClock(t time.Time) string { return t.Format(ClockLayout) }

// FormatDateTime renders t as YYYY-MM-DD HH:mm.
func FormatDateTime(t time.Time) string { return t.Format(DateTimeLayout) }

// ComponentsOf combines the calendar part of date with the clock part of clock.
// time.Month is already one-based, so January encodes as 1.
func ComponentsOf(date, clock time.Time) Components {
	return Components{
		Year:   date.Year(),
		Month:  int(date.Month()),
		Day:    date.Day(),
		Hour:   clock.Hour(),
		Minute: clock.Minute(),
	}
}

// MonthFromIndex converts a zero-based month index, as produced by
// JavaScript date pickers, into a time.Month.
func MonthFromIndex(index int) (time.Month, error) {
	if index < 0 || index > 11 {
		return 0, fmt.Errorf("panel: month index %d out of range", index)
	}
	return time.Month(index + 1), nil
}

// components reads a date and a time field from values.
func (v Values) components(dateField, clockField string) (Components, error) {
	date, err := ParseDate(v.Get(dateField))
	if err != nil {
		return Components{}, err
	}
	clock, err := ParseClock(v.Get(clockField))
	if err != nil {
		return Components{}, err
	}
	return ComponentsOf(date, clock), nil
}

// InputValue converts a canonical value into the spelling an HTML input of
// the given kind expects.
func InputValue(kind FieldKind, value string) string {
	if kind != KindDateTime || value == "" {
		return value
	}
	t, err := ParseDateTime(value)
	if err != nil {
		return value
	}
	return t.Format("2006-01-02T15:04")
}
