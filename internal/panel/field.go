package panel

import (
	"strings"
	"time"
)

// FieldKind identifies how a form value is entered and normalised.
type FieldKind string

const (
	// KindDate is a calendar date entered as YYYY-MM-DD.
	KindDate FieldKind = "date"
	// KindTime is a wall-clock time entered as HH:mm.
	KindTime FieldKind = "time"
	// KindDateTime is a date and time entered as YYYY-MM-DD HH:mm.
	KindDateTime FieldKind = "datetime"
	// KindText is free text.
	KindText FieldKind = "text"
	// KindSelect is one value out of a fixed option list.
	KindSelect FieldKind = "select"
)

// Option is one selectable enum value. Value is sent to the backend as-is.
type Option struct {
	Value    string
	LabelKey string
}

// Field describes a single form input of a panel.
type Field struct {
	Name           string
	Kind           FieldKind
	LabelKey       string
	PlaceholderKey string
	Required       bool
	Options        []Option
	Default        func(now time.Time) string
}

// Values maps field names to user-entered values.
type Values map[string]string

// Get returns the value for name or an empty string.
func (v Values) Get(name string) string {
	if v == nil {
		return ""
	}
	return v[name]
}

// Clone returns an independent copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = value
	}
	return out
}

// HasOption reports whether value is one of the field options.
func (f Field) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// normalize trims the raw input and rewrites accepted date/time spellings
// into the canonical layout. Unparseable input is returned trimmed so the
// validator can reject it.
func (f Field) normalize(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	switch f.Kind {
	case KindDate:
		if t, err := ParseDate(value); err == nil {
			return FormatDate(t)
		}
	case KindTime:
		if t, err := ParseClock(value); err == nil {
			return FormatClock(t)
		}
	case KindDateTime:
		if t, err := ParseDateTime(value); err == nil {
			return FormatDateTime(t)
		}
	}
	return value
}

func (f Field) defaultValue(now time.Time) string {
	if f.Default != nil {
		return f.Default(now)
	}
	switch f.Kind {
	case KindDate:
		return FormatDate(now)
	case KindTime:
		return FormatClock(now)
	case KindDateTime:
		return FormatDateTime(now)
	case KindSelect:
		if len(f.Options) > 0 {
			return f.Options[0].Value
		}
	}
	return ""
}
