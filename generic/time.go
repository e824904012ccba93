package generic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar day abstraction (pay periods never carry a time of day)
// =============================================================================

// DateLayout is the wire format of every calendar day the engine persists.
const DateLayout = "2006-01-02"

// Date is a calendar day. The zero value is "no date".
// Internally it is always midnight UTC so that arithmetic never crosses a DST edge.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day an instant falls on in loc.
// A nil location means UTC.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDate(local.Year(), local.Month(), local.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// MustParseDate is ParseDate for literals in tests and demo data.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddMonthsClamped moves n months forward keeping the day-of-month,
// clamped to the last day of the target month (Jan 31 + 1 = Feb 28/29).
func (d Date) AddMonthsClamped(n int) Date {
	first := time.Date(d.t.Year(), d.t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := EndOfMonth(first.Year(), first.Month())
	day := d.t.Day()
	if day > last.Day() {
		day = last.Day()
	}
	return NewDate(first.Year(), first.Month(), day)
}

// Properties
func (d Date) Year() int          { return d.t.Year() }
func (d Date) Month() time.Month  { return d.t.Month() }
func (d Date) Day() int           { return d.t.Day() }
func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) EndOfMonth() Date   { return EndOfMonth(d.Year(), d.Month()) }
func (d Date) StartOfMonth() Date { return StartOfMonth(d.Year(), d.Month()) }

// SameMonth reports whether both days fall in the same calendar month.
func (d Date) SameMonth(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// =============================================================================
// JSON
// =============================================================================

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD and, for records written by older clients,
// full RFC 3339 timestamps (only the calendar day is kept).
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", s, err)
		}
		*d = NewDate(t.Year(), t.Month(), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================
// Note: Period type is defined in period.go

// DaysBetween returns to - from in whole days (negative when to is earlier).
func DaysBetween(from, to Date) int { return int(to.t.Sub(from.t).Hours() / 24) }

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }
func EndOfMonth(year int, month time.Month) Date {
	return Date{t: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}
