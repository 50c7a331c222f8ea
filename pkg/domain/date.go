package domain

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date layout used for milestone dates.
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day, stored as YYYY-MM-DD. The zero
// value means "not reached". Dates in this layout order lexically.
type Date string

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return ""
	}
	return Date(t.UTC().Format(DateLayout))
}

// ParseDate validates an ISO calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date(t.Format(DateLayout)), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == "" }

// Before reports whether d is strictly earlier than other. Unset dates never compare.
func (d Date) Before(other Date) bool {
	if d.IsZero() || other.IsZero() {
		return false
	}
	return d < other
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) String() string { return string(d) }
