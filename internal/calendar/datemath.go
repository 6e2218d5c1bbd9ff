// Package calendar implements the civil-date arithmetic, month and week grid
// construction and the navigation state machine behind the market calendar.
//
// Months are 1-12 and weekdays 0 (Sunday) to 6 (Saturday) throughout. A month
// outside 1-12 passed to any helper here is a programming error and panics;
// untrusted text goes through ParseDateKey, which returns an error instead.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// KeyLayout is the time layout of a date key.
const KeyLayout = "2006-01-02"

// Date is a civil calendar date with no time-of-day or zone.
type Date struct {
	Year  int
	Month int
	Day   int
}

// NewDate returns the normalized date for year, month and day. Overflowing
// days roll into the following month the same way time.Date does.
func NewDate(year, month, day int) Date {
	mustMonth(month)
	return FromTime(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC))
}

// FromTime returns the calendar date of t in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: int(m), Day: d}
}

// Time returns midnight UTC on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// Key returns the YYYY-MM-DD date key of d.
func (d Date) Key() string {
	return DateKey(d.Year, d.Month, d.Day)
}

func (d Date) String() string { return d.Key() }

// MarshalText encodes d as its date key; the zero Date encodes as "".
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.Key()), nil
}

// UnmarshalText decodes a date key. An empty string decodes to the zero Date.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDateKey(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// Weekday returns 0 (Sunday) through 6 (Saturday).
func (d Date) Weekday() int {
	return int(d.Time().Weekday())
}

// StartOfWeek returns the Sunday on or before d.
func (d Date) StartOfWeek() Date {
	return d.AddDays(-d.Weekday())
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.compare(o) < 0 }

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool { return d.compare(o) > 0 }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

func (d Date) compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return d.Year - o.Year
	case d.Month != o.Month:
		return d.Month - o.Month
	default:
		return d.Day - o.Day
	}
}

// ShortLabel renders d as "Jan 5".
func (d Date) ShortLabel() string {
	return fmt.Sprintf("%s %d", ShortMonthName(d.Month), d.Day)
}

// DaysInMonth returns the number of days (28-31) in the given month.
func DaysInMonth(year, month int) int {
	mustMonth(month)
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOfMonth returns the weekday (0 = Sunday) of the 1st of the
// month.
func FirstWeekdayOfMonth(year, month int) int {
	mustMonth(month)
	return int(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Weekday())
}

// AddMonths shifts (year, month) by delta months in either direction.
func AddMonths(year, month, delta int) (int, int) {
	mustMonth(month)
	idx := year*12 + (month - 1) + delta
	y := floorDiv(idx, 12)
	return y, idx - y*12 + 1
}

// DateKey formats a date as YYYY-MM-DD with zero padding.
func DateKey(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// ParseDateKey parses a YYYY-MM-DD date key. It rejects anything that is not
// exactly a valid calendar date in that layout.
func ParseDateKey(s string) (Date, error) {
	if len(s) != len(KeyLayout) {
		return Date{}, fmt.Errorf("invalid date key %q", s)
	}
	t, err := time.Parse(KeyLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date key %q: %w", s, err)
	}
	return FromTime(t), nil
}

// StartOfWeek returns the Sunday on or before the calendar date of t. The
// time of day is dropped.
func StartOfWeek(t time.Time) Date {
	return FromTime(t).StartOfWeek()
}

var monthNames = [...]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var dayNames = [...]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// MonthName returns the English name of month, e.g. "January".
func MonthName(month int) string {
	mustMonth(month)
	return monthNames[month-1]
}

// ShortMonthName returns the three-letter month abbreviation, e.g. "Jan".
func ShortMonthName(month int) string {
	return MonthName(month)[:3]
}

// DayName returns the English weekday name for 0 (Sunday) through 6.
func DayName(weekday int) string {
	if weekday < 0 || weekday > 6 {
		panic(fmt.Sprintf("calendar: weekday %d out of range", weekday))
	}
	return dayNames[weekday]
}

// ShortDayName returns the upper-case three-letter weekday, e.g. "SUN".
func ShortDayName(weekday int) string {
	return strings.ToUpper(DayName(weekday)[:3])
}

func mustMonth(month int) {
	if month < 1 || month > 12 {
		panic(fmt.Sprintf("calendar: month %d out of range", month))
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
