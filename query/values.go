package query

import "time"

// DateTimeOffset is a point in time that keeps its UTC offset when written.
// Plain time.Time values are written without zone information.
type DateTimeOffset struct {
	time.Time
}

// WithOffset wraps t as a DateTimeOffset.
func WithOffset(t time.Time) DateTimeOffset {
	return DateTimeOffset{Time: t}
}

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
