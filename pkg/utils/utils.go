package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateOf strips the clock part of t and returns the calendar date as UTC midnight.
// The calendar day is read in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// DaysBetween returns the number of calendar days from -> to (negative when to is earlier).
func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// AddDays returns the calendar date n days after date.
func AddDays(date time.Time, n int) time.Time {
	return DateOf(date).AddDate(0, 0, n)
}

// IsDateOverdue reports whether dueDate lies strictly before today.
// Both are compared as calendar dates, so a same-day return is never late.
func IsDateOverdue(dueDate, today time.Time) bool {
	return DateOf(today).After(DateOf(dueDate))
}

// CalculateLateFee charges perDay for every day past the due date.
func CalculateLateFee(daysLate int, perDay decimal.Decimal) decimal.Decimal {
	if daysLate <= 0 {
		return decimal.Zero
	}
	return perDay.Mul(decimal.NewFromInt(int64(daysLate))).Round(2)
}
