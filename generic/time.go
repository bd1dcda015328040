package generic

import (
	"time"
)

// =============================================================================
// INSTANTS - Millisecond-precision day boundaries
// =============================================================================

// LastMillisecond is the offset from midnight to the final instant of a day.
const LastMillisecond = 24*time.Hour - time.Millisecond

// StartOfDay returns 00:00:00.000 of the given calendar day in loc.
func StartOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, orLocal(loc))
}

// EndOfDay returns 23:59:59.999 of the given calendar day in loc.
func EndOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), orLocal(loc))
}

// DaysIn returns the number of days in month, computed as day 0 of the next month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOfMonth returns the first instant of the month in loc.
func StartOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return StartOfDay(year, month, 1, loc)
}

// EndOfMonth returns the last instant of the month in loc.
func EndOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return EndOfDay(year, month, DaysIn(year, month), loc)
}

func StartOfYear(year int, loc *time.Location) time.Time { return StartOfDay(year, time.January, 1, loc) }
func EndOfYear(year int, loc *time.Location) time.Time   { return EndOfDay(year, time.December, 31, loc) }

// ToMillis converts t to milliseconds since the Unix epoch.
func ToMillis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis converts milliseconds since the Unix epoch to a time in loc.
func FromMillis(ms int64, loc *time.Location) time.Time {
	return time.UnixMilli(ms).In(orLocal(loc))
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock abstracts "now" so summaries and timestamps are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
