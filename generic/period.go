package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Half-month settlement window
// =============================================================================

// Half selects the first (1st-15th) or second (16th-end) half of a month.
type Half int

const (
	FirstHalf  Half = 1
	SecondHalf Half = 2
)

func (h Half) Valid() bool { return h == FirstHalf || h == SecondHalf }

// Period is a resolved half-month pay period.
// Start and End are inclusive, with millisecond precision.
//
// Examples:
//   - 2024-03 H1: 2024-03-01 00:00:00.000 .. 2024-03-15 23:59:59.999
//   - 2024-02 H2: 2024-02-16 00:00:00.000 .. 2024-02-29 23:59:59.999
type Period struct {
	Year  int
	Month time.Month
	Half  Half
	Start time.Time
	End   time.Time
}

// ResolvePeriod converts a (year, month, half) selector into its interval.
// A nil loc means time.Local. The result depends on nothing but the arguments.
func ResolvePeriod(year int, month time.Month, half Half, loc *time.Location) (Period, error) {
	if year < 1 || year > 9999 {
		return Period{}, &PeriodError{Year: year, Month: int(month), Half: int(half), Reason: "year out of range"}
	}
	if month < time.January || month > time.December {
		return Period{}, &PeriodError{Year: year, Month: int(month), Half: int(half), Reason: "month must be 1-12"}
	}
	if !half.Valid() {
		return Period{}, &PeriodError{Year: year, Month: int(month), Half: int(half), Reason: "half must be 1 or 2"}
	}

	p := Period{Year: year, Month: month, Half: half}
	if half == FirstHalf {
		p.Start = StartOfDay(year, month, 1, loc)
		p.End = EndOfDay(year, month, 15, loc)
	} else {
		p.Start = StartOfDay(year, month, 16, loc)
		p.End = EndOfDay(year, month, DaysIn(year, month), loc)
	}
	return p, nil
}

// MustResolvePeriod is ResolvePeriod for inputs known to be valid.
func MustResolvePeriod(year int, month time.Month, half Half, loc *time.Location) Period {
	p, err := ResolvePeriod(year, month, half, loc)
	if err != nil {
		panic(err)
	}
	return p
}

// PeriodContaining returns the half-month period that t falls into, in t's location.
func PeriodContaining(t time.Time) Period {
	half := FirstHalf
	if t.Day() > 15 {
		half = SecondHalf
	}
	return MustResolvePeriod(t.Year(), t.Month(), half, t.Location())
}

// Contains reports whether t lies within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) StartMillis() int64 { return ToMillis(p.Start) }
func (p Period) EndMillis() int64   { return ToMillis(p.End) }

// Next returns the period immediately after p.
func (p Period) Next() Period {
	if p.Half == FirstHalf {
		return MustResolvePeriod(p.Year, p.Month, SecondHalf, p.Start.Location())
	}
	first := time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return MustResolvePeriod(first.Year(), first.Month(), FirstHalf, p.Start.Location())
}

// Previous returns the period immediately before p.
func (p Period) Previous() Period {
	if p.Half == SecondHalf {
		return MustResolvePeriod(p.Year, p.Month, FirstHalf, p.Start.Location())
	}
	prev := time.Date(p.Year, p.Month-1, 1, 0, 0, 0, 0, time.UTC)
	return MustResolvePeriod(prev.Year(), prev.Month(), SecondHalf, p.Start.Location())
}

// Key is a stable identifier such as "2024-03-H1".
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d-H%d", p.Year, int(p.Month), int(p.Half))
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02 15:04:05.000") + ", " + p.End.Format("2006-01-02 15:04:05.000") + "]"
}
