package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// MONTHLY AGGREGATES
// =============================================================================

// SettlementState is the reporting status of a payroll month.
type SettlementState string

const (
	StatePaid    SettlementState = "Paid"
	StatePending SettlementState = "Pending"
)

// MonthlyAggregate rolls up every record whose period starts in one month.
// A month is Pending as a whole if any of its records is still a draft.
type MonthlyAggregate struct {
	Year        int
	Month       time.Month
	MonthIndex  int // 0-based, January = 0
	TotalAmount decimal.Decimal
	DriverIDs   []DriverID
	Employees   int
	Records     int
	Status      SettlementState
}

// Aggregate groups records by the month of their period start in loc,
// ordered chronologically. Pure.
func Aggregate(records []SalaryRecord, loc *time.Location) []MonthlyAggregate {
	if loc == nil {
		loc = time.Local
	}
	type monthKey struct {
		year  int
		month time.Month
	}
	type acc struct {
		total   decimal.Decimal
		drivers map[DriverID]struct{}
		records int
		pending bool
	}

	byMonth := make(map[monthKey]*acc)
	for _, r := range records {
		start := r.PeriodStart.In(loc)
		k := monthKey{start.Year(), start.Month()}
		a, ok := byMonth[k]
		if !ok {
			a = &acc{total: decimal.Zero, drivers: make(map[DriverID]struct{})}
			byMonth[k] = a
		}
		a.total = a.total.Add(r.TotalAmount.Value)
		a.drivers[r.DriverID] = struct{}{}
		a.records++
		if !r.IsProcessed() {
			a.pending = true
		}
	}

	result := make([]MonthlyAggregate, 0, len(byMonth))
	for k, a := range byMonth {
		ids := make([]DriverID, 0, len(a.drivers))
		for id := range a.drivers {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		status := StatePaid
		if a.pending {
			status = StatePending
		}
		result = append(result, MonthlyAggregate{
			Year:        k.year,
			Month:       k.month,
			MonthIndex:  int(k.month) - 1,
			TotalAmount: a.total,
			DriverIDs:   ids,
			Employees:   len(ids),
			Records:     a.records,
			Status:      status,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result
}

// =============================================================================
// YEAR SUMMARY
// =============================================================================

const DefaultTrendMonths = 6

type YearStats struct {
	PaidThisYear decimal.Decimal
	Pending      int
	ThisMonth    decimal.Decimal
	AvgMonthly   decimal.Decimal
}

type TrendPoint struct {
	Year   int
	Month  time.Month
	Label  string
	Amount decimal.Decimal
}

type YearSummary struct {
	Year           int
	Stats          YearStats
	Trend          []TrendPoint
	MonthlyRecords []MonthlyAggregate
}

// Aggregator builds reporting summaries from persisted records. Read-only.
type Aggregator struct {
	Store       SalaryStore
	Authorizer  Authorizer
	Clock       generic.Clock
	Location    *time.Location
	TrendMonths int
}

func NewAggregator(store SalaryStore) *Aggregator {
	return &Aggregator{
		Store:       store,
		Authorizer:  ContextAuthorizer{},
		Clock:       generic.SystemClock{},
		TrendMonths: DefaultTrendMonths,
	}
}

func (a *Aggregator) YearSummary(ctx context.Context, year int) (YearSummary, error) {
	if _, err := a.Authorizer.Authorize(ctx, PermView); err != nil {
		return YearSummary{}, err
	}
	if year < 1 || year > 9999 {
		return YearSummary{}, &generic.PeriodError{Year: year, Reason: "year out of range"}
	}
	loc := a.location()
	now := a.Clock.Now().In(loc)

	records, err := a.Store.ListInRange(ctx, generic.StartOfYear(year, loc), generic.EndOfYear(year, loc))
	if err != nil {
		return YearSummary{}, fmt.Errorf("load %d records: %w", year, err)
	}

	summary := YearSummary{
		Year:           year,
		MonthlyRecords: Aggregate(records, loc),
		Stats: YearStats{
			PaidThisYear: decimal.Zero,
			ThisMonth:    decimal.Zero,
			AvgMonthly:   decimal.Zero,
		},
	}

	for _, r := range records {
		if r.IsProcessed() {
			summary.Stats.PaidThisYear = summary.Stats.PaidThisYear.Add(r.TotalAmount.Value)
		} else {
			summary.Stats.Pending++
		}
	}

	allMonths := decimal.Zero
	for _, m := range summary.MonthlyRecords {
		allMonths = allMonths.Add(m.TotalAmount)
		if m.Year == now.Year() && m.Month == now.Month() {
			summary.Stats.ThisMonth = m.TotalAmount
		}
	}
	if n := len(summary.MonthlyRecords); n > 0 {
		summary.Stats.AvgMonthly = allMonths.Div(decimal.NewFromInt(int64(n))).Round(2)
	}

	summary.Trend, err = a.trend(ctx, now, loc)
	if err != nil {
		return YearSummary{}, err
	}
	return summary, nil
}

// trend returns one point per month for the window ending at now's month,
// zero-filled so charts keep a stable axis.
func (a *Aggregator) trend(ctx context.Context, now time.Time, loc *time.Location) ([]TrendPoint, error) {
	months := a.TrendMonths
	if months < 1 {
		months = DefaultTrendMonths
	}
	first := time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, loc)
	from := generic.StartOfMonth(first.Year(), first.Month(), loc)
	to := generic.EndOfMonth(now.Year(), now.Month(), loc)

	records, err := a.Store.ListInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load trend records: %w", err)
	}
	totals := make(map[string]decimal.Decimal)
	for _, m := range Aggregate(records, loc) {
		totals[fmt.Sprintf("%04d-%02d", m.Year, m.Month)] = m.TotalAmount
	}

	points := make([]TrendPoint, 0, months)
	for i := 0; i < months; i++ {
		m := time.Date(first.Year(), first.Month()+time.Month(i), 1, 0, 0, 0, 0, loc)
		amount, ok := totals[fmt.Sprintf("%04d-%02d", m.Year(), m.Month())]
		if !ok {
			amount = decimal.Zero
		}
		points = append(points, TrendPoint{
			Year:   m.Year(),
			Month:  m.Month(),
			Label:  m.Format("Jan"),
			Amount: amount,
		})
	}
	return points, nil
}

func (a *Aggregator) location() *time.Location {
	if a.Location == nil {
		return time.Local
	}
	return a.Location
}
