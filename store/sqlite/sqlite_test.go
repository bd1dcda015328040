package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var h1 = generic.MustResolvePeriod(2024, time.March, generic.FirstHalf, time.UTC)

func draftFor(id payroll.RecordID, driver payroll.DriverID, p generic.Period, commission int64) payroll.SalaryRecord {
	now := time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC)
	return payroll.SalaryRecord{
		ID:               id,
		DriverID:         driver,
		PeriodStart:      p.Start,
		PeriodEnd:        p.End,
		BaseAmount:       generic.ZeroAmount(generic.UnitCurrency),
		CommissionAmount: generic.NewAmountFromInt(commission, generic.UnitCurrency),
		Status:           payroll.StatusDraft,
		Details: payroll.Details{
			DeliveryCount:  2,
			TotalTonnage:   decimal.NewFromInt(commission / 15),
			CommissionRate: decimal.NewFromInt(15),
			BaseType:       payroll.BaseCommissionOnly,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUpsertDraft_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// GIVEN: a new draft
	id, outcome, err := s.UpsertDraft(ctx, draftFor("r1", "X", h1, 225))
	require.NoError(t, err)
	assert.Equal(t, payroll.OutcomeCreated, outcome)

	// THEN: every field survives storage, including the .999 period end
	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.PeriodStart.Equal(h1.Start))
	assert.True(t, rec.PeriodEnd.Equal(h1.End))
	assert.Equal(t, 999*int(time.Millisecond), rec.PeriodEnd.Nanosecond())
	assert.Equal(t, "225.00", rec.CommissionAmount.String())
	assert.Equal(t, "225.00", rec.TotalAmount.String())
	assert.True(t, rec.Deductions.IsZero())
	assert.Equal(t, payroll.StatusDraft, rec.Status)
	assert.Equal(t, 2, rec.Details.DeliveryCount)
	assert.Equal(t, "15", rec.Details.TotalTonnage.String())
	assert.Equal(t, payroll.BaseCommissionOnly, rec.Details.BaseType)
	assert.Nil(t, rec.ProcessedAt)
}

func TestUpsertDraft_UpdateKeepsDeductionsAndSkipsProcessed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, _, err := s.UpsertDraft(ctx, draftFor("r1", "X", h1, 225))
	require.NoError(t, err)
	_, err = s.SetDeductions(ctx, id, generic.Money(generic.MustParseDecimal("12.50")), time.Now())
	require.NoError(t, err)

	// WHEN: recomputed
	again, outcome, err := s.UpsertDraft(ctx, draftFor("r2", "X", h1, 300))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, payroll.OutcomeUpdated, outcome)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "12.50", rec.Deductions.String())
	assert.Equal(t, "287.50", rec.TotalAmount.String())

	// WHEN: processed then recomputed
	flipped, err := s.MarkProcessed(ctx, id, "admin", time.Now())
	require.NoError(t, err)
	require.True(t, flipped)
	_, outcome, err = s.UpsertDraft(ctx, draftFor("r3", "X", h1, 999))
	require.NoError(t, err)

	// THEN: untouched
	assert.Equal(t, payroll.OutcomeSkipped, outcome)
	rec, _ = s.Get(ctx, id)
	assert.Equal(t, "287.50", rec.TotalAmount.String())
	assert.Equal(t, "admin", rec.ProcessedBy)
	require.NotNil(t, rec.ProcessedAt)

	_, err = s.SetDeductions(ctx, id, generic.Money(decimal.NewFromInt(1)), time.Now())
	assert.ErrorIs(t, err, generic.ErrRecordProcessed)
}

func TestUpsertDraft_ConcurrentCallsYieldOneRecord(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.UpsertDraft(ctx, draftFor(payroll.RecordID(fmt.Sprintf("r%d", i)), "X", h1, 15))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	recs, err := s.ListByPeriod(ctx, h1.Start, h1.End)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMarkProcessed_NotFoundAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.MarkProcessed(ctx, "missing", "admin", time.Now())
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	id, _, _ := s.UpsertDraft(ctx, draftFor("r1", "X", h1, 15))
	flipped, err := s.MarkProcessed(ctx, id, "admin", time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = s.MarkProcessed(ctx, id, "admin", time.Now())
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestMarkProcessedInPeriod(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	h2 := h1.Next()

	_, _, _ = s.UpsertDraft(ctx, draftFor("a", "X", h1, 15))
	_, _, _ = s.UpsertDraft(ctx, draftFor("b", "Y", h1, 15))
	_, _, _ = s.UpsertDraft(ctx, draftFor("c", "X", h2, 15))

	n, err := s.MarkProcessedInPeriod(ctx, h1.Start, h1.End, "admin", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, rec.Status)
}

func TestListInRange_Ordering(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	h2 := h1.Next()

	_, _, _ = s.UpsertDraft(ctx, draftFor("a", "Y", h2, 15))
	_, _, _ = s.UpsertDraft(ctx, draftFor("b", "Y", h1, 15))
	_, _, _ = s.UpsertDraft(ctx, draftFor("c", "X", h1, 15))

	recs, err := s.ListInRange(ctx, generic.StartOfMonth(2024, time.March, time.UTC), generic.EndOfMonth(2024, time.March, time.UTC))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, payroll.RecordID("c"), recs[0].ID)
	assert.Equal(t, payroll.RecordID("b"), recs[1].ID)
	assert.Equal(t, payroll.RecordID("a"), recs[2].ID)

	found, err := s.Find(ctx, "X", h1.Start)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, payroll.RecordID("c"), found.ID)

	missing, err := s.Find(ctx, "Z", h1.Start)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDriversAndDeliveries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "X", Name: "Xavier", Role: payroll.RoleDriver, Tier: payroll.TierSenior, Active: true}))
	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "Y", Name: "Yara", Role: payroll.RoleDriver, Active: false}))
	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "M", Name: "Mo", Role: "dispatcher", Active: true}))

	drivers, err := s.ActiveDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, payroll.TierSenior, drivers[0].Tier)
	assert.Equal(t, "Xavier", drivers[0].Name)

	date := time.Date(2024, 3, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	require.NoError(t, s.SaveDelivery(ctx, payroll.DeliveryEvent{
		ID: "d1", DriverID: "X", Status: payroll.DeliveryInvoiced,
		ExpectedTonnage: decimal.NewNullDecimal(generic.MustParseDecimal("7.25")),
		DeliveryDate:    &date,
		CreatedAt:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.SaveDelivery(ctx, payroll.DeliveryEvent{
		ID: "d2", DriverID: "X", Status: payroll.DeliveryPending,
		CreatedAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}))

	events, err := s.DeliveriesForDriver(ctx, "X")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, payroll.DeliveryInvoiced, events[0].Status)
	assert.Equal(t, "7.25", events[0].ExpectedTonnage.Decimal.String())
	require.NotNil(t, events[0].DeliveryDate)
	assert.True(t, events[0].DeliveryDate.Equal(date))
	assert.False(t, events[1].ExpectedTonnage.Valid)
	assert.Nil(t, events[1].DeliveryDate)

	require.NoError(t, s.Reset(ctx))
	drivers, err = s.ActiveDrivers(ctx)
	require.NoError(t, err)
	assert.Empty(t, drivers)
}

func TestRunLog(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(ctx, payroll.BatchRun{
			ID:          fmt.Sprintf("run-%d", i),
			PeriodStart: h1.Start,
			PeriodEnd:   h1.End,
			Status:      payroll.RunCompleted,
			Drivers:     3,
			Processed:   3,
			TriggeredBy: "scheduler",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			CompletedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "scheduler", runs[0].TriggeredBy)
	assert.True(t, runs[0].PeriodEnd.Equal(h1.End))

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// The full settlement pipeline runs unchanged on SQLite.
func TestOrchestratorOnSQLite(t *testing.T) {
	s := newStore(t)
	ctx := payroll.WithActor(context.Background(), payroll.SystemActor("test"))

	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "X", Role: payroll.RoleDriver, Active: true}))
	for i, tons := range []int64{10, 5} {
		d := time.Date(2024, 3, 3+i, 9, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveDelivery(ctx, payroll.DeliveryEvent{
			ID: fmt.Sprintf("e%d", i), DriverID: "X", Status: payroll.DeliveryDelivered,
			ExpectedTonnage: decimal.NewNullDecimal(decimal.NewFromInt(tons)), DeliveryDate: &d, CreatedAt: d,
		}))
	}

	orch := payroll.NewOrchestrator(s, s, payroll.NewCalculator(payroll.DefaultCommissionConfig()), payroll.NewSettlement(s))
	orch.Location = time.UTC
	orch.RunLog = s

	result, err := orch.RunPeriod(ctx, 2024, time.March, generic.FirstHalf)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)

	rec, err := s.Find(ctx, "X", h1.Start)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "225.00", rec.TotalAmount.String())
}

func TestMarkProcessed_ConcurrentWithPeriodFinalize(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	// GIVEN: Five drafts in the same period
	const drafts, callers = 5, 4
	ids := make([]payroll.RecordID, drafts)
	for i := range ids {
		id, _, err := s.UpsertDraft(ctx, draftFor(payroll.RecordID(fmt.Sprintf("r%d", i)), payroll.DriverID(fmt.Sprintf("d%d", i)), h1, 15))
		require.NoError(t, err)
		ids[i] = id
	}
	base := time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC)
	bulkAt := base.Add(time.Hour)

	// WHEN: Single finalizes race one period finalize
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners = map[payroll.RecordID][]string{}
		bulk    int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := s.MarkProcessedInPeriod(ctx, h1.Start, h1.End, "bulk", bulkAt)
		assert.NoError(t, err)
		mu.Lock()
		bulk = n
		mu.Unlock()
	}()
	for i, id := range ids {
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func(id payroll.RecordID, by string) {
				defer wg.Done()
				flipped, err := s.MarkProcessed(ctx, id, by, base)
				assert.NoError(t, err)
				if flipped {
					mu.Lock()
					winners[id] = append(winners[id], by)
					mu.Unlock()
				}
			}(id, fmt.Sprintf("clerk-%d-%d", i, c))
		}
	}
	wg.Wait()

	// THEN: Every draft flipped exactly once
	single := 0
	for _, w := range winners {
		require.Len(t, w, 1)
		single++
	}
	assert.Equal(t, drafts, single+bulk)

	// AND: The stored stamp belongs to the caller that flipped it
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, payroll.StatusProcessed, rec.Status)
		require.NotNil(t, rec.ProcessedAt)
		if w, ok := winners[id]; ok {
			assert.Equal(t, w[0], rec.ProcessedBy)
			assert.True(t, rec.ProcessedAt.Equal(base))
		} else {
			assert.Equal(t, "bulk", rec.ProcessedBy)
			assert.True(t, rec.ProcessedAt.Equal(bulkAt))
		}
	}
}
