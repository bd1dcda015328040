package memory

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

var march = generic.MustResolvePeriod(2024, time.March, generic.FirstHalf, time.UTC)

func draft(id payroll.RecordID, driver payroll.DriverID, commission int64) payroll.SalaryRecord {
	now := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	return payroll.SalaryRecord{
		ID:               id,
		DriverID:         driver,
		PeriodStart:      march.Start,
		PeriodEnd:        march.End,
		BaseAmount:       generic.ZeroAmount(generic.UnitCurrency),
		CommissionAmount: generic.NewAmountFromInt(commission, generic.UnitCurrency),
		Deductions:       generic.NewAmountFromInt(999, generic.UnitCurrency), // ignored
		Status:           payroll.StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestUpsertDraft_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	// GIVEN: no record
	// WHEN: upserting
	id, outcome, err := s.UpsertDraft(ctx, draft("r1", "d1", 100))
	require.NoError(t, err)

	// THEN: created with zero deductions
	assert.Equal(t, payroll.RecordID("r1"), id)
	assert.Equal(t, payroll.OutcomeCreated, outcome)
	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Deductions.IsZero())
	assert.Equal(t, "100.00", rec.TotalAmount.String())

	// GIVEN: deductions on the draft
	_, err = s.SetDeductions(ctx, id, generic.NewAmountFromInt(30, generic.UnitCurrency), time.Now())
	require.NoError(t, err)

	// WHEN: upserting again with a new id and amount
	id2, outcome, err := s.UpsertDraft(ctx, draft("r2", "d1", 200))
	require.NoError(t, err)

	// THEN: same record updated, deductions kept
	assert.Equal(t, id, id2)
	assert.Equal(t, payroll.OutcomeUpdated, outcome)
	rec, _ = s.Get(ctx, id)
	assert.Equal(t, "30.00", rec.Deductions.String())
	assert.Equal(t, "170.00", rec.TotalAmount.String())

	// GIVEN: the record is processed
	flipped, err := s.MarkProcessed(ctx, id, "admin", time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)

	// WHEN: upserting again
	id3, outcome, err := s.UpsertDraft(ctx, draft("r3", "d1", 500))
	require.NoError(t, err)

	// THEN: skipped, untouched
	assert.Equal(t, id, id3)
	assert.Equal(t, payroll.OutcomeSkipped, outcome)
	rec, _ = s.Get(ctx, id)
	assert.Equal(t, "170.00", rec.TotalAmount.String())
	assert.Equal(t, "admin", rec.ProcessedBy)
	require.NotNil(t, rec.ProcessedAt)
}

func TestUpsertDraft_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	ids := make([]payroll.RecordID, 50)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := s.UpsertDraft(ctx, draft(payroll.RecordID(fmt.Sprintf("r%d", i)), "d1", int64(i)))
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	recs, err := s.ListByPeriod(ctx, march.Start, march.End)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	for _, id := range ids {
		assert.Equal(t, recs[0].ID, id)
	}
}

func TestMarkProcessed(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.MarkProcessed(ctx, "missing", "admin", time.Now())
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)

	id, _, _ := s.UpsertDraft(ctx, draft("r1", "d1", 10))
	flipped, err := s.MarkProcessed(ctx, id, "admin", time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = s.MarkProcessed(ctx, id, "admin", time.Now())
	require.NoError(t, err)
	assert.False(t, flipped, "second finalize is a no-op")
}

func TestMarkProcessedInPeriod_CountsOnlyDrafts(t *testing.T) {
	ctx := context.Background()
	s := New()

	id1, _, _ := s.UpsertDraft(ctx, draft("r1", "d1", 10))
	_, _, _ = s.UpsertDraft(ctx, draft("r2", "d2", 20))
	_, _, _ = s.UpsertDraft(ctx, draft("r3", "d3", 30))
	_, _ = s.MarkProcessed(ctx, id1, "admin", time.Now())

	n, err := s.MarkProcessedInPeriod(ctx, march.Start, march.End, "admin", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.MarkProcessedInPeriod(ctx, march.Start, march.End, "admin", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetDeductions_RejectsProcessed(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, _, _ := s.UpsertDraft(ctx, draft("r1", "d1", 10))
	_, _ = s.MarkProcessed(ctx, id, "admin", time.Now())

	_, err := s.SetDeductions(ctx, id, generic.Money(decimal.NewFromInt(1)), time.Now())
	assert.ErrorIs(t, err, generic.ErrRecordProcessed)

	_, err = s.SetDeductions(ctx, "missing", generic.Money(decimal.NewFromInt(1)), time.Now())
	assert.ErrorIs(t, err, generic.ErrRecordNotFound)
}

func TestFindAndRanges(t *testing.T) {
	ctx := context.Background()
	s := New()

	second := march.Next()
	_, _, _ = s.UpsertDraft(ctx, draft("r1", "d2", 10))
	_, _, _ = s.UpsertDraft(ctx, draft("r2", "d1", 10))
	later := draft("r3", "d1", 10)
	later.PeriodStart, later.PeriodEnd = second.Start, second.End
	_, _, _ = s.UpsertDraft(ctx, later)

	found, err := s.Find(ctx, "d1", march.Start)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, payroll.RecordID("r2"), found.ID)

	missing, err := s.Find(ctx, "d9", march.Start)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListInRange(ctx, generic.StartOfMonth(2024, time.March, time.UTC), generic.EndOfMonth(2024, time.March, time.UTC))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, payroll.DriverID("d1"), all[0].DriverID)
	assert.Equal(t, payroll.DriverID("d2"), all[1].DriverID)
	assert.Equal(t, payroll.RecordID("r3"), all[2].ID)
}

func TestDirectoryAndRuns(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "b", Role: payroll.RoleDriver, Active: true}))
	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "a", Role: payroll.RoleDriver, Active: true}))
	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "c", Role: payroll.RoleDriver, Active: false}))
	require.NoError(t, s.SaveDriver(ctx, payroll.Driver{ID: "m", Role: "manager", Active: true}))

	drivers, err := s.ActiveDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, payroll.DriverID("a"), drivers[0].ID)

	// Reassigning a delivery moves it to the new driver.
	require.NoError(t, s.SaveDelivery(ctx, payroll.DeliveryEvent{ID: "x", DriverID: "a", Status: payroll.DeliveryDelivered}))
	require.NoError(t, s.SaveDelivery(ctx, payroll.DeliveryEvent{ID: "x", DriverID: "b", Status: payroll.DeliveryDelivered}))
	events, _ := s.DeliveriesForDriver(ctx, "a")
	assert.Empty(t, events)
	events, _ = s.DeliveriesForDriver(ctx, "b")
	assert.Len(t, events, 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(ctx, payroll.BatchRun{ID: fmt.Sprintf("run-%d", i)}))
	}
	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)

	require.NoError(t, s.Reset(ctx))
	drivers, _ = s.ActiveDrivers(ctx)
	assert.Empty(t, drivers)
}

func TestMarkProcessed_ConcurrentWithPeriodFinalize(t *testing.T) {
	ctx := context.Background()
	s := New()

	// GIVEN: Five drafts in the same period
	const drafts, callers = 5, 4
	ids := make([]payroll.RecordID, drafts)
	for i := range ids {
		id, _, err := s.UpsertDraft(ctx, draft(payroll.RecordID(fmt.Sprintf("r%d", i)), payroll.DriverID(fmt.Sprintf("d%d", i)), 10))
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
		n, err := s.MarkProcessedInPeriod(ctx, march.Start, march.End, "bulk", bulkAt)
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
