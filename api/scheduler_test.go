package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

func newTestScheduler(t *testing.T) (*DraftScheduler, *testServer) {
	t.Helper()
	s := newTestServer(t)
	sched := NewDraftScheduler(s.handler.Orchestrator, nil)
	sched.Clock = generic.FixedClock{At: time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)}
	sched.Location = time.UTC
	return sched, s
}

func TestDraftScheduler_OpenPeriods(t *testing.T) {
	sched, _ := newTestScheduler(t)

	periods := sched.OpenPeriods()
	require.Len(t, periods, 2)
	assert.Equal(t, "2024-03-H1", periods[0].Key())
	assert.Equal(t, "2024-03-H2", periods[1].Key())

	sched.IncludePrevious = false
	periods = sched.OpenPeriods()
	require.Len(t, periods, 1)
	assert.Equal(t, "2024-03-H2", periods[0].Key())
}

func TestDraftScheduler_RunNow(t *testing.T) {
	// GIVEN: 2024-03 H1 already finalized
	sched, s := newTestScheduler(t)
	admin := s.admin(t)
	s.runAndList(t)
	s.do(t, "POST", marchH1+"/process", admin, nil)

	// WHEN: The scheduler runs without any caller in the context
	results := sched.RunNow(context.Background())

	// THEN: H1 records are left alone and H2 drafts are created
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Skipped)
	assert.Equal(t, 2, results[1].Created)
	assert.False(t, sched.LastRun().IsZero())

	runs, err := s.store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, SchedulerActorID, runs[0].TriggeredBy)
}

func TestDraftScheduler_StartStop(t *testing.T) {
	sched, s := newTestScheduler(t)
	sched.CheckInterval = 10 * time.Millisecond

	sched.Start()
	sched.Start()
	require.Eventually(t, func() bool { return !sched.LastRun().IsZero() }, 2*time.Second, 5*time.Millisecond)
	sched.Stop()
	sched.Stop()

	records, err := s.store.ListByPeriod(context.Background(),
		generic.MustResolvePeriod(2024, time.March, generic.SecondHalf, time.UTC).Start,
		generic.MustResolvePeriod(2024, time.March, generic.SecondHalf, time.UTC).End)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, payroll.StatusDraft, r.Status)
	}
}
