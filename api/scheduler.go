/*
scheduler.go - Automated draft recomputation

PURPOSE:
  Periodically recomputes the draft salary records of the current half-month
  period (and optionally the previous one, which still receives late
  deliveries until it is finalized) so that payroll staff always see
  up-to-date drafts.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs as a system actor; processed records are skipped by the store
  - Each tick is a normal orchestrator run and lands in the run log

USAGE:
  scheduler := NewDraftScheduler(orchestrator, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunPeriod endpoint (manual run)
  - payroll/batch.go: Orchestrator
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// SchedulerActorID identifies scheduled runs in the run log.
const SchedulerActorID = "scheduler"

// DraftScheduler keeps open periods' drafts fresh.
type DraftScheduler struct {
	Orchestrator    *payroll.Orchestrator
	CheckInterval   time.Duration
	IncludePrevious bool
	Clock           generic.Clock
	Location        *time.Location
	Logger          *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

// NewDraftScheduler creates a scheduler checking hourly.
func NewDraftScheduler(o *payroll.Orchestrator, logger *zap.Logger) *DraftScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftScheduler{
		Orchestrator:    o,
		CheckInterval:   time.Hour,
		IncludePrevious: true,
		Clock:           generic.SystemClock{},
		Location:        o.Location,
		Logger:          logger.Named("scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *DraftScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)

	s.Logger.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop cancels any in-flight run and waits for the loop to exit.
func (s *DraftScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.Logger.Info("scheduler stopped")
}

func (s *DraftScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow recomputes the open periods once and returns their results.
func (s *DraftScheduler) RunNow(ctx context.Context) []payroll.RunResult {
	ctx = payroll.WithActor(ctx, payroll.SystemActor(SchedulerActorID))

	var results []payroll.RunResult
	for _, period := range s.OpenPeriods() {
		if ctx.Err() != nil {
			break
		}
		result, err := s.Orchestrator.RunResolved(ctx, period)
		if err != nil {
			s.Logger.Error("scheduled run failed", zap.String("period", period.Key()), zap.Error(err))
			continue
		}
		if len(result.Failures) > 0 {
			s.Logger.Warn("scheduled run completed with errors",
				zap.String("period", period.Key()),
				zap.Int("failed", len(result.Failures)),
			)
		}
		results = append(results, result)
	}

	s.mu.Lock()
	s.lastRun = s.Clock.Now()
	s.mu.Unlock()
	return results
}

// OpenPeriods is the current period, preceded by the previous one when
// IncludePrevious is set.
func (s *DraftScheduler) OpenPeriods() []generic.Period {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	current := generic.PeriodContaining(s.Clock.Now().In(loc))
	if !s.IncludePrevious {
		return []generic.Period{current}
	}
	return []generic.Period{current.Previous(), current}
}

// LastRun returns when the last check finished, zero if none has.
func (s *DraftScheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
