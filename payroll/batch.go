/*
batch.go - Period settlement across all drivers

PURPOSE:
  The Orchestrator computes one period's drafts for every active driver:

    resolve period ─▶ for each driver (in parallel):
                        deliveries ─▶ EligibleEvents ─▶ Calculate ─▶ UpsertDraft

RE-ENTRANCY:
  Running the same period again recomputes every draft from current
  delivery data and leaves processed records alone. A run interrupted
  halfway is recovered by running it again; nothing is rolled back.

FAILURE ISOLATION:
  Each driver is an independent unit of work. A failing driver is logged
  and reported in RunResult.Failures; the remaining drivers still settle.

SEE ALSO:
  - settlement.go: UpsertDraft / MarkAllProcessedInPeriod
  - api/scheduler.go: Periodic draft refresh
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-engine/generic"
)

const DefaultWorkers = 4

// Orchestrator runs settlement for a whole period.
type Orchestrator struct {
	Directory  DriverDirectory
	Deliveries DeliverySource
	Calculator *Calculator
	Settlement *Settlement

	Authorizer Authorizer
	RunLog     RunLog // optional
	Recorder   Recorder
	Logger     *zap.Logger
	Clock      generic.Clock
	Location   *time.Location // period boundaries; nil = time.Local
	Workers    int
}

func NewOrchestrator(dir DriverDirectory, src DeliverySource, calc *Calculator, settlement *Settlement) *Orchestrator {
	return &Orchestrator{
		Directory:  dir,
		Deliveries: src,
		Calculator: calc,
		Settlement: settlement,
		Authorizer: ContextAuthorizer{},
		Recorder:   NopRecorder{},
		Logger:     zap.NewNop(),
		Clock:      generic.SystemClock{},
		Workers:    DefaultWorkers,
	}
}

// DriverFailure is the error of one driver within a run.
type DriverFailure struct {
	DriverID DriverID
	Err      error
}

func (f DriverFailure) Error() string { return fmt.Sprintf("driver %s: %v", f.DriverID, f.Err) }
func (f DriverFailure) Unwrap() error { return f.Err }

// RunResult summarizes one run.
type RunResult struct {
	RunID     string
	Period    generic.Period
	Drivers   int
	Processed int // drivers whose record was created, updated or left processed
	Created   int
	Updated   int
	Skipped   int
	Failures  []DriverFailure
	StartedAt time.Time
	Elapsed   time.Duration
}

// Err joins the driver failures, or nil if there were none.
func (r RunResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// RunPeriod settles (year, month, half). Authorization and period validation
// happen before any driver is read.
func (o *Orchestrator) RunPeriod(ctx context.Context, year int, month time.Month, half generic.Half) (RunResult, error) {
	if _, err := o.Authorizer.Authorize(ctx, PermRun); err != nil {
		return RunResult{}, err
	}
	period, err := generic.ResolvePeriod(year, month, half, o.Location)
	if err != nil {
		return RunResult{}, err
	}
	return o.RunResolved(ctx, period)
}

// RunResolved settles an already resolved period.
func (o *Orchestrator) RunResolved(ctx context.Context, period generic.Period) (RunResult, error) {
	actor, err := o.Authorizer.Authorize(ctx, PermRun)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		RunID:     uuid.NewString(),
		Period:    period,
		StartedAt: o.Clock.Now(),
	}
	log := o.logger().With(
		zap.String("run_id", result.RunID),
		zap.String("period", period.Key()),
	)

	drivers, err := o.Directory.ActiveDrivers(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("list drivers: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())

	for _, d := range drivers {
		if !d.OnPayroll() {
			continue
		}
		result.Drivers++
		driver := d
		g.Go(func() error {
			outcome, err := o.settleDriver(gctx, driver, period)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, DriverFailure{DriverID: driver.ID, Err: err})
				log.Warn("driver settlement failed", zap.String("driver_id", string(driver.ID)), zap.Error(err))
				return nil
			}
			result.Processed++
			switch outcome {
			case OutcomeCreated:
				result.Created++
			case OutcomeUpdated:
				result.Updated++
			case OutcomeSkipped:
				result.Skipped++
			}
			return nil
		})
	}
	// Workers never return errors; failures are collected per driver.
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].DriverID < result.Failures[j].DriverID
	})
	result.Elapsed = o.Clock.Now().Sub(result.StartedAt)

	o.recorder().RunCompleted(period, result.Processed, len(result.Failures), result.Elapsed)
	o.saveRun(ctx, log, result, actor)

	log.Info("payroll run completed",
		zap.Int("drivers", result.Drivers),
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

func (o *Orchestrator) settleDriver(ctx context.Context, driver Driver, period generic.Period) (UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	events, err := o.Deliveries.DeliveriesForDriver(ctx, driver.ID)
	if err != nil {
		return 0, fmt.Errorf("load deliveries: %w", err)
	}
	comp := o.Calculator.Calculate(EligibleEvents(events, period), driver)
	_, outcome, err := o.Settlement.UpsertDraft(ctx, driver.ID, period, comp)
	return outcome, err
}

// FinalizePeriod marks every draft of (year, month, half) as processed.
func (o *Orchestrator) FinalizePeriod(ctx context.Context, year int, month time.Month, half generic.Half) (int, error) {
	if _, err := o.Authorizer.Authorize(ctx, PermFinalize); err != nil {
		return 0, err
	}
	period, err := generic.ResolvePeriod(year, month, half, o.Location)
	if err != nil {
		return 0, err
	}
	return o.Settlement.MarkAllProcessedInPeriod(ctx, period)
}

func (o *Orchestrator) saveRun(ctx context.Context, log *zap.Logger, result RunResult, actor Actor) {
	if o.RunLog == nil {
		return
	}
	run := BatchRun{
		ID:          result.RunID,
		PeriodStart: result.Period.Start,
		PeriodEnd:   result.Period.End,
		Status:      RunCompleted,
		Drivers:     result.Drivers,
		Processed:   result.Processed,
		Failed:      len(result.Failures),
		TriggeredBy: actor.ID,
		StartedAt:   result.StartedAt,
		CompletedAt: result.StartedAt.Add(result.Elapsed),
	}
	if len(result.Failures) > 0 {
		run.Status = RunCompletedWithErrors
		msgs := make([]string, len(result.Failures))
		for i, f := range result.Failures {
			msgs[i] = f.Error()
		}
		run.Error = strings.Join(msgs, "; ")
	}
	if err := o.RunLog.SaveRun(ctx, run); err != nil {
		log.Error("failed to record payroll run", zap.Error(err))
	}
}

func (o *Orchestrator) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *Orchestrator) recorder() Recorder {
	if o.Recorder == nil {
		return NopRecorder{}
	}
	return o.Recorder
}
