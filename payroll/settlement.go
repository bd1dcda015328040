/*
settlement.go - Salary record lifecycle

PURPOSE:
  Settlement is the only way payroll code writes salary records. It adds
  the guarantees that are not the store's job: authorization before any
  read or write, keyed locking across processes, id generation, logging
  and metrics.

LIFECYCLE:
  draft ──(recompute, any number of times)──▶ draft
  draft ──(MarkProcessed / MarkAllProcessedInPeriod)──▶ processed
  processed is terminal: recompute is a no-op, deductions are frozen.

TOTALS:
  TotalAmount = BaseAmount + CommissionAmount - Deductions, recomputed by
  the store on every write. It is never accepted from callers.

SEE ALSO:
  - store.go: SalaryStore contract
  - batch.go: Orchestrator calling UpsertDraft per driver
*/
package payroll

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// Settlement guards a SalaryStore.
type Settlement struct {
	store    SalaryStore
	locker   generic.Locker
	auth     Authorizer
	clock    generic.Clock
	logger   *zap.Logger
	recorder Recorder
	newID    func() RecordID
}

type SettlementOption func(*Settlement)

// WithLocker serializes upserts per (driver, period) through l.
func WithLocker(l generic.Locker) SettlementOption {
	return func(s *Settlement) { s.locker = l }
}

func WithAuthorizer(a Authorizer) SettlementOption {
	return func(s *Settlement) { s.auth = a }
}

func WithClock(c generic.Clock) SettlementOption {
	return func(s *Settlement) { s.clock = c }
}

func WithLogger(l *zap.Logger) SettlementOption {
	return func(s *Settlement) { s.logger = l }
}

func WithRecorder(r Recorder) SettlementOption {
	return func(s *Settlement) { s.recorder = r }
}

func NewSettlement(store SalaryStore, opts ...SettlementOption) *Settlement {
	s := &Settlement{
		store:    store,
		auth:     ContextAuthorizer{},
		clock:    generic.SystemClock{},
		logger:   zap.NewNop(),
		recorder: NopRecorder{},
		newID:    func() RecordID { return RecordID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// =============================================================================
// WRITES
// =============================================================================

// UpsertDraft creates or refreshes the draft for (driverID, period).
// A processed record is left untouched and its id is returned with OutcomeSkipped.
func (s *Settlement) UpsertDraft(ctx context.Context, driverID DriverID, period generic.Period, comp Computation) (RecordID, UpsertOutcome, error) {
	if _, err := s.auth.Authorize(ctx, PermRun); err != nil {
		return "", 0, err
	}

	key := RecordKey{DriverID: driverID, PeriodStart: period.StartMillis()}
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, key.String())
		if err != nil {
			return "", 0, fmt.Errorf("lock %s: %w: %v", key, generic.ErrConcurrentModification, err)
		}
		defer unlock()
	}

	now := s.clock.Now()
	draft := SalaryRecord{
		ID:               s.newID(),
		DriverID:         driverID,
		PeriodStart:      period.Start,
		PeriodEnd:        period.End,
		BaseAmount:       comp.BaseAmount,
		CommissionAmount: comp.CommissionAmount,
		Deductions:       generic.ZeroAmount(generic.UnitCurrency),
		Status:           StatusDraft,
		Details:          comp.Details(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	draft.Recompute()

	id, outcome, err := s.store.UpsertDraft(ctx, draft)
	if err != nil {
		return "", 0, fmt.Errorf("upsert draft %s: %w", key, err)
	}
	s.recorder.DraftUpserted(outcome)
	s.logger.Debug("salary draft upserted",
		zap.String("driver_id", string(driverID)),
		zap.String("period", period.Key()),
		zap.String("record_id", string(id)),
		zap.Stringer("outcome", outcome),
	)
	return id, outcome, nil
}

// MarkProcessed finalizes a single record. Finalizing a processed record is a no-op.
func (s *Settlement) MarkProcessed(ctx context.Context, id RecordID) (bool, error) {
	actor, err := s.auth.Authorize(ctx, PermFinalize)
	if err != nil {
		return false, err
	}
	return s.markProcessed(ctx, actor, id)
}

// Finalize is MarkProcessed returning the record as stored afterwards.
// Only payroll:finalize is required; the caller sees what it just wrote.
func (s *Settlement) Finalize(ctx context.Context, id RecordID) (SalaryRecord, bool, error) {
	actor, err := s.auth.Authorize(ctx, PermFinalize)
	if err != nil {
		return SalaryRecord{}, false, err
	}
	flipped, err := s.markProcessed(ctx, actor, id)
	if err != nil {
		return SalaryRecord{}, false, err
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return SalaryRecord{}, flipped, err
	}
	return rec, flipped, nil
}

func (s *Settlement) markProcessed(ctx context.Context, actor Actor, id RecordID) (bool, error) {
	flipped, err := s.store.MarkProcessed(ctx, id, actor.ID, s.clock.Now())
	if err != nil {
		return false, err
	}
	if flipped {
		s.recorder.RecordsFinalized(1)
		s.logger.Info("salary record processed",
			zap.String("record_id", string(id)),
			zap.String("actor", actor.ID),
		)
	}
	return flipped, nil
}

// MarkAllProcessedInPeriod finalizes every draft of the period and returns how many flipped.
func (s *Settlement) MarkAllProcessedInPeriod(ctx context.Context, period generic.Period) (int, error) {
	actor, err := s.auth.Authorize(ctx, PermFinalize)
	if err != nil {
		return 0, err
	}
	n, err := s.store.MarkProcessedInPeriod(ctx, period.Start, period.End, actor.ID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("finalize %s: %w", period.Key(), err)
	}
	s.recorder.RecordsFinalized(n)
	s.logger.Info("salary period processed",
		zap.String("period", period.Key()),
		zap.Int("records", n),
		zap.String("actor", actor.ID),
	)
	return n, nil
}

// AdjustDeductions sets the manual deductions of a draft record.
func (s *Settlement) AdjustDeductions(ctx context.Context, id RecordID, amount decimal.Decimal) (SalaryRecord, error) {
	actor, err := s.auth.Authorize(ctx, PermAdjust)
	if err != nil {
		return SalaryRecord{}, err
	}
	if amount.IsNegative() {
		return SalaryRecord{}, fmt.Errorf("deductions %s: %w", amount, generic.ErrInvalidAmount)
	}
	rec, err := s.store.SetDeductions(ctx, id, generic.Money(amount.Round(MoneyPlaces)), s.clock.Now())
	if err != nil {
		return SalaryRecord{}, err
	}
	s.logger.Info("salary deductions adjusted",
		zap.String("record_id", string(id)),
		zap.String("deductions", amount.String()),
		zap.String("actor", actor.ID),
	)
	return rec, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Settlement) Record(ctx context.Context, id RecordID) (SalaryRecord, error) {
	if _, err := s.auth.Authorize(ctx, PermView); err != nil {
		return SalaryRecord{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *Settlement) Records(ctx context.Context, period generic.Period) ([]SalaryRecord, error) {
	if _, err := s.auth.Authorize(ctx, PermView); err != nil {
		return nil, err
	}
	return s.store.ListByPeriod(ctx, period.Start, period.End)
}
