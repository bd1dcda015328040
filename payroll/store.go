/*
store.go - Persistence contracts for settlement

PURPOSE:
  Defines the interfaces between payroll logic and storage. Salary records
  are owned by this package; drivers and deliveries belong to other teams
  and are only ever read.

KEY INTERFACES:
  SalaryStore:     Salary records (idempotent upsert, compare-and-set finalize)
  DriverDirectory: Active role=driver accounts
  DeliverySource:  A driver's delivery events
  RunLog:          Audit trail of batch runs

ATOMICITY CONTRACT:
  UpsertDraft is a single atomic operation per (driver, period start):
  - no record        → insert a draft with zero deductions
  - draft record     → overwrite computed fields, keep deductions
  - processed record → untouched, existing id returned
  Two concurrent calls for the same key never produce two records.

  MarkProcessed and MarkProcessedInPeriod flip draft → processed with a
  compare-and-set on status, so a record finalized individually while a
  bulk finalize runs is counted once.

IMPLEMENTATIONS:
  - store/memory:   In-memory, for tests and development
  - store/sqlite:   SQLite
  - store/postgres: PostgreSQL

SEE ALSO:
  - settlement.go: Authorization and locking around SalaryStore
*/
package payroll

import (
	"context"
	"time"

	"github.com/warp/payroll-engine/generic"
)

// =============================================================================
// SALARY STORE
// =============================================================================

// UpsertOutcome tells what UpsertDraft did.
type UpsertOutcome uint8

const (
	OutcomeCreated UpsertOutcome = iota + 1
	OutcomeUpdated
	OutcomeSkipped // record already processed
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

type SalaryStore interface {
	// UpsertDraft creates or refreshes the draft for draft's (DriverID, PeriodStart).
	// draft.ID is used only when a new record is inserted. Deductions and
	// TotalAmount on the argument are ignored; the store derives them.
	UpsertDraft(ctx context.Context, draft SalaryRecord) (RecordID, UpsertOutcome, error)

	// MarkProcessed flips a draft to processed. Returns false if it was already
	// processed, generic.ErrRecordNotFound if id is unknown.
	MarkProcessed(ctx context.Context, id RecordID, by string, at time.Time) (bool, error)

	// MarkProcessedInPeriod flips every draft whose period bounds match and
	// returns how many were flipped.
	MarkProcessedInPeriod(ctx context.Context, start, end time.Time, by string, at time.Time) (int, error)

	// SetDeductions replaces the manual deductions of a draft and recomputes
	// its total. Returns generic.ErrRecordProcessed for processed records.
	SetDeductions(ctx context.Context, id RecordID, deductions generic.Amount, at time.Time) (SalaryRecord, error)

	// Get returns a record by id or generic.ErrRecordNotFound.
	Get(ctx context.Context, id RecordID) (SalaryRecord, error)

	// Find returns the record for (driverID, periodStart), or nil if none exists.
	Find(ctx context.Context, driverID DriverID, periodStart time.Time) (*SalaryRecord, error)

	// ListByPeriod returns records with exactly these period bounds, ordered by driver.
	ListByPeriod(ctx context.Context, start, end time.Time) ([]SalaryRecord, error)

	// ListInRange returns records whose PeriodStart lies in [from, to], ordered
	// by period start then driver.
	ListInRange(ctx context.Context, from, to time.Time) ([]SalaryRecord, error)
}

// =============================================================================
// COLLABORATOR INPUTS
// =============================================================================

type DriverDirectory interface {
	// ActiveDrivers returns every active role=driver account.
	ActiveDrivers(ctx context.Context) ([]Driver, error)
}

type DeliverySource interface {
	// DeliveriesForDriver returns all delivery events assigned to the driver.
	DeliveriesForDriver(ctx context.Context, driverID DriverID) ([]DeliveryEvent, error)
}

// Seeder writes collaborator data. Only development stores implement it;
// production reads drivers and deliveries owned by other systems.
type Seeder interface {
	SaveDriver(ctx context.Context, d Driver) error
	SaveDelivery(ctx context.Context, e DeliveryEvent) error
	// Reset removes every driver, delivery, salary record and run.
	Reset(ctx context.Context) error
}

// =============================================================================
// RUN LOG
// =============================================================================

type RunStatus string

const (
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
)

// BatchRun is the audit entry of one orchestrator run.
type BatchRun struct {
	ID          string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Status      RunStatus
	Drivers     int
	Processed   int
	Failed      int
	Error       string
	TriggeredBy string
	StartedAt   time.Time
	CompletedAt time.Time
}

type RunLog interface {
	SaveRun(ctx context.Context, run BatchRun) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]BatchRun, error)
}
