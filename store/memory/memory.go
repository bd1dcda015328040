// Package memory provides an in-memory implementation of every payroll
// store interface, for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps everything behind one RWMutex. Writes that span a lookup and
// an insert (UpsertDraft) hold the write lock for the whole operation, which
// makes the (driver, period start) uniqueness trivially atomic.
type Store struct {
	mu         sync.RWMutex
	records    map[payroll.RecordID]payroll.SalaryRecord
	byKey      map[payroll.RecordKey]payroll.RecordID
	drivers    map[payroll.DriverID]payroll.Driver
	deliveries map[payroll.DriverID][]payroll.DeliveryEvent
	runs       []payroll.BatchRun

	// FailDeliveries makes DeliveriesForDriver fail for the listed drivers.
	// Used to exercise failure isolation.
	FailDeliveries map[payroll.DriverID]error
}

var (
	_ payroll.SalaryStore     = (*Store)(nil)
	_ payroll.DriverDirectory = (*Store)(nil)
	_ payroll.DeliverySource  = (*Store)(nil)
	_ payroll.RunLog          = (*Store)(nil)
	_ payroll.Seeder          = (*Store)(nil)
)

func New() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.records = make(map[payroll.RecordID]payroll.SalaryRecord)
	s.byKey = make(map[payroll.RecordKey]payroll.RecordID)
	s.drivers = make(map[payroll.DriverID]payroll.Driver)
	s.deliveries = make(map[payroll.DriverID][]payroll.DeliveryEvent)
	s.runs = nil
}

// =============================================================================
// SALARY RECORDS
// =============================================================================

func (s *Store) UpsertDraft(_ context.Context, draft payroll.SalaryRecord) (payroll.RecordID, payroll.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := draft.Key()
	if id, ok := s.byKey[key]; ok {
		existing := s.records[id]
		if existing.IsProcessed() {
			return id, payroll.OutcomeSkipped, nil
		}
		existing.PeriodEnd = draft.PeriodEnd
		existing.BaseAmount = draft.BaseAmount
		existing.CommissionAmount = draft.CommissionAmount
		existing.Details = draft.Details
		existing.UpdatedAt = draft.UpdatedAt
		existing.Recompute()
		s.records[id] = existing
		return id, payroll.OutcomeUpdated, nil
	}

	rec := draft
	rec.Status = payroll.StatusDraft
	rec.Deductions = generic.ZeroAmount(generic.UnitCurrency)
	rec.ProcessedAt = nil
	rec.ProcessedBy = ""
	rec.Recompute()
	s.records[rec.ID] = rec
	s.byKey[key] = rec.ID
	return rec.ID, payroll.OutcomeCreated, nil
}

func (s *Store) MarkProcessed(_ context.Context, id payroll.RecordID, by string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, generic.ErrRecordNotFound
	}
	return s.processLocked(rec, by, at), nil
}

func (s *Store) MarkProcessedInPeriod(_ context.Context, start, end time.Time, by string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if rec.PeriodStart.Equal(start) && rec.PeriodEnd.Equal(end) && s.processLocked(rec, by, at) {
			n++
		}
	}
	return n, nil
}

func (s *Store) processLocked(rec payroll.SalaryRecord, by string, at time.Time) bool {
	if rec.IsProcessed() {
		return false
	}
	processedAt := at
	rec.Status = payroll.StatusProcessed
	rec.ProcessedAt = &processedAt
	rec.ProcessedBy = by
	rec.UpdatedAt = at
	s.records[rec.ID] = rec
	return true
}

func (s *Store) SetDeductions(_ context.Context, id payroll.RecordID, deductions generic.Amount, at time.Time) (payroll.SalaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return payroll.SalaryRecord{}, generic.ErrRecordNotFound
	}
	if rec.IsProcessed() {
		return payroll.SalaryRecord{}, generic.ErrRecordProcessed
	}
	rec.Deductions = deductions
	rec.UpdatedAt = at
	rec.Recompute()
	s.records[id] = rec
	return rec, nil
}

func (s *Store) Get(_ context.Context, id payroll.RecordID) (payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return payroll.SalaryRecord{}, generic.ErrRecordNotFound
	}
	return rec, nil
}

func (s *Store) Find(_ context.Context, driverID payroll.DriverID, periodStart time.Time) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[payroll.RecordKey{DriverID: driverID, PeriodStart: generic.ToMillis(periodStart)}]
	if !ok {
		return nil, nil
	}
	rec := s.records[id]
	return &rec, nil
}

func (s *Store) ListByPeriod(_ context.Context, start, end time.Time) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payroll.SalaryRecord
	for _, rec := range s.records {
		if rec.PeriodStart.Equal(start) && rec.PeriodEnd.Equal(end) {
			result = append(result, rec)
		}
	}
	sortRecords(result)
	return result, nil
}

func (s *Store) ListInRange(_ context.Context, from, to time.Time) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payroll.SalaryRecord
	for _, rec := range s.records {
		if !rec.PeriodStart.Before(from) && !rec.PeriodStart.After(to) {
			result = append(result, rec)
		}
	}
	sortRecords(result)
	return result, nil
}

func sortRecords(recs []payroll.SalaryRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].PeriodStart.Equal(recs[j].PeriodStart) {
			return recs[i].PeriodStart.Before(recs[j].PeriodStart)
		}
		return recs[i].DriverID < recs[j].DriverID
	})
}

// =============================================================================
// DRIVERS AND DELIVERIES
// =============================================================================

func (s *Store) ActiveDrivers(_ context.Context) ([]payroll.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payroll.Driver
	for _, d := range s.drivers {
		if d.OnPayroll() {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeliveriesForDriver(_ context.Context, driverID payroll.DriverID) ([]payroll.DeliveryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.FailDeliveries[driverID]; ok {
		return nil, err
	}
	result := make([]payroll.DeliveryEvent, len(s.deliveries[driverID]))
	copy(result, s.deliveries[driverID])
	return result, nil
}

func (s *Store) SaveDriver(_ context.Context, d payroll.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[d.ID] = d
	return nil
}

// SaveDelivery inserts or replaces a delivery by id. Unassigned deliveries
// are kept but never returned for any driver.
func (s *Store) SaveDelivery(_ context.Context, e payroll.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for driverID, events := range s.deliveries {
		for i, existing := range events {
			if existing.ID == e.ID {
				s.deliveries[driverID] = append(events[:i], events[i+1:]...)
				break
			}
		}
	}
	s.deliveries[e.DriverID] = append(s.deliveries[e.DriverID], e)
	return nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}

// =============================================================================
// RUN LOG
// =============================================================================

func (s *Store) SaveRun(_ context.Context, run payroll.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) ListRuns(_ context.Context, limit int) ([]payroll.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]payroll.BatchRun, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, s.runs[i])
	}
	return result, nil
}
