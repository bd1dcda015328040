/*
Package sqlite provides a SQLite-backed implementation of the payroll stores.

PURPOSE:
  Implements every persistence interface of the payroll package on a single
  SQLite file. Used for development and single-node deployments; the
  PostgreSQL store (store/postgres) follows the same schema.

INTERFACES IMPLEMENTED:
  payroll.SalaryStore:     Salary records
  payroll.DriverDirectory: Drivers (read side)
  payroll.DeliverySource:  Delivery events (read side)
  payroll.RunLog:          Batch run audit trail
  payroll.Seeder:          Demo data loading

KEY TABLES:
  salary_records: One row per (driver_id, period_start), UNIQUE
  drivers:        Mirror of the HR directory
  deliveries:     Mirror of delivery management
  batch_runs:     Orchestrator runs

ENCODING:
  Instants are INTEGER milliseconds since epoch, so period bounds compare
  exactly and the 23:59:59.999 end survives a round trip. Money and
  tonnage are TEXT decimals. Record details are a JSON column.

ATOMIC UPSERT:
  UpsertDraft runs in a BEGIN IMMEDIATE transaction (_txlock=immediate),
  so the lookup and the insert/update hold the write lock together. The
  UNIQUE(driver_id, period_start) constraint backs this up for writers in
  other processes: a losing insert is retried once as an update.

CONCURRENCY:
  The pool is limited to one connection (":memory:" databases are
  per-connection) and writes are serialized with sync.RWMutex.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

// Store implements all payroll storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ payroll.SalaryStore     = (*Store)(nil)
	_ payroll.DriverDirectory = (*Store)(nil)
	_ payroll.DeliverySource  = (*Store)(nil)
	_ payroll.RunLog          = (*Store)(nil)
	_ payroll.Seeder          = (*Store)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drivers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'standard',
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		expected_tonnage TEXT,
		delivery_date INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_driver
		ON deliveries(driver_id);

	-- At most one salary record per driver and period
	CREATE TABLE IF NOT EXISTS salary_records (
		id TEXT PRIMARY KEY,
		driver_id TEXT NOT NULL,
		period_start INTEGER NOT NULL,
		period_end INTEGER NOT NULL,
		base_amount TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		deductions TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		details_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		processed_at INTEGER,
		processed_by TEXT,
		UNIQUE(driver_id, period_start)
	);

	-- Period listing and bulk finalize
	CREATE INDEX IF NOT EXISTS idx_salary_records_period
		ON salary_records(period_start, period_end, status);

	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		period_start INTEGER NOT NULL,
		period_end INTEGER NOT NULL,
		status TEXT NOT NULL,
		drivers INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		triggered_by TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batch_runs_started
		ON batch_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SALARY STORE (payroll.SalaryStore interface)
// =============================================================================

const recordColumns = `id, driver_id, period_start, period_end, base_amount, commission_amount,
	deductions, total_amount, status, details_json, created_at, updated_at, processed_at, processed_by`

func (s *Store) UpsertDraft(ctx context.Context, draft payroll.SalaryRecord) (payroll.RecordID, payroll.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, outcome, err := s.upsertDraft(ctx, draft)
	if err != nil && isUniqueConstraintError(err) {
		// Another process inserted the key between our lookup and insert.
		id, outcome, err = s.upsertDraft(ctx, draft)
	}
	return id, outcome, err
}

func (s *Store) upsertDraft(ctx context.Context, draft payroll.SalaryRecord) (payroll.RecordID, payroll.UpsertOutcome, error) {
	detailsJSON, err := json.Marshal(draft.Details)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode details: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		existingID     string
		existingStatus string
		deductions     string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status, deductions FROM salary_records WHERE driver_id = ? AND period_start = ?`,
		string(draft.DriverID), generic.ToMillis(draft.PeriodStart),
	).Scan(&existingID, &existingStatus, &deductions)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		zero := generic.ZeroAmount(generic.UnitCurrency)
		total := payroll.TotalFor(draft.BaseAmount, draft.CommissionAmount, zero)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO salary_records
			(id, driver_id, period_start, period_end, base_amount, commission_amount,
			 deductions, total_amount, status, details_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(draft.ID),
			string(draft.DriverID),
			generic.ToMillis(draft.PeriodStart),
			generic.ToMillis(draft.PeriodEnd),
			draft.BaseAmount.Value.String(),
			draft.CommissionAmount.Value.String(),
			zero.Value.String(),
			total.Value.String(),
			payroll.StatusDraft.String(),
			string(detailsJSON),
			generic.ToMillis(draft.CreatedAt),
			generic.ToMillis(draft.UpdatedAt),
		)
		if err != nil {
			return "", 0, fmt.Errorf("failed to insert salary record: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", 0, fmt.Errorf("failed to commit: %w", err)
		}
		return draft.ID, payroll.OutcomeCreated, nil

	case err != nil:
		return "", 0, fmt.Errorf("failed to look up salary record: %w", err)
	}

	if existingStatus == payroll.StatusProcessed.String() {
		return payroll.RecordID(existingID), payroll.OutcomeSkipped, nil
	}

	kept := generic.Money(generic.MustParseDecimal(deductions))
	total := payroll.TotalFor(draft.BaseAmount, draft.CommissionAmount, kept)
	_, err = tx.ExecContext(ctx, `
		UPDATE salary_records
		SET period_end = ?, base_amount = ?, commission_amount = ?, total_amount = ?,
		    details_json = ?, updated_at = ?
		WHERE id = ? AND status = 'draft'`,
		generic.ToMillis(draft.PeriodEnd),
		draft.BaseAmount.Value.String(),
		draft.CommissionAmount.Value.String(),
		total.Value.String(),
		string(detailsJSON),
		generic.ToMillis(draft.UpdatedAt),
		existingID,
	)
	if err != nil {
		return "", 0, fmt.Errorf("failed to update salary record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("failed to commit: %w", err)
	}
	return payroll.RecordID(existingID), payroll.OutcomeUpdated, nil
}

func (s *Store) MarkProcessed(ctx context.Context, id payroll.RecordID, by string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE salary_records
		SET status = 'processed', processed_at = ?, processed_by = ?, updated_at = ?
		WHERE id = ? AND status = 'draft'`,
		generic.ToMillis(at), by, generic.ToMillis(at), string(id),
	)
	if err != nil {
		return false, fmt.Errorf("failed to process salary record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM salary_records WHERE id = ?`, string(id)).Scan(&count); err != nil {
		return false, err
	}
	if count == 0 {
		return false, generic.ErrRecordNotFound
	}
	return false, nil
}

func (s *Store) MarkProcessedInPeriod(ctx context.Context, start, end time.Time, by string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE salary_records
		SET status = 'processed', processed_at = ?, processed_by = ?, updated_at = ?
		WHERE period_start = ? AND period_end = ? AND status = 'draft'`,
		generic.ToMillis(at), by, generic.ToMillis(at), generic.ToMillis(start), generic.ToMillis(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to process period: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) SetDeductions(ctx context.Context, id payroll.RecordID, deductions generic.Amount, at time.Time) (payroll.SalaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payroll.SalaryRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM salary_records WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.SalaryRecord{}, generic.ErrRecordNotFound
	}
	if err != nil {
		return payroll.SalaryRecord{}, err
	}
	if rec.IsProcessed() {
		return payroll.SalaryRecord{}, generic.ErrRecordProcessed
	}

	rec.Deductions = deductions
	rec.UpdatedAt = at
	rec.Recompute()
	_, err = tx.ExecContext(ctx, `
		UPDATE salary_records SET deductions = ?, total_amount = ?, updated_at = ?
		WHERE id = ? AND status = 'draft'`,
		rec.Deductions.Value.String(), rec.TotalAmount.Value.String(), generic.ToMillis(at), string(id),
	)
	if err != nil {
		return payroll.SalaryRecord{}, fmt.Errorf("failed to update deductions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return payroll.SalaryRecord{}, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id payroll.RecordID) (payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM salary_records WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.SalaryRecord{}, generic.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) Find(ctx context.Context, driverID payroll.DriverID, periodStart time.Time) (*payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM salary_records WHERE driver_id = ? AND period_start = ?`,
		string(driverID), generic.ToMillis(periodStart),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListByPeriod(ctx context.Context, start, end time.Time) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM salary_records
		WHERE period_start = ? AND period_end = ?
		ORDER BY driver_id ASC`,
		generic.ToMillis(start), generic.ToMillis(end),
	)
}

func (s *Store) ListInRange(ctx context.Context, from, to time.Time) ([]payroll.SalaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM salary_records
		WHERE period_start >= ? AND period_start <= ?
		ORDER BY period_start ASC, driver_id ASC`,
		generic.ToMillis(from), generic.ToMillis(to),
	)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]payroll.SalaryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query salary records: %w", err)
	}
	defer rows.Close()

	var result []payroll.SalaryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (payroll.SalaryRecord, error) {
	var (
		rec                                  payroll.SalaryRecord
		id, driverID, status, detailsJSON    string
		base, commission, deductions, total  string
		periodStart, periodEnd, created, upd int64
		processedAt                          sql.NullInt64
		processedBy                          sql.NullString
	)
	err := row.Scan(&id, &driverID, &periodStart, &periodEnd, &base, &commission,
		&deductions, &total, &status, &detailsJSON, &created, &upd, &processedAt, &processedBy)
	if err != nil {
		return payroll.SalaryRecord{}, err
	}

	st, err := payroll.ParseRecordStatus(status)
	if err != nil {
		return payroll.SalaryRecord{}, err
	}
	if err := json.Unmarshal([]byte(detailsJSON), &rec.Details); err != nil {
		return payroll.SalaryRecord{}, fmt.Errorf("failed to decode details of %s: %w", id, err)
	}

	rec.ID = payroll.RecordID(id)
	rec.DriverID = payroll.DriverID(driverID)
	rec.PeriodStart = generic.FromMillis(periodStart, time.UTC)
	rec.PeriodEnd = generic.FromMillis(periodEnd, time.UTC)
	rec.BaseAmount = parseMoney(base)
	rec.CommissionAmount = parseMoney(commission)
	rec.Deductions = parseMoney(deductions)
	rec.TotalAmount = parseMoney(total)
	rec.Status = st
	rec.CreatedAt = generic.FromMillis(created, time.UTC)
	rec.UpdatedAt = generic.FromMillis(upd, time.UTC)
	if processedAt.Valid {
		t := generic.FromMillis(processedAt.Int64, time.UTC)
		rec.ProcessedAt = &t
	}
	rec.ProcessedBy = processedBy.String
	return rec, nil
}

// =============================================================================
// DRIVERS AND DELIVERIES
// =============================================================================

func (s *Store) ActiveDrivers(ctx context.Context) ([]payroll.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, tier, active FROM drivers
		WHERE active = TRUE AND role = ?
		ORDER BY id ASC`, string(payroll.RoleDriver))
	if err != nil {
		return nil, fmt.Errorf("failed to query drivers: %w", err)
	}
	defer rows.Close()

	var result []payroll.Driver
	for rows.Next() {
		var d payroll.Driver
		var id, role, tier string
		if err := rows.Scan(&id, &d.Name, &role, &tier, &d.Active); err != nil {
			return nil, err
		}
		d.ID = payroll.DriverID(id)
		d.Role = payroll.Role(role)
		d.Tier = payroll.ParseSalaryTier(tier)
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) DeliveriesForDriver(ctx context.Context, driverID payroll.DriverID) ([]payroll.DeliveryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, driver_id, status, expected_tonnage, delivery_date, created_at
		FROM deliveries WHERE driver_id = ?
		ORDER BY created_at ASC, id ASC`, string(driverID))
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var result []payroll.DeliveryEvent
	for rows.Next() {
		var (
			e                payroll.DeliveryEvent
			id, driver, stat string
			tonnage          sql.NullString
			deliveryDate     sql.NullInt64
			created          int64
		)
		if err := rows.Scan(&id, &driver, &stat, &tonnage, &deliveryDate, &created); err != nil {
			return nil, err
		}
		status, err := payroll.ParseDeliveryStatus(stat)
		if err != nil {
			return nil, fmt.Errorf("delivery %s: %w", id, err)
		}
		e.ID = id
		e.DriverID = payroll.DriverID(driver)
		e.Status = status
		if tonnage.Valid {
			d, err := decimal.NewFromString(tonnage.String)
			if err != nil {
				return nil, fmt.Errorf("delivery %s tonnage: %w", id, err)
			}
			e.ExpectedTonnage = decimal.NewNullDecimal(d)
		}
		if deliveryDate.Valid {
			t := generic.FromMillis(deliveryDate.Int64, time.UTC)
			e.DeliveryDate = &t
		}
		e.CreatedAt = generic.FromMillis(created, time.UTC)
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) SaveDriver(ctx context.Context, d payroll.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (id, name, role, tier, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, role = excluded.role, tier = excluded.tier, active = excluded.active`,
		string(d.ID), d.Name, string(d.Role), string(d.Tier), d.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save driver: %w", err)
	}
	return nil
}

func (s *Store) SaveDelivery(ctx context.Context, e payroll.DeliveryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tonnage sql.NullString
	if e.ExpectedTonnage.Valid {
		tonnage = sql.NullString{String: e.ExpectedTonnage.Decimal.String(), Valid: true}
	}
	var deliveryDate sql.NullInt64
	if e.DeliveryDate != nil {
		deliveryDate = sql.NullInt64{Int64: generic.ToMillis(*e.DeliveryDate), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, driver_id, status, expected_tonnage, delivery_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			driver_id = excluded.driver_id, status = excluded.status,
			expected_tonnage = excluded.expected_tonnage, delivery_date = excluded.delivery_date,
			created_at = excluded.created_at`,
		e.ID, string(e.DriverID), e.Status.String(), tonnage, deliveryDate, generic.ToMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"salary_records", "batch_runs", "deliveries", "drivers"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// RUN LOG
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run payroll.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(id, period_start, period_end, status, drivers, processed, failed, error, triggered_by, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		generic.ToMillis(run.PeriodStart),
		generic.ToMillis(run.PeriodEnd),
		string(run.Status),
		run.Drivers,
		run.Processed,
		run.Failed,
		nullString(run.Error),
		nullString(run.TriggeredBy),
		generic.ToMillis(run.StartedAt),
		generic.ToMillis(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]payroll.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_start, period_end, status, drivers, processed, failed, error, triggered_by, started_at, completed_at
		FROM batch_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	var result []payroll.BatchRun
	for rows.Next() {
		var (
			run                     payroll.BatchRun
			status                  string
			start, end, began, done int64
			errText, triggeredBy    sql.NullString
		)
		if err := rows.Scan(&run.ID, &start, &end, &status, &run.Drivers, &run.Processed, &run.Failed,
			&errText, &triggeredBy, &began, &done); err != nil {
			return nil, err
		}
		run.PeriodStart = generic.FromMillis(start, time.UTC)
		run.PeriodEnd = generic.FromMillis(end, time.UTC)
		run.Status = payroll.RunStatus(status)
		run.Error = errText.String
		run.TriggeredBy = triggeredBy.String
		run.StartedAt = generic.FromMillis(began, time.UTC)
		run.CompletedAt = generic.FromMillis(done, time.UTC)
		result = append(result, run)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseMoney(value string) generic.Amount {
	return generic.Money(generic.MustParseDecimal(value))
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
