/*
Package postgres provides a PostgreSQL implementation of the payroll stores.

PURPOSE:
  Production persistence for salary records, the batch run log and the
  driver/delivery mirror. Same schema and encoding as store/sqlite
  (millisecond instants, decimal money, JSON details).

ATOMIC UPSERT:
  UpsertDraft locks the existing row with SELECT ... FOR UPDATE. When no
  row exists it inserts with ON CONFLICT DO NOTHING; losing that race
  (0 rows affected) restarts the transaction so the winner's row is found
  and updated instead. Processed rows are never written.

FINALIZE:
  UPDATE ... WHERE status = 'draft' is the compare-and-set. A record
  processed individually while a bulk finalize runs is counted once.

SEE ALSO:
  - store/sqlite: Same contract on SQLite
  - payroll/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

const maxUpsertAttempts = 3

var errLostInsertRace = errors.New("lost insert race")

type Store struct {
	db *sql.DB
}

var (
	_ payroll.SalaryStore     = (*Store)(nil)
	_ payroll.DriverDirectory = (*Store)(nil)
	_ payroll.DeliverySource  = (*Store)(nil)
	_ payroll.RunLog          = (*Store)(nil)
	_ payroll.Seeder          = (*Store)(nil)
)

// Open connects with lib/pq and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// New wraps an existing handle. The schema must already exist.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
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
	expected_tonnage NUMERIC,
	delivery_date BIGINT,
	created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_driver ON deliveries(driver_id);

CREATE TABLE IF NOT EXISTS salary_records (
	id TEXT PRIMARY KEY,
	driver_id TEXT NOT NULL,
	period_start BIGINT NOT NULL,
	period_end BIGINT NOT NULL,
	base_amount NUMERIC(14,2) NOT NULL,
	commission_amount NUMERIC(14,2) NOT NULL,
	deductions NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_amount NUMERIC(14,2) NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'processed')),
	details JSONB NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	processed_at BIGINT,
	processed_by TEXT,
	UNIQUE (driver_id, period_start)
);
CREATE INDEX IF NOT EXISTS idx_salary_records_period ON salary_records(period_start, period_end, status);

CREATE TABLE IF NOT EXISTS batch_runs (
	id TEXT PRIMARY KEY,
	period_start BIGINT NOT NULL,
	period_end BIGINT NOT NULL,
	status TEXT NOT NULL,
	drivers INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	triggered_by TEXT,
	started_at BIGINT NOT NULL,
	completed_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at DESC);
`

// =============================================================================
// SALARY STORE
// =============================================================================

const recordColumns = `id, driver_id, period_start, period_end, base_amount, commission_amount,
	deductions, total_amount, status, details, created_at, updated_at, processed_at, processed_by`

func (s *Store) UpsertDraft(ctx context.Context, draft payroll.SalaryRecord) (payroll.RecordID, payroll.UpsertOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		id, outcome, err := s.upsertDraft(ctx, draft)
		if errors.Is(err, errLostInsertRace) {
			lastErr = err
			continue
		}
		return id, outcome, err
	}
	return "", 0, fmt.Errorf("upsert %s: %w: %v", draft.Key(), generic.ErrConcurrentModification, lastErr)
}

func (s *Store) upsertDraft(ctx context.Context, draft payroll.SalaryRecord) (payroll.RecordID, payroll.UpsertOutcome, error) {
	details, err := json.Marshal(draft.Details)
	if err != nil {
		return "", 0, fmt.Errorf("failed to encode details: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID, status, deductions string
	err = tx.QueryRowContext(ctx, `
		SELECT id, status, deductions FROM salary_records
		WHERE driver_id = $1 AND period_start = $2
		FOR UPDATE`,
		string(draft.DriverID), generic.ToMillis(draft.PeriodStart),
	).Scan(&existingID, &status, &deductions)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		zero := generic.ZeroAmount(generic.UnitCurrency)
		total := payroll.TotalFor(draft.BaseAmount, draft.CommissionAmount, zero)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO salary_records
			(id, driver_id, period_start, period_end, base_amount, commission_amount,
			 deductions, total_amount, status, details, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'draft', $9, $10, $11)
			ON CONFLICT (driver_id, period_start) DO NOTHING`,
			string(draft.ID),
			string(draft.DriverID),
			generic.ToMillis(draft.PeriodStart),
			generic.ToMillis(draft.PeriodEnd),
			draft.BaseAmount.Value.String(),
			draft.CommissionAmount.Value.String(),
			zero.Value.String(),
			total.Value.String(),
			string(details),
			generic.ToMillis(draft.CreatedAt),
			generic.ToMillis(draft.UpdatedAt),
		)
		if err != nil {
			return "", 0, fmt.Errorf("failed to insert salary record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", 0, errLostInsertRace
		}
		if err := tx.Commit(); err != nil {
			return "", 0, fmt.Errorf("failed to commit: %w", err)
		}
		return draft.ID, payroll.OutcomeCreated, nil

	case err != nil:
		return "", 0, fmt.Errorf("failed to look up salary record: %w", err)
	}

	if status == payroll.StatusProcessed.String() {
		if err := tx.Commit(); err != nil {
			return "", 0, fmt.Errorf("failed to commit: %w", err)
		}
		return payroll.RecordID(existingID), payroll.OutcomeSkipped, nil
	}

	kept, err := decimal.NewFromString(deductions)
	if err != nil {
		return "", 0, fmt.Errorf("record %s deductions: %w", existingID, err)
	}
	total := payroll.TotalFor(draft.BaseAmount, draft.CommissionAmount, generic.Money(kept))
	_, err = tx.ExecContext(ctx, `
		UPDATE salary_records
		SET period_end = $1, base_amount = $2, commission_amount = $3, total_amount = $4,
		    details = $5, updated_at = $6
		WHERE id = $7`,
		generic.ToMillis(draft.PeriodEnd),
		draft.BaseAmount.Value.String(),
		draft.CommissionAmount.Value.String(),
		total.Value.String(),
		string(details),
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
	res, err := s.db.ExecContext(ctx, `
		UPDATE salary_records
		SET status = 'processed', processed_at = $1, processed_by = $2, updated_at = $1
		WHERE id = $3 AND status = 'draft'`,
		generic.ToMillis(at), by, string(id),
	)
	if err != nil {
		return false, fmt.Errorf("failed to process salary record: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM salary_records WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, generic.ErrRecordNotFound
	}
	return false, nil
}

func (s *Store) MarkProcessedInPeriod(ctx context.Context, start, end time.Time, by string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE salary_records
		SET status = 'processed', processed_at = $1, processed_by = $2, updated_at = $1
		WHERE period_start = $3 AND period_end = $4 AND status = 'draft'`,
		generic.ToMillis(at), by, generic.ToMillis(start), generic.ToMillis(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to process period: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) SetDeductions(ctx context.Context, id payroll.RecordID, deductions generic.Amount, at time.Time) (payroll.SalaryRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payroll.SalaryRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM salary_records WHERE id = $1 FOR UPDATE`, string(id)))
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
	_, err = tx.ExecContext(ctx,
		`UPDATE salary_records SET deductions = $1, total_amount = $2, updated_at = $3 WHERE id = $4`,
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
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM salary_records WHERE id = $1`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.SalaryRecord{}, generic.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) Find(ctx context.Context, driverID payroll.DriverID, periodStart time.Time) (*payroll.SalaryRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM salary_records WHERE driver_id = $1 AND period_start = $2`,
		string(driverID), generic.ToMillis(periodStart)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListByPeriod(ctx context.Context, start, end time.Time) ([]payroll.SalaryRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM salary_records
		WHERE period_start = $1 AND period_end = $2
		ORDER BY driver_id`,
		generic.ToMillis(start), generic.ToMillis(end))
}

func (s *Store) ListInRange(ctx context.Context, from, to time.Time) ([]payroll.SalaryRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM salary_records
		WHERE period_start BETWEEN $1 AND $2
		ORDER BY period_start, driver_id`,
		generic.ToMillis(from), generic.ToMillis(to))
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
		id, driverID, status                 string
		base, commission, deductions, total  decimal.Decimal
		details                              []byte
		periodStart, periodEnd, created, upd int64
		processedAt                          sql.NullInt64
		processedBy                          sql.NullString
	)
	err := row.Scan(&id, &driverID, &periodStart, &periodEnd, &base, &commission,
		&deductions, &total, &status, &details, &created, &upd, &processedAt, &processedBy)
	if err != nil {
		return payroll.SalaryRecord{}, err
	}
	st, err := payroll.ParseRecordStatus(status)
	if err != nil {
		return payroll.SalaryRecord{}, err
	}
	if err := json.Unmarshal(details, &rec.Details); err != nil {
		return payroll.SalaryRecord{}, fmt.Errorf("failed to decode details of %s: %w", id, err)
	}

	rec.ID = payroll.RecordID(id)
	rec.DriverID = payroll.DriverID(driverID)
	rec.PeriodStart = generic.FromMillis(periodStart, time.UTC)
	rec.PeriodEnd = generic.FromMillis(periodEnd, time.UTC)
	rec.BaseAmount = generic.Money(base)
	rec.CommissionAmount = generic.Money(commission)
	rec.Deductions = generic.Money(deductions)
	rec.TotalAmount = generic.Money(total)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, tier, active FROM drivers
		WHERE active AND role = $1
		ORDER BY id`, string(payroll.RoleDriver))
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, driver_id, status, expected_tonnage, delivery_date, created_at
		FROM deliveries WHERE driver_id = $1
		ORDER BY created_at, id`, string(driverID))
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var result []payroll.DeliveryEvent
	for rows.Next() {
		var (
			e            payroll.DeliveryEvent
			driver, stat string
			deliveryDate sql.NullInt64
			created      int64
		)
		if err := rows.Scan(&e.ID, &driver, &stat, &e.ExpectedTonnage, &deliveryDate, &created); err != nil {
			return nil, err
		}
		if e.Status, err = payroll.ParseDeliveryStatus(stat); err != nil {
			return nil, fmt.Errorf("delivery %s: %w", e.ID, err)
		}
		e.DriverID = payroll.DriverID(driver)
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drivers (id, name, role, tier, active) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, role = EXCLUDED.role, tier = EXCLUDED.tier, active = EXCLUDED.active`,
		string(d.ID), d.Name, string(d.Role), string(d.Tier), d.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save driver: %w", err)
	}
	return nil
}

func (s *Store) SaveDelivery(ctx context.Context, e payroll.DeliveryEvent) error {
	var deliveryDate sql.NullInt64
	if e.DeliveryDate != nil {
		deliveryDate = sql.NullInt64{Int64: generic.ToMillis(*e.DeliveryDate), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, driver_id, status, expected_tonnage, delivery_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id, status = EXCLUDED.status,
			expected_tonnage = EXCLUDED.expected_tonnage, delivery_date = EXCLUDED.delivery_date,
			created_at = EXCLUDED.created_at`,
		e.ID, string(e.DriverID), e.Status.String(), e.ExpectedTonnage, deliveryDate, generic.ToMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save delivery: %w", err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE salary_records, batch_runs, deliveries, drivers`)
	return err
}

// =============================================================================
// RUN LOG
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run payroll.BatchRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(id, period_start, period_end, status, drivers, processed, failed, error, triggered_by, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
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
		if isUniqueViolation(err) {
			return fmt.Errorf("batch run %s already recorded: %w", run.ID, err)
		}
		return fmt.Errorf("failed to save batch run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]payroll.BatchRun, error) {
	query := `
		SELECT id, period_start, period_end, status, drivers, processed, failed, error, triggered_by, started_at, completed_at
		FROM batch_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
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

// isUniqueViolation reports a PostgreSQL unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
