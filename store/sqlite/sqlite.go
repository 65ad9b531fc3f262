/*
Package sqlite provides a SQLite-backed implementation of the storage
boundaries.

PURPOSE:
  Implements every persistence interface the calculation core consumes
  (payroll.ResultStore, payroll.CaseValueStore, payroll.EmployeeStore,
  payroll.JobStore) using SQLite. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

AUTHORITATIVE RESULT ENFORCEMENT:
  The results table carries the authority key (employee + period + job
  status + identity + sorted tag set) as its primary key; SaveResults
  uses INSERT OR REPLACE, so there is never more than one authoritative
  result per key. Values are stored as decimal strings to avoid float
  drift.

KEY TABLES:
  results:     Authoritative calculation results (collector, wage type
               and custom records)
  case_values: Typed calculation inputs with validity ranges and slots
  employees:   Calculation view of employees (identity + employment dates)
  payrun_jobs: Retro payrun jobs for the background runner

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/result.go:       Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/payroll-engine/payroll"
)

// Store implements all storage boundaries using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Results (one authoritative record per authority key)
	CREATE TABLE IF NOT EXISTS results (
		authority_key TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		collector TEXT,
		wage_type TEXT,
		name TEXT,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		value TEXT NOT NULL,
		job_status TEXT NOT NULL,
		tags_json TEXT,
		attributes_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Composite index for cycle-wide consolidated reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_results_employee_status_period
		ON results(employee_id, job_status, period_start);

	-- Case Values (calculation inputs, written by case-change operations)
	CREATE TABLE IF NOT EXISTS case_values (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		employee_id TEXT NOT NULL,
		field TEXT NOT NULL,
		slot TEXT NOT NULL DEFAULT '',
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		kind TEXT NOT NULL,
		number_value TEXT,
		text_value TEXT,
		date_value TEXT,
		flag_value BOOLEAN,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_case_values_employee_field
		ON case_values(employee_id, field, valid_from);

	-- Employees (calculation view only)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		withdrawal TEXT,
		attributes_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Retro Payrun Jobs (for the background runner)
	CREATE TABLE IF NOT EXISTS payrun_jobs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		target_start TEXT NOT NULL,
		target_end TEXT NOT NULL,
		reason TEXT,
		state TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_payrun_jobs_state
		ON payrun_jobs(state);

	-- CRITICAL: re-submitted retro jobs must collapse, not duplicate work
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payrun_jobs_pending_target
		ON payrun_jobs(employee_id, target_start)
		WHERE state = 'pending';
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RESULT STORE (payroll.ResultStore interface)
// =============================================================================

// SaveResults persists results atomically, replacing any existing result
// with the same authority key.
func (s *Store) SaveResults(ctx context.Context, results []payroll.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO results
		(authority_key, id, employee_id, kind, collector, wage_type, name,
		 period_start, period_end, value, job_status, tags_json, attributes_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, r := range results {
		tagsJSON, _ := json.Marshal(r.Tags)
		attrsJSON, _ := json.Marshal(r.Attributes)

		created := r.Created
		if created.IsZero() {
			created = time.Now().UTC()
		}

		_, err := tx.ExecContext(ctx, query,
			r.AuthorityKey(),
			r.ID,
			r.Employee,
			r.Kind,
			string(r.Collector),
			string(r.WageType),
			r.Name,
			r.Period.Start.String(),
			r.Period.End.String(),
			r.Value.String(),
			r.JobStatus,
			string(tagsJSON),
			string(attrsJSON),
			created.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
	}

	return tx.Commit()
}

// ResultsInCycle returns every result of the employee within the cycle
// carrying the given job status, ordered by period start.
func (s *Store) ResultsInCycle(ctx context.Context, employee payroll.EmployeeID, cycle payroll.Cycle, status payroll.JobStatus) ([]payroll.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, kind, collector, wage_type, name,
		       period_start, period_end, value, job_status, tags_json, attributes_json, created_at
		FROM results
		WHERE employee_id = ? AND job_status = ?
		  AND period_start >= ? AND period_end <= ?
		ORDER BY period_start ASC, created_at ASC
	`

	return s.queryResults(ctx, query, employee, status, cycle.Start.String(), cycle.End.String())
}

// ResultsInPeriod returns the employee's results for a single period and
// job status.
func (s *Store) ResultsInPeriod(ctx context.Context, employee payroll.EmployeeID, p payroll.Period, status payroll.JobStatus) ([]payroll.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, kind, collector, wage_type, name,
		       period_start, period_end, value, job_status, tags_json, attributes_json, created_at
		FROM results
		WHERE employee_id = ? AND job_status = ? AND period_start = ?
		ORDER BY kind ASC, created_at ASC
	`

	return s.queryResults(ctx, query, employee, status, p.Start.String())
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]payroll.Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []payroll.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

func scanResult(rows *sql.Rows) (payroll.Result, error) {
	var (
		r           payroll.Result
		collector   sql.NullString
		wageType    sql.NullString
		name        sql.NullString
		periodStart string
		periodEnd   string
		value       string
		tagsJSON    sql.NullString
		attrsJSON   sql.NullString
		createdAt   string
	)

	err := rows.Scan(
		&r.ID, &r.Employee, &r.Kind, &collector, &wageType, &name,
		&periodStart, &periodEnd, &value, &r.JobStatus, &tagsJSON, &attrsJSON, &createdAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan result: %w", err)
	}

	r.Collector = payroll.CollectorName(collector.String)
	r.WageType = payroll.WageTypeNumber(wageType.String)
	r.Name = name.String

	start, err := payroll.ParseDate(periodStart)
	if err != nil {
		return r, fmt.Errorf("failed to parse period start: %w", err)
	}
	end, err := payroll.ParseDate(periodEnd)
	if err != nil {
		return r, fmt.Errorf("failed to parse period end: %w", err)
	}
	r.Period = payroll.Period{Start: start, End: end}
	r.Value = payroll.MustParseDecimal(value)
	r.Created, _ = time.Parse(time.RFC3339, createdAt)

	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
	}
	if attrsJSON.Valid && attrsJSON.String != "" {
		json.Unmarshal([]byte(attrsJSON.String), &r.Attributes)
	}

	return r, nil
}

// =============================================================================
// CASE VALUE STORE (payroll.CaseValueStore interface)
// =============================================================================

// SaveCaseValues appends case values for an employee. Case-change
// operations own the editing model; the calculation side only needs the
// resulting value rows.
func (s *Store) SaveCaseValues(ctx context.Context, employee payroll.EmployeeID, values []payroll.CaseValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO case_values
		(employee_id, field, slot, valid_from, valid_to, kind,
		 number_value, text_value, date_value, flag_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, cv := range values {
		var validTo *string
		if !cv.End.IsZero() {
			v := cv.End.String()
			validTo = &v
		}
		var dateValue *string
		if !cv.Day.IsZero() {
			v := cv.Day.String()
			dateValue = &v
		}
		created := cv.Created
		if created.IsZero() {
			created = time.Now().UTC()
		}

		_, err := tx.ExecContext(ctx, query,
			employee,
			cv.Field,
			cv.Slot,
			cv.Start.String(),
			validTo,
			cv.Kind,
			cv.Number.String(),
			cv.Text,
			dateValue,
			cv.Flag,
			created.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to save case value: %w", err)
		}
	}

	return tx.Commit()
}

// CaseValues returns the values of the named fields valid in the period,
// all slots included, ordered by field then validity start.
func (s *Store) CaseValues(ctx context.Context, employee payroll.EmployeeID, p payroll.Period, fields []string) (payroll.CaseValueSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(fields) == 0 {
		return payroll.CaseValueSet{}, nil
	}

	query := `
		SELECT field, slot, valid_from, valid_to, kind,
		       number_value, text_value, date_value, flag_value, created_at
		FROM case_values
		WHERE employee_id = ? AND field IN (` + placeholders(len(fields)) + `)
		ORDER BY field ASC, valid_from ASC
	`

	args := make([]any, 0, len(fields)+1)
	args = append(args, employee)
	for _, f := range fields {
		args = append(args, f)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return payroll.CaseValueSet{}, fmt.Errorf("failed to query case values: %w", err)
	}
	defer rows.Close()

	var values []payroll.CaseValue
	for rows.Next() {
		cv, err := scanCaseValue(rows)
		if err != nil {
			return payroll.CaseValueSet{}, err
		}
		// Validity overlap is cheaper to decide in Go than in dialect-
		// dependent date SQL; per-employee row counts are small.
		if cv.ValidIn(p) {
			values = append(values, cv)
		}
	}

	return payroll.CaseValueSet{Values: values}, rows.Err()
}

// PeriodCaseValue returns the single value of a field valid in the
// period, or nil when absent. The latest-starting valid range wins.
func (s *Store) PeriodCaseValue(ctx context.Context, employee payroll.EmployeeID, p payroll.Period, field string) (*payroll.CaseValue, error) {
	set, err := s.CaseValues(ctx, employee, p, []string{field})
	if err != nil {
		return nil, err
	}

	var best *payroll.CaseValue
	for i := range set.Values {
		cv := set.Values[i]
		if best == nil || cv.Start.After(best.Start) {
			value := cv
			best = &value
		}
	}
	return best, nil
}

func scanCaseValue(rows *sql.Rows) (payroll.CaseValue, error) {
	var (
		cv        payroll.CaseValue
		validFrom string
		validTo   sql.NullString
		number    sql.NullString
		text      sql.NullString
		dateValue sql.NullString
		flag      sql.NullBool
		createdAt string
	)

	err := rows.Scan(
		&cv.Field, &cv.Slot, &validFrom, &validTo, &cv.Kind,
		&number, &text, &dateValue, &flag, &createdAt,
	)
	if err != nil {
		return cv, fmt.Errorf("failed to scan case value: %w", err)
	}

	cv.Start, err = payroll.ParseDate(validFrom)
	if err != nil {
		return cv, fmt.Errorf("failed to parse validity start: %w", err)
	}
	if validTo.Valid {
		cv.End, err = payroll.ParseDate(validTo.String)
		if err != nil {
			return cv, fmt.Errorf("failed to parse validity end: %w", err)
		}
	}
	if number.Valid {
		cv.Number = payroll.MustParseDecimal(number.String)
	}
	cv.Text = text.String
	if dateValue.Valid {
		cv.Day, _ = payroll.ParseDate(dateValue.String)
	}
	cv.Flag = flag.Bool
	cv.Created, _ = time.Parse(time.RFC3339, createdAt)

	return cv, nil
}

// =============================================================================
// EMPLOYEE STORE (payroll.EmployeeStore interface)
// =============================================================================

// SaveEmployee upserts an employee.
func (s *Store) SaveEmployee(ctx context.Context, e *payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var withdrawal *string
	if e.Withdrawal != nil {
		v := e.Withdrawal.String()
		withdrawal = &v
	}
	attrsJSON, _ := json.Marshal(e.Attributes)

	query := `
		INSERT INTO employees (id, name, entry_date, withdrawal, attributes_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entry_date = excluded.entry_date,
			withdrawal = excluded.withdrawal,
			attributes_json = excluded.attributes_json
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, e.EntryDate.String(), withdrawal,
		string(attrsJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Employee retrieves an employee by ID.
func (s *Store) Employee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, entry_date, withdrawal, attributes_json FROM employees WHERE id = ?",
		id,
	)

	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]*payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, entry_date, withdrawal, attributes_json FROM employees ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []*payroll.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*payroll.Employee, error) {
	var (
		e          payroll.Employee
		entryDate  string
		withdrawal sql.NullString
		attrsJSON  sql.NullString
	)

	if err := row.Scan(&e.ID, &e.Name, &entryDate, &withdrawal, &attrsJSON); err != nil {
		return nil, err
	}

	entry, err := payroll.ParseDate(entryDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entry date: %w", err)
	}
	e.EntryDate = entry

	if withdrawal.Valid {
		d, err := payroll.ParseDate(withdrawal.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse withdrawal date: %w", err)
		}
		e.Withdrawal = &d
	}
	if attrsJSON.Valid && attrsJSON.String != "" {
		json.Unmarshal([]byte(attrsJSON.String), &e.Attributes)
	}

	return &e, nil
}

// =============================================================================
// JOB STORE (payroll.JobStore interface)
// =============================================================================

// SaveJob upserts a retro payrun job. A pending job for the same
// (employee, target period start) absorbs the re-submission instead of
// duplicating work; the partial unique index enforces this.
func (s *Store) SaveJob(ctx context.Context, job payroll.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payrun_jobs
		(id, employee_id, target_start, target_end, reason, state, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, target_start) WHERE state = 'pending' DO UPDATE SET
			reason = excluded.reason,
			state = excluded.state,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if job.CompletedAt != nil {
		v := job.CompletedAt.Format(time.RFC3339)
		completedAt = &v
	}
	state := job.State
	if state == "" {
		state = payroll.JobPending
	}

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.Employee,
		job.Target.Start.String(), job.Target.End.String(),
		job.Reason, state, job.Error,
		job.Created.Format(time.RFC3339),
		completedAt,
	)
	return err
}

// PendingJobs returns pending jobs ordered by employee then target start.
func (s *Store) PendingJobs(ctx context.Context) ([]payroll.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, employee_id, target_start, target_end, reason, state, error, created_at, completed_at
		FROM payrun_jobs
		WHERE state = 'pending'
		ORDER BY employee_id ASC, target_start ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []payroll.JobRecord
	for rows.Next() {
		var (
			job         payroll.JobRecord
			targetStart string
			targetEnd   string
			errText     sql.NullString
			createdAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(
			&job.ID, &job.Employee, &targetStart, &targetEnd,
			&job.Reason, &job.State, &errText, &createdAt, &completedAt,
		); err != nil {
			return nil, err
		}

		start, err := payroll.ParseDate(targetStart)
		if err != nil {
			return nil, fmt.Errorf("failed to parse job target start: %w", err)
		}
		end, err := payroll.ParseDate(targetEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to parse job target end: %w", err)
		}
		job.Target = payroll.Period{Start: start, End: end}
		job.Error = errText.String
		job.Created, _ = time.Parse(time.RFC3339, createdAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			job.CompletedAt = &t
		}

		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CompleteJob marks a job completed or failed.
func (s *Store) CompleteJob(ctx context.Context, id string, jobErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := payroll.JobCompleted
	errText := ""
	if jobErr != nil {
		state = payroll.JobFailed
		errText = jobErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE payrun_jobs SET state = ?, error = ?, completed_at = ? WHERE id = ?",
		state, errText, time.Now().UTC().Format(time.RFC3339), id,
	)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"results", "case_values", "payrun_jobs", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
