/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements leave.TxStore plus the reference-data collaborators
  (leave.Directory, leave.Calendar, leave.LeaveTypeCatalog) using SQLite.

KEY TABLES:
  leave_balances:            One row per (employee, leave type, year), versioned
  leave_applications:        Applications with their sandwich snapshot, versioned
  leave_balance_adjustments: Append-only audit trail (triggers reject UPDATE/DELETE)
  employees:                 Directory records
  leave_types:               Catalog
  holidays:                  Calendar
  batch_progress:            Last accrual month / anniversary day the scheduler finished

OPTIMISTIC LOCKING:
  Updates are `... WHERE id = ? AND version = ?`. Zero rows affected means the
  row changed since it was read: generic.ErrConcurrentModification.

TRANSACTIONS:
  WithTx opens an IMMEDIATE transaction (_txlock=immediate), so the write
  lock is taken up front and two events never interleave a read-modify-write.
  Every read inside fn goes through the *sql.Tx. Leave types and holidays are
  cached in memory so the calendar and catalog never touch the database
  while a transaction holds the connection.

ENCODING:
  Day amounts:  decimal TEXT
  Dates:        YYYY-MM-DD
  Months:       YYYY-MM ('' = never accrued)
  Timestamps:   fixed-width UTC, so TEXT comparison orders them

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers

	refMu      sync.RWMutex
	leaveTypes map[generic.LeaveTypeID]leave.LeaveType
	holidays   []generic.Holiday
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, leaveTypes: make(map[generic.LeaveTypeID]leave.LeaveType)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := store.loadReferenceData(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load reference data: %w", err)
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
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		join_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		manager_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		accrues INTEGER NOT NULL DEFAULT 0,
		carry_forward TEXT,
		sandwich INTEGER NOT NULL DEFAULT 0,
		allow_half_day INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		allocated TEXT NOT NULL,
		used TEXT NOT NULL,
		carry_forward TEXT NOT NULL,
		monthly_rate TEXT NOT NULL,
		last_accrued_month TEXT NOT NULL DEFAULT '',
		rolled_over INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_balances_key
		ON leave_balances(employee_id, leave_type_id, year);

	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days_count TEXT NOT NULL,
		is_half_day INTEGER NOT NULL DEFAULT 0,
		half_day_period TEXT NOT NULL DEFAULT '',
		lop_days TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		comments TEXT,
		sandwich_deducted_days TEXT,
		is_sandwich_leave INTEGER,
		sandwich_pair_id TEXT,
		approved_by TEXT,
		approved_at TEXT,
		acted_by TEXT,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Neighbour lookups and overlap checks
	CREATE INDEX IF NOT EXISTS idx_applications_employee_dates
		ON leave_applications(employee_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON leave_applications(status);

	CREATE TABLE IF NOT EXISTS leave_balance_adjustments (
		id TEXT PRIMARY KEY,
		balance_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		previous_allocated TEXT NOT NULL,
		new_allocated TEXT NOT NULL,
		adjusted_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_employee
		ON leave_balance_adjustments(employee_id, created_at);

	CREATE TABLE IF NOT EXISTS batch_progress (
		name TEXT PRIMARY KEY,
		last_month TEXT NOT NULL DEFAULT '',
		last_day TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TRIGGER IF NOT EXISTS trg_adjustments_no_update
		BEFORE UPDATE ON leave_balance_adjustments
		BEGIN SELECT RAISE(ABORT, 'leave_balance_adjustments is append-only'); END;

	CREATE TRIGGER IF NOT EXISTS trg_adjustments_no_delete
		BEFORE DELETE ON leave_balance_adjustments
		BEGIN SELECT RAISE(ABORT, 'leave_balance_adjustments is append-only'); END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every call through the open *sql.Tx.
type txStore struct {
	q querier
}

func (ts *txStore) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return getBalance(ctx, ts.q, key)
}

func (ts *txStore) SaveBalance(ctx context.Context, b *leave.Balance) error {
	return saveBalance(ctx, ts.q, b)
}

func (ts *txStore) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]leave.Balance, error) {
	return listBalances(ctx, ts.q, employeeID, year)
}

func (ts *txStore) GetApplication(ctx context.Context, id generic.ApplicationID) (*leave.Application, error) {
	return getApplication(ctx, ts.q, id)
}

func (ts *txStore) SaveApplication(ctx context.Context, a *leave.Application) error {
	return saveApplication(ctx, ts.q, a)
}

func (ts *txStore) ListApplications(ctx context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	return listApplications(ctx, ts.q, filter)
}

func (ts *txStore) AppendAdjustment(ctx context.Context, adj leave.Adjustment) error {
	return appendAdjustment(ctx, ts.q, adj)
}

func (ts *txStore) ListAdjustments(ctx context.Context, filter leave.AdjustmentFilter) ([]leave.Adjustment, error) {
	return listAdjustments(ctx, ts.q, filter)
}

// =============================================================================
// NON-TRANSACTIONAL STORE (leave.Store interface)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return getBalance(ctx, s.db, key)
}

func (s *Store) SaveBalance(ctx context.Context, b *leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, b)
}

func (s *Store) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]leave.Balance, error) {
	return listBalances(ctx, s.db, employeeID, year)
}

func (s *Store) GetApplication(ctx context.Context, id generic.ApplicationID) (*leave.Application, error) {
	return getApplication(ctx, s.db, id)
}

func (s *Store) SaveApplication(ctx context.Context, a *leave.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveApplication(ctx, s.db, a)
}

func (s *Store) ListApplications(ctx context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	return listApplications(ctx, s.db, filter)
}

func (s *Store) AppendAdjustment(ctx context.Context, adj leave.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAdjustment(ctx, s.db, adj)
}

func (s *Store) ListAdjustments(ctx context.Context, filter leave.AdjustmentFilter) ([]leave.Adjustment, error) {
	return listAdjustments(ctx, s.db, filter)
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

func parseDays(value string) (generic.Amount, error) {
	amt, err := generic.ParseAmount(value, generic.UnitDays)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("corrupt amount %q: %w", value, err)
	}
	return amt, nil
}

func formatDate(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func parseDate(s string) (generic.TimePoint, error) {
	if s == "" {
		return generic.TimePoint{}, nil
	}
	return generic.ParseDate(s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func joinAnd(clauses []string) string {
	return strings.Join(clauses, " AND ")
}

// Reset clears every employee, application, balance, adjustment and holiday
// (for demo scenarios). The append-only triggers are dropped for the duration
// and recreated by migrate. The leave-type catalog is kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DROP TRIGGER IF EXISTS trg_adjustments_no_delete",
		"DELETE FROM leave_balance_adjustments",
		"DELETE FROM leave_applications",
		"DELETE FROM leave_balances",
		"DELETE FROM employees",
		"DELETE FROM holidays",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	if err := s.migrate(); err != nil {
		return err
	}

	s.refMu.Lock()
	s.holidays = nil
	s.refMu.Unlock()
	return nil
}
