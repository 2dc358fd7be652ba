/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Default persistence for the leave engine. One file holds both
  relations; ":memory:" gives a throwaway database for tests.

KEY TABLES:
  employees:      One row per employee, carries the live leave balance
  leave_requests: Every request ever filed, never deleted

CONSTRAINTS:
  - idx_employees_email: Unique email (stored lowercased by the engine)
  - leave_balance >= 0:  A deduction can never drive the balance negative
  - end_date >= start_date
  - leave_requests.employee_id references employees(id)

DATES:
  Calendar dates are stored as YYYY-MM-DD text, which sorts and compares
  lexically in date order. The overlap query relies on that.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and WithTx holds the write lock
  for the whole transaction. Transactions are also opened with
  BEGIN IMMEDIATE (_txlock=immediate) so a second process sharing the
  file waits on the database write lock instead of reading stale rows.
  Together this satisfies the row-lock contract in leave/store.go.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := leave.NewEngine(store)

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/postgres: Row-locking implementation for PostgreSQL
  - store/memory:   In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

const dsnParams = "_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000"

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ leave.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an already opened database and migrates it.
func NewWithDB(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		department TEXT NOT NULL,
		joining_date TEXT NOT NULL,
		leave_balance INTEGER NOT NULL DEFAULT 20 CHECK (leave_balance >= 0),
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_employees_email
		ON employees(email);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date >= start_date)
	);

	-- Overlap check (hot path on apply)
	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee_dates
		ON leave_requests(employee_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STORE (leave.Store interface)
// =============================================================================

func (s *Store) CreateEmployee(ctx context.Context, emp leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.createEmployee(ctx, emp)
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getEmployee(ctx, "id", id)
}

func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getEmployee(ctx, "email", email)
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.listEmployees(ctx)
}

func (s *Store) SetLeaveBalance(ctx context.Context, employeeID string, balance int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.setLeaveBalance(ctx, employeeID, balance)
}

func (s *Store) CreateLeave(ctx context.Context, req leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.createLeave(ctx, req)
}

func (s *Store) GetLeave(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getLeave(ctx, id)
}

func (s *Store) SetLeaveStatus(ctx context.Context, id string, status leave.Status, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.setLeaveStatus(ctx, id, status, updatedAt)
}

func (s *Store) ListLeaves(ctx context.Context) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.queryLeaves(ctx, selectLeaves+" ORDER BY start_date ASC, id ASC")
}

func (s *Store) ListLeavesByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.listLeavesByEmployee(ctx, employeeID)
}

func (s *Store) FindOverlapping(ctx context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.findOverlapping(ctx, employeeID, statuses, period)
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore must not touch Store.mu: WithTx already holds it.
type txStore struct {
	q queries
}

func (ts *txStore) CreateEmployee(ctx context.Context, emp leave.Employee) error {
	return ts.q.createEmployee(ctx, emp)
}

func (ts *txStore) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return ts.q.getEmployee(ctx, "id", id)
}

func (ts *txStore) GetEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	return ts.q.getEmployee(ctx, "email", email)
}

func (ts *txStore) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return ts.q.listEmployees(ctx)
}

func (ts *txStore) SetLeaveBalance(ctx context.Context, employeeID string, balance int) error {
	return ts.q.setLeaveBalance(ctx, employeeID, balance)
}

func (ts *txStore) CreateLeave(ctx context.Context, req leave.LeaveRequest) error {
	return ts.q.createLeave(ctx, req)
}

func (ts *txStore) GetLeave(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return ts.q.getLeave(ctx, id)
}

func (ts *txStore) SetLeaveStatus(ctx context.Context, id string, status leave.Status, updatedAt time.Time) error {
	return ts.q.setLeaveStatus(ctx, id, status, updatedAt)
}

func (ts *txStore) ListLeaves(ctx context.Context) ([]leave.LeaveRequest, error) {
	return ts.q.queryLeaves(ctx, selectLeaves+" ORDER BY start_date ASC, id ASC")
}

func (ts *txStore) ListLeavesByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	return ts.q.listLeavesByEmployee(ctx, employeeID)
}

func (ts *txStore) FindOverlapping(ctx context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	return ts.q.findOverlapping(ctx, employeeID, statuses, period)
}

// =============================================================================
// QUERIES - Shared by Store and txStore
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

const selectEmployees = `
	SELECT id, name, email, department, joining_date, leave_balance, created_at
	FROM employees`

const selectLeaves = `
	SELECT id, employee_id, start_date, end_date, status, created_at, updated_at
	FROM leave_requests`

type scanner interface {
	Scan(dest ...any) error
}

func (q queries) createEmployee(ctx context.Context, emp leave.Employee) error {
	query := `
		INSERT INTO employees
		(id, name, email, department, joining_date, leave_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		emp.ID,
		emp.Name,
		emp.Email,
		emp.Department,
		emp.JoiningDate.String(),
		emp.LeaveBalance,
		emp.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "employees.email") {
			return leave.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

// getEmployee looks up by column, which is always a literal from this file.
func (q queries) getEmployee(ctx context.Context, column, value string) (*leave.Employee, error) {
	row := q.db.QueryRowContext(ctx, selectEmployees+" WHERE "+column+" = ?", value)

	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (q queries) listEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := q.db.QueryContext(ctx, selectEmployees+" ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	employees := []leave.Employee{}
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func (q queries) setLeaveBalance(ctx context.Context, employeeID string, balance int) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE employees SET leave_balance = ? WHERE id = ?",
		balance, employeeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return expectOneRow(res, "employee", employeeID)
}

func (q queries) createLeave(ctx context.Context, req leave.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests
		(id, employee_id, start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		req.ID,
		req.EmployeeID,
		req.StartDate.String(),
		req.EndDate.String(),
		string(req.Status),
		req.CreatedAt.UTC().Format(time.RFC3339Nano),
		req.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func (q queries) getLeave(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	row := q.db.QueryRowContext(ctx, selectLeaves+" WHERE id = ?", id)

	req, err := scanLeave(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (q queries) setLeaveStatus(ctx context.Context, id string, status leave.Status, updatedAt time.Time) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE leave_requests SET status = ?, updated_at = ? WHERE id = ?",
		string(status), updatedAt.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave status: %w", err)
	}
	return expectOneRow(res, "leave request", id)
}

func (q queries) listLeavesByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	return q.queryLeaves(ctx,
		selectLeaves+" WHERE employee_id = ? ORDER BY start_date ASC, id ASC",
		employeeID,
	)
}

// findOverlapping applies the inclusive test
// existing.start <= period.end AND existing.end >= period.start.
func (q queries) findOverlapping(ctx context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	if len(statuses) == 0 {
		return []leave.LeaveRequest{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	query := selectLeaves + `
		WHERE employee_id = ?
		  AND status IN (` + placeholders + `)
		  AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC`

	args := make([]any, 0, len(statuses)+3)
	args = append(args, employeeID)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, period.End.String(), period.Start.String())

	return q.queryLeaves(ctx, query, args...)
}

func (q queries) queryLeaves(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	leaves := []leave.LeaveRequest{}
	for rows.Next() {
		req, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, req)
	}
	return leaves, rows.Err()
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		emp         leave.Employee
		joiningDate string
		createdAt   string
	)

	err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Department,
		&joiningDate, &emp.LeaveBalance, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emp, err
		}
		return emp, fmt.Errorf("failed to scan employee: %w", err)
	}

	if emp.JoiningDate, err = calendar.Parse(joiningDate); err != nil {
		return emp, fmt.Errorf("employee %s: %w", emp.ID, err)
	}
	if emp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return emp, fmt.Errorf("employee %s: bad created_at: %w", emp.ID, err)
	}
	return emp, nil
}

func scanLeave(row scanner) (leave.LeaveRequest, error) {
	var (
		req                  leave.LeaveRequest
		start, end, status   string
		createdAt, updatedAt string
	)

	err := row.Scan(&req.ID, &req.EmployeeID, &start, &end, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return req, err
		}
		return req, fmt.Errorf("failed to scan leave request: %w", err)
	}

	if req.StartDate, err = calendar.Parse(start); err != nil {
		return req, fmt.Errorf("leave %s: %w", req.ID, err)
	}
	if req.EndDate, err = calendar.Parse(end); err != nil {
		return req, fmt.Errorf("leave %s: %w", req.ID, err)
	}
	if req.Status, err = leave.ParseStatus(status); err != nil {
		return req, fmt.Errorf("leave %s: %w", req.ID, err)
	}
	if req.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return req, fmt.Errorf("leave %s: bad created_at: %w", req.ID, err)
	}
	if req.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return req, fmt.Errorf("leave %s: bad updated_at: %w", req.ID, err)
	}
	return req, nil
}

// Helper functions

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s %s: %d rows updated", kind, id, n)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
