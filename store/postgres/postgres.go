/*
Package postgres provides a PostgreSQL-backed implementation of leave.TxStore.

PURPOSE:
  Multi-instance deployments. Several engine processes can share one
  database because isolation comes from row locks, not from a process
  mutex.

LOCKING:
  WithTx runs at READ COMMITTED. Inside it GetEmployee and GetLeave use
  SELECT ... FOR UPDATE, so:
  - Two approvals for one employee serialize on the employee row
  - Two decisions on one leave serialize on the leave row
  - Two applies for one employee serialize on the employee row, which
    keeps the overlap check race-free

  Lock order is always leave -> employee. ApplyLeave takes only the
  employee lock and WithdrawLeave only the leave lock.

USAGE:
  pool, err := postgres.NewPool(ctx, databaseURL)
  store, err := postgres.New(ctx, pool)
  engine := leave.NewEngine(store)

SEE ALSO:
  - leave/store.go: Interface definitions
  - store/sqlite:   Single-file default store
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return pool, nil
}

// Store implements leave.TxStore over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	q    queries
}

var _ leave.TxStore = (*Store)(nil)

// New migrates the schema and returns a store over pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool, q: queries{db: pool}}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		department TEXT NOT NULL,
		joining_date DATE NOT NULL,
		leave_balance INTEGER NOT NULL DEFAULT 20 CHECK (leave_balance >= 0),
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_employees_email
		ON employees(email);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee_dates
		ON leave_requests(employee_id, start_date, end_date);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) CreateEmployee(ctx context.Context, emp leave.Employee) error {
	return s.q.createEmployee(ctx, emp)
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return s.q.getEmployee(ctx, "id", id)
}

func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (*leave.Employee, error) {
	return s.q.getEmployee(ctx, "email", email)
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return s.q.listEmployees(ctx)
}

func (s *Store) SetLeaveBalance(ctx context.Context, employeeID string, balance int) error {
	return s.q.setLeaveBalance(ctx, employeeID, balance)
}

func (s *Store) CreateLeave(ctx context.Context, req leave.LeaveRequest) error {
	return s.q.createLeave(ctx, req)
}

func (s *Store) GetLeave(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return s.q.getLeave(ctx, id)
}

func (s *Store) SetLeaveStatus(ctx context.Context, id string, status leave.Status, updatedAt time.Time) error {
	return s.q.setLeaveStatus(ctx, id, status, updatedAt)
}

func (s *Store) ListLeaves(ctx context.Context) ([]leave.LeaveRequest, error) {
	return s.q.queryLeaves(ctx, selectLeaves+" ORDER BY start_date, id")
}

func (s *Store) ListLeavesByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	return s.q.queryLeaves(ctx, selectLeaves+" WHERE employee_id = $1 ORDER BY start_date, id", employeeID)
}

func (s *Store) FindOverlapping(ctx context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	return s.q.findOverlapping(ctx, employeeID, statuses, period)
}

// WithTx runs fn in a READ COMMITTED transaction whose reads lock rows.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txStore{q: queries{db: tx, forUpdate: true}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore runs every query on the transaction with row locks on reads by id.
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
	return ts.q.queryLeaves(ctx, selectLeaves+" ORDER BY start_date, id")
}

func (ts *txStore) ListLeavesByEmployee(ctx context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	return ts.q.queryLeaves(ctx, selectLeaves+" WHERE employee_id = $1 ORDER BY start_date, id", employeeID)
}

func (ts *txStore) FindOverlapping(ctx context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	return ts.q.findOverlapping(ctx, employeeID, statuses, period)
}

// =============================================================================
// QUERIES
// =============================================================================

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db        dbtx
	forUpdate bool
}

const selectEmployees = `
	SELECT id, name, email, department, joining_date, leave_balance, created_at
	FROM employees`

const selectLeaves = `
	SELECT id, employee_id, start_date, end_date, status, created_at, updated_at
	FROM leave_requests`

func (q queries) lockClause() string {
	if q.forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func (q queries) createEmployee(ctx context.Context, emp leave.Employee) error {
	query := `
		INSERT INTO employees (id, name, email, department, joining_date, leave_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.db.Exec(ctx, query,
		emp.ID, emp.Name, emp.Email, emp.Department,
		emp.JoiningDate.Time(), emp.LeaveBalance, emp.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_employees_email") {
			return leave.ErrDuplicateEmail
		}
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// getEmployee looks up by column, which is always a literal from this file.
func (q queries) getEmployee(ctx context.Context, column, value string) (*leave.Employee, error) {
	row := q.db.QueryRow(ctx, selectEmployees+" WHERE "+column+" = $1"+q.lockClause(), value)
	emp, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &emp, nil
}

func (q queries) listEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := q.db.Query(ctx, selectEmployees+" ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	employees, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.Employee, error) {
		return scanEmployee(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	if employees == nil {
		employees = []leave.Employee{}
	}
	return employees, nil
}

func (q queries) setLeaveBalance(ctx context.Context, employeeID string, balance int) error {
	tag, err := q.db.Exec(ctx, "UPDATE employees SET leave_balance = $1 WHERE id = $2", balance, employeeID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update balance: employee %s: %d rows updated", employeeID, tag.RowsAffected())
	}
	return nil
}

func (q queries) createLeave(ctx context.Context, req leave.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (id, employee_id, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.db.Exec(ctx, query,
		req.ID, req.EmployeeID, req.StartDate.Time(), req.EndDate.Time(),
		string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

func (q queries) getLeave(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	row := q.db.QueryRow(ctx, selectLeaves+" WHERE id = $1"+q.lockClause(), id)
	req, err := scanLeave(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get leave request: %w", err)
	}
	return &req, nil
}

func (q queries) setLeaveStatus(ctx context.Context, id string, status leave.Status, updatedAt time.Time) error {
	tag, err := q.db.Exec(ctx,
		"UPDATE leave_requests SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update leave status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update leave status: leave %s: %d rows updated", id, tag.RowsAffected())
	}
	return nil
}

func (q queries) findOverlapping(ctx context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	query := selectLeaves + `
		WHERE employee_id = $1
		  AND status = ANY($2)
		  AND start_date <= $3 AND end_date >= $4
		ORDER BY start_date, id`
	return q.queryLeaves(ctx, query, employeeID, names, period.End.Time(), period.Start.Time())
}

func (q queries) queryLeaves(ctx context.Context, query string, args ...any) ([]leave.LeaveRequest, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leave requests: %w", err)
	}
	leaves, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (leave.LeaveRequest, error) {
		return scanLeave(row)
	})
	if err != nil {
		return nil, fmt.Errorf("query leave requests: %w", err)
	}
	if leaves == nil {
		leaves = []leave.LeaveRequest{}
	}
	return leaves, nil
}

func scanEmployee(row pgx.Row) (leave.Employee, error) {
	var (
		emp     leave.Employee
		joining time.Time
	)
	err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Department,
		&joining, &emp.LeaveBalance, &emp.CreatedAt)
	if err != nil {
		return emp, err
	}
	emp.JoiningDate = calendar.FromTime(joining)
	emp.CreatedAt = emp.CreatedAt.UTC()
	return emp, nil
}

func scanLeave(row pgx.Row) (leave.LeaveRequest, error) {
	var (
		req        leave.LeaveRequest
		start, end time.Time
		status     string
	)
	err := row.Scan(&req.ID, &req.EmployeeID, &start, &end, &status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return req, err
	}
	if req.Status, err = leave.ParseStatus(status); err != nil {
		return req, fmt.Errorf("leave %s: %w", req.ID, err)
	}
	req.StartDate = calendar.FromTime(start)
	req.EndDate = calendar.FromTime(end)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}

// isUniqueViolation reports a 23505 unique_violation on constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.EqualFold(pgErr.ConstraintName, constraint)
	}
	return false
}
