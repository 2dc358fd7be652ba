/*
store.go - Record store interface consumed by the engine

PURPOSE:
  The engine needs a transactional record store with two relations
  (employees, leave_requests), a unique key on employee email, and an
  overlap query over an employee's leave requests. It does not care how
  those are provided.

KEY INTERFACES:
  Store:   Create/read/update by identifier plus the overlap query
  TxStore: Store plus WithTx for atomic check-then-mutate sequences

LOCKING CONTRACT:
  Inside WithTx, GetEmployee and GetLeave must return rows the
  transaction holds exclusively until it ends (row lock, serialized
  writer, or equivalent). Two concurrent approvals against one employee
  therefore observe each other's deduction instead of both passing the
  balance check.

MISSING RECORDS:
  GetEmployee, GetEmployeeByEmail and GetLeave return (nil, nil) when the
  record does not exist. Errors are reserved for store failures.

IMPLEMENTATIONS:
  - store/sqlite:   Default, serialized writer with immediate transactions
  - store/postgres: SELECT ... FOR UPDATE row locks
  - store/memory:   In-memory for tests and development

SEE ALSO:
  - engine.go: Runs every mutating operation inside WithTx
*/
package leave

import (
	"context"
	"time"

	"github.com/warp/leave-engine/calendar"
)

// Store persists employees and leave requests. There is no delete.
type Store interface {
	// CreateEmployee inserts emp. Returns ErrDuplicateEmail if the email
	// is taken.
	CreateEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	SetLeaveBalance(ctx context.Context, employeeID string, balance int) error

	CreateLeave(ctx context.Context, req LeaveRequest) error
	GetLeave(ctx context.Context, id string) (*LeaveRequest, error)
	SetLeaveStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error
	ListLeaves(ctx context.Context) ([]LeaveRequest, error)
	ListLeavesByEmployee(ctx context.Context, employeeID string) ([]LeaveRequest, error)

	// FindOverlapping returns the employee's requests with a status in
	// statuses whose inclusive interval intersects period.
	FindOverlapping(ctx context.Context, employeeID string, statuses []Status, period calendar.Period) ([]LeaveRequest, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
