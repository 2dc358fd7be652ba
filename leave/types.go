// Package leave implements the leave-lifecycle and balance-consistency engine:
// the employee directory, the leave ledger with its state machine, and the
// balance accessor.
package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/calendar"
)

// AnnualAllowance is the leave balance every employee starts with.
const AnnualAllowance = 20

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is a directory record. LeaveBalance is the only field mutated
// after creation, and only by an approval.
type Employee struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Department   string        `json:"department"`
	JoiningDate  calendar.Date `json:"joining_date"`
	LeaveBalance int           `json:"leave_balance"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewEmployee is the input to CreateEmployee.
type NewEmployee struct {
	Name        string
	Email       string
	Department  string
	JoiningDate calendar.Date
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// LeaveRequest is owned by exactly one Employee for its whole life.
type LeaveRequest struct {
	ID         string        `json:"id"`
	EmployeeID string        `json:"employee_id"`
	StartDate  calendar.Date `json:"start_date"`
	EndDate    calendar.Date `json:"end_date"`
	Status     Status        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Period returns the inclusive interval the request covers.
func (r LeaveRequest) Period() calendar.Period {
	return calendar.Period{Start: r.StartDate, End: r.EndDate}
}

// DurationDays is endDate - startDate + 1. Never persisted.
func (r LeaveRequest) DurationDays() int {
	return r.Period().Days()
}

// =============================================================================
// STATUS - State machine
// =============================================================================
//
//	        apply              approve
//	 ─────► pending ───────────────────────► approved   (terminal)
//	           │  \
//	           │   \ reject
//	           │    ────────────────────────► rejected  (terminal)
//	           │
//	           │ withdraw
//	           └────────────────────────────► withdrawn (terminal)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// ActiveStatuses are the statuses that occupy days on the calendar and
// take part in the overlap check.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

// decisions is the complete table of transitions reachable through a
// status update. Withdrawal has its own operation and is not listed.
var decisions = map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusApproved, StatusRejected, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown leave status %q", s)
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWithdrawn
}

// CanDecide reports whether a status update may move a request from s to
// target.
func (s Status) CanDecide(target Status) bool {
	for _, allowed := range decisions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// EmployeeLedger is an employee together with every leave request it owns.
type EmployeeLedger struct {
	Employee
	Leaves []LeaveRequest `json:"leaves"`
}
