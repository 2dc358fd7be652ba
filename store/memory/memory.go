// Package memory provides an in-memory leave.TxStore for tests and
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is safe for concurrent use. WithTx holds the write lock for the
// whole transaction, which serializes every check-then-mutate sequence.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	employees map[string]leave.Employee
	emails    map[string]string // email -> employee id
	leaves    map[string]leave.LeaveRequest
}

func New() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{
		employees: make(map[string]leave.Employee),
		emails:    make(map[string]string),
		leaves:    make(map[string]leave.LeaveRequest),
	}
}

var _ leave.TxStore = (*Memory)(nil)

func (m *Memory) CreateEmployee(_ context.Context, emp leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createEmployee(emp)
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getEmployee(id), nil
}

func (m *Memory) GetEmployeeByEmail(_ context.Context, email string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getEmployeeByEmail(email), nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listEmployees(), nil
}

func (m *Memory) SetLeaveBalance(_ context.Context, employeeID string, balance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setLeaveBalance(employeeID, balance)
}

func (m *Memory) CreateLeave(_ context.Context, req leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createLeave(req)
}

func (m *Memory) GetLeave(_ context.Context, id string) (*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getLeave(id), nil
}

func (m *Memory) SetLeaveStatus(_ context.Context, id string, status leave.Status, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.setLeaveStatus(id, status, updatedAt)
}

func (m *Memory) ListLeaves(_ context.Context) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listLeaves(func(leave.LeaveRequest) bool { return true }), nil
}

func (m *Memory) ListLeavesByEmployee(_ context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listLeaves(func(l leave.LeaveRequest) bool { return l.EmployeeID == employeeID }), nil
}

func (m *Memory) FindOverlapping(_ context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.findOverlapping(employeeID, statuses, period), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView runs against the locked state without taking the mutex again.
type txView struct {
	st *state
}

func (v *txView) CreateEmployee(_ context.Context, emp leave.Employee) error {
	return v.st.createEmployee(emp)
}

func (v *txView) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return v.st.getEmployee(id), nil
}

func (v *txView) GetEmployeeByEmail(_ context.Context, email string) (*leave.Employee, error) {
	return v.st.getEmployeeByEmail(email), nil
}

func (v *txView) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	return v.st.listEmployees(), nil
}

func (v *txView) SetLeaveBalance(_ context.Context, employeeID string, balance int) error {
	return v.st.setLeaveBalance(employeeID, balance)
}

func (v *txView) CreateLeave(_ context.Context, req leave.LeaveRequest) error {
	return v.st.createLeave(req)
}

func (v *txView) GetLeave(_ context.Context, id string) (*leave.LeaveRequest, error) {
	return v.st.getLeave(id), nil
}

func (v *txView) SetLeaveStatus(_ context.Context, id string, status leave.Status, updatedAt time.Time) error {
	return v.st.setLeaveStatus(id, status, updatedAt)
}

func (v *txView) ListLeaves(_ context.Context) ([]leave.LeaveRequest, error) {
	return v.st.listLeaves(func(leave.LeaveRequest) bool { return true }), nil
}

func (v *txView) ListLeavesByEmployee(_ context.Context, employeeID string) ([]leave.LeaveRequest, error) {
	return v.st.listLeaves(func(l leave.LeaveRequest) bool { return l.EmployeeID == employeeID }), nil
}

func (v *txView) FindOverlapping(_ context.Context, employeeID string, statuses []leave.Status, period calendar.Period) ([]leave.LeaveRequest, error) {
	return v.st.findOverlapping(employeeID, statuses, period), nil
}

// =============================================================================
// STATE - Unlocked operations; callers hold the mutex
// =============================================================================

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.leaves {
		c.leaves[k] = v
	}
	return c
}

func (s *state) createEmployee(emp leave.Employee) error {
	if _, taken := s.emails[emp.Email]; taken {
		return leave.ErrDuplicateEmail
	}
	if _, exists := s.employees[emp.ID]; exists {
		return errDuplicateID(emp.ID)
	}
	s.employees[emp.ID] = emp
	s.emails[emp.Email] = emp.ID
	return nil
}

func (s *state) getEmployee(id string) *leave.Employee {
	emp, ok := s.employees[id]
	if !ok {
		return nil
	}
	return &emp
}

func (s *state) getEmployeeByEmail(email string) *leave.Employee {
	id, ok := s.emails[email]
	if !ok {
		return nil
	}
	return s.getEmployee(id)
}

func (s *state) listEmployees() []leave.Employee {
	out := make([]leave.Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) setLeaveBalance(employeeID string, balance int) error {
	emp, ok := s.employees[employeeID]
	if !ok {
		return errMissing("employee", employeeID)
	}
	if balance < 0 {
		return errNegativeBalance(employeeID, balance)
	}
	emp.LeaveBalance = balance
	s.employees[employeeID] = emp
	return nil
}

func (s *state) createLeave(req leave.LeaveRequest) error {
	if _, ok := s.employees[req.EmployeeID]; !ok {
		return errMissing("employee", req.EmployeeID)
	}
	if _, exists := s.leaves[req.ID]; exists {
		return errDuplicateID(req.ID)
	}
	s.leaves[req.ID] = req
	return nil
}

func (s *state) getLeave(id string) *leave.LeaveRequest {
	req, ok := s.leaves[id]
	if !ok {
		return nil
	}
	return &req
}

func (s *state) setLeaveStatus(id string, status leave.Status, updatedAt time.Time) error {
	req, ok := s.leaves[id]
	if !ok {
		return errMissing("leave", id)
	}
	req.Status = status
	req.UpdatedAt = updatedAt
	s.leaves[id] = req
	return nil
}

func (s *state) listLeaves(keep func(leave.LeaveRequest) bool) []leave.LeaveRequest {
	out := []leave.LeaveRequest{}
	for _, l := range s.leaves {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) findOverlapping(employeeID string, statuses []leave.Status, period calendar.Period) []leave.LeaveRequest {
	return s.listLeaves(func(l leave.LeaveRequest) bool {
		return l.EmployeeID == employeeID && hasStatus(statuses, l.Status) && l.Period().Overlaps(period)
	})
}

func hasStatus(statuses []leave.Status, st leave.Status) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}
