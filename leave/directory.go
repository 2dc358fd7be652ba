package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

// CreateEmployee registers a new employee with the annual allowance.
// Emails are compared case-insensitively.
func (e *Engine) CreateEmployee(ctx context.Context, in NewEmployee) (Employee, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	department := strings.TrimSpace(in.Department)
	switch {
	case name == "":
		return Employee{}, e.fail("create employee", fmt.Errorf("%w: name", ErrBlankField))
	case department == "":
		return Employee{}, e.fail("create employee", fmt.Errorf("%w: department", ErrBlankField))
	}

	var created Employee

	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetEmployeeByEmail(ctx, email)
		if err != nil {
			return storageError("get employee by email", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}

		if today := e.clock(); in.JoiningDate.After(today) {
			return fmt.Errorf("%w: %s is after %s", ErrFutureJoiningDate, in.JoiningDate, today)
		}

		created = Employee{
			ID:           e.newID(),
			Name:         name,
			Email:        email,
			Department:   department,
			JoiningDate:  in.JoiningDate,
			LeaveBalance: AnnualAllowance,
			CreatedAt:    e.now(),
		}
		if err := s.CreateEmployee(ctx, created); err != nil {
			if errors.Is(err, ErrDuplicateEmail) {
				return err
			}
			return storageError("create employee", err)
		}
		return nil
	})
	if err != nil {
		return Employee{}, e.fail("create employee", err)
	}

	e.log.Info().Str("employee_id", created.ID).Str("email", created.Email).Msg("employee created")
	return created, nil
}

// GetEmployee returns the employee with id.
func (e *Engine) GetEmployee(ctx context.Context, id string) (Employee, error) {
	emp, err := e.store.GetEmployee(ctx, id)
	if err != nil {
		return Employee{}, e.fail("get employee", storageError("get employee", err))
	}
	if emp == nil {
		return Employee{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
	}
	return *emp, nil
}

// ListEmployees returns every employee. Order is store-defined.
func (e *Engine) ListEmployees(ctx context.Context) ([]Employee, error) {
	employees, err := e.store.ListEmployees(ctx)
	if err != nil {
		return nil, e.fail("list employees", storageError("list employees", err))
	}
	if employees == nil {
		employees = []Employee{}
	}
	return employees, nil
}

// GetLeave returns the leave request with id.
func (e *Engine) GetLeave(ctx context.Context, id string) (LeaveRequest, error) {
	req, err := e.store.GetLeave(ctx, id)
	if err != nil {
		return LeaveRequest{}, e.fail("get leave", storageError("get leave", err))
	}
	if req == nil {
		return LeaveRequest{}, fmt.Errorf("%w: %s", ErrLeaveNotFound, id)
	}
	return *req, nil
}

// ListLeaves returns the Leave Ledger of one employee.
func (e *Engine) ListLeaves(ctx context.Context, employeeID string) ([]LeaveRequest, error) {
	if _, err := e.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	leaves, err := e.store.ListLeavesByEmployee(ctx, employeeID)
	if err != nil {
		return nil, e.fail("list leaves", storageError("list leaves", err))
	}
	if leaves == nil {
		leaves = []LeaveRequest{}
	}
	return leaves, nil
}

// Dump returns every employee with every leave request it owns.
func (e *Engine) Dump(ctx context.Context) ([]EmployeeLedger, error) {
	employees, err := e.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	leaves, err := e.store.ListLeaves(ctx)
	if err != nil {
		return nil, e.fail("dump", storageError("list leaves", err))
	}

	byEmployee := make(map[string][]LeaveRequest, len(employees))
	for _, l := range leaves {
		byEmployee[l.EmployeeID] = append(byEmployee[l.EmployeeID], l)
	}

	out := make([]EmployeeLedger, len(employees))
	for i, emp := range employees {
		owned := byEmployee[emp.ID]
		if owned == nil {
			owned = []LeaveRequest{}
		}
		out[i] = EmployeeLedger{Employee: emp, Leaves: owned}
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
