// Package storetest holds the behaviour every leave.TxStore must share.
// Each store package runs Run against its own constructor.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// Factory returns an empty store. Cleanup is the caller's job (t.Cleanup).
type Factory func(t *testing.T) leave.TxStore

var created = time.Date(2024, time.January, 10, 9, 30, 0, 0, time.UTC)

// Employee builds a stored employee with the annual allowance.
func Employee(id, email string) leave.Employee {
	return leave.Employee{
		ID:           id,
		Name:         "Employee " + id,
		Email:        email,
		Department:   "Engineering",
		JoiningDate:  calendar.MustParse("2024-01-10"),
		LeaveBalance: leave.AnnualAllowance,
		CreatedAt:    created,
	}
}

// Leave builds a stored leave request.
func Leave(id, employeeID, start, end string, status leave.Status) leave.LeaveRequest {
	return leave.LeaveRequest{
		ID:         id,
		EmployeeID: employeeID,
		StartDate:  calendar.MustParse(start),
		EndDate:    calendar.MustParse(end),
		Status:     status,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

// Run exercises the store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("EmployeeRoundTrip", func(t *testing.T) { testEmployeeRoundTrip(t, newStore(t)) })
	t.Run("MissingRecordsAreNil", func(t *testing.T) { testMissingRecordsAreNil(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("SetLeaveBalance", func(t *testing.T) { testSetLeaveBalance(t, newStore(t)) })
	t.Run("LeaveRoundTrip", func(t *testing.T) { testLeaveRoundTrip(t, newStore(t)) })
	t.Run("ListOrdering", func(t *testing.T) { testListOrdering(t, newStore(t)) })
	t.Run("FindOverlapping", func(t *testing.T) { testFindOverlapping(t, newStore(t)) })
	t.Run("WithTxCommits", func(t *testing.T) { testWithTxCommits(t, newStore(t)) })
	t.Run("WithTxRollsBack", func(t *testing.T) { testWithTxRollsBack(t, newStore(t)) })
}

func testEmployeeRoundTrip(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	emp := Employee("e1", "alice@example.com")
	require.NoError(t, s.CreateEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, emp.ID, got.ID)
	assert.Equal(t, emp.Name, got.Name)
	assert.Equal(t, emp.Email, got.Email)
	assert.Equal(t, emp.Department, got.Department)
	assert.Equal(t, "2024-01-10", got.JoiningDate.String())
	assert.Equal(t, leave.AnnualAllowance, got.LeaveBalance)
	assert.True(t, emp.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", got.CreatedAt, emp.CreatedAt)

	byEmail, err := s.GetEmployeeByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "e1", byEmail.ID)
}

func testMissingRecordsAreNil(t *testing.T, s leave.TxStore) {
	ctx := context.Background()

	emp, err := s.GetEmployee(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, emp)

	emp, err = s.GetEmployeeByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, emp)

	req, err := s.GetLeave(ctx, "nothing")
	require.NoError(t, err)
	assert.Nil(t, req)

	employees, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, employees)

	leaves, err := s.ListLeaves(ctx)
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

func testDuplicateEmail(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))

	err := s.CreateEmployee(ctx, Employee("e2", "alice@example.com"))
	assert.True(t, errors.Is(err, leave.ErrDuplicateEmail), "got %v", err)

	employees, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Len(t, employees, 1)
}

func testSetLeaveBalance(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))

	require.NoError(t, s.SetLeaveBalance(ctx, "e1", 15))
	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 15, got.LeaveBalance)

	assert.Error(t, s.SetLeaveBalance(ctx, "e1", -1), "balance must not go negative")
	assert.Error(t, s.SetLeaveBalance(ctx, "nobody", 3))
}

func testLeaveRoundTrip(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))
	require.NoError(t, s.CreateLeave(ctx, Leave("l1", "e1", "2024-02-01", "2024-02-05", leave.StatusPending)))

	got, err := s.GetLeave(ctx, "l1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "e1", got.EmployeeID)
	assert.Equal(t, "2024-02-01", got.StartDate.String())
	assert.Equal(t, "2024-02-05", got.EndDate.String())
	assert.Equal(t, leave.StatusPending, got.Status)
	assert.Equal(t, 5, got.DurationDays())

	later := created.Add(time.Hour)
	require.NoError(t, s.SetLeaveStatus(ctx, "l1", leave.StatusApproved, later))

	got, err = s.GetLeave(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.True(t, later.Equal(got.UpdatedAt))
	assert.True(t, created.Equal(got.CreatedAt))

	assert.Error(t, s.SetLeaveStatus(ctx, "missing", leave.StatusApproved, later))
}

func testListOrdering(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))
	require.NoError(t, s.CreateEmployee(ctx, Employee("e2", "bob@example.com")))

	require.NoError(t, s.CreateLeave(ctx, Leave("l-march", "e1", "2024-03-01", "2024-03-02", leave.StatusPending)))
	require.NoError(t, s.CreateLeave(ctx, Leave("l-feb", "e1", "2024-02-01", "2024-02-02", leave.StatusRejected)))
	require.NoError(t, s.CreateLeave(ctx, Leave("l-bob", "e2", "2024-02-10", "2024-02-10", leave.StatusPending)))

	mine, err := s.ListLeavesByEmployee(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "l-feb", mine[0].ID)
	assert.Equal(t, "l-march", mine[1].ID)

	all, err := s.ListLeaves(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	employees, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 2)
	assert.Equal(t, "e1", employees[0].ID)
	assert.Equal(t, "e2", employees[1].ID)
}

func testFindOverlapping(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))
	require.NoError(t, s.CreateEmployee(ctx, Employee("e2", "bob@example.com")))

	require.NoError(t, s.CreateLeave(ctx, Leave("pending", "e1", "2024-02-01", "2024-02-05", leave.StatusPending)))
	require.NoError(t, s.CreateLeave(ctx, Leave("approved", "e1", "2024-02-10", "2024-02-12", leave.StatusApproved)))
	require.NoError(t, s.CreateLeave(ctx, Leave("rejected", "e1", "2024-02-20", "2024-02-22", leave.StatusRejected)))
	require.NoError(t, s.CreateLeave(ctx, Leave("other", "e2", "2024-02-01", "2024-02-28", leave.StatusApproved)))

	tests := []struct {
		name  string
		start string
		end   string
		want  []string
	}{
		{"inside pending", "2024-02-03", "2024-02-04", []string{"pending"}},
		{"touches pending end", "2024-02-05", "2024-02-07", []string{"pending"}},
		{"touches approved start", "2024-02-08", "2024-02-10", []string{"approved"}},
		{"spans both", "2024-01-31", "2024-02-11", []string{"pending", "approved"}},
		{"gap between", "2024-02-06", "2024-02-09", nil},
		{"rejected ignored", "2024-02-20", "2024-02-22", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period := calendar.Period{Start: calendar.MustParse(tt.start), End: calendar.MustParse(tt.end)}
			found, err := s.FindOverlapping(ctx, "e1", leave.ActiveStatuses, period)
			require.NoError(t, err)

			var ids []string
			for _, l := range found {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	// Status filter is honoured
	period := calendar.Period{Start: calendar.MustParse("2024-02-01"), End: calendar.MustParse("2024-02-28")}
	found, err := s.FindOverlapping(ctx, "e1", []leave.Status{leave.StatusRejected}, period)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "rejected", found[0].ID)
}

func testWithTxCommits(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))

	err := s.WithTx(ctx, func(tx leave.Store) error {
		emp, err := tx.GetEmployee(ctx, "e1")
		if err != nil {
			return err
		}
		if err := tx.CreateLeave(ctx, Leave("l1", "e1", "2024-02-01", "2024-02-05", leave.StatusApproved)); err != nil {
			return err
		}
		return tx.SetLeaveBalance(ctx, emp.ID, emp.LeaveBalance-5)
	})
	require.NoError(t, err)

	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 15, emp.LeaveBalance)

	req, err := s.GetLeave(ctx, "l1")
	require.NoError(t, err)
	assert.NotNil(t, req)
}

func testWithTxRollsBack(t *testing.T, s leave.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, Employee("e1", "alice@example.com")))
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.SetLeaveBalance(ctx, "e1", 3); err != nil {
			return err
		}
		if err := tx.CreateEmployee(ctx, Employee("e2", "bob@example.com")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, leave.AnnualAllowance, emp.LeaveBalance)

	gone, err := s.GetEmployee(ctx, "e2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
