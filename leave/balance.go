package leave

import "context"

// =============================================================================
// BALANCE ACCESSOR - Read-only projection of the directory
// =============================================================================

// Balance returns the employee's current leave balance.
func (e *Engine) Balance(ctx context.Context, employeeID string) (int, error) {
	emp, err := e.GetEmployee(ctx, employeeID)
	if err != nil {
		return 0, err
	}
	return emp.LeaveBalance, nil
}

// BalanceSummary is the balance together with the days held by the
// employee's active requests.
type BalanceSummary struct {
	EmployeeID   string `json:"employee_id"`
	LeaveBalance int    `json:"leave_balance"`
	PendingDays  int    `json:"pending_days"`
	ApprovedDays int    `json:"approved_days"`
}

// Summary returns the balance and the days in pending and approved
// requests. PendingDays is informational: pending requests hold nothing.
func (e *Engine) Summary(ctx context.Context, employeeID string) (BalanceSummary, error) {
	emp, err := e.GetEmployee(ctx, employeeID)
	if err != nil {
		return BalanceSummary{}, err
	}
	leaves, err := e.store.ListLeavesByEmployee(ctx, employeeID)
	if err != nil {
		return BalanceSummary{}, e.fail("balance summary", storageError("list leaves", err))
	}

	summary := BalanceSummary{EmployeeID: emp.ID, LeaveBalance: emp.LeaveBalance}
	for _, l := range leaves {
		switch l.Status {
		case StatusPending:
			summary.PendingDays += l.DurationDays()
		case StatusApproved:
			summary.ApprovedDays += l.DurationDays()
		}
	}
	return summary, nil
}
