/*
ledger.go - Leave request lifecycle

PURPOSE:
  Creation, status decisions and withdrawal of leave requests, with the
  balance bookkeeping those transitions imply.

REQUEST FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  ApplyLeave ──▶ pending ──UpdateStatus(approved)──▶ approved     │
  │                    │                                 balance -= n│
  │                    ├──UpdateStatus(rejected)──▶ rejected         │
  │                    │                                             │
  │                    └──WithdrawLeave──────────▶ withdrawn         │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

TWO-PHASE BALANCE CHECK:
  ApplyLeave rejects requests longer than the current balance. That check
  is advisory: nothing is held for a pending request. UpdateStatus
  re-reads the balance under the transaction's row lock and is the only
  place the balance is deducted. Another approval may have consumed days
  in between, so the second check can fail where the first passed.

CHECK ORDER:
  Checks run in a fixed order and the first failure is reported. See the
  numbered comments in each operation.

SEE ALSO:
  - types.go: Status and the decision table
  - balance.go: Read-only balance projection
*/
package leave

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// APPLY LEAVE
// =============================================================================

// ApplyLeave files a pending leave request for employeeID over the inclusive
// interval [start, end]. The balance is not touched.
func (e *Engine) ApplyLeave(ctx context.Context, employeeID string, start, end calendar.Date) (LeaveRequest, error) {
	var created LeaveRequest

	err := e.store.WithTx(ctx, func(s Store) error {
		// 1. Employee must exist
		emp, err := s.GetEmployee(ctx, employeeID)
		if err != nil {
			return storageError("get employee", err)
		}
		if emp == nil {
			return fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}

		// 2. No leave before joining
		if start.Before(emp.JoiningDate) {
			return fmt.Errorf("%w: starts %s, joined %s", ErrLeaveBeforeJoining, start, emp.JoiningDate)
		}

		// 3. End not before start
		period := calendar.Period{Start: start, End: end}
		if !period.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidDateRange, period)
		}

		// 4. Positive duration
		days := period.Days()
		if days <= 0 {
			return fmt.Errorf("%w: %d day(s)", ErrInvalidDuration, days)
		}

		// 5. Advisory balance check
		if days > emp.LeaveBalance {
			return &InsufficientBalanceError{
				EmployeeID: emp.ID,
				Available:  emp.LeaveBalance,
				Requested:  days,
			}
		}

		// 6. No overlap with an active request
		existing, err := s.FindOverlapping(ctx, emp.ID, ActiveStatuses, period)
		if err != nil {
			return storageError("find overlapping leave", err)
		}
		if len(existing) > 0 {
			return &OverlapError{
				EmployeeID: emp.ID,
				Requested:  period,
				ExistingID: existing[0].ID,
				Existing:   existing[0].Period(),
			}
		}

		now := e.now()
		created = LeaveRequest{
			ID:         e.newID(),
			EmployeeID: emp.ID,
			StartDate:  start,
			EndDate:    end,
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.CreateLeave(ctx, created); err != nil {
			return storageError("create leave", err)
		}
		return nil
	})
	if err != nil {
		return LeaveRequest{}, e.fail("apply leave", err)
	}

	e.log.Info().
		Str("leave_id", created.ID).
		Str("employee_id", created.EmployeeID).
		Stringer("period", created.Period()).
		Msg("leave applied")
	e.observe(created, "")
	return created, nil
}

// =============================================================================
// UPDATE STATUS - The authoritative deduction point
// =============================================================================

// UpdateStatus moves a leave request to target. Approval deducts the
// request's duration from the owner's balance in the same transaction.
func (e *Engine) UpdateStatus(ctx context.Context, leaveID string, target Status) (LeaveRequest, error) {
	// 0. Caller must be allowed to decide
	if err := e.authorizer.AuthorizeDecision(ctx); err != nil {
		return LeaveRequest{}, e.fail("update status", unauthorized(err))
	}

	var (
		updated LeaveRequest
		from    Status
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		// 1. Leave must exist
		req, err := s.GetLeave(ctx, leaveID)
		if err != nil {
			return storageError("get leave", err)
		}
		if req == nil {
			return fmt.Errorf("%w: %s", ErrLeaveNotFound, leaveID)
		}
		from = req.Status

		// 2. No double approval
		if target == StatusApproved && req.Status == StatusApproved {
			return fmt.Errorf("%w: %s", ErrAlreadyApproved, req.ID)
		}

		// 3. Transition must be in the decision table
		if !req.Status.CanDecide(target) {
			return &TransitionError{LeaveID: req.ID, From: req.Status, To: target}
		}

		if target == StatusApproved {
			// 4. Expired leave cannot be approved
			if today := e.clock(); req.EndDate.Before(today) {
				return fmt.Errorf("%w: ended %s, today is %s", ErrExpiredLeaveCannotApprove, req.EndDate, today)
			}

			// 5. Authoritative balance check, then deduct
			emp, err := s.GetEmployee(ctx, req.EmployeeID)
			if err != nil {
				return storageError("get employee", err)
			}
			if emp == nil {
				return storageError("get employee", fmt.Errorf("leave %s references missing employee %s", req.ID, req.EmployeeID))
			}

			days := req.DurationDays()
			if emp.LeaveBalance < days {
				return &InsufficientBalanceError{
					EmployeeID: emp.ID,
					Available:  emp.LeaveBalance,
					Requested:  days,
					AtApproval: true,
				}
			}
			if err := s.SetLeaveBalance(ctx, emp.ID, emp.LeaveBalance-days); err != nil {
				return storageError("deduct balance", err)
			}
		}

		now := e.now()
		if err := s.SetLeaveStatus(ctx, req.ID, target, now); err != nil {
			return storageError("set leave status", err)
		}
		req.Status = target
		req.UpdatedAt = now
		updated = *req
		return nil
	})
	if err != nil {
		return LeaveRequest{}, e.fail("update status", err)
	}

	e.log.Info().
		Str("leave_id", updated.ID).
		Str("employee_id", updated.EmployeeID).
		Str("from", string(from)).
		Str("to", string(updated.Status)).
		Msg("leave status updated")
	e.observe(updated, from)
	return updated, nil
}

// Approve is UpdateStatus(leaveID, StatusApproved).
func (e *Engine) Approve(ctx context.Context, leaveID string) (LeaveRequest, error) {
	return e.UpdateStatus(ctx, leaveID, StatusApproved)
}

// Reject is UpdateStatus(leaveID, StatusRejected).
func (e *Engine) Reject(ctx context.Context, leaveID string) (LeaveRequest, error) {
	return e.UpdateStatus(ctx, leaveID, StatusRejected)
}

// =============================================================================
// WITHDRAW
// =============================================================================

// WithdrawLeave withdraws a pending request. No balance effect: nothing was
// deducted while it was pending.
func (e *Engine) WithdrawLeave(ctx context.Context, leaveID string) (LeaveRequest, error) {
	var withdrawn LeaveRequest

	err := e.store.WithTx(ctx, func(s Store) error {
		req, err := s.GetLeave(ctx, leaveID)
		if err != nil {
			return storageError("get leave", err)
		}
		if req == nil {
			return fmt.Errorf("%w: %s", ErrLeaveNotFound, leaveID)
		}
		if req.Status != StatusPending {
			return fmt.Errorf("%w: leave %s is %s", ErrNotPending, req.ID, req.Status)
		}

		now := e.now()
		if err := s.SetLeaveStatus(ctx, req.ID, StatusWithdrawn, now); err != nil {
			return storageError("set leave status", err)
		}
		req.Status = StatusWithdrawn
		req.UpdatedAt = now
		withdrawn = *req
		return nil
	})
	if err != nil {
		return LeaveRequest{}, e.fail("withdraw leave", err)
	}

	e.log.Info().Str("leave_id", withdrawn.ID).Msg("leave withdrawn")
	e.observe(withdrawn, StatusPending)
	return withdrawn, nil
}
