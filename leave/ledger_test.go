package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// APPLY LEAVE
// =============================================================================

func TestApplyLeave_PendingLeavesBalanceUntouched(t *testing.T) {
	// GIVEN: Alice joined 2024-01-10 with 20 days
	// WHEN: She applies for 2024-02-01..2024-02-05
	// THEN: The request is pending and her balance is still 20

	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")

		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		assert.Equal(t, leave.StatusPending, req.Status)
		assert.Equal(t, emp.ID, req.EmployeeID)
		assert.Equal(t, 5, req.DurationDays())
		assert.Equal(t, 20, h.balance(t, emp.ID))

		stored, err := h.GetLeave(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusPending, stored.Status)
	})
}

func TestApplyLeave_BeforeJoiningCreatesNothing(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")

		_, err := h.ApplyLeave(ctx, emp.ID, d("2024-01-05"), d("2024-01-12"))
		assert.ErrorIs(t, err, leave.ErrLeaveBeforeJoining)

		leaves, err := h.ListLeaves(ctx, emp.ID)
		require.NoError(t, err)
		assert.Empty(t, leaves)
	})
}

func TestApplyLeave_JoiningDayIsAllowed(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-01-10", "2024-01-10")
		assert.Equal(t, 1, req.DurationDays())
	})
}

func TestApplyLeave_InvalidDateRange(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")

		_, err := h.ApplyLeave(ctx, emp.ID, d("2024-03-10"), d("2024-02-01"))
		assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
		assert.Equal(t, "invalid_date_range", leave.Code(err))

		// An active request inside the span and a span longer than the
		// balance do not change the answer
		active := h.apply(t, emp.ID, "2024-02-10", "2024-02-12")
		_, err = h.Approve(ctx, active.ID)
		require.NoError(t, err)
		h.apply(t, emp.ID, "2024-02-20", "2024-02-21")

		_, err = h.ApplyLeave(ctx, emp.ID, d("2024-04-30"), d("2024-02-01"))
		assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
		assert.NotErrorIs(t, err, leave.ErrOverlappingRequest)
		assert.NotErrorIs(t, err, leave.ErrInsufficientBalance)

		leaves, err := h.ListLeaves(ctx, emp.ID)
		require.NoError(t, err)
		assert.Len(t, leaves, 2)
	})
}

func TestApplyLeave_UnknownEmployee(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		_, err := h.ApplyLeave(ctx, "nobody", d("2024-02-01"), d("2024-02-02"))
		assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
	})
}

func TestApplyLeave_AdvisoryBalanceCheck(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")

		// 21 days
		_, err := h.ApplyLeave(ctx, emp.ID, d("2024-02-01"), d("2024-02-21"))
		assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
		assert.NotErrorIs(t, err, leave.ErrInsufficientBalanceAtApproval)

		var short *leave.InsufficientBalanceError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, 20, short.Available)
		assert.Equal(t, 21, short.Requested)

		// Exactly the balance is fine
		h.apply(t, emp.ID, "2024-02-01", "2024-02-20")
	})
}

func TestApplyLeave_PendingRequestsDoNotReserveDays(t *testing.T) {
	// Two pending requests may together exceed the balance
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		h.apply(t, emp.ID, "2024-02-01", "2024-02-15")
		h.apply(t, emp.ID, "2024-03-01", "2024-03-15")
		assert.Equal(t, 20, h.balance(t, emp.ID))
	})
}

func TestApplyLeave_Overlap(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		first := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		tests := []struct {
			name, start, end string
		}{
			{"inside", "2024-02-03", "2024-02-04"},
			{"same start day", "2024-01-30", "2024-02-01"},
			{"same end day", "2024-02-05", "2024-02-08"},
			{"covering", "2024-01-25", "2024-02-10"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.ApplyLeave(ctx, emp.ID, d(tt.start), d(tt.end))
				assert.ErrorIs(t, err, leave.ErrOverlappingRequest)

				var overlap *leave.OverlapError
				require.ErrorAs(t, err, &overlap)
				assert.Equal(t, first.ID, overlap.ExistingID)
			})
		}

		// Adjacent days do not overlap
		h.apply(t, emp.ID, "2024-02-06", "2024-02-07")
	})
}

func TestApplyLeave_InactiveRequestsDoNotBlock(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		rejected := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")
		withdrawn := h.apply(t, emp.ID, "2024-03-01", "2024-03-05")

		_, err := h.Reject(ctx, rejected.ID)
		require.NoError(t, err)
		_, err = h.WithdrawLeave(ctx, withdrawn.ID)
		require.NoError(t, err)

		h.apply(t, emp.ID, "2024-02-01", "2024-02-05")
		h.apply(t, emp.ID, "2024-03-01", "2024-03-05")
	})
}

func TestApplyLeave_OtherEmployeesDoNotBlock(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		alice := h.hire(t, "alice@example.com")
		bob := h.hire(t, "bob@example.com")
		h.apply(t, alice.ID, "2024-02-01", "2024-02-05")
		h.apply(t, bob.ID, "2024-02-01", "2024-02-05")
	})
}

// =============================================================================
// UPDATE STATUS
// =============================================================================

func TestApprove_DeductsBalanceAndBlocksOverlap(t *testing.T) {
	// GIVEN: A pending 5-day request
	// WHEN: HR approves it
	// THEN: Balance drops to 15 and the days stay blocked

	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		approved, err := h.Approve(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusApproved, approved.Status)
		assert.Equal(t, 15, h.balance(t, emp.ID))

		_, err = h.ApplyLeave(ctx, emp.ID, d("2024-02-03"), d("2024-02-04"))
		assert.ErrorIs(t, err, leave.ErrOverlappingRequest)
	})
}

func TestApprove_Twice(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		_, err := h.Approve(ctx, req.ID)
		require.NoError(t, err)

		_, err = h.Approve(ctx, req.ID)
		assert.ErrorIs(t, err, leave.ErrAlreadyApproved)
		assert.Equal(t, 15, h.balance(t, emp.ID), "second approval must not deduct again")
	})
}

func TestUpdateStatus_TerminalStatesHaveNoExit(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")

		approved := h.apply(t, emp.ID, "2024-02-01", "2024-02-02")
		_, err := h.Approve(ctx, approved.ID)
		require.NoError(t, err)

		rejected := h.apply(t, emp.ID, "2024-03-01", "2024-03-02")
		_, err = h.Reject(ctx, rejected.ID)
		require.NoError(t, err)

		withdrawn := h.apply(t, emp.ID, "2024-04-01", "2024-04-02")
		_, err = h.WithdrawLeave(ctx, withdrawn.ID)
		require.NoError(t, err)

		tests := []struct {
			name   string
			id     string
			target leave.Status
		}{
			{"approved to rejected", approved.ID, leave.StatusRejected},
			{"approved to pending", approved.ID, leave.StatusPending},
			{"rejected to approved", rejected.ID, leave.StatusApproved},
			{"rejected to rejected", rejected.ID, leave.StatusRejected},
			{"withdrawn to approved", withdrawn.ID, leave.StatusApproved},
			{"withdrawn to rejected", withdrawn.ID, leave.StatusRejected},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.UpdateStatus(ctx, tt.id, tt.target)
				assert.ErrorIs(t, err, leave.ErrInvalidTransition)

				var te *leave.TransitionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.target, te.To)
			})
		}

		assert.Equal(t, 18, h.balance(t, emp.ID))
	})
}

func TestUpdateStatus_PendingToPendingIsInvalid(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-02")

		_, err := h.UpdateStatus(ctx, req.ID, leave.StatusPending)
		assert.ErrorIs(t, err, leave.ErrInvalidTransition)

		_, err = h.UpdateStatus(ctx, req.ID, leave.StatusWithdrawn)
		assert.ErrorIs(t, err, leave.ErrInvalidTransition, "withdrawal has its own operation")
	})
}

func TestUpdateStatus_UnknownLeave(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		_, err := h.Approve(ctx, "missing")
		assert.ErrorIs(t, err, leave.ErrLeaveNotFound)
	})
}

func TestApprove_ExpiredLeave(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-01-16", "2024-01-18")
		h.today = d("2024-01-19")

		_, err := h.Approve(ctx, req.ID)
		assert.ErrorIs(t, err, leave.ErrExpiredLeaveCannotApprove)
		assert.Equal(t, 20, h.balance(t, emp.ID))

		// Rejecting an expired request is still allowed
		rejected, err := h.Reject(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusRejected, rejected.Status)
	})
}

func TestApprove_EndingTodayIsNotExpired(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-01-12", "2024-01-15")

		_, err := h.Approve(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 16, h.balance(t, emp.ID))
	})
}

func TestApprove_AuthoritativeBalanceCheck(t *testing.T) {
	// GIVEN: Two pending requests, 15 and 10 days, both accepted at apply time
	// WHEN: Both are approved in turn
	// THEN: The second fails at approval, stays pending, balance stays 5

	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		big := h.apply(t, emp.ID, "2024-02-01", "2024-02-15")
		small := h.apply(t, emp.ID, "2024-03-01", "2024-03-10")

		_, err := h.Approve(ctx, big.ID)
		require.NoError(t, err)

		_, err = h.Approve(ctx, small.ID)
		assert.ErrorIs(t, err, leave.ErrInsufficientBalanceAtApproval)
		assert.Equal(t, "insufficient_balance_at_approval", leave.Code(err))

		var short *leave.InsufficientBalanceError
		require.ErrorAs(t, err, &short)
		assert.True(t, short.AtApproval)
		assert.Equal(t, 5, short.Available)
		assert.Equal(t, 10, short.Requested)

		stored, err := h.GetLeave(ctx, small.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusPending, stored.Status)
		assert.Equal(t, 5, h.balance(t, emp.ID))
	})
}

func TestReject_LeavesBalanceUntouched(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		rejected, err := h.Reject(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusRejected, rejected.Status)
		assert.Equal(t, 20, h.balance(t, emp.ID))
	})
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func TestUpdateStatus_AuthorizerRunsFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		_, err := h.Approve(ctx, req.ID)
		assert.ErrorIs(t, err, leave.ErrUnauthorized)

		// Even for a leave that does not exist
		_, err = h.Approve(ctx, "missing")
		assert.ErrorIs(t, err, leave.ErrUnauthorized)

		stored, err := h.GetLeave(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusPending, stored.Status)
		assert.Equal(t, 20, h.balance(t, emp.ID))
	}, leave.WithAuthorizer(leave.DenyAll))
}

func TestUpdateStatus_AuthorizerCauseIsKept(t *testing.T) {
	cause := errors.New("role employee cannot decide")
	h := newHarness(t, memory.New(), leave.WithAuthorizer(leave.AuthorizerFunc(func(context.Context) error {
		return cause
	})))

	_, err := h.Reject(ctx, "any")
	assert.ErrorIs(t, err, leave.ErrUnauthorized)
	assert.ErrorIs(t, err, cause)
}

// =============================================================================
// WITHDRAW
// =============================================================================

func TestWithdrawLeave(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		req := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")

		withdrawn, err := h.WithdrawLeave(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, leave.StatusWithdrawn, withdrawn.Status)
		assert.Equal(t, 20, h.balance(t, emp.ID))

		_, err = h.WithdrawLeave(ctx, req.ID)
		assert.ErrorIs(t, err, leave.ErrNotPending)
	})
}

func TestWithdrawLeave_OnlyFromPending(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		approved := h.apply(t, emp.ID, "2024-02-01", "2024-02-05")
		rejected := h.apply(t, emp.ID, "2024-03-01", "2024-03-05")

		_, err := h.Approve(ctx, approved.ID)
		require.NoError(t, err)
		_, err = h.Reject(ctx, rejected.ID)
		require.NoError(t, err)

		for _, id := range []string{approved.ID, rejected.ID} {
			_, err := h.WithdrawLeave(ctx, id)
			assert.ErrorIs(t, err, leave.ErrNotPending)
		}
		assert.Equal(t, 15, h.balance(t, emp.ID), "approved days are not refunded")

		_, err = h.WithdrawLeave(ctx, "missing")
		assert.ErrorIs(t, err, leave.ErrLeaveNotFound)
	})
}

// =============================================================================
// INVARIANTS
// =============================================================================

func TestBalanceEqualsAllowanceMinusApprovedDays(t *testing.T) {
	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")

		a := h.apply(t, emp.ID, "2024-02-01", "2024-02-03")
		b := h.apply(t, emp.ID, "2024-02-10", "2024-02-14")
		c := h.apply(t, emp.ID, "2024-03-01", "2024-03-02")
		e := h.apply(t, emp.ID, "2024-04-01", "2024-04-07")

		_, err := h.Approve(ctx, a.ID)
		require.NoError(t, err)
		_, err = h.Reject(ctx, b.ID)
		require.NoError(t, err)
		_, err = h.WithdrawLeave(ctx, c.ID)
		require.NoError(t, err)
		_, err = h.Approve(ctx, e.ID)
		require.NoError(t, err)

		leaves, err := h.ListLeaves(ctx, emp.ID)
		require.NoError(t, err)

		approvedDays := 0
		for _, l := range leaves {
			if l.Status == leave.StatusApproved {
				approvedDays += l.DurationDays()
			}
		}
		assert.Equal(t, 10, approvedDays)
		assert.Equal(t, leave.AnnualAllowance-approvedDays, h.balance(t, emp.ID))
	})
}

func TestConcurrentApprovals_OnlyOneFits(t *testing.T) {
	// GIVEN: 5 days left and two pending, non-overlapping 4-day requests
	// WHEN: Both are approved concurrently
	// THEN: Exactly one succeeds and the balance ends at 1

	eachStore(t, func(t *testing.T, h *harness) {
		emp := h.hire(t, "alice@example.com")
		first := h.apply(t, emp.ID, "2024-01-16", "2024-01-30")
		_, err := h.Approve(ctx, first.ID)
		require.NoError(t, err)
		require.Equal(t, 5, h.balance(t, emp.ID))

		a := h.apply(t, emp.ID, "2024-02-05", "2024-02-08")
		b := h.apply(t, emp.ID, "2024-02-12", "2024-02-15")

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, id := range []string{a.ID, b.ID} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, errs[i] = h.Approve(ctx, id)
			}(i, id)
		}
		wg.Wait()

		var ok, short int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, leave.ErrInsufficientBalanceAtApproval):
				short++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, short)
		assert.Equal(t, 1, h.balance(t, emp.ID))
	})
}

// =============================================================================
// OBSERVER
// =============================================================================

func TestObserver_SeesEveryCommittedTransition(t *testing.T) {
	type event struct {
		from, to leave.Status
	}
	var (
		mu     sync.Mutex
		events []event
	)
	observer := func(req leave.LeaveRequest, from leave.Status) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{from, req.Status})
	}

	h := newHarness(t, memory.New(), leave.WithObserver(observer))
	emp := h.hire(t, "alice@example.com")

	a := h.apply(t, emp.ID, "2024-02-01", "2024-02-02")
	b := h.apply(t, emp.ID, "2024-03-01", "2024-03-02")
	_, err := h.Approve(ctx, a.ID)
	require.NoError(t, err)
	_, err = h.WithdrawLeave(ctx, b.ID)
	require.NoError(t, err)

	// Failed operations are not observed
	_, err = h.Approve(ctx, a.ID)
	require.Error(t, err)

	assert.Equal(t, []event{
		{"", leave.StatusPending},
		{"", leave.StatusPending},
		{leave.StatusPending, leave.StatusApproved},
		{leave.StatusPending, leave.StatusWithdrawn},
	}, events)
}
