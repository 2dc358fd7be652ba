/*
errors.go - Failure kinds of the leave engine

PURPOSE:
  Every business-rule violation is returned to the caller as one of the
  sentinel kinds below, possibly wrapped in a structured error that
  carries the numbers behind the decision. Callers match with errors.Is
  and map kinds to transport codes; the engine never retries.

ERROR CATEGORIES:
  1. Not found      - EmployeeNotFound, LeaveNotFound
  2. Conflict       - DuplicateEmail, OverlappingRequest, AlreadyApproved,
                      NotPending, InvalidTransition
  3. Validation     - BlankField, FutureJoiningDate, LeaveBeforeJoining, InvalidDateRange,
                      InvalidDuration, InsufficientBalance,
                      InsufficientBalanceAtApproval, ExpiredLeaveCannotApprove
  4. Authorization  - Unauthorized
  5. Storage        - StorageError, the only kind caused outside the engine

USAGE:
    if errors.Is(err, leave.ErrOverlappingRequest) { ... }

    var short *leave.InsufficientBalanceError
    if errors.As(err, &short) { log(short.Available, short.Requested) }

SEE ALSO:
  - engine.go: Produces these errors in a fixed check order
  - api/errors.go: Maps Code(err) to HTTP status
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrLeaveNotFound    = errors.New("leave not found")

	ErrDuplicateEmail = errors.New("email already exists")

	// ErrBlankField is returned when a required text field is empty after
	// trimming.
	ErrBlankField = errors.New("required field is blank")

	// ErrFutureJoiningDate is returned when an employee would join after today.
	ErrFutureJoiningDate = errors.New("joining date cannot be in the future")

	ErrLeaveBeforeJoining = errors.New("leave before joining date not allowed")
	ErrInvalidDateRange   = errors.New("end date before start date")

	// ErrInvalidDuration guards durationDays > 0. A valid date range always
	// satisfies it.
	ErrInvalidDuration = errors.New("leave duration must be positive")

	// ErrInsufficientBalance is the advisory check at application time.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrInsufficientBalanceAtApproval is the authoritative check at the
	// deduction point. Balance may have dropped since the request was filed.
	ErrInsufficientBalanceAtApproval = errors.New("insufficient balance at approval")

	ErrOverlappingRequest        = errors.New("overlapping leave request exists")
	ErrAlreadyApproved           = errors.New("leave already approved")
	ErrExpiredLeaveCannotApprove = errors.New("cannot approve expired leave")
	ErrNotPending                = errors.New("leave is not pending")

	// ErrInvalidTransition is returned for status updates outside the
	// decision table, e.g. rejected -> approved.
	ErrInvalidTransition = errors.New("invalid leave status transition")

	ErrUnauthorized = errors.New("caller is not authorized")

	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")
)

// kinds lists every sentinel with its stable external code. Order matters
// only for Code: the first match wins.
var kinds = []struct {
	err  error
	code string
}{
	{ErrEmployeeNotFound, "employee_not_found"},
	{ErrLeaveNotFound, "leave_not_found"},
	{ErrDuplicateEmail, "duplicate_email"},
	{ErrBlankField, "blank_field"},
	{ErrFutureJoiningDate, "future_joining_date"},
	{ErrLeaveBeforeJoining, "leave_before_joining"},
	{ErrInvalidDateRange, "invalid_date_range"},
	{ErrInvalidDuration, "invalid_duration"},
	{ErrInsufficientBalanceAtApproval, "insufficient_balance_at_approval"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrOverlappingRequest, "overlapping_request"},
	{ErrAlreadyApproved, "already_approved"},
	{ErrExpiredLeaveCannotApprove, "expired_leave_cannot_approve"},
	{ErrNotPending, "not_pending"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrUnauthorized, "unauthorized"},
	{ErrStorage, "storage_error"},
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports a balance shortage. AtApproval selects
// which of the two balance kinds it unwraps to.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  int
	Requested  int
	AtApproval bool
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: employee %s has %d day(s), requested %d",
		e.Unwrap(), e.EmployeeID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	if e.AtApproval {
		return ErrInsufficientBalanceAtApproval
	}
	return ErrInsufficientBalance
}

// OverlapError names the active request that blocks a new one.
type OverlapError struct {
	EmployeeID string
	Requested  calendar.Period
	ExistingID string
	Existing   calendar.Period
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping leave request exists: %s overlaps %s (leave %s)",
		e.Requested, e.Existing, e.ExistingID)
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlappingRequest
}

// TransitionError describes a status update the decision table forbids.
type TransitionError struct {
	LeaveID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid leave status transition: %s -> %s (leave %s)", e.From, e.To, e.LeaveID)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// StorageError wraps a failure of the record store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Code returns the stable snake_case code of err's kind, or "" when err is
// not an engine error.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return ""
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) || errors.Is(err, ErrLeaveNotFound)
}

// IsConflict returns true if the error is caused by the current state of
// existing records rather than by the input alone.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrOverlappingRequest) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsClientError returns true for every business-rule kind: anything the
// engine decided, as opposed to a storage failure.
func IsClientError(err error) bool {
	return Code(err) != "" && !errors.Is(err, ErrStorage)
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
