/*
errors.go - Mapping of engine failures to HTTP responses

STATUS MAPPING:
  401  Unauthorized, invalid credentials or bearer token
  404  EmployeeNotFound, LeaveNotFound
  409  DuplicateEmail, OverlappingRequest, AlreadyApproved, NotPending,
       InvalidTransition
  400  Every other business rule, malformed or invalid request bodies
  500  StorageError and anything unrecognised; details are logged, never
       returned

Every error body carries the stable code from leave.Code, so clients can
branch on it without parsing messages.
*/
package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

const (
	codeInvalidRequest     = "invalid_request"
	codeInvalidCredentials = "invalid_credentials"
	codeInvalidToken       = "invalid_token"
	codeInternal           = "internal_error"
)

// statusFor returns the HTTP status for an engine error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, leave.ErrUnauthorized):
		return http.StatusUnauthorized
	case leave.IsNotFound(err):
		return http.StatusNotFound
	case leave.IsConflict(err):
		return http.StatusConflict
	case leave.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeEngineError renders err returned by the leave engine.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := leave.Code(err)
	if status == http.StatusInternalServerError {
		code = codeInternal
		if errors.Is(err, leave.ErrStorage) {
			code = leave.Code(err)
		}
		hlog.FromRequest(r).Error().Err(err).Str("code", code).Msg("request failed")
		h.recordError(code)
		writeError(w, status, code, "Internal server error", nil)
		return
	}

	h.recordError(code)
	writeError(w, status, code, publicMessage(err), err.Error())
}

// writeBadRequest renders a decoding or validation failure.
func (h *Handler) writeBadRequest(w http.ResponseWriter, err error) {
	h.recordError(codeInvalidRequest)
	var verr *validationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request", verr.fields)
		return
	}
	writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body", err.Error())
}

// writeAuthError renders a failed login or token check.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.recordError(codeInvalidCredentials)
		writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "Invalid username or password", nil)
	default:
		h.recordError(codeInvalidToken)
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, codeInvalidToken, "Could not validate credentials", nil)
	}
}

func (h *Handler) recordError(code string) {
	if h.metrics != nil {
		h.metrics.RecordError(code)
	}
}

// publicMessage is the sentinel text of err, without the identifiers and
// numbers that structured errors add. Those go into details.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		leave.ErrEmployeeNotFound, leave.ErrLeaveNotFound, leave.ErrDuplicateEmail, leave.ErrBlankField,
		leave.ErrFutureJoiningDate, leave.ErrLeaveBeforeJoining, leave.ErrInvalidDateRange,
		leave.ErrInvalidDuration, leave.ErrInsufficientBalanceAtApproval, leave.ErrInsufficientBalance,
		leave.ErrOverlappingRequest, leave.ErrAlreadyApproved, leave.ErrExpiredLeaveCannotApprove,
		leave.ErrNotPending, leave.ErrInvalidTransition, leave.ErrUnauthorized,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
