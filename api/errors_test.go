package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/leave-engine/leave"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{leave.ErrEmployeeNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: l-1", leave.ErrLeaveNotFound), http.StatusNotFound},
		{leave.ErrDuplicateEmail, http.StatusConflict},
		{&leave.OverlapError{ExistingID: "l-1"}, http.StatusConflict},
		{leave.ErrAlreadyApproved, http.StatusConflict},
		{leave.ErrNotPending, http.StatusConflict},
		{&leave.TransitionError{From: leave.StatusRejected, To: leave.StatusApproved}, http.StatusConflict},
		{fmt.Errorf("%w: name", leave.ErrBlankField), http.StatusBadRequest},
		{leave.ErrFutureJoiningDate, http.StatusBadRequest},
		{leave.ErrLeaveBeforeJoining, http.StatusBadRequest},
		{leave.ErrInvalidDateRange, http.StatusBadRequest},
		{&leave.InsufficientBalanceError{AtApproval: true}, http.StatusBadRequest},
		{leave.ErrExpiredLeaveCannotApprove, http.StatusBadRequest},
		{leave.ErrUnauthorized, http.StatusUnauthorized},
		{&leave.StorageError{Op: "get", Err: errors.New("disk")}, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestPublicMessage_DropsIdentifiers(t *testing.T) {
	err := &leave.InsufficientBalanceError{EmployeeID: "e-1", Available: 2, Requested: 5}

	assert.Equal(t, "insufficient leave balance", publicMessage(err))
	assert.Equal(t, "boom", publicMessage(errors.New("boom")))
}
