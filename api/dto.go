/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Responses reuse the
  leave package types directly where their JSON shape is already the
  contract; requests get their own types so that validation stays at the
  edge and the engine only ever sees parsed dates and statuses.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers that are not a domain type
  - to*: Converters from leave types

VALIDATION:
  Struct tags are checked with go-playground/validator. Field names in
  validation messages come from the json tag, so clients see the names
  they sent.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: Turns validation failures into 400 responses
*/
package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// LoginRequest is accepted as JSON or as an urlencoded form.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateEmployeeRequest is the body of POST /api/employees.
type CreateEmployeeRequest struct {
	Name        string `json:"name" validate:"required,notblank,max=200"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Department  string `json:"department" validate:"required,notblank,max=100"`
	JoiningDate string `json:"joining_date" validate:"required,datetime=2006-01-02"`
}

// ApplyLeaveRequest is the body of POST /api/employees/{id}/leaves.
type ApplyLeaveRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// UpdateStatusRequest is the body of PUT /api/leaves/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// LeaveResponse is a leave request with its derived duration.
type LeaveResponse struct {
	leave.LeaveRequest
	DurationDays int `json:"duration_days"`
}

func toLeaveResponse(req leave.LeaveRequest) LeaveResponse {
	return LeaveResponse{LeaveRequest: req, DurationDays: req.DurationDays()}
}

func toLeaveResponses(reqs []leave.LeaveRequest) []LeaveResponse {
	out := make([]LeaveResponse, len(reqs))
	for i, req := range reqs {
		out[i] = toLeaveResponse(req)
	}
	return out
}

// HealthResponse is returned by the probes.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError carries per-field failures out of validateStruct.
type validationError struct {
	fields []FieldError
}

func (e *validationError) Error() string {
	parts := make([]string, len(e.fields))
	for i, f := range e.fields {
		parts[i] = fmt.Sprintf("%s failed %s", f.Field, f.Rule)
	}
	return strings.Join(parts, "; ")
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &validationError{fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		out.fields[i] = FieldError{Field: fe.Field(), Rule: fe.Tag()}
	}
	return out
}

// parseDate parses a date that already passed the datetime rule.
func parseDate(field, s string) (calendar.Date, error) {
	d, err := calendar.Parse(s)
	if err != nil {
		return calendar.Date{}, &validationError{fields: []FieldError{{Field: field, Rule: "datetime"}}}
	}
	return d, nil
}
