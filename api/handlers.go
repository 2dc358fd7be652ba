/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization and request validation, and delegates every rule to
  leave.Engine.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                 Exchange HR credentials for a token

  Employees:
    POST   /api/employees                  Create employee
    GET    /api/employees                  List employees (HR)
    GET    /api/employees/{id}             Get employee details
    GET    /api/employees/{id}/balance     Balance summary
    GET    /api/employees/{id}/leaves      Leave history
    POST   /api/employees/{id}/leaves      Apply for leave

  Leaves:
    GET    /api/leaves/{id}                Get leave request
    PUT    /api/leaves/{id}/status         Approve or reject (HR)
    POST   /api/leaves/{id}/withdraw       Withdraw a pending request

  Admin:
    GET    /api/admin/db-dump              Every employee with their leaves (HR)

  Probes:
    GET    /healthz, /readyz, /metrics

AUTHORIZATION:
  A bearer token, when present, is resolved into the HR principal before
  any handler runs. List, dump and status routes require it at the router,
  before the body is read. Status updates are gated again by the engine's
  Authorizer, so the same rule holds for every caller of the engine.

REQUEST FLOW:
  1. Decode body (max 1 MiB)
  2. Validate struct tags, parse dates
  3. Call leave.Engine
  4. Serialize response, or map the error (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/metrics"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine  *leave.Engine
	auth    *auth.Service
	metrics *metrics.Metrics
	log     zerolog.Logger
	ready   func(ctx context.Context) error
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMetrics records request and error counters.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the base logger for request logs.
func WithLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

// WithReadiness sets the check behind /readyz, typically a store ping.
func WithReadiness(check func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) { h.ready = check }
}

// NewHandler creates a handler over engine. authSvc authenticates the HR
// principal.
func NewHandler(engine *leave.Engine, authSvc *auth.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: engine,
		auth:   authSvc,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login exchanges the HR credentials for a bearer token. Accepts a JSON
// body or an OAuth2-style password form.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			h.writeBadRequest(w, err)
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if !h.decode(w, r, &req) {
		return
	}
	if err := validateStruct(req); err != nil {
		h.writeBadRequest(w, err)
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		hlog.FromRequest(r).Warn().Str("username", req.Username).Msg("login failed")
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// CreateEmployee registers a new employee with the annual allowance.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateStruct(req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	joining, err := parseDate("joining_date", req.JoiningDate)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	emp, err := h.engine.CreateEmployee(r.Context(), leave.NewEmployee{
		Name:        req.Name,
		Email:       req.Email,
		Department:  req.Department,
		JoiningDate: joining,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.engine.ListEmployees(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.engine.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// GetBalance returns the balance with pending and approved day counts.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListLeaves returns the employee's leave requests ordered by start date.
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	leaves, err := h.engine.ListLeaves(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveResponses(leaves))
}

// ApplyLeave files a pending leave request.
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	var req ApplyLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateStruct(req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		h.writeBadRequest(w, err)
		return
	}

	created, err := h.engine.ApplyLeave(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveResponse(created))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// GetLeave returns a single leave request.
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	req, err := h.engine.GetLeave(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveResponse(req))
}

// UpdateStatus approves or rejects a pending request. Any other target is
// refused by the engine with invalid_transition.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateStruct(req); err != nil {
		h.writeBadRequest(w, err)
		return
	}
	target, err := leave.ParseStatus(req.Status)
	if err != nil {
		h.writeBadRequest(w, &validationError{fields: []FieldError{{Field: "status", Rule: "oneof"}}})
		return
	}

	updated, err := h.engine.UpdateStatus(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveResponse(updated))
}

// WithdrawLeave withdraws a pending request.
func (h *Handler) WithdrawLeave(w http.ResponseWriter, r *http.Request) {
	updated, err := h.engine.WithdrawLeave(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveResponse(updated))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// DumpDatabase returns every employee with their leave requests.
func (h *Handler) DumpDatabase(w http.ResponseWriter, r *http.Request) {
	dump, err := h.engine.Dump(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dump)
}

// =============================================================================
// PROBES
// =============================================================================

// Healthz reports that the process is serving.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports whether the store is reachable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst. On failure it writes the 400 response
// and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeBadRequest(w, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

func isForm(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
