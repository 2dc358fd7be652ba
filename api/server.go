/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Request log:   zerolog logger in context, one access line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. Metrics:       Prometheus counters per route pattern (optional)
  5. CORS:          Cross-origin requests for frontend
  6. Authenticate:  Optional bearer token -> auth.Principal

ROUTE GROUPS:
  /api/auth/*          Login
  /api/employees/*     Directory, balances, applications
  /api/leaves/*        Decisions (HR) and withdrawals
  /api/admin/*         HR-only dump
  /healthz /readyz     Probes
  /metrics             Prometheus exposition (when metrics are enabled)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Logging and authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultCORSOrigins are the local frontend origins.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured. Nil or empty
// corsOrigins falls back to DefaultCORSOrigins.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log)...)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if h.metrics != nil {
		r.Method("GET", "/metrics", h.metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/auth/login", h.Login)

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.CreateEmployee)
			r.With(h.requireHR).Get("/", h.ListEmployees)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/leaves", h.ListLeaves)
			r.Post("/{id}/leaves", h.ApplyLeave)
		})

		// Leave routes
		r.Route("/leaves", func(r chi.Router) {
			r.Get("/{id}", h.GetLeave)
			r.With(h.requireHR).Put("/{id}/status", h.UpdateStatus)
			r.Post("/{id}/withdraw", h.WithdrawLeave)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireHR)
			r.Get("/db-dump", h.DumpDatabase)
		})
	})

	return r
}
