package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/metrics"
)

func TestObserver_CountsTransitions(t *testing.T) {
	m := metrics.New()
	observe := m.Observer()

	observe(leave.LeaveRequest{Status: leave.StatusPending}, "")
	observe(leave.LeaveRequest{Status: leave.StatusApproved}, leave.StatusPending)
	observe(leave.LeaveRequest{Status: leave.StatusApproved}, leave.StatusPending)

	count, err := testutil.GatherAndCount(m.Registry(), "leave_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "two label sets")

	body := scrape(t, m)
	assert.Contains(t, body, `leave_transitions_total{from="new",to="pending"} 1`)
	assert.Contains(t, body, `leave_transitions_total{from="pending",to="approved"} 2`)
}

func TestRecordError(t *testing.T) {
	m := metrics.New()
	m.RecordError("overlapping_request")
	m.RecordError("")

	body := scrape(t, m)
	assert.Contains(t, body, `leave_errors_total{code="overlapping_request"} 1`)
	assert.Contains(t, body, `leave_errors_total{code="unknown"} 1`)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/leaves/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaves/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	body := scrape(t, m)
	assert.Contains(t, body, `leave_http_requests_total{method="GET",route="/api/leaves/{id}",status="404"} 3`)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
