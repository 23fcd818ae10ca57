package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.IncrementMutations("Reservation", "CREATE")
	m.IncrementMutations("Reservation", "CREATE")
	m.ObserveRequest("POST", "/api/reservations", "201", 0.01)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordsMutated.WithLabelValues("Reservation", "CREATE")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warden_records_mutated_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementMutations("Note", "DELETE")
		m.ObserveRequest("GET", "/", "200", 0)
	})
}
