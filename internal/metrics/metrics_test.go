package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Submissions.WithLabelValues("async", OutcomeSuccess).Inc()
	m.Submissions.WithLabelValues("async", OutcomeSuccess).Inc()
	m.ActiveStreams.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submissions.WithLabelValues("async", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Callbacks.WithLabelValues("completed").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tripassist_callbacks_total{outcome="completed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewIsIndependent(t *testing.T) {
	a, b := New(), New()
	a.ExpiredSessions.Add(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ExpiredSessions))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeError, Outcome(errors.New("x")))
}
