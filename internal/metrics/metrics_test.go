package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RequestTransition("accepted")
	m.ItemClaimed(PathAccept)
	m.ItemClaimed(PathDirect)
	m.Cascaded(3)
	m.Cascaded(0)
	m.CascadeFailed()
	m.Conflict("accept")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestTransitions.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestTransitions.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemClaims.WithLabelValues(PathDirect)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CascadeRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("accept")))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.CascadeFailed()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CascadeFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestTransition("accepted")
		m.ItemClaimed(PathOwner)
		m.Cascaded(2)
		m.CascadeFailed()
		m.Conflict("claim")
		m.ObserveHTTP("GET", 200, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `treasure_http_request_duration_seconds_count{method="GET",status="200"} 1`))
}
