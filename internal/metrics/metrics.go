// Package metrics holds the Prometheus collectors for request transitions,
// item claims and HTTP traffic.
//
// Collectors are registered on a registry owned by the Metrics value rather
// than the global default, so each server and each test gets its own set.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "treasure"

// Claim paths for ItemClaims.
const (
	PathAccept = "accept"
	PathDirect = "direct"
	PathOwner  = "owner"
)

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	// RequestTransitions counts request status changes. Labels: to.
	RequestTransitions *prometheus.CounterVec

	// ItemClaims counts Available to Claimed transitions. Labels: path.
	ItemClaims *prometheus.CounterVec

	// CascadeRejections counts sibling requests rejected after an item left Available.
	CascadeRejections prometheus.Counter

	// CascadeFailures counts cascades that still failed after all retries.
	CascadeFailures prometheus.Counter

	// Conflicts counts operations refused because of a state conflict. Labels: op.
	Conflicts *prometheus.CounterVec

	// HTTPDuration measures request handling time. Labels: method, status.
	HTTPDuration *prometheus.HistogramVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_transitions_total",
			Help:      "Request status transitions by target status.",
		}, []string{"to"}),
		ItemClaims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_claims_total",
			Help:      "Items moved to Claimed, by path (accept, direct, owner).",
		}, []string{"path"}),
		CascadeRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_rejections_total",
			Help:      "Pending requests rejected because their item was claimed or removed.",
		}),
		CascadeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_failures_total",
			Help:      "Cascades that failed after all retries and are left to reconciliation.",
		}),
		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Operations refused because of a state conflict, by operation.",
		}, []string{"op"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RequestTransition records a request moving to status to.
func (m *Metrics) RequestTransition(to string) {
	if m == nil {
		return
	}
	m.RequestTransitions.WithLabelValues(to).Inc()
}

// ItemClaimed records an item claimed through path.
func (m *Metrics) ItemClaimed(path string) {
	if m == nil {
		return
	}
	m.ItemClaims.WithLabelValues(path).Inc()
}

// Cascaded records n sibling requests rejected by a cascade.
func (m *Metrics) Cascaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.CascadeRejections.Add(float64(n))
	m.RequestTransitions.WithLabelValues("rejected").Add(float64(n))
}

// CascadeFailed records a cascade given up after retries.
func (m *Metrics) CascadeFailed() {
	if m == nil {
		return
	}
	m.CascadeFailures.Inc()
}

// Conflict records an operation refused because of a state conflict.
func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(op).Inc()
}

// ObserveHTTP records the duration of one HTTP request.
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}
