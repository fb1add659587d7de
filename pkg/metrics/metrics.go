package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mock-server/mockserver-sub017/pkg/expectation"
)

const namespace = "mockserver"

// DefaultBuckets are the latency buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Registry holds the server's collectors.
type Registry struct {
	reg *prometheus.Registry

	requestsTotal         *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
	matchesTotal          *prometheus.CounterVec
	unmatchedTotal        prometheus.Counter
	expectationsStored    prometheus.Gauge
	notificationsCoalesce *prometheus.CounterVec
	verificationsTotal    *prometheus.CounterVec
	controlRequestsTotal  *prometheus.CounterVec
}

// New creates a Registry with every collector registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of mocked requests.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of mocked requests in seconds.",
			Buckets:   DefaultBuckets,
		}, []string{"method"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expectation_matches_total",
			Help:      "Requests matched by an expectation, by action type.",
		}, []string{"action"}),
		unmatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_requests_total",
			Help:      "Requests that did not match any expectation.",
		}),
		expectationsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expectations_stored",
			Help:      "Expectations currently held by the store, including inactive ones.",
		}),
		notificationsCoalesce: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_coalesced_total",
			Help:      "Expectation notifications replaced by a newer one before the listener read them.",
		}, []string{"listener"}),
		verificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verifications by kind and result.",
		}, []string{"kind", "result"}),
		controlRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_requests_total",
			Help:      "Control plane requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
	}

	r.reg.MustRegister(
		r.requestsTotal,
		r.requestDuration,
		r.matchesTotal,
		r.unmatchedTotal,
		r.expectationsStored,
		r.notificationsCoalesce,
		r.verificationsTotal,
		r.controlRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveRequest records a mocked request.
func (r *Registry) ObserveRequest(method string, status int, elapsed time.Duration) {
	r.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveControlRequest records a control plane request.
func (r *Registry) ObserveControlRequest(endpoint string, status int) {
	r.controlRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ExpectationMatched implements the store's metrics hook.
func (r *Registry) ExpectationMatched(action expectation.ActionType) {
	r.matchesTotal.WithLabelValues(string(action)).Inc()
}

// RequestUnmatched implements the store's metrics hook.
func (r *Registry) RequestUnmatched() {
	r.unmatchedTotal.Inc()
}

// ExpectationsStored implements the store's metrics hook.
func (r *Registry) ExpectationsStored(n int) {
	r.expectationsStored.Set(float64(n))
}

// NotificationCoalesced implements the store's metrics hook.
func (r *Registry) NotificationCoalesced(listener string) {
	r.notificationsCoalesce.WithLabelValues(listener).Inc()
}

// VerificationCompleted implements the verification engine's metrics hook.
func (r *Registry) VerificationCompleted(kind string, passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	r.verificationsTotal.WithLabelValues(kind, result).Inc()
}
