// Package metrics exposes Prometheus instrumentation for the capture and
// verification pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so tests can skip registration entirely.
type Metrics struct {
	capturesStarted  prometheus.Counter
	capturesRejected *prometheus.CounterVec
	registrations    prometheus.Counter
	verifications    *prometheus.CounterVec
	rateLimited      prometheus.Counter
	sessionsSwept    prometheus.Counter
	completeDuration prometheus.Histogram
}

// New creates and registers all collectors against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		capturesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "biobind_captures_started_total",
			Help: "Capture sessions opened successfully.",
		}),
		capturesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biobind_captures_rejected_total",
			Help: "Capture attempts rejected before a session was opened.",
		}, []string{"reason"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "biobind_registrations_total",
			Help: "Credentials registered.",
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biobind_verifications_total",
			Help: "Verification attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "biobind_rate_limited_total",
			Help: "Completions refused because the identity was locked out.",
		}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "biobind_sessions_swept_total",
			Help: "Capture sessions evicted by TTL sweep.",
		}),
		completeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "biobind_complete_capture_duration_seconds",
			Help:    "Latency of completeCapture calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) CaptureStarted() {
	if m != nil {
		m.capturesStarted.Inc()
	}
}

func (m *Metrics) CaptureRejected(reason string) {
	if m != nil {
		m.capturesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) CredentialRegistered() {
	if m != nil {
		m.registrations.Inc()
	}
}

func (m *Metrics) Verification(outcome string) {
	if m != nil {
		m.verifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) SessionsSwept(count int) {
	if m != nil {
		m.sessionsSwept.Add(float64(count))
	}
}

func (m *Metrics) ObserveCompleteDuration(seconds float64) {
	if m != nil {
		m.completeDuration.Observe(seconds)
	}
}
