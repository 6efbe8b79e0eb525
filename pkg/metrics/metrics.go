// Package metrics exposes Prometheus instruments for portal calls and registrations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the instruments. All methods are safe on a nil receiver.
type Metrics struct {
	// Portal call attempts by HTTP method and outcome (ok, retry, exhausted)
	PortalAttempts *prometheus.CounterVec

	// Registration outcomes by result (completed, failed) and failed phase
	Registrations *prometheus.CounterVec

	// Per-phase latency
	PhaseLatency *prometheus.HistogramVec

	// Registrations that completed with unverified parties
	UnverifiedParties prometheus.Counter
}

// New registers the instruments with reg. Pass prometheus.DefaultRegisterer in production
// and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PortalAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cadastro_portal_attempts_total",
			Help: "Portal call attempts by method and outcome",
		}, []string{"method", "outcome"}),

		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cadastro_registrations_total",
			Help: "Registration runs by result and failed phase",
		}, []string{"result", "phase"}),

		PhaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cadastro_phase_duration_seconds",
			Help:    "Duration of each registration phase",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),

		UnverifiedParties: f.NewCounter(prometheus.CounterOpts{
			Name: "cadastro_unverified_parties_total",
			Help: "Completed registrations whose party check did not pass",
		}),
	}
}

// ObserveAttempt records one portal call attempt.
func (m *Metrics) ObserveAttempt(method, outcome string) {
	if m != nil {
		m.PortalAttempts.WithLabelValues(method, outcome).Inc()
	}
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m != nil {
		m.PhaseLatency.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// RegistrationCompleted records a finished registration.
func (m *Metrics) RegistrationCompleted(partiesVerified bool) {
	if m != nil {
		m.Registrations.WithLabelValues("completed", "").Inc()
		if !partiesVerified {
			m.UnverifiedParties.Inc()
		}
	}
}

// RegistrationFailed records a registration that stopped at phase.
func (m *Metrics) RegistrationFailed(phase string) {
	if m != nil {
		m.Registrations.WithLabelValues("failed", phase).Inc()
	}
}
