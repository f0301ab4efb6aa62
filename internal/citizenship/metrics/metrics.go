package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the citizenship module.
type Metrics struct {
	Registrations       prometheus.Counter
	Resignations        prometheus.Counter
	RegistrationsDenied *prometheus.CounterVec
	AttestationFailures prometheus.Counter
}

// New creates a Metrics instance with all citizenship metrics registered.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_citizen_registrations_total",
			Help: "Total number of successful citizen registrations",
		}),
		Resignations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_citizen_resignations_total",
			Help: "Total number of citizen resignations",
		}),
		RegistrationsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_citizen_registrations_denied_total",
			Help: "Registrations denied, by reason",
		}, []string{"reason"}),
		AttestationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_citizen_attestation_failures_total",
			Help: "Attestation issuance or revocation failures",
		}),
	}
}

// Denied increments the denial counter for a reason label, nil-safe.
func (m *Metrics) Denied(reason string) {
	if m == nil {
		return
	}
	m.RegistrationsDenied.WithLabelValues(reason).Inc()
}
