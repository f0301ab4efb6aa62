package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module: verification flow
// counters plus provider call latencies.
type Metrics struct {
	VerificationsStarted prometheus.Counter
	VerificationsResumed prometheus.Counter
	RemindersSent        prometheus.Counter
	ApprovalsSent        prometheus.Counter
	ProviderCallDuration prometheus.Histogram
}

// New creates a Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		VerificationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_verifications_started_total",
			Help: "Total number of new provider inquiries created",
		}),
		VerificationsResumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_verifications_resumed_total",
			Help: "Total number of verification links issued against an existing inquiry",
		}),
		RemindersSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_kyc_reminders_sent_total",
			Help: "Total number of KYC reminder emails sent",
		}),
		ApprovalsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atlas_kyc_approvals_sent_total",
			Help: "Total number of KYC approval notices sent",
		}),
		ProviderCallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "atlas_provider_call_duration_seconds",
			Help:    "Duration of identity provider calls on the interactive path",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveProviderCall records the duration of one provider round trip.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveProviderCall(start time.Time) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.Observe(time.Since(start).Seconds())
}
