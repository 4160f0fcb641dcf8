package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	webhookEvents    *prometheus.CounterVec
	checkoutSessions *prometheus.CounterVec
	availability     *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Stripe webhook deliveries by outcome",
		}, []string{"outcome"}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "checkout",
			Name:      "sessions_total",
			Help:      "Deposit checkout session attempts by status",
		}, []string{"status"}),
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "availability",
			Name:      "requests_total",
			Help:      "Availability computations by status",
		}, []string{"status"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Latency of calendar and payment provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookEvents, m.checkoutSessions, m.availability, m.providerLatency)
	return m
}

func (m *BookingMetrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCheckout(status string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveAvailability(status string) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(status).Inc()
}

// ObserveProviderCall records one outbound call; err selects the status label.
func (m *BookingMetrics) ObserveProviderCall(provider, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.providerLatency.WithLabelValues(provider, operation, status).Observe(seconds)
}
