package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking workflow.
// All observe methods are nil-safe so wiring metrics stays optional.
type SchedulingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	availabilityTotal prometheus.Counter
	sweepTransitions  *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caredesk",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking requests by outcome",
		}, []string{"result"}),
		availabilityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caredesk",
			Subsystem: "scheduling",
			Name:      "availability_queries_total",
			Help:      "Availability lookups served",
		}),
		sweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caredesk",
			Subsystem: "scheduling",
			Name:      "sweep_transitions_total",
			Help:      "Status transitions applied by the sweep",
		}, []string{"outcome"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caredesk",
			Subsystem: "scheduling",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.availabilityTotal, m.sweepTransitions, m.httpLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveAvailabilityQuery() {
	if m == nil {
		return
	}
	m.availabilityTotal.Inc()
}

func (m *SchedulingMetrics) ObserveSweep(outcome string) {
	if m == nil {
		return
	}
	m.sweepTransitions.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(seconds)
}
