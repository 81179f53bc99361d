package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonbook"

var (
	once sync.Once

	appointmentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_created_total",
			Help:      "Count of appointments created by initial status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of booking attempts rejected because the slot was taken.",
		},
	)

	appointmentsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_cancelled_total",
			Help:      "Count of appointments moved to cancelled by token.",
		},
	)

	bookingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_errors_total",
			Help:      "Count of failed booking operations by error kind.",
		},
		[]string{"op", "kind"},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Count of outbox events handed to the event sink.",
		},
		[]string{"event_type"},
	)

	bookingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_operation_seconds",
			Help:      "Latency of booking operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentsCreated,
			bookingConflicts,
			appointmentsCancelled,
			bookingErrors,
			outboxPublished,
			bookingLatency,
		)
	})
}

func IncAppointmentCreated(status string) {
	appointmentsCreated.WithLabelValues(status).Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func IncAppointmentCancelled() {
	appointmentsCancelled.Inc()
}

func IncBookingError(op, kind string) {
	bookingErrors.WithLabelValues(op, kind).Inc()
}

func IncOutboxPublished(eventType string, n int) {
	outboxPublished.WithLabelValues(eventType).Add(float64(n))
}

func ObserveOperation(op string, seconds float64) {
	bookingLatency.WithLabelValues(op).Observe(seconds)
}
