package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := counterValue(t, "salonbook_appointments_created_total", map[string]string{"status": "confirmed"})
	IncAppointmentCreated("confirmed")
	if got := counterValue(t, "salonbook_appointments_created_total", map[string]string{"status": "confirmed"}); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	before = counterValue(t, "salonbook_booking_conflicts_total", nil)
	IncBookingConflict()
	if got := counterValue(t, "salonbook_booking_conflicts_total", nil); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}

	labels := map[string]string{"event_type": "booking.appointment.booked.v1"}
	before = counterValue(t, "salonbook_outbox_events_published_total", labels)
	IncOutboxPublished("booking.appointment.booked.v1", 3)
	if got := counterValue(t, "salonbook_outbox_events_published_total", labels); got != before+3 {
		t.Fatalf("expected %v, got %v", before+3, got)
	}
}
