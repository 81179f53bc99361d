package outbox

import (
	"encoding/json"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const (
	AggregateAppointment = "appointment"

	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The topic (Kafka) or routing key (AMQP) equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type AppointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	TenantID        string    `json:"tenant_id"`
	ServiceID       string    `json:"service_id"`
	StaffID         string    `json:"staff_id"`
	Date            string    `json:"date"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	TotalPrice      string    `json:"total_price"`
	DepositAmount   string    `json:"deposit_amount"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email,omitempty"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func AppointmentBooked(a model.Appointment, occurredAt time.Time) (Event, error) {
	return appointmentEvent(EventAppointmentBooked, a, "", occurredAt)
}

func AppointmentCancelled(a model.Appointment, previous model.Status, occurredAt time.Time) (Event, error) {
	return appointmentEvent(EventAppointmentCancelled, a, previous, occurredAt)
}

func appointmentEvent(eventType string, a model.Appointment, previous model.Status, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:   a.ID,
		TenantID:        a.TenantID,
		ServiceID:       a.ServiceID,
		StaffID:         a.StaffID,
		Date:            a.Date.Format("2006-01-02"),
		StartTime:       a.StartTime.UTC(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		PreviousStatus:  string(previous),
		TotalPrice:      a.TotalPrice.StringFixed(2),
		DepositAmount:   a.DepositAmount.StringFixed(2),
		CustomerName:    a.ClientName,
		CustomerEmail:   a.ClientEmail,
		CustomerPhone:   a.ClientPhone,
		OccurredAt:      occurredAt.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
