package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses are the statuses that occupy a staff member's time.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether an appointment in this status blocks its interval.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether the lifecycle allows s -> next.
// Cancelling is allowed from every status except cancelled itself; approval and
// completion are administrative moves out of pending/confirmed.
func (s Status) CanTransitionTo(next Status) bool {
	switch next {
	case StatusCancelled:
		return s.Valid() && s != StatusCancelled
	case StatusConfirmed:
		return s == StatusPending
	case StatusCompleted:
		return s == StatusPending || s == StatusConfirmed
	}
	return false
}

type Appointment struct {
	ID                string
	TenantID          string
	ServiceID         string
	StaffID           string
	ClientName        string
	ClientEmail       string
	ClientPhone       string
	Date              time.Time // civil day at 00:00 UTC
	StartTime         time.Time // Date plus the clock time
	DurationMinutes   int
	Status            Status
	DepositPaid       bool
	DepositAmount     decimal.Decimal
	TotalPrice        decimal.Decimal
	Notes             string
	CancellationToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(a.Duration())
}

// Customer is the person the appointment is booked for.
type Customer struct {
	Name  string
	Email string
	Phone string
}
