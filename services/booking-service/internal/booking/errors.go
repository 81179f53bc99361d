package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: unknown tenant, service, staff member or cancellation token.
	ErrNotFound = errors.New("not found")
	// ErrSlotUnavailable: the requested interval is taken. Callers should re-read
	// availability and pick another slot instead of retrying.
	ErrSlotUnavailable = errors.New("time slot is no longer available")
	// ErrPersistence: transient storage failure; the whole call is safe to retry.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError reports malformed or missing caller input. Its message is meant to be
// shown to the caller as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Persistence wraps a storage failure as ErrPersistence while keeping the cause.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// ErrorKind classifies err into the booking error taxonomy. It is used for metrics
// labels and logging.
func ErrorKind(err error) string {
	var v *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &v):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
