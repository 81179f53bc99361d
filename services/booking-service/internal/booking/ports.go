package booking

import (
	"context"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

// CatalogReader resolves catalog records inside one tenant. Unknown ids return ErrNotFound.
type CatalogReader interface {
	GetService(ctx context.Context, tenantID, serviceID string) (model.Service, error)
	GetStaff(ctx context.Context, tenantID, staffID string) (model.Staff, error)
}

// SettingsProvider returns the tenant's policy, or model.DefaultSettings when none is stored.
type SettingsProvider interface {
	GetSettings(ctx context.Context, tenantID string) (model.Settings, error)
}

// AppointmentStore persists appointments and owns overlap enforcement.
type AppointmentStore interface {
	// ListActive returns the pending and confirmed appointments of a staff member on date.
	ListActive(ctx context.Context, tenantID, staffID string, date time.Time) ([]model.Appointment, error)
	// InsertIfAvailable atomically re-checks the draft's interval against the active
	// appointments of the same staff and date and inserts it, or returns ErrSlotUnavailable.
	// Concurrent calls for the same staff and date are serialized; others run in parallel.
	InsertIfAvailable(ctx context.Context, draft model.Appointment) (model.Appointment, error)
	FindByToken(ctx context.Context, token string) (model.Appointment, error)
	// UpdateStatus sets the status and reports whether the row changed. Setting the
	// current status again is a no-op.
	UpdateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, bool, error)
}

// CalendarReader serves the staff calendar view.
type CalendarReader interface {
	ListActiveInRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error)
}
