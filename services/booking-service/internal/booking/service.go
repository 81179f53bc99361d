package booking

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/metrics"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	maxNameLen      = 200
	maxContactLen   = 320
	maxNotesLen     = 2000
	maxTokenLen     = 256
	MaxCalendarDays = 62
)

var tracer = otel.Tracer("github.com/salonbook/salonbook/services/booking-service/internal/booking")

type CreateRequest struct {
	TenantID  string
	ServiceID string
	StaffID   string
	Date      string
	Time      string
	Customer  model.Customer
	Notes     string
}

type Deps struct {
	Catalog  CatalogReader
	Settings SettingsProvider
	Store    AppointmentStore
	Calendar CalendarReader
	Logger   *slog.Logger
	Retry    RetryConfig
}

type Service struct {
	catalog  CatalogReader
	settings SettingsProvider
	store    AppointmentStore
	calendar CalendarReader
	logger   *slog.Logger
	retry    RetryConfig

	now      func() time.Time
	newToken func() (string, error)
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:  d.Catalog,
		settings: d.Settings,
		store:    d.Store,
		calendar: d.Calendar,
		logger:   logger,
		retry:    d.Retry.withDefaults(),
		now:      time.Now,
		newToken: NewCancellationToken,
	}
}

// DaySlots is the availability of one staff member for one service on one day.
type DaySlots struct {
	Date            time.Time
	DurationMinutes int
	Starts          []time.Time
}

// AvailableSlots lists the start times on date at which serviceID can be booked with staffID.
func (s *Service) AvailableSlots(ctx context.Context, tenantID, staffID, serviceID, date string) ([]time.Time, error) {
	day, err := s.DaySlots(ctx, tenantID, staffID, serviceID, date)
	if err != nil {
		return nil, err
	}
	return day.Starts, nil
}

// DaySlots is AvailableSlots plus the service duration the slots were computed for.
func (s *Service) DaySlots(ctx context.Context, tenantID, staffID, serviceID, date string) (DaySlots, error) {
	ctx, span := tracer.Start(ctx, "booking.AvailableSlots", trace.WithAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("staff.id", staffID),
		attribute.String("service.id", serviceID),
		attribute.String("booking.date", date),
	))
	defer span.End()

	slots, err := s.daySlots(ctx, tenantID, staffID, serviceID, date)
	if err != nil {
		s.fail(span, "slots", err)
		return DaySlots{}, err
	}
	span.SetAttributes(attribute.Int("booking.slots", len(slots.Starts)))
	return slots, nil
}

func (s *Service) daySlots(ctx context.Context, tenantID, staffID, serviceID, date string) (DaySlots, error) {
	tenantID, serviceID, staffID, err := validateIDs(tenantID, serviceID, staffID)
	if err != nil {
		return DaySlots{}, err
	}
	day, err := parseDate(date)
	if err != nil {
		return DaySlots{}, err
	}
	svc, _, err := s.resolve(ctx, tenantID, serviceID, staffID)
	if err != nil {
		return DaySlots{}, err
	}
	active, err := s.store.ListActive(ctx, tenantID, staffID, day)
	if err != nil {
		return DaySlots{}, err
	}
	return DaySlots{
		Date:            day,
		DurationMinutes: svc.DurationMinutes,
		Starts:          slices.Collect(availability.ForDay(day, svc.DurationMinutes, active)),
	}, nil
}

// Create books a slot. The slot is re-validated against current storage and the insert
// is atomic per staff member and day, so concurrent requests for overlapping intervals
// produce exactly one appointment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	started := s.now()
	ctx, span := tracer.Start(ctx, "booking.Create", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("staff.id", req.StaffID),
		attribute.String("service.id", req.ServiceID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
	))
	defer span.End()

	appt, err := s.create(ctx, req)
	metrics.ObserveOperation("create", s.now().Sub(started).Seconds())
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			metrics.IncBookingConflict()
		}
		s.fail(span, "create", err)
		return model.Appointment{}, err
	}

	metrics.IncAppointmentCreated(string(appt.Status))
	span.SetAttributes(attribute.String("appointment.id", appt.ID), attribute.String("appointment.status", string(appt.Status)))
	s.logger.InfoContext(ctx, "appointment booked",
		"tenant_id", appt.TenantID,
		"appointment_id", appt.ID,
		"staff_id", appt.StaffID,
		"start", appt.StartTime.Format(time.RFC3339),
		"duration_minutes", appt.DurationMinutes,
		"status", appt.Status,
	)
	return appt, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	in, err := validateCreate(req)
	if err != nil {
		return model.Appointment{}, err
	}
	svc, _, err := s.resolve(ctx, in.TenantID, in.ServiceID, in.StaffID)
	if err != nil {
		return model.Appointment{}, err
	}
	settings, err := s.settings.GetSettings(ctx, in.TenantID)
	if err != nil {
		return model.Appointment{}, err
	}

	return retryPersistence(ctx, s.retry, s.logger, "create", func() (model.Appointment, error) {
		active, err := s.store.ListActive(ctx, in.TenantID, in.StaffID, in.day)
		if err != nil {
			return model.Appointment{}, err
		}
		if !availability.IsFree(in.day, in.start, svc.DurationMinutes, active) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		token, err := s.newToken()
		if err != nil {
			return model.Appointment{}, err
		}
		return s.store.InsertIfAvailable(ctx, model.Appointment{
			TenantID:          in.TenantID,
			ServiceID:         svc.ID,
			StaffID:           in.StaffID,
			ClientName:        in.Customer.Name,
			ClientEmail:       in.Customer.Email,
			ClientPhone:       in.Customer.Phone,
			Date:              in.day,
			StartTime:         in.start,
			DurationMinutes:   svc.DurationMinutes,
			Status:            settings.InitialStatus(),
			DepositPaid:       false,
			DepositAmount:     settings.DepositDue(),
			TotalPrice:        svc.Price,
			Notes:             in.Notes,
			CancellationToken: token,
		})
	})
}

// Cancel moves the appointment identified by token to cancelled. Cancelling an already
// cancelled appointment returns it unchanged.
func (s *Service) Cancel(ctx context.Context, token string) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		err := invalid("token", "is required")
		s.fail(span, "cancel", err)
		return model.Appointment{}, err
	}
	if len(token) > maxTokenLen || !cleanText(token) {
		s.fail(span, "cancel", ErrNotFound)
		return model.Appointment{}, ErrNotFound
	}

	transitioned := false
	appt, err := retryPersistence(ctx, s.retry, s.logger, "cancel", func() (model.Appointment, error) {
		appt, err := s.store.FindByToken(ctx, token)
		if err != nil {
			return model.Appointment{}, err
		}
		if appt.Status == model.StatusCancelled {
			return appt, nil
		}
		updated, changed, err := s.store.UpdateStatus(ctx, appt.ID, model.StatusCancelled)
		if err != nil {
			return model.Appointment{}, err
		}
		transitioned = changed
		return updated, nil
	})
	if err != nil {
		s.fail(span, "cancel", err)
		return model.Appointment{}, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID), attribute.Bool("appointment.transitioned", transitioned))
	if transitioned {
		metrics.IncAppointmentCancelled()
		s.logger.InfoContext(ctx, "appointment cancelled", "tenant_id", appt.TenantID, "appointment_id", appt.ID)
	}
	return appt, nil
}

// ListAppointments returns the tenant's pending and confirmed appointments with a date in
// [from, to], ordered by start time.
func (s *Service) ListAppointments(ctx context.Context, tenantID, from, to string) ([]model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.ListAppointments", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	list, err := s.listAppointments(ctx, tenantID, from, to)
	if err != nil {
		s.fail(span, "calendar", err)
		return nil, err
	}
	return list, nil
}

func (s *Service) listAppointments(ctx context.Context, tenantID, from, to string) ([]model.Appointment, error) {
	if s.calendar == nil {
		return nil, errors.New("calendar reader not configured")
	}
	tenantID, err := canonicalID("tenant_id", tenantID)
	if err != nil {
		return nil, err
	}
	fromDay, err := parseDateField("from", from)
	if err != nil {
		return nil, err
	}
	toDay, err := parseDateField("to", to)
	if err != nil {
		return nil, err
	}
	if toDay.Before(fromDay) {
		return nil, invalid("to", "must not be before from")
	}
	if toDay.Sub(fromDay) > (MaxCalendarDays-1)*24*time.Hour {
		return nil, invalid("to", "range must not exceed 62 days")
	}
	return s.calendar.ListActiveInRange(ctx, tenantID, fromDay, toDay)
}

// resolve loads the service and staff member, treating inactive records as missing.
func (s *Service) resolve(ctx context.Context, tenantID, serviceID, staffID string) (model.Service, model.Staff, error) {
	svc, err := s.catalog.GetService(ctx, tenantID, serviceID)
	if err != nil {
		return model.Service{}, model.Staff{}, err
	}
	if !svc.Active || svc.TenantID != tenantID {
		return model.Service{}, model.Staff{}, ErrNotFound
	}
	if svc.DurationMinutes <= 0 {
		return model.Service{}, model.Staff{}, invalid("service_id", "service has no bookable duration")
	}
	staff, err := s.catalog.GetStaff(ctx, tenantID, staffID)
	if err != nil {
		return model.Service{}, model.Staff{}, err
	}
	if !staff.Active || staff.TenantID != tenantID {
		return model.Service{}, model.Staff{}, ErrNotFound
	}
	return svc, staff, nil
}

func (s *Service) fail(span trace.Span, op string, err error) {
	kind := ErrorKind(err)
	metrics.IncBookingError(op, kind)
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
	if kind == "persistence" || kind == "internal" {
		s.logger.Error("booking operation failed", "op", op, "kind", kind, "err", err)
	}
}

type createInput struct {
	CreateRequest
	day   time.Time
	start time.Time
}

func validateCreate(req CreateRequest) (createInput, error) {
	var err error
	req.TenantID, req.ServiceID, req.StaffID, err = validateIDs(req.TenantID, req.ServiceID, req.StaffID)
	if err != nil {
		return createInput{}, err
	}

	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	req.Notes = strings.TrimSpace(req.Notes)
	for _, f := range []struct{ name, value string }{
		{"customer_name", req.Customer.Name},
		{"customer_email", req.Customer.Email},
		{"customer_phone", req.Customer.Phone},
		{"notes", req.Notes},
	} {
		if !cleanText(f.value) {
			return createInput{}, invalid(f.name, "contains invalid characters")
		}
	}
	switch {
	case req.Customer.Name == "":
		return createInput{}, invalid("customer_name", "is required")
	case len(req.Customer.Name) > maxNameLen:
		return createInput{}, invalid("customer_name", "is too long")
	case len(req.Customer.Email) > maxContactLen:
		return createInput{}, invalid("customer_email", "is too long")
	case len(req.Customer.Phone) > maxContactLen:
		return createInput{}, invalid("customer_phone", "is too long")
	case len(req.Notes) > maxNotesLen:
		return createInput{}, invalid("notes", "is too long")
	}
	if req.Customer.Email != "" {
		if _, err := mail.ParseAddress(req.Customer.Email); err != nil {
			return createInput{}, invalid("customer_email", "is not a valid email address")
		}
	}

	day, err := parseDate(req.Date)
	if err != nil {
		return createInput{}, err
	}
	offset, err := parseClock(req.Time)
	if err != nil {
		return createInput{}, err
	}
	start := day.Add(offset)
	if !availability.OnGrid(start) {
		return createInput{}, invalid("time", "must be a 30 minute slot between 08:00 and 19:30")
	}
	return createInput{CreateRequest: req, day: day, start: start}, nil
}

// validateIDs returns the ids in canonical lowercase form, the form storage returns them in.
func validateIDs(tenantID, serviceID, staffID string) (string, string, string, error) {
	var err error
	if tenantID, err = canonicalID("tenant_id", tenantID); err != nil {
		return "", "", "", err
	}
	if serviceID, err = canonicalID("service_id", serviceID); err != nil {
		return "", "", "", err
	}
	if staffID, err = canonicalID("staff_id", staffID); err != nil {
		return "", "", "", err
	}
	return tenantID, serviceID, staffID, nil
}

func canonicalID(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "is required")
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", invalid(field, "must be a UUID")
	}
	return id.String(), nil
}

// cleanText rejects input Postgres text columns cannot hold.
func cleanText(v string) bool {
	return utf8.ValidString(v) && !strings.ContainsRune(v, 0)
}

func parseDate(v string) (time.Time, error) {
	return parseDateField("date", v)
}

func parseDateField(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, invalid(field, "is required")
	}
	d, err := time.ParseInLocation(DateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, invalid(field, "must be YYYY-MM-DD")
	}
	return d, nil
}

// parseClock accepts HH:MM and HH:MM:SS and returns the offset from midnight.
func parseClock(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, invalid("time", "is required")
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		t, err = time.Parse("15:04:05", v)
	}
	if err != nil {
		return 0, invalid("time", "must be HH:MM")
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}
