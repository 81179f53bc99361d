package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/booking-service/internal/availability"
	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/model"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
)

const appointmentColumns = `
	id::text, tenant_id::text, service_id::text, staff_id::text,
	client_name, client_email, client_phone,
	appointment_date, appointment_time, duration_minutes, status,
	deposit_paid, deposit_amount::text, total_price::text,
	notes, cancellation_token, created_at, updated_at`

// BookingRepository is the Postgres AppointmentStore. Inserts for one staff member and
// day are serialized by a transaction-scoped advisory lock; the exclusion constraint on
// appointments rejects anything that slips past it.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
	now    func() time.Time
}

func NewBookingRepository(pool *db.Pool, events *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: events, now: time.Now}
}

func (r *BookingRepository) ListActive(ctx context.Context, tenantID, staffID string, date time.Time) ([]model.Appointment, error) {
	appts, err := listActive(ctx, r.pool, tenantID, staffID, date)
	if err != nil {
		return nil, mapError("list active appointments", err)
	}
	return appts, nil
}

func (r *BookingRepository) InsertIfAvailable(ctx context.Context, draft model.Appointment) (model.Appointment, error) {
	appt, err := r.insertIfAvailable(ctx, draft)
	if err != nil {
		return model.Appointment{}, mapError("insert appointment", err)
	}
	return appt, nil
}

func (r *BookingRepository) insertIfAvailable(ctx context.Context, draft model.Appointment) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(draft.StaffID, draft.Date)); err != nil {
		return model.Appointment{}, err
	}

	active, err := listActive(ctx, tx, draft.TenantID, draft.StaffID, draft.Date)
	if err != nil {
		return model.Appointment{}, err
	}
	if !availability.IsFree(draft.Date, draft.StartTime, draft.DurationMinutes, active) {
		return model.Appointment{}, booking.ErrSlotUnavailable
	}

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(tenant_id, service_id, staff_id, client_name, client_email, client_phone,
			 appointment_date, appointment_time, duration_minutes, status,
			 deposit_paid, deposit_amount, total_price, notes, cancellation_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13::numeric, $14, $15)
		RETURNING `+appointmentColumns,
		draft.TenantID, draft.ServiceID, draft.StaffID, draft.ClientName, draft.ClientEmail, draft.ClientPhone,
		pgDate(draft.Date), pgClock(draft.StartTime.Sub(draft.Date)), draft.DurationMinutes, string(draft.Status),
		draft.DepositPaid, draft.DepositAmount.StringFixed(2), draft.TotalPrice.StringFixed(2), draft.Notes, draft.CancellationToken,
	))
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := outbox.AppointmentBooked(appt, r.now())
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *BookingRepository) FindByToken(ctx context.Context, token string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE cancellation_token = $1
	`, token))
	if err != nil {
		return model.Appointment{}, mapError("find appointment by token", err)
	}
	return appt, nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, bool, error) {
	appt, changed, err := r.updateStatus(ctx, id, status)
	if err != nil {
		return model.Appointment{}, false, mapError("update appointment status", err)
	}
	return appt, changed, nil
}

func (r *BookingRepository) updateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, bool, error) {
	if !status.Valid() {
		return model.Appointment{}, false, &booking.ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, false, err
	}
	if current.Status == status {
		return current, false, tx.Commit(ctx)
	}
	if !current.Status.CanTransitionTo(status) {
		return model.Appointment{}, false, &booking.ValidationError{
			Field:   "status",
			Message: "cannot move a " + string(current.Status) + " appointment to " + string(status),
		}
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, string(status)))
	if err != nil {
		return model.Appointment{}, false, err
	}

	if status == model.StatusCancelled {
		evt, err := outbox.AppointmentCancelled(updated, current.Status, r.now())
		if err != nil {
			return model.Appointment{}, false, err
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Appointment{}, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	return updated, true, nil
}

// ListActiveInRange returns the tenant's pending and confirmed appointments dated within
// [from, to], ordered by date and time.
func (r *BookingRepository) ListActiveInRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND appointment_date BETWEEN $2 AND $3
			AND status IN ('pending', 'confirmed')
		ORDER BY appointment_date ASC, appointment_time ASC
	`, tenantID, pgDate(from), pgDate(to))
	if err != nil {
		return nil, mapError("list calendar", err)
	}
	appts, err := collectAppointments(rows)
	if err != nil {
		return nil, mapError("list calendar", err)
	}
	return appts, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listActive(ctx context.Context, q querier, tenantID, staffID string, date time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND staff_id = $2
			AND appointment_date = $3
			AND status IN ('pending', 'confirmed')
		ORDER BY appointment_time ASC
	`, tenantID, staffID, pgDate(date))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt                model.Appointment
		date                pgtype.Date
		clock               pgtype.Time
		status              string
		deposit, totalPrice string
	)
	err := row.Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.ServiceID,
		&appt.StaffID,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&date,
		&clock,
		&appt.DurationMinutes,
		&status,
		&appt.DepositPaid,
		&deposit,
		&totalPrice,
		&appt.Notes,
		&appt.CancellationToken,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if !date.Valid || !clock.Valid {
		return model.Appointment{}, errors.New("appointment row has null date or time")
	}
	appt.Date = time.Date(date.Time.Year(), date.Time.Month(), date.Time.Day(), 0, 0, 0, 0, time.UTC)
	appt.StartTime = appt.Date.Add(time.Duration(clock.Microseconds) * time.Microsecond)
	appt.Status = model.Status(status)
	if appt.DepositAmount, err = decimal.NewFromString(deposit); err != nil {
		return model.Appointment{}, err
	}
	if appt.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func pgDate(d time.Time) pgtype.Date {
	return pgtype.Date{Time: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

func pgClock(offset time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: offset.Microseconds(), Valid: true}
}

func lockKey(staffID string, date time.Time) string {
	return staffID + "|" + date.Format(booking.DateLayout)
}
