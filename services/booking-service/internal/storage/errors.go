package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
)

const (
	sqlStateExclusionViolation = "23P01"
	sqlStateUniqueViolation    = "23505"
	sqlStateInvalidText        = "22P02"

	sqlStateClassDataException = "22"
)

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateExclusionViolation
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// mapError translates driver errors into the booking error taxonomy.
func mapError(op string, err error) error {
	var (
		pgErr *pgconn.PgError
		vErr  *booking.ValidationError
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrSlotUnavailable), errors.Is(err, booking.ErrPersistence), errors.As(err, &vErr):
		return err
	case IsNotFound(err):
		return booking.ErrNotFound
	case IsConflict(err):
		return booking.ErrSlotUnavailable
	case errors.As(err, &pgErr) && pgErr.Code == sqlStateInvalidText:
		// Malformed ids never match a row.
		return booking.ErrNotFound
	case errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, sqlStateClassDataException):
		return &booking.ValidationError{Message: "request contains a value the store cannot accept"}
	case errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation:
		// Cancellation token collision. Retrying draws a fresh token.
		return booking.Persistence(op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return booking.Persistence(op, err)
	}
}
