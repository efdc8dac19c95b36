package repository

import (
	"errors"
	"fmt"

	"clinic_booking_backend/internal/appointments/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the booking protocol reacts to.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgExclusionViolation   = "23P01"
	pgUniqueViolation      = "23505"
)

// classify maps driver errors onto the booking error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return domain.ErrResourceBusy(err).WithOp(op)
		case pgSerializationFailure, pgDeadlockDetected, pgExclusionViolation:
			return domain.ErrConcurrentModification(err).WithOp(op)
		case pgUniqueViolation:
			if pgErr.TableName == "appointments" {
				return domain.ErrConcurrentModification(err).WithOp(op)
			}
		}
	}

	return domain.ErrUnexpected(fmt.Errorf("%s: %w", op, err)).WithOp(op)
}
