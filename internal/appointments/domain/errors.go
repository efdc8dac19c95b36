package domain

import (
	"fmt"
	"time"

	"clinic_booking_backend/platform/apperr"
)

// Stable error codes returned to clients.
const (
	CodeInvalidWindow          = "INVALID_WINDOW"
	CodeNoAvailableDoctor      = "NO_AVAILABLE_DOCTOR"
	CodeNoAvailableRoom        = "NO_AVAILABLE_ROOM"
	CodeResourceBusy           = "RESOURCE_BUSY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnexpected             = "UNEXPECTED"
	CodeValidationFailed       = "VALIDATION_FAILED"
)

const windowLayout = time.RFC3339

// ErrInvalidWindow reports a missing, empty, inverted or past window.
func ErrInvalidWindow(reason string) *apperr.Error {
	return apperr.Validation("invalid time window: " + reason).WithCode(CodeInvalidWindow)
}

// ErrValidation reports request fields that fail validation.
func ErrValidation(message string, details interface{}) *apperr.Error {
	return apperr.Validation(message).WithCode(CodeValidationFailed).WithDetails(details)
}

// ErrNoAvailableDoctor reports that no doctor of the specialty could be
// reserved for the window.
func ErrNoAvailableDoctor(specialty string, w Window) *apperr.Error {
	return apperr.Conflict(fmt.Sprintf("No available doctor for specialty %s in window %s to %s",
		specialty, w.Start.Format(windowLayout), w.End.Format(windowLayout))).
		WithCode(CodeNoAvailableDoctor)
}

// ErrNoAvailableRoom reports that no room could be reserved for the window.
func ErrNoAvailableRoom(w Window) *apperr.Error {
	return apperr.Conflict(fmt.Sprintf("No available room in window %s to %s",
		w.Start.Format(windowLayout), w.End.Format(windowLayout))).
		WithCode(CodeNoAvailableRoom)
}

// ErrResourceBusy reports a lock that could not be acquired in time.
func ErrResourceBusy(cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindUnavailable, "Resource is locked, try again later", cause).
		WithCode(CodeResourceBusy)
}

// ErrConcurrentModification reports a write rejected because of a
// concurrent transaction.
func ErrConcurrentModification(cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindConflict, "Concurrent modification detected", cause).
		WithCode(CodeConcurrentModification)
}

// ErrUnexpected wraps any failure outside the booking taxonomy.
func ErrUnexpected(cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindInternal, "unexpected error", cause).
		WithCode(CodeUnexpected)
}

// Classify returns err unchanged when it already carries a code and wraps it
// as Unexpected otherwise.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if apperr.CodeOf(err) != "" {
		return err
	}
	return ErrUnexpected(err)
}

// OutcomeCode is the metrics/log label for a booking result.
func OutcomeCode(err error) string {
	if err == nil {
		return "OK"
	}
	if code := apperr.CodeOf(err); code != "" {
		return code
	}
	return CodeUnexpected
}
