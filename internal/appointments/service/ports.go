package service

import (
	"context"
	"time"

	"clinic_booking_backend/internal/appointments/domain"
)

// Store opens booking transactions and serves read-only listings.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	ListAppointments(ctx context.Context, offset, limit int) ([]domain.Appointment, int, error)
	ListDoctors(ctx context.Context, specialty string) ([]domain.Doctor, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
}

// Tx is one booking transaction. Locks taken through Lock are held until
// Release, Commit or Rollback. Rollback after Commit is a no-op, so callers
// can always defer it.
//
// Implementations report lock waits that run out as domain.ErrResourceBusy
// and writes rejected by a concurrent transaction as
// domain.ErrConcurrentModification.
type Tx interface {
	// PatientByEmail returns nil, nil when no patient has the email.
	PatientByEmail(ctx context.Context, email string) (*domain.Patient, error)
	// InsertPatientIfAbsent returns nil, nil when another transaction already
	// owns the email.
	InsertPatientIfAbsent(ctx context.Context, p domain.Patient) (*domain.Patient, error)

	// FirstAvailable returns the lowest-id resource matching q that has no
	// overlapping appointment, or nil, nil when there is none.
	FirstAvailable(ctx context.Context, q domain.CandidateQuery) (*domain.Resource, error)
	Lock(ctx context.Context, kind domain.ResourceKind, id int64) (*domain.Resource, error)
	Release(ctx context.Context, kind domain.ResourceKind, id int64) error
	ExistsOverlap(ctx context.Context, kind domain.ResourceKind, id int64, w domain.Window) (bool, error)

	// InsertAppointment assigns ID and CreatedAt on success.
	InsertAppointment(ctx context.Context, a *domain.Appointment) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// NotificationGateway delivers the post-commit side effects of a booking.
// Calls are independent and their results never affect the booking.
type NotificationGateway interface {
	ReserveDoctorSlot(ctx context.Context, doctorID int64, start, end time.Time) error
	ReserveRoom(ctx context.Context, roomID int64, start, end time.Time) error
	SendConfirmation(ctx context.Context, toEmail, subject, body string) error
}

// Clock returns the current time.
type Clock func() time.Time
