package service

import (
	"context"
	"fmt"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/platform/metrics"
	"clinic_booking_backend/platform/phone"
	"clinic_booking_backend/platform/sanitize"
)

// PatientDirectory resolves patients by email inside a booking transaction.
type PatientDirectory struct {
	phoneRegion string
	metrics     *metrics.Collector
}

// NewPatientDirectory creates a directory that normalizes phone numbers in region.
func NewPatientDirectory(phoneRegion string, m *metrics.Collector) *PatientDirectory {
	return &PatientDirectory{phoneRegion: phoneRegion, metrics: m}
}

// FindOrCreate returns the patient with the given email, creating it when
// absent. When a concurrent transaction creates the same email first, the
// winner's row is returned. Name and phone are only written on creation.
func (d *PatientDirectory) FindOrCreate(ctx context.Context, tx Tx, email, name string, phoneNumber *string) (*domain.Patient, error) {
	email = sanitize.Email(email)

	existing, err := tx.PatientByEmail(ctx, email)
	if err != nil {
		return nil, domain.Classify(err)
	}
	if existing != nil {
		return existing, nil
	}

	candidate := domain.Patient{
		Email: email,
		Name:  sanitize.Text(name),
	}
	if phoneNumber != nil && *phoneNumber != "" {
		normalized, err := phone.ParseE164(*phoneNumber, d.phoneRegion)
		if err != nil {
			return nil, domain.ErrValidation("patientPhone is not a valid phone number",
				map[string]string{"patientPhone": *phoneNumber})
		}
		candidate.Phone = &normalized
	}

	created, err := tx.InsertPatientIfAbsent(ctx, candidate)
	if err != nil {
		return nil, domain.Classify(err)
	}
	if created != nil {
		d.metrics.ObservePatientCreated()
		return created, nil
	}

	winner, err := tx.PatientByEmail(ctx, email)
	if err != nil {
		return nil, domain.Classify(err)
	}
	if winner == nil {
		return nil, domain.ErrConcurrentModification(fmt.Errorf("patient %s vanished after insert conflict", email))
	}
	return winner, nil
}
