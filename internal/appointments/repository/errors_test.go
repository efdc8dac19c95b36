package repository

import (
	"errors"
	"testing"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/platform/apperr"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyMapsSQLState(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"lock timeout", &pgconn.PgError{Code: pgLockNotAvailable}, domain.CodeResourceBusy},
		{"serialization", &pgconn.PgError{Code: pgSerializationFailure}, domain.CodeConcurrentModification},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, domain.CodeConcurrentModification},
		{"exclusion", &pgconn.PgError{Code: pgExclusionViolation, TableName: "appointments"}, domain.CodeConcurrentModification},
		{"unique on appointments", &pgconn.PgError{Code: pgUniqueViolation, TableName: "appointments"}, domain.CodeConcurrentModification},
		{"unique elsewhere", &pgconn.PgError{Code: pgUniqueViolation, TableName: "patients"}, domain.CodeUnexpected},
		{"plain", errors.New("conn reset"), domain.CodeUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify("op", tc.err)
			if !apperr.HasCode(got, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want, got)
			}
			if !errors.Is(got, tc.err) {
				t.Fatal("expected the driver error to stay in the chain")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if classify("op", nil) != nil {
		t.Fatal("expected nil")
	}
}

func TestResourceTablesCoverEveryKind(t *testing.T) {
	for _, kind := range []domain.ResourceKind{domain.KindDoctor, domain.KindRoom} {
		if _, _, err := tableFor(kind); err != nil {
			t.Fatalf("missing table for %s: %v", kind, err)
		}
	}
	if _, _, err := tableFor("nurse"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
