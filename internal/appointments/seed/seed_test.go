package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clinic_booking_backend/internal/appointments/memstore"
	"clinic_booking_backend/internal/appointments/seed"
)

const fixture = `
doctors:
  - id: 1
    name: D1
    specialty: Cardiology
  - name: D2
    specialty: Dermatology
rooms:
  - id: 10
    name: R1
    location: Ground floor
`

func TestParseAndApply(t *testing.T) {
	f, err := seed.Parse([]byte(fixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	store := memstore.New(time.Second)
	res, err := seed.Apply(context.Background(), store, f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Doctors != 2 || res.Rooms != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	doctors, err := store.ListDoctors(context.Background(), "Cardiology")
	if err != nil {
		t.Fatal(err)
	}
	if len(doctors) != 1 || doctors[0].ID != 1 || doctors[0].Name != "D1" {
		t.Fatalf("unexpected cardiology doctors %+v", doctors)
	}

	rooms, err := store.ListRooms(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != 10 || rooms[0].Location != "Ground floor" {
		t.Fatalf("unexpected rooms %+v", rooms)
	}
}

func TestParseRejectsInvalidFixtures(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown field", "doctors:\n  - name: D1\n    specialty: X\n    floor: 2\n", "floor"},
		{"missing specialty", "doctors:\n  - name: D1\n", "doctors[0]"},
		{"duplicate doctor id", "doctors:\n  - {id: 1, name: A, specialty: X}\n  - {id: 1, name: B, specialty: X}\n", "duplicate id 1"},
		{"room without name", "rooms:\n  - id: 3\n", "rooms[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := seed.LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(f.Doctors) != 2 {
		t.Fatalf("expected 2 doctors, got %d", len(f.Doctors))
	}

	if _, err := seed.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
