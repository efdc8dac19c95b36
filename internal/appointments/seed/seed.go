// Package seed loads doctors and rooms from a YAML fixture.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clinic_booking_backend/internal/appointments/domain"
)

// Fixture is the on-disk shape of a seed file.
type Fixture struct {
	Doctors []DoctorFixture `yaml:"doctors"`
	Rooms   []RoomFixture   `yaml:"rooms"`
}

type DoctorFixture struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Specialty string `yaml:"specialty"`
}

type RoomFixture struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// Target is implemented by both booking stores.
type Target interface {
	UpsertDoctor(ctx context.Context, d domain.Doctor) (domain.Doctor, error)
	UpsertRoom(ctx context.Context, r domain.Room) (domain.Room, error)
}

// Result counts what Apply wrote.
type Result struct {
	Doctors int
	Rooms   int
}

// LoadFile reads and validates a fixture.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture, rejecting unknown fields and incomplete entries.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	doctorIDs := make(map[int64]bool)
	for i, d := range f.Doctors {
		if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Specialty) == "" {
			return fmt.Errorf("doctors[%d]: name and specialty are required", i)
		}
		if d.ID < 0 {
			return fmt.Errorf("doctors[%d]: id must not be negative", i)
		}
		if d.ID != 0 && doctorIDs[d.ID] {
			return fmt.Errorf("doctors[%d]: duplicate id %d", i, d.ID)
		}
		doctorIDs[d.ID] = true
	}

	roomIDs := make(map[int64]bool)
	for i, r := range f.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("rooms[%d]: name is required", i)
		}
		if r.ID < 0 {
			return fmt.Errorf("rooms[%d]: id must not be negative", i)
		}
		if r.ID != 0 && roomIDs[r.ID] {
			return fmt.Errorf("rooms[%d]: duplicate id %d", i, r.ID)
		}
		roomIDs[r.ID] = true
	}
	return nil
}

// Apply upserts every doctor and room. Specialty is stored verbatim since
// candidate matching is exact.
func Apply(ctx context.Context, target Target, f *Fixture) (Result, error) {
	var res Result
	for _, d := range f.Doctors {
		if _, err := target.UpsertDoctor(ctx, domain.Doctor{ID: d.ID, Name: strings.TrimSpace(d.Name), Specialty: d.Specialty}); err != nil {
			return res, fmt.Errorf("upsert doctor %q: %w", d.Name, err)
		}
		res.Doctors++
	}
	for _, r := range f.Rooms {
		if _, err := target.UpsertRoom(ctx, domain.Room{ID: r.ID, Name: strings.TrimSpace(r.Name), Location: r.Location}); err != nil {
			return res, fmt.Errorf("upsert room %q: %w", r.Name, err)
		}
		res.Rooms++
	}
	return res, nil
}
