// Package memstore is an in-process booking store with the same locking
// behaviour as the Postgres repository: exclusive per-resource locks with a
// bounded wait, email uniqueness across concurrent transactions, and
// all-or-nothing commits.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/internal/appointments/service"
)

type resourceKey struct {
	kind domain.ResourceKind
	id   int64
}

// Store keeps committed state behind a mutex. Resource locks are channels of
// capacity one so waiters can give up after the lock timeout.
type Store struct {
	lockTimeout time.Duration
	now         func() time.Time

	mu            sync.Mutex
	doctors       map[int64]domain.Doctor
	rooms         map[int64]domain.Room
	patients      map[string]domain.Patient
	appointments  []domain.Appointment
	locks         map[resourceKey]chan struct{}
	pendingEmails map[string]chan struct{}
	nextDoctorID  int64
	nextRoomID    int64
	nextPatientID int64
	nextApptID    int64
}

// New creates an empty store.
func New(lockTimeout time.Duration) *Store {
	return &Store{
		lockTimeout:   lockTimeout,
		now:           time.Now,
		doctors:       make(map[int64]domain.Doctor),
		rooms:         make(map[int64]domain.Room),
		patients:      make(map[string]domain.Patient),
		locks:         make(map[resourceKey]chan struct{}),
		pendingEmails: make(map[string]chan struct{}),
	}
}

// UpsertDoctor adds or replaces a doctor. A zero ID is assigned the next id.
func (s *Store) UpsertDoctor(_ context.Context, d domain.Doctor) (domain.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == 0 {
		s.nextDoctorID++
		d.ID = s.nextDoctorID
	} else if d.ID > s.nextDoctorID {
		s.nextDoctorID = d.ID
	}
	s.doctors[d.ID] = d
	return d, nil
}

// UpsertRoom adds or replaces a room. A zero ID is assigned the next id.
func (s *Store) UpsertRoom(_ context.Context, r domain.Room) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == 0 {
		s.nextRoomID++
		r.ID = s.nextRoomID
	} else if r.ID > s.nextRoomID {
		s.nextRoomID = r.ID
	}
	s.rooms[r.ID] = r
	return r, nil
}

// PatientCount returns the number of committed patients.
func (s *Store) PatientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patients)
}

// Begin starts a transaction.
func (s *Store) Begin(_ context.Context) (service.Tx, error) {
	return &Tx{store: s, held: make(map[resourceKey]chan struct{})}, nil
}

// ListAppointments returns committed appointments ordered by start time then id.
func (s *Store) ListAppointments(_ context.Context, offset, limit int) ([]domain.Appointment, int, error) {
	s.mu.Lock()
	all := make([]domain.Appointment, len(s.appointments))
	copy(all, s.appointments)
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].StartTime.Before(all[j].StartTime)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []domain.Appointment{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// ListDoctors returns doctors ordered by id, filtered by exact specialty when given.
func (s *Store) ListDoctors(_ context.Context, specialty string) ([]domain.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		if specialty == "" || d.Specialty == specialty {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListRooms returns rooms ordered by id.
func (s *Store) ListRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// overlapsLocked reports a committed appointment on the resource that
// intersects w. Caller holds s.mu.
func (s *Store) overlapsLocked(key resourceKey, w domain.Window) bool {
	for _, a := range s.appointments {
		if a.ResourceID(key.kind) == key.id && a.Window().Overlaps(w) {
			return true
		}
	}
	return false
}

func (s *Store) resourceLocked(key resourceKey) (*domain.Resource, bool) {
	switch key.kind {
	case domain.KindDoctor:
		d, ok := s.doctors[key.id]
		if !ok {
			return nil, false
		}
		return &domain.Resource{Kind: key.kind, ID: d.ID, Name: d.Name}, true
	case domain.KindRoom:
		r, ok := s.rooms[key.id]
		if !ok {
			return nil, false
		}
		return &domain.Resource{Kind: key.kind, ID: r.ID, Name: r.Name}, true
	}
	return nil, false
}

func (s *Store) semaphore(key resourceKey) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	sem, ok := s.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[key] = sem
	}
	return sem
}

// acquire takes sem, giving up after the lock timeout.
func (s *Store) acquire(ctx context.Context, sem chan struct{}, what string) error {
	select {
	case sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return domain.ErrResourceBusy(fmt.Errorf("timed out after %s waiting for %s", s.lockTimeout, what))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// awaitClosed waits for another transaction to finish with a pending email.
func (s *Store) awaitClosed(ctx context.Context, done <-chan struct{}, what string) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return domain.ErrResourceBusy(fmt.Errorf("timed out after %s waiting for %s", s.lockTimeout, what))
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errTxDone = errors.New("transaction already finished")

var _ service.Store = (*Store)(nil)
