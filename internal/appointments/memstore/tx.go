package memstore

import (
	"context"
	"fmt"

	"clinic_booking_backend/internal/appointments/domain"
)

// Tx buffers writes until Commit. Its fields are only touched by the
// goroutine running the booking.
type Tx struct {
	store *Store
	held  map[resourceKey]chan struct{}

	pending      []string // emails this transaction reserved
	patients     []domain.Patient
	appointments []domain.Appointment
	done         bool
}

// PatientByEmail looks at this transaction's own inserts, then committed state.
func (t *Tx) PatientByEmail(_ context.Context, email string) (*domain.Patient, error) {
	if t.done {
		return nil, errTxDone
	}
	for i := range t.patients {
		if t.patients[i].Email == email {
			p := t.patients[i]
			return &p, nil
		}
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if p, ok := t.store.patients[email]; ok {
		return &p, nil
	}
	return nil, nil
}

// InsertPatientIfAbsent reserves the email for this transaction. While
// another open transaction holds the same email it waits for that one to
// finish, like a unique index would.
func (t *Tx) InsertPatientIfAbsent(ctx context.Context, p domain.Patient) (*domain.Patient, error) {
	if t.done {
		return nil, errTxDone
	}
	s := t.store

	for {
		s.mu.Lock()
		if _, ok := s.patients[p.Email]; ok {
			s.mu.Unlock()
			return nil, nil
		}
		owner, busy := s.pendingEmails[p.Email]
		if !busy {
			s.pendingEmails[p.Email] = make(chan struct{})
			s.nextPatientID++
			p.ID = s.nextPatientID
			p.CreatedAt = s.now().UTC()
			s.mu.Unlock()

			t.pending = append(t.pending, p.Email)
			t.patients = append(t.patients, p)
			return &p, nil
		}
		s.mu.Unlock()

		if err := s.awaitClosed(ctx, owner, "patient "+p.Email); err != nil {
			return nil, err
		}
	}
}

// FirstAvailable scans resources in id order. Held locks are ignored: only
// committed appointments make a resource unavailable.
func (t *Tx) FirstAvailable(_ context.Context, q domain.CandidateQuery) (*domain.Resource, error) {
	if t.done {
		return nil, errTxDone
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	switch q.Kind {
	case domain.KindDoctor:
		for id, d := range s.doctors {
			if d.Specialty == q.Specialty {
				ids = append(ids, id)
			}
		}
	case domain.KindRoom:
		for id := range s.rooms {
			ids = append(ids, id)
		}
	default:
		return nil, fmt.Errorf("unknown resource kind %q", q.Kind)
	}

	var best *domain.Resource
	for _, id := range ids {
		key := resourceKey{kind: q.Kind, id: id}
		if best != nil && id > best.ID {
			continue
		}
		if s.overlapsLocked(key, q.Window) {
			continue
		}
		best, _ = s.resourceLocked(key)
	}
	return best, nil
}

// Lock takes the resource's exclusive lock, waiting at most the lock timeout.
func (t *Tx) Lock(ctx context.Context, kind domain.ResourceKind, id int64) (*domain.Resource, error) {
	if t.done {
		return nil, errTxDone
	}
	key := resourceKey{kind: kind, id: id}

	if _, ok := t.held[key]; !ok {
		sem := t.store.semaphore(key)
		if err := t.store.acquire(ctx, sem, fmt.Sprintf("%s %d", kind, id)); err != nil {
			return nil, err
		}
		t.held[key] = sem
	}

	t.store.mu.Lock()
	res, ok := t.store.resourceLocked(key)
	t.store.mu.Unlock()
	if !ok {
		t.release(key)
		return nil, fmt.Errorf("%s %d does not exist", kind, id)
	}
	return res, nil
}

// Release gives up a lock taken by this transaction.
func (t *Tx) Release(_ context.Context, kind domain.ResourceKind, id int64) error {
	if t.done {
		return errTxDone
	}
	t.release(resourceKey{kind: kind, id: id})
	return nil
}

func (t *Tx) release(key resourceKey) {
	if sem, ok := t.held[key]; ok {
		<-sem
		delete(t.held, key)
	}
}

// ExistsOverlap checks committed appointments on the resource.
func (t *Tx) ExistsOverlap(_ context.Context, kind domain.ResourceKind, id int64, w domain.Window) (bool, error) {
	if t.done {
		return false, errTxDone
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.overlapsLocked(resourceKey{kind: kind, id: id}, w), nil
}

// InsertAppointment buffers the appointment and assigns its id.
func (t *Tx) InsertAppointment(_ context.Context, a *domain.Appointment) error {
	if t.done {
		return errTxDone
	}
	if !a.Window().Valid() {
		return fmt.Errorf("appointment window %s to %s is empty", a.StartTime, a.EndTime)
	}

	t.store.mu.Lock()
	t.store.nextApptID++
	a.ID = t.store.nextApptID
	a.CreatedAt = t.store.now().UTC()
	t.store.mu.Unlock()

	t.appointments = append(t.appointments, *a)
	return nil
}

// Commit publishes buffered writes atomically. Appointments are re-checked
// against committed state so a caller that skipped locking still cannot
// create an overlap.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	s := t.store
	s.mu.Lock()

	for _, a := range t.appointments {
		for _, kind := range []domain.ResourceKind{domain.KindDoctor, domain.KindRoom} {
			if s.overlapsLocked(resourceKey{kind: kind, id: a.ResourceID(kind)}, a.Window()) {
				s.mu.Unlock()
				t.finish()
				return domain.ErrConcurrentModification(
					fmt.Errorf("%s %d already booked in window", kind, a.ResourceID(kind)))
			}
		}
	}

	for _, p := range t.patients {
		s.patients[p.Email] = p
	}
	s.appointments = append(s.appointments, t.appointments...)
	s.mu.Unlock()

	t.finish()
	return nil
}

// Rollback discards buffered writes. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

// finish clears pending emails and releases every held lock.
func (t *Tx) finish() {
	t.done = true

	s := t.store
	s.mu.Lock()
	for _, email := range t.pending {
		if ch, ok := s.pendingEmails[email]; ok {
			delete(s.pendingEmails, email)
			close(ch)
		}
	}
	s.mu.Unlock()

	for key := range t.held {
		t.release(key)
	}
}
