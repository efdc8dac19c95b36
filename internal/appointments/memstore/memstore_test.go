package memstore

import (
	"context"
	"testing"
	"time"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/platform/apperr"
)

var slot = domain.Window{
	Start: time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC),
	End:   time.Date(2030, 3, 4, 9, 30, 0, 0, time.UTC),
}

func seeded(t *testing.T, lockTimeout time.Duration) *Store {
	t.Helper()
	s := New(lockTimeout)
	ctx := context.Background()
	for _, d := range []domain.Doctor{
		{ID: 3, Name: "Dr. C", Specialty: "Cardiology"},
		{ID: 1, Name: "Dr. A", Specialty: "Cardiology"},
		{ID: 2, Name: "Dr. B", Specialty: "Dermatology"},
	} {
		if _, err := s.UpsertDoctor(ctx, d); err != nil {
			t.Fatalf("seed doctor: %v", err)
		}
	}
	if _, err := s.UpsertRoom(ctx, domain.Room{ID: 10, Name: "R1"}); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return s
}

func commitAppointment(t *testing.T, s *Store, doctorID, roomID int64, w domain.Window) {
	t.Helper()
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	appt := domain.Appointment{DoctorID: doctorID, RoomID: roomID, PatientID: 1, StartTime: w.Start, EndTime: w.End, Status: domain.StatusScheduled}
	if err := tx.InsertAppointment(ctx, &appt); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestFirstAvailablePicksLowestFreeID(t *testing.T) {
	s := seeded(t, time.Second)
	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)

	q := domain.CandidateQuery{Kind: domain.KindDoctor, Specialty: "Cardiology", Window: slot}
	got, err := tx.FirstAvailable(ctx, q)
	if err != nil || got == nil || got.ID != 1 {
		t.Fatalf("expected doctor 1, got %+v (err %v)", got, err)
	}

	commitAppointment(t, s, 1, 10, slot)

	got, err = tx.FirstAvailable(ctx, q)
	if err != nil || got == nil || got.ID != 3 {
		t.Fatalf("expected doctor 3 once doctor 1 is booked, got %+v (err %v)", got, err)
	}
}

func TestFirstAvailableIgnoresTouchingWindows(t *testing.T) {
	s := seeded(t, time.Second)
	commitAppointment(t, s, 1, 10, slot)

	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	defer tx.Rollback(ctx)

	next := domain.Window{Start: slot.End, End: slot.End.Add(30 * time.Minute)}
	got, err := tx.FirstAvailable(ctx, domain.CandidateQuery{Kind: domain.KindRoom, Window: next})
	if err != nil || got == nil || got.ID != 10 {
		t.Fatalf("expected room 10 for an adjacent window, got %+v (err %v)", got, err)
	}
}

func TestLockTimesOutAsResourceBusy(t *testing.T) {
	s := seeded(t, 20*time.Millisecond)
	ctx := context.Background()

	holder, _ := s.Begin(ctx)
	defer holder.Rollback(ctx)
	if _, err := holder.Lock(ctx, domain.KindDoctor, 1); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	waiter, _ := s.Begin(ctx)
	defer waiter.Rollback(ctx)
	_, err := waiter.Lock(ctx, domain.KindDoctor, 1)
	if !apperr.HasCode(err, domain.CodeResourceBusy) {
		t.Fatalf("expected RESOURCE_BUSY, got %v", err)
	}
}

func TestRollbackReleasesLocks(t *testing.T) {
	s := seeded(t, time.Second)
	ctx := context.Background()

	first, _ := s.Begin(ctx)
	if _, err := first.Lock(ctx, domain.KindRoom, 10); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := first.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	second, _ := s.Begin(ctx)
	defer second.Rollback(ctx)
	if _, err := second.Lock(ctx, domain.KindRoom, 10); err != nil {
		t.Fatalf("expected lock to be free after rollback, got %v", err)
	}
}

func TestPendingEmailBlocksUntilOwnerCommits(t *testing.T) {
	s := seeded(t, time.Second)
	ctx := context.Background()

	owner, _ := s.Begin(ctx)
	if p, err := owner.InsertPatientIfAbsent(ctx, domain.Patient{Email: "a@x.io", Name: "A"}); err != nil || p == nil {
		t.Fatalf("owner insert: %+v %v", p, err)
	}

	result := make(chan *domain.Patient, 1)
	go func() {
		other, _ := s.Begin(ctx)
		defer other.Rollback(ctx)
		p, _ := other.InsertPatientIfAbsent(ctx, domain.Patient{Email: "a@x.io", Name: "B"})
		result <- p
	}()

	select {
	case <-result:
		t.Fatal("second insert must wait for the owner")
	case <-time.After(20 * time.Millisecond):
	}

	if err := owner.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if p := <-result; p != nil {
		t.Fatalf("expected conflict (nil patient) after owner committed, got %+v", p)
	}
	if s.PatientCount() != 1 {
		t.Fatalf("expected 1 patient, got %d", s.PatientCount())
	}
}

func TestPendingEmailFreedByRollback(t *testing.T) {
	s := seeded(t, time.Second)
	ctx := context.Background()

	owner, _ := s.Begin(ctx)
	if _, err := owner.InsertPatientIfAbsent(ctx, domain.Patient{Email: "a@x.io", Name: "A"}); err != nil {
		t.Fatalf("owner insert: %v", err)
	}
	_ = owner.Rollback(ctx)

	other, _ := s.Begin(ctx)
	defer other.Rollback(ctx)
	p, err := other.InsertPatientIfAbsent(ctx, domain.Patient{Email: "a@x.io", Name: "B"})
	if err != nil || p == nil || p.Name != "B" {
		t.Fatalf("expected insert to succeed after rollback, got %+v %v", p, err)
	}
}

func TestCommitRejectsOverlapWithoutLocks(t *testing.T) {
	s := seeded(t, time.Second)
	commitAppointment(t, s, 1, 10, slot)

	ctx := context.Background()
	tx, _ := s.Begin(ctx)
	appt := domain.Appointment{DoctorID: 3, RoomID: 10, PatientID: 1, StartTime: slot.Start.Add(10 * time.Minute), EndTime: slot.End, Status: domain.StatusScheduled}
	if err := tx.InsertAppointment(ctx, &appt); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := tx.Commit(ctx)
	if !apperr.HasCode(err, domain.CodeConcurrentModification) {
		t.Fatalf("expected CONCURRENT_MODIFICATION, got %v", err)
	}

	items, total, _ := s.ListAppointments(ctx, 0, 10)
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected the rejected appointment to be discarded, got %d", total)
	}
}

func TestListAppointmentsPaging(t *testing.T) {
	s := seeded(t, time.Second)
	for i := 0; i < 3; i++ {
		w := domain.Window{Start: slot.Start.Add(time.Duration(2-i) * time.Hour), End: slot.End.Add(time.Duration(2-i) * time.Hour)}
		commitAppointment(t, s, 1, 10, w)
	}

	items, total, err := s.ListAppointments(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 1 {
		t.Fatalf("expected 1 of 3 items, got %d of %d", len(items), total)
	}
	if !items[0].StartTime.Equal(slot.Start.Add(time.Hour)) {
		t.Fatalf("expected the middle appointment, got %s", items[0].StartTime)
	}
}
