package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/internal/appointments/memstore"
	"clinic_booking_backend/internal/appointments/service"
	"clinic_booking_backend/internal/appointments/transport"
	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"
)

var (
	// Every test books in 2025 with the clock pinned just before it.
	fixedNow = time.Date(2024, 12, 31, 8, 0, 0, 0, time.UTC)
	t10      = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t11      = time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
)

type gatewayCall struct {
	channel string
	id      int64
	email   string
	start   time.Time
	end     time.Time
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
	fail  map[string]error
}

func (g *fakeGateway) record(c gatewayCall) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	return g.fail[c.channel]
}

func (g *fakeGateway) ReserveDoctorSlot(_ context.Context, doctorID int64, start, end time.Time) error {
	return g.record(gatewayCall{channel: "doctor", id: doctorID, start: start, end: end})
}

func (g *fakeGateway) ReserveRoom(_ context.Context, roomID int64, start, end time.Time) error {
	return g.record(gatewayCall{channel: "room", id: roomID, start: start, end: end})
}

func (g *fakeGateway) SendConfirmation(_ context.Context, toEmail, _, _ string) error {
	return g.record(gatewayCall{channel: "email", email: toEmail})
}

func (g *fakeGateway) byChannel() map[string]gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]gatewayCall, len(g.calls))
	for _, c := range g.calls {
		out[c.channel] = c
	}
	return out
}

type fixture struct {
	store   *memstore.Store
	svc     *service.Service
	gateway *fakeGateway
	metrics *metrics.Collector
}

func newFixture(t *testing.T, doctors []domain.Doctor, rooms []domain.Room) *fixture {
	t.Helper()
	store := memstore.New(2 * time.Second)
	ctx := context.Background()
	for _, d := range doctors {
		if _, err := store.UpsertDoctor(ctx, d); err != nil {
			t.Fatalf("seed doctor: %v", err)
		}
	}
	for _, r := range rooms {
		if _, err := store.UpsertRoom(ctx, r); err != nil {
			t.Fatalf("seed room: %v", err)
		}
	}

	cfg := &config.Config{
		NotificationTimeout: time.Second,
		PhoneDefaultRegion:  "NL",
	}
	gw := &fakeGateway{fail: map[string]error{}}
	m := metrics.NewCollector("test")
	svc := service.New(store, gw, func() time.Time { return fixedNow }, cfg, logger.Discard(), m)
	return &fixture{store: store, svc: svc, gateway: gw, metrics: m}
}

func request(specialty string, start, end time.Time, email string) transport.BookAppointmentRequest {
	return transport.BookAppointmentRequest{
		Specialty:    specialty,
		StartTime:    &start,
		EndTime:      &end,
		PatientEmail: email,
		PatientName:  "Jane Doe",
	}
}

func TestBookEndToEnd(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)

	resp, err := f.svc.Book(context.Background(), request("Cardiology", t10, t11, "new.patient@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.DoctorID != 1 || resp.RoomID != 10 || resp.Status != domain.StatusScheduled {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.StartTime.Equal(t10) || !resp.EndTime.Equal(t11) {
		t.Fatalf("unexpected window: %s to %s", resp.StartTime, resp.EndTime)
	}
	if f.store.PatientCount() != 1 {
		t.Fatalf("expected the patient to be created, got %d patients", f.store.PatientCount())
	}

	f.svc.Wait()
	calls := f.gateway.byChannel()
	if c := calls["doctor"]; c.id != 1 || !c.start.Equal(t10) || !c.end.Equal(t11) {
		t.Fatalf("unexpected doctor calendar call: %+v", c)
	}
	if c := calls["room"]; c.id != 10 {
		t.Fatalf("unexpected room reservation call: %+v", c)
	}
	if c := calls["email"]; c.email != "new.patient@example.com" {
		t.Fatalf("unexpected confirmation call: %+v", c)
	}
	if got := testutil.ToFloat64(f.metrics.BookingsTotal.WithLabelValues("OK")); got != 1 {
		t.Fatalf("expected 1 OK booking in metrics, got %v", got)
	}
}

func TestBookRejectsInvalidWindows(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)
	past := fixedNow.Add(-time.Hour)

	cases := map[string]transport.BookAppointmentRequest{
		"end equals start": request("Cardiology", t10, t10, "a@example.com"),
		"end before start": request("Cardiology", t11, t10, "a@example.com"),
		"start in past":    request("Cardiology", past, t10, "a@example.com"),
		"start now":        request("Cardiology", fixedNow, t10, "a@example.com"),
		"missing start": {
			Specialty: "Cardiology", EndTime: &t11, PatientEmail: "a@example.com", PatientName: "A",
		},
		"missing end": {
			Specialty: "Cardiology", StartTime: &t10, PatientEmail: "a@example.com", PatientName: "A",
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Book(context.Background(), req)
			if !apperr.HasCode(err, domain.CodeInvalidWindow) {
				t.Fatalf("expected INVALID_WINDOW, got %v", err)
			}
		})
	}

	if f.store.PatientCount() != 0 {
		t.Fatal("invalid requests must not create patients")
	}
	if _, total, _ := f.store.ListAppointments(context.Background(), 0, 10); total != 0 {
		t.Fatal("invalid requests must not create appointments")
	}
}

func TestBookUnknownSpecialty(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)

	_, err := f.svc.Book(context.Background(), request("cardiology", t10, t11, "a@example.com"))
	if !apperr.HasCode(err, domain.CodeNoAvailableDoctor) {
		t.Fatalf("specialty must match exactly, expected NO_AVAILABLE_DOCTOR, got %v", err)
	}
	if f.store.PatientCount() != 0 {
		t.Fatal("a failed booking must roll back the patient insert")
	}
}

func TestBookNoRoomRollsBackEverything(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{
			{ID: 1, Name: "D1", Specialty: "Cardiology"},
			{ID: 2, Name: "D2", Specialty: "Cardiology"},
		},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, request("Cardiology", t10, t11, "first@example.com")); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := f.svc.Book(ctx, request("Cardiology", t10.Add(30*time.Minute), t11.Add(30*time.Minute), "second@example.com"))
	if !apperr.HasCode(err, domain.CodeNoAvailableRoom) {
		t.Fatalf("expected NO_AVAILABLE_ROOM, got %v", err)
	}
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatal("expected a conflict kind")
	}
	if f.store.PatientCount() != 1 {
		t.Fatalf("expected only the first patient to persist, got %d", f.store.PatientCount())
	}

	// Doctor 2 must not be left locked by the failed attempt.
	if _, err := f.svc.Book(ctx, request("Cardiology", t11, t11.Add(time.Hour), "third@example.com")); err != nil {
		t.Fatalf("booking after a failed attempt: %v", err)
	}
}

func TestBookAdjacentWindowsShareResources(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, request("Cardiology", t10, t11, "a@example.com"))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	second, err := f.svc.Book(ctx, request("Cardiology", t11, t11.Add(time.Hour), "b@example.com"))
	if err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}
	if first.DoctorID != second.DoctorID || first.RoomID != second.RoomID {
		t.Fatal("touching windows must be able to reuse the same doctor and room")
	}
}

func TestBookSingleContenderRace(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t,
			[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
			[]domain.Room{{ID: 10, Name: "R1"}, {ID: 11, Name: "R2"}},
		)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Book(context.Background(), request("Cardiology", t10, t11, fmt.Sprintf("p%d@example.com", i)))
			}(i)
		}
		close(start)
		wg.Wait()

		successes, lost := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				successes++
			case apperr.HasCode(err, domain.CodeNoAvailableDoctor):
				lost++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if successes != 1 || lost != 1 {
			t.Fatalf("round %d: expected one success and one NO_AVAILABLE_DOCTOR, got %d/%d", round, successes, lost)
		}
	}
}

func TestBookPatientRaceCreatesOnePatient(t *testing.T) {
	const contenders = 8
	doctors := make([]domain.Doctor, 0, contenders)
	rooms := make([]domain.Room, 0, contenders)
	for i := 1; i <= contenders; i++ {
		doctors = append(doctors, domain.Doctor{ID: int64(i), Name: fmt.Sprintf("D%d", i), Specialty: "Cardiology"})
		rooms = append(rooms, domain.Room{ID: int64(100 + i), Name: fmt.Sprintf("R%d", i)})
	}
	f := newFixture(t, doctors, rooms)

	patientIDs := make([]int64, contenders)
	var g errgroup.Group
	for i := 0; i < contenders; i++ {
		g.Go(func() error {
			start := t10.Add(time.Duration(i) * 2 * time.Hour)
			resp, err := f.svc.Book(context.Background(), request("Cardiology", start, start.Add(time.Hour), "Same.Person@Example.com"))
			if err != nil {
				return err
			}
			patientIDs[i] = resp.PatientID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected booking error: %v", err)
	}

	if f.store.PatientCount() != 1 {
		t.Fatalf("expected exactly one patient, got %d", f.store.PatientCount())
	}
	for _, id := range patientIDs {
		if id != patientIDs[0] {
			t.Fatalf("expected every booking to share the patient, got %v", patientIDs)
		}
	}
}

func TestBookConcurrentFuzzNeverOverlaps(t *testing.T) {
	const (
		workers   = 16
		perWorker = 12
	)
	f := newFixture(t,
		[]domain.Doctor{
			{ID: 1, Name: "D1", Specialty: "Cardiology"},
			{ID: 2, Name: "D2", Specialty: "Cardiology"},
			{ID: 3, Name: "D3", Specialty: "Cardiology"},
		},
		[]domain.Room{{ID: 10, Name: "R1"}, {ID: 11, Name: "R2"}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		rng := rand.New(rand.NewSource(int64(w) + 1))
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				start := t10.Add(time.Duration(rng.Intn(16)) * 15 * time.Minute)
				end := start.Add(time.Duration(1+rng.Intn(4)) * 15 * time.Minute)
				email := fmt.Sprintf("p%d@example.com", rng.Intn(10))
				_, err := f.svc.Book(gctx, request("Cardiology", start, end, email))
				switch {
				case err == nil,
					apperr.HasCode(err, domain.CodeNoAvailableDoctor),
					apperr.HasCode(err, domain.CodeNoAvailableRoom),
					apperr.HasCode(err, domain.CodeResourceBusy):
				default:
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		t.Fatal("bookings did not complete in bounded time")
	}

	all, total, err := f.store.ListAppointments(context.Background(), 0, workers*perWorker)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total == 0 {
		t.Fatal("expected at least one booking to succeed")
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if !a.Window().Overlaps(b.Window()) {
				continue
			}
			if a.DoctorID == b.DoctorID {
				t.Fatalf("doctor %d double-booked: #%d and #%d", a.DoctorID, a.ID, b.ID)
			}
			if a.RoomID == b.RoomID {
				t.Fatalf("room %d double-booked: #%d and #%d", a.RoomID, a.ID, b.ID)
			}
		}
	}
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)
	f.gateway.fail["email"] = errors.New("smtp unavailable")

	if _, err := f.svc.Book(context.Background(), request("Cardiology", t10, t11, "a@example.com")); err != nil {
		t.Fatalf("booking must succeed despite notification failure: %v", err)
	}
	f.svc.Wait()

	if len(f.gateway.byChannel()) != 3 {
		t.Fatal("expected every notification to be attempted")
	}
	if got := testutil.ToFloat64(f.metrics.NotificationsSent.WithLabelValues("email", "error")); got != 1 {
		t.Fatalf("expected 1 failed email in metrics, got %v", got)
	}
}

func TestBookRejectsInvalidPhone(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)
	req := request("Cardiology", t10, t11, "a@example.com")
	bad := "call me maybe"
	req.PatientPhone = &bad

	_, err := f.svc.Book(context.Background(), req)
	if !apperr.HasCode(err, domain.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestListPagesByStartTime(t *testing.T) {
	f := newFixture(t,
		[]domain.Doctor{{ID: 1, Name: "D1", Specialty: "Cardiology"}},
		[]domain.Room{{ID: 10, Name: "R1"}},
	)
	ctx := context.Background()
	for i := 2; i >= 0; i-- {
		start := t10.Add(time.Duration(i) * time.Hour)
		if _, err := f.svc.Book(ctx, request("Cardiology", start, start.Add(time.Hour), "a@example.com")); err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}

	page, err := f.svc.List(ctx, transport.ListAppointmentsRequest{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if !page.Items[0].StartTime.Equal(t10) || !page.Items[1].StartTime.Equal(t11) {
		t.Fatal("expected items ordered by start time")
	}

	defaults, err := f.svc.List(ctx, transport.ListAppointmentsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if defaults.Page != 1 || defaults.PageSize != transport.DefaultPageSize {
		t.Fatalf("expected default paging, got page %d size %d", defaults.Page, defaults.PageSize)
	}
}

var _ service.Store = (*memstore.Store)(nil)
