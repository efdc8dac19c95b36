package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/internal/appointments/transport"
	"clinic_booking_backend/platform/apperr"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
)

// Notification channels, used as log and metric labels.
const (
	channelDoctorCalendar  = "doctor_calendar"
	channelRoomReservation = "room_reservation"
	channelEmail           = "email"
)

const confirmationSubject = "Your appointment is confirmed"

// Service provides business logic for appointments
type Service struct {
	store         Store
	gateway       NotificationGateway
	now           Clock
	notifyTimeout time.Duration
	log           *logger.Logger
	metrics       *metrics.Collector

	patients *PatientDirectory
	doctors  resourceLocker
	rooms    resourceLocker

	inflight sync.WaitGroup
}

// New creates a new appointments service. gateway and m may be nil.
func New(store Store, gateway NotificationGateway, now Clock, cfg config.BookingConfig, log *logger.Logger, m *metrics.Collector) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:         store,
		gateway:       gateway,
		now:           now,
		notifyTimeout: cfg.GetNotificationTimeout(),
		log:           log,
		metrics:       m,
		patients:      NewPatientDirectory(cfg.GetPhoneDefaultRegion(), m),
		doctors:       newDoctorLocker(log, m),
		rooms:         newRoomLocker(log, m),
	}
}

// booked carries what the notifications need after commit.
type booked struct {
	appointment domain.Appointment
	patient     domain.Patient
	doctor      domain.Resource
	room        domain.Resource
	specialty   string
}

// Book reserves a doctor of the requested specialty and a room for the
// window and records the appointment for the patient, creating the patient
// on first contact. Either everything is persisted or nothing is.
func (s *Service) Book(ctx context.Context, req transport.BookAppointmentRequest) (*transport.AppointmentResponse, error) {
	started := time.Now()
	result, err := s.book(ctx, req)
	elapsed := time.Since(started)

	code := domain.OutcomeCode(err)
	s.metrics.ObserveBooking(code, elapsed)
	s.log.WithContext(ctx).BookingOutcome(code, elapsed, err)
	if code == domain.CodeUnexpected {
		s.log.WithContext(ctx).DatabaseError("appointments.book", err)
	}
	if err != nil {
		return nil, err
	}

	s.dispatchNotifications(ctx, result)

	resp := transport.ToAppointmentResponse(result.appointment)
	return &resp, nil
}

func (s *Service) book(ctx context.Context, req transport.BookAppointmentRequest) (*booked, error) {
	window, err := s.validateWindow(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, domain.Classify(err)
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	patient, err := s.patients.FindOrCreate(ctx, tx, req.PatientEmail, req.PatientName, req.PatientPhone)
	if err != nil {
		return nil, err
	}

	// Doctor before room in every transaction keeps the lock order acyclic.
	doctor, err := s.doctors.Acquire(ctx, tx, domain.CandidateQuery{Specialty: req.Specialty, Window: window})
	if err != nil {
		return nil, err
	}
	room, err := s.rooms.Acquire(ctx, tx, domain.CandidateQuery{Window: window})
	if err != nil {
		return nil, err
	}

	appt := domain.Appointment{
		DoctorID:  doctor.ID,
		RoomID:    room.ID,
		PatientID: patient.ID,
		StartTime: window.Start,
		EndTime:   window.End,
		Status:    domain.StatusScheduled,
	}
	if err := tx.InsertAppointment(ctx, &appt); err != nil {
		return nil, domain.Classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, domain.Classify(err)
	}

	return &booked{
		appointment: appt,
		patient:     *patient,
		doctor:      *doctor,
		room:        *room,
		specialty:   req.Specialty,
	}, nil
}

func (s *Service) validateWindow(start, end *time.Time) (domain.Window, error) {
	if start == nil || end == nil {
		return domain.Window{}, domain.ErrInvalidWindow("startTime and endTime are required")
	}
	w := domain.Window{Start: start.UTC(), End: end.UTC()}
	if !w.Valid() {
		return domain.Window{}, domain.ErrInvalidWindow("endTime must be after startTime")
	}
	if !w.Start.After(s.now()) {
		return domain.Window{}, domain.ErrInvalidWindow("startTime must be in the future")
	}
	return w, nil
}

// List returns one page of appointments ordered by start time.
func (s *Service) List(ctx context.Context, req transport.ListAppointmentsRequest) (*transport.AppointmentListResponse, error) {
	req.Normalize()

	items, total, err := s.store.ListAppointments(ctx, req.Offset(), req.PageSize)
	if err != nil {
		return nil, s.storeError(ctx, "appointments.list", err)
	}

	resp := make([]transport.AppointmentResponse, 0, len(items))
	for _, a := range items {
		resp = append(resp, transport.ToAppointmentResponse(a))
	}

	totalPages := (total + req.PageSize - 1) / req.PageSize
	return &transport.AppointmentListResponse{
		Items:      resp,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}, nil
}

// ListDoctors returns doctors ordered by id, optionally filtered by specialty.
func (s *Service) ListDoctors(ctx context.Context, req transport.ListDoctorsRequest) ([]transport.DoctorResponse, error) {
	doctors, err := s.store.ListDoctors(ctx, req.Specialty)
	if err != nil {
		return nil, s.storeError(ctx, "doctors.list", err)
	}
	resp := make([]transport.DoctorResponse, 0, len(doctors))
	for _, d := range doctors {
		resp = append(resp, transport.DoctorResponse{ID: d.ID, Name: d.Name, Specialty: d.Specialty})
	}
	return resp, nil
}

// ListRooms returns rooms ordered by id.
func (s *Service) ListRooms(ctx context.Context) ([]transport.RoomResponse, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, s.storeError(ctx, "rooms.list", err)
	}
	resp := make([]transport.RoomResponse, 0, len(rooms))
	for _, r := range rooms {
		resp = append(resp, transport.RoomResponse{ID: r.ID, Name: r.Name, Location: r.Location})
	}
	return resp, nil
}

// storeError classifies a store failure and logs the ones outside the
// booking error codes.
func (s *Service) storeError(ctx context.Context, op string, err error) error {
	err = domain.Classify(err)
	if apperr.HasCode(err, domain.CodeUnexpected) {
		s.log.WithContext(ctx).DatabaseError(op, err)
	}
	return err
}

// Wait blocks until notifications dispatched so far have finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// dispatchNotifications fires the three side effects on their own goroutines.
// They outlive the request but not notifyTimeout.
func (s *Service) dispatchNotifications(ctx context.Context, b *booked) {
	if s.gateway == nil {
		return
	}

	base := context.WithoutCancel(ctx)
	appt := b.appointment
	subject, body := confirmationMessage(b)

	jobs := []struct {
		channel string
		run     func(context.Context) error
	}{
		{channelDoctorCalendar, func(c context.Context) error {
			return s.gateway.ReserveDoctorSlot(c, appt.DoctorID, appt.StartTime, appt.EndTime)
		}},
		{channelRoomReservation, func(c context.Context) error {
			return s.gateway.ReserveRoom(c, appt.RoomID, appt.StartTime, appt.EndTime)
		}},
		{channelEmail, func(c context.Context) error {
			return s.gateway.SendConfirmation(c, b.patient.Email, subject, body)
		}},
	}

	for _, job := range jobs {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			jobCtx, cancel := context.WithTimeout(base, s.notifyTimeout)
			defer cancel()

			err := job.run(jobCtx)
			s.metrics.ObserveNotification(job.channel, err)
			if err != nil {
				s.log.WithContext(base).NotificationFailed(job.channel, appt.ID, err)
			}
		}()
	}
}

func confirmationMessage(b *booked) (string, string) {
	a := b.appointment
	body := fmt.Sprintf(
		"Dear %s,\n\nYour %s appointment (#%d) is confirmed.\n\nDoctor: %s\nRoom: %s\nFrom: %s\nUntil: %s\n",
		b.patient.Name,
		b.specialty,
		a.ID,
		b.doctor.Name,
		b.room.Name,
		a.StartTime.Format(time.RFC1123),
		a.EndTime.Format(time.RFC1123),
	)
	return confirmationSubject, body
}
