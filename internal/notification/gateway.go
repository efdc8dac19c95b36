// Package notification delivers the side effects of a confirmed booking:
// the doctor's calendar entry, the room reservation, and the patient email.
package notification

import (
	"context"
	"time"

	"clinic_booking_backend/internal/email"
	"clinic_booking_backend/platform/config"
	"clinic_booking_backend/platform/logger"
)

// Config combines the settings of every notification backend.
type Config interface {
	config.SMTPConfig
	config.CalendarStorageConfig
	config.RoomReservationConfig
}

// DoctorCalendar records a reserved slot in a doctor's calendar.
type DoctorCalendar interface {
	ReserveDoctorSlot(ctx context.Context, doctorID int64, start, end time.Time) error
}

// RoomReserver books a room in the facilities system.
type RoomReserver interface {
	ReserveRoom(ctx context.Context, roomID int64, start, end time.Time) error
}

// Gateway performs notifications directly, in the calling goroutine.
// A nil calendar or room reserver only logs the request.
type Gateway struct {
	calendar DoctorCalendar
	rooms    RoomReserver
	mail     email.Sender
	log      *logger.Logger
}

// NewGateway builds a Gateway. A nil mail sender logs confirmations instead.
func NewGateway(calendar DoctorCalendar, rooms RoomReserver, mail email.Sender, log *logger.Logger) *Gateway {
	if mail == nil {
		mail = email.NewLogSender(log)
	}
	return &Gateway{calendar: calendar, rooms: rooms, mail: mail, log: log}
}

// ReserveDoctorSlot publishes the slot to the doctor calendar.
func (g *Gateway) ReserveDoctorSlot(ctx context.Context, doctorID int64, start, end time.Time) error {
	if g.calendar == nil {
		g.log.WithContext(ctx).Info("doctor calendar disabled, slot not published", "doctor_id", doctorID, "start", start, "end", end)
		return nil
	}
	return g.calendar.ReserveDoctorSlot(ctx, doctorID, start, end)
}

// ReserveRoom books the room with the external reservation system.
func (g *Gateway) ReserveRoom(ctx context.Context, roomID int64, start, end time.Time) error {
	if g.rooms == nil {
		g.log.WithContext(ctx).Info("room reservation disabled, room not booked externally", "room_id", roomID, "start", start, "end", end)
		return nil
	}
	return g.rooms.ReserveRoom(ctx, roomID, start, end)
}

// SendConfirmation emails the patient.
func (g *Gateway) SendConfirmation(ctx context.Context, toEmail, subject, body string) error {
	return g.mail.SendConfirmation(ctx, toEmail, subject, body)
}

// Build wires the configured backends. Unconfigured ones fall back to logging.
// The calendar bucket is created when missing.
func Build(ctx context.Context, cfg Config, log *logger.Logger) (*Gateway, error) {
	var calendar DoctorCalendar
	store, err := NewCalendarStore(cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		if err := store.EnsureBucketExists(ctx); err != nil {
			return nil, err
		}
		calendar = store
		log.Info("doctor calendar enabled", "bucket", cfg.GetCalendarBucket())
	}

	var rooms RoomReserver
	if client := NewRoomReservationClient(cfg, log); client != nil {
		rooms = client
		log.Info("room reservation enabled", "url", cfg.GetRoomReservationURL())
	}

	return NewGateway(calendar, rooms, email.NewSender(cfg, log), log), nil
}
