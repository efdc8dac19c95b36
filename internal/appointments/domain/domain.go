// Package domain holds the booking entities and the overlap rule shared by
// every store implementation.
package domain

import "time"

// ResourceKind names one of the two resources an appointment consumes.
type ResourceKind string

const (
	KindDoctor ResourceKind = "doctor"
	KindRoom   ResourceKind = "room"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

// StatusScheduled is the only status a booking can produce.
const StatusScheduled AppointmentStatus = "SCHEDULED"

// Doctor is a specialist who can be assigned to one appointment at a time.
type Doctor struct {
	ID        int64
	Name      string
	Specialty string
}

// Room is a physical room that hosts one appointment at a time.
type Room struct {
	ID       int64
	Name     string
	Location string
}

// Patient is identified by a unique, normalized email address.
type Patient struct {
	ID        int64
	Name      string
	Email     string
	Phone     *string
	CreatedAt time.Time
}

// Appointment binds a doctor, a room and a patient to a half-open window.
type Appointment struct {
	ID        int64
	DoctorID  int64
	RoomID    int64
	PatientID int64
	StartTime time.Time
	EndTime   time.Time
	Status    AppointmentStatus
	CreatedAt time.Time
}

// Window returns the appointment's time window.
func (a Appointment) Window() Window {
	return Window{Start: a.StartTime, End: a.EndTime}
}

// ResourceID returns the id of the resource of the given kind.
func (a Appointment) ResourceID(kind ResourceKind) int64 {
	if kind == KindDoctor {
		return a.DoctorID
	}
	return a.RoomID
}

// Resource is a doctor or room as seen by the locking protocol.
type Resource struct {
	Kind ResourceKind
	ID   int64
	Name string
}

// CandidateQuery selects free resources of one kind. Specialty only applies
// to doctors and is matched exactly.
type CandidateQuery struct {
	Kind      ResourceKind
	Specialty string
	Window    Window
}
