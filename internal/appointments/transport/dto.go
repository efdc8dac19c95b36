package transport

import (
	"time"

	"clinic_booking_backend/internal/appointments/domain"
)

// Default and maximum page sizes for listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// BookAppointmentRequest is the request body for booking an appointment.
// Start and end are pointers so a missing value is reported as an invalid
// window rather than the zero time.
type BookAppointmentRequest struct {
	Specialty    string     `json:"specialty" validate:"required,min=1,max=100"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	PatientEmail string     `json:"patientEmail" validate:"required,email,max=320"`
	PatientName  string     `json:"patientName" validate:"required,min=1,max=200"`
	PatientPhone *string    `json:"patientPhone,omitempty" validate:"omitempty,min=4,max=32"`
}

// ListAppointmentsRequest is the query parameters for listing appointments
type ListAppointmentsRequest struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// Normalize fills in paging defaults.
func (r *ListAppointmentsRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
}

// Offset is the number of rows to skip for the requested page.
func (r ListAppointmentsRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// ListDoctorsRequest filters the doctor directory.
type ListDoctorsRequest struct {
	Specialty string `form:"specialty" validate:"omitempty,max=100"`
}

// AppointmentResponse is the response body for an appointment
type AppointmentResponse struct {
	AppointmentID int64                    `json:"appointmentId"`
	DoctorID      int64                    `json:"doctorId"`
	RoomID        int64                    `json:"roomId"`
	PatientID     int64                    `json:"patientId"`
	StartTime     time.Time                `json:"startTime"`
	EndTime       time.Time                `json:"endTime"`
	Status        domain.AppointmentStatus `json:"status"`
}

// AppointmentListResponse is the paginated response for listing appointments
type AppointmentListResponse struct {
	Items      []AppointmentResponse `json:"items"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	TotalPages int                   `json:"totalPages"`
}

// DoctorResponse describes a doctor in the directory listing.
type DoctorResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

// RoomResponse describes a room in the directory listing.
type RoomResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// ToAppointmentResponse maps a persisted appointment to its wire form.
func ToAppointmentResponse(a domain.Appointment) AppointmentResponse {
	return AppointmentResponse{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		RoomID:        a.RoomID,
		PatientID:     a.PatientID,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status,
	}
}
