package handler

import (
	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/internal/appointments/service"
	"clinic_booking_backend/internal/appointments/transport"
	"clinic_booking_backend/platform/httpkit"
	"clinic_booking_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for appointments
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new appointments handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the appointment routes. limit guards the booking
// endpoint only; reads are not rate limited.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	appointments := rg.Group("/appointments")
	appointments.GET("", h.List)
	if limit != nil {
		appointments.POST("", limit, h.Book)
	} else {
		appointments.POST("", h.Book)
	}

	rg.GET("/doctors", h.ListDoctors)
	rg.GET("/rooms", h.ListRooms)
}

// Book handles POST /api/v1/appointments
func (h *Handler) Book(c *gin.Context) {
	var req transport.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, domain.ErrValidation(msgInvalidRequest, err.Error()))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, domain.ErrValidation(msgValidationFailed, validator.Details(err)))
		return
	}

	result, err := h.svc.Book(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, result)
}

// List handles GET /api/v1/appointments
func (h *Handler) List(c *gin.Context) {
	var req transport.ListAppointmentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.HandleError(c, domain.ErrValidation(msgInvalidRequest, err.Error()))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, domain.ErrValidation(msgValidationFailed, validator.Details(err)))
		return
	}

	result, err := h.svc.List(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

// ListDoctors handles GET /api/v1/doctors
func (h *Handler) ListDoctors(c *gin.Context) {
	var req transport.ListDoctorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.HandleError(c, domain.ErrValidation(msgInvalidRequest, err.Error()))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, domain.ErrValidation(msgValidationFailed, validator.Details(err)))
		return
	}

	result, err := h.svc.ListDoctors(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": result})
}

// ListRooms handles GET /api/v1/rooms
func (h *Handler) ListRooms(c *gin.Context) {
	result, err := h.svc.ListRooms(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": result})
}
