package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	LocationID   string    `json:"location_id"`
	ServiceID    string    `json:"service_id"`
	SlotStart    time.Time `json:"slot_start"`
	CitizenName  string    `json:"citizen_name"`
	CitizenEmail string    `json:"citizen_email"`
	CitizenPhone string    `json:"citizen_phone"`
	Notes        string    `json:"notes"`
}

type appointmentResponse struct {
	BookingCode  string  `json:"booking_code"`
	Status       string  `json:"status"`
	Source       string  `json:"source"`
	LocationID   string  `json:"location_id"`
	ServiceID    string  `json:"service_id"`
	ResourceID   string  `json:"resource_id"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	CitizenName  string  `json:"citizen_name"`
	CitizenEmail string  `json:"citizen_email,omitempty"`
	CitizenPhone string  `json:"citizen_phone,omitempty"`
	CancelReason string  `json:"cancel_reason,omitempty"`
	CancelledAt  *string `json:"cancelled_at,omitempty"`
	CheckedInAt  *string `json:"checked_in_at,omitempty"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toAppointmentResponse(a *domain.Appointment) appointmentResponse {
	return appointmentResponse{
		BookingCode:  a.BookingCode,
		Status:       string(a.Status),
		Source:       string(a.Source),
		LocationID:   a.LocationID,
		ServiceID:    a.ServiceID,
		ResourceID:   a.ResourceID,
		StartTime:    a.StartTime.Format(time.RFC3339),
		EndTime:      a.EndTime.Format(time.RFC3339),
		CitizenName:  a.CitizenName,
		CitizenEmail: a.CitizenEmail,
		CitizenPhone: a.CitizenPhone,
		CancelReason: a.CancelReason,
		CancelledAt:  formatTime(a.CancelledAt),
		CheckedInAt:  formatTime(a.CheckedInAt),
	}
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:code", h.get)
	router.DELETE("/:code", h.cancel)
	router.POST("/:code/check-in", h.checkIn)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	appt, err := h.service.Book(c.Request.Context(), booking.BookInput{
		LocationID:   req.LocationID,
		ServiceID:    req.ServiceID,
		SlotStart:    req.SlotStart,
		CitizenName:  req.CitizenName,
		CitizenEmail: req.CitizenEmail,
		CitizenPhone: req.CitizenPhone,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) get(c *gin.Context) {
	appt, err := h.service.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	appt, err := h.service.Cancel(c.Request.Context(), c.Param("code"), c.Query("reason"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) checkIn(c *gin.Context) {
	appt, err := h.service.CheckIn(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAppointmentResponse(appt))
}
