package api

import (
	"errors"
	"net/http"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/waitlist"
	"github.com/gin-gonic/gin"
)

type WaitlistHandler struct {
	service waitlist.WaitlistUseCase
}

type joinWaitlistRequest struct {
	ServiceID  string  `json:"service_id"`
	LocationID *string `json:"location_id"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Email      string  `json:"email"`
}

type confirmOfferRequest struct {
	Accept *bool `json:"accept"`
}

type entryResponse struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	ServiceID        string  `json:"service_id"`
	LocationID       *string `json:"location_id,omitempty"`
	Name             string  `json:"name"`
	Position         int     `json:"position,omitempty"`
	Token            string  `json:"token,omitempty"`
	OfferedLocation  *string `json:"offered_location_id,omitempty"`
	OfferedSlotStart *string `json:"offered_slot_start,omitempty"`
	OfferedSlotEnd   *string `json:"offered_slot_end,omitempty"`
	ExpiresAt        *string `json:"expires_at,omitempty"`
}

type confirmOfferResponse struct {
	Entry       entryResponse        `json:"entry"`
	Appointment *appointmentResponse `json:"appointment,omitempty"`
}

var errAcceptRequired = errors.New("accept is required")

func toEntryResponse(e *domain.WaitlistEntry) entryResponse {
	return entryResponse{
		ID:               e.ID,
		Status:           string(e.Status),
		ServiceID:        e.ServiceID,
		LocationID:       e.LocationID,
		Name:             e.Name,
		OfferedLocation:  e.OfferedLocationID,
		OfferedSlotStart: formatTime(e.OfferedSlotStart),
		OfferedSlotEnd:   formatTime(e.OfferedSlotEnd),
		ExpiresAt:        formatTime(e.ExpiresAt),
	}
}

func NewWaitlistHandler(service waitlist.WaitlistUseCase) *WaitlistHandler {
	return &WaitlistHandler{service: service}
}

func (h *WaitlistHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.join)
	router.DELETE("/:id", h.cancel)
	router.GET("/offers/:token", h.offer)
	router.POST("/offers/:token", h.confirm)
}

func (h *WaitlistHandler) join(c *gin.Context) {
	var req joinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry, position, err := h.service.Join(c.Request.Context(), waitlist.JoinInput{
		ServiceID:  req.ServiceID,
		LocationID: req.LocationID,
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      req.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	resp := toEntryResponse(entry)
	resp.Position = position
	resp.Token = entry.Token
	c.JSON(http.StatusCreated, resp)
}

func (h *WaitlistHandler) cancel(c *gin.Context) {
	entry, err := h.service.CancelEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (h *WaitlistHandler) offer(c *gin.Context) {
	entry, err := h.service.GetOffer(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (h *WaitlistHandler) confirm(c *gin.Context) {
	var req confirmOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Accept == nil {
		badRequest(c, errAcceptRequired)
		return
	}

	entry, appt, err := h.service.ConfirmOffer(c.Request.Context(), c.Param("token"), *req.Accept)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := confirmOfferResponse{Entry: toEntryResponse(entry)}
	if appt != nil {
		a := toAppointmentResponse(appt)
		resp.Appointment = &a
	}
	c.JSON(http.StatusOK, resp)
}
