package api

import (
	"net/http"

	"github.com/Domenick1991/terminbooking/internal/service/availability"
	"github.com/gin-gonic/gin"
)

type AvailabilityHandler struct {
	service availability.AvailabilityUseCase
}

func NewAvailabilityHandler(service availability.AvailabilityUseCase) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

func (h *AvailabilityHandler) Register(router *gin.RouterGroup) {
	router.GET("/slots", h.slots)
	router.GET("/days", h.days)
}

// GET /availability/slots?location_id=..&service_id=..&date=2006-01-02
func (h *AvailabilityHandler) slots(c *gin.Context) {
	slots, err := h.service.AvailableSlots(c.Request.Context(), c.Query("location_id"), c.Query("service_id"), c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

// GET /availability/days?location_id=..&service_id=..&month=2006-01
func (h *AvailabilityHandler) days(c *gin.Context) {
	days, err := h.service.AvailableDays(c.Request.Context(), c.Query("location_id"), c.Query("service_id"), c.Query("month"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}
