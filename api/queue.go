package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/queue"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	service queue.QueueUseCase
}

type issueTicketRequest struct {
	LocationID  string `json:"location_id"`
	ServiceID   string `json:"service_id"`
	CitizenName string `json:"citizen_name"`
	Priority    int    `json:"priority"`
}

type callNextRequest struct {
	LocationID   string `json:"location_id"`
	ResourceID   string `json:"resource_id"`
	CounterLabel string `json:"counter_label"`
}

type ticketResponse struct {
	ID                   string  `json:"id"`
	TicketNumber         string  `json:"ticket_number"`
	Status               string  `json:"status"`
	LocationID           string  `json:"location_id"`
	ServiceID            string  `json:"service_id"`
	Priority             int     `json:"priority"`
	EstimatedWaitMinutes int     `json:"estimated_wait_minutes"`
	CounterLabel         string  `json:"counter_label,omitempty"`
	IssuedAt             string  `json:"issued_at"`
	CalledAt             *string `json:"called_at,omitempty"`
	ServedAt             *string `json:"served_at,omitempty"`
	CompletedAt          *string `json:"completed_at,omitempty"`
}

type queueStatusResponse struct {
	LocationID string              `json:"location_id"`
	Summary    domain.QueueSummary `json:"summary"`
	Tickets    []ticketResponse    `json:"tickets"`
}

func toTicketResponse(t *domain.QueueTicket) ticketResponse {
	return ticketResponse{
		ID:                   t.ID,
		TicketNumber:         t.TicketNumber,
		Status:               string(t.Status),
		LocationID:           t.LocationID,
		ServiceID:            t.ServiceID,
		Priority:             t.Priority,
		EstimatedWaitMinutes: t.EstimatedWaitMinutes,
		CounterLabel:         t.CounterLabel,
		IssuedAt:             t.IssuedAt.Format(time.RFC3339),
		CalledAt:             formatTime(t.CalledAt),
		ServedAt:             formatTime(t.ServedAt),
		CompletedAt:          formatTime(t.CompletedAt),
	}
}

func NewQueueHandler(service queue.QueueUseCase) *QueueHandler {
	return &QueueHandler{service: service}
}

func (h *QueueHandler) Register(router *gin.RouterGroup) {
	router.POST("/tickets", h.issue)
	router.POST("/call-next", h.callNext)
	router.POST("/tickets/:id/start", h.start)
	router.POST("/tickets/:id/complete", h.complete)
	router.GET("/status", h.status)
}

func (h *QueueHandler) issue(c *gin.Context) {
	var req issueTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ticket, err := h.service.IssueTicket(c.Request.Context(), queue.IssueInput{
		LocationID:  req.LocationID,
		ServiceID:   req.ServiceID,
		CitizenName: req.CitizenName,
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTicketResponse(ticket))
}

func (h *QueueHandler) callNext(c *gin.Context) {
	var req callNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ticket, err := h.service.CallNext(c.Request.Context(), req.LocationID, req.ResourceID, req.CounterLabel)
	if err != nil {
		writeError(c, err)
		return
	}
	if ticket == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *QueueHandler) start(c *gin.Context) {
	ticket, err := h.service.StartServing(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *QueueHandler) complete(c *gin.Context) {
	ticket, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func (h *QueueHandler) status(c *gin.Context) {
	st, err := h.service.Status(c.Request.Context(), c.Query("location_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := queueStatusResponse{
		LocationID: st.LocationID,
		Summary:    st.Summary,
		Tickets:    make([]ticketResponse, 0, len(st.Tickets)),
	}
	for i := range st.Tickets {
		resp.Tickets = append(resp.Tickets, toTicketResponse(&st.Tickets[i]))
	}
	c.JSON(http.StatusOK, resp)
}
