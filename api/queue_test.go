package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/queue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockQueueUseCase struct {
	mock.Mock
}

func (m *MockQueueUseCase) IssueTicket(ctx context.Context, input queue.IssueInput) (*domain.QueueTicket, error) {
	args := m.Called(ctx, input)
	t, _ := args.Get(0).(*domain.QueueTicket)
	return t, args.Error(1)
}

func (m *MockQueueUseCase) CallNext(ctx context.Context, locationID, resourceID, counterLabel string) (*domain.QueueTicket, error) {
	args := m.Called(ctx, locationID, resourceID, counterLabel)
	t, _ := args.Get(0).(*domain.QueueTicket)
	return t, args.Error(1)
}

func (m *MockQueueUseCase) StartServing(ctx context.Context, ticketID string) (*domain.QueueTicket, error) {
	args := m.Called(ctx, ticketID)
	t, _ := args.Get(0).(*domain.QueueTicket)
	return t, args.Error(1)
}

func (m *MockQueueUseCase) Complete(ctx context.Context, ticketID string) (*domain.QueueTicket, error) {
	args := m.Called(ctx, ticketID)
	t, _ := args.Get(0).(*domain.QueueTicket)
	return t, args.Error(1)
}

func (m *MockQueueUseCase) Status(ctx context.Context, locationID string) (*domain.QueueStatus, error) {
	args := m.Called(ctx, locationID)
	s, _ := args.Get(0).(*domain.QueueStatus)
	return s, args.Error(1)
}

func sampleTicket(status domain.TicketStatus) *domain.QueueTicket {
	return &domain.QueueTicket{
		ID: "t1", LocationID: "loc-1", ServiceID: "svc-1", TicketNumber: "A007", Prefix: "A", Sequence: 7,
		Status: status, EstimatedWaitMinutes: 30, IssuedAt: slotStart,
	}
}

func TestQueueHandler_issue(t *testing.T) {
	mockService := &MockQueueUseCase{}
	handler := NewQueueHandler(mockService)

	input := queue.IssueInput{LocationID: "loc-1", ServiceID: "svc-1", Priority: 5}
	c, w := newTestContext(http.MethodPost, "/queue/tickets", input)
	mockService.On("IssueTicket", c.Request.Context(), input).Return(sampleTicket(domain.TicketStatusWaiting), nil)

	handler.issue(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response ticketResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "A007", response.TicketNumber)
	assert.Equal(t, 30, response.EstimatedWaitMinutes)
	mockService.AssertExpectations(t)
}

func TestQueueHandler_callNext(t *testing.T) {
	mockService := &MockQueueUseCase{}
	handler := NewQueueHandler(mockService)

	req := callNextRequest{LocationID: "loc-1", ResourceID: "res-1", CounterLabel: "Desk 3"}
	c, w := newTestContext(http.MethodPost, "/queue/call-next", req)
	called := sampleTicket(domain.TicketStatusCalled)
	called.CounterLabel = "Desk 3"
	mockService.On("CallNext", c.Request.Context(), "loc-1", "res-1", "Desk 3").Return(called, nil).Once()

	handler.callNext(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response ticketResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "CALLED", response.Status)
	assert.Equal(t, "Desk 3", response.CounterLabel)

	c, w = newTestContext(http.MethodPost, "/queue/call-next", req)
	mockService.On("CallNext", c.Request.Context(), "loc-1", "res-1", "Desk 3").Return(nil, nil).Once()

	handler.callNext(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, w.Body.String())
}

func TestQueueHandler_startInvalidTransition(t *testing.T) {
	mockService := &MockQueueUseCase{}
	handler := NewQueueHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/queue/tickets/t1/start", nil)
	c.Params = gin.Params{{Key: "id", Value: "t1"}}
	mockService.On("StartServing", c.Request.Context(), "t1").Return(nil, domain.ErrInvalidTransition)

	handler.start(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueHandler_complete(t *testing.T) {
	mockService := &MockQueueUseCase{}
	handler := NewQueueHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/queue/tickets/t1/complete", nil)
	c.Params = gin.Params{{Key: "id", Value: "t1"}}
	mockService.On("Complete", c.Request.Context(), "t1").Return(sampleTicket(domain.TicketStatusCompleted), nil)

	handler.complete(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestQueueHandler_status(t *testing.T) {
	mockService := &MockQueueUseCase{}
	handler := NewQueueHandler(mockService)

	c, w := newTestContext(http.MethodGet, "/queue/status?location_id=loc-1", nil)
	mockService.On("Status", c.Request.Context(), "loc-1").Return(&domain.QueueStatus{
		LocationID: "loc-1",
		Summary:    domain.QueueSummary{Waiting: 1, Completed: 2, Total: 3},
		Tickets:    []domain.QueueTicket{*sampleTicket(domain.TicketStatusWaiting)},
	}, nil)

	handler.status(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response queueStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 3, response.Summary.Total)
	require.Len(t, response.Tickets, 1)
	assert.Equal(t, "A007", response.Tickets[0].TicketNumber)
}
