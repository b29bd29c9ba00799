package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/waitlist"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWaitlistUseCase struct {
	mock.Mock
}

func (m *MockWaitlistUseCase) Join(ctx context.Context, input waitlist.JoinInput) (*domain.WaitlistEntry, int, error) {
	args := m.Called(ctx, input)
	e, _ := args.Get(0).(*domain.WaitlistEntry)
	return e, args.Int(1), args.Error(2)
}

func (m *MockWaitlistUseCase) CancelEntry(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*domain.WaitlistEntry)
	return e, args.Error(1)
}

func (m *MockWaitlistUseCase) GetOffer(ctx context.Context, token string) (*domain.WaitlistEntry, error) {
	args := m.Called(ctx, token)
	e, _ := args.Get(0).(*domain.WaitlistEntry)
	return e, args.Error(1)
}

func (m *MockWaitlistUseCase) ConfirmOffer(ctx context.Context, token string, accept bool) (*domain.WaitlistEntry, *domain.Appointment, error) {
	args := m.Called(ctx, token, accept)
	e, _ := args.Get(0).(*domain.WaitlistEntry)
	a, _ := args.Get(1).(*domain.Appointment)
	return e, a, args.Error(2)
}

func sampleEntry(status domain.WaitlistStatus) *domain.WaitlistEntry {
	return &domain.WaitlistEntry{ID: "e1", ServiceID: "svc-1", Name: "Ben", Email: "ben@example.com", Status: status, Token: "tok-1"}
}

func TestWaitlistHandler_join(t *testing.T) {
	mockService := &MockWaitlistUseCase{}
	handler := NewWaitlistHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/waitlist", map[string]any{"service_id": "svc-1", "name": "Ben", "email": "ben@example.com"})
	mockService.On("Join", c.Request.Context(), waitlist.JoinInput{ServiceID: "svc-1", Name: "Ben", Email: "ben@example.com"}).
		Return(sampleEntry(domain.WaitlistStatusWaiting), 3, nil)

	handler.join(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response entryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 3, response.Position)
	assert.Equal(t, "tok-1", response.Token)
	mockService.AssertExpectations(t)
}

func TestWaitlistHandler_cancel(t *testing.T) {
	mockService := &MockWaitlistUseCase{}
	handler := NewWaitlistHandler(mockService)

	c, w := newTestContext(http.MethodDelete, "/waitlist/e1", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	mockService.On("CancelEntry", c.Request.Context(), "e1").Return(sampleEntry(domain.WaitlistStatusCancelled), nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response entryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Empty(t, response.Token, "the token is only returned on join")
}

func TestWaitlistHandler_offerExpired(t *testing.T) {
	mockService := &MockWaitlistUseCase{}
	handler := NewWaitlistHandler(mockService)

	c, w := newTestContext(http.MethodGet, "/waitlist/offers/tok-1", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}
	mockService.On("GetOffer", c.Request.Context(), "tok-1").Return(nil, domain.ErrOfferExpired)

	handler.offer(c)

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestWaitlistHandler_confirm(t *testing.T) {
	mockService := &MockWaitlistUseCase{}
	handler := NewWaitlistHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/waitlist/offers/tok-1", map[string]any{"accept": true})
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	start := slotStart
	end := start.Add(15 * time.Minute)
	entry := sampleEntry(domain.WaitlistStatusConfirmed)
	entry.OfferedSlotStart, entry.OfferedSlotEnd = &start, &end
	appt := sampleAppointment(domain.AppointmentStatusBooked)
	appt.BookingCode, appt.Source = "WL-ABC234", domain.AppointmentSourceWaitlist
	mockService.On("ConfirmOffer", c.Request.Context(), "tok-1", true).Return(entry, appt, nil)

	handler.confirm(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response confirmOfferResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "CONFIRMED", response.Entry.Status)
	require.NotNil(t, response.Appointment)
	assert.Equal(t, "WL-ABC234", response.Appointment.BookingCode)
	assert.Equal(t, "WAITLIST", response.Appointment.Source)
}

func TestWaitlistHandler_confirmRequiresDecision(t *testing.T) {
	mockService := &MockWaitlistUseCase{}
	handler := NewWaitlistHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/waitlist/offers/tok-1", map[string]any{})
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	handler.confirm(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "ConfirmOffer", mock.Anything, mock.Anything, mock.Anything)
}
