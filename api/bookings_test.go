package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) Book(ctx context.Context, input booking.BookInput) (*domain.Appointment, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

func (m *MockBookingUseCase) Cancel(ctx context.Context, code, reason string) (*domain.Appointment, error) {
	args := m.Called(ctx, code, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

func (m *MockBookingUseCase) CheckIn(ctx context.Context, code string) (*domain.Appointment, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

func (m *MockBookingUseCase) Lookup(ctx context.Context, code string) (*domain.Appointment, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

var slotStart = time.Date(2026, time.May, 4, 7, 0, 0, 0, time.UTC)

func sampleAppointment(status domain.AppointmentStatus) *domain.Appointment {
	return &domain.Appointment{
		ID: "a1", LocationID: "loc-1", ServiceID: "svc-1", ResourceID: "res-1", BookingCode: "TRM-ABC234",
		StartTime: slotStart, EndTime: slotStart.Add(15 * time.Minute), Status: status,
		Source: domain.AppointmentSourceOnline, CitizenName: "Anna", CitizenEmail: "anna@example.com",
	}
}

func newTestContext(method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func TestBookingHandler_create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/bookings", map[string]any{
		"location_id":   "loc-1",
		"service_id":    "svc-1",
		"slot_start":    "2026-05-04T09:00:00+02:00",
		"citizen_name":  "Anna",
		"citizen_email": "anna@example.com",
	})

	mockService.On("Book", c.Request.Context(), mock.MatchedBy(func(in booking.BookInput) bool {
		return in.LocationID == "loc-1" && in.SlotStart.Equal(slotStart) && in.CitizenName == "Anna"
	})).Return(sampleAppointment(domain.AppointmentStatusBooked), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response appointmentResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "TRM-ABC234", response.BookingCode)
	assert.Equal(t, string(domain.AppointmentStatusBooked), response.Status)
	assert.Equal(t, "2026-05-04T07:00:00Z", response.StartTime)

	mockService.AssertExpectations(t)
}

func TestBookingHandler_createBadJSON(t *testing.T) {
	handler := NewBookingHandler(&MockBookingUseCase{})

	c, w := newTestContext(http.MethodPost, "/bookings", nil)
	c.Request = httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader([]byte(`{"slot_start": "tomorrow"}`)))

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingHandler_createConflicts(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{domain.ErrSlotContested, http.StatusConflict},
		{domain.ErrSlotUnavailable, http.StatusConflict},
		{domain.ErrContactRequired, http.StatusBadRequest},
	} {
		mockService := &MockBookingUseCase{}
		handler := NewBookingHandler(mockService)
		c, w := newTestContext(http.MethodPost, "/bookings", map[string]any{"location_id": "loc-1"})
		mockService.On("Book", c.Request.Context(), mock.Anything).Return(nil, tc.err)

		handler.create(c)

		assert.Equal(t, tc.code, w.Code, tc.err.Error())
		var response errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, tc.err.Error(), response.Error)
	}
}

func TestBookingHandler_get(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newTestContext(http.MethodGet, "/bookings/TRM-NOPE22", nil)
	c.Params = gin.Params{{Key: "code", Value: "TRM-NOPE22"}}
	mockService.On("Lookup", c.Request.Context(), "TRM-NOPE22").
		Return(nil, fmt.Errorf("appointment TRM-NOPE22: %w", domain.ErrNotFound))

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_cancel(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	code := "TRM-ABC234"
	c, w := newTestContext(http.MethodDelete, "/bookings/"+code+"?reason=sick", nil)
	c.Params = gin.Params{{Key: "code", Value: code}}

	cancelledAt := slotStart.Add(-48 * time.Hour)
	appt := sampleAppointment(domain.AppointmentStatusCancelled)
	appt.CancelReason = "sick"
	appt.CancelledAt = &cancelledAt

	mockService.On("Cancel", c.Request.Context(), code, "sick").Return(appt, nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var response appointmentResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, string(domain.AppointmentStatusCancelled), response.Status)
	require.NotNil(t, response.CancelledAt)
	assert.Equal(t, "2026-05-02T07:00:00Z", *response.CancelledAt)

	mockService.AssertExpectations(t)
}

func TestBookingHandler_cancelPastDeadline(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newTestContext(http.MethodDelete, "/bookings/TRM-ABC234", nil)
	c.Params = gin.Params{{Key: "code", Value: "TRM-ABC234"}}
	mockService.On("Cancel", c.Request.Context(), "TRM-ABC234", "").Return(nil, domain.ErrPastCancelDeadline)

	handler.cancel(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestBookingHandler_checkIn(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService)

	c, w := newTestContext(http.MethodPost, "/bookings/TRM-ABC234/check-in", nil)
	c.Params = gin.Params{{Key: "code", Value: "TRM-ABC234"}}
	mockService.On("CheckIn", c.Request.Context(), "TRM-ABC234").Return(nil, errors.New("connection refused"))

	handler.checkIn(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestBookingHandler_routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := &MockBookingUseCase{}
	router := gin.New()
	NewBookingHandler(mockService).Register(router.Group("/api/v1/bookings"))

	mockService.On("CheckIn", mock.Anything, "TRM-ABC234").Return(sampleAppointment(domain.AppointmentStatusCheckedIn), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/TRM-ABC234/check-in", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}
