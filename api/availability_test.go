package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/service/availability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAvailabilityUseCase struct {
	mock.Mock
}

func (m *MockAvailabilityUseCase) AvailableSlots(ctx context.Context, locationID, serviceID, day string) ([]domain.Slot, error) {
	args := m.Called(ctx, locationID, serviceID, day)
	slots, _ := args.Get(0).([]domain.Slot)
	return slots, args.Error(1)
}

func (m *MockAvailabilityUseCase) AvailableDays(ctx context.Context, locationID, serviceID, month string) ([]availability.DayAvailability, error) {
	args := m.Called(ctx, locationID, serviceID, month)
	days, _ := args.Get(0).([]availability.DayAvailability)
	return days, args.Error(1)
}

func TestAvailabilityHandler_slots(t *testing.T) {
	mockService := &MockAvailabilityUseCase{}
	handler := NewAvailabilityHandler(mockService)

	c, w := newTestContext(http.MethodGet, "/availability/slots?location_id=loc-1&service_id=svc-1&date=2026-05-04", nil)
	slots := []domain.Slot{{LocationID: "loc-1", ServiceID: "svc-1", StartTime: slotStart, EndTime: slotStart.Add(15 * time.Minute)}}
	mockService.On("AvailableSlots", c.Request.Context(), "loc-1", "svc-1", "2026-05-04").Return(slots, nil)

	handler.slots(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []domain.Slot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.True(t, response[0].StartTime.Equal(slotStart))
	mockService.AssertExpectations(t)
}

func TestAvailabilityHandler_slotsInvalidDate(t *testing.T) {
	mockService := &MockAvailabilityUseCase{}
	handler := NewAvailabilityHandler(mockService)

	c, w := newTestContext(http.MethodGet, "/availability/slots?location_id=loc-1&service_id=svc-1&date=04.05.2026", nil)
	mockService.On("AvailableSlots", c.Request.Context(), "loc-1", "svc-1", "04.05.2026").Return(nil, domain.ErrInvalidDate)

	handler.slots(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityHandler_days(t *testing.T) {
	mockService := &MockAvailabilityUseCase{}
	handler := NewAvailabilityHandler(mockService)

	c, w := newTestContext(http.MethodGet, "/availability/days?location_id=loc-1&service_id=svc-1&month=2026-05", nil)
	mockService.On("AvailableDays", c.Request.Context(), "loc-1", "svc-1", "2026-05").
		Return([]availability.DayAvailability{{Date: "2026-05-04", Slots: 21}}, nil)

	handler.days(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"date":"2026-05-04","slots":21}]`, w.Body.String())
}
