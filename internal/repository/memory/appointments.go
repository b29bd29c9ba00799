package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/google/uuid"
)

type AppointmentRepository struct {
	s *Store
}

func (r *AppointmentRepository) Create(ctx context.Context, appt *domain.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertAppointment(appt)
}

// insertAppointment expects the write lock to be held.
func (s *Store) insertAppointment(appt *domain.Appointment) error {
	if _, exists := s.appointments[appt.BookingCode]; exists {
		return domain.ErrDuplicateBookingCode
	}
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	a := *appt
	s.appointments[appt.BookingCode] = &a
	return nil
}

func (r *AppointmentRepository) GetByCode(ctx context.Context, code string) (*domain.Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.appointments[code]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", code, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *AppointmentRepository) BookedStarts(ctx context.Context, locationID, serviceID string, from, to time.Time) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	inRange := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }

	starts := make([]time.Time, 0)
	for _, a := range r.s.appointments {
		if a.LocationID == locationID && a.ServiceID == serviceID && a.Status.OccupiesSlot() && inRange(a.StartTime) {
			starts = append(starts, a.StartTime)
		}
	}
	for _, e := range r.s.entries {
		if e.Status != domain.WaitlistStatusOffered || e.ServiceID != serviceID || e.OfferedSlotStart == nil {
			continue
		}
		if e.OfferedLocationID != nil && *e.OfferedLocationID == locationID && inRange(*e.OfferedSlotStart) {
			starts = append(starts, *e.OfferedSlotStart)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts, nil
}

func (r *AppointmentRepository) Cancel(ctx context.Context, code, reason string, at time.Time) (*domain.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[code]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", code, domain.ErrNotFound)
	}
	switch a.Status {
	case domain.AppointmentStatusCancelled, domain.AppointmentStatusCompleted,
		domain.AppointmentStatusInProgress, domain.AppointmentStatusNoShow:
		return nil, fmt.Errorf("appointment %s is %s: %w", code, a.Status, domain.ErrAlreadyTerminal)
	}

	a.Status = domain.AppointmentStatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &at
	a.UpdatedAt = at
	cp := *a
	return &cp, nil
}

func (r *AppointmentRepository) CheckIn(ctx context.Context, code string, at time.Time) (*domain.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.appointments[code]
	if !ok {
		return nil, fmt.Errorf("appointment %s: %w", code, domain.ErrNotFound)
	}
	if a.Status != domain.AppointmentStatusBooked && a.Status != domain.AppointmentStatusConfirmed {
		return nil, fmt.Errorf("appointment %s is %s: %w", code, a.Status, domain.ErrInvalidTransition)
	}

	a.Status = domain.AppointmentStatusCheckedIn
	a.CheckedInAt = &at
	a.UpdatedAt = at
	cp := *a
	return &cp, nil
}

var _ repository.AppointmentRepository = (*AppointmentRepository)(nil)
