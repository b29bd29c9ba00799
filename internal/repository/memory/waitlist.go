package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/google/uuid"
)

type WaitlistRepository struct {
	s *Store
}

func (r *WaitlistRepository) Create(ctx context.Context, e *domain.WaitlistEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	r.s.entries[e.ID] = &cp
	r.s.byToken[e.Token] = e.ID
	return nil
}

func (r *WaitlistRepository) Position(ctx context.Context, e *domain.WaitlistEntry) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, other := range r.s.entries {
		if other.ServiceID == e.ServiceID && other.Status == domain.WaitlistStatusWaiting && !waitsLonger(e, other) {
			n++
		}
	}
	return n, nil
}

// waitsLonger reports whether a joined strictly before b.
func waitsLonger(a, b *domain.WaitlistEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *WaitlistRepository) Get(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.entryCopy(id)
}

func (r *WaitlistRepository) GetByToken(ctx context.Context, token string) (*domain.WaitlistEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("waitlist entry: %w", domain.ErrNotFound)
	}
	return r.s.entryCopy(id)
}

func (s *Store) entryCopy(id string) (*domain.WaitlistEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (r *WaitlistRepository) OfferNext(ctx context.Context, slot domain.FreedSlot, offeredAt, expiresAt time.Time) (*domain.WaitlistEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var next *domain.WaitlistEntry
	for _, e := range r.s.entries {
		if e.ServiceID != slot.ServiceID {
			continue
		}
		if e.Status == domain.WaitlistStatusOffered && sameSlot(e, slot) {
			return nil, nil
		}
		if e.Status != domain.WaitlistStatusWaiting {
			continue
		}
		if e.LocationID != nil && (slot.LocationID == nil || *e.LocationID != *slot.LocationID) {
			continue
		}
		if next == nil || waitsLonger(e, next) {
			next = e
		}
	}
	if next == nil || r.s.slotFull(slot) {
		return nil, nil
	}

	start, end := slot.Start, slot.End
	offered, expires := offeredAt, expiresAt
	next.Status = domain.WaitlistStatusOffered
	next.OfferedLocationID = slot.LocationID
	next.OfferedSlotStart = &start
	next.OfferedSlotEnd = &end
	next.OfferedAt = &offered
	next.ExpiresAt = &expires
	next.UpdatedAt = offeredAt
	cp := *next
	return &cp, nil
}

// slotFull reports whether live appointments already use up the service's
// parallel capacity at the slot. Expects the lock to be held.
func (s *Store) slotFull(slot domain.FreedSlot) bool {
	if slot.LocationID == nil {
		return false
	}
	capacity := max(s.services[slot.ServiceID].MaxParallelBookings, 1)
	live := 0
	for _, a := range s.appointments {
		if a.LocationID == *slot.LocationID && a.ServiceID == slot.ServiceID &&
			a.StartTime.Equal(slot.Start) && a.Status.OccupiesSlot() {
			live++
		}
	}
	return live >= capacity
}

func sameSlot(e *domain.WaitlistEntry, slot domain.FreedSlot) bool {
	if e.OfferedSlotStart == nil || !e.OfferedSlotStart.Equal(slot.Start) {
		return false
	}
	a, b := "", ""
	if e.OfferedLocationID != nil {
		a = *e.OfferedLocationID
	}
	if slot.LocationID != nil {
		b = *slot.LocationID
	}
	return a == b
}

func (r *WaitlistRepository) RevertOffer(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.entries[id]
	if !ok || e.Status != domain.WaitlistStatusOffered {
		return nil
	}
	e.Status = domain.WaitlistStatusWaiting
	e.OfferedLocationID, e.OfferedSlotStart, e.OfferedSlotEnd = nil, nil, nil
	e.OfferedAt, e.ExpiresAt = nil, nil
	e.UpdatedAt = at
	return nil
}

func (r *WaitlistRepository) Transition(ctx context.Context, id string, from []domain.WaitlistStatus, to domain.WaitlistStatus, at time.Time) (*domain.WaitlistEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, err := r.s.transitionEntry(id, from, to, at)
	if err != nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

// transitionEntry expects the write lock to be held.
func (s *Store) transitionEntry(id string, from []domain.WaitlistStatus, to domain.WaitlistStatus, at time.Time) (*domain.WaitlistEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
	}
	if !slices.Contains(from, e.Status) {
		return nil, fmt.Errorf("waitlist entry is %s, cannot move to %s: %w", e.Status, to, domain.ErrInvalidTransition)
	}

	e.Status = to
	e.UpdatedAt = at
	switch to {
	case domain.WaitlistStatusDeclined:
		e.DeclinedAt = &at
	case domain.WaitlistStatusConfirmed:
		e.ConfirmedAt = &at
	}
	return e, nil
}

func (r *WaitlistRepository) Confirm(ctx context.Context, id string, at time.Time, appt *domain.Appointment) (*domain.WaitlistEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.entries[id]
	if !ok {
		return nil, fmt.Errorf("waitlist entry %s: %w", id, domain.ErrNotFound)
	}
	if current.Status != domain.WaitlistStatusOffered {
		return nil, fmt.Errorf("waitlist entry is %s, cannot move to %s: %w", current.Status, domain.WaitlistStatusConfirmed, domain.ErrInvalidTransition)
	}
	if err := r.s.insertAppointment(appt); err != nil {
		return nil, err
	}

	e, err := r.s.transitionEntry(id, []domain.WaitlistStatus{domain.WaitlistStatusOffered}, domain.WaitlistStatusConfirmed, at)
	if err != nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

var _ repository.WaitlistRepository = (*WaitlistRepository)(nil)
