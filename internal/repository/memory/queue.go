package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/google/uuid"
)

type QueueRepository struct {
	s *Store
}

func (r *QueueRepository) Create(ctx context.Context, t *domain.QueueTicket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	cp := *t
	r.s.tickets[t.ID] = &cp
	return nil
}

func (r *QueueRepository) Get(ctx context.Context, id string) (*domain.QueueTicket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (r *QueueRepository) CountActive(ctx context.Context, locationID, serviceID string, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, t := range r.s.tickets {
		if t.LocationID != locationID || t.ServiceID != serviceID || t.IssuedAt.Before(since) {
			continue
		}
		if t.Status == domain.TicketStatusWaiting || t.Status == domain.TicketStatusCalled {
			n++
		}
	}
	return n, nil
}

func (r *QueueRepository) CallNext(ctx context.Context, p repository.CallNextParams) (*domain.QueueTicket, []domain.QueueTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var next *domain.QueueTicket
	for _, t := range r.s.tickets {
		if t.LocationID != p.LocationID || t.Status != domain.TicketStatusWaiting || t.IssuedAt.Before(p.Since) {
			continue
		}
		if !r.s.resourceServes(p.ResourceID, t.ServiceID) {
			continue
		}
		if next == nil || domain.CallsBefore(t, next) {
			next = t
		}
	}
	if next == nil {
		return nil, nil, nil
	}

	var noShows []domain.QueueTicket
	for _, t := range r.s.tickets {
		if t.ServingResourceID == p.ResourceID && t.Status == domain.TicketStatusCalled {
			t.Status = domain.TicketStatusNoShow
			noShows = append(noShows, *t)
		}
	}

	at := p.At
	next.Status = domain.TicketStatusCalled
	next.CalledAt = &at
	next.ServingResourceID = p.ResourceID
	next.CounterLabel = p.CounterLabel
	called := *next
	return &called, noShows, nil
}

func (r *QueueRepository) Transition(ctx context.Context, id string, from []domain.TicketStatus, to domain.TicketStatus, at time.Time) (*domain.QueueTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	if !slices.Contains(from, t.Status) {
		return nil, fmt.Errorf("ticket %s is %s, cannot move to %s: %w", t.TicketNumber, t.Status, to, domain.ErrInvalidTransition)
	}

	t.Status = to
	switch to {
	case domain.TicketStatusInService:
		t.ServedAt = &at
	case domain.TicketStatusCompleted:
		t.CompletedAt = &at
	}
	cp := *t
	return &cp, nil
}

func (r *QueueRepository) ListSince(ctx context.Context, locationID string, since time.Time) ([]domain.QueueTicket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	tickets := make([]domain.QueueTicket, 0)
	for _, t := range r.s.tickets {
		if t.LocationID == locationID && !t.IssuedAt.Before(since) {
			tickets = append(tickets, *t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return domain.CallsBefore(&tickets[i], &tickets[j]) })
	return tickets, nil
}

var _ repository.QueueRepository = (*QueueRepository)(nil)
