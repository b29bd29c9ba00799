package queue

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"go.uber.org/zap"
)

type QueueUseCase interface {
	IssueTicket(ctx context.Context, input IssueInput) (*domain.QueueTicket, error)
	// CallNext returns nil when no ticket is eligible for the resource.
	CallNext(ctx context.Context, locationID, resourceID, counterLabel string) (*domain.QueueTicket, error)
	StartServing(ctx context.Context, ticketID string) (*domain.QueueTicket, error)
	Complete(ctx context.Context, ticketID string) (*domain.QueueTicket, error)
	Status(ctx context.Context, locationID string) (*domain.QueueStatus, error)
}

// Counter hands out ticket prefixes and daily sequence numbers shared by all instances.
type Counter interface {
	TicketPrefix(ctx context.Context, locationID, serviceID string) (string, error)
	NextTicketSequence(ctx context.Context, locationID, prefix string, day time.Time) (int64, error)
}

type Emitter interface {
	Emit(ev domain.TransitionEvent)
}

type IssueInput struct {
	LocationID  string `json:"location_id"`
	ServiceID   string `json:"service_id"`
	CitizenName string `json:"citizen_name"`
	Priority    int    `json:"priority"`
}

type QueueService struct {
	tickets   repository.QueueRepository
	schedules repository.ScheduleRepository
	counter   Counter
	events    Emitter
	clock     clock.Clock
	log       *zap.Logger
}

func NewQueueService(
	tickets repository.QueueRepository,
	schedules repository.ScheduleRepository,
	counter Counter,
	events Emitter,
	clk clock.Clock,
	log *zap.Logger,
) *QueueService {
	return &QueueService{
		tickets:   tickets,
		schedules: schedules,
		counter:   counter,
		events:    events,
		clock:     clk,
		log:       log,
	}
}

// today returns the local midnight opening the location's current day.
func (s *QueueService) today(ctx context.Context, locationID string) (time.Time, error) {
	schedule, err := s.schedules.GetSchedule(ctx, locationID)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := schedule.Location()
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := s.clock.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}

func (s *QueueService) IssueTicket(ctx context.Context, input IssueInput) (*domain.QueueTicket, error) {
	if input.LocationID == "" {
		return nil, domain.ErrInvalidLocationID
	}
	if input.ServiceID == "" {
		return nil, domain.ErrInvalidServiceID
	}
	svc, err := s.schedules.GetService(ctx, input.ServiceID)
	if err != nil {
		return nil, err
	}
	day, err := s.today(ctx, input.LocationID)
	if err != nil {
		return nil, err
	}

	prefix, err := s.counter.TicketPrefix(ctx, input.LocationID, input.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("resolve ticket prefix: %w", err)
	}
	seq, err := s.counter.NextTicketSequence(ctx, input.LocationID, prefix, day)
	if err != nil {
		return nil, fmt.Errorf("next ticket sequence: %w", err)
	}
	ahead, err := s.tickets.CountActive(ctx, input.LocationID, input.ServiceID, day)
	if err != nil {
		return nil, err
	}

	ticket := &domain.QueueTicket{
		LocationID:           input.LocationID,
		ServiceID:            input.ServiceID,
		TicketNumber:         domain.FormatTicketNumber(prefix, seq),
		Prefix:               prefix,
		Sequence:             seq,
		Priority:             input.Priority,
		Status:               domain.TicketStatusWaiting,
		CitizenName:          input.CitizenName,
		EstimatedWaitMinutes: ahead * svc.DurationMinutes,
		IssuedAt:             s.clock.Now(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.emit(domain.EventTicketIssued, ticket)
	s.log.Info("ticket issued",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("location_id", ticket.LocationID),
		zap.Int("estimated_wait_minutes", ticket.EstimatedWaitMinutes),
	)
	return ticket, nil
}

func (s *QueueService) CallNext(ctx context.Context, locationID, resourceID, counterLabel string) (*domain.QueueTicket, error) {
	if locationID == "" {
		return nil, domain.ErrInvalidLocationID
	}
	if resourceID == "" {
		return nil, domain.ErrInvalidResourceID
	}
	day, err := s.today(ctx, locationID)
	if err != nil {
		return nil, err
	}

	called, noShows, err := s.tickets.CallNext(ctx, repository.CallNextParams{
		LocationID:   locationID,
		ResourceID:   resourceID,
		CounterLabel: counterLabel,
		Since:        day,
		At:           s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if called == nil {
		return nil, nil
	}

	for i := range noShows {
		s.emit(domain.EventTicketNoShow, &noShows[i])
		s.log.Info("ticket not collected", zap.String("ticket_number", noShows[i].TicketNumber))
	}
	s.emit(domain.EventTicketCalled, called)
	s.log.Info("ticket called",
		zap.String("ticket_number", called.TicketNumber),
		zap.String("counter", counterLabel),
	)
	return called, nil
}

func (s *QueueService) StartServing(ctx context.Context, ticketID string) (*domain.QueueTicket, error) {
	return s.advance(ctx, ticketID, domain.TicketStatusInService, domain.EventTicketServing, domain.TicketStatusCalled)
}

func (s *QueueService) Complete(ctx context.Context, ticketID string) (*domain.QueueTicket, error) {
	return s.advance(ctx, ticketID, domain.TicketStatusCompleted, domain.EventTicketCompleted,
		domain.TicketStatusCalled, domain.TicketStatusInService)
}

// advance moves a ticket to `to`. A ticket already there is returned as is.
func (s *QueueService) advance(ctx context.Context, id string, to domain.TicketStatus, ev domain.EventType, from ...domain.TicketStatus) (*domain.QueueTicket, error) {
	current, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}
	if !slices.Contains(from, current.Status) {
		return nil, fmt.Errorf("ticket %s is %s: %w", current.TicketNumber, current.Status, domain.ErrInvalidTransition)
	}

	ticket, err := s.tickets.Transition(ctx, id, from, to, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.emit(ev, ticket)
	return ticket, nil
}

// Status summarises today's queue. Tickets holds the live ones, ordered by
// status and then by call order.
func (s *QueueService) Status(ctx context.Context, locationID string) (*domain.QueueStatus, error) {
	if locationID == "" {
		return nil, domain.ErrInvalidLocationID
	}
	day, err := s.today(ctx, locationID)
	if err != nil {
		return nil, err
	}
	all, err := s.tickets.ListSince(ctx, locationID, day)
	if err != nil {
		return nil, err
	}

	status := &domain.QueueStatus{LocationID: locationID, Tickets: make([]domain.QueueTicket, 0)}
	for _, t := range all {
		switch t.Status {
		case domain.TicketStatusWaiting:
			status.Summary.Waiting++
		case domain.TicketStatusCalled:
			status.Summary.Called++
		case domain.TicketStatusInService:
			status.Summary.InService++
		case domain.TicketStatusCompleted:
			status.Summary.Completed++
		case domain.TicketStatusNoShow:
			status.Summary.NoShow++
		}
		status.Summary.Total++

		if t.Status == domain.TicketStatusWaiting || t.Status == domain.TicketStatusCalled || t.Status == domain.TicketStatusInService {
			status.Tickets = append(status.Tickets, t)
		}
	}
	sort.SliceStable(status.Tickets, func(i, j int) bool {
		a, b := &status.Tickets[i], &status.Tickets[j]
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		return domain.CallsBefore(a, b)
	})
	return status, nil
}

func (s *QueueService) emit(t domain.EventType, ticket *domain.QueueTicket) {
	if s.events == nil {
		return
	}
	s.events.Emit(domain.TransitionEvent{
		Type:       t,
		LocationID: ticket.LocationID,
		OccurredAt: s.clock.Now(),
		Ticket:     ticket,
	})
}

var _ QueueUseCase = (*QueueService)(nil)
