package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/jobs"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/Domenick1991/terminbooking/internal/service/booking"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WaitlistUseCase interface {
	// Join returns the new entry and its 1-based position in the service's queue.
	Join(ctx context.Context, input JoinInput) (*domain.WaitlistEntry, int, error)
	CancelEntry(ctx context.Context, id string) (*domain.WaitlistEntry, error)
	GetOffer(ctx context.Context, token string) (*domain.WaitlistEntry, error)
	// ConfirmOffer accepts or declines an open offer. The appointment is nil on decline.
	ConfirmOffer(ctx context.Context, token string, accept bool) (*domain.WaitlistEntry, *domain.Appointment, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, job jobs.Job) error
}

type Emitter interface {
	Emit(ev domain.TransitionEvent)
}

type SlotInvalidator interface {
	Invalidate(ctx context.Context, locationID, serviceID string, start time.Time)
}

type JoinInput struct {
	ServiceID  string  `json:"service_id"`
	LocationID *string `json:"location_id,omitempty"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Email      string  `json:"email"`
}

type Options struct {
	OfferWindow time.Duration
	CodePrefix  string
}

type WaitlistService struct {
	entries   repository.WaitlistRepository
	schedules repository.ScheduleRepository
	scheduler Scheduler
	slots     SlotInvalidator
	events    Emitter
	clock     clock.Clock
	opts      Options
	log       *zap.Logger
}

func NewWaitlistService(
	entries repository.WaitlistRepository,
	schedules repository.ScheduleRepository,
	scheduler Scheduler,
	slots SlotInvalidator,
	events Emitter,
	clk clock.Clock,
	opts Options,
	log *zap.Logger,
) *WaitlistService {
	if opts.OfferWindow <= 0 {
		opts.OfferWindow = 2 * time.Hour
	}
	if opts.CodePrefix == "" {
		opts.CodePrefix = "WL"
	}
	return &WaitlistService{
		entries:   entries,
		schedules: schedules,
		scheduler: scheduler,
		slots:     slots,
		events:    events,
		clock:     clk,
		opts:      opts,
		log:       log,
	}
}

func (s *WaitlistService) Join(ctx context.Context, input JoinInput) (*domain.WaitlistEntry, int, error) {
	switch {
	case input.ServiceID == "":
		return nil, 0, domain.ErrInvalidServiceID
	case strings.TrimSpace(input.Name) == "":
		return nil, 0, domain.ErrCitizenName
	case input.Email == "" && input.Phone == "":
		return nil, 0, domain.ErrContactRequired
	}
	if input.LocationID != nil && *input.LocationID == "" {
		input.LocationID = nil
	}
	if _, err := s.schedules.GetService(ctx, input.ServiceID); err != nil {
		return nil, 0, err
	}

	now := s.clock.Now()
	entry := &domain.WaitlistEntry{
		ServiceID:  input.ServiceID,
		LocationID: input.LocationID,
		Name:       strings.TrimSpace(input.Name),
		Phone:      input.Phone,
		Email:      input.Email,
		Status:     domain.WaitlistStatusWaiting,
		Token:      uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, 0, err
	}
	position, err := s.entries.Position(ctx, entry)
	if err != nil {
		return nil, 0, err
	}
	s.log.Info("waitlist joined", zap.String("entry_id", entry.ID), zap.Int("position", position))
	return entry, position, nil
}

func (s *WaitlistService) CancelEntry(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	current, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.entries.Transition(ctx, id,
		[]domain.WaitlistStatus{domain.WaitlistStatusWaiting, domain.WaitlistStatusOffered},
		domain.WaitlistStatusCancelled, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.emit(domain.EventWaitlistCancelled, cancelled)
	if current.Status == domain.WaitlistStatusOffered {
		s.release(ctx, current)
	}
	return cancelled, nil
}

func (s *WaitlistService) GetOffer(ctx context.Context, token string) (*domain.WaitlistEntry, error) {
	entry, err := s.entries.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if entry.Status == domain.WaitlistStatusExpired ||
		(entry.Status == domain.WaitlistStatusOffered && entry.OfferLapsed(s.clock.Now())) {
		return nil, domain.ErrOfferExpired
	}
	return entry, nil
}

func (s *WaitlistService) ConfirmOffer(ctx context.Context, token string, accept bool) (*domain.WaitlistEntry, *domain.Appointment, error) {
	entry, err := s.entries.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status == domain.WaitlistStatusExpired {
		return nil, nil, domain.ErrOfferExpired
	}
	if entry.Status != domain.WaitlistStatusOffered {
		return nil, nil, fmt.Errorf("waitlist entry is %s: %w", entry.Status, domain.ErrInvalidTransition)
	}
	now := s.clock.Now()
	if entry.OfferLapsed(now) {
		if err := s.expire(ctx, entry); err != nil {
			return nil, nil, err
		}
		return nil, nil, domain.ErrOfferExpired
	}

	if !accept {
		declined, err := s.entries.Transition(ctx, entry.ID,
			[]domain.WaitlistStatus{domain.WaitlistStatusOffered}, domain.WaitlistStatusDeclined, now)
		if err != nil {
			return nil, nil, err
		}
		s.emit(domain.EventWaitlistDeclined, declined)
		s.release(ctx, entry)
		return declined, nil, nil
	}

	slot, ok := entry.OfferedSlot()
	if !ok || slot.LocationID == nil {
		return nil, nil, fmt.Errorf("waitlist entry %s has no offered slot: %w", entry.ID, domain.ErrInvalidTransition)
	}
	resourceID, err := s.schedules.FindResource(ctx, *slot.LocationID, slot.ServiceID)
	if err != nil {
		return nil, nil, err
	}

	appt := &domain.Appointment{
		LocationID:   *slot.LocationID,
		ServiceID:    slot.ServiceID,
		ResourceID:   resourceID,
		StartTime:    slot.Start,
		EndTime:      slot.End,
		Status:       domain.AppointmentStatusBooked,
		Source:       domain.AppointmentSourceWaitlist,
		CitizenName:  entry.Name,
		CitizenEmail: entry.Email,
		CitizenPhone: entry.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var confirmed *domain.WaitlistEntry
	err = booking.CreateWithCode(ctx, func(ctx context.Context, a *domain.Appointment) error {
		var err error
		confirmed, err = s.entries.Confirm(ctx, entry.ID, now, a)
		return err
	}, appt, s.opts.CodePrefix)
	if err != nil {
		return nil, nil, err
	}

	s.slots.Invalidate(ctx, appt.LocationID, appt.ServiceID, appt.StartTime)
	s.emit(domain.EventWaitlistConfirmed, confirmed)
	if s.events != nil {
		s.events.Emit(domain.TransitionEvent{
			Type:        domain.EventAppointmentCreated,
			LocationID:  appt.LocationID,
			OccurredAt:  now,
			Appointment: appt,
		})
	}
	s.log.Info("waitlist offer accepted",
		zap.String("entry_id", entry.ID),
		zap.String("booking_code", appt.BookingCode),
	)
	return confirmed, appt, nil
}

// OnSlotFreed offers the slot to the longest waiting matching entry and
// schedules the offer's expiry. It returns nil when nobody is offered.
func (s *WaitlistService) OnSlotFreed(ctx context.Context, slot domain.FreedSlot) (*domain.WaitlistEntry, error) {
	now := s.clock.Now()
	if !slot.Start.After(now) {
		return nil, nil
	}

	entry, err := s.entries.OfferNext(ctx, slot, now, now.Add(s.opts.OfferWindow))
	if err != nil {
		return nil, err
	}
	if entry == nil {
		s.log.Debug("freed slot left to the general pool",
			zap.String("service_id", slot.ServiceID),
			zap.Time("start", slot.Start),
		)
		return nil, nil
	}

	job := jobs.Job{ID: uuid.NewString(), Type: jobs.TypeExpireOffer, EntryID: entry.ID, ExecuteAt: *entry.ExpiresAt}
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		if revertErr := s.entries.RevertOffer(context.WithoutCancel(ctx), entry.ID, s.clock.Now()); revertErr != nil {
			s.log.Error("revert offer failed", zap.String("entry_id", entry.ID), zap.Error(revertErr))
		}
		return nil, fmt.Errorf("schedule offer expiry: %w", err)
	}

	if slot.LocationID != nil {
		s.slots.Invalidate(ctx, *slot.LocationID, slot.ServiceID, slot.Start)
	}
	s.emit(domain.EventWaitlistOffered, entry)
	s.log.Info("waitlist offer sent",
		zap.String("entry_id", entry.ID),
		zap.Time("expires_at", *entry.ExpiresAt),
	)
	return entry, nil
}

// ExpireOffer runs when an offer's window closes. Entries that already left
// OFFERED are skipped, so replays are harmless.
func (s *WaitlistService) ExpireOffer(ctx context.Context, entryID string) error {
	entry, err := s.entries.Get(ctx, entryID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	if entry.Status != domain.WaitlistStatusOffered {
		return nil
	}
	if entry.ExpiresAt != nil && s.clock.Now().Before(*entry.ExpiresAt) {
		return s.scheduler.Schedule(ctx, jobs.Job{
			ID: uuid.NewString(), Type: jobs.TypeExpireOffer, EntryID: entry.ID, ExecuteAt: *entry.ExpiresAt,
		})
	}
	return s.expire(ctx, entry)
}

func (s *WaitlistService) expire(ctx context.Context, entry *domain.WaitlistEntry) error {
	expired, err := s.entries.Transition(ctx, entry.ID,
		[]domain.WaitlistStatus{domain.WaitlistStatusOffered}, domain.WaitlistStatusExpired, s.clock.Now())
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	s.emit(domain.EventWaitlistExpired, expired)
	s.release(ctx, entry)
	return nil
}

// release reopens the slot an entry held and passes it down the waitlist.
func (s *WaitlistService) release(ctx context.Context, held *domain.WaitlistEntry) {
	slot, ok := held.OfferedSlot()
	if !ok {
		return
	}
	if slot.LocationID != nil {
		s.slots.Invalidate(ctx, *slot.LocationID, slot.ServiceID, slot.Start)
	}
	if err := s.EnqueueMatch(ctx, slot); err != nil {
		s.log.Error("enqueue waitlist match failed", zap.String("entry_id", held.ID), zap.Error(err))
	}
}

// EnqueueMatch queues a match for the slot instead of running it inline, so
// a decline or expiry cascade survives restarts.
func (s *WaitlistService) EnqueueMatch(ctx context.Context, slot domain.FreedSlot) error {
	return s.scheduler.Schedule(ctx, jobs.Job{
		ID:        uuid.NewString(),
		Type:      jobs.TypeMatchSlot,
		Slot:      &slot,
		ExecuteAt: s.clock.Now(),
	})
}

// HandleJob is the jobs consumer entry point.
func (s *WaitlistService) HandleJob(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobs.TypeMatchSlot:
		if job.Slot == nil {
			return nil
		}
		_, err := s.OnSlotFreed(ctx, *job.Slot)
		return err
	case jobs.TypeExpireOffer:
		return s.ExpireOffer(ctx, job.EntryID)
	default:
		s.log.Warn("unknown job type", zap.String("type", string(job.Type)))
		return nil
	}
}

func (s *WaitlistService) emit(t domain.EventType, entry *domain.WaitlistEntry) {
	if s.events == nil {
		return
	}
	loc := ""
	switch {
	case entry.OfferedLocationID != nil:
		loc = *entry.OfferedLocationID
	case entry.LocationID != nil:
		loc = *entry.LocationID
	}
	s.events.Emit(domain.TransitionEvent{Type: t, LocationID: loc, OccurredAt: s.clock.Now(), Entry: entry})
}

var (
	_ WaitlistUseCase = (*WaitlistService)(nil)
	_ booking.Matcher = (*WaitlistService)(nil)
)
