package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	Book(ctx context.Context, input BookInput) (*domain.Appointment, error)
	Cancel(ctx context.Context, code, reason string) (*domain.Appointment, error)
	CheckIn(ctx context.Context, code string) (*domain.Appointment, error)
	Lookup(ctx context.Context, code string) (*domain.Appointment, error)
}

type SlotLocker interface {
	AcquireSlotLock(ctx context.Context, key domain.SlotKey, owner string, ttl time.Duration) (bool, error)
	ReleaseSlotLock(ctx context.Context, key domain.SlotKey, owner string) error
}

type Availability interface {
	IsOpen(ctx context.Context, locationID, serviceID string, start time.Time) (*domain.Service, bool, error)
	Invalidate(ctx context.Context, locationID, serviceID string, start time.Time)
}

type Emitter interface {
	Emit(ev domain.TransitionEvent)
}

// Matcher hands a freed slot to the waitlist.
type Matcher interface {
	EnqueueMatch(ctx context.Context, slot domain.FreedSlot) error
}

type BookInput struct {
	LocationID   string    `json:"location_id"`
	ServiceID    string    `json:"service_id"`
	SlotStart    time.Time `json:"slot_start"`
	CitizenName  string    `json:"citizen_name"`
	CitizenEmail string    `json:"citizen_email"`
	CitizenPhone string    `json:"citizen_phone"`
	Notes        string    `json:"notes"`
}

func (in BookInput) validate() error {
	switch {
	case in.LocationID == "":
		return domain.ErrInvalidLocationID
	case in.ServiceID == "":
		return domain.ErrInvalidServiceID
	case in.SlotStart.IsZero():
		return domain.ErrInvalidSlotStart
	case strings.TrimSpace(in.CitizenName) == "":
		return domain.ErrCitizenName
	case in.CitizenEmail == "" && in.CitizenPhone == "":
		return domain.ErrContactRequired
	}
	return nil
}

type Options struct {
	LockTTL    time.Duration
	CancelLead time.Duration
	CodePrefix string
}

const codeAttempts = 5

type BookingService struct {
	appointments repository.AppointmentRepository
	schedules    repository.ScheduleRepository
	locker       SlotLocker
	availability Availability
	events       Emitter
	matcher      Matcher
	clock        clock.Clock
	opts         Options
	log          *zap.Logger
}

func NewBookingService(
	appointments repository.AppointmentRepository,
	schedules repository.ScheduleRepository,
	locker SlotLocker,
	availability Availability,
	events Emitter,
	matcher Matcher,
	clk clock.Clock,
	opts Options,
	log *zap.Logger,
) *BookingService {
	if opts.CodePrefix == "" {
		opts.CodePrefix = "TRM"
	}
	return &BookingService{
		appointments: appointments,
		schedules:    schedules,
		locker:       locker,
		availability: availability,
		events:       events,
		matcher:      matcher,
		clock:        clk,
		opts:         opts,
		log:          log,
	}
}

// Book admits a citizen to a slot. Concurrent attempts on the same slot fail
// fast with domain.ErrSlotContested; a slot found taken after locking yields
// domain.ErrSlotUnavailable.
func (s *BookingService) Book(ctx context.Context, input BookInput) (*domain.Appointment, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	key := domain.SlotKey{LocationID: input.LocationID, ServiceID: input.ServiceID, Start: input.SlotStart}
	owner := uuid.NewString()
	ok, err := s.locker.AcquireSlotLock(ctx, key, owner, s.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrSlotContested
	}
	defer func() {
		if err := s.locker.ReleaseSlotLock(context.WithoutCancel(ctx), key, owner); err != nil {
			s.log.Warn("release slot lock failed", zap.String("location_id", key.LocationID), zap.Error(err))
		}
	}()

	svc, open, err := s.availability.IsOpen(ctx, input.LocationID, input.ServiceID, input.SlotStart)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, domain.ErrSlotUnavailable
	}

	resourceID, err := s.schedules.FindResource(ctx, input.LocationID, input.ServiceID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	appt := &domain.Appointment{
		LocationID:   input.LocationID,
		ServiceID:    input.ServiceID,
		ResourceID:   resourceID,
		StartTime:    input.SlotStart,
		EndTime:      input.SlotStart.Add(svc.Duration()),
		Status:       domain.AppointmentStatusBooked,
		Source:       domain.AppointmentSourceOnline,
		CitizenName:  strings.TrimSpace(input.CitizenName),
		CitizenEmail: input.CitizenEmail,
		CitizenPhone: input.CitizenPhone,
		Notes:        input.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := CreateWithCode(ctx, s.appointments.Create, appt, s.opts.CodePrefix); err != nil {
		return nil, err
	}

	s.availability.Invalidate(ctx, appt.LocationID, appt.ServiceID, appt.StartTime)
	s.emit(domain.EventAppointmentCreated, appt)
	s.log.Info("appointment booked",
		zap.String("booking_code", appt.BookingCode),
		zap.String("location_id", appt.LocationID),
		zap.Time("start", appt.StartTime),
	)
	return appt, nil
}

// CreateWithCode assigns a fresh booking code to appt and stores it through
// create, drawing a new code whenever the previous one is taken.
func CreateWithCode(ctx context.Context, create func(context.Context, *domain.Appointment) error, appt *domain.Appointment, prefix string) error {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := domain.NewBookingCode(prefix)
		if err != nil {
			return err
		}
		appt.BookingCode = code
		err = create(ctx, appt)
		if errors.Is(err, domain.ErrDuplicateBookingCode) {
			continue
		}
		return err
	}
	return fmt.Errorf("no free booking code after %d attempts: %w", codeAttempts, domain.ErrDuplicateBookingCode)
}

func (s *BookingService) Cancel(ctx context.Context, code, reason string) (*domain.Appointment, error) {
	current, err := s.appointments.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.AppointmentStatusCancelled, domain.AppointmentStatusCompleted,
		domain.AppointmentStatusInProgress, domain.AppointmentStatusNoShow:
		return nil, domain.ErrAlreadyTerminal
	}
	now := s.clock.Now()
	if now.Add(s.opts.CancelLead).After(current.StartTime) {
		return nil, domain.ErrPastCancelDeadline
	}

	cancelled, err := s.appointments.Cancel(ctx, code, reason, now)
	if err != nil {
		return nil, err
	}

	s.availability.Invalidate(ctx, cancelled.LocationID, cancelled.ServiceID, cancelled.StartTime)
	s.emit(domain.EventAppointmentCancelled, cancelled)
	if s.matcher != nil {
		if err := s.matcher.EnqueueMatch(ctx, cancelled.FreedSlot()); err != nil {
			s.log.Error("enqueue waitlist match failed", zap.String("booking_code", code), zap.Error(err))
		}
	}
	s.log.Info("appointment cancelled", zap.String("booking_code", code))
	return cancelled, nil
}

func (s *BookingService) CheckIn(ctx context.Context, code string) (*domain.Appointment, error) {
	appt, err := s.appointments.CheckIn(ctx, code, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.emit(domain.EventAppointmentCheckedIn, appt)
	return appt, nil
}

func (s *BookingService) Lookup(ctx context.Context, code string) (*domain.Appointment, error) {
	return s.appointments.GetByCode(ctx, code)
}

func (s *BookingService) emit(t domain.EventType, appt *domain.Appointment) {
	if s.events == nil {
		return
	}
	s.events.Emit(domain.TransitionEvent{
		Type:        t,
		LocationID:  appt.LocationID,
		OccurredAt:  s.clock.Now(),
		Appointment: appt,
	})
}

var _ BookingUseCase = (*BookingService)(nil)
