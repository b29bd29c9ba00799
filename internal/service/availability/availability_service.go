package availability

import (
	"context"
	"time"

	"github.com/Domenick1991/terminbooking/internal/calendar"
	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
	"github.com/Domenick1991/terminbooking/internal/slots"
	"go.uber.org/zap"
)

type AvailabilityUseCase interface {
	// AvailableSlots lists the bookable slots of a day ("2006-01-02", read in
	// the location's timezone).
	AvailableSlots(ctx context.Context, locationID, serviceID, day string) ([]domain.Slot, error)
	// AvailableDays counts bookable slots per day of a month ("2006-01").
	AvailableDays(ctx context.Context, locationID, serviceID, month string) ([]DayAvailability, error)
}

type SlotCache interface {
	GetSlots(ctx context.Context, locationID, serviceID, day string) ([]domain.Slot, bool, error)
	SetSlots(ctx context.Context, locationID, serviceID, day string, slots []domain.Slot) error
	InvalidateSlots(ctx context.Context, locationID, serviceID, day string) error
}

type DayAvailability struct {
	Date  string `json:"date"`
	Slots int    `json:"slots"`
}

type Options struct {
	SlotBufferMinutes int
	// Slots starting at or before now+MinAdvance are not offered.
	MinAdvance time.Duration
	// Slots starting after now+MaxAdvance are not offered.
	MaxAdvance     time.Duration
	PublicHolidays bool
}

type AvailabilityService struct {
	schedules    repository.ScheduleRepository
	appointments repository.AppointmentRepository
	cache        SlotCache
	clock        clock.Clock
	opts         Options
	log          *zap.Logger
}

// NewAvailabilityService accepts a nil cache.
func NewAvailabilityService(
	schedules repository.ScheduleRepository,
	appointments repository.AppointmentRepository,
	cache SlotCache,
	clk clock.Clock,
	opts Options,
	log *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		schedules:    schedules,
		appointments: appointments,
		cache:        cache,
		clock:        clk,
		opts:         opts,
		log:          log,
	}
}

// plan is everything needed to generate slots of one service at one location.
type plan struct {
	resolver *calendar.Resolver
	cfg      slots.Config
	service  *domain.Service
	loc      *time.Location
}

func (s *AvailabilityService) plan(ctx context.Context, locationID, serviceID string, years ...int) (*plan, error) {
	schedule, err := s.schedules.GetSchedule(ctx, locationID)
	if err != nil {
		return nil, err
	}
	svc, err := s.schedules.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if !s.opts.PublicHolidays {
		years = nil
	}
	resolver, err := calendar.ForSchedule(schedule, years...)
	if err != nil {
		return nil, err
	}
	return &plan{
		resolver: resolver,
		cfg:      slots.ConfigFor(locationID, svc, s.opts.SlotBufferMinutes),
		service:  svc,
		loc:      resolver.Location(),
	}, nil
}

func (s *AvailabilityService) location(ctx context.Context, locationID string) (*time.Location, error) {
	schedule, err := s.schedules.GetSchedule(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return schedule.Location()
}

func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *AvailabilityService) AvailableSlots(ctx context.Context, locationID, serviceID, day string) ([]domain.Slot, error) {
	if locationID == "" {
		return nil, domain.ErrInvalidLocationID
	}
	if serviceID == "" {
		return nil, domain.ErrInvalidServiceID
	}
	loc, err := s.location(ctx, locationID)
	if err != nil {
		return nil, err
	}
	date, err := time.ParseInLocation(time.DateOnly, day, loc)
	if err != nil {
		return nil, domain.ErrInvalidDate
	}

	if s.cache != nil {
		if cached, ok, err := s.cache.GetSlots(ctx, locationID, serviceID, day); err == nil && ok {
			return s.bookable(cached), nil
		} else if err != nil {
			s.log.Warn("slot cache read failed", zap.String("location_id", locationID), zap.Error(err))
		}
	}

	p, err := s.plan(ctx, locationID, serviceID, date.Year())
	if err != nil {
		return nil, err
	}
	from, to := dayBounds(date, p.loc)
	booked, err := s.appointments.BookedStarts(ctx, locationID, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	open := slots.GenerateDay(p.resolver, p.cfg, date, booked)

	if s.cache != nil {
		if err := s.cache.SetSlots(ctx, locationID, serviceID, day, open); err != nil {
			s.log.Warn("slot cache write failed", zap.String("location_id", locationID), zap.Error(err))
		}
	}
	return s.bookable(open), nil
}

// bookable drops slots outside the advance booking window. The cache keeps
// the unfiltered day so entries stay valid as the clock moves.
func (s *AvailabilityService) bookable(in []domain.Slot) []domain.Slot {
	now := s.clock.Now()
	out := make([]domain.Slot, 0, len(in))
	for _, slot := range in {
		if s.inWindow(slot.StartTime, now) {
			out = append(out, slot)
		}
	}
	return out
}

func (s *AvailabilityService) inWindow(start, now time.Time) bool {
	if !start.After(now.Add(s.opts.MinAdvance)) {
		return false
	}
	return s.opts.MaxAdvance <= 0 || !start.After(now.Add(s.opts.MaxAdvance))
}

func (s *AvailabilityService) AvailableDays(ctx context.Context, locationID, serviceID, month string) ([]DayAvailability, error) {
	if locationID == "" {
		return nil, domain.ErrInvalidLocationID
	}
	if serviceID == "" {
		return nil, domain.ErrInvalidServiceID
	}
	loc, err := s.location(ctx, locationID)
	if err != nil {
		return nil, err
	}
	first, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return nil, domain.ErrInvalidMonth
	}
	next := first.AddDate(0, 1, 0)

	p, err := s.plan(ctx, locationID, serviceID, first.Year())
	if err != nil {
		return nil, err
	}
	booked, err := s.appointments.BookedStarts(ctx, locationID, serviceID, first, next)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, slot := range s.bookable(slots.Generate(p.resolver, p.cfg, first, next.AddDate(0, 0, -1), booked)) {
		counts[slot.StartTime.In(p.loc).Format(time.DateOnly)]++
	}

	days := make([]DayAvailability, 0)
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		if n := counts[key]; n > 0 {
			days = append(days, DayAvailability{Date: key, Slots: n})
		}
	}
	return days, nil
}

// IsOpen re-validates a single slot against the store, bypassing the cache.
// It returns the service so the caller can derive the slot's end.
func (s *AvailabilityService) IsOpen(ctx context.Context, locationID, serviceID string, start time.Time) (*domain.Service, bool, error) {
	loc, err := s.location(ctx, locationID)
	if err != nil {
		return nil, false, err
	}
	p, err := s.plan(ctx, locationID, serviceID, start.In(loc).Year())
	if err != nil {
		return nil, false, err
	}
	if !s.inWindow(start, s.clock.Now()) {
		return p.service, false, nil
	}

	from, to := dayBounds(start, p.loc)
	booked, err := s.appointments.BookedStarts(ctx, locationID, serviceID, from, to)
	if err != nil {
		return nil, false, err
	}
	return p.service, slots.IsAvailable(p.resolver, p.cfg, start, booked), nil
}

// Invalidate drops the cached day containing start. Failures are logged:
// admission re-validates against the store, so a stale entry is harmless.
func (s *AvailabilityService) Invalidate(ctx context.Context, locationID, serviceID string, start time.Time) {
	if s.cache == nil {
		return
	}
	loc, err := s.location(ctx, locationID)
	if err != nil {
		s.log.Warn("slot cache invalidation skipped", zap.String("location_id", locationID), zap.Error(err))
		return
	}
	day := start.In(loc).Format(time.DateOnly)
	if err := s.cache.InvalidateSlots(ctx, locationID, serviceID, day); err != nil {
		s.log.Warn("slot cache invalidation failed",
			zap.String("location_id", locationID),
			zap.String("day", day),
			zap.Error(err),
		)
	}
}

var _ AvailabilityUseCase = (*AvailabilityService)(nil)
