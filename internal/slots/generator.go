// Package slots derives bookable time slots from calendar windows and the
// starts of already committed bookings. It never reads a clock: filtering
// slots that lie in the past is up to the caller.
package slots

import (
	"time"

	"github.com/Domenick1991/terminbooking/internal/calendar"
	"github.com/Domenick1991/terminbooking/internal/domain"
)

type Config struct {
	LocationID string
	ServiceID  string

	DurationMinutes   int
	BufferMinutes     int
	SlotBufferMinutes int
	MaxParallel       int
}

// ConfigFor assembles a generator config from a service and the tenant-wide slot buffer.
func ConfigFor(locationID string, svc *domain.Service, slotBufferMinutes int) Config {
	return Config{
		LocationID:        locationID,
		ServiceID:         svc.ID,
		DurationMinutes:   svc.DurationMinutes,
		BufferMinutes:     svc.BufferMinutes,
		SlotBufferMinutes: slotBufferMinutes,
		MaxParallel:       svc.MaxParallelBookings,
	}
}

func (c Config) duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

func (c Config) interval() time.Duration {
	return time.Duration(c.DurationMinutes+c.BufferMinutes+c.SlotBufferMinutes) * time.Minute
}

func (c Config) maxParallel() int {
	if c.MaxParallel < 1 {
		return 1
	}
	return c.MaxParallel
}

// Generate lists the open slots of every calendar day between from and to
// (inclusive, read in the resolver's zone), in chronological order.
func Generate(r *calendar.Resolver, cfg Config, from, to time.Time, booked []time.Time) []domain.Slot {
	if cfg.DurationMinutes <= 0 || cfg.interval() <= 0 {
		return nil
	}
	loc := r.Location()
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	last := time.Date(ty, tm, td, 0, 0, 0, 0, loc)

	var out []domain.Slot
	for day := time.Date(fy, fm, fd, 0, 0, 0, 0, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		out = append(out, generateDay(r, cfg, day, booked)...)
	}
	return out
}

// GenerateDay is Generate for the single calendar day containing date.
func GenerateDay(r *calendar.Resolver, cfg Config, date time.Time, booked []time.Time) []domain.Slot {
	return Generate(r, cfg, date, date, booked)
}

func generateDay(r *calendar.Resolver, cfg Config, day time.Time, booked []time.Time) []domain.Slot {
	var out []domain.Slot
	dur := cfg.duration()
	step := cfg.interval()
	limit := cfg.maxParallel()

	for _, w := range r.WindowsFor(day) {
		for start := w.Start; !start.Add(dur).After(w.End); start = start.Add(step) {
			end := start.Add(dur)
			if countOverlapping(start, end, booked, dur) >= limit {
				continue
			}
			out = append(out, domain.Slot{
				LocationID: cfg.LocationID,
				ServiceID:  cfg.ServiceID,
				StartTime:  start,
				EndTime:    end,
			})
		}
	}
	return out
}

// countOverlapping counts bookings whose [start, start+dur) intersects
// [slotStart, slotEnd). Touching intervals do not overlap.
func countOverlapping(slotStart, slotEnd time.Time, booked []time.Time, dur time.Duration) int {
	n := 0
	for _, b := range booked {
		if b.Before(slotEnd) && b.Add(dur).After(slotStart) {
			n++
		}
	}
	return n
}

// IsAvailable reports whether a slot starting exactly at start is currently open.
func IsAvailable(r *calendar.Resolver, cfg Config, start time.Time, booked []time.Time) bool {
	end := start.Add(cfg.duration())
	for _, s := range GenerateDay(r, cfg, start, booked) {
		if s.StartTime.Equal(start) && s.EndTime.Equal(end) {
			return true
		}
	}
	return false
}
