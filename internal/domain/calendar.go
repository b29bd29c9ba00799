package domain

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant at this wall-clock time on the given calendar day in loc.
func (t TimeOfDay) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour(), t.Minute(), 0, 0, loc)
}

// CalendarWindow is the opening-hours rule of a location for one weekday.
type CalendarWindow struct {
	DayOfWeek  time.Weekday
	OpenTime   TimeOfDay
	CloseTime  TimeOfDay
	BreakStart *TimeOfDay
	BreakEnd   *TimeOfDay
}

// ClosedDay closes a location for a whole day. Recurring entries match the
// month and day of every year.
type ClosedDay struct {
	Date      time.Time
	Recurring bool
	Name      string
}

// Matches compares by calendar components so the stored zone of Date does not matter.
func (c ClosedDay) Matches(year int, month time.Month, day int) bool {
	y, m, d := c.Date.Date()
	if c.Recurring {
		return m == month && d == day
	}
	return y == year && m == month && d == day
}

// LocationSchedule is the read-only calendar configuration of a location.
type LocationSchedule struct {
	LocationID string
	Timezone   string
	Windows    []CalendarWindow
	ClosedDays []ClosedDay
}

// Location resolves Timezone, falling back to UTC for an empty value.
func (s *LocationSchedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

type Service struct {
	ID                  string
	Name                string
	DurationMinutes     int
	BufferMinutes       int
	MaxParallelBookings int
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Slot is derived capacity, never persisted.
type Slot struct {
	LocationID string    `json:"location_id"`
	ServiceID  string    `json:"service_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// SlotKey identifies the unit guarded by the admission lock.
type SlotKey struct {
	LocationID string
	ServiceID  string
	Start      time.Time
}

// FreedSlot is capacity handed back by a cancellation or a lapsed offer.
type FreedSlot struct {
	ServiceID  string    `json:"service_id"`
	LocationID *string   `json:"location_id,omitempty"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}
