package memory

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"gopkg.in/yaml.v3"
)

// Seed is the reference data a memory store starts with.
type Seed struct {
	Locations []SeedLocation `yaml:"locations"`
	Services  []SeedService  `yaml:"services"`
	Resources []SeedResource `yaml:"resources"`
}

type SeedLocation struct {
	ID         string          `yaml:"id"`
	Timezone   string          `yaml:"timezone"`
	Windows    []SeedWindow    `yaml:"windows"`
	ClosedDays []SeedClosedDay `yaml:"closed_days"`
}

type SeedWindow struct {
	Day        string `yaml:"day"`
	Open       string `yaml:"open"`
	Close      string `yaml:"close"`
	BreakStart string `yaml:"break_start"`
	BreakEnd   string `yaml:"break_end"`
}

type SeedClosedDay struct {
	Date      string `yaml:"date"`
	Recurring bool   `yaml:"recurring"`
	Name      string `yaml:"name"`
}

type SeedService struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	DurationMinutes     int    `yaml:"duration_minutes"`
	BufferMinutes       int    `yaml:"buffer_minutes"`
	MaxParallelBookings int    `yaml:"max_parallel_bookings"`
}

type SeedResource struct {
	ID         string   `yaml:"id"`
	LocationID string   `yaml:"location_id"`
	Services   []string `yaml:"services"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// LoadSeedFile reads a YAML seed and applies it to the store.
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	return s.Apply(seed)
}

// Apply validates the whole seed before storing any of it.
func (s *Store) Apply(seed Seed) error {
	schedules := make([]domain.LocationSchedule, 0, len(seed.Locations))
	for _, l := range seed.Locations {
		schedule, err := l.schedule()
		if err != nil {
			return fmt.Errorf("location %s: %w", l.ID, err)
		}
		schedules = append(schedules, schedule)
	}
	for _, svc := range seed.Services {
		if svc.ID == "" || svc.DurationMinutes <= 0 {
			return fmt.Errorf("service %q: id and a positive duration are required", svc.ID)
		}
	}

	for _, schedule := range schedules {
		s.PutSchedule(schedule)
	}
	for _, svc := range seed.Services {
		s.PutService(domain.Service{
			ID:                  svc.ID,
			Name:                svc.Name,
			DurationMinutes:     svc.DurationMinutes,
			BufferMinutes:       svc.BufferMinutes,
			MaxParallelBookings: svc.MaxParallelBookings,
		})
	}
	for _, r := range seed.Resources {
		s.PutResource(r.ID, r.LocationID, r.Services...)
	}
	return nil
}

func (l SeedLocation) schedule() (domain.LocationSchedule, error) {
	schedule := domain.LocationSchedule{LocationID: l.ID, Timezone: l.Timezone}
	loc, err := schedule.Location()
	if err != nil {
		return schedule, err
	}

	for _, w := range l.Windows {
		day, ok := weekdays[strings.ToLower(w.Day)]
		if !ok {
			return schedule, fmt.Errorf("unknown weekday %q", w.Day)
		}
		window := domain.CalendarWindow{DayOfWeek: day}
		if window.OpenTime, err = domain.ParseTimeOfDay(w.Open); err != nil {
			return schedule, err
		}
		if window.CloseTime, err = domain.ParseTimeOfDay(w.Close); err != nil {
			return schedule, err
		}
		if w.BreakStart != "" && w.BreakEnd != "" {
			bs, err := domain.ParseTimeOfDay(w.BreakStart)
			if err != nil {
				return schedule, err
			}
			be, err := domain.ParseTimeOfDay(w.BreakEnd)
			if err != nil {
				return schedule, err
			}
			window.BreakStart, window.BreakEnd = &bs, &be
		}
		schedule.Windows = append(schedule.Windows, window)
	}

	for _, c := range l.ClosedDays {
		date, err := time.ParseInLocation(time.DateOnly, c.Date, loc)
		if err != nil {
			return schedule, fmt.Errorf("closed day %q: %w", c.Date, err)
		}
		schedule.ClosedDays = append(schedule.ClosedDays, domain.ClosedDay{Date: date, Recurring: c.Recurring, Name: c.Name})
	}
	return schedule, nil
}
