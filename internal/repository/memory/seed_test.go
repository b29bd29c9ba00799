package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
locations:
  - id: loc-1
    timezone: Europe/Berlin
    windows:
      - {day: Monday, open: "08:00", close: "16:00", break_start: "12:00", break_end: "13:00"}
      - {day: friday, open: "08:00", close: "12:00"}
    closed_days:
      - {date: "2026-12-24", recurring: true, name: Christmas Eve}
services:
  - {id: svc-1, name: Passport, duration_minutes: 15, max_parallel_bookings: 1}
resources:
  - {id: res-1, location_id: loc-1, services: [svc-1]}
`

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	store := NewStore()
	require.NoError(t, store.LoadSeedFile(path))

	schedule, err := store.Schedules().GetSchedule(ctx, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", schedule.Timezone)
	require.Len(t, schedule.Windows, 2)
	assert.Equal(t, time.Monday, schedule.Windows[0].DayOfWeek)
	assert.Equal(t, domain.TimeOfDay(8*60), schedule.Windows[0].OpenTime)
	require.NotNil(t, schedule.Windows[0].BreakStart)
	assert.Equal(t, domain.TimeOfDay(12*60), *schedule.Windows[0].BreakStart)
	assert.Nil(t, schedule.Windows[1].BreakStart)
	require.Len(t, schedule.ClosedDays, 1)
	assert.True(t, schedule.ClosedDays[0].Matches(2027, time.December, 24))

	svc, err := store.Schedules().GetService(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, 15, svc.DurationMinutes)

	resourceID, err := store.Schedules().FindResource(ctx, "loc-1", "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "res-1", resourceID)
}

func TestApply_RejectsInvalidSeed(t *testing.T) {
	cases := map[string]Seed{
		"weekday":  {Locations: []SeedLocation{{ID: "loc-1", Windows: []SeedWindow{{Day: "Funday", Open: "08:00", Close: "12:00"}}}}},
		"time":     {Locations: []SeedLocation{{ID: "loc-1", Windows: []SeedWindow{{Day: "monday", Open: "8am", Close: "12:00"}}}}},
		"timezone": {Locations: []SeedLocation{{ID: "loc-1", Timezone: "Mars/Olympus"}}},
		"duration": {Services: []SeedService{{ID: "svc-1"}}},
	}
	for name, seed := range cases {
		store := NewStore()
		assert.Error(t, store.Apply(seed), name)
		_, err := store.Schedules().GetSchedule(ctx, "loc-1")
		assert.ErrorIs(t, err, domain.ErrNotFound, name)
	}
}
