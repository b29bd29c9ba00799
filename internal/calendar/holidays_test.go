package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEaster(t *testing.T) {
	cases := map[int]time.Time{
		2024: time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		2025: time.Date(2025, time.April, 20, 0, 0, 0, 0, time.UTC),
		2026: time.Date(2026, time.April, 5, 0, 0, 0, 0, time.UTC),
	}
	for year, want := range cases {
		assert.Equal(t, want, Easter(year), "year %d", year)
	}
}

func TestPublicHolidays(t *testing.T) {
	days := PublicHolidays(2026)
	assert.Len(t, days, 9)

	var recurring int
	for _, d := range days {
		if d.Recurring {
			recurring++
		}
	}
	assert.Equal(t, 5, recurring)
	assert.Contains(t, days[len(days)-1].Name, "Whit Monday")
	assert.Equal(t, time.Date(2026, time.May, 25, 0, 0, 0, 0, time.UTC), days[len(days)-1].Date)
}
