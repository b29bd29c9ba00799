package calendar

import (
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
)

var fixedHolidays = []struct {
	month time.Month
	day   int
	name  string
}{
	{time.January, 1, "New Year's Day"},
	{time.May, 1, "Labour Day"},
	{time.October, 3, "German Unity Day"},
	{time.December, 25, "Christmas Day"},
	{time.December, 26, "Boxing Day"},
}

var easterOffsets = []struct {
	days int
	name string
}{
	{-2, "Good Friday"},
	{1, "Easter Monday"},
	{39, "Ascension Day"},
	{50, "Whit Monday"},
}

// PublicHolidays returns the nationwide German public holidays of year.
// Fixed-date holidays are recurring, Easter-based ones are exact dates.
func PublicHolidays(year int) []domain.ClosedDay {
	out := make([]domain.ClosedDay, 0, len(fixedHolidays)+len(easterOffsets))
	for _, h := range fixedHolidays {
		out = append(out, domain.ClosedDay{
			Date:      time.Date(year, h.month, h.day, 0, 0, 0, 0, time.UTC),
			Recurring: true,
			Name:      h.name,
		})
	}
	easter := Easter(year)
	for _, h := range easterOffsets {
		out = append(out, domain.ClosedDay{
			Date: easter.AddDate(0, 0, h.days),
			Name: h.name,
		})
	}
	return out
}

// Easter computes Easter Sunday of the Gregorian calendar (anonymous algorithm).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
