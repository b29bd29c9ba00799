// Package calendar turns a location's opening hours and closed days into the
// time windows that can hold appointments on a given day.
package calendar

import (
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
)

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

type Resolver struct {
	windows map[time.Weekday]domain.CalendarWindow
	closed  []domain.ClosedDay
	loc     *time.Location
}

// NewResolver builds a resolver evaluating all wall-clock rules in loc. When
// two rules exist for a weekday the last one wins.
func NewResolver(windows []domain.CalendarWindow, closed []domain.ClosedDay, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	byDay := make(map[time.Weekday]domain.CalendarWindow, len(windows))
	for _, w := range windows {
		byDay[w.DayOfWeek] = w
	}
	return &Resolver{
		windows: byDay,
		closed:  append([]domain.ClosedDay(nil), closed...),
		loc:     loc,
	}
}

// ForSchedule is a convenience constructor, optionally merging public holidays
// for the given years into the closed days.
func ForSchedule(s *domain.LocationSchedule, holidayYears ...int) (*Resolver, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	closed := append([]domain.ClosedDay(nil), s.ClosedDays...)
	for _, y := range holidayYears {
		closed = append(closed, PublicHolidays(y)...)
	}
	return NewResolver(s.Windows, closed, loc), nil
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// IsClosed reports whether date, read in the resolver's zone, is a closed day.
func (r *Resolver) IsClosed(date time.Time) bool {
	y, m, d := date.In(r.loc).Date()
	for _, cd := range r.closed {
		if cd.Matches(y, m, d) {
			return true
		}
	}
	return false
}

// WindowsFor returns the ordered open windows of date's calendar day. A closed
// day or a weekday without a rule yields nil.
func (r *Resolver) WindowsFor(date time.Time) []Window {
	if r.IsClosed(date) {
		return nil
	}
	local := date.In(r.loc)
	rule, ok := r.windows[local.Weekday()]
	if !ok {
		return nil
	}

	y, m, d := local.Date()
	open := rule.OpenTime.On(y, m, d, r.loc)
	closeAt := rule.CloseTime.On(y, m, d, r.loc)

	if rule.BreakStart == nil || rule.BreakEnd == nil {
		return nonEmpty(Window{Start: open, End: closeAt})
	}

	breakStart := rule.BreakStart.On(y, m, d, r.loc)
	breakEnd := rule.BreakEnd.On(y, m, d, r.loc)
	return nonEmpty(
		Window{Start: open, End: minTime(breakStart, closeAt)},
		Window{Start: maxTime(breakEnd, open), End: closeAt},
	)
}

func nonEmpty(ws ...Window) []Window {
	var out []Window
	for _, w := range ws {
		if w.Start.Before(w.End) {
			out = append(out, w)
		}
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
