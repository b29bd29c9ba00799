package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ScheduleRepository reads the calendar configuration maintained by the
// administration side. Nothing here is written by the booking core.
type ScheduleRepository interface {
	GetSchedule(ctx context.Context, locationID string) (*domain.LocationSchedule, error)
	GetService(ctx context.Context, serviceID string) (*domain.Service, error)
	// FindResource picks an active resource of the location able to serve the service.
	FindResource(ctx context.Context, locationID, serviceID string) (string, error)
}

type PGScheduleRepository struct {
	db *pgxpool.Pool
}

func NewScheduleRepository(db *pgxpool.Pool) ScheduleRepository {
	return &PGScheduleRepository{db: db}
}

func (r *PGScheduleRepository) GetSchedule(ctx context.Context, locationID string) (*domain.LocationSchedule, error) {
	s := domain.LocationSchedule{LocationID: locationID}
	if err := r.db.QueryRow(ctx, `SELECT timezone FROM locations WHERE id=$1`, locationID).Scan(&s.Timezone); err != nil {
		return nil, notFound(err, "location "+locationID)
	}

	rows, err := r.db.Query(ctx, `SELECT day_of_week, open_time, close_time, break_start, break_end
		FROM opening_hours WHERE location_id=$1 ORDER BY day_of_week`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day                  int16
			open, closeAt        string
			breakStart, breakEnd *string
		)
		if err := rows.Scan(&day, &open, &closeAt, &breakStart, &breakEnd); err != nil {
			return nil, err
		}
		w, err := parseWindow(time.Weekday(day), open, closeAt, breakStart, breakEnd)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", locationID, err)
		}
		s.Windows = append(s.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	closedRows, err := r.db.Query(ctx, `SELECT date, recurring, name FROM closed_days WHERE location_id=$1 ORDER BY date`, locationID)
	if err != nil {
		return nil, err
	}
	defer closedRows.Close()

	for closedRows.Next() {
		var cd domain.ClosedDay
		if err := closedRows.Scan(&cd.Date, &cd.Recurring, &cd.Name); err != nil {
			return nil, err
		}
		s.ClosedDays = append(s.ClosedDays, cd)
	}
	return &s, closedRows.Err()
}

func parseWindow(day time.Weekday, open, closeAt string, breakStart, breakEnd *string) (domain.CalendarWindow, error) {
	w := domain.CalendarWindow{DayOfWeek: day}
	var err error
	if w.OpenTime, err = domain.ParseTimeOfDay(open); err != nil {
		return w, err
	}
	if w.CloseTime, err = domain.ParseTimeOfDay(closeAt); err != nil {
		return w, err
	}
	if breakStart != nil && breakEnd != nil {
		bs, err := domain.ParseTimeOfDay(*breakStart)
		if err != nil {
			return w, err
		}
		be, err := domain.ParseTimeOfDay(*breakEnd)
		if err != nil {
			return w, err
		}
		w.BreakStart, w.BreakEnd = &bs, &be
	}
	return w, nil
}

func (r *PGScheduleRepository) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	var s domain.Service
	err := r.db.QueryRow(ctx, `SELECT id, name, duration_minutes, buffer_minutes, max_parallel_bookings FROM services WHERE id=$1`, serviceID).
		Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.BufferMinutes, &s.MaxParallelBookings)
	if err != nil {
		return nil, notFound(err, "service "+serviceID)
	}
	return &s, nil
}

func (r *PGScheduleRepository) FindResource(ctx context.Context, locationID, serviceID string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT r.id FROM resources r
		JOIN resource_services rs ON rs.resource_id = r.id
		WHERE r.location_id=$1 AND rs.service_id=$2 AND r.is_active
		ORDER BY r.id LIMIT 1`, locationID, serviceID).Scan(&id)
	if err != nil {
		return "", notFound(err, "resource for service "+serviceID)
	}
	return id, nil
}

var _ ScheduleRepository = (*PGScheduleRepository)(nil)
