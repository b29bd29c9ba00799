package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/repository"
)

type ScheduleRepository struct {
	s *Store
}

func (r *ScheduleRepository) GetSchedule(ctx context.Context, locationID string) (*domain.LocationSchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	schedule, ok := r.s.schedules[locationID]
	if !ok {
		return nil, fmt.Errorf("location %s: %w", locationID, domain.ErrNotFound)
	}
	schedule.Windows = append([]domain.CalendarWindow(nil), schedule.Windows...)
	schedule.ClosedDays = append([]domain.ClosedDay(nil), schedule.ClosedDays...)
	return &schedule, nil
}

func (r *ScheduleRepository) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	svc, ok := r.s.services[serviceID]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", serviceID, domain.ErrNotFound)
	}
	return &svc, nil
}

func (r *ScheduleRepository) FindResource(ctx context.Context, locationID, serviceID string) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ids []string
	for _, res := range r.s.resources {
		if res.active && res.locationID == locationID && res.services[serviceID] {
			ids = append(ids, res.id)
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("resource for service %s: %w", serviceID, domain.ErrNotFound)
	}
	sort.Strings(ids)
	return ids[0], nil
}

var _ repository.ScheduleRepository = (*ScheduleRepository)(nil)
