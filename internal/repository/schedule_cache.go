package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedScheduleRepository keeps schedules and services in a bounded,
// expiring LRU. Calendar configuration changes rarely and is read on every
// availability query and admission.
type CachedScheduleRepository struct {
	next      ScheduleRepository
	schedules *expirable.LRU[string, *domain.LocationSchedule]
	services  *expirable.LRU[string, *domain.Service]
}

func NewCachedScheduleRepository(next ScheduleRepository, size int, ttl time.Duration) *CachedScheduleRepository {
	return &CachedScheduleRepository{
		next:      next,
		schedules: expirable.NewLRU[string, *domain.LocationSchedule](size, nil, ttl),
		services:  expirable.NewLRU[string, *domain.Service](size, nil, ttl),
	}
}

func (c *CachedScheduleRepository) GetSchedule(ctx context.Context, locationID string) (*domain.LocationSchedule, error) {
	if s, ok := c.schedules.Get(locationID); ok {
		return s, nil
	}
	s, err := c.next.GetSchedule(ctx, locationID)
	if err != nil {
		return nil, err
	}
	c.schedules.Add(locationID, s)
	return s, nil
}

func (c *CachedScheduleRepository) GetService(ctx context.Context, serviceID string) (*domain.Service, error) {
	if s, ok := c.services.Get(serviceID); ok {
		return s, nil
	}
	s, err := c.next.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	c.services.Add(serviceID, s)
	return s, nil
}

// FindResource is not cached: resources can be deactivated at any time.
func (c *CachedScheduleRepository) FindResource(ctx context.Context, locationID, serviceID string) (string, error) {
	return c.next.FindResource(ctx, locationID, serviceID)
}

var _ ScheduleRepository = (*CachedScheduleRepository)(nil)
