// Package memory implements the repositories on in-process maps. It backs
// the "memory" database driver for single-instance development and the
// service tests. One mutex guards all tables so multi-table operations are
// atomic the way a database transaction would make them.
package memory

import (
	"sync"

	"github.com/Domenick1991/terminbooking/internal/domain"
)

type resource struct {
	id         string
	locationID string
	active     bool
	services   map[string]bool
}

type Store struct {
	mu sync.RWMutex

	schedules map[string]domain.LocationSchedule
	services  map[string]domain.Service
	resources []resource

	appointments map[string]*domain.Appointment // by booking code
	tickets      map[string]*domain.QueueTicket
	entries      map[string]*domain.WaitlistEntry
	byToken      map[string]string // token -> entry id
}

func NewStore() *Store {
	return &Store{
		schedules:    make(map[string]domain.LocationSchedule),
		services:     make(map[string]domain.Service),
		appointments: make(map[string]*domain.Appointment),
		tickets:      make(map[string]*domain.QueueTicket),
		entries:      make(map[string]*domain.WaitlistEntry),
		byToken:      make(map[string]string),
	}
}

// PutSchedule stores or replaces the calendar of a location.
func (s *Store) PutSchedule(schedule domain.LocationSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.LocationID] = schedule
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// PutResource registers an active resource of a location serving serviceIDs.
func (s *Store) PutResource(id, locationID string, serviceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	served := make(map[string]bool, len(serviceIDs))
	for _, svc := range serviceIDs {
		served[svc] = true
	}
	for i := range s.resources {
		if s.resources[i].id == id {
			s.resources[i] = resource{id: id, locationID: locationID, active: true, services: served}
			return
		}
	}
	s.resources = append(s.resources, resource{id: id, locationID: locationID, active: true, services: served})
}

// DeactivateResource takes a resource out of auto-assignment.
func (s *Store) DeactivateResource(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.resources {
		if s.resources[i].id == id {
			s.resources[i].active = false
		}
	}
}

func (s *Store) Appointments() *AppointmentRepository { return &AppointmentRepository{s: s} }
func (s *Store) Schedules() *ScheduleRepository { return &ScheduleRepository{s: s} }
func (s *Store) Queue() *QueueRepository { return &QueueRepository{s: s} }
func (s *Store) Waitlist() *WaitlistRepository { return &WaitlistRepository{s: s} }

func (s *Store) resourceServes(resourceID, serviceID string) bool {
	for _, r := range s.resources {
		if r.id == resourceID {
			return r.services[serviceID]
		}
	}
	return false
}
