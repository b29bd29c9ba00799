package domain

import (
	"fmt"
	"time"
)

type TicketStatus string

const (
	TicketStatusWaiting   TicketStatus = "WAITING"
	TicketStatusCalled    TicketStatus = "CALLED"
	TicketStatusInService TicketStatus = "IN_SERVICE"
	TicketStatusCompleted TicketStatus = "COMPLETED"
	TicketStatusNoShow    TicketStatus = "NO_SHOW"
)

type QueueTicket struct {
	ID                   string
	LocationID           string
	ServiceID            string
	TicketNumber         string
	Prefix               string
	Sequence             int64
	Priority             int
	Status               TicketStatus
	CitizenName          string
	EstimatedWaitMinutes int
	ServingResourceID    string
	CounterLabel         string
	IssuedAt             time.Time
	CalledAt             *time.Time
	ServedAt             *time.Time
	CompletedAt          *time.Time
}

// FormatTicketNumber renders prefix + zero-padded sequence, e.g. "B007".
func FormatTicketNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%03d", prefix, seq)
}

// CallsBefore is the call order of the live queue: higher priority first,
// then strict arrival order.
func CallsBefore(a, b *QueueTicket) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.IssuedAt.Equal(b.IssuedAt) {
		return a.IssuedAt.Before(b.IssuedAt)
	}
	return a.ID < b.ID
}

type QueueSummary struct {
	Waiting   int `json:"waiting"`
	Called    int `json:"called"`
	InService int `json:"in_service"`
	Completed int `json:"completed"`
	NoShow    int `json:"no_show"`
	Total     int `json:"total"`
}

type QueueStatus struct {
	LocationID string
	Summary    QueueSummary
	Tickets    []QueueTicket
}
