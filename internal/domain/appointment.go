package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked     AppointmentStatus = "BOOKED"
	AppointmentStatusConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentStatusCheckedIn  AppointmentStatus = "CHECKED_IN"
	AppointmentStatusInProgress AppointmentStatus = "IN_PROGRESS"
	AppointmentStatusCompleted  AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled  AppointmentStatus = "CANCELLED"
	AppointmentStatusNoShow     AppointmentStatus = "NO_SHOW"
)

// IsTerminal reports whether no further transition is allowed.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// OccupiesSlot reports whether an appointment in this status still holds capacity.
func (s AppointmentStatus) OccupiesSlot() bool {
	return s != AppointmentStatusCancelled && s != AppointmentStatusNoShow
}

type AppointmentSource string

const (
	AppointmentSourceOnline   AppointmentSource = "ONLINE"
	AppointmentSourceWaitlist AppointmentSource = "WAITLIST"
)

type Appointment struct {
	ID           string
	LocationID   string
	ServiceID    string
	ResourceID   string
	BookingCode  string
	StartTime    time.Time
	EndTime      time.Time
	Status       AppointmentStatus
	Source       AppointmentSource
	CitizenName  string
	CitizenEmail string
	CitizenPhone string
	Notes        string
	CancelReason string
	CancelledAt  *time.Time
	CheckedInAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FreedSlot returns the capacity released when this appointment is cancelled.
func (a *Appointment) FreedSlot() FreedSlot {
	loc := a.LocationID
	return FreedSlot{
		ServiceID:  a.ServiceID,
		LocationID: &loc,
		Start:      a.StartTime,
		End:        a.EndTime,
	}
}

// codeAlphabet leaves out 0/O and 1/I. Its 32 letters divide 256 evenly, so
// reducing a random byte modulo its length is unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBookingCode returns "<prefix>-" followed by six random letters.
func NewBookingCode(prefix string) (string, error) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate booking code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return prefix + "-" + string(buf[:]), nil
}
