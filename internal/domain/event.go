package domain

import "time"

type EventType string

const (
	EventAppointmentCreated   EventType = "appointment.created"
	EventAppointmentCancelled EventType = "appointment.cancelled"
	EventAppointmentCheckedIn EventType = "appointment.checked_in"

	EventTicketIssued    EventType = "ticket.issued"
	EventTicketCalled    EventType = "ticket.called"
	EventTicketNoShow    EventType = "ticket.no_show"
	EventTicketServing   EventType = "ticket.serving"
	EventTicketCompleted EventType = "ticket.completed"

	EventWaitlistOffered   EventType = "waitlist.offered"
	EventWaitlistConfirmed EventType = "waitlist.confirmed"
	EventWaitlistDeclined  EventType = "waitlist.declined"
	EventWaitlistExpired   EventType = "waitlist.expired"
	EventWaitlistCancelled EventType = "waitlist.cancelled"
)

// TransitionEvent is emitted once at the end of every state-machine
// transition. Exactly one of Appointment, Ticket or Entry is set.
type TransitionEvent struct {
	Type        EventType
	LocationID  string
	OccurredAt  time.Time
	Appointment *Appointment
	Ticket      *QueueTicket
	Entry       *WaitlistEntry
}
