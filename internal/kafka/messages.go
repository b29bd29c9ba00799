package kafka

import "time"

// TransitionMessage is the event-log record of one state-machine transition.
type TransitionMessage struct {
	Type       string    `json:"type"`
	LocationID string    `json:"location_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Status     string    `json:"status"`

	BookingCode  string `json:"booking_code,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
	EntryID      string `json:"entry_id,omitempty"`
	ServiceID    string `json:"service_id,omitempty"`

	SlotStart *time.Time `json:"slot_start,omitempty"`
	SlotEnd   *time.Time `json:"slot_end,omitempty"`
}

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification asks the notification worker to contact a citizen.
type Notification struct {
	Template  string            `json:"template"`
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data"`
}
