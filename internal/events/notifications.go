package events

import (
	"strings"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/kafka"
)

const (
	TemplateBookingConfirmation = "booking_confirmation"
	TemplateBookingCancellation = "booking_cancellation"
	TemplateWaitlistOffer       = "waitlist_offer"
	TemplateWaitlistConfirmed   = "waitlist_confirmed"
)

// notificationFor maps an event to the message a citizen should receive.
// Events without a citizen-facing template, or without contact data, yield false.
func notificationFor(ev domain.TransitionEvent, confirmURLBase string) (kafka.Notification, bool) {
	switch ev.Type {
	case domain.EventAppointmentCreated, domain.EventAppointmentCancelled:
		a := ev.Appointment
		if a == nil {
			return kafka.Notification{}, false
		}
		template := TemplateBookingConfirmation
		if ev.Type == domain.EventAppointmentCancelled {
			template = TemplateBookingCancellation
		}
		return withRecipient(kafka.Notification{
			Template: template,
			Data: map[string]string{
				"name":         a.CitizenName,
				"booking_code": a.BookingCode,
				"start_time":   a.StartTime.Format(time.RFC3339),
				"location_id":  a.LocationID,
			},
		}, a.CitizenEmail, a.CitizenPhone)

	case domain.EventWaitlistOffered, domain.EventWaitlistConfirmed:
		e := ev.Entry
		if e == nil {
			return kafka.Notification{}, false
		}
		data := map[string]string{"name": e.Name}
		if e.OfferedSlotStart != nil {
			data["start_time"] = e.OfferedSlotStart.Format(time.RFC3339)
		}
		template := TemplateWaitlistConfirmed
		if ev.Type == domain.EventWaitlistOffered {
			template = TemplateWaitlistOffer
			data["confirm_url"] = strings.TrimRight(confirmURLBase, "/") + "/" + e.Token
			if e.ExpiresAt != nil {
				data["expires_at"] = e.ExpiresAt.Format(time.RFC3339)
			}
		}
		return withRecipient(kafka.Notification{Template: template, Data: data}, e.Email, e.Phone)
	}
	return kafka.Notification{}, false
}

func withRecipient(n kafka.Notification, email, phone string) (kafka.Notification, bool) {
	switch {
	case email != "":
		n.Channel, n.Recipient = kafka.ChannelEmail, email
	case phone != "":
		n.Channel, n.Recipient = kafka.ChannelSMS, phone
	default:
		return n, false
	}
	return n, true
}
