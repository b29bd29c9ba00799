// Package events fans transition events out to the collaborators that care
// about them: queue displays over Redis pub/sub, the Kafka event log and the
// notification worker. Services only call Emit and never wait for delivery.
package events

import (
	"context"
	"time"

	"github.com/Domenick1991/terminbooking/internal/domain"
	"github.com/Domenick1991/terminbooking/internal/kafka"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

type Options struct {
	Buffer             int
	EventsTopic        string
	NotificationsTopic string
	ConfirmURLBase     string
}

type Dispatcher struct {
	events   chan domain.TransitionEvent
	pubsub   Publisher
	producer Producer
	opts     Options
	log      *zap.Logger
}

// NewDispatcher accepts nil sinks; their share of the fan-out is skipped.
func NewDispatcher(pubsub Publisher, producer Producer, opts Options, log *zap.Logger) *Dispatcher {
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	return &Dispatcher{
		events:   make(chan domain.TransitionEvent, opts.Buffer),
		pubsub:   pubsub,
		producer: producer,
		opts:     opts,
		log:      log,
	}
}

// Emit queues the event for delivery. When the buffer is full the event is
// dropped: pub/sub consumers resynchronise through the status query.
func (d *Dispatcher) Emit(ev domain.TransitionEvent) {
	select {
	case d.events <- ev:
	default:
		d.log.Warn("event buffer full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("location_id", ev.LocationID),
		)
	}
}

// Run delivers events until ctx is done, then flushes what is still buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.TransitionEvent) {
	if ev.Ticket != nil {
		d.publishQueueUpdate(ctx, ev)
	}

	if d.producer == nil {
		return
	}
	if d.opts.EventsTopic != "" {
		if err := d.producer.Publish(ctx, d.opts.EventsTopic, ev.LocationID, toMessage(ev)); err != nil {
			d.log.Warn("failed to publish transition event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
	if d.opts.NotificationsTopic == "" {
		return
	}
	n, ok := notificationFor(ev, d.opts.ConfirmURLBase)
	if !ok {
		return
	}
	if err := d.producer.Publish(ctx, d.opts.NotificationsTopic, n.Recipient, n); err != nil {
		d.log.Warn("failed to queue notification",
			zap.String("type", string(ev.Type)),
			zap.String("template", n.Template),
			zap.Error(err),
		)
	}
}

// QueueUpdate is published on queue:<location> for every ticket transition.
type QueueUpdate struct {
	Type         string `json:"type"`
	TicketID     string `json:"ticket_id"`
	TicketNumber string `json:"ticket_number"`
	ServiceID    string `json:"service_id"`
	Status       string `json:"status"`
	Counter      string `json:"counter,omitempty"`
}

// DisplayCall is published on display:<location> when a ticket is called.
type DisplayCall struct {
	Type         string `json:"type"`
	TicketNumber string `json:"ticket_number"`
	Counter      string `json:"counter"`
}

func QueueChannel(locationID string) string { return "queue:" + locationID }
func DisplayChannel(locationID string) string { return "display:" + locationID }

func (d *Dispatcher) publishQueueUpdate(ctx context.Context, ev domain.TransitionEvent) {
	if d.pubsub == nil {
		return
	}
	t := ev.Ticket
	update := QueueUpdate{
		Type:         string(ev.Type),
		TicketID:     t.ID,
		TicketNumber: t.TicketNumber,
		ServiceID:    t.ServiceID,
		Status:       string(t.Status),
		Counter:      t.CounterLabel,
	}
	if err := d.pubsub.Publish(ctx, QueueChannel(ev.LocationID), update); err != nil {
		d.log.Warn("failed to publish queue update", zap.String("ticket_number", t.TicketNumber), zap.Error(err))
	}

	if ev.Type != domain.EventTicketCalled {
		return
	}
	call := DisplayCall{Type: "TICKET_CALLED", TicketNumber: t.TicketNumber, Counter: t.CounterLabel}
	if err := d.pubsub.Publish(ctx, DisplayChannel(ev.LocationID), call); err != nil {
		d.log.Warn("failed to publish display call", zap.String("ticket_number", t.TicketNumber), zap.Error(err))
	}
}

func toMessage(ev domain.TransitionEvent) kafka.TransitionMessage {
	msg := kafka.TransitionMessage{
		Type:       string(ev.Type),
		LocationID: ev.LocationID,
		OccurredAt: ev.OccurredAt,
	}
	switch {
	case ev.Appointment != nil:
		a := ev.Appointment
		msg.Status = string(a.Status)
		msg.BookingCode = a.BookingCode
		msg.ServiceID = a.ServiceID
		msg.SlotStart, msg.SlotEnd = &a.StartTime, &a.EndTime
	case ev.Ticket != nil:
		msg.Status = string(ev.Ticket.Status)
		msg.TicketNumber = ev.Ticket.TicketNumber
		msg.ServiceID = ev.Ticket.ServiceID
	case ev.Entry != nil:
		msg.Status = string(ev.Entry.Status)
		msg.EntryID = ev.Entry.ID
		msg.ServiceID = ev.Entry.ServiceID
		msg.SlotStart, msg.SlotEnd = ev.Entry.OfferedSlotStart, ev.Entry.OfferedSlotEnd
	}
	return msg
}
