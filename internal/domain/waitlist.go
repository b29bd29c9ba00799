package domain

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "WAITING"
	WaitlistStatusOffered   WaitlistStatus = "OFFERED"
	WaitlistStatusConfirmed WaitlistStatus = "CONFIRMED"
	WaitlistStatusDeclined  WaitlistStatus = "DECLINED"
	WaitlistStatusExpired   WaitlistStatus = "EXPIRED"
	WaitlistStatusCancelled WaitlistStatus = "CANCELLED"
)

type WaitlistEntry struct {
	ID         string
	ServiceID  string
	LocationID *string
	Name       string
	Phone      string
	Email      string
	Status     WaitlistStatus
	Token      string

	OfferedLocationID *string
	OfferedSlotStart  *time.Time
	OfferedSlotEnd    *time.Time
	OfferedAt         *time.Time
	ExpiresAt         *time.Time
	ConfirmedAt       *time.Time
	DeclinedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OfferedSlot reconstructs the slot currently offered to the entry.
func (e *WaitlistEntry) OfferedSlot() (FreedSlot, bool) {
	if e.OfferedSlotStart == nil || e.OfferedSlotEnd == nil {
		return FreedSlot{}, false
	}
	return FreedSlot{
		ServiceID:  e.ServiceID,
		LocationID: e.OfferedLocationID,
		Start:      *e.OfferedSlotStart,
		End:        *e.OfferedSlotEnd,
	}, true
}

// OfferLapsed reports whether the offer window has closed at now.
func (e *WaitlistEntry) OfferLapsed(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
