package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrSlotContested   = errors.New("slot is being booked by someone else, please pick another time")
	ErrSlotUnavailable = errors.New("slot is no longer available, please pick another time")

	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrAlreadyTerminal    = fmt.Errorf("%w: appointment can no longer be cancelled", ErrInvalidTransition)
	ErrPastCancelDeadline = errors.New("cancellation deadline has passed")
	ErrOfferExpired       = errors.New("waitlist offer has expired")

	ErrDuplicateBookingCode = errors.New("booking code already exists")
)

var (
	ErrValidation = errors.New("validation error")

	ErrInvalidLocationID = fmt.Errorf("%w: location id is required", ErrValidation)
	ErrInvalidServiceID  = fmt.Errorf("%w: service id is required", ErrValidation)
	ErrInvalidResourceID = fmt.Errorf("%w: resource id is required", ErrValidation)
	ErrInvalidSlotStart  = fmt.Errorf("%w: slot start is required", ErrValidation)
	ErrCitizenName       = fmt.Errorf("%w: citizen name is required", ErrValidation)
	ErrContactRequired   = fmt.Errorf("%w: phone or email is required", ErrValidation)
	ErrInvalidDate       = fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	ErrInvalidMonth      = fmt.Errorf("%w: month must be YYYY-MM", ErrValidation)
)

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports conditions where the caller's view of the data is stale.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotContested) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsRuleViolation reports business-rule rejections.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrPastCancelDeadline)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsGone(err error) bool {
	return errors.Is(err, ErrOfferExpired)
}
