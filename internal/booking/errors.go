package booking

import "errors"

var (
	// ErrBookingNotFound is returned when no booking matches the query.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidEvent is returned when a booking event payload cannot be parsed.
	ErrInvalidEvent = errors.New("invalid booking event")
)
