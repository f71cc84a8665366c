package access

import "errors"

// Denial errors returned by ValidateDoorAccess. Each maps to a stable
// reason code surfaced to callers and recorded in the audit trail.
var (
	// ErrNoBooking is returned when the user has no booking for the room.
	ErrNoBooking = errors.New("access denied: no booking")

	// ErrBookingPending is returned when the booking has not been confirmed.
	ErrBookingPending = errors.New("access denied: booking pending")

	// ErrBookingCancelled is returned when the booking was cancelled.
	ErrBookingCancelled = errors.New("access denied: booking cancelled")

	// ErrBookingExpired is returned when the booking's end time has passed.
	ErrBookingExpired = errors.New("access denied: booking expired")

	// ErrTooEarly is returned when the request is before the pre-open window.
	ErrTooEarly = errors.New("access denied: too early")
)

// Stable reason codes for denial responses and audit entries.
const (
	ReasonNoBooking = "no_booking"
	ReasonPending   = "pending"
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
	ReasonTooEarly  = "too_early"
)

// DenialReason maps a denial error to its reason code. Returns an
// empty string for nil or unrecognised errors.
func DenialReason(err error) string {
	switch {
	case errors.Is(err, ErrNoBooking):
		return ReasonNoBooking
	case errors.Is(err, ErrBookingPending):
		return ReasonPending
	case errors.Is(err, ErrBookingCancelled):
		return ReasonCancelled
	case errors.Is(err, ErrBookingExpired):
		return ReasonExpired
	case errors.Is(err, ErrTooEarly):
		return ReasonTooEarly
	default:
		return ""
	}
}

// IsDenial reports whether err is one of the access denial errors.
func IsDenial(err error) bool {
	return DenialReason(err) != ""
}
