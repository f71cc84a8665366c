package relay

import "errors"

var (
	// ErrAckTimeout is returned when a relay does not acknowledge a
	// command within the configured timeout.
	ErrAckTimeout = errors.New("relay: ack timeout")

	// ErrCommandRejected is returned when a relay acknowledges a
	// command with a failure.
	ErrCommandRejected = errors.New("relay: command rejected")

	// ErrInvalidAck is returned when an acknowledgement payload cannot
	// be parsed.
	ErrInvalidAck = errors.New("relay: invalid ack")
)
