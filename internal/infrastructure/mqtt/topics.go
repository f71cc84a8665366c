package mqtt

import "fmt"

// Topic prefixes for the Roomgate MQTT hierarchy.
//
// Relay topics use the flat scheme: roomgate/relay/{room_id}/{verb}.
// Booking event topics mirror the booking platform's publisher:
// roomgate/booking/{booking_id}/event.
const (
	// TopicPrefixRelay is the base for all room relay topics.
	TopicPrefixRelay = "roomgate/relay"

	// TopicPrefixBooking is the base for booking lifecycle events.
	TopicPrefixBooking = "roomgate/booking"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "roomgate/system"
)

// Topics provides builders for Roomgate MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.RelayCommand("room-201")
//	// Returns: "roomgate/relay/room-201/set"
type Topics struct{}

// =============================================================================
// Relay Topics
// =============================================================================

// RelayCommand returns the topic for power commands to a room's relay.
//
// Example: roomgate/relay/room-201/set
func (Topics) RelayCommand(roomID string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefixRelay, roomID)
}

// RelayAck returns the topic for command acknowledgements from a room's relay.
//
// Example: roomgate/relay/room-201/ack
func (Topics) RelayAck(roomID string) string {
	return fmt.Sprintf("%s/%s/ack", TopicPrefixRelay, roomID)
}

// RelayStatus returns the topic for periodic relay status reports.
//
// Example: roomgate/relay/room-201/status
func (Topics) RelayStatus(roomID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixRelay, roomID)
}

// =============================================================================
// Booking Topics
// =============================================================================

// BookingEvent returns the topic for lifecycle events for a single booking.
//
// Example: roomgate/booking/bkg-7f3a21/event
func (Topics) BookingEvent(bookingID string) string {
	return fmt.Sprintf("%s/%s/event", TopicPrefixBooking, bookingID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic used for LWT and
// online/offline announcements.
//
// Example: roomgate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllRelayAcks returns a pattern matching acknowledgements from every relay.
//
// Pattern: roomgate/relay/+/ack
func (Topics) AllRelayAcks() string {
	return fmt.Sprintf("%s/+/ack", TopicPrefixRelay)
}

// AllRelayStatus returns a pattern matching status reports from every relay.
//
// Pattern: roomgate/relay/+/status
func (Topics) AllRelayStatus() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixRelay)
}

// AllBookingEvents returns a pattern matching lifecycle events for every booking.
//
// Pattern: roomgate/booking/+/event
func (Topics) AllBookingEvents() string {
	return fmt.Sprintf("%s/+/event", TopicPrefixBooking)
}

// AllTopics returns a pattern matching all Roomgate topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: roomgate/#
func (Topics) AllTopics() string {
	return "roomgate/#"
}
