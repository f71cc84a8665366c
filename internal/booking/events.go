package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/infrastructure/mqtt"
)

// Booking event types published by the upstream reservation platform.
const (
	EventCancelled = "cancelled"
	EventModified  = "modified"
)

// eventHandleTimeout bounds the database and scheduler work done for a
// single event.
const eventHandleTimeout = 10 * time.Second

// TaskScheduler is the subset of the power-off scheduler the event
// consumer needs to keep tasks aligned with booking changes.
type TaskScheduler interface {
	Cancel(ctx context.Context, bookingID string) error
	Reschedule(ctx context.Context, bookingID string, endTime time.Time) error
}

// subscriber is the MQTT capability the consumer depends on.
type subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// event is the wire format on roomgate/booking/{bookingID}/event.
type event struct {
	Event   string `json:"event"`
	EndTime string `json:"end_time,omitempty"`
}

// EventConsumer subscribes to booking lifecycle events and propagates
// them to the local booking mirror and the power-off scheduler.
type EventConsumer struct {
	repo      Repository
	scheduler TaskScheduler
	bus       subscriber
	logger    *logging.Logger
}

// NewEventConsumer creates a consumer wired to the given collaborators.
func NewEventConsumer(repo Repository, scheduler TaskScheduler, bus subscriber, logger *logging.Logger) *EventConsumer {
	return &EventConsumer{
		repo:      repo,
		scheduler: scheduler,
		bus:       bus,
		logger:    logger,
	}
}

// Start subscribes to all booking event topics. Events arriving before
// Start are dropped by the broker (events are not retained).
func (c *EventConsumer) Start() error {
	topic := mqtt.Topics{}.AllBookingEvents()
	if err := c.bus.Subscribe(topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("subscribing to booking events: %w", err)
	}
	c.logger.Info("booking event consumer started", "topic", topic)
	return nil
}

// handleMessage parses and dispatches a single booking event.
//
// Errors are returned to the MQTT wrapper, which logs them; a bad event
// never stops the subscription.
func (c *EventConsumer) handleMessage(topic string, payload []byte) error {
	bookingID, err := bookingIDFromTopic(topic)
	if err != nil {
		return err
	}

	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventHandleTimeout)
	defer cancel()

	switch ev.Event {
	case EventCancelled:
		return c.handleCancelled(ctx, bookingID)
	case EventModified:
		return c.handleModified(ctx, bookingID, ev.EndTime)
	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, ev.Event)
	}
}

// handleCancelled marks the booking cancelled and withdraws its
// pending power-off task.
func (c *EventConsumer) handleCancelled(ctx context.Context, bookingID string) error {
	if err := c.repo.UpdateStatus(ctx, bookingID, StatusCancelled); err != nil {
		return fmt.Errorf("cancelling booking %s: %w", bookingID, err)
	}

	// No active task is a normal outcome: the door may never have opened.
	if err := c.scheduler.Cancel(ctx, bookingID); err != nil {
		c.logger.Warn("task cancel after booking cancellation",
			"booking_id", bookingID,
			"error", err,
		)
	}

	c.logger.Info("booking cancelled", "booking_id", bookingID)
	return nil
}

// handleModified applies a new end time and moves the pending power-off
// task to match.
func (c *EventConsumer) handleModified(ctx context.Context, bookingID, endTime string) error {
	end, err := time.Parse(time.RFC3339, endTime)
	if err != nil {
		return fmt.Errorf("%w: parsing end_time %q: %w", ErrInvalidEvent, endTime, err)
	}

	if err := c.repo.UpdateEndTime(ctx, bookingID, end); err != nil {
		return fmt.Errorf("updating booking %s end time: %w", bookingID, err)
	}

	if err := c.scheduler.Reschedule(ctx, bookingID, end); err != nil {
		c.logger.Warn("task reschedule after booking modification",
			"booking_id", bookingID,
			"error", err,
		)
	}

	c.logger.Info("booking modified", "booking_id", bookingID, "end_time", endTime)
	return nil
}

// bookingIDFromTopic extracts the booking ID from
// roomgate/booking/{bookingID}/event.
func bookingIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "roomgate" || parts[1] != "booking" || parts[3] != "event" || parts[2] == "" {
		return "", fmt.Errorf("%w: unexpected topic %q", ErrInvalidEvent, topic)
	}
	return parts[2], nil
}
