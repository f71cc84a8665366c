package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oakline/roomgate-core/internal/audit"
	"github.com/oakline/roomgate-core/internal/booking"
	"github.com/oakline/roomgate-core/internal/infrastructure/influxdb"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
)

// PreOpenWindow is how long before the booked start the door may open.
const PreOpenWindow = time.Hour

// scheduleTimeout bounds the background task-arming work after a grant.
const scheduleTimeout = 30 * time.Second

// Scheduler is the subset of the power-off scheduler used to arm a
// task when a door opens.
type Scheduler interface {
	Schedule(ctx context.Context, bookingID, roomID string, endTime time.Time) error
}

// Validator decides door-open eligibility from booking state and time.
type Validator struct {
	bookings  booking.Repository
	audits    audit.Repository
	scheduler Scheduler
	metrics   *influxdb.Client
	logger    *logging.Logger
}

// NewValidator creates a validator wired to its collaborators.
// metrics may be nil when InfluxDB is disabled.
func NewValidator(bookings booking.Repository, audits audit.Repository, scheduler Scheduler, metrics *influxdb.Client, logger *logging.Logger) *Validator {
	return &Validator{
		bookings:  bookings,
		audits:    audits,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger,
	}
}

// ValidateDoorAccess decides whether userID may open roomID's door at
// the given time.
//
// On grant it returns the matching booking and arms the room's delayed
// power-off task on a background goroutine. On denial it returns one of
// the package's denial errors. Every outcome is audited; repeated
// grants for the same booking are valid and re-audited (the task
// schedule is idempotent).
func (v *Validator) ValidateDoorAccess(ctx context.Context, userID, roomID string, at time.Time) (*booking.Booking, error) {
	at = at.UTC()

	b, err := v.bookings.FindForAccess(ctx, userID, roomID, at)
	if errors.Is(err, booking.ErrBookingNotFound) {
		return nil, v.deny(ctx, userID, roomID, "", ErrNoBooking)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up booking for user %s room %s: %w", userID, roomID, err)
	}

	if denial := classify(b, at); denial != nil {
		return nil, v.deny(ctx, userID, roomID, b.ID, denial)
	}

	v.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionDoorOpenSuccess,
		ActorID:   userID,
		RoomID:    roomID,
		BookingID: b.ID,
		Details: map[string]any{
			"booking_start": b.StartTime.Format(time.RFC3339),
			"booking_end":   b.EndTime.Format(time.RFC3339),
		},
	})
	v.metrics.WriteAccessMetric(roomID, true, "")

	// Arm the power-off task off the grant path: the door opens even if
	// scheduling fails.
	go v.armPowerOff(b)

	return b, nil
}

// classify maps a candidate booking and request time to a denial error,
// or nil when access should be granted.
func classify(b *booking.Booking, at time.Time) error {
	switch b.Status {
	case booking.StatusPending:
		return ErrBookingPending
	case booking.StatusCancelled:
		return ErrBookingCancelled
	case booking.StatusCompleted:
		return ErrBookingExpired
	}

	if at.Before(b.StartTime.Add(-PreOpenWindow)) {
		return ErrTooEarly
	}
	if at.After(b.EndTime) {
		return ErrBookingExpired
	}
	return nil
}

// deny audits and returns a denial.
func (v *Validator) deny(ctx context.Context, userID, roomID, bookingID string, denial error) error {
	reason := DenialReason(denial)

	v.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionDoorOpenDenied,
		ActorID:   userID,
		RoomID:    roomID,
		BookingID: bookingID,
		Details:   map[string]any{"reason": reason},
	})
	v.metrics.WriteAccessMetric(roomID, false, reason)

	return denial
}

// armPowerOff schedules the booking's power-off task. Runs detached
// from the request; failures are logged and audited, never surfaced.
func (v *Validator) armPowerOff(b *booking.Booking) {
	ctx, cancel := context.WithTimeout(context.Background(), scheduleTimeout)
	defer cancel()

	if err := v.scheduler.Schedule(ctx, b.ID, b.RoomID, b.EndTime); err != nil {
		v.logger.Error("arming power-off task after door grant",
			"booking_id", b.ID,
			"room_id", b.RoomID,
			"error", err,
		)
		v.recordAudit(ctx, &audit.AuditLog{
			Action:    audit.ActionTaskScheduled,
			ActorID:   "system",
			RoomID:    b.RoomID,
			BookingID: b.ID,
			Details:   map[string]any{"error": err.Error(), "scheduled": false},
		})
	}
}

// recordAudit writes an audit entry, logging on failure. A broken audit
// store never blocks an access decision.
func (v *Validator) recordAudit(ctx context.Context, entry *audit.AuditLog) {
	if err := v.audits.Record(ctx, entry); err != nil {
		v.logger.Error("recording audit entry",
			"action", entry.Action,
			"booking_id", entry.BookingID,
			"error", err,
		)
	}
}
