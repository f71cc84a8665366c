package poweroff

import "time"

// PowerOffBuffer is how long after the booked end the room's power is
// cut. Fixed for all rooms.
const PowerOffBuffer = 40 * time.Minute

// Task statuses.
//
// Transitions: scheduled→executing→{completed,failed};
// scheduled→cancelled. Completed, failed, and cancelled are terminal.
const (
	StatusScheduled = "scheduled"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task is a durable delayed power-off job for one booking.
type Task struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"booking_id"`
	RoomID        string    `json:"room_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        string    `json:"status"`
	AttemptCount  int       `json:"attempt_count"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsActive reports whether the task still awaits or is undergoing
// execution.
func (t *Task) IsActive() bool {
	return t.Status == StatusScheduled || t.Status == StatusExecuting
}

// IsTerminal reports whether the task reached a final state.
func (t *Task) IsTerminal() bool {
	return !t.IsActive()
}
