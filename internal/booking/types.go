package booking

import "time"

// Booking statuses mirrored from the upstream reservation platform.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Booking represents a room reservation for a single user.
//
// StartTime and EndTime bound the reserved slot. Door access opens one
// hour before StartTime and closes hard at EndTime.
type Booking struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the booking can still grant access
// (not cancelled and not completed).
func (b *Booking) IsActive() bool {
	return b.Status == StatusConfirmed || b.Status == StatusPending
}
