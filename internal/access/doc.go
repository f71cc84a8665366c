// Package access decides whether a door may open for a user at a
// moment in time.
//
// The decision is pure booking state plus clock: a door opens only
// inside the access window of an active booking, which runs from one
// hour before the booked start until the booked end. Every decision,
// grant or denial, is written to the audit trail.
//
// A granted request also arms the room's delayed power-off task. That
// scheduling happens on a separate goroutine: a storage hiccup while
// arming the task must never turn into a denied door.
package access
