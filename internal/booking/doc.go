// Package booking provides read access to the local booking mirror and
// keeps it current from upstream change events.
//
// Bookings are owned by the upstream reservation platform. Roomgate
// holds a local copy for access decisions and reacts to lifecycle
// events (cancellation, end-time changes) delivered over MQTT. The
// event consumer propagates those changes to the power-off scheduler
// so pending tasks follow the booking they belong to.
//
// # Thread Safety
//
// SQLiteRepository is safe for concurrent use from multiple goroutines
// (SQLite WAL mode + connection pooling). EventConsumer handlers run on
// the MQTT client's goroutines.
package booking
