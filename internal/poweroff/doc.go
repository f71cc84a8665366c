// Package poweroff schedules and executes delayed room power-off tasks.
//
// When a door opens for a booking, a task is armed to cut the room's
// power 40 minutes after the booked end. Tasks are durable rows in
// SQLite: a restart reloads pending work, and rows caught mid-execution
// are re-armed. Claiming uses a status compare-and-set so that a task
// executes once even when a cancel races the dispatch loop.
//
// Execution retries a failing relay up to three attempts, five seconds
// apart, inside a single executing episode. The third failure is
// terminal: the task is marked failed with its last error and is never
// picked up again.
//
// The Scheduler owns the dispatch goroutine; construct it, call
// Start(ctx), and Close() it on shutdown. Claimed tasks run
// concurrently under a weighted semaphore, so one room's retry delays
// never hold back another room's power-off.
package poweroff
