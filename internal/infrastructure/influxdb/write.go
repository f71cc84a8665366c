package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePowerOffMetric records the outcome of a power-off task execution.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Safe to call on a nil client (no-op when metrics are disabled).
//
// Parameters:
//   - taskID: The power-off task identifier
//   - roomID: The room whose relay was switched
//   - attempts: How many attempts the execution took
//   - durationMS: Wall-clock duration of the final attempt in milliseconds
//   - success: Whether the relay confirmed power-off
//
// Example:
//
//	client.WritePowerOffMetric("task-3f2a91", "room-201", 1, 152.0, true)
func (c *Client) WritePowerOffMetric(taskID, roomID string, attempts int, durationMS float64, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"power_off",
		map[string]string{
			"room_id": roomID,
		},
		map[string]interface{}{
			"task_id":     taskID,
			"attempts":    attempts,
			"duration_ms": durationMS,
			"success":     success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDispatchMetric records a scheduler dispatch cycle.
//
// Used for tracking scheduler throughput and backlog.
//
// Parameters:
//   - due: Number of tasks that were due this cycle
//   - claimed: Number of tasks this instance claimed
//   - durationMS: Cycle duration in milliseconds
func (c *Client) WriteDispatchMetric(due, claimed int, durationMS float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"dispatch_cycle",
		nil,
		map[string]interface{}{
			"due":         due,
			"claimed":     claimed,
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAccessMetric records a door access decision.
//
// Parameters:
//   - roomID: The room the access request targeted
//   - granted: Whether access was granted
//   - reason: Denial reason, empty string when granted
func (c *Client) WriteAccessMetric(roomID string, granted bool, reason string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"room_id": roomID,
	}
	if reason != "" {
		tags["reason"] = reason
	}

	point := write.NewPoint(
		"door_access",
		tags,
		map[string]interface{}{
			"granted": granted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
