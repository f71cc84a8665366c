// Package influxdb provides time-series metric recording for Roomgate Core.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking, batched metric writes
//   - Power-off outcome and dispatch cycle measurements
//   - Connection health monitoring
//
// # Architecture
//
// Metrics are optional. When InfluxDB is disabled in config the rest of
// the system runs without it; callers hold a nil *Client and skip writes.
// Writes are batched in memory and flushed asynchronously, so recording
// a metric never blocks task execution or request handling.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // run without metrics
//	} else if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.WritePowerOffMetric("task-3f2a91", "room-201", 1, 152.0, true)
package influxdb
