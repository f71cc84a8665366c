package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Tasks         TaskMetrics     `json:"tasks"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// TaskMetrics contains power-off scheduler statistics.
type TaskMetrics struct {
	SchedulerRunning bool `json:"scheduler_running"`
	Scheduled        int  `json:"scheduled"`
	Executing        int  `json:"executing"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns runtime and component statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(mem.TotalAlloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.db != nil {
		stats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
		}
	}
	if health, err := s.scheduler.Health(r.Context()); err == nil {
		metrics.Tasks = TaskMetrics{
			SchedulerRunning: health.Running,
			Scheduled:        health.Scheduled,
			Executing:        health.Executing,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// handleSchedulerHealth reports the dispatch loop's state.
func (s *Server) handleSchedulerHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.scheduler.Health(r.Context())
	if err != nil {
		s.logger.Error("reading scheduler health", "error", err)
		writeInternalError(w, "failed to read scheduler health")
		return
	}
	writeJSON(w, http.StatusOK, health)
}
