package poweroff

import (
	"context"
	"fmt"
	"time"

	"github.com/oakline/roomgate-core/internal/audit"
	"github.com/oakline/roomgate-core/internal/infrastructure/influxdb"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/relay"
)

// Execution constants.
const (
	// maxAttempts is the retry ceiling per task. The attempt counter is
	// durable, so a crash mid-episode still respects the ceiling.
	maxAttempts = 3

	// retryDelay is the pause between attempts within an episode.
	retryDelay = 5 * time.Second
)

// Executor runs a claimed task to a terminal state.
type Executor struct {
	relays  relay.Controller
	tasks   Repository
	audits  audit.Repository
	metrics *influxdb.Client
	logger  *logging.Logger

	// retryDelay is a field so tests can shorten the episode.
	retryDelay time.Duration
}

// NewExecutor creates an executor. metrics may be nil.
func NewExecutor(relays relay.Controller, tasks Repository, audits audit.Repository, metrics *influxdb.Client, logger *logging.Logger) *Executor {
	return &Executor{
		relays:     relays,
		tasks:      tasks,
		audits:     audits,
		metrics:    metrics,
		logger:     logger,
		retryDelay: retryDelay,
	}
}

// Execute drives an already-claimed (executing) task to completed or
// failed. Relay failures retry in place up to the attempt ceiling; the
// task stays executing between attempts. The returned error reports
// the terminal failure for logging; callers must not re-arm the task.
//
// attempt_count counts every attempt taken: failed attempts persist as
// the episode runs, and the successful attempt is folded in when the
// task completes. A task that succeeds on its second attempt finishes
// with attempt_count 2.
func (e *Executor) Execute(ctx context.Context, task *Task) error {
	start := time.Now()

	for task.AttemptCount < maxAttempts {
		err := e.relays.SetPower(ctx, task.RoomID, false)
		if err == nil {
			task.AttemptCount++
			return e.complete(ctx, task, start)
		}

		task.AttemptCount++
		task.LastError = err.Error()
		if dbErr := e.tasks.IncrementAttempt(ctx, task.ID, task.LastError); dbErr != nil {
			e.logger.Error("persisting attempt count",
				"task_id", task.ID,
				"error", dbErr,
			)
		}

		e.logger.Warn("power-off attempt failed",
			"task_id", task.ID,
			"room_id", task.RoomID,
			"attempt", task.AttemptCount,
			"error", err,
		)

		if task.AttemptCount >= maxAttempts {
			break
		}

		select {
		case <-time.After(e.retryDelay):
		case <-ctx.Done():
			// Shutdown mid-episode: leave the task executing; startup
			// recovery re-arms it.
			return fmt.Errorf("executing task %s: %w", task.ID, ctx.Err())
		}
	}

	return e.fail(ctx, task, start)
}

// complete marks success, persisting the episode's full attempt count,
// and records the audit entry and metric.
func (e *Executor) complete(ctx context.Context, task *Task, start time.Time) error {
	if err := e.tasks.MarkCompleted(ctx, task.ID, task.AttemptCount); err != nil {
		return fmt.Errorf("marking task %s completed: %w", task.ID, err)
	}
	task.Status = StatusCompleted

	e.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionPowerOffSuccess,
		ActorID:   "scheduler",
		RoomID:    task.RoomID,
		BookingID: task.BookingID,
		Details:   map[string]any{"attempts": task.AttemptCount},
	})
	e.metrics.WritePowerOffMetric(task.ID, task.RoomID, task.AttemptCount,
		float64(time.Since(start).Milliseconds()), true)

	e.logger.Info("room powered off",
		"task_id", task.ID,
		"room_id", task.RoomID,
		"booking_id", task.BookingID,
	)
	return nil
}

// fail marks the terminal failure after the attempt ceiling.
func (e *Executor) fail(ctx context.Context, task *Task, start time.Time) error {
	if err := e.tasks.MarkFailed(ctx, task.ID, task.LastError); err != nil {
		return fmt.Errorf("marking task %s failed: %w", task.ID, err)
	}
	task.Status = StatusFailed

	e.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionPowerOffFailed,
		ActorID:   "scheduler",
		RoomID:    task.RoomID,
		BookingID: task.BookingID,
		Details: map[string]any{
			"attempts":   task.AttemptCount,
			"last_error": task.LastError,
		},
	})
	e.metrics.WritePowerOffMetric(task.ID, task.RoomID, task.AttemptCount,
		float64(time.Since(start).Milliseconds()), false)

	e.logger.Error("power-off task failed terminally",
		"task_id", task.ID,
		"room_id", task.RoomID,
		"booking_id", task.BookingID,
		"last_error", task.LastError,
	)
	return fmt.Errorf("task %s failed after %d attempts: %s", task.ID, task.AttemptCount, task.LastError)
}

// recordAudit writes an audit entry, logging on failure.
func (e *Executor) recordAudit(ctx context.Context, entry *audit.AuditLog) {
	if err := e.audits.Record(ctx, entry); err != nil {
		e.logger.Error("recording audit entry",
			"action", entry.Action,
			"booking_id", entry.BookingID,
			"error", err,
		)
	}
}
