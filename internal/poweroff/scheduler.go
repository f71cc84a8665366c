package poweroff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/oakline/roomgate-core/internal/audit"
	"github.com/oakline/roomgate-core/internal/infrastructure/influxdb"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
)

// SchedulerConfig tunes the dispatch loop.
type SchedulerConfig struct {
	// PollInterval is how often the loop looks for due tasks.
	PollInterval time.Duration

	// RecoverySkew widens the due window at startup so tasks that came
	// due during downtime (or across clock drift) dispatch immediately.
	RecoverySkew time.Duration

	// MaxConcurrent bounds simultaneously executing tasks.
	MaxConcurrent int64
}

// HealthStatus is a snapshot of scheduler state for the management API.
type HealthStatus struct {
	Running      bool      `json:"running"`
	Scheduled    int       `json:"scheduled"`
	Executing    int       `json:"executing"`
	LastDispatch time.Time `json:"last_dispatch,omitempty"`
}

// Scheduler owns the durable task queue and its dispatch goroutine.
//
// All public methods are safe for concurrent use. Start runs the loop;
// Close stops it and waits for in-flight executions to finish their
// current attempt.
type Scheduler struct {
	cfg      SchedulerConfig
	tasks    Repository
	executor *Executor
	audits   audit.Repository
	metrics  *influxdb.Client
	logger   *logging.Logger

	sem *semaphore.Weighted

	mu           sync.Mutex
	running      bool
	lastDispatch time.Time
	cancel       context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler. metrics may be nil.
func NewScheduler(cfg SchedulerConfig, tasks Repository, executor *Executor, audits audit.Repository, metrics *influxdb.Client, logger *logging.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:      cfg,
		tasks:    tasks,
		executor: executor,
		audits:   audits,
		metrics:  metrics,
		logger:   logger,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Start recovers persisted tasks and launches the dispatch loop.
//
// Recovery re-arms tasks caught executing by a crash, then runs one
// dispatch cycle with the recovery skew so overdue tasks fire without
// waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	rearmed, err := s.tasks.ResetExecuting(loopCtx)
	if err != nil {
		s.markStopped()
		return fmt.Errorf("scheduler startup recovery: %w", err)
	}
	if rearmed > 0 {
		s.logger.Warn("re-armed tasks caught mid-execution", "count", rearmed)
	}

	s.dispatch(loopCtx, time.Now().UTC().Add(s.cfg.RecoverySkew))

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.logger.Info("power-off scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"max_concurrent", s.cfg.MaxConcurrent,
	)
	return nil
}

// Close stops the dispatch loop and waits for running executions.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.markStopped()

	s.logger.Info("power-off scheduler stopped")
	return nil
}

func (s *Scheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// loop is the dispatch goroutine: one cycle per tick until shutdown.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatch(ctx, time.Now().UTC())
		}
	}
}

// dispatch claims every due task and hands each to the executor on its
// own goroutine. The semaphore bounds concurrent executions; waiting
// for a slot happens on the task's goroutine so a saturated pool never
// stalls claiming of the remaining due tasks.
func (s *Scheduler) dispatch(ctx context.Context, before time.Time) {
	cycleStart := time.Now()

	due, err := s.tasks.ListDue(ctx, before)
	if err != nil {
		s.logger.Error("listing due tasks", "error", err)
		return
	}

	claimed := 0
	for i := range due {
		task := due[i]

		// CAS claim: a concurrent cancel (or another instance) may win.
		if err := s.tasks.Claim(ctx, task.ID); err != nil {
			if !errors.Is(err, ErrTaskStateConflict) {
				s.logger.Error("claiming task", "task_id", task.ID, "error", err)
			}
			continue
		}
		task.Status = StatusExecuting
		claimed++

		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()

			if err := s.sem.Acquire(ctx, 1); err != nil {
				// Shutdown while waiting for a slot: the claimed task
				// stays executing and is re-armed on next startup.
				return
			}
			defer s.sem.Release(1)

			if err := s.executor.Execute(ctx, &t); err != nil {
				s.logger.Warn("task execution ended with error",
					"task_id", t.ID,
					"error", err,
				)
			}
		}(task)
	}

	s.mu.Lock()
	s.lastDispatch = time.Now().UTC()
	s.mu.Unlock()

	s.metrics.WriteDispatchMetric(len(due), claimed,
		float64(time.Since(cycleStart).Milliseconds()))
}

// Schedule arms (or re-arms) the power-off task for a booking.
//
// The scheduled time is always endTime + PowerOffBuffer. Scheduling is
// idempotent per booking: an existing scheduled task moves to the new
// time, an executing task is left alone with a warning, and only when
// no active task exists is a new row created.
func (s *Scheduler) Schedule(ctx context.Context, bookingID, roomID string, endTime time.Time) error {
	scheduledTime := endTime.UTC().Add(PowerOffBuffer)

	existing, err := s.tasks.GetActiveByBooking(ctx, bookingID)
	switch {
	case err == nil:
		return s.rearm(ctx, existing, scheduledTime)
	case errors.Is(err, ErrTaskNotFound):
		// fall through to create
	default:
		return fmt.Errorf("checking active task for booking %s: %w", bookingID, err)
	}

	task := &Task{
		ID:            "task-" + uuid.NewString()[:8],
		BookingID:     bookingID,
		RoomID:        roomID,
		ScheduledTime: scheduledTime,
		Status:        StatusScheduled,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("creating power-off task for booking %s: %w", bookingID, err)
	}

	s.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionTaskScheduled,
		ActorID:   "scheduler",
		RoomID:    roomID,
		BookingID: bookingID,
		Details:   map[string]any{"scheduled_time": scheduledTime.Format(time.RFC3339)},
	})

	s.logger.Info("power-off task scheduled",
		"task_id", task.ID,
		"booking_id", bookingID,
		"room_id", roomID,
		"scheduled_time", scheduledTime,
	)
	return nil
}

// rearm moves an existing active task to a new time where possible.
func (s *Scheduler) rearm(ctx context.Context, task *Task, scheduledTime time.Time) error {
	if task.Status == StatusExecuting {
		s.warnExecuting(ctx, task)
		return nil
	}
	if task.ScheduledTime.Equal(scheduledTime) {
		return nil
	}

	if err := s.tasks.UpdateScheduledTime(ctx, task.BookingID, scheduledTime); err != nil {
		// The dispatch loop may have claimed it between the read and
		// the update; treat like the executing case.
		if errors.Is(err, ErrTaskStateConflict) {
			s.warnExecuting(ctx, task)
			return nil
		}
		return fmt.Errorf("rescheduling task for booking %s: %w", task.BookingID, err)
	}

	s.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionTaskRescheduled,
		ActorID:   "scheduler",
		RoomID:    task.RoomID,
		BookingID: task.BookingID,
		Details: map[string]any{
			"previous_time":  task.ScheduledTime.Format(time.RFC3339),
			"scheduled_time": scheduledTime.Format(time.RFC3339),
		},
	})
	return nil
}

// warnExecuting records that a schedule request arrived for a task the
// dispatch loop already claimed. The task is left alone; the audit
// trail keeps the trace.
func (s *Scheduler) warnExecuting(ctx context.Context, task *Task) {
	s.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionTaskScheduled,
		ActorID:   "scheduler",
		RoomID:    task.RoomID,
		BookingID: task.BookingID,
		Details:   map[string]any{"warning": "task already executing"},
	})
	s.logger.Warn("schedule requested while task executing",
		"task_id", task.ID,
		"booking_id", task.BookingID,
	)
}

// Cancel withdraws a booking's scheduled task.
//
// Returns ErrTaskStateConflict when execution already started or the
// task is terminal, and ErrTaskNotFound when the booking never had a
// task.
func (s *Scheduler) Cancel(ctx context.Context, bookingID string) error {
	task, err := s.tasks.CancelActive(ctx, bookingID)
	if err != nil {
		return err
	}

	s.recordAudit(ctx, &audit.AuditLog{
		Action:    audit.ActionTaskCancelled,
		ActorID:   "scheduler",
		RoomID:    task.RoomID,
		BookingID: bookingID,
	})

	s.logger.Info("power-off task cancelled",
		"task_id", task.ID,
		"booking_id", bookingID,
	)
	return nil
}

// Reschedule moves a booking's pending task to follow a new end time.
func (s *Scheduler) Reschedule(ctx context.Context, bookingID string, endTime time.Time) error {
	task, err := s.tasks.GetActiveByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	return s.rearm(ctx, task, endTime.UTC().Add(PowerOffBuffer))
}

// GetStatus returns the most recent task for a booking in any status.
func (s *Scheduler) GetStatus(ctx context.Context, bookingID string) (*Task, error) {
	return s.tasks.GetLatestByBooking(ctx, bookingID)
}

// ListActive returns all scheduled and executing tasks.
func (s *Scheduler) ListActive(ctx context.Context) ([]Task, error) {
	return s.tasks.ListActive(ctx)
}

// ListActiveByRoom returns a room's scheduled and executing tasks.
func (s *Scheduler) ListActiveByRoom(ctx context.Context, roomID string) ([]Task, error) {
	return s.tasks.ListActiveByRoom(ctx, roomID)
}

// ListByStatus returns task history filtered to one status.
func (s *Scheduler) ListByStatus(ctx context.Context, status string) ([]Task, error) {
	return s.tasks.ListByStatus(ctx, status)
}

// Health reports scheduler state for the management API.
func (s *Scheduler) Health(ctx context.Context) (*HealthStatus, error) {
	scheduled, err := s.tasks.CountByStatus(ctx, StatusScheduled)
	if err != nil {
		return nil, err
	}
	executing, err := s.tasks.CountByStatus(ctx, StatusExecuting)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &HealthStatus{
		Running:      s.running,
		Scheduled:    scheduled,
		Executing:    executing,
		LastDispatch: s.lastDispatch,
	}, nil
}

// recordAudit writes an audit entry, logging on failure.
func (s *Scheduler) recordAudit(ctx context.Context, entry *audit.AuditLog) {
	if err := s.audits.Record(ctx, entry); err != nil {
		s.logger.Error("recording audit entry",
			"action", entry.Action,
			"booking_id", entry.BookingID,
			"error", err,
		)
	}
}
