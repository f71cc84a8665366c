package poweroff

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for power-off task persistence.
//
// Claim and CancelActive are compare-and-set operations on the status
// column; they are the only way a task leaves the scheduled state.
type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	GetActiveByBooking(ctx context.Context, bookingID string) (*Task, error)
	GetLatestByBooking(ctx context.Context, bookingID string) (*Task, error)
	ListActive(ctx context.Context) ([]Task, error)
	ListActiveByRoom(ctx context.Context, roomID string) ([]Task, error)
	ListByStatus(ctx context.Context, status string) ([]Task, error)
	ListDue(ctx context.Context, before time.Time) ([]Task, error)

	Claim(ctx context.Context, id string) error
	CancelActive(ctx context.Context, bookingID string) (*Task, error)
	UpdateScheduledTime(ctx context.Context, bookingID string, scheduledTime time.Time) error
	ResetExecuting(ctx context.Context) (int64, error)

	IncrementAttempt(ctx context.Context, id, lastError string) error
	MarkCompleted(ctx context.Context, id string, attempts int) error
	MarkFailed(ctx context.Context, id, lastError string) error

	CountByStatus(ctx context.Context, status string) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed task repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const taskCols = `id, booking_id, room_id, scheduled_time, status, attempt_count, last_error, created_at, updated_at`

// Create inserts a new task. The partial unique index on booking_id
// rejects a second active task for the same booking.
func (r *SQLiteRepository) Create(ctx context.Context, t *Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Status == "" {
		t.Status = StatusScheduled
	}

	const query = `INSERT INTO power_off_tasks
		(id, booking_id, room_id, scheduled_time, status, attempt_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.BookingID, t.RoomID,
		t.ScheduledTime.UTC().Format(time.RFC3339),
		t.Status, t.AttemptCount,
		nullableString(t.LastError),
		t.CreatedAt.Format(time.RFC3339),
		t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting power-off task %s: %w", t.ID, err)
	}
	return nil
}

// GetByID returns a single task.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks WHERE id = ?`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying power-off task %s: %w", id, err)
	}
	return t, nil
}

// GetActiveByBooking returns the booking's scheduled or executing task.
func (r *SQLiteRepository) GetActiveByBooking(ctx context.Context, bookingID string) (*Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks
		WHERE booking_id = ? AND status IN ('scheduled', 'executing')`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active task for booking %s: %w", bookingID, err)
	}
	return t, nil
}

// GetLatestByBooking returns the booking's most recent task in any
// status.
func (r *SQLiteRepository) GetLatestByBooking(ctx context.Context, bookingID string) (*Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks
		WHERE booking_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	t, err := scanTask(r.db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest task for booking %s: %w", bookingID, err)
	}
	return t, nil
}

// ListActive returns all scheduled and executing tasks ordered by
// scheduled time.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks
		WHERE status IN ('scheduled', 'executing') ORDER BY scheduled_time ASC`
	return r.queryTasks(ctx, query)
}

// ListActiveByRoom returns a room's scheduled and executing tasks.
func (r *SQLiteRepository) ListActiveByRoom(ctx context.Context, roomID string) ([]Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks
		WHERE room_id = ? AND status IN ('scheduled', 'executing') ORDER BY scheduled_time ASC`
	return r.queryTasks(ctx, query, roomID)
}

// ListByStatus returns tasks in a single status, newest first.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status string) ([]Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks
		WHERE status = ? ORDER BY updated_at DESC, id DESC`
	return r.queryTasks(ctx, query, status)
}

// ListDue returns scheduled tasks whose time has come.
func (r *SQLiteRepository) ListDue(ctx context.Context, before time.Time) ([]Task, error) {
	query := `SELECT ` + taskCols + ` FROM power_off_tasks
		WHERE status = 'scheduled' AND scheduled_time <= ? ORDER BY scheduled_time ASC`
	return r.queryTasks(ctx, query, before.UTC().Format(time.RFC3339))
}

// Claim moves a task from scheduled to executing. The WHERE clause is
// the compare-and-set: a concurrent cancel or another claimer wins by
// changing the status first.
func (r *SQLiteRepository) Claim(ctx context.Context, id string) error {
	const query = `UPDATE power_off_tasks SET status = 'executing', updated_at = ?
		WHERE id = ? AND status = 'scheduled'`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("claiming power-off task %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking claim of task %s: %w", id, err)
	}
	if rows == 0 {
		return ErrTaskStateConflict
	}
	return nil
}

// CancelActive cancels a booking's scheduled task and returns it.
//
// Returns ErrTaskStateConflict when the task is already executing (the
// dispatch loop won the race) or already terminal, and ErrTaskNotFound
// only when the booking never had a task.
func (r *SQLiteRepository) CancelActive(ctx context.Context, bookingID string) (*Task, error) {
	const query = `UPDATE power_off_tasks SET status = 'cancelled', updated_at = ?
		WHERE booking_id = ? AND status = 'scheduled'`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), bookingID)
	if err != nil {
		return nil, fmt.Errorf("cancelling task for booking %s: %w", bookingID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking cancel for booking %s: %w", bookingID, err)
	}
	if rows > 0 {
		return r.GetLatestByBooking(ctx, bookingID)
	}

	// Nothing was scheduled. Any remaining row, executing or terminal,
	// means there is a task that can no longer be cancelled; no row at
	// all means the booking never had one.
	if _, err := r.GetLatestByBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return nil, ErrTaskStateConflict
}

// UpdateScheduledTime moves a booking's scheduled task to a new time.
//
// Only scheduled tasks move; returns ErrTaskStateConflict for an
// executing task and ErrTaskNotFound when no active task exists.
func (r *SQLiteRepository) UpdateScheduledTime(ctx context.Context, bookingID string, scheduledTime time.Time) error {
	const query = `UPDATE power_off_tasks SET scheduled_time = ?, updated_at = ?
		WHERE booking_id = ? AND status = 'scheduled'`
	result, err := r.db.ExecContext(ctx, query,
		scheduledTime.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		bookingID)
	if err != nil {
		return fmt.Errorf("rescheduling task for booking %s: %w", bookingID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking reschedule for booking %s: %w", bookingID, err)
	}
	if rows > 0 {
		return nil
	}

	existing, err := r.GetActiveByBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if existing.Status == StatusExecuting {
		return ErrTaskStateConflict
	}
	return ErrTaskNotFound
}

// ResetExecuting re-arms tasks caught mid-execution by a crash,
// returning them to scheduled for the dispatch loop to reclaim.
// Called once at startup before the loop starts.
func (r *SQLiteRepository) ResetExecuting(ctx context.Context) (int64, error) {
	const query = `UPDATE power_off_tasks SET status = 'scheduled', updated_at = ?
		WHERE status = 'executing'`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("re-arming executing tasks: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting re-armed tasks: %w", err)
	}
	return rows, nil
}

// IncrementAttempt bumps the attempt counter and records the error that
// caused it. The task stays executing.
func (r *SQLiteRepository) IncrementAttempt(ctx context.Context, id, lastError string) error {
	const query = `UPDATE power_off_tasks
		SET attempt_count = attempt_count + 1, last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'executing'`
	result, err := r.db.ExecContext(ctx, query, lastError, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("incrementing attempts for task %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking attempt increment for task %s: %w", id, err)
	}
	if rows == 0 {
		return ErrTaskStateConflict
	}
	return nil
}

// MarkCompleted finishes an executing task successfully, recording the
// total attempts the episode took (failed attempts plus the successful
// one).
func (r *SQLiteRepository) MarkCompleted(ctx context.Context, id string, attempts int) error {
	const query = `UPDATE power_off_tasks
		SET status = 'completed', attempt_count = ?, last_error = NULL, updated_at = ?
		WHERE id = ? AND status = 'executing'`
	result, err := r.db.ExecContext(ctx, query, attempts, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("marking task %s completed: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking finish of task %s: %w", id, err)
	}
	if rows == 0 {
		return ErrTaskStateConflict
	}
	return nil
}

// MarkFailed finishes an executing task terminally after retries are
// exhausted.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	const query = `UPDATE power_off_tasks SET status = 'failed', last_error = ?, updated_at = ?
		WHERE id = ? AND status = 'executing'`
	result, err := r.db.ExecContext(ctx, query,
		nullableString(lastError), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("marking task %s failed: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking finish of task %s: %w", id, err)
	}
	if rows == 0 {
		return ErrTaskStateConflict
	}
	return nil
}

// CountByStatus returns how many tasks are in the given status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM power_off_tasks WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s tasks: %w", status, err)
	}
	return count, nil
}

// queryTasks runs a multi-row task query.
func (r *SQLiteRepository) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying power-off tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning power-off task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating power-off tasks: %w", err)
	}

	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans a task row with RFC3339 timestamp parsing.
func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var lastError sql.NullString
	var schedStr, createdStr, updatedStr string

	if err := row.Scan(&t.ID, &t.BookingID, &t.RoomID,
		&schedStr, &t.Status, &t.AttemptCount, &lastError,
		&createdStr, &updatedStr); err != nil {
		return nil, err
	}

	if lastError.Valid {
		t.LastError = lastError.String
	}

	var err error
	if t.ScheduledTime, err = time.Parse(time.RFC3339, schedStr); err != nil {
		return nil, fmt.Errorf("parsing scheduled_time %q: %w", schedStr, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdStr, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedStr, err)
	}

	return &t, nil
}
