package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// preOpenWindow is how long before the booked start a door may open.
const preOpenWindow = time.Hour

// Repository defines the interface for booking persistence operations.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	FindForAccess(ctx context.Context, userID, roomID string, at time.Time) (*Booking, error)
	UpdateStatus(ctx context.Context, id, status string) error
	UpdateEndTime(ctx context.Context, id string, end time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed booking repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a booking into the local mirror.
func (r *SQLiteRepository) Create(ctx context.Context, b *Booking) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = now
	}

	const query = `INSERT INTO bookings (id, room_id, user_id, start_time, end_time, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.RoomID, b.UserID,
		b.StartTime.UTC().Format(time.RFC3339),
		b.EndTime.UTC().Format(time.RFC3339),
		b.Status,
		b.CreatedAt.Format(time.RFC3339),
		b.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting booking %s: %w", b.ID, err)
	}
	return nil
}

// GetByID returns a single booking by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	const query = `SELECT id, room_id, user_id, start_time, end_time, status, created_at, updated_at
		FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking %s: %w", id, err)
	}
	return b, nil
}

// FindForAccess returns the booking most relevant to an access request
// by a user for a room at a given time.
//
// Selection order:
//  1. A booking whose access window [start-1h, end] contains the
//     request time.
//  2. Failing that, the next upcoming booking (start after the request
//     time), so callers can report an early arrival.
//  3. Failing that, the most recently ended booking, so callers can
//     report an expired one.
//
// Returns ErrBookingNotFound when the user has no booking for the room
// at all.
func (r *SQLiteRepository) FindForAccess(ctx context.Context, userID, roomID string, at time.Time) (*Booking, error) {
	atStr := at.UTC().Format(time.RFC3339)

	const selectCols = `SELECT id, room_id, user_id, start_time, end_time, status, created_at, updated_at FROM bookings`

	// Booking whose access window contains the request time.
	inWindow := selectCols + `
		WHERE user_id = ? AND room_id = ?
		  AND datetime(start_time, ?) <= datetime(?)
		  AND datetime(?) <= datetime(end_time)
		ORDER BY start_time ASC LIMIT 1`
	windowModifier := fmt.Sprintf("-%d minutes", int(preOpenWindow.Minutes()))
	b, err := scanBooking(r.db.QueryRowContext(ctx, inWindow, userID, roomID, windowModifier, atStr, atStr))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying booking window for user %s room %s: %w", userID, roomID, err)
	}

	// Next upcoming booking.
	upcoming := selectCols + `
		WHERE user_id = ? AND room_id = ? AND datetime(start_time) > datetime(?)
		ORDER BY start_time ASC LIMIT 1`
	b, err = scanBooking(r.db.QueryRowContext(ctx, upcoming, userID, roomID, atStr))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying upcoming booking for user %s room %s: %w", userID, roomID, err)
	}

	// Most recently ended booking.
	past := selectCols + `
		WHERE user_id = ? AND room_id = ? AND datetime(end_time) < datetime(?)
		ORDER BY end_time DESC LIMIT 1`
	b, err = scanBooking(r.db.QueryRowContext(ctx, past, userID, roomID, atStr))
	if err == nil {
		return b, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return nil, fmt.Errorf("querying past booking for user %s room %s: %w", userID, roomID, err)
}

// UpdateStatus sets a booking's status.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating booking %s status: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking booking %s update: %w", id, err)
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateEndTime sets a booking's end time after an upstream modification.
func (r *SQLiteRepository) UpdateEndTime(ctx context.Context, id string, end time.Time) error {
	const query = `UPDATE bookings SET end_time = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		end.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id)
	if err != nil {
		return fmt.Errorf("updating booking %s end time: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking booking %s update: %w", id, err)
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBooking scans a booking row with RFC3339 timestamp parsing.
func scanBooking(row rowScanner) (*Booking, error) {
	var b Booking
	var startStr, endStr, createdStr, updatedStr string

	if err := row.Scan(&b.ID, &b.RoomID, &b.UserID,
		&startStr, &endStr, &b.Status, &createdStr, &updatedStr); err != nil {
		return nil, err
	}

	var err error
	if b.StartTime, err = time.Parse(time.RFC3339, startStr); err != nil {
		return nil, fmt.Errorf("parsing start_time %q: %w", startStr, err)
	}
	if b.EndTime, err = time.Parse(time.RFC3339, endStr); err != nil {
		return nil, fmt.Errorf("parsing end_time %q: %w", endStr, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdStr, err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedStr, err)
	}

	return &b, nil
}
