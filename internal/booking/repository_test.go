package booking

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE bookings (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// mustCreate inserts a booking, failing the test on error.
func mustCreate(t *testing.T, repo *SQLiteRepository, b *Booking) {
	t.Helper()
	if b.Status == "" {
		b.Status = StatusConfirmed
	}
	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("creating booking %s: %v", b.ID, err)
	}
}

func TestGetByID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID:        "bkg-1",
		RoomID:    "room-201",
		UserID:    "user-42",
		StartTime: start,
		EndTime:   start.Add(4 * time.Hour),
	})

	got, err := repo.GetByID(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RoomID != "room-201" || got.UserID != "user-42" {
		t.Errorf("booking = %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, start)
	}

	_, err = repo.GetByID(ctx, "bkg-missing")
	if !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrBookingNotFound", err)
	}
}

func TestFindForAccess(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour) // 18:00
	mustCreate(t, repo, &Booking{
		ID: "bkg-1", RoomID: "room-201", UserID: "user-42",
		StartTime: start, EndTime: end,
	})

	t.Run("inside booked slot", func(t *testing.T) {
		b, err := repo.FindForAccess(ctx, "user-42", "room-201", start.Add(time.Hour))
		if err != nil {
			t.Fatalf("FindForAccess() error = %v", err)
		}
		if b.ID != "bkg-1" {
			t.Errorf("booking = %s, want bkg-1", b.ID)
		}
	})

	t.Run("inside pre-open window", func(t *testing.T) {
		b, err := repo.FindForAccess(ctx, "user-42", "room-201", start.Add(-30*time.Minute))
		if err != nil {
			t.Fatalf("FindForAccess() error = %v", err)
		}
		if b.ID != "bkg-1" {
			t.Errorf("booking = %s, want bkg-1", b.ID)
		}
	})

	t.Run("at exact end time", func(t *testing.T) {
		b, err := repo.FindForAccess(ctx, "user-42", "room-201", end)
		if err != nil {
			t.Fatalf("FindForAccess() error = %v", err)
		}
		if b.ID != "bkg-1" {
			t.Errorf("booking = %s, want bkg-1", b.ID)
		}
	})

	t.Run("before window returns upcoming booking", func(t *testing.T) {
		b, err := repo.FindForAccess(ctx, "user-42", "room-201", start.Add(-90*time.Minute))
		if err != nil {
			t.Fatalf("FindForAccess() error = %v", err)
		}
		if b.ID != "bkg-1" {
			t.Errorf("booking = %s, want bkg-1", b.ID)
		}
		// Caller distinguishes too-early from in-window by the times.
		if !b.StartTime.Equal(start) {
			t.Errorf("expected upcoming booking starting %v, got %v", start, b.StartTime)
		}
	})

	t.Run("after end returns expired booking", func(t *testing.T) {
		b, err := repo.FindForAccess(ctx, "user-42", "room-201", end.Add(time.Minute))
		if err != nil {
			t.Fatalf("FindForAccess() error = %v", err)
		}
		if b.ID != "bkg-1" {
			t.Errorf("booking = %s, want bkg-1", b.ID)
		}
	})

	t.Run("wrong user", func(t *testing.T) {
		_, err := repo.FindForAccess(ctx, "user-other", "room-201", start.Add(time.Hour))
		if !errors.Is(err, ErrBookingNotFound) {
			t.Errorf("error = %v, want ErrBookingNotFound", err)
		}
	})

	t.Run("wrong room", func(t *testing.T) {
		_, err := repo.FindForAccess(ctx, "user-42", "room-999", start.Add(time.Hour))
		if !errors.Is(err, ErrBookingNotFound) {
			t.Errorf("error = %v, want ErrBookingNotFound", err)
		}
	})
}

func TestFindForAccessPrefersWindowOverUpcoming(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID: "bkg-current", RoomID: "room-201", UserID: "user-42",
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	})
	mustCreate(t, repo, &Booking{
		ID: "bkg-later", RoomID: "room-201", UserID: "user-42",
		StartTime: now.Add(3 * time.Hour), EndTime: now.Add(5 * time.Hour),
	})

	b, err := repo.FindForAccess(ctx, "user-42", "room-201", now)
	if err != nil {
		t.Fatalf("FindForAccess() error = %v", err)
	}
	if b.ID != "bkg-current" {
		t.Errorf("booking = %s, want bkg-current", b.ID)
	}
}

func TestUpdateStatus(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID: "bkg-1", RoomID: "room-201", UserID: "user-42",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
	})

	if err := repo.UpdateStatus(ctx, "bkg-1", StatusCancelled); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}

	err = repo.UpdateStatus(ctx, "bkg-missing", StatusCancelled)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrBookingNotFound", err)
	}
}

func TestUpdateEndTime(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID: "bkg-1", RoomID: "room-201", UserID: "user-42",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
	})

	newEnd := start.Add(3 * time.Hour)
	if err := repo.UpdateEndTime(ctx, "bkg-1", newEnd); err != nil {
		t.Fatalf("UpdateEndTime() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "bkg-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.EndTime.Equal(newEnd) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, newEnd)
	}
}

func TestIsActive(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusConfirmed, true},
		{StatusPending, true},
		{StatusCancelled, false},
		{StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			b := &Booking{Status: tt.status}
			if got := b.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}
