package audit

import (
	"context"
	"database/sql"
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
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			room_id TEXT,
			booking_id TEXT,
			details TEXT,
			created_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecord(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entry := &AuditLog{
		Action:    ActionDoorOpenSuccess,
		ActorID:   "user-42",
		RoomID:    "room-201",
		BookingID: "bkg-7f3a21",
		Details:   map[string]any{"method": "keypad"},
	}

	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("Record() did not generate an ID")
	}
	if len(entry.ID) < 4 || entry.ID[:4] != "aud-" {
		t.Errorf("ID = %q, want aud- prefix", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Record() did not set CreatedAt")
	}
}

func TestRecordMinimalEntry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	entry := &AuditLog{
		Action:  ActionTaskScheduled,
		ActorID: "scheduler",
	}

	if err := repo.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("Total = %d, want 1", result.Total)
	}
	got := result.Logs[0]
	if got.RoomID != "" || got.BookingID != "" || got.Details != nil {
		t.Errorf("optional fields not empty: %+v", got)
	}
}

func seedEntries(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	entries := []*AuditLog{
		{Action: ActionDoorOpenSuccess, ActorID: "user-1", RoomID: "room-201", BookingID: "bkg-1", CreatedAt: base},
		{Action: ActionDoorOpenDenied, ActorID: "user-2", RoomID: "room-201", Details: map[string]any{"reason": "too_early"}, CreatedAt: base.Add(time.Minute)},
		{Action: ActionTaskScheduled, ActorID: "scheduler", RoomID: "room-201", BookingID: "bkg-1", CreatedAt: base.Add(2 * time.Minute)},
		{Action: ActionPowerOffSuccess, ActorID: "scheduler", RoomID: "room-305", BookingID: "bkg-2", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("seeding entry: %v", err)
		}
	}
}

func TestList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	seedEntries(t, repo)
	ctx := context.Background()

	t.Run("all entries newest first", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 4 {
			t.Errorf("Total = %d, want 4", result.Total)
		}
		if len(result.Logs) != 4 {
			t.Fatalf("len(Logs) = %d, want 4", len(result.Logs))
		}
		if result.Logs[0].Action != ActionPowerOffSuccess {
			t.Errorf("first entry = %s, want most recent (power_off_success)", result.Logs[0].Action)
		}
	})

	t.Run("filter by action", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Action: ActionDoorOpenDenied})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 1 {
			t.Fatalf("Total = %d, want 1", result.Total)
		}
		if got := result.Logs[0].Details["reason"]; got != "too_early" {
			t.Errorf("details reason = %v, want too_early", got)
		}
	})

	t.Run("filter by actor", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{ActorID: "scheduler"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
	})

	t.Run("filter by room and booking", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{RoomID: "room-201", BookingID: "bkg-1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2", result.Total)
		}
	})

	t.Run("filter by time range", func(t *testing.T) {
		from := time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)
		to := time.Date(2026, 3, 10, 12, 3, 0, 0, time.UTC)
		result, err := repo.List(ctx, Filter{From: from, To: to})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("Total = %d, want 2 (denied + scheduled)", result.Total)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 4 {
			t.Errorf("Total = %d, want 4", result.Total)
		}
		if len(result.Logs) != 2 {
			t.Errorf("len(Logs) = %d, want 2", len(result.Logs))
		}
	})

	t.Run("no matches returns empty slice", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{RoomID: "room-999"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Logs == nil {
			t.Error("Logs is nil, want empty slice")
		}
		if result.Total != 0 {
			t.Errorf("Total = %d, want 0", result.Total)
		}
	})
}

func TestListClampsLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	result, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("Limit = %d, want clamped to 200", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("Offset = %d, want clamped to 0", result.Offset)
	}
}
