package database

import (
	"context"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Path:        filepath.Join(t.TempDir(), "nested", "dir", "test.db"),
		WALMode:     false,
		BusyTimeout: 1,
	}

	db, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.Path() != cfg.Path {
		t.Errorf("Path() = %q, want %q", db.Path(), cfg.Path)
	}
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}

	// sql.DB.Close is safe to call twice
	if err := db.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestMigrate_NoEmbeddedMigrations(t *testing.T) {
	// This test binary does not import the migrations package, so
	// MigrationsFS is empty and Migrate must be a safe no-op.
	ctx := context.Background()
	db, err := Open(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"up migration", "20260115_090000_initial_schema.up.sql", "20260115_090000", true, true},
		{"down migration", "20260115_090000_initial_schema.down.sql", "20260115_090000", false, true},
		{"not sql", "README.md", "", false, false},
		{"no direction", "20260115_090000_initial_schema.sql", "", false, false},
		{"too few parts", "schema.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if isUp != tt.wantUp {
				t.Errorf("isUp = %v, want %v", isUp, tt.wantUp)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	got := extractMigrationName("20260115_090000_initial_schema.up.sql")
	if got != "initial_schema" {
		t.Errorf("extractMigrationName = %q, want initial_schema", got)
	}
}
