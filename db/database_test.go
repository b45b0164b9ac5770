package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newTestDatabase returns a migrated database in a temp directory.
func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	database, err := NewDatabase(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return database
}

func TestNewDatabase_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	database, err := NewDatabase(context.Background(), path)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent directory not created: %v", err)
	}
	if database.Path() != path {
		t.Errorf("Path() = %q, want %q", database.Path(), path)
	}
}

func TestNewDatabase_EmptyPath(t *testing.T) {
	if _, err := NewDatabase(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestDatabase_MigrateIsIdempotent(t *testing.T) {
	database := newTestDatabase(t)

	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	row, err := database.QueryRowContext(context.Background(),
		"SELECT name FROM sqlite_master WHERE type='table' AND name='generations'")
	if err != nil {
		t.Fatal(err)
	}
	var name string
	if err := row.Scan(&name); err != nil {
		t.Fatalf("generations table missing: %v", err)
	}
}

func TestDatabase_Close(t *testing.T) {
	database, err := NewDatabase(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}

	if err := database.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	if err := database.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after close = %v, want ErrClosed", err)
	}
	if _, err := database.ExecContext(ctx, "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("ExecContext() after close = %v, want ErrClosed", err)
	}
	if _, err := database.QueryContext(ctx, "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("QueryContext() after close = %v, want ErrClosed", err)
	}
	if err := database.Migrate(); !errors.Is(err, ErrClosed) {
		t.Errorf("Migrate() after close = %v, want ErrClosed", err)
	}
	if database.DB() != nil {
		t.Error("DB() should be nil after close")
	}
}
