package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Database owns the SQLite file holding the generation history. Every call
// after Close fails with ErrClosed.
//
//	database, err := db.NewDatabase(ctx, cfg.DatabasePath)
//	if err != nil {
//	    return err
//	}
//	if err := database.Migrate(); err != nil {
//	    return err
//	}
//	repo := db.NewRepository(database)
type Database struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewDatabase opens path with DefaultConnectionConfig.
func NewDatabase(ctx context.Context, path string) (*Database, error) {
	return NewDatabaseWithConfig(ctx, DefaultConnectionConfig(path))
}

// NewDatabaseWithConfig creates the parent directory of config.Path and opens
// the connection.
func NewDatabaseWithConfig(ctx context.Context, config ConnectionConfig) (*Database, error) {
	if config.Path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	conn, err := NewSQLiteConnection(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Database{db: conn, path: config.Path}, nil
}

// using runs fn with the open connection while holding the read lock.
func (d *Database) using(fn func(*sql.DB) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return fn(d.db)
}

// Migrate brings the schema up to date. golang-migrate closes the handle it
// is given, so it works on its own connection to the same file.
func (d *Database) Migrate() error {
	return d.using(func(*sql.DB) error {
		if err := MigrateUpFromPath(d.path); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	})
}

func (d *Database) Path() string { return d.path }

// DB returns the connection, or nil once closed.
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Close is idempotent.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	conn := d.db
	d.db = nil
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

func (d *Database) Ping(ctx context.Context) error {
	return d.using(func(conn *sql.DB) error { return conn.PingContext(ctx) })
}

func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (res sql.Result, err error) {
	err = d.using(func(conn *sql.DB) error {
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, err error) {
	err = d.using(func(conn *sql.DB) error {
		rows, err = conn.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// QueryRowContext differs from sql.DB's only in reporting ErrClosed up front.
func (d *Database) QueryRowContext(ctx context.Context, query string, args ...any) (row *sql.Row, err error) {
	err = d.using(func(conn *sql.DB) error {
		row = conn.QueryRowContext(ctx, query, args...)
		return nil
	})
	return row, err
}
