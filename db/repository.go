package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Generation statuses stored in the status column.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultListLimit is used when ListRecent is given a non-positive limit.
const DefaultListLimit = 20

// MaxListLimit caps ListRecent.
const MaxListLimit = 500

// ErrNotFound is returned when a generation id has no row.
var ErrNotFound = errors.New("generation not found")

// GenerationRecord is one row of the generations table.
type GenerationRecord struct {
	ID                int64     `json:"-"`
	GenerationID      string    `json:"generation_id"`
	Prompt            string    `json:"prompt"`
	NegativePrompt    string    `json:"negative_prompt,omitempty"`
	Style             string    `json:"style,omitempty"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	Seed              int64     `json:"seed"`
	ConditioningScale float64   `json:"conditioning_scale"`
	Status            string    `json:"status"`
	FailureKind       string    `json:"failure_kind,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	OutputFile        string    `json:"output_file,omitempty"`
	AnimationFile     string    `json:"animation_file,omitempty"`
	WaitMS            int64     `json:"wait_ms"`
	DurationMS        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

const insertGenerationSQL = `
	INSERT INTO generations (
		generation_id, prompt, negative_prompt, style, width, height, seed,
		conditioning_scale, status, failure_kind, error_message, output_file,
		animation_file, wait_ms, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectGenerationSQL = `
	SELECT id, generation_id, prompt, COALESCE(negative_prompt, ''), COALESCE(style, ''),
	       width, height, seed, conditioning_scale, status,
	       COALESCE(failure_kind, ''), COALESCE(error_message, ''),
	       COALESCE(output_file, ''), COALESCE(animation_file, ''),
	       wait_ms, duration_ms, created_at
	FROM generations`

// Repository reads and writes generation history. Inserts go through the
// AsyncWriter when one is running and fall back to a direct write when it is
// not or its queue is full.
type Repository struct {
	db     *Database
	writer *AsyncWriter
}

// NewRepository creates a Repository. writer may be nil for synchronous
// writes.
func NewRepository(db *Database, writer *AsyncWriter) *Repository {
	return &Repository{db: db, writer: writer}
}

// NewRepositoryWriter builds an AsyncWriter that executes statements on db.
func NewRepositoryWriter(db *Database, config AsyncWriterConfig) *AsyncWriter {
	return NewAsyncWriterWithConfig(func(ctx context.Context, stmt Statement) error {
		_, err := db.ExecContext(ctx, stmt.Query, stmt.Args...)
		return err
	}, config)
}

func insertArgs(rec GenerationRecord) []any {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return []any{
		rec.GenerationID,
		rec.Prompt,
		nullString(rec.NegativePrompt),
		nullString(rec.Style),
		rec.Width,
		rec.Height,
		rec.Seed,
		rec.ConditioningScale,
		rec.Status,
		nullString(rec.FailureKind),
		nullString(rec.ErrorMessage),
		nullString(rec.OutputFile),
		nullString(rec.AnimationFile),
		rec.WaitMS,
		rec.DurationMS,
		formatTime(createdAt),
	}
}

func validateRecord(rec GenerationRecord) error {
	if rec.GenerationID == "" {
		return fmt.Errorf("generation id is required")
	}
	if rec.Status != StatusSuccess && rec.Status != StatusError {
		return fmt.Errorf("invalid status %q", rec.Status)
	}
	return nil
}

// InsertGeneration stores rec. It returns the row id for synchronous writes
// and 0 when the write was queued.
func (r *Repository) InsertGeneration(ctx context.Context, rec GenerationRecord) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}
	args := insertArgs(rec)

	if r.writer != nil && r.writer.Enqueue(insertGenerationSQL, args...) {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, insertGenerationSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit generations, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]GenerationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectGenerationSQL+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	records := []GenerationRecord{}
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generations: %w", err)
	}
	return records, nil
}

// GetByGenerationID returns the row for generationID or ErrNotFound.
func (r *Repository) GetByGenerationID(ctx context.Context, generationID string) (GenerationRecord, error) {
	row, err := r.db.QueryRowContext(ctx, selectGenerationSQL+" WHERE generation_id = ?", generationID)
	if err != nil {
		return GenerationRecord{}, err
	}

	rec, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GenerationRecord{}, ErrNotFound
	}
	return rec, err
}

// CountByStatus returns the number of rows per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM generations GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count generations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan generation count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(s scanner) (GenerationRecord, error) {
	var rec GenerationRecord
	var createdAt string

	err := s.Scan(
		&rec.ID,
		&rec.GenerationID,
		&rec.Prompt,
		&rec.NegativePrompt,
		&rec.Style,
		&rec.Width,
		&rec.Height,
		&rec.Seed,
		&rec.ConditioningScale,
		&rec.Status,
		&rec.FailureKind,
		&rec.ErrorMessage,
		&rec.OutputFile,
		&rec.AnimationFile,
		&rec.WaitMS,
		&rec.DurationMS,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan generation row: %w", err)
	}

	rec.CreatedAt = parseTime(createdAt)
	return rec, nil
}

// nullString stores empty strings as NULL.
func nullString(s string) any {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
