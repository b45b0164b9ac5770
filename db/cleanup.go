package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult describes one retention pass.
type CleanupResult struct {
	Deleted  int64
	Cutoff   time.Time
	Duration time.Duration
}

// Cleanup deletes generations created before now minus retention and then
// vacuums the file. A zero retention keeps everything.
//
//	result, err := database.Cleanup(ctx, 30*24*time.Hour)
func (d *Database) Cleanup(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retention < 0 {
		return result, fmt.Errorf("retention must be non-negative, got %v", retention)
	}
	if retention == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return result, ErrClosed
	}

	result.Cutoff = start.Add(-retention)
	res, err := d.db.ExecContext(ctx, "DELETE FROM generations WHERE created_at < ?", formatTime(result.Cutoff))
	if err != nil {
		return result, fmt.Errorf("failed to delete expired generations: %w", err)
	}
	if result.Deleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("failed to count deleted generations: %w", err)
	}

	if result.Deleted > 0 {
		if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig configures StartCleanupScheduler.
type CleanupSchedulerConfig struct {
	Retention time.Duration
	Interval  time.Duration
	// OnCleanup is called after every pass (optional)
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupInterval is how often the scheduler runs by default.
const DefaultCleanupInterval = 24 * time.Hour

// StartCleanupScheduler runs Cleanup immediately and then every Interval
// until ctx is cancelled. The returned channel is closed when the goroutine
// exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) <-chan struct{} {
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupInterval
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		run := func() {
			result, err := d.Cleanup(ctx, config.Retention)
			if config.OnCleanup != nil {
				config.OnCleanup(result, err)
			}
		}
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	return done
}
