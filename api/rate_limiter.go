package api

import (
	"context"
	"sync"
	"time"
)

// attemptRecord counts failed attempts from one client inside a window.
type attemptRecord struct {
	count   int
	resetAt time.Time
}

func (r attemptRecord) expired(now time.Time) bool {
	return !now.Before(r.resetAt)
}

// FailureLimiter blocks clients that keep presenting a wrong API key.
//
//   - each failure increments the client's counter
//   - after maxAttempts the client is blocked for the block duration
//   - a successful request clears the counter
type FailureLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

// Default failed-key limits.
const (
	DefaultMaxFailedAttempts = 10
	DefaultFailureWindow     = time.Minute
	DefaultFailureBlock      = 5 * time.Minute
)

// NewFailureLimiter creates a limiter; non-positive values use the defaults.
func NewFailureLimiter(maxAttempts int, window, block time.Duration) *FailureLimiter {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxFailedAttempts
	}
	if window <= 0 {
		window = DefaultFailureWindow
	}
	if block <= 0 {
		block = DefaultFailureBlock
	}
	return &FailureLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
		now:         time.Now,
	}
}

// Allow reports whether client may try again and, if not, for how long it
// stays blocked.
func (l *FailureLimiter) Allow(client string) (bool, time.Duration) {
	l.mu.RLock()
	record, ok := l.attempts[client]
	l.mu.RUnlock()

	now := l.now()
	if !ok || record.expired(now) || record.count < l.maxAttempts {
		return true, 0
	}
	return false, record.resetAt.Sub(now)
}

// RecordFailure counts one failed attempt for client.
func (l *FailureLimiter) RecordFailure(client string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	record, ok := l.attempts[client]
	if !ok || record.expired(now) {
		record = attemptRecord{resetAt: now.Add(l.window)}
	}

	record.count++
	if record.count == l.maxAttempts {
		record.resetAt = now.Add(l.block)
	}
	l.attempts[client] = record
}

// Reset clears client's failures.
func (l *FailureLimiter) Reset(client string) {
	l.mu.Lock()
	delete(l.attempts, client)
	l.mu.Unlock()
}

// Cleanup drops expired records and returns how many were removed.
func (l *FailureLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for client, record := range l.attempts {
		if record.expired(now) {
			delete(l.attempts, client)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (l *FailureLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked clients.
func (l *FailureLimiter) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.attempts)
}
