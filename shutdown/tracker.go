// Package shutdown coordinates graceful shutdown of the stylizer service.
// It composes atoms from core (ShutdownFunc, exit codes) into a manager that
// stops new generations, waits for the running one and runs ordered cleanup.
package shutdown

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

var (
	// ErrTrackerClosed rejects work submitted after shutdown began.
	ErrTrackerClosed = errors.New("operation tracker is closed")
	// ErrWaitTimeout means operations were still running when Wait gave up.
	ErrWaitTimeout = errors.New("wait timeout: operations did not complete in time")
)

// OperationTracker counts in-flight operations by name so shutdown can wait
// for them and the status endpoint can report them.
//
//	if !tracker.Start("generate") {
//	    return ErrTrackerClosed
//	}
//	defer tracker.Done("generate")
type OperationTracker struct {
	mu     sync.Mutex
	active map[string]int64
	total  int64
	closed bool
	// idle is closed whenever total is zero and replaced when work starts.
	idle chan struct{}
}

func NewOperationTracker() *OperationTracker {
	idle := make(chan struct{})
	close(idle)
	return &OperationTracker{active: make(map[string]int64), idle: idle}
}

// Start registers an operation, or reports false once the tracker is closed.
// Each true return must be paired with one Done(name).
func (t *OperationTracker) Start(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.total == 0 {
		t.idle = make(chan struct{})
	}
	t.active[name]++
	t.total++
	return true
}

// Done ends one operation of the given name. Unknown names are ignored.
func (t *OperationTracker) Done(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.active[name]
	if !ok {
		return
	}
	if n <= 1 {
		delete(t.active, name)
	} else {
		t.active[name] = n - 1
	}
	t.total--
	if t.total == 0 {
		close(t.idle)
	}
}

// Wait is WaitContext with a timeout, reporting ErrWaitTimeout on expiry.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if t.WaitContext(ctx) != nil {
		return ErrWaitTimeout
	}
	return nil
}

// WaitContext returns once nothing is in flight, or with ctx's error.
func (t *OperationTracker) WaitContext(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close refuses new operations; running ones carry on.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *OperationTracker) ActiveCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Active snapshots the in-flight counts keyed by operation name.
func (t *OperationTracker) Active() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.active)
}

func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
