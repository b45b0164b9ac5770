package shutdown

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"stylizer/core"
)

// Cleanup priorities used by the service. Lower values run first.
const (
	PriorityHTTPServer    = 10 // stop accepting requests
	PriorityHistoryWriter = 20 // flush queued history rows
	PriorityDatabase      = 30 // close SQLite
	PriorityUploads       = 40 // remove leftover uploads
	PriorityLogger        = 90 // flush logs last
)

type handler struct {
	name     string
	priority int
	fn       core.ShutdownFunc
}

// CleanupResult reports how one shutdown function went.
type CleanupResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// ShutdownRegistry holds the cleanup functions. It runs them once, by
// ascending priority and then registration order.
type ShutdownRegistry struct {
	mu       sync.Mutex
	handlers []handler
	closed   bool
}

func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds fn. Registrations that arrive after Shutdown are dropped.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.handlers = append(r.handlers, handler{name: name, priority: priority, fn: fn})
	}
}

// ordered returns the handlers in run order. Callers hold mu.
func (r *ShutdownRegistry) ordered() []handler {
	out := slices.Clone(r.handlers)
	slices.SortStableFunc(out, func(a, b handler) int { return cmp.Compare(a.priority, b.priority) })
	return out
}

// Shutdown calls every handler with ctx, continuing past failures, and
// returns one result each. Later calls return nil.
func (r *ShutdownRegistry) Shutdown(ctx context.Context) []CleanupResult {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	run := r.ordered()
	r.mu.Unlock()

	results := make([]CleanupResult, len(run))
	for i, h := range run {
		began := time.Now()
		err := h.fn(ctx)
		if err != nil {
			err = fmt.Errorf("%s: %w", h.name, err)
		}
		results[i] = CleanupResult{Name: h.name, Duration: time.Since(began), Err: err}
	}
	return results
}

// Names lists the handlers in the order Shutdown will run them.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.handlers))
	for _, h := range r.ordered() {
		names = append(names, h.name)
	}
	return names
}

func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func (r *ShutdownRegistry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Errors keeps the failed results' errors, in run order.
func Errors(results []CleanupResult) []error {
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errs
}
