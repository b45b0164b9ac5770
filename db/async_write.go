package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultQueueCapacity bounds how many history rows may wait for SQLite
// before Enqueue starts refusing them.
const DefaultQueueCapacity = 100

// Statement is one queued write.
type Statement struct {
	Query    string
	Args     []any
	QueuedAt time.Time
}

// StatementHandler executes a queued statement.
type StatementHandler func(ctx context.Context, stmt Statement) error

type writerState int

const (
	writerIdle writerState = iota
	writerRunning
	writerStopped
)

// AsyncWriter moves history inserts off the request path. A single goroutine
// executes statements in the order they were queued; failures are counted,
// logged and dropped.
type AsyncWriter struct {
	queue   chan Statement
	handler StatementHandler
	logger  *zap.Logger

	mu    sync.Mutex
	state writerState
	quit  chan struct{}
	done  chan struct{}

	failed atomic.Int64
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	QueueCapacity int
	Logger        *zap.Logger
}

// NewAsyncWriter creates a writer with DefaultQueueCapacity.
func NewAsyncWriter(handler StatementHandler, logger *zap.Logger) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, AsyncWriterConfig{Logger: logger})
}

func NewAsyncWriterWithConfig(handler StatementHandler, config AsyncWriterConfig) *AsyncWriter {
	capacity := config.QueueCapacity
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncWriter{
		queue:   make(chan Statement, capacity),
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. It does nothing if the writer already ran.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != writerIdle {
		return
	}
	w.state = writerRunning
	go w.loop()
}

func (w *AsyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case stmt := <-w.queue:
			w.exec(stmt)
		case <-w.quit:
			// flush what was accepted before Stop
			for len(w.queue) > 0 {
				w.exec(<-w.queue)
			}
			return
		}
	}
}

func (w *AsyncWriter) exec(stmt Statement) {
	if err := w.handler(context.Background(), stmt); err != nil {
		w.failed.Add(1)
		w.logger.Warn("async write failed",
			zap.Error(err),
			zap.Duration("queued_for", time.Since(stmt.QueuedAt)),
		)
	}
}

// Enqueue hands a statement to the worker without blocking. It reports false
// when the writer is not running or the queue is full, in which case the
// caller writes synchronously.
func (w *AsyncWriter) Enqueue(query string, args ...any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != writerRunning {
		return false
	}
	select {
	case w.queue <- Statement{Query: query, Args: args, QueuedAt: time.Now()}:
		return true
	default:
		return false
	}
}

func (w *AsyncWriter) Pending() int { return len(w.queue) }

// Failed counts statements whose handler returned an error.
func (w *AsyncWriter) Failed() int64 { return w.failed.Load() }

func (w *AsyncWriter) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == writerRunning
}

// Stop refuses further writes and waits until the queue is flushed or ctx
// ends. It matches core.ShutdownFunc.
func (w *AsyncWriter) Stop(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case writerRunning:
		close(w.quit)
	case writerIdle:
		// no worker will ever close it
		close(w.done)
	}
	w.state = writerStopped
	w.mu.Unlock()
	return w.wait(ctx)
}

func (w *AsyncWriter) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
