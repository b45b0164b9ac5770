package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stylizer/core"
)

// Manager decides when stylizer stops and in what order things close. The
// first SIGINT or SIGTERM (or a Trigger call from the service wrapper)
// cancels Context; Shutdown then drains the OperationTracker and runs the
// ShutdownRegistry. A second signal exits at once through SignalCounter.
//
//	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	manager.Register("http-server", shutdown.PriorityHTTPServer, srv.Shutdown)
//	manager.Start()
//	manager.Wait()
//	err := manager.Shutdown()
//	os.Exit(manager.ExitCode())
type Manager struct {
	log     *zap.Logger
	timeout time.Duration
	exit    func(int)

	ctx  context.Context
	stop context.CancelFunc

	ops      *OperationTracker
	handlers *ShutdownRegistry
	signals  *SignalCounter
	sigs     chan os.Signal

	mu        sync.Mutex
	listening bool
	done      bool
	reason    string
}

type ManagerOption func(*Manager)

// WithTimeout bounds the whole shutdown sequence. The default is a minute.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithExitFunc replaces os.Exit on the forced path.
func WithExitFunc(exit func(int)) ManagerOption {
	return func(m *Manager) { m.exit = exit }
}

// NewManager tolerates a nil logger.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		log:      logger,
		timeout:  time.Minute,
		exit:     os.Exit,
		ops:      NewOperationTracker(),
		handlers: NewShutdownRegistry(),
		sigs:     make(chan os.Signal, 1),
	}
	m.ctx, m.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	m.signals = NewSignalCounter(2, m.forceExit)
	return m
}

func (m *Manager) forceExit(sig os.Signal) {
	m.log.Warn("Second signal received, exiting without cleanup",
		zap.Stringer("signal", sig),
		zap.Int64("abandoned_operations", m.ops.ActiveCount()),
	)
	_ = m.log.Sync()
	m.exit(ExitCodeForSignal(sig))
}

// Context is cancelled as soon as shutdown is requested.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register queues fn for Shutdown; see the Priority constants for ordering.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.handlers.Register(name, priority, fn)
	m.log.Debug("Shutdown handler added", zap.String("handler", name), zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. Repeated calls do nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening {
		return
	}
	m.listening = true
	signal.Notify(m.sigs, os.Interrupt, syscall.SIGTERM)
	go m.handleSignals()
	m.log.Debug("Listening for stop signals")
}

func (m *Manager) handleSignals() {
	for sig := range m.sigs {
		if m.signals.Increment(sig) != 1 {
			continue
		}
		m.log.Info("Stop signal received, finishing current work", zap.Stringer("signal", sig))
		m.Trigger("signal " + sig.String())
	}
}

// Trigger cancels the managed context without a signal, for example when
// the HTTP server fails or the OS service manager asks the program to stop.
func (m *Manager) Trigger(reason string) {
	m.mu.Lock()
	if m.reason == "" {
		m.reason = reason
	}
	m.mu.Unlock()
	m.stop()
}

// Reason returns why shutdown was requested, or "" if it was not.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Shutdown stops accepting work, drains in-flight operations for at most the
// configured timeout and then runs the registered handlers with whatever time
// is left (never less than a second). Only the first call does anything.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	first := !m.done
	m.done = true
	m.mu.Unlock()
	if !first {
		return nil
	}
	m.stop()

	began := time.Now()
	m.log.Info("Stopping stylizer",
		zap.String("reason", m.Reason()),
		zap.Duration("timeout", m.timeout),
		zap.Strings("handlers", m.handlers.Names()),
	)

	m.drain()
	budget := max(m.timeout-time.Since(began), time.Second)
	errs := m.cleanup(budget)
	m.stopSignals()

	if len(errs) > 0 {
		m.log.Error("Stopped with cleanup errors",
			zap.Duration("took", time.Since(began)),
			zap.Errors("errors", errs),
		)
		return fmt.Errorf("shutdown had %d errors: %w", len(errs), errors.Join(errs...))
	}
	m.log.Info("Stopped cleanly", zap.Duration("took", time.Since(began)))
	return nil
}

// drain closes the tracker and waits for the operations it still holds.
func (m *Manager) drain() {
	m.ops.Close()
	active := m.ops.Active()
	if len(active) == 0 {
		return
	}
	fields := make([]zap.Field, 0, len(active))
	for name, n := range active {
		fields = append(fields, zap.Int64(name, n))
	}
	m.log.Info("Draining in-flight operations", fields...)

	if err := m.ops.Wait(m.timeout); err != nil {
		m.log.Warn("Gave up waiting for in-flight operations",
			zap.Int64("abandoned", m.ops.ActiveCount()),
		)
		return
	}
	m.log.Info("In-flight operations finished")
}

// cleanup runs the registry under a budget-limited context.
func (m *Manager) cleanup(budget time.Duration) []error {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	results := m.handlers.Shutdown(ctx)
	for _, res := range results {
		log := m.log.With(zap.String("handler", res.Name), zap.Duration("took", res.Duration))
		if res.Err != nil {
			log.Error("Shutdown handler failed", zap.Error(res.Err))
			continue
		}
		log.Debug("Shutdown handler done")
	}
	return Errors(results)
}

func (m *Manager) stopSignals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening {
		signal.Stop(m.sigs)
		close(m.sigs)
		m.listening = false
	}
}

// Wait blocks until shutdown is requested.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// WrapOperation runs fn as a tracked operation so Shutdown waits for it. After
// shutdown is requested it refuses with ErrTrackerClosed.
//
//	err := manager.WrapOperation(ctx, "generate", func(ctx context.Context) error {
//	    result, err = generator.Generate(ctx, req)
//	    return err
//	})
func (m *Manager) WrapOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	if m.ctx.Err() != nil || !m.ops.Start(name) {
		m.log.Debug("Refused operation during shutdown", zap.String("operation", name))
		return ErrTrackerClosed
	}
	defer m.ops.Done(name)
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (m *Manager) ActiveOperations() int64 { return m.ops.ActiveCount() }

// ActiveByName feeds the in-flight counts of GET /api/status.
func (m *Manager) ActiveByName() map[string]int64 { return m.ops.Active() }

func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done || m.ctx.Err() != nil
}

// RegisteredHandlers lists handler names in run order.
func (m *Manager) RegisteredHandlers() []string { return m.handlers.Names() }

// ExitCode is 130 or 143 after a signal and 0 otherwise.
func (m *Manager) ExitCode() int {
	return ExitCodeForSignal(m.signals.Last())
}
