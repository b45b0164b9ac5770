package sdruntime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of the shared model pair.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Pipelines owns the process-wide model pair and builds it lazily.
//
// The pair is constructed at most once per successful initialization: the
// fast path is a single atomic load, the slow path re-checks under a mutex
// before calling the loader. A failed load leaves the manager uninitialized
// so a later call can retry.
type Pipelines struct {
	pair   atomic.Pointer[ModelPair]
	state  atomic.Int32
	loads  atomic.Int64
	mu     sync.Mutex
	loader Loader
}

// NewPipelines creates an uninitialized manager around loader.
func NewPipelines(loader Loader) *Pipelines {
	return &Pipelines{loader: loader}
}

// EnsureReady loads the model pair on first use. Safe for concurrent callers;
// only one of them runs the loader.
func (p *Pipelines) EnsureReady(ctx context.Context, device Device) error {
	if p.pair.Load() != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pair.Load() != nil {
		return nil
	}
	if p.loader == nil {
		return fmt.Errorf("%w: no loader configured", ErrModelLoadFailed)
	}

	p.state.Store(int32(StateInitializing))
	p.loads.Add(1)

	pair, err := p.loader(ctx, device)
	if err == nil && (pair == nil || pair.Base == nil || pair.Refiner == nil) {
		err = fmt.Errorf("loader returned an incomplete model pair")
	}
	if err != nil {
		p.state.Store(int32(StateUninitialized))
		return fmt.Errorf("%w: %w", ErrModelLoadFailed, err)
	}

	if pair.Device == "" {
		pair.Device = device
	}
	p.state.Store(int32(StateReady))
	p.pair.Store(pair)
	return nil
}

// Get returns the shared pair, or ErrNotInitialized before EnsureReady has
// succeeded. Every call between a load and an Invalidate returns the same
// pointer.
func (p *Pipelines) Get() (*ModelPair, error) {
	pair := p.pair.Load()
	if pair == nil {
		return nil, ErrNotInitialized
	}
	return pair, nil
}

// Invalidate drops pair if it is still the current one, so the next
// EnsureReady loads a fresh pair. It reports whether anything was dropped.
func (p *Pipelines) Invalidate(pair *ModelPair) bool {
	if pair == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pair.CompareAndSwap(pair, nil) {
		return false
	}
	p.state.Store(int32(StateUninitialized))
	return true
}

// State reports the current lifecycle state.
func (p *Pipelines) State() State {
	return State(p.state.Load())
}

// Loads reports how many times the loader has been invoked.
func (p *Pipelines) Loads() int64 {
	return p.loads.Load()
}

// Device returns the device of the loaded pair, or "" when not ready.
func (p *Pipelines) Device() Device {
	pair, err := p.Get()
	if err != nil {
		return ""
	}
	return pair.Device
}

// DeviceProbe reports whether a CUDA accelerator is usable.
type DeviceProbe interface {
	CUDAAvailable(ctx context.Context) (bool, error)
}

// SelectDevice resolves a device preference. "auto" asks the probe and falls
// back to CPU when CUDA is absent or the probe fails; explicit choices are
// returned as is. A probe error is returned together with DeviceCPU so the
// caller can log it and carry on.
func SelectDevice(ctx context.Context, preference Device, probe DeviceProbe) (Device, error) {
	switch preference {
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceCUDA:
		return DeviceCUDA, nil
	case "", DeviceAuto:
		if probe == nil {
			return DeviceCPU, nil
		}
		ok, err := probe.CUDAAvailable(ctx)
		if err != nil || !ok {
			return DeviceCPU, err
		}
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("%w: unknown device %q", ErrInvalidParams, preference)
	}
}
