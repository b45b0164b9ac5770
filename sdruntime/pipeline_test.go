package sdruntime

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeModels is a scripted model pair. It tracks how many generations are
// inside the base->refine window at once.
type fakeModels struct {
	baseErr    error
	refineErr  error
	releaseErr error
	basePanic  bool
	delay      time.Duration
	block      chan struct{} // when set, GenerateBase waits on it
	entered    chan struct{} // when set, GenerateBase signals entry

	active    atomic.Int32
	maxActive atomic.Int32
	bases     atomic.Int32
	refines   atomic.Int32
	releases  atomic.Int32

	mu       sync.Mutex
	lastBase BaseInput
	lastRef  RefineInput
}

func (f *fakeModels) GenerateBase(ctx context.Context, in BaseInput) ([]image.Image, error) {
	n := f.active.Add(1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	f.bases.Add(1)

	f.mu.Lock()
	f.lastBase = in
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			f.active.Add(-1)
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.basePanic {
		f.active.Add(-1)
		panic("base exploded")
	}
	if f.baseErr != nil {
		f.active.Add(-1)
		return nil, f.baseErr
	}
	return []image.Image{image.NewRGBA(image.Rect(0, 0, in.Width, in.Height))}, nil
}

func (f *fakeModels) Refine(ctx context.Context, in RefineInput) (image.Image, error) {
	defer f.active.Add(-1)
	f.refines.Add(1)

	f.mu.Lock()
	f.lastRef = in
	f.mu.Unlock()

	if f.refineErr != nil {
		return nil, f.refineErr
	}
	return in.Images[0], nil
}

func (f *fakeModels) ReleaseMemory(ctx context.Context) error {
	f.releases.Add(1)
	return f.releaseErr
}

func (f *fakeModels) loader(loads *atomic.Int32) Loader {
	return func(ctx context.Context, device Device) (*ModelPair, error) {
		if loads != nil {
			loads.Add(1)
		}
		return &ModelPair{Base: f, Refiner: f, Releaser: f, Device: device}, nil
	}
}

func TestPipelines_GetBeforeReady(t *testing.T) {
	p := NewPipelines((&fakeModels{}).loader(nil))

	if _, err := p.Get(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if p.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %v", p.State())
	}
	if p.Device() != "" {
		t.Errorf("expected no device before load, got %q", p.Device())
	}
}

func TestPipelines_EnsureReadyConcurrent(t *testing.T) {
	var calls atomic.Int32
	models := &fakeModels{}
	p := NewPipelines(func(ctx context.Context, device Device) (*ModelPair, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &ModelPair{Base: models, Refiner: models, Device: device}, nil
	})

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.EnsureReady(context.Background(), DeviceCUDA)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureReady() error = %v", err)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
	if p.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", p.Loads())
	}
	if p.State() != StateReady {
		t.Errorf("expected ready, got %v", p.State())
	}

	first, err := p.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := p.Get()
		if again != first {
			t.Fatal("Get() returned a different pair")
		}
	}
	if p.Device() != DeviceCUDA {
		t.Errorf("Device() = %q, want cuda", p.Device())
	}

	// Further calls are no-ops.
	if err := p.EnsureReady(context.Background(), DeviceCPU); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("loader re-run after ready")
	}
}

func TestPipelines_LoadFailureAllowsRetry(t *testing.T) {
	var attempts atomic.Int32
	models := &fakeModels{}
	p := NewPipelines(func(ctx context.Context, device Device) (*ModelPair, error) {
		if attempts.Add(1) == 1 {
			return nil, ErrRuntimeUnavailable
		}
		return &ModelPair{Base: models, Refiner: models}, nil
	})

	err := p.EnsureReady(context.Background(), DeviceCPU)
	if !errors.Is(err, ErrModelLoadFailed) || !errors.Is(err, ErrRuntimeUnavailable) {
		t.Fatalf("expected wrapped load failure, got %v", err)
	}
	if p.State() != StateUninitialized {
		t.Errorf("expected uninitialized after failure, got %v", p.State())
	}
	if _, err := p.Get(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after failure, got %v", err)
	}

	if err := p.EnsureReady(context.Background(), DeviceCPU); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if p.Loads() != 2 {
		t.Errorf("Loads() = %d, want 2", p.Loads())
	}
	if p.Device() != DeviceCPU {
		t.Errorf("device should default to the requested one, got %q", p.Device())
	}
}

func TestPipelines_Invalidate(t *testing.T) {
	var loads atomic.Int32
	p := NewPipelines((&fakeModels{}).loader(&loads))

	if p.Invalidate(nil) {
		t.Error("Invalidate(nil) should be a no-op")
	}

	if err := p.EnsureReady(context.Background(), DeviceCPU); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	first, _ := p.Get()

	if !p.Invalidate(first) {
		t.Fatal("Invalidate() did not drop the current pair")
	}
	if _, err := p.Get(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after Invalidate, got %v", err)
	}
	if p.State() != StateUninitialized {
		t.Errorf("expected uninitialized, got %v", p.State())
	}

	if err := p.EnsureReady(context.Background(), DeviceCPU); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	second, _ := p.Get()
	if second == first {
		t.Error("expected a freshly loaded pair")
	}
	if loads.Load() != 2 {
		t.Errorf("loader called %d times, want 2", loads.Load())
	}

	// A stale pair from before the reload leaves the current one alone.
	if p.Invalidate(first) {
		t.Error("Invalidate() dropped a pair that is no longer current")
	}
	if got, err := p.Get(); err != nil || got != second {
		t.Errorf("Get() = %p, %v after stale Invalidate", got, err)
	}
}

func TestPipelines_IncompletePair(t *testing.T) {
	tests := []struct {
		name string
		pair *ModelPair
	}{
		{"nil pair", nil},
		{"missing refiner", &ModelPair{Base: &fakeModels{}}},
		{"missing base", &ModelPair{Refiner: &fakeModels{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipelines(func(ctx context.Context, device Device) (*ModelPair, error) {
				return tt.pair, nil
			})
			err := p.EnsureReady(context.Background(), DeviceCPU)
			if !errors.Is(err, ErrModelLoadFailed) {
				t.Errorf("expected ErrModelLoadFailed, got %v", err)
			}
			if p.State() != StateUninitialized {
				t.Errorf("expected uninitialized, got %v", p.State())
			}
		})
	}
}

func TestPipelines_NilLoader(t *testing.T) {
	p := NewPipelines(nil)
	if err := p.EnsureReady(context.Background(), DeviceCPU); !errors.Is(err, ErrModelLoadFailed) {
		t.Errorf("expected ErrModelLoadFailed, got %v", err)
	}
}

func TestState_String(t *testing.T) {
	if StateReady.String() != "ready" || StateInitializing.String() != "initializing" || StateUninitialized.String() != "uninitialized" {
		t.Error("unexpected state names")
	}
}

type fakeProbe struct {
	ok  bool
	err error
}

func (p fakeProbe) CUDAAvailable(ctx context.Context) (bool, error) {
	return p.ok, p.err
}

func TestSelectDevice(t *testing.T) {
	probeErr := errors.New("probe failed")

	tests := []struct {
		name       string
		preference Device
		probe      DeviceProbe
		want       Device
		wantErr    bool
	}{
		{"explicit cpu", DeviceCPU, fakeProbe{ok: true}, DeviceCPU, false},
		{"explicit cuda", DeviceCUDA, fakeProbe{ok: false}, DeviceCUDA, false},
		{"auto with cuda", DeviceAuto, fakeProbe{ok: true}, DeviceCUDA, false},
		{"auto without cuda", DeviceAuto, fakeProbe{ok: false}, DeviceCPU, false},
		{"empty means auto", "", fakeProbe{ok: true}, DeviceCUDA, false},
		{"auto without probe", DeviceAuto, nil, DeviceCPU, false},
		{"probe error falls back", DeviceAuto, fakeProbe{err: probeErr}, DeviceCPU, true},
		{"unknown", Device("npu"), nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectDevice(context.Background(), tt.preference, tt.probe)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SelectDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SelectDevice() = %q, want %q", got, tt.want)
			}
		})
	}
}
