package sdruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stylizer/conditioning"
)

// GeneratorConfig holds the process-level settings of a Generator.
type GeneratorConfig struct {
	Device       Device    // device passed to the loader on first use
	Styles       *StyleSet // nil means DefaultStyles()
	OutputWidth  int       // final resize width, 0 keeps the refiner's size
	OutputHeight int       // final resize height, 0 keeps the refiner's size
}

// Generator runs generations one at a time against the shared model pair.
//
// A single mutex is held from conditioning through memory release, so at
// most one generation touches the models at any moment. There is no timeout
// on acquiring it and no queue beyond the goroutines blocked on it.
type Generator struct {
	pipelines *Pipelines
	cfg       GeneratorConfig
	logger    *zap.Logger

	mu      sync.Mutex
	waiting atomic.Int64
	busy    atomic.Bool
}

// NewGenerator creates a Generator over p. A nil logger discards output.
func NewGenerator(p *Pipelines, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if cfg.Styles == nil {
		cfg.Styles = DefaultStyles()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		pipelines: p,
		cfg:       cfg,
		logger:    logger,
	}
}

// Pipelines returns the lifecycle manager backing this generator.
func (g *Generator) Pipelines() *Pipelines {
	return g.pipelines
}

// Styles returns the style vocabulary used for prompt composition.
func (g *Generator) Styles() *StyleSet {
	return g.cfg.Styles
}

// Waiting reports how many callers are blocked waiting for the generation lock.
func (g *Generator) Waiting() int64 {
	return g.waiting.Load()
}

// Busy reports whether a generation currently holds the lock.
func (g *Generator) Busy() bool {
	return g.busy.Load()
}

// Generate validates req, makes sure the pipelines are loaded and then runs
// conditioning, the base pass, the refiner and memory release while holding
// the generation lock. The lock is released on every exit path, and never
// while a pass is still running on the runtime: cancelling ctx only stops a
// caller that has not yet acquired the lock.
//
// Error cases:
//   - ErrInvalidParams / ErrInvalidPrompt: request rejected before locking
//   - ErrModelLoadFailed / ErrNotInitialized: pipelines unavailable
//   - ErrInvalidImage: the image could not be conditioned
//   - ErrGenerationFailed / ErrOutOfVRAM / ErrRuntimeUnavailable: runtime fault
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := g.pipelines.EnsureReady(ctx, g.cfg.Device); err != nil {
		return nil, err
	}
	pair, err := g.pipelines.Get()
	if err != nil {
		return nil, err
	}

	g.waiting.Add(1)
	g.mu.Lock()
	g.waiting.Add(-1)
	g.busy.Store(true)
	defer func() {
		g.busy.Store(false)
		g.mu.Unlock()
	}()

	// A caller cancelled while queued never reaches the runtime. Once started,
	// the passes ignore cancellation so the lock is only released after the
	// worker has finished them.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timings := Timings{Wait: time.Since(start)}
	result, err := g.generateLocked(context.WithoutCancel(ctx), pair, req, &timings)
	timings.Total = time.Since(start)
	if err != nil {
		if errors.Is(err, ErrPipelineLost) && g.pipelines.Invalidate(pair) {
			g.logger.Warn("Runtime lost the loaded pipelines, they will be reloaded on the next request",
				zap.Error(err),
			)
		}
		return nil, err
	}
	result.Timings = timings
	return result, nil
}

// generateLocked must only be called with g.mu held.
func (g *Generator) generateLocked(ctx context.Context, pair *ModelPair, req Request, timings *Timings) (*Result, error) {
	stageStart := time.Now()
	cond, err := conditioning.Prepare(req.ImageData, req.LowThreshold, req.HighThreshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	condImage, err := cond.RGBA()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	timings.Conditioning = time.Since(stageStart)

	prompt := ComposePrompt(req.Prompt, req.Style, g.cfg.Styles)
	negative := ResolveNegativePrompt(req.NegativePrompt, g.cfg.Styles)
	seed := ResolveSeed(req.Seed)

	g.logger.Debug("Starting generation",
		zap.String("style", req.Style),
		zap.Int("width", cond.Width),
		zap.Int("height", cond.Height),
		zap.Int64("seed", seed),
	)

	stageStart = time.Now()
	drafts, err := pair.Base.GenerateBase(ctx, BaseInput{
		Prompt:             prompt,
		NegativePrompt:     negative,
		Conditioning:       condImage,
		ConditioningScale:  req.ConditioningScale,
		GuidanceScale:      req.GuidanceScale,
		ControlGuidanceEnd: req.ControlGuidanceEnd,
		Width:              cond.Width,
		Height:             cond.Height,
		Steps:              req.Steps,
		Seed:               seed,
	})
	if err != nil {
		return nil, wrapRuntimeError("base", err)
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: base pass returned no images", ErrGenerationFailed)
	}
	timings.Base = time.Since(stageStart)

	stageStart = time.Now()
	refined, err := pair.Refiner.Refine(ctx, RefineInput{
		Prompt:         prompt,
		NegativePrompt: negative,
		Images:         drafts,
		Steps:          req.RefinerSteps,
		Seed:           seed,
	})
	if err != nil {
		return nil, wrapRuntimeError("refine", err)
	}
	if refined == nil {
		return nil, fmt.Errorf("%w: refiner returned no image", ErrGenerationFailed)
	}
	timings.Refine = time.Since(stageStart)

	if pair.Releaser != nil {
		if err := pair.Releaser.ReleaseMemory(ctx); err != nil {
			g.logger.Warn("Failed to release accelerator memory", zap.Error(err))
		}
	}

	out := refined
	if g.cfg.OutputWidth > 0 && g.cfg.OutputHeight > 0 {
		out, err = ResizeImage(refined, g.cfg.OutputWidth, g.cfg.OutputHeight)
		if err != nil {
			return nil, fmt.Errorf("%w: resize output: %w", ErrGenerationFailed, err)
		}
	}

	b := out.Bounds()
	return &Result{
		Image:          out,
		Width:          b.Dx(),
		Height:         b.Dy(),
		Prompt:         prompt,
		NegativePrompt: negative,
		Seed:           seed,
	}, nil
}

// wrapRuntimeError tags runtime faults with ErrGenerationFailed unless they
// already carry a more specific runtime sentinel.
func wrapRuntimeError(stage string, err error) error {
	if errors.Is(err, ErrOutOfVRAM) || errors.Is(err, ErrRuntimeUnavailable) || errors.Is(err, ErrGenerationFailed) {
		return fmt.Errorf("%s pass: %w", stage, err)
	}
	return fmt.Errorf("%w: %s pass: %w", ErrGenerationFailed, stage, err)
}
