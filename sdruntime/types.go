package sdruntime

import (
	"context"
	"fmt"
	"image"
	"time"

	"stylizer/conditioning"
)

// Request holds everything needed for one stylization.
type Request struct {
	ImageData          []byte  // Required: encoded source image (PNG, JPEG, GIF, ...)
	Prompt             string  // Required: what the output should depict
	NegativePrompt     string  // Optional: overrides the built-in exclusion list
	Style              string  // Optional: "animated", "realistic" or any configured style
	ConditioningScale  float64 // ControlNet conditioning strength (0.0-2.0)
	GuidanceScale      float64 // Classifier-free guidance scale (1.0-30.0)
	ControlGuidanceEnd float64 // Fraction of steps the edge map guides (0.0-1.0]
	Steps              int     // Base pass inference steps (1-150)
	RefinerSteps       int     // Refiner inference steps (1-150)
	LowThreshold       int     // Canny hysteresis low bound
	HighThreshold      int     // Canny hysteresis high bound
	Seed               int64   // Random seed (-1 for random)
}

// Parameter validation constants
const (
	MinSteps = 1
	MaxSteps = 150

	MinGuidanceScale = 1.0
	MaxGuidanceScale = 30.0

	MinConditioningScale = 0.0
	MaxConditioningScale = 2.0

	MaxPromptLength = 1000
)

// Generation defaults
const (
	DefaultConditioningScale  = 1.0
	DefaultGuidanceScale      = 10.0
	DefaultControlGuidanceEnd = 0.8
	DefaultSteps              = 60
	DefaultRefinerSteps       = 40
)

// DefaultRequest returns a request populated with the standard tuning values.
func DefaultRequest() Request {
	return Request{
		ConditioningScale:  DefaultConditioningScale,
		GuidanceScale:      DefaultGuidanceScale,
		ControlGuidanceEnd: DefaultControlGuidanceEnd,
		Steps:              DefaultSteps,
		RefinerSteps:       DefaultRefinerSteps,
		LowThreshold:       conditioning.DefaultLowThreshold,
		HighThreshold:      conditioning.DefaultHighThreshold,
		Seed:               -1,
	}
}

// Validate checks a request without touching the pipelines.
func (r Request) Validate() error {
	if err := ValidatePrompt(r.Prompt); err != nil {
		return err
	}

	if len(r.ImageData) == 0 {
		return fmt.Errorf("%w: image is required", ErrInvalidParams)
	}

	if len(r.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(r.NegativePrompt), MaxPromptLength)
	}

	return r.ValidateTuning()
}

// ValidateTuning checks only the numeric generation parameters, so a set of
// defaults can be validated before any image or prompt exists.
func (r Request) ValidateTuning() error {
	if r.ConditioningScale < MinConditioningScale || r.ConditioningScale > MaxConditioningScale {
		return fmt.Errorf("%w: conditioning scale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, r.ConditioningScale, MinConditioningScale, MaxConditioningScale)
	}

	if r.GuidanceScale < MinGuidanceScale || r.GuidanceScale > MaxGuidanceScale {
		return fmt.Errorf("%w: guidance scale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, r.GuidanceScale, MinGuidanceScale, MaxGuidanceScale)
	}

	if r.ControlGuidanceEnd <= 0 || r.ControlGuidanceEnd > 1 {
		return fmt.Errorf("%w: control guidance end %.2f must be in (0, 1]",
			ErrInvalidParams, r.ControlGuidanceEnd)
	}

	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, r.Steps, MinSteps, MaxSteps)
	}

	if r.RefinerSteps < MinSteps || r.RefinerSteps > MaxSteps {
		return fmt.Errorf("%w: refiner steps %d must be between %d and %d",
			ErrInvalidParams, r.RefinerSteps, MinSteps, MaxSteps)
	}

	if r.LowThreshold < 0 || r.HighThreshold > conditioning.MaxThreshold || r.LowThreshold > r.HighThreshold {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= low (%d) <= high (%d) <= %d",
			ErrInvalidParams, r.LowThreshold, r.HighThreshold, conditioning.MaxThreshold)
	}

	if r.Seed < -1 {
		return fmt.Errorf("%w: seed %d must be -1 or non-negative", ErrInvalidParams, r.Seed)
	}

	return nil
}

// Device names where the runtime executes the pipelines.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// ParseDevice accepts "auto", "cuda" or "cpu" (case-sensitive, empty is auto).
func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCUDA, DeviceCPU:
		return Device(s), nil
	default:
		return "", fmt.Errorf("%w: unknown device %q", ErrInvalidParams, s)
	}
}

// BaseInput is the per-call input to the ControlNet base pass.
type BaseInput struct {
	Prompt             string
	NegativePrompt     string
	Conditioning       image.Image
	ConditioningScale  float64
	GuidanceScale      float64
	ControlGuidanceEnd float64
	Width              int
	Height             int
	Steps              int
	Seed               int64
}

// RefineInput is the per-call input to the refiner.
type RefineInput struct {
	Prompt         string
	NegativePrompt string
	Images         []image.Image
	Steps          int
	Seed           int64
}

// BaseGenerator produces draft images from a prompt and an edge map.
type BaseGenerator interface {
	GenerateBase(ctx context.Context, in BaseInput) ([]image.Image, error)
}

// Refiner sharpens base images.
type Refiner interface {
	Refine(ctx context.Context, in RefineInput) (image.Image, error)
}

// MemoryReleaser returns cached accelerator memory after a generation.
type MemoryReleaser interface {
	ReleaseMemory(ctx context.Context) error
}

// ModelPair is the shared, read-only set of loaded models.
type ModelPair struct {
	Base     BaseGenerator
	Refiner  Refiner
	Releaser MemoryReleaser // optional
	Device   Device
}

// Loader builds a ModelPair on the given device. It runs at most once per
// successful initialization.
type Loader func(ctx context.Context, device Device) (*ModelPair, error)

// Timings records how long each stage of a generation took.
type Timings struct {
	Wait         time.Duration
	Conditioning time.Duration
	Base         time.Duration
	Refine       time.Duration
	Total        time.Duration
}

// Result is the outcome of a generation. The image belongs to the caller.
type Result struct {
	Image          image.Image
	Width          int
	Height         int
	Prompt         string
	NegativePrompt string
	Seed           int64
	Timings        Timings
}
