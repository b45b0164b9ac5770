// Package sdruntime drives a ControlNet-conditioned SDXL base pipeline and its
// refiner through an external diffusion runtime.
package sdruntime

import (
	"errors"

	"stylizer/conditioning"
)

// Sentinel errors for runtime operations.
var (
	// Model lifecycle errors
	ErrModelNotFound   = errors.New("sdruntime: model not found")
	ErrModelLoadFailed = errors.New("sdruntime: failed to load model")
	ErrNotInitialized  = errors.New("sdruntime: pipelines are not initialized")
	ErrPipelineLost    = errors.New("sdruntime: runtime no longer holds the pipeline")

	// Generation errors
	ErrGenerationFailed = errors.New("sdruntime: image generation failed")

	// Input validation errors
	ErrInvalidPrompt = errors.New("sdruntime: invalid prompt")
	ErrInvalidParams = errors.New("sdruntime: invalid generation parameters")
	ErrInvalidImage  = errors.New("sdruntime: invalid input image")

	// Hardware/resource errors
	ErrCUDANotAvailable   = errors.New("sdruntime: CUDA not available")
	ErrOutOfVRAM          = errors.New("sdruntime: out of VRAM")
	ErrRuntimeUnavailable = errors.New("sdruntime: diffusion runtime unavailable")
)

// FailureKind groups errors by the stage that produced them.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindInitialization
	KindInputConditioning
	KindInferenceRuntime
	KindInvalidParameter
	KindUnknown
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInitialization:
		return "initialization"
	case KindInputConditioning:
		return "input_conditioning"
	case KindInferenceRuntime:
		return "inference_runtime"
	case KindInvalidParameter:
		return "invalid_parameter"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by this package onto a FailureKind.
// Load failures are reported as initialization even when the runtime was
// unreachable at the time.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidParams), errors.Is(err, ErrInvalidPrompt),
		errors.Is(err, conditioning.ErrInvalidThresholds):
		return KindInvalidParameter
	case errors.Is(err, ErrInvalidImage), errors.Is(err, conditioning.ErrInvalidImage),
		errors.Is(err, conditioning.ErrEmptyImage), errors.Is(err, conditioning.ErrInvalidDimensions),
		errors.Is(err, conditioning.ErrUnsupportedChannels):
		return KindInputConditioning
	case errors.Is(err, ErrNotInitialized), errors.Is(err, ErrModelLoadFailed),
		errors.Is(err, ErrModelNotFound), errors.Is(err, ErrCUDANotAvailable):
		return KindInitialization
	case errors.Is(err, ErrGenerationFailed), errors.Is(err, ErrOutOfVRAM),
		errors.Is(err, ErrRuntimeUnavailable):
		return KindInferenceRuntime
	default:
		return KindUnknown
	}
}
