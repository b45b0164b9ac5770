package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stylizer/sdruntime"
	"stylizer/shutdown"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}

// StatusFor maps a generation error onto an HTTP status code.
//
//	invalid parameter, unusable image -> 400
//	pipelines not loaded or shutting down -> 503
//	anything else -> 500
func StatusFor(err error) int {
	if errors.Is(err, shutdown.ErrTrackerClosed) {
		return http.StatusServiceUnavailable
	}

	switch sdruntime.Classify(err) {
	case sdruntime.KindNone:
		return http.StatusOK
	case sdruntime.KindInvalidParameter, sdruntime.KindInputConditioning:
		return http.StatusBadRequest
	case sdruntime.KindInitialization:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the error text returned to the caller. Runtime faults are
// not echoed verbatim.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, shutdown.ErrTrackerClosed):
		return "Server is shutting down"
	case errors.Is(err, sdruntime.ErrNotInitialized), errors.Is(err, sdruntime.ErrModelLoadFailed),
		errors.Is(err, sdruntime.ErrModelNotFound), errors.Is(err, sdruntime.ErrCUDANotAvailable):
		return "Model pipelines are not initialized"
	}

	switch sdruntime.Classify(err) {
	case sdruntime.KindInvalidParameter:
		return err.Error()
	case sdruntime.KindInputConditioning:
		return "Invalid image file"
	case sdruntime.KindInferenceRuntime:
		if errors.Is(err, sdruntime.ErrOutOfVRAM) {
			return "Generation failed: out of GPU memory"
		}
		return "Generation failed"
	default:
		return "Internal server error"
	}
}
