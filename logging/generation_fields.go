package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GenerationFields describes one stylization for structured logging.
// Implements zapcore.ObjectMarshaler.
//
// Example:
//
//	logger.Info("generation complete", zap.Object("generation", logging.GenerationFields{
//	    ID:       id,
//	    Style:    "realistic",
//	    Width:    1365,
//	    Height:   768,
//	    Duration: 41 * time.Second,
//	}))
type GenerationFields struct {
	ID                string
	Style             string
	Device            string
	Width             int
	Height            int
	Seed              int64
	ConditioningScale float64
	Steps             int
	RefinerSteps      int
	Wait              time.Duration
	Conditioning      time.Duration
	Base              time.Duration
	Refine            time.Duration
	Duration          time.Duration
	Status            string
	FailureKind       string
}

// MarshalLogObject encodes durations in milliseconds and omits empty
// optional fields.
func (g GenerationFields) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", g.ID)
	if g.Style != "" {
		enc.AddString("style", g.Style)
	}
	if g.Device != "" {
		enc.AddString("device", g.Device)
	}
	enc.AddInt("width", g.Width)
	enc.AddInt("height", g.Height)
	enc.AddInt64("seed", g.Seed)
	enc.AddFloat64("conditioning_scale", g.ConditioningScale)
	enc.AddInt("steps", g.Steps)
	enc.AddInt("refiner_steps", g.RefinerSteps)
	enc.AddInt64("wait_ms", g.Wait.Milliseconds())
	enc.AddInt64("conditioning_ms", g.Conditioning.Milliseconds())
	enc.AddInt64("base_ms", g.Base.Milliseconds())
	enc.AddInt64("refine_ms", g.Refine.Milliseconds())
	enc.AddInt64("duration_ms", g.Duration.Milliseconds())
	if g.Status != "" {
		enc.AddString("status", g.Status)
	}
	if g.FailureKind != "" {
		enc.AddString("failure_kind", g.FailureKind)
	}
	return nil
}

// Generation is shorthand for zap.Object("generation", g).
func Generation(g GenerationFields) zap.Field {
	return zap.Object("generation", g)
}
