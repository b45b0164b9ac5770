package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stylizer/sdruntime"
)

// Multipart field names accepted by POST /generate.
const (
	FieldImage          = "image"
	FieldPrompt         = "prompt"
	FieldNegativePrompt = "negative_prompt"
	FieldSensitivity    = "sensitivity"
	FieldStyle          = "style"
	FieldGuidanceScale  = "guidance_scale"
	FieldSteps          = "steps"
	FieldRefinerSteps   = "refiner_steps"
	FieldLowThreshold   = "low_threshold"
	FieldHighThreshold  = "high_threshold"
	FieldSeed           = "seed"
	FieldAnimate        = "animate"
)

// formError is a 400 caused by a missing or malformed form field.
type formError struct {
	msg string
}

func (e *formError) Error() string { return e.msg }

func badField(field, value, want string) error {
	return &formError{msg: fmt.Sprintf("Invalid %s %q: %s", field, value, want)}
}

// generateForm is the parsed text part of a /generate request.
type generateForm struct {
	Request sdruntime.Request
	Animate bool
}

// parseGenerateForm reads the text fields of a /generate request on top of
// defaults. The image is handled separately.
func parseGenerateForm(c *gin.Context, defaults sdruntime.Request) (generateForm, error) {
	form := generateForm{Request: defaults}
	req := &form.Request

	req.Prompt = sdruntime.SanitizePrompt(c.PostForm(FieldPrompt))
	if req.Prompt == "" {
		return form, &formError{msg: "No prompt provided"}
	}
	req.NegativePrompt = strings.TrimSpace(c.PostForm(FieldNegativePrompt))
	req.Style = strings.TrimSpace(c.PostForm(FieldStyle))

	if v, ok := c.GetPostForm(FieldSensitivity); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return form, badField(FieldSensitivity, v, "must be a number between 0 and 1")
		}
		req.ConditioningScale = f
	}

	if err := optionalFloat(c, FieldGuidanceScale, &req.GuidanceScale); err != nil {
		return form, err
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{FieldSteps, &req.Steps},
		{FieldRefinerSteps, &req.RefinerSteps},
		{FieldLowThreshold, &req.LowThreshold},
		{FieldHighThreshold, &req.HighThreshold},
	}
	for _, f := range ints {
		if err := optionalInt(c, f.field, f.dst); err != nil {
			return form, err
		}
	}

	if v := strings.TrimSpace(c.PostForm(FieldSeed)); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return form, badField(FieldSeed, v, "must be an integer")
		}
		req.Seed = seed
	}

	if v := strings.TrimSpace(c.PostForm(FieldAnimate)); v != "" {
		animate, err := strconv.ParseBool(v)
		if err != nil {
			return form, badField(FieldAnimate, v, "must be true or false")
		}
		form.Animate = animate
	}

	return form, nil
}

func optionalFloat(c *gin.Context, field string, dst *float64) error {
	v := strings.TrimSpace(c.PostForm(field))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return badField(field, v, "must be a number")
	}
	*dst = f
	return nil
}

func optionalInt(c *gin.Context, field string, dst *int) error {
	v := strings.TrimSpace(c.PostForm(field))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return badField(field, v, "must be an integer")
	}
	*dst = n
	return nil
}
