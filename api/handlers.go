package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stylizer/animation"
	"stylizer/conditioning"
	"stylizer/core"
	"stylizer/db"
	"stylizer/logging"
	"stylizer/metrics"
	"stylizer/sdruntime"
)

// OutputTimeLayout names saved outputs (YYYYMMDD_HHMMSS.png).
const OutputTimeLayout = "20060102_150405"

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Operations != nil && s.deps.Operations.IsShuttingDown() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGenerate(c *gin.Context) {
	fh, err := c.FormFile(FieldImage)
	if err != nil {
		switch {
		case isBodyTooLarge(err):
			abortWithError(c, http.StatusRequestEntityTooLarge, "File too large")
		case errors.Is(err, http.ErrMissingFile):
			abortWithError(c, http.StatusBadRequest, "No image part")
		default:
			abortWithError(c, http.StatusBadRequest, "Invalid multipart form")
		}
		return
	}
	if fh.Filename == "" {
		abortWithError(c, http.StatusBadRequest, "No selected file")
		return
	}
	if !AllowedFile(fh.Filename) {
		abortWithError(c, http.StatusBadRequest, "Invalid file type")
		return
	}

	form, err := parseGenerateForm(c, s.cfg.Defaults)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	uploadPath, data, err := SaveUpload(s.cfg.InputFolder, fh)
	if err != nil {
		s.logger.Error("Failed to save upload", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to save upload")
		return
	}
	defer s.removeUpload(uploadPath)
	form.Request.ImageData = data

	id := uuid.NewString()
	c.Header(GenerationIDHeader, id)

	start := s.now()
	var result *sdruntime.Result
	err = s.runTracked(c.Request.Context(), func(ctx context.Context) error {
		var genErr error
		result, genErr = s.deps.Generator.Generate(ctx, form.Request)
		return genErr
	})
	if err != nil {
		s.recordGeneration(id, form.Request, nil, "", "", start, err)
		abortWithError(c, StatusFor(err), clientMessage(err))
		return
	}

	png, err := sdruntime.EncodePNG(result.Image)
	if err != nil {
		s.recordGeneration(id, form.Request, result, "", "", start, err)
		abortWithError(c, http.StatusInternalServerError, "Failed to encode image")
		return
	}

	outputPath, err := s.saveOutput(png, id)
	if err != nil {
		s.recordGeneration(id, form.Request, result, "", "", start, err)
		abortWithError(c, http.StatusInternalServerError, "Failed to save image")
		return
	}

	var animationPath string
	if form.Animate {
		animationPath = s.saveAnimation(id, data, result)
	}

	s.recordGeneration(id, form.Request, result, outputPath, animationPath, start, nil)

	c.Header("Content-Disposition", `attachment; filename="`+OutputFilename+`"`)
	if animationPath != "" {
		c.Header(AnimationFileHeader, filepath.Base(animationPath))
	}
	c.Data(http.StatusOK, "image/png", png)
}

// runTracked runs fn as a "generate" operation when shutdown tracking is
// configured.
func (s *Server) runTracked(ctx context.Context, fn func(context.Context) error) error {
	if s.deps.Operations == nil {
		return fn(ctx)
	}
	return s.deps.Operations.WrapOperation(ctx, "generate", fn)
}

func (s *Server) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove upload", zap.String("path", path), zap.Error(err))
	}
}

// saveOutput writes png as OUTPUT_FOLDER/YYYYMMDD_HHMMSS.png, adding part of
// the generation id when that name is taken.
func (s *Server) saveOutput(png []byte, id string) (string, error) {
	stamp := s.now().Format(OutputTimeLayout)
	candidates := []string{stamp + ".png", stamp + "_" + id[:8] + ".png"}

	var err error
	for _, name := range candidates {
		path := filepath.Join(s.cfg.OutputFolder, name)
		var f *os.File
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			break
		}
		if _, err = f.Write(png); err != nil {
			f.Close()
			os.Remove(path)
			break
		}
		if err = f.Close(); err != nil {
			break
		}
		return path, nil
	}

	s.logger.Error("Failed to save output image", zap.String("folder", s.cfg.OutputFolder), zap.Error(err))
	if err == nil {
		err = os.ErrExist
	}
	return "", err
}

// saveAnimation writes the fade GIF. Failures are logged; the generated
// image is still returned.
func (s *Server) saveAnimation(id string, original []byte, result *sdruntime.Result) string {
	src, _, err := conditioning.DecodeImage(original)
	if err != nil {
		s.logger.Warn("Skipping animation, source image not decodable", zap.String("generation_id", id), zap.Error(err))
		return ""
	}

	path, err := animation.SaveFadeGIF(s.cfg.AnimationFolder, src, result.Image)
	if err != nil {
		s.logger.Warn("Failed to create animation", zap.String("generation_id", id), zap.Error(err))
		return ""
	}
	return path
}

// recordGeneration logs the outcome and feeds metrics and history.
func (s *Server) recordGeneration(id string, req sdruntime.Request, result *sdruntime.Result, outputPath, animationPath string, start time.Time, genErr error) {
	end := s.now()
	fields := logging.GenerationFields{
		ID:                id,
		Style:             req.Style,
		Device:            string(s.deps.Pipelines.Device()),
		Seed:              req.Seed,
		ConditioningScale: req.ConditioningScale,
		Steps:             req.Steps,
		RefinerSteps:      req.RefinerSteps,
		Duration:          end.Sub(start),
		Status:            metrics.StatusSuccess,
	}
	if result != nil {
		fields.Width, fields.Height = result.Width, result.Height
		fields.Seed = result.Seed
		fields.Wait = result.Timings.Wait
		fields.Conditioning = result.Timings.Conditioning
		fields.Base = result.Timings.Base
		fields.Refine = result.Timings.Refine
	}
	if genErr != nil {
		fields.Status = metrics.StatusError
		fields.FailureKind = sdruntime.Classify(genErr).String()
		s.logger.Error("Generation failed", logging.Generation(fields), zap.Error(genErr))
	} else {
		s.logger.Info("Generation complete", logging.Generation(fields))
	}

	s.deps.Metrics.RecordGeneration(metrics.GenerationRecord{
		ID:          id,
		Style:       req.Style,
		Status:      fields.Status,
		FailureKind: fields.FailureKind,
		StartTime:   start,
		EndTime:     end,
		Wait:        fields.Wait,
		Duration:    fields.Duration,
		Width:       fields.Width,
		Height:      fields.Height,
		ErrorMsg:    errString(genErr),
	})

	if s.deps.History == nil {
		return
	}
	rec := db.GenerationRecord{
		GenerationID:      id,
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		Style:             req.Style,
		Width:             fields.Width,
		Height:            fields.Height,
		Seed:              fields.Seed,
		ConditioningScale: req.ConditioningScale,
		Status:            fields.Status,
		FailureKind:       fields.FailureKind,
		ErrorMessage:      errString(genErr),
		OutputFile:        outputPath,
		AnimationFile:     animationPath,
		WaitMS:            fields.Wait.Milliseconds(),
		DurationMS:        fields.Duration.Milliseconds(),
		CreatedAt:         start,
	}
	if result != nil {
		rec.Prompt = result.Prompt
		rec.NegativePrompt = result.NegativePrompt
	}
	// the request context may already be cancelled by the client
	if _, err := s.deps.History.InsertGeneration(context.Background(), rec); err != nil {
		s.logger.Warn("Failed to record generation history", zap.String("generation_id", id), zap.Error(err))
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Health      string                    `json:"health"`
	Version     string                    `json:"version"`
	Uptime      string                    `json:"uptime"`
	Pipeline    PipelineInfo              `json:"pipeline"`
	Busy        bool                      `json:"busy"`
	Waiting     int64                     `json:"waiting"`
	Generations metrics.GenerationMetrics `json:"generations"`
}

// PipelineInfo describes the model pair.
type PipelineInfo struct {
	State  string `json:"state"`
	Device string `json:"device,omitempty"`
	Loads  int64  `json:"loads"`
}

func (s *Server) handleStatus(c *gin.Context) {
	sys := s.deps.Metrics.GetSystemStatus()
	version := sys.Version
	if version == "" {
		version = core.GetVersion()
	}

	c.JSON(http.StatusOK, StatusResponse{
		Health:  sys.Health,
		Version: version,
		Uptime:  sys.Uptime.Round(time.Second).String(),
		Pipeline: PipelineInfo{
			State:  s.deps.Pipelines.State().String(),
			Device: string(s.deps.Pipelines.Device()),
			Loads:  s.deps.Pipelines.Loads(),
		},
		Busy:        s.deps.Generator.Busy(),
		Waiting:     s.deps.Generator.Waiting(),
		Generations: s.deps.Metrics.GetGenerationMetrics(),
	})
}

func (s *Server) handleGenerations(c *gin.Context) {
	limit := db.DefaultListLimit
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			abortWithError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, db.MaxListLimit)
	}

	if s.deps.History == nil {
		c.JSON(http.StatusOK, gin.H{
			"source":      "memory",
			"generations": s.deps.Metrics.GetRecentGenerations(limit),
		})
		return
	}

	records, err := s.deps.History.ListRecent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list generations", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Failed to read generation history")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":      "database",
		"generations": records,
	})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
