package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"stylizer/core"
)

// UploadPattern matches the transient upload files written to the input folder.
const UploadPattern = "upload_*"

// CleanupUploads returns a shutdown function that removes uploads left in
// the input folder by requests that never reached their own cleanup.
// Failures are logged, never returned, so they cannot block shutdown.
//
//	manager.Register("cleanup-uploads", shutdown.PriorityUploads, shutdown.CleanupUploads(logger, cfg.InputFolder))
func CleanupUploads(logger *zap.Logger, inputDir string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		RemoveUploads(ctx, logger, inputDir)
		return nil
	}
}

// RemoveUploads deletes files matching UploadPattern in inputDir and returns
// how many were removed. It stops early when ctx is done.
func RemoveUploads(ctx context.Context, logger *zap.Logger, inputDir string) int {
	pattern := filepath.Join(inputDir, UploadPattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logger.Error("Failed to list leftover uploads",
			zap.String("pattern", pattern),
			zap.Error(err),
		)
		return 0
	}

	if len(matches) == 0 {
		logger.Debug("No leftover uploads", zap.String("directory", inputDir))
		return 0
	}

	var removed, failed int
	for _, match := range matches {
		if ctx.Err() != nil {
			logger.Warn("Context done during upload cleanup",
				zap.Int("removed", removed),
				zap.Int("remaining", len(matches)-removed-failed),
			)
			return removed
		}

		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}

		if err := os.Remove(match); err != nil {
			failed++
			logger.Warn("Failed to remove upload",
				zap.String("file", filepath.Base(match)),
				zap.Error(err),
			)
			continue
		}
		removed++
	}

	logger.Info("Upload cleanup complete",
		zap.String("directory", inputDir),
		zap.Int("removed", removed),
		zap.Int("failed", failed),
	)
	return removed
}
