package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"stylizer/core"
)

// DefaultMinFreeBytes is the free space below which generated images and
// animations can no longer be written reliably.
const DefaultMinFreeBytes = 512 * core.BytesPerMB

// DiskSpaceInfo describes the volume holding a folder.
type DiskSpaceInfo struct {
	Path          string
	Total         int64
	Free          int64
	FreeFormatted string
	UsedPercent   float64
}

// GetDiskSpace reports on the volume that holds path. Output folders may not
// exist before first start, so a missing path is measured at its closest
// existing ancestor.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	dir, err := existingDir(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}

	total, free, err := getDiskSpace(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", dir, err)
	}

	info := &DiskSpaceInfo{Path: dir, Total: total, Free: free, FreeFormatted: core.FormatBytes(free)}
	if total > 0 {
		info.UsedPercent = float64(total-free) / float64(total) * 100
	}
	return info, nil
}

func existingDir(path string) (string, error) {
	for {
		fi, err := os.Stat(path)
		switch {
		case err == nil && fi.IsDir():
			return path, nil
		case err == nil:
			return filepath.Dir(path), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}
		path = parent
	}
}
