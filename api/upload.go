package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// AllowedExtensions are the upload extensions accepted by /generate.
var AllowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// ErrInvalidFileType is returned for uploads with a disallowed extension.
var ErrInvalidFileType = errors.New("invalid file type")

// AllowedFile reports whether name has one of AllowedExtensions
// (case-insensitive).
func AllowedFile(name string) bool {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return false
	}
	return AllowedExtensions[strings.ToLower(name[i+1:])]
}

// SanitizeFilename reduces name to ASCII letters, digits, '.', '-' and '_'
// with runs of whitespace turned into single underscores. Directory parts
// are dropped and leading dots removed, so the result is always a plain
// file name; it may be empty.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndexByte(name, '/')+1:]

	fields := strings.FieldsFunc(name, unicode.IsSpace)
	name = strings.Join(fields, "_")

	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, name)

	return strings.TrimLeft(name, "._")
}

// uploadName builds "upload_<uuid>_<sanitized>"; the prefix must match
// shutdown.UploadPattern so leftovers are removed on shutdown.
func uploadName(original string) string {
	name := "upload_" + uuid.NewString()
	if clean := SanitizeFilename(original); clean != "" {
		name += "_" + clean
	}
	return name
}

// SaveUpload writes the uploaded file into dir and returns its path and
// contents. The caller removes the file when done.
func SaveUpload(dir string, fh *multipart.FileHeader) (string, []byte, error) {
	if !AllowedFile(fh.Filename) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidFileType, fh.Filename)
	}

	src, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}

	path := filepath.Join(dir, uploadName(fh.Filename))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", nil, fmt.Errorf("save upload: %w", err)
	}
	return path, data, nil
}
