package core

import (
	"errors"
	"fmt"
)

// ConfigError is a startup problem the operator can fix. Message says what
// is wrong and Action which setting to change.
type ConfigError struct {
	Code    string
	Message string
	Action  string
}

func (e *ConfigError) Error() string {
	if e.Action == "" {
		return e.Message
	}
	return e.Message + ". " + e.Action
}

// ConfigError codes.
const (
	ErrCodeMissingAuth        = "MISSING_AUTH"
	ErrCodeMissingConfig      = "MISSING_CONFIG"
	ErrCodeInvalidValue       = "INVALID_VALUE"
	ErrCodeInvalidPort        = "INVALID_PORT"
	ErrCodeInvalidRuntimeURL  = "INVALID_RUNTIME_URL"
	ErrCodeRuntimeUnreachable = "RUNTIME_UNREACHABLE"
	ErrCodeCertMissing        = "CERT_MISSING"
	ErrCodeFolderNotWritable  = "FOLDER_NOT_WRITABLE"
	ErrCodeLowDiskSpace       = "LOW_DISK_SPACE"
)

func configError(code, action, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Message: fmt.Sprintf(format, args...), Action: action}
}

// ErrMissingAuth: neither API_KEY nor API_KEY_HASH is set.
func ErrMissingAuth() *ConfigError {
	return configError(ErrCodeMissingAuth, "Set API_KEY or API_KEY_HASH in your .env file",
		"Missing API key configuration")
}

func ErrMissingConfig(varName string) *ConfigError {
	return configError(ErrCodeMissingConfig, "Set "+varName+" in your .env file",
		"Missing required configuration: %s", varName)
}

// ErrInvalidValue is for a setting that parsed but is out of range.
func ErrInvalidValue(varName, reason, action string) *ConfigError {
	return configError(ErrCodeInvalidValue, action, "Invalid %s: %s", varName, reason)
}

func ErrInvalidPort(port int) *ConfigError {
	return configError(ErrCodeInvalidPort, "Set SERVER_PORT to a number between 1 and 65535",
		"Invalid SERVER_PORT %d", port)
}

func ErrInvalidRuntimeURL(url, reason string) *ConfigError {
	return configError(ErrCodeInvalidRuntimeURL,
		"Set SD_RUNTIME_URL to the diffusers worker address (e.g., http://127.0.0.1:7861)",
		"Invalid SD_RUNTIME_URL '%s': %s", url, reason)
}

// ErrRuntimeUnreachable: the worker's health endpoint did not answer 2xx.
func ErrRuntimeUnreachable(url, reason string) *ConfigError {
	return configError(ErrCodeRuntimeUnreachable,
		"Check that the diffusers worker is running and SD_RUNTIME_URL is correct",
		"Cannot connect to diffusion runtime at %s: %s", url, reason)
}

// ErrCertMissing is reported as a warning; the server falls back to HTTP.
func ErrCertMissing(path string) *ConfigError {
	return configError(ErrCodeCertMissing, "Place cert.pem and key.pem in CERTS_FOLDER to serve HTTPS",
		"TLS file not found: %s", path)
}

func ErrFolderNotWritable(path, reason string) *ConfigError {
	return configError(ErrCodeFolderNotWritable,
		"Check the folder permissions or point the *_FOLDER variable elsewhere",
		"Folder %s is not writable: %s", path, reason)
}

func ErrLowDiskSpace(path string, free, required int64) *ConfigError {
	return configError(ErrCodeLowDiskSpace, "Free up space or enable HISTORY_RETENTION_DAYS cleanup",
		"Insufficient disk space at %s: %s free, %s required", path, FormatBytes(free), FormatBytes(required))
}

// IsConfigError finds a ConfigError anywhere in err's chain.
func IsConfigError(err error) (*ConfigError, bool) {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code in err's chain, or "".
func GetErrorCode(err error) string {
	if cfgErr, ok := IsConfigError(err); ok {
		return cfgErr.Code
	}
	return ""
}
