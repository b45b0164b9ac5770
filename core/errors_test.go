package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigErrorConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		code string
		want string
	}{
		{"missing auth", ErrMissingAuth(), ErrCodeMissingAuth,
			"Missing API key configuration. Set API_KEY or API_KEY_HASH in your .env file"},
		{"missing config", ErrMissingConfig("OUTPUT_FOLDER"), ErrCodeMissingConfig,
			"Missing required configuration: OUTPUT_FOLDER. Set OUTPUT_FOLDER in your .env file"},
		{"invalid value without action", ErrInvalidValue("MAX_CONTENT_LENGTH", "must be positive", ""), ErrCodeInvalidValue,
			"Invalid MAX_CONTENT_LENGTH: must be positive"},
		{"invalid port", ErrInvalidPort(70000), ErrCodeInvalidPort,
			"Invalid SERVER_PORT 70000. Set SERVER_PORT to a number between 1 and 65535"},
		{"cert missing", ErrCertMissing("ssl_cert/cert.pem"), ErrCodeCertMissing,
			"TLS file not found: ssl_cert/cert.pem. Place cert.pem and key.pem in CERTS_FOLDER to serve HTTPS"},
		{"low disk", ErrLowDiskSpace("/out", BytesPerMB, BytesPerGB), ErrCodeLowDiskSpace,
			"Insufficient disk space at /out: 1.00 MB free, 1.00 GB required. Free up space or enable HISTORY_RETENTION_DAYS cleanup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	for _, err := range []*ConfigError{
		ErrInvalidRuntimeURL("ftp://x", "bad scheme"),
		ErrRuntimeUnreachable("http://gpu:7861", "refused"),
		ErrFolderNotWritable("/out", "denied"),
	} {
		if err.Code == "" || err.Action == "" {
			t.Errorf("%q is missing its code or action", err.Error())
		}
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"direct", ErrMissingAuth(), ErrCodeMissingAuth},
		{"wrapped", fmt.Errorf("startup: %w", ErrInvalidPort(0)), ErrCodeInvalidPort},
		{"joined", errors.Join(errors.New("other"), ErrCertMissing("key.pem")), ErrCodeCertMissing},
		{"plain error", errors.New("regular error"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.code {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.code)
			}
			cfgErr, ok := IsConfigError(tt.err)
			if ok != (tt.code != "") || (ok && cfgErr.Code != tt.code) {
				t.Errorf("IsConfigError() = %v, %v", cfgErr, ok)
			}
		})
	}
}
