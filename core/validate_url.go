package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidateRuntimeURL checks SD_RUNTIME_URL: an absolute http(s) URL with a
// host. A path prefix is allowed for workers mounted behind a proxy.
func ValidateRuntimeURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("runtime URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("URL must use http or https scheme, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("URL must not carry a query or fragment")
	}
	return nil
}
