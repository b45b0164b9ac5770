package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevelString maps LOG_LEVEL onto a zap level. Names are matched
// case-insensitively and "warning" is accepted for warn; anything else,
// including an empty value, yields def.
func ParseLogLevelString(s string, def zapcore.Level) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	if s == "warning" {
		s = "warn"
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return def
	}
	return level
}
