package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envOr reads key and converts it with parse. Unset, blank or unparsable
// values yield def.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// GetEnvOrDefault returns the raw value of key, or defaultValue when unset.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ParseIntEnv reads key as a base-10 int (SERVER_PORT, SD_STEPS, ...).
func ParseIntEnv(key string, defaultValue int) int {
	return envOr(key, defaultValue, strconv.Atoi)
}

// ParseFloat64Env reads key as a float (SD_GUIDANCE_SCALE, ...).
func ParseFloat64Env(key string, defaultValue float64) float64 {
	return envOr(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseBoolEnv accepts true/1/yes/on and false/0/no/off in any case.
func ParseBoolEnv(key string, defaultValue bool) bool {
	return envOr(key, defaultValue, parseBool)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, strconv.ErrSyntax
}

// ParseDurationEnv reads key as a whole number of seconds.
func ParseDurationEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(ParseIntEnv(key, defaultSeconds)) * time.Second
}

// ParseSizeEnv reads key as a byte size such as "16MB" or "4096". Values
// that are not positive fall back to defaultValue.
func ParseSizeEnv(key string, defaultValue int64) int64 {
	return envOr(key, defaultValue, func(s string) (int64, error) {
		n, err := ParseBytes(s)
		if err == nil && n <= 0 {
			err = strconv.ErrRange
		}
		return n, err
	})
}
