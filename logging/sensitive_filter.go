package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns are compiled once at package initialization.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$2[abxy]?\$\d{2}\$[./A-Za-z0-9]{53}`),      // bcrypt hashes (API_KEY_HASH)
	regexp.MustCompile(`(?i)(x-api-key\s*[:=]\s*[^\s,;]+)`),         // x-api-key header dumps
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`),        // Bearer tokens
	regexp.MustCompile(`(?i)(hf_[a-zA-Z0-9]{30,})`),                 // Hugging Face tokens
	regexp.MustCompile(`(?i)(api_key(_hash)?\s*[:=]\s*[^\s,;]{8,})`), // api_key= / api_key_hash=
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldNames are substrings of field/env names whose values are
// always redacted.
var sensitiveFieldNames = []string{
	"API_KEY",
	"APIKEY",
	"X-API-KEY",
	"HF_TOKEN",
	"PASSWORD",
	"SECRET",
	"TOKEN",
}

// RedactSensitiveData replaces every detected secret in value with
// RedactedPlaceholder.
//
// Example:
//
//	RedactSensitiveData("x-api-key: hunter2hunter2")
//	// "[REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts a value outright when its name marks it sensitive and
// otherwise scans the value itself.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField reports whether a field name indicates sensitive data.
// Dashes and underscores are treated alike.
//
//	IsSensitiveField("API_KEY_HASH") // true
//	IsSensitiveField("x_api_key")    // true
//	IsSensitiveField("prompt")       // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(strings.ReplaceAll(fieldName, "-", "_"))

	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, strings.ReplaceAll(name, "-", "_")) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if value matches any secret pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
