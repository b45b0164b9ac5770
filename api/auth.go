package api

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyHeader carries the shared API key on every protected request.
const APIKeyHeader = "x-api-key"

// DefaultHashCost is the bcrypt cost used by HashAPIKey.
const DefaultHashCost = 12

var (
	ErrEmptyKey        = errors.New("api key cannot be empty")
	ErrNoKeyConfigured = errors.New("no api key configured")
)

// KeyVerifier checks presented API keys against either a plaintext key or
// a bcrypt hash. When both are configured the hash wins.
type KeyVerifier struct {
	key  []byte
	hash []byte
}

// NewKeyVerifier creates a verifier. At least one of key and hash must be set.
func NewKeyVerifier(key, hash string) (*KeyVerifier, error) {
	key, hash = strings.TrimSpace(key), strings.TrimSpace(hash)
	if key == "" && hash == "" {
		return nil, ErrNoKeyConfigured
	}
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, err
		}
		return &KeyVerifier{hash: []byte(hash)}, nil
	}
	return &KeyVerifier{key: []byte(key)}, nil
}

// Verify reports whether candidate matches the configured key. Plaintext
// keys are compared in constant time.
func (v *KeyVerifier) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	if v.hash != nil {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare(v.key, []byte(candidate)) == 1
}

// HashAPIKey returns a bcrypt hash suitable for API_KEY_HASH. A cost of 0
// uses DefaultHashCost.
func HashAPIKey(key string, cost int) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if cost == 0 {
		cost = DefaultHashCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
