package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"stylizer/sdruntime"
)

// Default server configuration values.
const (
	DefaultServerIP             = "0.0.0.0"
	DefaultServerPort           = 5000
	DefaultMaxContentLength     = 16 * BytesPerMB
	DefaultInputFolder          = "input"
	DefaultOutputFolder         = "output"
	DefaultAnimationFolder      = "animations"
	DefaultCertsFolder          = "ssl_cert"
	DefaultDatabasePath         = "data/stylizer.db"
	DefaultHistoryRetentionDays = 30
	DefaultShutdownTimeout      = 60 * time.Second
	DefaultLogFile              = "logs/stylizer.log"
)

// Config holds all configuration values
type Config struct {
	// Authentication (one of the two is required)
	APIKey     string
	APIKeyHash string

	// HTTP server
	ServerIP         string
	ServerPort       int
	MaxContentLength int64
	CertsFolder      string

	// Working folders
	InputFolder     string
	OutputFolder    string
	AnimationFolder string

	// Generation history
	DatabasePath         string
	HistoryRetentionDays int

	// Process
	DevMode         bool
	LogLevel        string
	LogFile         string
	ShutdownTimeout time.Duration

	// Defaults applied to requests that leave a tuning value out
	Defaults sdruntime.Request

	// Diffusion runtime
	SD *sdruntime.SDConfig
}

// LoadEnvFile loads a .env file into the process environment.
// A missing file is not an error; variables already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables with defaults
// and validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		APIKey:     strings.TrimSpace(os.Getenv("API_KEY")),
		APIKeyHash: strings.TrimSpace(os.Getenv("API_KEY_HASH")),

		ServerIP:         GetEnvOrDefault("SERVER_IP", DefaultServerIP),
		ServerPort:       ParseIntEnv("SERVER_PORT", DefaultServerPort),
		MaxContentLength: ParseSizeEnv("MAX_CONTENT_LENGTH", DefaultMaxContentLength),
		CertsFolder:      GetEnvOrDefault("CERTS_FOLDER", DefaultCertsFolder),

		InputFolder:     GetEnvOrDefault("INPUT_FOLDER", DefaultInputFolder),
		OutputFolder:    GetEnvOrDefault("OUTPUT_FOLDER", DefaultOutputFolder),
		AnimationFolder: GetEnvOrDefault("ANIMATION_FOLDER", DefaultAnimationFolder),

		DatabasePath:         GetEnvOrDefault("DATABASE_PATH", DefaultDatabasePath),
		HistoryRetentionDays: ParseIntEnv("HISTORY_RETENTION_DAYS", DefaultHistoryRetentionDays),

		DevMode:         ParseBoolEnv("DEV_MODE", false),
		LogLevel:        GetEnvOrDefault("LOG_LEVEL", ""),
		LogFile:         GetEnvOrDefault("LOG_FILE", DefaultLogFile),
		ShutdownTimeout: ParseDurationEnv("SHUTDOWN_TIMEOUT_SECONDS", int(DefaultShutdownTimeout/time.Second)),

		Defaults: loadRequestDefaults(),
		SD:       sdruntime.LoadSDConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRequestDefaults reads the per-request tuning defaults.
func loadRequestDefaults() sdruntime.Request {
	d := sdruntime.DefaultRequest()
	d.ConditioningScale = ParseFloat64Env("SD_CONDITIONING_SCALE", d.ConditioningScale)
	d.GuidanceScale = ParseFloat64Env("SD_GUIDANCE_SCALE", d.GuidanceScale)
	d.ControlGuidanceEnd = ParseFloat64Env("SD_CONTROL_GUIDANCE_END", d.ControlGuidanceEnd)
	d.Steps = ParseIntEnv("SD_STEPS", d.Steps)
	d.RefinerSteps = ParseIntEnv("SD_REFINER_STEPS", d.RefinerSteps)
	d.LowThreshold = ParseIntEnv("CANNY_LOW_THRESHOLD", d.LowThreshold)
	d.HighThreshold = ParseIntEnv("CANNY_HIGH_THRESHOLD", d.HighThreshold)
	return d
}

// Validate checks the loaded values and returns the first problem found
// as a *ConfigError.
func (c *Config) Validate() error {
	if c.APIKey == "" && c.APIKeyHash == "" {
		return ErrMissingAuth()
	}
	if c.APIKeyHash != "" && !strings.HasPrefix(c.APIKeyHash, "$2") {
		return ErrInvalidValue("API_KEY_HASH", "not a bcrypt hash", "Generate one with `stylizer hash-key`")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidPort(c.ServerPort)
	}
	if c.MaxContentLength <= 0 {
		return ErrInvalidValue("MAX_CONTENT_LENGTH", "must be positive", "Use a size such as 16MB")
	}
	if c.HistoryRetentionDays < 0 {
		return ErrInvalidValue("HISTORY_RETENTION_DAYS", "must not be negative", "Use 0 to keep history forever")
	}
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidValue("SHUTDOWN_TIMEOUT_SECONDS", "must be positive", "")
	}

	for name, dir := range map[string]string{
		"INPUT_FOLDER":     c.InputFolder,
		"OUTPUT_FOLDER":    c.OutputFolder,
		"ANIMATION_FOLDER": c.AnimationFolder,
	} {
		if strings.TrimSpace(dir) == "" {
			return ErrMissingConfig(name)
		}
	}

	if c.SD == nil {
		return ErrMissingConfig("SD_RUNTIME_URL")
	}
	if err := ValidateRuntimeURL(c.SD.RuntimeURL); err != nil {
		return ErrInvalidRuntimeURL(c.SD.RuntimeURL, err.Error())
	}

	if err := c.Defaults.ValidateTuning(); err != nil {
		return ErrInvalidValue("generation defaults", err.Error(), "Check the SD_* and CANNY_* variables")
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerIP, c.ServerPort)
}

// CertFile returns the path of the TLS certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.CertsFolder, "cert.pem")
}

// KeyFile returns the path of the TLS private key.
func (c *Config) KeyFile() string {
	return filepath.Join(c.CertsFolder, "key.pem")
}

// TLSEnabled reports whether both the certificate and key are present.
func (c *Config) TLSEnabled() bool {
	return fileExists(c.CertFile()) && fileExists(c.KeyFile())
}

// EnsureFolders creates the input, output and animation folders.
func (c *Config) EnsureFolders() error {
	for _, dir := range []string{c.InputFolder, c.OutputFolder, c.AnimationFolder} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", dir, err)
		}
	}
	return nil
}

// HistoryRetention returns the retention window, zero meaning keep forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
