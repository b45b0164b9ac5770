package sdruntime

import (
	"os"
	"strconv"
	"time"
)

// SDConfig holds configuration for the diffusion runtime and generator.
type SDConfig struct {
	// Runtime connection
	RuntimeURL   string        // Base URL of the diffusers worker
	Timeout      time.Duration // Per-request timeout (a full base pass can take minutes)
	ReadyTimeout time.Duration // How long startup waits for the worker's health check

	// Device preference: auto, cuda or cpu
	Device string

	// Model identifiers
	Models ModelConfig

	// Output post-processing (0 keeps the refiner's size)
	OutputWidth  int
	OutputHeight int

	// Optional YAML file with extra style vocabularies
	StylesFile string
}

// Default configuration values
const (
	DefaultRuntimeURL          = "http://127.0.0.1:7861"
	DefaultTimeoutSeconds      = 600
	DefaultReadyTimeoutSeconds = 120
	DefaultDevice              = "auto"

	DefaultBaseModel       = "RunDiffusion/Juggernaut-XL-v8"
	DefaultControlNetModel = "xinsir/controlnet-canny-sdxl-1.0"
	DefaultVAEModel        = "madebyollin/sdxl-vae-fp16-fix"
	DefaultRefinerModel    = "stabilityai/stable-diffusion-xl-refiner-1.0"
	DefaultSchedulerModel  = "stabilityai/stable-diffusion-xl-base-1.0"
	DefaultDType           = "float16"

	// MaxOutputSize bounds SD_OUTPUT_WIDTH/HEIGHT.
	MaxOutputSize = 4096
)

// LoadSDConfig loads runtime configuration from environment variables.
func LoadSDConfig() *SDConfig {
	return &SDConfig{
		RuntimeURL:   stringOrDefault(os.Getenv("SD_RUNTIME_URL"), DefaultRuntimeURL),
		Timeout:      parseSeconds(os.Getenv("SD_TIMEOUT_SECONDS"), DefaultTimeoutSeconds),
		ReadyTimeout: parseSeconds(os.Getenv("SD_READY_TIMEOUT_SECONDS"), DefaultReadyTimeoutSeconds),
		Device:       parseDeviceName(os.Getenv("SD_DEVICE")),
		Models: ModelConfig{
			BaseModel:       stringOrDefault(os.Getenv("SD_BASE_MODEL"), DefaultBaseModel),
			ControlNetModel: stringOrDefault(os.Getenv("SD_CONTROLNET_MODEL"), DefaultControlNetModel),
			VAEModel:        stringOrDefault(os.Getenv("SD_VAE_MODEL"), DefaultVAEModel),
			RefinerModel:    stringOrDefault(os.Getenv("SD_REFINER_MODEL"), DefaultRefinerModel),
			SchedulerModel:  stringOrDefault(os.Getenv("SD_SCHEDULER_MODEL"), DefaultSchedulerModel),
			DType:           stringOrDefault(os.Getenv("SD_DTYPE"), DefaultDType),
		},
		OutputWidth:  parseOutputSize(os.Getenv("SD_OUTPUT_WIDTH")),
		OutputHeight: parseOutputSize(os.Getenv("SD_OUTPUT_HEIGHT")),
		StylesFile:   os.Getenv("STYLES_FILE"),
	}
}

func stringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseSeconds parses a positive number of seconds.
// Returns the default if invalid or empty.
func parseSeconds(s string, def int) time.Duration {
	if s == "" {
		return time.Duration(def) * time.Second
	}

	seconds, err := strconv.Atoi(s)
	if err != nil || seconds <= 0 {
		return time.Duration(def) * time.Second
	}

	return time.Duration(seconds) * time.Second
}

// parseDeviceName accepts auto, cuda or cpu and falls back to auto.
func parseDeviceName(s string) string {
	d, err := ParseDevice(s)
	if err != nil {
		return DefaultDevice
	}
	return string(d)
}

// parseOutputSize parses an output dimension. Zero, invalid and out of range
// values disable the final resize.
func parseOutputSize(s string) int {
	if s == "" {
		return 0
	}

	size, err := strconv.Atoi(s)
	if err != nil || size <= 0 || size > MaxOutputSize {
		return 0
	}

	return size
}
