package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the inventory detection service.
// Loaded once at startup and read-only afterwards.
type Config struct {
	// Server configuration
	Port           string
	AllowedOrigins string
	LogLevel       string

	// Backend selection: "vision", "onnx", "opencv" or "stub"
	Backend string

	// Detection configuration
	ConfidenceThreshold float64
	IoUThreshold        float64
	MaxImageSize        int
	MaxUploadMB         int

	// Rate limiting
	RateLimitPerMinute int

	// Tensor backend configuration
	ModelPath       string
	OnnxLibPath     string
	SessionPoolSize int

	// Anthropic (vision backend) configuration
	AnthropicAPIKey         string
	AnthropicModel          string
	AnthropicMaxTokens      int
	AnthropicThinkingBudget int
	VisionPromptMode        string // "grid" or "flat"
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server defaults
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		// Backend defaults
		Backend: getEnv("DETECTOR_BACKEND", "vision"),

		// Detection defaults
		ConfidenceThreshold: getFloat64Env("CONFIDENCE_THRESHOLD", 0.25),
		IoUThreshold:        getFloat64Env("IOU_THRESHOLD", 0.45),
		MaxImageSize:        getIntEnv("MAX_IMAGE_SIZE", 1280),
		MaxUploadMB:         getIntEnv("MAX_UPLOAD_MB", 10),

		// Rate limiting defaults
		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 60),

		// Tensor backend defaults
		ModelPath:       getEnv("MODEL_PATH", "yolov8n.onnx"),
		OnnxLibPath:     getEnv("ONNX_LIB_PATH", ""),
		SessionPoolSize: getIntEnv("SESSION_POOL_SIZE", 0),

		// Anthropic defaults
		AnthropicAPIKey:         getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:          getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		AnthropicMaxTokens:      getIntEnv("ANTHROPIC_MAX_TOKENS", 1024),
		AnthropicThinkingBudget: getIntEnv("ANTHROPIC_THINKING_BUDGET", 0),
		VisionPromptMode:        getEnv("VISION_PROMPT_MODE", "grid"),
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloat64Env gets a float environment variable or returns a default value
func getFloat64Env(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
