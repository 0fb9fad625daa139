package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "vision", cfg.Backend)
	assert.Equal(t, 0.25, cfg.ConfidenceThreshold)
	assert.Equal(t, 0.45, cfg.IoUThreshold)
	assert.Equal(t, 1280, cfg.MaxImageSize)
	assert.Equal(t, 10, cfg.MaxUploadMB)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, "grid", cfg.VisionPromptMode)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DETECTOR_BACKEND", "onnx")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.4")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("SESSION_POOL_SIZE", "3")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "onnx", cfg.Backend)
	assert.Equal(t, 0.4, cfg.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.MaxUploadMB)
	assert.Equal(t, 3, cfg.SessionPoolSize)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "not-a-number")
	t.Setenv("MAX_UPLOAD_MB", "ten")

	cfg := Load()
	assert.Equal(t, 0.25, cfg.ConfidenceThreshold)
	assert.Equal(t, 10, cfg.MaxUploadMB)
}
