package config

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ort", cfg.Mode)
	assert.Equal(t, float32(0.25), cfg.ConfThreshold)
	assert.Equal(t, float32(0.45), cfg.IoUThreshold)
	assert.Equal(t, 640, cfg.CanvasSize)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 500, cfg.MaxUploadSizeMB)

	// Pool size follows the machine, capped at 4.
	want := runtime.NumCPU()
	if want > 4 {
		want = 4
	}
	assert.Equal(t, want, cfg.Workers)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PD_MODE", "kserve")
	t.Setenv("KSERVE_ENDPOINT", "http://triton:8000")
	t.Setenv("MODEL_NAME", "yolo11n")
	t.Setenv("PD_CONF_THRESHOLD", "0.5")
	t.Setenv("PD_WORKERS", "8")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "kserve", cfg.Mode)
	assert.Equal(t, "http://triton:8000", cfg.Endpoint)
	assert.Equal(t, "yolo11n", cfg.ModelName)
	assert.Equal(t, float32(0.5), cfg.ConfThreshold)
	assert.Equal(t, 8, cfg.Workers)
	// Untouched values keep their defaults.
	assert.Equal(t, float32(0.45), cfg.IoUThreshold)
	assert.Equal(t, 640, cfg.CanvasSize)
}

func TestFromEnvMalformed(t *testing.T) {
	t.Setenv("PD_CANVAS_SIZE", "six hundred forty")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PD_CANVAS_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ort needs model path", func(c *Config) { c.Mode = "ort"; c.ModelPath = "" }, "model path"},
		{"dnn needs model path", func(c *Config) { c.Mode = "dnn"; c.ModelPath = "" }, "model path"},
		{"kserve needs endpoint", func(c *Config) { c.Mode = "kserve"; c.Endpoint = "" }, "endpoint"},
		{"unknown mode", func(c *Config) { c.Mode = "tflite" }, "unknown mode"},
		{"confidence range", func(c *Config) { c.ConfThreshold = 1.5 }, "confidence"},
		{"iou range", func(c *Config) { c.IoUThreshold = -0.1 }, "iou"},
		{"canvas positive", func(c *Config) { c.CanvasSize = 0 }, "canvas"},
		{"workers positive", func(c *Config) { c.Workers = -1 }, "worker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ModelPath = "model.onnx"
			cfg.Endpoint = "http://localhost:8000"
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	valid := Default()
	valid.ModelPath = "model.onnx"
	assert.NoError(t, valid.Validate())
}
