// Package config - process configuration from defaults and the environment.
package config

import (
	"os"
	"runtime"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-person-detect/postprocess"
)

// Config holds the process-level settings shared by the CLI and the HTTP
// server. Flags override environment values; environment values override
// defaults.
type Config struct {
	// Mode selects the inference engine: "dnn", "ort" or "kserve".
	Mode string
	// ModelPath is the local ONNX model file for dnn and ort modes.
	ModelPath string
	// Endpoint is the KServe base URL for kserve mode.
	Endpoint string
	// ModelName identifies the model on the inference server.
	ModelName string
	// ConfThreshold is the inclusive minimum detection confidence.
	ConfThreshold float32
	// IoUThreshold is the NMS overlap threshold.
	IoUThreshold float32
	// CanvasSize is the square model input edge length.
	CanvasSize int
	// Workers is the detector pool size for batch processing.
	Workers int
	// ListenAddr is the HTTP server bind address.
	ListenAddr string
	// MaxUploadSizeMB caps uploaded image size on the detect endpoint.
	MaxUploadSizeMB int
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Mode:            "ort",
		ModelName:       "yolo-person",
		ConfThreshold:   postprocess.DefaultConfThreshold,
		IoUThreshold:    postprocess.DefaultIoUThreshold,
		CanvasSize:      postprocess.DefaultCanvasSize,
		Workers:         defaultWorkers(),
		ListenAddr:      ":8080",
		MaxUploadSizeMB: 500,
	}
}

// defaultWorkers sizes the detector pool to the machine, capped at 4 so a
// many-core host does not hold that many model sessions by default.
func defaultWorkers() int {
	if n := runtime.NumCPU(); n < 4 {
		return n
	}
	return 4
}

// FromEnv layers environment variables over the defaults. Unset variables
// keep their defaults; malformed numeric values are an error rather than a
// silent fallback.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("PD_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("PD_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("KSERVE_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		cfg.ModelName = v
	}
	if v := os.Getenv("PD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	var err error
	if cfg.ConfThreshold, err = envFloat("PD_CONF_THRESHOLD", cfg.ConfThreshold); err != nil {
		return Config{}, err
	}
	if cfg.IoUThreshold, err = envFloat("PD_IOU_THRESHOLD", cfg.IoUThreshold); err != nil {
		return Config{}, err
	}
	if cfg.CanvasSize, err = envInt("PD_CANVAS_SIZE", cfg.CanvasSize); err != nil {
		return Config{}, err
	}
	if cfg.Workers, err = envInt("PD_WORKERS", cfg.Workers); err != nil {
		return Config{}, err
	}
	if cfg.MaxUploadSizeMB, err = envInt("MAX_UPLOAD_SIZE_MB", cfg.MaxUploadSizeMB); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements for the selected mode.
func (c Config) Validate() error {
	switch c.Mode {
	case "dnn", "ort":
		if c.ModelPath == "" {
			return errors.Errorf("%s mode requires a model path", c.Mode)
		}
	case "kserve":
		if c.Endpoint == "" {
			return errors.New("kserve mode requires an endpoint")
		}
	default:
		return errors.Errorf("unknown mode %q", c.Mode)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return errors.Errorf("confidence threshold %f out of [0, 1]", c.ConfThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return errors.Errorf("iou threshold %f out of [0, 1]", c.IoUThreshold)
	}
	if c.CanvasSize <= 0 {
		return errors.Errorf("canvas size %d must be positive", c.CanvasSize)
	}
	if c.Workers <= 0 {
		return errors.Errorf("worker count %d must be positive", c.Workers)
	}
	return nil
}

func envFloat(name string, fallback float32) (float32, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", name)
	}
	return float32(parsed), nil
}

func envInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", name)
	}
	return parsed, nil
}
