// Package detector - inference engines that turn frames into person
// detections. Three engines share one interface: an OpenCV DNN engine, an
// ONNX Runtime engine, and a remote KServe engine.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/go-person-detect/postprocess"
)

// Detector runs person detection over single frames. Implementations are safe
// for concurrent use unless noted otherwise.
type Detector interface {
	// DetectPersons runs one inference and returns the surviving person
	// detections in original-frame pixel coordinates, confidence-descending.
	DetectPersons(ctx context.Context, img image.Image) (postprocess.DetectionSet, error)
	// ModelInfo describes the loaded model for the API and logs.
	ModelInfo() map[string]interface{}
	// Close releases model resources. The detector is unusable afterwards.
	Close() error
}

// Config carries everything an engine needs to load its model and run the
// shared post-processing pipeline.
type Config struct {
	// ModelPath is the ONNX model file for local engines.
	ModelPath string
	// Endpoint is the inference server base URL for the remote engine.
	Endpoint string
	// ModelName identifies the model on the inference server.
	ModelName string
	// CanvasSize is the square model input edge length.
	CanvasSize int
	// ConfThreshold is the inclusive minimum detection confidence.
	ConfThreshold float32
	// IoUThreshold is the NMS overlap threshold.
	IoUThreshold float32
	// Timeout bounds one remote inference call.
	Timeout time.Duration
	// InputName is the model's input tensor name.
	InputName string
	// OutputName is the model's output tensor name.
	OutputName string
	// OutputShape is the model's raw output shape, used to size the ONNX
	// Runtime output tensor. For a YOLOv8/v11 export this is [1, 84, 8400].
	OutputShape []int64
	// Layout declares how the raw output tensor is laid out.
	Layout postprocess.LayoutKind
}

// DefaultConfig returns the standard single-model configuration. Engines fill
// in what they need; unused fields are ignored.
func DefaultConfig() Config {
	return Config{
		CanvasSize:    postprocess.DefaultCanvasSize,
		ConfThreshold: postprocess.DefaultConfThreshold,
		IoUThreshold:  postprocess.DefaultIoUThreshold,
		Timeout:       30 * time.Second,
		InputName:     "images",
		OutputName:    "output0",
		OutputShape:   []int64{1, 84, 8400},
		Layout:        postprocess.LayoutTransposed,
	}
}

// pipelineFor builds the shared post-processing pipeline from a config.
func pipelineFor(cfg Config) *postprocess.Pipeline {
	return postprocess.NewPipeline(postprocess.Options{
		ConfThreshold: cfg.ConfThreshold,
		IoUThreshold:  cfg.IoUThreshold,
		CanvasSize:    cfg.CanvasSize,
		ClassID:       postprocess.PersonClassID,
		ClassName:     postprocess.PersonClassName,
	})
}
