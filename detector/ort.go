package detector

import (
	"context"
	"image"
	"log"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
)

// GetSharedLibPath returns the path to the ONNX Runtime shared library for
// the current platform.
//
// Returns:
//   - string: The path to the shared library.
func GetSharedLibPath() string {
	if runtime.GOOS == "windows" {
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll"
		}
	}
	if runtime.GOOS == "darwin" {
		return "./third_party/libonnxruntime.dylib"
	}
	if runtime.GOOS == "linux" {
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	panic("Unable to find a version of the onnxruntime library supporting this system.")
}

// ORTDetector runs a YOLO ONNX export through ONNX Runtime with pre-allocated
// input and output tensors. The session binds fixed tensors, so forward
// passes are serialized behind a mutex; run one ORTDetector per worker for
// parallelism.
type ORTDetector struct {
	cfg      Config
	pipeline *postprocess.Pipeline
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
}

// NewORTDetector initializes the ONNX Runtime environment if needed and
// builds a session over the model at cfg.ModelPath.
func NewORTDetector(cfg Config) (*ORTDetector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("ort: model path is required")
	}

	libPath := GetSharedLibPath()
	if _, err := os.Stat(libPath); os.IsNotExist(err) {
		return nil, errors.Errorf("ort: runtime library not found at %s", libPath)
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "ort: initializing environment")
		}
	}

	inputShape := ort.NewShape(1, 3, int64(cfg.CanvasSize), int64(cfg.CanvasSize))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Wrap(err, "ort: creating input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "ort: creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "ort: creating session options")
	}
	defer options.Destroy()

	// Parallelize within graph nodes and across independent nodes.
	options.SetIntraOpNumThreads(4)
	options.SetInterOpNumThreads(2)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "ort: creating session")
	}

	log.Printf("🚀 ORT engine ready: %s (%s -> %s)", cfg.ModelPath, cfg.InputName, cfg.OutputName)
	return &ORTDetector{
		cfg:      cfg,
		pipeline: pipelineFor(cfg),
		session:  session,
		input:    inputTensor,
		output:   outputTensor,
	}, nil
}

// DetectPersons letterboxes the frame into the input tensor, runs the
// session and post-processes the output tensor into person detections.
func (d *ORTDetector) DetectPersons(ctx context.Context, img image.Image) (postprocess.DetectionSet, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bounds := img.Bounds()
	chw, _, err := images.LetterboxToCHW(img, d.cfg.CanvasSize)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.session == nil {
		d.mu.Unlock()
		return nil, errors.New("ort: detector is closed")
	}
	copy(d.input.GetData(), chw)
	if err := d.session.Run(); err != nil {
		d.mu.Unlock()
		return nil, errors.Wrap(err, "ort: running session")
	}
	out := d.output.GetData()
	data := make([]float32, len(out))
	copy(data, out)
	d.mu.Unlock()

	shape := make([]int, len(d.cfg.OutputShape))
	for i, s := range d.cfg.OutputShape {
		shape[i] = int(s)
	}
	raw := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return d.pipeline.Run(raw, d.cfg.Layout, bounds.Dy(), bounds.Dx())
}

// ModelInfo returns information about the loaded model.
func (d *ORTDetector) ModelInfo() map[string]interface{} {
	opts := d.pipeline.Options()
	return map[string]interface{}{
		"engine":               "ort",
		"model_path":           d.cfg.ModelPath,
		"canvas_size":          d.cfg.CanvasSize,
		"confidence_threshold": opts.ConfThreshold,
		"iou_threshold":        opts.IoUThreshold,
		"output_layout":        d.cfg.Layout.String(),
		"output_shape":         d.cfg.OutputShape,
		"class":                opts.ClassName,
	}
}

// Close destroys the session and its tensors.
func (d *ORTDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
		log.Printf("🔒 ORT engine closed")
	}
	return nil
}
