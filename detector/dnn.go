package detector

import (
	"context"
	"image"
	"log"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
)

// DNNDetector runs a YOLO ONNX export through OpenCV's DNN module. Forward
// passes are serialized behind a mutex because gocv.Net is not safe for
// concurrent use; run one DNNDetector per worker for parallelism.
type DNNDetector struct {
	cfg      Config
	pipeline *postprocess.Pipeline
	mu       sync.Mutex
	net      gocv.Net
	closed   bool
}

// NewDNNDetector loads the model at cfg.ModelPath into the OpenCV DNN
// backend.
func NewDNNDetector(cfg Config) (*DNNDetector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("dnn: model path is required")
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("dnn: failed to load model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	log.Printf("🚀 DNN engine ready: %s (canvas %dx%d)", cfg.ModelPath, cfg.CanvasSize, cfg.CanvasSize)
	return &DNNDetector{
		cfg:      cfg,
		pipeline: pipelineFor(cfg),
		net:      net,
	}, nil
}

// DetectPersons letterboxes the frame, runs one forward pass and
// post-processes the raw output into person detections.
func (d *DNNDetector) DetectPersons(ctx context.Context, img image.Image) (postprocess.DetectionSet, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bounds := img.Bounds()
	canvas, _, err := images.Letterbox(img, d.cfg.CanvasSize)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(canvas)
	if err != nil {
		return nil, errors.Wrap(err, "dnn: converting canvas to mat")
	}
	defer mat.Close()

	// The canvas mat is already RGB, so no channel swap in the blob.
	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(d.cfg.CanvasSize, d.cfg.CanvasSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("dnn: detector is closed")
	}
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	raw, err := matToDense(out)
	if err != nil {
		return nil, err
	}
	return d.pipeline.Run(raw, d.cfg.Layout, bounds.Dy(), bounds.Dx())
}

// ModelInfo returns information about the loaded model.
func (d *DNNDetector) ModelInfo() map[string]interface{} {
	opts := d.pipeline.Options()
	return map[string]interface{}{
		"engine":               "dnn",
		"model_path":           d.cfg.ModelPath,
		"canvas_size":          d.cfg.CanvasSize,
		"confidence_threshold": opts.ConfThreshold,
		"iou_threshold":        opts.IoUThreshold,
		"output_layout":        d.cfg.Layout.String(),
		"class":                opts.ClassName,
	}
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	log.Printf("🔒 DNN engine closed")
	return d.net.Close()
}

// matToDense copies a forward-pass output mat into an owned dense tensor. The
// copy decouples post-processing from the mat's lifetime.
func matToDense(m gocv.Mat) (*tensor.Dense, error) {
	src, err := m.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "dnn: reading output mat")
	}
	data := make([]float32, len(src))
	copy(data, src)

	dims := m.Size()
	shape := make([]int, len(dims))
	copy(shape, dims)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}
