package postprocess

import (
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-person-detect/images"
)

const (
	// DefaultConfThreshold is the minimum confidence a detection needs to
	// survive filtering.
	DefaultConfThreshold = 0.25
	// DefaultIoUThreshold is the overlap above which Non-Maximum Suppression
	// drops the lower-confidence box.
	DefaultIoUThreshold = 0.45
	// DefaultCanvasSize is the square model input edge length.
	DefaultCanvasSize = 640
	// PersonClassID is the COCO class index for "person".
	PersonClassID = 0
	// PersonClassName labels person detections in results and logs.
	PersonClassName = "person"
)

// Options configures a Pipeline. The zero value is not usable; start from
// DefaultOptions and override.
type Options struct {
	// ConfThreshold is the inclusive minimum confidence.
	ConfThreshold float32
	// IoUThreshold is the NMS overlap threshold.
	IoUThreshold float32
	// CanvasSize is the square canvas edge length the model was fed.
	CanvasSize int
	// ClassID selects which class to keep. Defaults to person.
	ClassID int
	// ClassName labels the kept class in results.
	ClassName string
}

// DefaultOptions returns the standard person-detection configuration.
func DefaultOptions() Options {
	return Options{
		ConfThreshold: DefaultConfThreshold,
		IoUThreshold:  DefaultIoUThreshold,
		CanvasSize:    DefaultCanvasSize,
		ClassID:       PersonClassID,
		ClassName:     PersonClassName,
	}
}

// Pipeline runs the full post-processing chain over one raw output tensor:
// decode, filter to the target class, suppress overlaps, remap into
// original-frame pixels. A Pipeline holds no per-frame state and is safe for
// concurrent use from any number of goroutines.
type Pipeline struct {
	opts Options
}

// NewPipeline builds a Pipeline. Zero-valued thresholds and sizes in opts fall
// back to the defaults so callers can set only what they need.
func NewPipeline(opts Options) *Pipeline {
	if opts.ConfThreshold == 0 {
		opts.ConfThreshold = DefaultConfThreshold
	}
	if opts.IoUThreshold == 0 {
		opts.IoUThreshold = DefaultIoUThreshold
	}
	if opts.CanvasSize == 0 {
		opts.CanvasSize = DefaultCanvasSize
	}
	if opts.ClassName == "" {
		opts.ClassName = PersonClassName
	}
	return &Pipeline{opts: opts}
}

// Options returns the pipeline's effective configuration.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run post-processes one frame's raw output.
//
// Arguments:
//   - raw: The backend's raw output tensor. Nil or empty means no candidates.
//   - layout: How raw is laid out, declared by the caller.
//   - origHeight, origWidth: Original frame dimensions in pixels.
//
// Returns:
//   - DetectionSet: Surviving detections in confidence-descending order, with
//     boxes clipped to the original frame. Empty when nothing survives.
//   - error: Decode failures or degenerate frame geometry.
func (p *Pipeline) Run(raw *tensor.Dense, layout LayoutKind, origHeight, origWidth int) (DetectionSet, error) {
	plan, err := images.ComputePlan(origHeight, origWidth, p.opts.CanvasSize)
	if err != nil {
		return nil, err
	}

	candidates, err := DecodeRawOutput(raw, layout)
	if err != nil {
		return nil, err
	}

	scored := FilterByClass(candidates, p.opts.ClassID, p.opts.ConfThreshold)
	if len(scored) == 0 {
		return DetectionSet{}, nil
	}

	boxes := make([]images.Rect, len(scored))
	scores := make([]float32, len(scored))
	for i, s := range scored {
		boxes[i] = s.Box
		scores[i] = s.Confidence
	}
	kept := SuppressOverlaps(boxes, scores, p.opts.ConfThreshold, p.opts.IoUThreshold)

	detections := make(DetectionSet, 0, len(kept))
	for _, idx := range kept {
		detections = append(detections, Detection{
			Box:        RemapToOriginal(boxes[idx], plan, origHeight, origWidth),
			Confidence: scores[idx],
			ClassID:    p.opts.ClassID,
			ClassName:  p.opts.ClassName,
		})
	}
	return detections, nil
}
