// Package postprocess - turns raw detector output tensors into person
// detections in original-frame pixel coordinates.
//
// The pipeline is decode -> filter -> suppress -> remap. Every stage is a
// pure function over its inputs, so one Pipeline can be shared by any number
// of frames and goroutines.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-person-detect/images"
)

// Detection is a single detected object in original-image pixel space.
// Box coordinates are clipped to the frame, so 0 <= X1 <= X2 <= width and
// 0 <= Y1 <= Y2 <= height always hold.
type Detection struct {
	Box        images.Rect `json:"box"`
	Confidence float32     `json:"confidence"`
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
}

// String formats the detection for logs and debugging.
func (d Detection) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%.2f, %.2f), (%.2f, %.2f)",
		d.ClassName, d.Confidence, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}

// DetectionSet holds one frame's detections in suppression order, which is
// confidence-descending. The set is frame-scoped: built once per inference
// call and never mutated afterwards.
type DetectionSet []Detection
