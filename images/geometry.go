// Package images - geometry and pixel operations for mapping video frames
// onto the square model canvas and back.
package images

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrInvalidGeometry indicates non-positive frame or canvas dimensions.
var ErrInvalidGeometry = errors.New("invalid geometry")

// LetterboxPlan describes the aspect-preserving mapping of an original frame
// onto a square canvas: a uniform scale plus symmetric padding. One plan is
// computed per frame and shared by preprocessing and coordinate remapping so
// both sides of the inference call agree on the same transform.
type LetterboxPlan struct {
	// Scale is the uniform scale factor, min(canvas/h, canvas/w).
	Scale float32
	// PadX is the horizontal padding on the left edge of the canvas.
	PadX int
	// PadY is the vertical padding on the top edge of the canvas.
	PadY int
	// CanvasSize is the square canvas edge length in pixels.
	CanvasSize int
}

// ComputePlan builds the letterbox plan for a frame of the given dimensions.
//
// Arguments:
//   - origHeight: Original frame height in pixels.
//   - origWidth: Original frame width in pixels.
//   - canvasSize: Square model input size (e.g. 640).
//
// Returns:
//   - LetterboxPlan: The computed plan.
//   - error: ErrInvalidGeometry if any dimension is not positive.
func ComputePlan(origHeight, origWidth, canvasSize int) (LetterboxPlan, error) {
	if origHeight <= 0 || origWidth <= 0 {
		return LetterboxPlan{}, errors.Wrapf(ErrInvalidGeometry, "frame %dx%d", origWidth, origHeight)
	}
	if canvasSize <= 0 {
		return LetterboxPlan{}, errors.Wrapf(ErrInvalidGeometry, "canvas size %d", canvasSize)
	}

	scale := math32.Min(
		float32(canvasSize)/float32(origHeight),
		float32(canvasSize)/float32(origWidth),
	)
	scaledH := int(math32.Floor(float32(origHeight) * scale))
	scaledW := int(math32.Floor(float32(origWidth) * scale))

	return LetterboxPlan{
		Scale:      scale,
		PadX:       (canvasSize - scaledW) / 2,
		PadY:       (canvasSize - scaledH) / 2,
		CanvasSize: canvasSize,
	}, nil
}

// ScaledSize returns the frame dimensions after scaling, before padding.
func (p LetterboxPlan) ScaledSize(origHeight, origWidth int) (height, width int) {
	return int(math32.Floor(float32(origHeight) * p.Scale)),
		int(math32.Floor(float32(origWidth) * p.Scale))
}

// ToCanvas maps a point in original-frame pixels onto the canvas.
func (p LetterboxPlan) ToCanvas(x, y float32) (float32, float32) {
	return x*p.Scale + float32(p.PadX), y*p.Scale + float32(p.PadY)
}

// ToOriginal maps a canvas-space point back into original-frame pixels.
// Inverse of ToCanvas.
func (p LetterboxPlan) ToOriginal(x, y float32) (float32, float32) {
	return (x - float32(p.PadX)) / p.Scale, (y - float32(p.PadY)) / p.Scale
}
