package images

import "github.com/chewxy/math32"

// Rect is a lightweight bounding box with float32 corners. Which coordinate
// space it lives in (canvas or original frame) is up to the caller; the
// geometry here is space-agnostic.
type Rect struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float32 { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float32 { return r.Y2 - r.Y1 }

// Area returns the rectangle's area. Degenerate rectangles (zero or negative
// extent on either axis) have area 0.
func (r Rect) Area() float32 {
	w := r.Width()
	h := r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// CalculateIoU computes the Intersection over Union of two rectangles.
//
// IoU is the ratio of the overlapping area to the combined area, in [0, 1].
// It is the overlap metric used by Non-Maximum Suppression to decide whether
// two detections describe the same object.
//
// Rectangles with zero area never overlap anything: their IoU with any other
// rectangle is 0, which also keeps the union division well-defined.
func CalculateIoU(r, o Rect) float32 {
	// Intersection corners: max of the starts, min of the ends.
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	areaR := r.Area()
	areaO := o.Area()
	if areaR == 0 || areaO == 0 {
		return 0
	}

	// Inclusion-exclusion: Union(A, B) = Area(A) + Area(B) - Intersection(A, B).
	unionArea := areaR + areaO - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}
