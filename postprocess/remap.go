package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-person-detect/images"
)

// RemapToOriginal maps a canvas-space box back into original-frame pixels and
// clips it to the frame. Unmapping happens before clipping: a box that hangs
// into the padding region is first moved into frame coordinates, then trimmed,
// so the visible part keeps its true position.
func RemapToOriginal(box images.Rect, plan images.LetterboxPlan, origHeight, origWidth int) images.Rect {
	x1, y1 := plan.ToOriginal(box.X1, box.Y1)
	x2, y2 := plan.ToOriginal(box.X2, box.Y2)

	w := float32(origWidth)
	h := float32(origHeight)
	return images.Rect{
		X1: math32.Min(math32.Max(x1, 0), w),
		Y1: math32.Min(math32.Max(y1, 0), h),
		X2: math32.Min(math32.Max(x2, 0), w),
		Y2: math32.Min(math32.Max(y2, 0), h),
	}
}
