package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-person-detect/images"
)

// SuppressOverlaps performs greedy Non-Maximum Suppression.
//
// Candidates below scoreThreshold are dropped; the rest are visited in
// confidence-descending order, each survivor suppressing every remaining box
// whose IoU with it exceeds iouThreshold. Confidence ties break toward the
// lower original index so the result is deterministic.
//
// Arguments:
//   - boxes: Candidate boxes, all in the same coordinate space.
//   - scores: Confidence per box; len(scores) must equal len(boxes).
//   - scoreThreshold: Minimum confidence to participate (inclusive).
//   - iouThreshold: Overlap above which the lower-confidence box is dropped.
//
// Returns:
//   - Indices into boxes of the survivors, in suppression order. Empty input
//     yields an empty result, never an error.
func SuppressOverlaps(boxes []images.Rect, scores []float32, scoreThreshold, iouThreshold float32) []int {
	n := len(boxes)
	if n == 0 || len(scores) != n {
		return nil
	}

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] >= scoreThreshold {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool {
		if scores[order[a]] == scores[order[b]] {
			return order[a] < order[b]
		}
		return scores[order[a]] > scores[order[b]]
	})

	kept := make([]int, 0, len(order))
	used := make([]bool, n)
	for pos, i := range order {
		if used[i] {
			continue
		}
		kept = append(kept, i)
		used[i] = true

		for _, j := range order[pos+1:] {
			if used[j] {
				continue
			}
			if images.CalculateIoU(boxes[i], boxes[j]) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}
