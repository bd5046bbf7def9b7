package postprocess

import "github.com/nvr-ai/go-person-detect/images"

// ScoredBox pairs a corner-form canvas-space box with its confidence for the
// target class.
type ScoredBox struct {
	Box        images.Rect
	Confidence float32
}

// FilterByClass keeps candidates whose confidence for classID meets the
// threshold. The threshold is inclusive (>=), matching conventional detector
// semantics. Input order is preserved; sorting belongs to the suppression
// stage.
func FilterByClass(candidates []Candidate, classID int, threshold float32) []ScoredBox {
	kept := make([]ScoredBox, 0, len(candidates))
	for _, c := range candidates {
		conf := c.Confidence(classID)
		if conf >= threshold {
			kept = append(kept, ScoredBox{Box: c.CornerRect(), Confidence: conf})
		}
	}
	return kept
}
