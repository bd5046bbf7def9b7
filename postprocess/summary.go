package postprocess

// HighConfidence is the confidence above which a detection counts as
// high-confidence in summaries. Strictly above, not inclusive.
const HighConfidence = 0.8

// Summary aggregates one frame's person detections into the counters the API
// and CLI report.
type Summary struct {
	TotalPersons  int     `json:"total_persons"`
	AvgConfidence float32 `json:"avg_confidence"`
	MaxConfidence float32 `json:"max_confidence"`
	MinConfidence float32 `json:"min_confidence"`
	HighConfCount int     `json:"high_conf_count"`
}

// Summarize computes the summary over a detection set. An empty set yields
// all-zero statistics rather than NaNs.
func Summarize(detections DetectionSet) Summary {
	if len(detections) == 0 {
		return Summary{}
	}

	s := Summary{
		TotalPersons:  len(detections),
		MaxConfidence: detections[0].Confidence,
		MinConfidence: detections[0].Confidence,
	}
	var sum float32
	for _, d := range detections {
		sum += d.Confidence
		if d.Confidence > s.MaxConfidence {
			s.MaxConfidence = d.Confidence
		}
		if d.Confidence < s.MinConfidence {
			s.MinConfidence = d.Confidence
		}
		if d.Confidence > HighConfidence {
			s.HighConfCount++
		}
	}
	s.AvgConfidence = sum / float32(len(detections))
	return s
}
