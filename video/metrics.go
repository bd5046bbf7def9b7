package video

import "time"

// StreamMetrics captures aggregate performance data for one processing run.
type StreamMetrics struct {
	FramesRead        int           `json:"frames_read"`
	FramesProcessed   int           `json:"frames_processed"`
	FramesFailed      int           `json:"frames_failed"`
	TotalPersons      int           `json:"total_persons"`
	TotalDuration     time.Duration `json:"total_duration"`
	InferenceDuration time.Duration `json:"inference_duration"`
	FramesPerSecond   float64       `json:"frames_per_second"`
	ErrorRate         float64       `json:"error_rate"`
}

// finalize derives the rate fields once the run is complete.
func (m *StreamMetrics) finalize(elapsed time.Duration) {
	m.TotalDuration = elapsed
	if elapsed > 0 {
		m.FramesPerSecond = float64(m.FramesProcessed) / elapsed.Seconds()
	}
	if m.FramesProcessed+m.FramesFailed > 0 {
		m.ErrorRate = float64(m.FramesFailed) / float64(m.FramesProcessed+m.FramesFailed)
	}
}
