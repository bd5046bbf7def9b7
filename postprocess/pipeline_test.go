package postprocess

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-person-detect/images"
)

// interleavedRow builds one [cx cy w h obj scores...] row.
func interleavedRow(cx, cy, w, h, obj float32, scores ...float32) []float32 {
	row := []float32{cx, cy, w, h, obj}
	return append(row, scores...)
}

func TestPipelineEndToEndInterleaved(t *testing.T) {
	// 1280x720 frame on a 640 canvas: scale 0.5, PadX 0, PadY 140.
	var data []float32
	// A strong person centered on the canvas content region.
	data = append(data, interleavedRow(320, 320, 100, 200, 0.95, 0.9, 0.02)...)
	// A near-duplicate of it, shifted slightly, to be suppressed.
	data = append(data, interleavedRow(325, 322, 100, 200, 0.9, 0.85, 0.02)...)
	// A confident non-person.
	data = append(data, interleavedRow(100, 300, 40, 40, 0.9, 0.01, 0.95)...)
	// A person below the confidence threshold.
	data = append(data, interleavedRow(500, 300, 40, 80, 0.3, 0.3, 0.01)...)
	raw := tensor.New(tensor.WithShape(4, 7), tensor.WithBacking(data))

	p := NewPipeline(DefaultOptions())
	detections, err := p.Run(raw, LayoutInterleaved, 720, 1280)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, PersonClassID, d.ClassID)
	assert.Equal(t, PersonClassName, d.ClassName)
	assert.InDelta(t, 0.95*0.9, d.Confidence, 1e-5)

	// Canvas (320,320) center, 100x200 box unmapped by scale 0.5, PadY 140:
	// x: (320-50)/0.5 = 540 .. (320+50)/0.5 = 740
	// y: (320-100-140)/0.5 = 160 .. (320+100-140)/0.5 = 560
	assert.InDelta(t, 540, d.Box.X1, 0.5)
	assert.InDelta(t, 160, d.Box.Y1, 0.5)
	assert.InDelta(t, 740, d.Box.X2, 0.5)
	assert.InDelta(t, 560, d.Box.Y2, 0.5)
}

func TestPipelineEndToEndTransposed(t *testing.T) {
	// [4+1 channels, 2 candidates]: one confident, one weak.
	data := []float32{
		320, 100, // cx
		320, 100, // cy
		64, 20, // w
		128, 20, // h
		0.9, 0.1, // person confidence
	}
	raw := tensor.New(tensor.WithShape(5, 2), tensor.WithBacking(data))

	p := NewPipeline(DefaultOptions())
	detections, err := p.Run(raw, LayoutTransposed, 640, 640)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.InDelta(t, 0.9, detections[0].Confidence, 1e-6)
}

// TestPipelineClipsToFrame feeds a box hanging off the canvas edge and checks
// the remapped result stays inside the original frame.
func TestPipelineClipsToFrame(t *testing.T) {
	data := interleavedRow(630, 320, 100, 100, 0.95, 0.9)
	raw := tensor.New(tensor.WithShape(1, 6), tensor.WithBacking(data))

	p := NewPipeline(DefaultOptions())
	detections, err := p.Run(raw, LayoutInterleaved, 720, 1280)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	box := detections[0].Box
	assert.GreaterOrEqual(t, box.X1, float32(0))
	assert.GreaterOrEqual(t, box.Y1, float32(0))
	assert.LessOrEqual(t, box.X2, float32(1280))
	assert.LessOrEqual(t, box.Y2, float32(720))
	assert.LessOrEqual(t, box.X1, box.X2)
	assert.LessOrEqual(t, box.Y1, box.Y2)
}

// TestPipelineEmptyOutput covers a frame with no detections at all: the
// pipeline reports an empty set, not an error.
func TestPipelineEmptyOutput(t *testing.T) {
	p := NewPipeline(DefaultOptions())

	detections, err := p.Run(nil, LayoutInterleaved, 1080, 1920)
	require.NoError(t, err)
	assert.Empty(t, detections)
	assert.Equal(t, Summary{}, Summarize(detections))
}

func TestPipelineRejectsDegenerateFrame(t *testing.T) {
	p := NewPipeline(DefaultOptions())
	_, err := p.Run(nil, LayoutInterleaved, 0, 1920)
	require.Error(t, err)
	assert.ErrorIs(t, err, images.ErrInvalidGeometry)
}

// TestPipelineRaisingThresholdNeverAdds checks monotonicity: a stricter
// confidence threshold can only shrink the result.
func TestPipelineRaisingThresholdNeverAdds(t *testing.T) {
	var data []float32
	data = append(data, interleavedRow(100, 300, 40, 80, 0.9, 0.9)...)
	data = append(data, interleavedRow(300, 300, 40, 80, 0.7, 0.6)...)
	data = append(data, interleavedRow(500, 300, 40, 80, 0.6, 0.5)...)
	raw := tensor.New(tensor.WithShape(3, 6), tensor.WithBacking(data))

	var prev int = -1
	for _, threshold := range []float32{0.25, 0.4, 0.6, 0.9} {
		opts := DefaultOptions()
		opts.ConfThreshold = threshold
		detections, err := NewPipeline(opts).Run(raw, LayoutInterleaved, 640, 640)
		require.NoError(t, err)
		if prev >= 0 {
			assert.LessOrEqual(t, len(detections), prev, "threshold %f", threshold)
		}
		prev = len(detections)
	}
}

func TestPipelineConcurrentRuns(t *testing.T) {
	data := interleavedRow(320, 320, 100, 200, 0.95, 0.9)
	raw := tensor.New(tensor.WithShape(1, 6), tensor.WithBacking(data))
	p := NewPipeline(DefaultOptions())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			detections, err := p.Run(raw, LayoutInterleaved, 720, 1280)
			assert.NoError(t, err)
			assert.Len(t, detections, 1)
		}()
	}
	wg.Wait()
}

func TestNewPipelineDefaults(t *testing.T) {
	p := NewPipeline(Options{})
	opts := p.Options()
	assert.Equal(t, float32(DefaultConfThreshold), opts.ConfThreshold)
	assert.Equal(t, float32(DefaultIoUThreshold), opts.IoUThreshold)
	assert.Equal(t, DefaultCanvasSize, opts.CanvasSize)
	assert.Equal(t, PersonClassID, opts.ClassID)
	assert.Equal(t, PersonClassName, opts.ClassName)
}
