package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-person-detect/detector"
	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
	"github.com/nvr-ai/go-person-detect/util"
)

// stubDetector returns a fixed detection per frame, scaled to the frame
// width so tests can tell frames apart.
type stubDetector struct {
	calls  int64
	closed int64
	fail   bool
}

func (s *stubDetector) DetectPersons(ctx context.Context, img image.Image) (postprocess.DetectionSet, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.fail {
		return nil, fmt.Errorf("inference backend down")
	}
	w := float32(img.Bounds().Dx())
	return postprocess.DetectionSet{{
		Box:        images.Rect{X1: 0, Y1: 0, X2: w / 2, Y2: w / 2},
		Confidence: 0.9,
		ClassID:    postprocess.PersonClassID,
		ClassName:  postprocess.PersonClassName,
	}}, nil
}

func (s *stubDetector) ModelInfo() map[string]interface{} {
	return map[string]interface{}{"engine": "stub"}
}

func (s *stubDetector) Close() error {
	atomic.AddInt64(&s.closed, 1)
	return nil
}

func stubPool(t *testing.T, size int, stub *stubDetector) *DetectorPool {
	t.Helper()
	pool, err := NewDetectorPool(size, func() (detector.Detector, error) {
		return stub, nil
	})
	require.NoError(t, err)
	return pool
}

func encodedFrames(t *testing.T, n, width int) []util.ImageFile {
	t.Helper()
	files := make([]util.ImageFile, 0, n)
	for i := 0; i < n; i++ {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, width))))
		files = append(files, util.ImageFile{
			Path:  fmt.Sprintf("frame-%d.png", i),
			Data:  buf.Bytes(),
			Frame: i,
		})
	}
	return files
}

func TestProcessImagesInOrder(t *testing.T) {
	stub := &stubDetector{}
	pool := stubPool(t, 3, stub)
	defer pool.Close()

	proc := NewProcessor(pool, 3, 1)
	files := encodedFrames(t, 8, 32)

	var order []int
	metrics, err := proc.ProcessImages(context.Background(), files, func(res FrameResult) {
		require.NoError(t, res.Err)
		order = append(order, res.Index)
		assert.Equal(t, 1, res.Summary.TotalPersons)
	})
	require.NoError(t, err)

	// Workers complete out of order; delivery must still be sequential.
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
	assert.Equal(t, 8, metrics.FramesRead)
	assert.Equal(t, 8, metrics.FramesProcessed)
	assert.Equal(t, 0, metrics.FramesFailed)
	assert.Equal(t, 8, metrics.TotalPersons)
	assert.Equal(t, int64(8), atomic.LoadInt64(&stub.calls))
}

// A corrupt frame mid-stream reports its error and the batch keeps going.
func TestProcessImagesContinuesPastBadFrame(t *testing.T) {
	stub := &stubDetector{}
	pool := stubPool(t, 2, stub)
	defer pool.Close()

	proc := NewProcessor(pool, 2, 1)
	files := encodedFrames(t, 5, 32)
	files[2].Data = []byte("definitely not a png")

	var failed, succeeded int
	metrics, err := proc.ProcessImages(context.Background(), files, func(res FrameResult) {
		if res.Err != nil {
			failed++
			assert.Equal(t, 2, res.Index)
		} else {
			succeeded++
		}
	})
	require.NoError(t, err)

	assert.Equal(t, 1, failed)
	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 4, metrics.FramesProcessed)
	assert.Equal(t, 1, metrics.FramesFailed)
	assert.InDelta(t, 0.2, metrics.ErrorRate, 1e-9)
}

func TestProcessImagesDetectorErrors(t *testing.T) {
	stub := &stubDetector{fail: true}
	pool := stubPool(t, 2, stub)
	defer pool.Close()

	proc := NewProcessor(pool, 2, 1)
	metrics, err := proc.ProcessImages(context.Background(), encodedFrames(t, 3, 16), func(res FrameResult) {
		assert.Error(t, res.Err)
		assert.Empty(t, res.Detections)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.FramesFailed)
	assert.Equal(t, 0, metrics.FramesProcessed)
}

func TestProcessImagesEmptyBatch(t *testing.T) {
	pool := stubPool(t, 1, &stubDetector{})
	defer pool.Close()

	proc := NewProcessor(pool, 1, 1)
	metrics, err := proc.ProcessImages(context.Background(), nil, func(res FrameResult) {
		t.Fatal("no results expected")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.FramesRead)
	assert.Equal(t, float64(0), metrics.FramesPerSecond)
}

// fakeSource yields n generated frames, optionally failing at a given frame.
type fakeSource struct {
	n      int
	failAt int // -1 to never fail
	next   int
}

func (s *fakeSource) Next() (image.Image, bool, error) {
	if s.failAt >= 0 && s.next == s.failAt {
		return nil, false, fmt.Errorf("frame %d unreadable", s.next)
	}
	if s.next >= s.n {
		return nil, false, nil
	}
	s.next++
	return image.NewRGBA(image.Rect(0, 0, 32, 32)), true, nil
}

func TestProcessStreamStride(t *testing.T) {
	stub := &stubDetector{}
	pool := stubPool(t, 2, stub)
	defer pool.Close()

	proc := NewProcessor(pool, 2, 2)

	var sources []int
	metrics, err := proc.ProcessStream(context.Background(), &fakeSource{n: 7, failAt: -1}, func(res FrameResult) {
		require.NoError(t, res.Err)
		sources = append(sources, res.SourceFrame)
	})
	require.NoError(t, err)

	// Every second frame of seven: 0, 2, 4, 6, delivered in order.
	assert.Equal(t, []int{0, 2, 4, 6}, sources)
	assert.Equal(t, 7, metrics.FramesRead)
	assert.Equal(t, 4, metrics.FramesProcessed)
	assert.Equal(t, int64(4), atomic.LoadInt64(&stub.calls))
}

func TestProcessStreamEveryFrame(t *testing.T) {
	pool := stubPool(t, 2, &stubDetector{})
	defer pool.Close()

	proc := NewProcessor(pool, 2, 1)

	var order []int
	metrics, err := proc.ProcessStream(context.Background(), &fakeSource{n: 5, failAt: -1}, func(res FrameResult) {
		order = append(order, res.Index)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 5, metrics.FramesRead)
	assert.Equal(t, 5, metrics.TotalPersons)
}

// A source-level read failure aborts the run; frames sampled before the
// failure are still processed and delivered.
func TestProcessStreamSourceError(t *testing.T) {
	pool := stubPool(t, 1, &stubDetector{})
	defer pool.Close()

	proc := NewProcessor(pool, 1, 1)

	delivered := 0
	_, err := proc.ProcessStream(context.Background(), &fakeSource{n: 10, failAt: 3}, func(res FrameResult) {
		require.NoError(t, res.Err)
		delivered++
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
	assert.Equal(t, 3, delivered)
}

func TestProcessStreamEmptySource(t *testing.T) {
	pool := stubPool(t, 1, &stubDetector{})
	defer pool.Close()

	proc := NewProcessor(pool, 1, 1)
	metrics, err := proc.ProcessStream(context.Background(), &fakeSource{n: 0, failAt: -1}, func(res FrameResult) {
		t.Fatal("no results expected")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.FramesRead)
}

func TestNewProcessorDefaults(t *testing.T) {
	pool := stubPool(t, 2, &stubDetector{})
	defer pool.Close()

	proc := NewProcessor(pool, 0, 0)
	assert.Equal(t, 2, proc.workers)
	assert.Equal(t, 1, proc.stride)
}
