package video

import (
	"context"
	"image"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
	"github.com/nvr-ai/go-person-detect/util"
)

// VideoInfo describes a video file's stream properties.
type VideoInfo struct {
	Path       string  `json:"path"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
}

// ProbeFile opens a video file and reads its stream properties without
// decoding frames.
func ProbeFile(path string) (VideoInfo, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return VideoInfo{}, errors.Wrapf(err, "opening video %s", path)
	}
	defer capture.Close()

	return VideoInfo{
		Path:       path,
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// FrameResult is one processed frame's outcome. A frame that failed carries
// Err and empty detections; the stream keeps going either way.
type FrameResult struct {
	// Index is the sampled sequence number, dense from zero.
	Index int
	// SourceFrame is the frame's position in the source stream.
	SourceFrame int
	Detections  postprocess.DetectionSet
	Summary     postprocess.Summary
	InferenceMs float64
	Err         error
}

// Processor fans sampled frames out to a detector pool and delivers results
// strictly in frame order.
type Processor struct {
	pool    *DetectorPool
	workers int
	stride  int
}

// NewProcessor builds a processor over pool. workers defaults to the pool
// size; stride below 1 means every frame.
func NewProcessor(pool *DetectorPool, workers, stride int) *Processor {
	if workers <= 0 {
		workers = pool.Size()
	}
	if stride < 1 {
		stride = 1
	}
	return &Processor{pool: pool, workers: workers, stride: stride}
}

// frameJob carries one sampled frame to a worker. Exactly one of img and data
// is set; data is decoded inside the worker so decode cost parallelizes too.
type frameJob struct {
	seq    int
	source int
	img    image.Image
	data   []byte
	path   string
}

// FrameSource yields decoded frames sequentially. Next reports the end of
// the stream with ok=false and a nil error; any error aborts the run.
type FrameSource interface {
	Next() (frame image.Image, ok bool, err error)
}

// captureSource adapts a gocv capture to FrameSource, reusing one mat for
// every read.
type captureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	frame   int
}

func (s *captureSource) Next() (image.Image, bool, error) {
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, false, nil
	}
	s.frame++
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, false, errors.Wrapf(err, "decoding frame %d", s.frame-1)
	}
	return img, true, nil
}

// ProcessVideo decodes the video at path sequentially, samples every stride-th
// frame, runs detection across the pool and calls fn once per sampled frame in
// frame order.
func (p *Processor) ProcessVideo(ctx context.Context, path string, fn func(FrameResult)) (StreamMetrics, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return StreamMetrics{}, errors.Wrapf(err, "opening video %s", path)
	}
	defer capture.Close()

	src := &captureSource{capture: capture, mat: gocv.NewMat()}
	defer src.mat.Close()

	metrics, err := p.ProcessStream(ctx, src, fn)
	if err != nil {
		return metrics, err
	}
	log.Printf("🎬 processed %d/%d frames of %s in %s (%.1f fps)",
		metrics.FramesProcessed, metrics.FramesRead, path, metrics.TotalDuration.Round(time.Millisecond), metrics.FramesPerSecond)
	return metrics, nil
}

// ProcessStream samples every stride-th frame from src, fans the samples out
// to the pool and calls fn once per sampled frame in frame order. Reading
// stays sequential; only detection parallelizes.
func (p *Processor) ProcessStream(ctx context.Context, src FrameSource, fn func(FrameResult)) (StreamMetrics, error) {
	start := time.Now()
	jobs := make(chan frameJob, p.workers)
	framesRead := 0

	producerErr := make(chan error, 1)
	go func() {
		defer close(jobs)
		seq := 0
		for source := 0; ; source++ {
			frame, ok, err := src.Next()
			if err != nil {
				producerErr <- err
				return
			}
			if !ok {
				producerErr <- nil
				return
			}
			framesRead++
			if source%p.stride != 0 {
				continue
			}

			select {
			case jobs <- frameJob{seq: seq, source: source, img: frame}:
				seq++
			case <-ctx.Done():
				producerErr <- ctx.Err()
				return
			}
		}
	}()

	metrics := p.run(ctx, jobs, fn)
	if err := <-producerErr; err != nil {
		return metrics, err
	}
	metrics.FramesRead = framesRead
	metrics.finalize(time.Since(start))
	return metrics, nil
}

// ProcessImages runs detection over an ordered image batch, such as a frame
// directory loaded with util.LoadDirectoryImageFiles. Decoding happens on the
// workers; a file that fails to decode reports its error in the FrameResult
// and the batch continues.
func (p *Processor) ProcessImages(ctx context.Context, files []util.ImageFile, fn func(FrameResult)) (StreamMetrics, error) {
	start := time.Now()
	jobs := make(chan frameJob, p.workers)

	go func() {
		defer close(jobs)
		for i, file := range files {
			select {
			case jobs <- frameJob{seq: i, source: file.Frame, data: file.Data, path: file.Path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	metrics := p.run(ctx, jobs, fn)
	metrics.FramesRead = len(files)
	metrics.finalize(time.Since(start))
	return metrics, ctx.Err()
}

// run fans jobs out to workers and collects results back in sequence order.
func (p *Processor) run(ctx context.Context, jobs <-chan frameJob, fn func(FrameResult)) StreamMetrics {
	results := make(chan FrameResult, p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- p.processOne(ctx, job)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Results arrive in completion order; buffer and release them in
	// sequence order so downstream consumers see a stable stream.
	var metrics StreamMetrics
	pending := make(map[int]FrameResult)
	next := 0
	for res := range results {
		pending[res.Index] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if ready.Err != nil {
				metrics.FramesFailed++
			} else {
				metrics.FramesProcessed++
				metrics.TotalPersons += ready.Summary.TotalPersons
				metrics.InferenceDuration += time.Duration(ready.InferenceMs * float64(time.Millisecond))
			}
			if fn != nil {
				fn(ready)
			}
		}
	}
	return metrics
}

// processOne decodes if needed, borrows a detector and runs one inference.
func (p *Processor) processOne(ctx context.Context, job frameJob) FrameResult {
	result := FrameResult{Index: job.seq, SourceFrame: job.source}

	frame := job.img
	if frame == nil {
		decoded, err := images.Decode(job.data)
		if err != nil {
			result.Err = errors.Wrapf(err, "decoding %s", job.path)
			return result
		}
		frame = decoded
	}

	d, err := p.pool.Acquire(ctx)
	if err != nil {
		result.Err = err
		return result
	}
	defer p.pool.Release(d)

	start := time.Now()
	detections, err := d.DetectPersons(ctx, frame)
	result.InferenceMs = float64(time.Since(start).Nanoseconds()) / 1e6
	if err != nil {
		result.Err = err
		return result
	}

	result.Detections = detections
	result.Summary = postprocess.Summarize(detections)
	return result
}
