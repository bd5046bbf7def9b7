// Package video - multi-frame processing: video files and image batches fan
// frames out to a pool of detectors and collect results back in frame order.
package video

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-person-detect/detector"
)

const (
	// DefaultPoolSize is the detector count when none is configured.
	DefaultPoolSize = 4
	// AcquireTimeout bounds how long a worker waits for a free detector.
	AcquireTimeout = 5 * time.Second
)

// DetectorPool holds a fixed set of detectors behind a channel so workers can
// borrow one per frame. Engines that serialize inference internally still
// parallelize across pool members.
type DetectorPool struct {
	detectors chan detector.Detector
	size      int
	mu        sync.Mutex
	closed    bool

	metrics struct {
		sync.Mutex
		inUse           int
		totalAcquired   int64
		acquireFailures int64
		waitTime        time.Duration
	}
}

// NewDetectorPool builds size detectors via factory. On any construction
// failure the already-built detectors are closed and the error returned.
func NewDetectorPool(size int, factory func() (detector.Detector, error)) (*DetectorPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &DetectorPool{
		detectors: make(chan detector.Detector, size),
		size:      size,
	}
	for i := 0; i < size; i++ {
		d, err := factory()
		if err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, "initializing pool detector %d", i)
		}
		pool.detectors <- d
	}
	return pool, nil
}

// Acquire borrows a detector, waiting up to AcquireTimeout for one to free
// up. Callers must Release what they Acquire.
func (p *DetectorPool) Acquire(ctx context.Context) (detector.Detector, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("detector pool is closed")
	}
	p.mu.Unlock()

	start := time.Now()
	defer func() {
		p.metrics.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.Unlock()
	}()

	select {
	case d := <-p.detectors:
		// A nil receive means the channel was closed under us.
		if d == nil {
			return nil, errors.New("detector pool is closed")
		}
		p.metrics.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.Unlock()
		return d, nil
	case <-time.After(AcquireTimeout):
		p.metrics.Lock()
		p.metrics.acquireFailures++
		p.metrics.Unlock()
		return nil, errors.New("timeout waiting for available detector")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a borrowed detector to the pool. Releasing into a closed
// pool closes the detector instead. The mutex is held across the send so a
// concurrent Close cannot close the channel between the closed check and the
// send; the send itself never blocks because channel capacity equals the
// number of detectors in existence.
func (p *DetectorPool) Release(d detector.Detector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		d.Close()
		return
	}

	p.metrics.Lock()
	p.metrics.inUse--
	p.metrics.Unlock()
	p.detectors <- d
}

// Size returns the pool capacity.
func (p *DetectorPool) Size() int {
	return p.size
}

// Close drains the pool and closes every detector currently parked in it.
// Detectors still borrowed are closed on Release.
func (p *DetectorPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	// Closing under the mutex serializes against in-flight Release sends.
	close(p.detectors)
	p.mu.Unlock()

	for d := range p.detectors {
		d.Close()
	}
}
