package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCalculateIoU verifies the overlap metric on known geometries.
func TestCalculateIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        Rect
		b        Rect
		expected float32
		delta    float64
	}{
		{
			name:     "identical boxes",
			a:        Rect{0, 0, 100, 100},
			b:        Rect{0, 0, 100, 100},
			expected: 1.0,
			delta:    1e-6,
		},
		{
			name:     "disjoint boxes",
			a:        Rect{0, 0, 10, 10},
			b:        Rect{20, 20, 30, 30},
			expected: 0.0,
			delta:    0,
		},
		{
			name: "quarter overlap",
			// 50x50 intersection over 17500 union.
			a:        Rect{0, 0, 100, 100},
			b:        Rect{50, 50, 150, 150},
			expected: 2500.0 / 17500.0,
			delta:    1e-6,
		},
		{
			name: "near-duplicate detections",
			// The classic NMS case: two boxes shifted by 5px.
			a:        Rect{0, 0, 100, 100},
			b:        Rect{5, 5, 100, 100},
			expected: 9025.0 / (10000.0 + 9025.0 - 9025.0),
			delta:    1e-4,
		},
		{
			name:     "touching edges do not overlap",
			a:        Rect{0, 0, 10, 10},
			b:        Rect{10, 0, 20, 10},
			expected: 0.0,
			delta:    0,
		},
		{
			name:     "zero-area box overlaps nothing",
			a:        Rect{50, 50, 50, 50},
			b:        Rect{0, 0, 100, 100},
			expected: 0.0,
			delta:    0,
		},
		{
			name:     "two zero-area boxes",
			a:        Rect{10, 10, 10, 10},
			b:        Rect{10, 10, 10, 10},
			expected: 0.0,
			delta:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.a, tt.b), tt.delta)
			// IoU is symmetric.
			assert.InDelta(t, tt.expected, CalculateIoU(tt.b, tt.a), tt.delta)
		})
	}
}

func TestRectArea(t *testing.T) {
	assert.Equal(t, float32(10000), Rect{0, 0, 100, 100}.Area())
	assert.Equal(t, float32(0), Rect{5, 5, 5, 5}.Area())
	assert.Equal(t, float32(0), Rect{10, 10, 5, 20}.Area(), "inverted rect has no area")
}
