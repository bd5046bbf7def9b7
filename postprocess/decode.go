package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-person-detect/images"
)

// ErrUnrecognizedOutputShape indicates a raw output tensor whose shape does
// not satisfy the declared layout's contract. The decoder never guesses: a
// shape that could be read several ways is an error, not a heuristic.
var ErrUnrecognizedOutputShape = errors.New("unrecognized output shape")

// LayoutKind declares how a raw output tensor is laid out. The caller states
// the layout it received from its backend explicitly.
type LayoutKind int

const (
	// LayoutInterleaved is [N, 4+1+C]: box (cx,cy,w,h), one objectness
	// scalar, then C class scores per row. YOLOv4/v5-style exports.
	// Confidence for a class is objectness * class score.
	LayoutInterleaved LayoutKind = iota
	// LayoutTransposed is [4+C, M]: channel-first with no objectness
	// channel; class scores already are confidences. YOLOv8/v11-style
	// exports. Transposed to per-candidate rows before extraction.
	LayoutTransposed
	// LayoutPreFiltered is [N, 6]: x1,y1,x2,y2,confidence,class in canvas
	// space, from backends that run their own detection head. The decoder
	// is an identity pass-through into candidate form.
	LayoutPreFiltered
)

// String returns the layout's wire name.
func (k LayoutKind) String() string {
	switch k {
	case LayoutInterleaved:
		return "interleaved"
	case LayoutTransposed:
		return "transposed"
	case LayoutPreFiltered:
		return "prefiltered"
	default:
		return "unknown"
	}
}

// ParseLayout maps a layout's wire name back to its LayoutKind.
func ParseLayout(s string) (LayoutKind, error) {
	switch s {
	case "interleaved":
		return LayoutInterleaved, nil
	case "transposed":
		return LayoutTransposed, nil
	case "prefiltered":
		return LayoutPreFiltered, nil
	default:
		return 0, errors.Errorf("unknown output layout %q", s)
	}
}

// Candidate is one decoded box proposal in canvas space, center form.
// Candidates are consumed once by the filter stage and never persisted.
type Candidate struct {
	CX, CY, W, H float32
	// Objectness is the class-independent object score. Only meaningful
	// when HasObjectness is set; layouts without an objectness channel
	// fold it into the class scores.
	Objectness    float32
	HasObjectness bool
	ClassScores   []float32
}

// Confidence returns the candidate's confidence for one class. With an
// objectness channel the confidence is objectness * class score; without
// one the class score already is the confidence. Out-of-range classes
// score 0.
func (c Candidate) Confidence(classID int) float32 {
	if classID < 0 || classID >= len(c.ClassScores) {
		return 0
	}
	if c.HasObjectness {
		return c.Objectness * c.ClassScores[classID]
	}
	return c.ClassScores[classID]
}

// CornerRect converts the center-form box to corner form, still in canvas
// space.
func (c Candidate) CornerRect() images.Rect {
	return images.Rect{
		X1: c.CX - c.W/2,
		Y1: c.CY - c.H/2,
		X2: c.CX + c.W/2,
		Y2: c.CY + c.H/2,
	}
}

// DecodeRawOutput normalizes a raw output tensor into candidate form
// according to the declared layout. A nil or empty tensor decodes to zero
// candidates; a shape that does not match the layout's contract fails with
// ErrUnrecognizedOutputShape.
func DecodeRawOutput(raw *tensor.Dense, layout LayoutKind) ([]Candidate, error) {
	if raw == nil {
		return nil, nil
	}
	shape := raw.Shape()
	if shape.TotalSize() == 0 {
		return nil, nil
	}

	data, ok := raw.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape, "raw output holds %T, want []float32", raw.Data())
	}

	// A leading batch dimension of one is squeezed; anything else must
	// already be two-dimensional. In particular a flat 1-D buffer is
	// ambiguous (its length may divide into several valid layouts) and is
	// rejected rather than guessed at.
	dims := []int(shape)
	for len(dims) > 2 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape, "cannot decode %v unambiguously", shape)
	}
	rows, cols := dims[0], dims[1]
	if rows*cols != len(data) {
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape, "shape %v does not cover %d elements", shape, len(data))
	}

	switch layout {
	case LayoutInterleaved:
		return decodeInterleaved(data, rows, cols)
	case LayoutTransposed:
		return decodeTransposed(data, rows, cols)
	case LayoutPreFiltered:
		return decodePreFiltered(data, rows, cols)
	default:
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape, "unknown layout %d", layout)
	}
}

// decodeInterleaved reads [N, 4+1+C] rows of box, objectness and class
// scores.
func decodeInterleaved(data []float32, rows, cols int) ([]Candidate, error) {
	// Four box coordinates, objectness, and at least one class score.
	if cols < 6 {
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape,
			"interleaved layout needs at least 6 columns, got %d", cols)
	}

	candidates := make([]Candidate, 0, rows)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		candidates = append(candidates, Candidate{
			CX:            row[0],
			CY:            row[1],
			W:             row[2],
			H:             row[3],
			Objectness:    row[4],
			HasObjectness: true,
			ClassScores:   row[5:cols],
		})
	}
	return candidates, nil
}

// decodeTransposed reads [4+C, M] channel-first output, transposing to
// per-candidate form.
func decodeTransposed(data []float32, rows, cols int) ([]Candidate, error) {
	// Four box channels plus at least one class channel.
	if rows < 5 {
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape,
			"transposed layout needs at least 5 rows, got %d", rows)
	}

	numClasses := rows - 4
	candidates := make([]Candidate, 0, cols)
	for j := 0; j < cols; j++ {
		scores := make([]float32, numClasses)
		for k := 0; k < numClasses; k++ {
			scores[k] = data[(4+k)*cols+j]
		}
		candidates = append(candidates, Candidate{
			CX:          data[0*cols+j],
			CY:          data[1*cols+j],
			W:           data[2*cols+j],
			H:           data[3*cols+j],
			ClassScores: scores,
		})
	}
	return candidates, nil
}

// decodePreFiltered passes through [N, 6] rows of corner-form boxes that an
// upstream detection head already scored.
func decodePreFiltered(data []float32, rows, cols int) ([]Candidate, error) {
	if cols != 6 {
		return nil, errors.Wrapf(ErrUnrecognizedOutputShape,
			"prefiltered layout needs exactly 6 columns, got %d", cols)
	}

	candidates := make([]Candidate, 0, rows)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		classID := int(row[5])
		if classID < 0 {
			return nil, errors.Wrapf(ErrUnrecognizedOutputShape,
				"prefiltered row %d has negative class index %d", i, classID)
		}
		scores := make([]float32, classID+1)
		scores[classID] = row[4]
		candidates = append(candidates, Candidate{
			CX:          (row[0] + row[2]) / 2,
			CY:          (row[1] + row[3]) / 2,
			W:           row[2] - row[0],
			H:           row[3] - row[1],
			ClassScores: scores,
		})
	}
	return candidates, nil
}
