package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// PadFill is the letterbox padding value, one byte per channel. YOLO-family
// models are trained with 114-gray padding, so inference must reproduce it
// exactly.
const PadFill = 114

// Letterbox scales img onto a square canvas while preserving aspect ratio,
// filling the remainder with PadFill gray. The returned plan is the transform
// that was applied; feed it to the coordinate remapping stage so detections
// land back in original-frame pixels.
func Letterbox(img image.Image, canvasSize int) (*image.RGBA, LetterboxPlan, error) {
	bounds := img.Bounds()
	plan, err := ComputePlan(bounds.Dy(), bounds.Dx(), canvasSize)
	if err != nil {
		return nil, LetterboxPlan{}, err
	}

	scaledH, scaledW := plan.ScaledSize(bounds.Dy(), bounds.Dx())
	scaled := resize.Resize(uint(scaledW), uint(scaledH), img, resize.Bilinear)

	canvas := image.NewRGBA(image.Rect(0, 0, canvasSize, canvasSize))
	fill := color.RGBA{PadFill, PadFill, PadFill, 255}
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{fill}, image.Point{}, draw.Src)
	draw.Draw(canvas,
		image.Rect(plan.PadX, plan.PadY, plan.PadX+scaledW, plan.PadY+scaledH),
		scaled, image.Point{}, draw.Src)

	return canvas, plan, nil
}

// LetterboxToCHW letterboxes img and converts the canvas to a CHW float32
// tensor normalized to [0, 1], the input layout YOLO ONNX exports expect.
//
// Returns:
//   - []float32: Tensor data of length 3*canvasSize*canvasSize.
//   - LetterboxPlan: The transform applied during letterboxing.
//   - error: ErrInvalidGeometry on degenerate dimensions.
func LetterboxToCHW(img image.Image, canvasSize int) ([]float32, LetterboxPlan, error) {
	canvas, plan, err := Letterbox(img, canvasSize)
	if err != nil {
		return nil, LetterboxPlan{}, err
	}

	channelSize := canvasSize * canvasSize
	data := make([]float32, 3*channelSize)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < canvasSize; y++ {
		for x := 0; x < canvasSize; x++ {
			r, g, b, _ := canvas.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return data, plan, nil
}
