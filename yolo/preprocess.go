package yolo

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

const (
	// InputSize is the fixed square side of the model input.
	InputSize = 640

	// padValue is the constant letterbox border, the conventional
	// YOLO gray.
	padValue = 114
)

// Letterbox records how an image was fitted into the model input, so
// that detections can be mapped back afterwards.
type Letterbox struct {
	// Scale is the factor applied to the source image.
	Scale float64
	// PadX and PadY are the left/top border widths in model pixels.
	PadX float64
	PadY float64
}

// LetterboxImage fits src into the InputSize square preserving aspect
// ratio, pads the border with the constant gray value and returns the
// normalized CHW float32 tensor data plus the applied transform.
func LetterboxImage(src *image.RGBA) ([]float32, Letterbox) {
	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()

	scale := float64(InputSize) / float64(srcW)
	if s := float64(InputSize) / float64(srcH); s < scale {
		scale = s
	}
	newW := int(float64(srcW)*scale + 0.5)
	newH := int(float64(srcH)*scale + 0.5)
	if newW > InputSize {
		newW = InputSize
	}
	if newH > InputSize {
		newH = InputSize
	}
	padX := (InputSize - newW) / 2
	padY := (InputSize - newH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	gray := color.RGBA{padValue, padValue, padValue, 255}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(gray), image.Point{}, draw.Src)

	target := image.Rect(padX, padY, padX+newW, padY+newH)
	xdraw.ApproxBiLinear.Scale(canvas, target, src, src.Bounds(), xdraw.Src, nil)

	// HWC uint8 -> CHW float32 in [0,1].
	input := make([]float32, 3*InputSize*InputSize)
	stride := InputSize * InputSize
	idx := 0
	for y := 0; y < InputSize; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < InputSize; x++ {
			px := row[x*4:]
			input[idx] = float32(px[0]) / 255.0
			input[idx+stride] = float32(px[1]) / 255.0
			input[idx+2*stride] = float32(px[2]) / 255.0
			idx++
		}
	}

	return input, Letterbox{
		Scale: scale,
		PadX:  float64(padX),
		PadY:  float64(padY),
	}
}
