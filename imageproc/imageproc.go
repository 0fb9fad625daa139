// Package imageproc decodes and normalizes uploaded images for the
// detection backends: orientation correction, RGB conversion with a
// white background, and bounded high-quality downscaling.
package imageproc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is the encode quality for vision payloads and previews.
const JPEGQuality = 85

// Normalized is a decoded, orientation-corrected RGB bitmap ready for
// a backend, plus the measurements needed to map coordinates back.
type Normalized struct {
	// Image is the RGB bitmap, downscaled when the original exceeded
	// the limit. Alpha has been composited onto white.
	Image *image.RGBA

	// OrigWidth and OrigHeight are the pre-resize dimensions, after
	// orientation correction.
	OrigWidth  int
	OrigHeight int

	// Scale is the downscale factor that was applied (1.0 when the
	// image fit within the limit).
	Scale float64
}

// Normalize decodes arbitrary upload bytes (JPEG, PNG, GIF, WebP or
// HEIC), applies EXIF orientation, composites transparency onto an
// opaque white background and downscales so that the longer side does
// not exceed maxDim. Returns an error when the bytes cannot be decoded.
func Normalize(data []byte, maxDim int) (*Normalized, error) {
	img, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if orientation := Orientation(data); orientation != 1 {
		img = applyOrientation(img, orientation)
	}

	rgb := flattenOntoWhite(img)
	origW := rgb.Bounds().Dx()
	origH := rgb.Bounds().Dy()

	scale := 1.0
	if maxDim > 0 && max(origW, origH) > maxDim {
		var newW, newH int
		if origW >= origH {
			newW = maxDim
			newH = roundDim(float64(origH) * float64(maxDim) / float64(origW))
			scale = float64(maxDim) / float64(origW)
		} else {
			newH = maxDim
			newW = roundDim(float64(origW) * float64(maxDim) / float64(origH))
			scale = float64(maxDim) / float64(origH)
		}
		resized := image.NewRGBA(image.Rect(0, 0, newW, newH))
		xdraw.CatmullRom.Scale(resized, resized.Bounds(), rgb, rgb.Bounds(), xdraw.Src, nil)
		rgb = resized
	}

	return &Normalized{
		Image:      rgb,
		OrigWidth:  origW,
		OrigHeight: origH,
		Scale:      scale,
	}, nil
}

// EncodeJPEG encodes the bitmap as a JPEG at the package quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeBase64JPEG encodes the bitmap as a base64 JPEG payload for the
// vision API and the response preview.
func EncodeBase64JPEG(img image.Image) (string, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decode(data []byte) (image.Image, error) {
	if isHEIC(data) {
		return goheif.Decode(bytes.NewReader(data))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// isHEIC sniffs the ISO BMFF ftyp box for HEIF brands.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}

// Orientation extracts the EXIF orientation tag, defaulting to 1 when
// there is no EXIF data or the tag cannot be read.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	value, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return value
}

// applyOrientation bakes the EXIF orientation into the pixels so that
// downstream coordinates are always in display space.
func applyOrientation(img image.Image, orientation int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	var out *image.RGBA
	set := func(x, y int, c color.Color) { out.Set(x, y, c) }

	switch orientation {
	case 2: // mirrored horizontally
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		eachPixel(img, func(x, y int, c color.Color) { set(w-1-x, y, c) })
	case 3: // rotated 180
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		eachPixel(img, func(x, y int, c color.Color) { set(w-1-x, h-1-y, c) })
	case 4: // mirrored vertically
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		eachPixel(img, func(x, y int, c color.Color) { set(x, h-1-y, c) })
	case 5: // mirrored then rotated 270 CW
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		eachPixel(img, func(x, y int, c color.Color) { set(y, x, c) })
	case 6: // rotated 90 CW
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		eachPixel(img, func(x, y int, c color.Color) { set(h-1-y, x, c) })
	case 7: // mirrored then rotated 90 CW
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		eachPixel(img, func(x, y int, c color.Color) { set(h-1-y, w-1-x, c) })
	case 8: // rotated 270 CW
		out = image.NewRGBA(image.Rect(0, 0, h, w))
		eachPixel(img, func(x, y int, c color.Color) { set(y, w-1-x, c) })
	default:
		return img
	}
	return out
}

func eachPixel(img image.Image, fn func(x, y int, c color.Color)) {
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			fn(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
}

// flattenOntoWhite composites the image onto an opaque white canvas
// and returns it in RGBA form. Models downstream require RGB with no
// transparent regions.
func flattenOntoWhite(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}

func roundDim(v float64) int {
	n := int(v + 0.5)
	if n < 1 {
		return 1
	}
	return n
}
