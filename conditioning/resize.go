package conditioning

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// TargetSide is the side of the square whose area the conditioning image
// matches (SDXL's native 1024x1024 budget).
const TargetSide = 1024

// TargetDimensions scales (width, height) so that the product is close to
// TargetSide² while keeping the aspect ratio. Each side is truncated.
func TargetDimensions(width, height int) (int, int, error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	diag := math.Sqrt(float64(width) * float64(height))
	w := int(float64(width*TargetSide) / diag)
	h := int(float64(height*TargetSide) / diag)

	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h, nil
}

// Flatten draws img over an opaque white canvas and returns the result
// anchored at the origin.
func Flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}

// Resize flattens img and scales it to width x height with bilinear
// interpolation.
func Resize(img image.Image, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	src := Flatten(img)
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// Grayscale converts an RGBA image to a 1-channel buffer using the BT.601
// luma weights in 14-bit fixed point.
func Grayscale(img *image.RGBA) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := &Buffer{Width: w, Height: h, Channels: 1, Pix: make([]uint8, w*h)}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			r := uint32(row[x*4])
			g := uint32(row[x*4+1])
			b := uint32(row[x*4+2])
			out.Pix[y*w+x] = uint8((r*4899 + g*9617 + b*1868 + 8192) >> 14)
		}
	}
	return out
}
