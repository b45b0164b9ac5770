package conditioning

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Conditioning is the edge image handed to the base pass.
type Conditioning struct {
	Image        *Buffer
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// RGBA returns the conditioning buffer as an image.Image.
func (c *Conditioning) RGBA() (image.Image, error) {
	return c.Image.Image()
}

// EncodePNG encodes the conditioning image as PNG.
func (c *Conditioning) EncodePNG() ([]byte, error) {
	img, err := c.RGBA()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("conditioning: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Prepare decodes raw image bytes and runs the full conditioning pre-pass.
func Prepare(data []byte, low, high int) (*Conditioning, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return PrepareImage(img, low, high)
}

// PrepareImage runs the conditioning pre-pass on an already decoded image:
// area-preserving resize, grayscale, blur, Canny, blur, 3-channel expansion.
func PrepareImage(img image.Image, low, high int) (*Conditioning, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	low, high, err := NormalizeThresholds(low, high)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	tw, th, err := TargetDimensions(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	resized, err := Resize(img, tw, th)
	if err != nil {
		return nil, err
	}

	gray := Grayscale(resized)

	blurred, err := GaussianBlur5(gray)
	if err != nil {
		return nil, fmt.Errorf("pre-blur: %w", err)
	}

	edges, err := Canny(blurred, low, high)
	if err != nil {
		return nil, fmt.Errorf("edge detection: %w", err)
	}

	softened, err := GaussianBlur5(edges)
	if err != nil {
		return nil, fmt.Errorf("post-blur: %w", err)
	}

	out, err := HWC3(softened)
	if err != nil {
		return nil, err
	}

	return &Conditioning{
		Image:        out,
		Width:        tw,
		Height:       th,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}, nil
}
