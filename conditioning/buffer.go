// Package conditioning builds the edge-map conditioning image that steers the
// base diffusion pass toward the geometry of the uploaded picture.
//
// Every stage works on 8-bit interleaved buffers with integer arithmetic, so
// the same input bytes and thresholds always produce the same output bytes.
package conditioning

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// Conditioning errors
var (
	ErrEmptyImage          = errors.New("conditioning: empty image data")
	ErrInvalidImage        = errors.New("conditioning: invalid image data")
	ErrInvalidDimensions   = errors.New("conditioning: invalid dimensions")
	ErrUnsupportedChannels = errors.New("conditioning: unsupported channel count")
	ErrInvalidThresholds   = errors.New("conditioning: invalid edge thresholds")
)

// Buffer is an interleaved 8-bit pixel buffer (height x width x channels).
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, channels)
	}
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

func (b *Buffer) stride() int {
	return b.Width * b.Channels
}

// At returns the value of channel c at (x, y).
func (b *Buffer) At(x, y, c int) uint8 {
	return b.Pix[y*b.stride()+x*b.Channels+c]
}

// Set writes the value of channel c at (x, y).
func (b *Buffer) Set(x, y, c int, v uint8) {
	b.Pix[y*b.stride()+x*b.Channels+c] = v
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: pix}
}

// Image converts the buffer to a standard library image.
// 1 channel becomes *image.Gray, 3 channels *image.RGBA with opaque alpha,
// 4 channels *image.NRGBA.
func (b *Buffer) Image() (image.Image, error) {
	rect := image.Rect(0, 0, b.Width, b.Height)
	switch b.Channels {
	case 1:
		img := image.NewGray(rect)
		for y := 0; y < b.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+b.Width], b.Pix[y*b.stride():(y+1)*b.stride()])
		}
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for y := 0; y < b.Height; y++ {
			for x := 0; x < b.Width; x++ {
				src := y*b.stride() + x*3
				dst := y*img.Stride + x*4
				img.Pix[dst] = b.Pix[src]
				img.Pix[dst+1] = b.Pix[src+1]
				img.Pix[dst+2] = b.Pix[src+2]
				img.Pix[dst+3] = 0xff
			}
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		for y := 0; y < b.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+b.Width*4], b.Pix[y*b.stride():(y+1)*b.stride()])
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, b.Channels)
	}
}

// FromGray copies a grayscale image into a 1-channel buffer.
func FromGray(img *image.Gray) *Buffer {
	bounds := img.Bounds()
	buf := &Buffer{Width: bounds.Dx(), Height: bounds.Dy(), Channels: 1}
	buf.Pix = make([]uint8, buf.Width*buf.Height)
	for y := 0; y < buf.Height; y++ {
		row := img.Pix[(y)*img.Stride : (y)*img.Stride+buf.Width]
		copy(buf.Pix[y*buf.Width:], row)
	}
	return buf
}

// FromNRGBA copies a non-premultiplied RGBA image into a 4-channel buffer.
func FromNRGBA(img *image.NRGBA) *Buffer {
	bounds := img.Bounds()
	buf := &Buffer{Width: bounds.Dx(), Height: bounds.Dy(), Channels: 4}
	buf.Pix = make([]uint8, buf.Width*buf.Height*4)
	for y := 0; y < buf.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+buf.Width*4]
		copy(buf.Pix[y*buf.Width*4:], row)
	}
	return buf
}

// HWC3 normalises a buffer to exactly three channels.
//
//   - 1 channel: the value is replicated into R, G and B
//   - 3 channels: returned unchanged (same buffer)
//   - 4 channels: composited over a white background, alpha dropped
func HWC3(b *Buffer) (*Buffer, error) {
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		return nil, ErrInvalidDimensions
	}

	switch b.Channels {
	case 3:
		return b, nil
	case 1:
		out := &Buffer{Width: b.Width, Height: b.Height, Channels: 3, Pix: make([]uint8, b.Width*b.Height*3)}
		for i, v := range b.Pix {
			out.Pix[i*3] = v
			out.Pix[i*3+1] = v
			out.Pix[i*3+2] = v
		}
		return out, nil
	case 4:
		out := &Buffer{Width: b.Width, Height: b.Height, Channels: 3, Pix: make([]uint8, b.Width*b.Height*3)}
		n := b.Width * b.Height
		for i := 0; i < n; i++ {
			a := uint32(b.Pix[i*4+3])
			for c := 0; c < 3; c++ {
				v := uint32(b.Pix[i*4+c])
				out.Pix[i*3+c] = uint8((v*a + 255*(255-a)) / 255)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChannels, b.Channels)
	}
}

// white is the background used when flattening transparent sources.
var white = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
