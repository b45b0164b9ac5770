// Package animation builds cross-fade GIFs between a source image and its
// stylized result.
package animation

import (
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Frame counts for each phase of the loop.
const (
	FadeFrames = 20
	HoldFrames = 20

	// TotalFrames is the length of one full loop.
	TotalFrames = 2*FadeFrames + 2*HoldFrames
)

// DefaultFrameDelay gives a two second fade and a two second hold.
const DefaultFrameDelay = 100 * time.Millisecond

// TimestampLayout names saved GIFs after the wall-clock time (HH_MM_SS).
const TimestampLayout = "15_04_05"

var (
	ErrNilImage     = errors.New("animation: nil image")
	ErrInvalidDelay = errors.New("animation: frame delay must be at least 10ms")
)

// now is replaced in tests.
var now = time.Now

// CommonSize returns the per-axis minimum of the two bounds.
func CommonSize(a, b image.Rectangle) (int, int) {
	return min(a.Dx(), b.Dx()), min(a.Dy(), b.Dy())
}

// Frames returns the TotalFrames RGBA frames of the loop: a fade from a to b,
// a hold on b, a fade from b back to a and a hold on a. When the images
// differ in size both are resized to CommonSize first.
func Frames(a, b image.Image) ([]*image.RGBA, error) {
	if a == nil || b == nil {
		return nil, ErrNilImage
	}

	w, h := CommonSize(a.Bounds(), b.Bounds())
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("animation: empty image %dx%d", w, h)
	}
	from := toRGBA(a, w, h)
	to := toRGBA(b, w, h)

	frames := make([]*image.RGBA, 0, TotalFrames)
	for i := 0; i < FadeFrames; i++ {
		frames = append(frames, blend(from, to, i, FadeFrames))
	}
	for i := 0; i < HoldFrames; i++ {
		frames = append(frames, to)
	}
	for i := 0; i < FadeFrames; i++ {
		frames = append(frames, blend(from, to, FadeFrames-i, FadeFrames))
	}
	for i := 0; i < HoldFrames; i++ {
		frames = append(frames, from)
	}
	return frames, nil
}

// CreateFadeGIF encodes the fade loop between a and b to w. The GIF loops
// forever and is quantized to the Plan 9 palette without dithering.
func CreateFadeGIF(a, b image.Image, w io.Writer, frameDelay time.Duration) error {
	if frameDelay < 10*time.Millisecond {
		return ErrInvalidDelay
	}

	frames, err := Frames(a, b)
	if err != nil {
		return err
	}

	delay := int(frameDelay / (10 * time.Millisecond))
	anim := &gif.GIF{LoopCount: 0}

	// hold frames share a pointer, so quantize each distinct frame once
	cache := make(map[*image.RGBA]*image.Paletted, len(frames))
	for _, f := range frames {
		p, ok := cache[f]
		if !ok {
			p = quantize(f)
			cache[f] = p
		}
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, delay)
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)
	}

	if err := gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("animation: encode gif: %w", err)
	}
	return nil
}

// SaveFadeGIF writes the fade loop to dir/HH_MM_SS.gif and returns the path.
// A GIF saved within the same second replaces the earlier one.
func SaveFadeGIF(dir string, original, generated image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("animation: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, now().Format(TimestampLayout)+".gif")
	tmp, err := os.CreateTemp(dir, ".fade-*.gif")
	if err != nil {
		return "", fmt.Errorf("animation: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := CreateFadeGIF(original, generated, tmp, DefaultFrameDelay); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("animation: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("animation: rename to %s: %w", path, err)
	}
	return path, nil
}

func toRGBA(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// blend returns a + (b-a)*num/den per channel.
func blend(a, b *image.RGBA, num, den int) *image.RGBA {
	switch num {
	case 0:
		return a
	case den:
		return b
	}
	out := image.NewRGBA(a.Rect)
	for i := range out.Pix {
		pa, pb := int(a.Pix[i]), int(b.Pix[i])
		out.Pix[i] = uint8(pa + (pb-pa)*num/den)
	}
	return out
}

func quantize(img *image.RGBA) *image.Paletted {
	p := image.NewPaletted(img.Bounds(), palette.Plan9)
	draw.Draw(p, p.Rect, img, img.Rect.Min, draw.Src)
	return p
}
