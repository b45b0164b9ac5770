package sdruntime

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	return img
}

func TestIsPNG_ValidPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(10, 10)); err != nil {
		t.Fatalf("encode: %v", err)
	}

	if !IsPNG(buf.Bytes()) {
		t.Error("expected IsPNG to return true for valid PNG")
	}
}

func TestIsPNG_InvalidData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", []byte{0x89, 0x50}},
		{"wrong magic", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"jpeg magic", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsPNG(tt.data) {
				t.Errorf("expected IsPNG to return false for %s", tt.name)
			}
		})
	}
}

func TestEncodeDecodePNG(t *testing.T) {
	src := testImage(12, 8)
	data, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}

	img, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG() error = %v", err)
	}
	if img.Bounds().Dx() != 12 || img.Bounds().Dy() != 8 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
}

func TestDecodePNG_Errors(t *testing.T) {
	if _, err := DecodePNG(nil); !errors.Is(err, ErrImageEmpty) {
		t.Errorf("expected ErrImageEmpty, got %v", err)
	}
	if _, err := DecodePNG([]byte("GIF89a......")); !errors.Is(err, ErrImageNotPNG) {
		t.Errorf("expected ErrImageNotPNG, got %v", err)
	}
	truncated := append([]byte(nil), pngMagic...)
	truncated = append(truncated, 0, 0, 0)
	if _, err := DecodePNG(truncated); !errors.Is(err, ErrImageDecodeFail) {
		t.Errorf("expected ErrImageDecodeFail, got %v", err)
	}
}

func TestEncodePNG_Nil(t *testing.T) {
	if _, err := EncodePNG(nil); !errors.Is(err, ErrImageEmpty) {
		t.Errorf("expected ErrImageEmpty, got %v", err)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	s, err := encodeImageBase64(testImage(4, 4))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := decodeImageBase64(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("unexpected width %d", img.Bounds().Dx())
	}

	if _, err := decodeImageBase64("%%%"); !errors.Is(err, ErrImageDecodeFail) {
		t.Errorf("expected ErrImageDecodeFail for bad base64, got %v", err)
	}
}

func TestResizeImage(t *testing.T) {
	src := testImage(40, 20)

	out, err := ResizeImage(src, 20, 10)
	if err != nil {
		t.Fatalf("ResizeImage() error = %v", err)
	}
	if out.Bounds().Dx() != 20 || out.Bounds().Dy() != 10 {
		t.Errorf("unexpected bounds %v", out.Bounds())
	}

	same, err := ResizeImage(src, 40, 20)
	if err != nil {
		t.Fatalf("ResizeImage() error = %v", err)
	}
	if same != image.Image(src) {
		t.Error("same-size resize should return the source image")
	}

	if _, err := ResizeImage(src, 0, 10); !errors.Is(err, ErrImageInvalidSize) {
		t.Errorf("expected ErrImageInvalidSize, got %v", err)
	}
}
