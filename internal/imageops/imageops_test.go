package imageops

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func TestParseCropResult(t *testing.T) {
	raw := []byte(`{"x": "10.7", "y": 5, "width": 100.2, "height": "50", "rotate": -90, "scaleX": 1}`)
	got, err := ParseCropResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.X != 10 || got.Y != 5 || got.Width != 100 || got.Height != 50 || got.Rotate != -90 {
		t.Fatalf("unexpected crop result %+v", got)
	}
	if got.ScaleX == nil || *got.ScaleX != 1 {
		t.Fatalf("expected scaleX to be parsed")
	}
	if got.ScaleY != nil {
		t.Fatalf("expected scaleY to stay nil")
	}
}

func TestParseCropResultRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"missing rotate":  `{"x":0,"y":0,"width":1,"height":1}`,
		"bad number":      `{"x":"a","y":0,"width":1,"height":1,"rotate":0}`,
		"bad scale":       `{"x":0,"y":0,"width":1,"height":1,"rotate":0,"scaleY":"?"}`,
		"list":            `[1,2,3]`,
		"nan":             `{"x":"NaN","y":0,"width":10,"height":10,"rotate":0}`,
		"infinity":        `{"x":0,"y":"Infinity","width":10,"height":10,"rotate":0}`,
		"negative inf":    `{"x":0,"y":0,"width":10,"height":10,"rotate":"-Inf"}`,
		"too large":       `{"x":1e300,"y":0,"width":10,"height":10,"rotate":0}`,
		"zero width":      `{"x":0,"y":0,"width":0,"height":10,"rotate":0}`,
		"negative height": `{"x":0,"y":0,"width":10,"height":"-3","rotate":0}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCropResult([]byte(raw)); !errors.Is(err, ErrCropFormat) {
				t.Fatalf("expected ErrCropFormat, got %v", err)
			}
		})
	}
}

func TestApplyRotatesClockwiseThenCrops(t *testing.T) {
	// 200x120 with a red top-left pixel; after a 90 degree clockwise turn the
	// canvas is 120x200 and that pixel lands in the top-right corner.
	src := imaging.New(200, 120, color.White)
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})

	rotated := Rotate(src, 90)
	if b := rotated.Bounds(); b.Dx() != 120 || b.Dy() != 200 {
		t.Fatalf("expected expanded canvas 120x200, got %dx%d", b.Dx(), b.Dy())
	}
	r, g, _, _ := rotated.At(119, 0).RGBA()
	if r>>8 != 255 || g>>8 != 0 {
		t.Fatalf("expected red pixel in the top-right corner after rotation")
	}

	out := Apply(src, CropResult{X: 0, Y: 0, Width: 100, Height: 50, Rotate: 90})
	if b := out.Bounds(); b.Dx() != 100 || b.Dy() != 50 {
		t.Fatalf("expected 100x50 crop, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestApplyPadsBoxOutsideImage(t *testing.T) {
	src := imaging.New(20, 20, color.White)

	partial := Apply(src, CropResult{X: 10, Y: -5, Width: 20, Height: 10})
	if b := partial.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Fatalf("expected 20x10 crop, got %dx%d", b.Dx(), b.Dy())
	}
	if _, _, _, a := partial.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("expected padding above the image to be transparent")
	}
	if r, _, _, a := partial.At(5, 7).RGBA(); a>>8 != 255 || r>>8 != 255 {
		t.Fatalf("expected image pixels inside the box")
	}
	if _, _, _, a := partial.At(15, 7).RGBA(); a != 0 {
		t.Fatalf("expected padding right of the image to be transparent")
	}

	outside := Apply(src, CropResult{X: 50, Y: 50, Width: 10, Height: 10})
	if b := outside.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Fatalf("expected 10x10 crop, got %dx%d", b.Dx(), b.Dy())
	}
	if _, err := Encode(outside, "png", 0); err != nil {
		t.Fatalf("expected a box outside the image to encode, got %v", err)
	}
}

func TestEncodeFallsBackToPNG(t *testing.T) {
	img := imaging.New(4, 4, color.Black)

	enc, err := Encode(img, "webp", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.Format != "png" || enc.ContentType != "image/png" {
		t.Fatalf("expected png fallback, got %s (%s)", enc.Format, enc.ContentType)
	}

	_, format, err := Decode(bytes.NewReader(enc.Data))
	if err != nil || format != "png" {
		t.Fatalf("expected encoded bytes to decode as png, got %q (%v)", format, err)
	}

	jpg, err := Encode(img, "jpeg", 80)
	if err != nil || jpg.ContentType != "image/jpeg" {
		t.Fatalf("expected jpeg encoding, got %+v (%v)", jpg.ContentType, err)
	}
}

func TestRenameForFormat(t *testing.T) {
	cases := []struct {
		name, format, want string
	}{
		{"a/b.webp", "png", "a/b.png"},
		{"a/b.jpeg", "jpeg", "a/b.jpeg"},
		{"b.JPG", "jpeg", "b.JPG"},
		{"b.png", "unknown", "b.png"},
	}
	for _, tc := range cases {
		if got := RenameForFormat(tc.name, tc.format); got != tc.want {
			t.Fatalf("RenameForFormat(%q, %q) = %q, want %q", tc.name, tc.format, got, tc.want)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode(bytes.NewReader([]byte("definitely not an image"))); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, _, err := DecodeConfig(bytes.NewReader(nil)); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for empty input, got %v", err)
	}
}
