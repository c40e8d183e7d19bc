package imageops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrCropFormat is returned when cropped_result is not usable.
var ErrCropFormat = errors.New("wrong format of crop_result data")

// CropResult is the state reported by the cropper widget. Rotate is in degrees,
// clockwise. ScaleX and ScaleY are accepted but not applied.
type CropResult struct {
	X      int
	Y      int
	Width  int
	Height int
	Rotate int
	ScaleX *float64
	ScaleY *float64
}

// ParseCropResult decodes the JSON object posted by the cropper. Numbers may be sent
// as JSON numbers or numeric strings and are truncated towards zero.
func ParseCropResult(raw []byte) (CropResult, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return CropResult{}, fmt.Errorf("%w: %v", ErrCropFormat, err)
	}

	var result CropResult
	required := []struct {
		key string
		dst *int
	}{
		{"x", &result.X},
		{"y", &result.Y},
		{"width", &result.Width},
		{"height", &result.Height},
		{"rotate", &result.Rotate},
	}
	for _, item := range required {
		value, ok := payload[item.key]
		if !ok {
			return CropResult{}, fmt.Errorf("%w: missing %s", ErrCropFormat, item.key)
		}
		f, err := parseNumber(value)
		if err != nil {
			return CropResult{}, fmt.Errorf("%w: %s: %v", ErrCropFormat, item.key, err)
		}
		*item.dst = int(f)
	}
	if result.Width <= 0 || result.Height <= 0 {
		return CropResult{}, fmt.Errorf("%w: empty crop box %dx%d", ErrCropFormat, result.Width, result.Height)
	}

	for key, dst := range map[string]**float64{"scaleX": &result.ScaleX, "scaleY": &result.ScaleY} {
		value, ok := payload[key]
		if !ok {
			continue
		}
		f, err := parseNumber(value)
		if err != nil {
			return CropResult{}, fmt.Errorf("%w: %s: %v", ErrCropFormat, key, err)
		}
		*dst = &f
	}

	return result, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	var s string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	} else {
		s = string(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%s is out of range", s)
	}
	return f, nil
}

// Apply rotates img and then cuts the (x, y, x+width, y+height) box out of it.
// The result is always width x height; parts of the box outside the image stay transparent.
func Apply(img image.Image, crop CropResult) image.Image {
	if crop.Rotate != 0 {
		img = Rotate(img, crop.Rotate)
	}
	box := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height)
	canvas := imaging.New(box.Dx(), box.Dy(), color.Transparent)

	visible := box.Intersect(img.Bounds())
	if visible.Empty() {
		return canvas
	}
	offset := visible.Min.Sub(box.Min)
	return imaging.Paste(canvas, imaging.Crop(img, visible), offset)
}
