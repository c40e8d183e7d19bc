// Package imageops decodes, transforms and re-encodes uploaded images.
package imageops

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupported is returned for images that cannot be decoded.
var ErrUnsupported = errors.New("unsupported image")

var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

var encodable = map[string]imaging.Format{
	"jpeg": imaging.JPEG,
	"png":  imaging.PNG,
	"gif":  imaging.GIF,
	"bmp":  imaging.BMP,
	"tiff": imaging.TIFF,
}

var extensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"tiff": ".tif",
	"webp": ".webp",
}

// MIME returns the content type of a decoder format name, e.g. "jpeg".
func MIME(format string) string {
	if m, ok := mimeTypes[format]; ok {
		return m
	}
	return "application/octet-stream"
}

// Decode reads an image and reports its format name.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return img, format, nil
}

// DecodeConfig reads only the header of an image.
func DecodeConfig(r io.Reader) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return cfg, format, nil
}

// Encoded is an image serialised back into bytes.
type Encoded struct {
	Data        []byte
	Format      string
	ContentType string
}

// Encode writes img in format. Formats without an encoder (webp) fall back to PNG.
func Encode(img image.Image, format string, quality int) (Encoded, error) {
	target, ok := encodable[format]
	if !ok {
		format, target = "png", imaging.PNG
	}

	var opts []imaging.EncodeOption
	if target == imaging.JPEG {
		if quality <= 0 {
			quality = 95
		}
		opts = append(opts, imaging.JPEGQuality(quality))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, target, opts...); err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", format, err)
	}
	return Encoded{Data: buf.Bytes(), Format: format, ContentType: MIME(format)}, nil
}

// RenameForFormat swaps the extension of name when it does not match format.
func RenameForFormat(name, format string) string {
	ext, ok := extensions[format]
	if !ok {
		return name
	}
	current := strings.ToLower(path.Ext(name))
	if current == ext || (format == "jpeg" && current == ".jpeg") || (format == "tiff" && current == ".tiff") {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}

// Rotate turns img clockwise by degrees, growing the canvas to fit.
func Rotate(img image.Image, degrees int) image.Image {
	degrees %= 360
	if degrees < 0 {
		degrees += 360
	}
	switch degrees {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return imaging.Rotate(img, float64(-degrees), color.Transparent)
}
