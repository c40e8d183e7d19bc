package thumbnail

import (
	"bytes"
	"context"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gallerywidget/internal/imageops"
	"github.com/gallerywidget/internal/logger"
	"github.com/gallerywidget/internal/storage"
)

func seedImage(t *testing.T, files storage.Storage, name string) string {
	t.Helper()

	enc, err := imageops.Encode(imaging.New(300, 200, color.NRGBA{G: 200, A: 255}), "png", 0)
	if err != nil {
		t.Fatalf("failed to encode seed image: %v", err)
	}
	stored, err := files.Save(context.Background(), name, bytes.NewReader(enc.Data), enc.ContentType)
	if err != nil {
		t.Fatalf("failed to store seed image: %v", err)
	}
	return stored
}

func TestGeneratorRendersSquareThumbnailOnce(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewFileSystem(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	source := seedImage(t, files, "images/source.png")

	kv := NewMemoryStore()
	gen := NewGenerator(files, kv, WithQuality(80), WithLogger(logger.Discard()))

	first, err := gen.Get(ctx, source, 60)
	if err != nil {
		t.Fatalf("failed to render thumbnail: %v", err)
	}
	if first.URL != "/media/"+first.Name {
		t.Fatalf("unexpected thumbnail url %s", first.URL)
	}

	rc, err := files.Open(ctx, first.Name)
	if err != nil {
		t.Fatalf("thumbnail was not stored: %v", err)
	}
	img, format, err := imageops.Decode(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("failed to decode thumbnail: %v", err)
	}
	if format != "jpeg" || img.Bounds().Dx() != 60 || img.Bounds().Dy() != 60 {
		t.Fatalf("expected 60x60 jpeg, got %s %v", format, img.Bounds())
	}

	second, err := gen.Get(ctx, source, 60)
	if err != nil {
		t.Fatalf("failed to fetch cached thumbnail: %v", err)
	}
	if second.Name != first.Name {
		t.Fatalf("expected cached thumbnail %s, got %s", first.Name, second.Name)
	}

	if err := gen.Invalidate(ctx, source, 60); err != nil {
		t.Fatalf("failed to invalidate: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, gen.Key(source, 60)); ok {
		t.Fatalf("expected cache entry to be removed")
	}
}

func TestGeneratorMissingSource(t *testing.T) {
	files, err := storage.NewFileSystem(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	gen := NewGenerator(files, nil, WithLogger(logger.Discard()))

	if _, err := gen.Get(context.Background(), "images/missing.png", 0); err == nil {
		t.Fatalf("expected an error for a missing source")
	}
}
