// Package thumbnail renders square preview images for stored uploads and caches
// the generated file names in a key-value store.
package thumbnail

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/disintegration/imaging"
	"github.com/gallerywidget/internal/imageops"
	"github.com/gallerywidget/internal/storage"
)

const (
	DefaultSize    = 138
	DefaultQuality = 95
	defaultPrefix  = "cache/thumbs"
)

// Thumbnail is a generated preview.
type Thumbnail struct {
	Name string
	URL  string
	Size int
}

// Generator builds center cropped NxN JPEG thumbnails.
type Generator struct {
	files   storage.Storage
	kv      KVStore
	quality int
	prefix  string
	log     *slog.Logger
}

// Option customises a Generator.
type Option func(*Generator)

func WithQuality(q int) Option {
	return func(g *Generator) {
		if q > 0 && q <= 100 {
			g.quality = q
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// NewGenerator stores thumbnails in files and remembers them in kv.
func NewGenerator(files storage.Storage, kv KVStore, opts ...Option) *Generator {
	if kv == nil {
		kv = NewMemoryStore()
	}
	g := &Generator{
		files:   files,
		kv:      kv,
		quality: DefaultQuality,
		prefix:  defaultPrefix,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key identifies the thumbnail of source at size with the generator's options.
func (g *Generator) Key(source string, size int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%dx%d|crop=center|q=%d", source, size, size, g.quality)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached thumbnail or renders a new one.
func (g *Generator) Get(ctx context.Context, source string, size int) (Thumbnail, error) {
	if size <= 0 {
		size = DefaultSize
	}
	key := g.Key(source, size)

	if name, ok, err := g.kv.Get(ctx, key); err == nil && ok {
		exists, err := g.files.Exists(ctx, name)
		if err == nil && exists {
			return Thumbnail{Name: name, URL: g.files.URL(name), Size: size}, nil
		}
	} else if err != nil {
		g.log.Warn("thumbnail cache lookup failed", "key", key, "error", err)
	}

	name, err := g.render(ctx, source, size, key)
	if err != nil {
		return Thumbnail{}, err
	}
	if err := g.kv.Set(ctx, key, name); err != nil {
		g.log.Warn("thumbnail cache store failed", "key", key, "error", err)
	}
	return Thumbnail{Name: name, URL: g.files.URL(name), Size: size}, nil
}

// Invalidate forgets (and removes) the thumbnail of source at size.
func (g *Generator) Invalidate(ctx context.Context, source string, size int) error {
	key := g.Key(source, size)
	name, ok, err := g.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		if err := g.files.Delete(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return g.kv.Delete(ctx, key)
}

func (g *Generator) render(ctx context.Context, source string, size int, key string) (string, error) {
	rc, err := g.files.Open(ctx, source)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", source, err)
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", source, err)
	}

	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
	enc, err := imageops.Encode(thumb, "jpeg", g.quality)
	if err != nil {
		return "", err
	}

	name := path.Join(g.prefix, key[:2], key[2:4], key+".jpg")
	return g.files.Save(ctx, name, bytes.NewReader(enc.Data), enc.ContentType)
}
