// Package storage stores uploaded image files behind a small interface with a
// local filesystem backend and an S3 backend.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("storage: file not found")

// Storage persists files by name. Save never overwrites an existing file: when the
// requested name is taken a free one is derived and returned.
type Storage interface {
	Save(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	Size(ctx context.Context, name string) (int64, error)
	Exists(ctx context.Context, name string) (bool, error)
	URL(name string) string
}

// CleanName normalises a client supplied name into a relative slash separated path.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

// availableName derives a free name for name, asking exists for every candidate.
func availableName(ctx context.Context, name string, exists func(context.Context, string) (bool, error)) (string, error) {
	name = CleanName(name)
	dir, file := path.Split(name)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if stem == "" {
		stem = "image"
	}

	candidate := path.Join(dir, stem+ext)
	for {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
		candidate = path.Join(dir, stem+"_"+suffix+ext)
	}
}

func joinURL(base, name string) string {
	base = strings.TrimRight(base, "/")
	return base + "/" + strings.TrimLeft(name, "/")
}
