package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystem stores files below Root and serves them from BaseURL.
type FileSystem struct {
	Root    string
	BaseURL string
}

// NewFileSystem creates the root directory if needed.
func NewFileSystem(root, baseURL string) (*FileSystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileSystem{Root: root, BaseURL: baseURL}, nil
}

func (fs *FileSystem) path(name string) string {
	return filepath.Join(fs.Root, filepath.FromSlash(CleanName(name)))
}

// Save writes r to a free name derived from name.
func (fs *FileSystem) Save(ctx context.Context, name string, r io.Reader, _ string) (string, error) {
	stored, err := availableName(ctx, name, fs.Exists)
	if err != nil {
		return "", err
	}

	full := fs.path(stored)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	// O_EXCL guards against a concurrent writer grabbing the same name.
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fs.Save(ctx, name, r, "")
		}
		return "", err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write %s: %w", stored, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return stored, nil
}

func (fs *FileSystem) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(fs.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (fs *FileSystem) Delete(_ context.Context, name string) error {
	if err := os.Remove(fs.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func (fs *FileSystem) Size(_ context.Context, name string) (int64, error) {
	info, err := os.Stat(fs.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

func (fs *FileSystem) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(fs.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (fs *FileSystem) URL(name string) string {
	return joinURL(fs.BaseURL, CleanName(name))
}
