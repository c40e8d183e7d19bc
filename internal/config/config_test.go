package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdir moves the test into an empty directory so no stray .env is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to read working dir: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.StorageBackend != StorageLocal || cfg.UploadURLPath != "/static/uploads" {
		t.Fatalf("unexpected storage defaults %+v", cfg)
	}
	if cfg.ThumbnailSize != 138 || cfg.ThumbnailQuality != 95 {
		t.Fatalf("unexpected thumbnail defaults %d %d", cfg.ThumbnailSize, cfg.ThumbnailQuality)
	}
	if cfg.DefaultTargetImageModel != "gallery.BuiltInGalleryImage" {
		t.Fatalf("unexpected default model %q", cfg.DefaultTargetImageModel)
	}
}

func TestLoadReadsEnvironmentAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("THUMBNAIL_SIZE=64\nPORT=9000\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "photos")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.ThumbnailSize != 64 {
		t.Fatalf("expected .env value, got %d", cfg.ThumbnailSize)
	}
	if cfg.StorageBackend != StorageS3 || cfg.S3Bucket != "photos" {
		t.Fatalf("unexpected storage config %+v", cfg)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Fatalf("expected explicit listen addr, got %q", cfg.ListenAddr)
	}
	os.Unsetenv("THUMBNAIL_SIZE")
	os.Unsetenv("PORT")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":    {"STORAGE_BACKEND": "ftp"},
		"s3 without bucket":  {"STORAGE_BACKEND": "s3"},
		"zero thumbnail":     {"THUMBNAIL_SIZE": "0"},
		"quality too high":   {"THUMBNAIL_QUALITY": "101"},
		"negative max":       {"ALBUM_MAX_IMAGES": "-1"},
		"not a number":       {"THUMBNAIL_SIZE": "big"},
		"empty target model": {"DEFAULT_TARGET_IMAGE_MODEL": " "},
	}

	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for key, value := range vars {
				t.Setenv(key, value)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", vars)
			}
		})
	}
}
