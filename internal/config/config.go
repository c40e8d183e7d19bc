package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string `env:"LISTEN_ADDR"`
	Port          string `env:"PORT" envDefault:"8080"`
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"gallery.db"`
	SessionSecret string `env:"SESSION_SECRET" envDefault:"gallery-dev-secret"`
	GinMode       string `env:"GIN_MODE" envDefault:"release"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"web/static/uploads"`
	UploadURLPath  string `env:"UPLOAD_URL_PATH" envDefault:"/static/uploads"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3BaseURL   string `env:"S3_BASE_URL"`

	// RedisAddr empty keeps the thumbnail cache in memory.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	ThumbnailSize    int `env:"THUMBNAIL_SIZE" envDefault:"138"`
	ThumbnailQuality int `env:"THUMBNAIL_QUALITY" envDefault:"95"`

	DefaultTargetImageModel string `env:"DEFAULT_TARGET_IMAGE_MODEL" envDefault:"gallery.BuiltInGalleryImage"`
	// AlbumMaxImages 为 0 时不限制相册图片数量。
	AlbumMaxImages int   `env:"ALBUM_MAX_IMAGES" envDefault:"0"`
	MaxUploadSize  int64 `env:"MAX_UPLOAD_SIZE" envDefault:"20971520"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load 读取 .env（如存在）与环境变量，并为缺失项提供默认值。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Port = strings.TrimSpace(cfg.Port)
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.StorageBackend {
	case StorageLocal:
	case StorageS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			return errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.ThumbnailSize <= 0 {
		return fmt.Errorf("THUMBNAIL_SIZE must be positive, got %d", c.ThumbnailSize)
	}
	if c.ThumbnailQuality < 1 || c.ThumbnailQuality > 100 {
		return fmt.Errorf("THUMBNAIL_QUALITY must be within 1..100, got %d", c.ThumbnailQuality)
	}
	if c.AlbumMaxImages < 0 {
		return fmt.Errorf("ALBUM_MAX_IMAGES must not be negative, got %d", c.AlbumMaxImages)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize)
	}
	if strings.TrimSpace(c.DefaultTargetImageModel) == "" {
		return errors.New("DEFAULT_TARGET_IMAGE_MODEL must not be empty")
	}
	return nil
}
