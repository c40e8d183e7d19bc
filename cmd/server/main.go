package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gallerywidget/internal/config"
	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/logger"
	"github.com/gallerywidget/internal/router"
	"github.com/gallerywidget/internal/storage"
	"github.com/gallerywidget/internal/thumbnail"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog := logger.Setup(logger.Config{
		Format: logger.ParseFormat(cfg.LogFormat),
		Level:  logger.ParseLevel(cfg.LogLevel),
		Writer: os.Stderr,
	})

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		appLog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	files, uploadDir, err := openStorage(cfg)
	if err != nil {
		appLog.Error("failed to initialize storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)
	r, err := router.SetupRouter(router.Deps{
		DB:                 db.DB,
		Storage:            files,
		ThumbnailStore:     thumbnailStore(cfg, appLog),
		Logger:             appLog,
		SessionSecret:      cfg.SessionSecret,
		UploadDir:          uploadDir,
		UploadURL:          cfg.UploadURLPath,
		ThumbnailSize:      cfg.ThumbnailSize,
		ThumbnailQuality:   cfg.ThumbnailQuality,
		DefaultTargetModel: cfg.DefaultTargetImageModel,
		MaxImagesPerAlbum:  cfg.AlbumMaxImages,
		MaxUploadSize:      cfg.MaxUploadSize,
	})
	if err != nil {
		appLog.Error("failed to set up router", "error", err)
		os.Exit(1)
	}

	appLog.Info("starting server", "addr", cfg.ListenAddr, "storage", cfg.StorageBackend)
	if err := r.Run(cfg.ListenAddr); err != nil {
		appLog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

// openStorage returns the configured backend and, for local storage, the
// directory to serve statically.
func openStorage(cfg config.AppConfig) (storage.Storage, string, error) {
	if cfg.StorageBackend == config.StorageS3 {
		files, err := storage.NewS3(storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			BaseURL:   cfg.S3BaseURL,
		})
		return files, "", err
	}
	files, err := storage.NewFileSystem(cfg.UploadDir, cfg.UploadURLPath)
	return files, cfg.UploadDir, err
}

func thumbnailStore(cfg config.AppConfig, log *slog.Logger) thumbnail.KVStore {
	if cfg.RedisAddr == "" {
		return thumbnail.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, keeping thumbnail cache in memory", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return thumbnail.NewMemoryStore()
	}
	return thumbnail.NewRedisStore(client, "gallery:thumbs:", 0)
}
