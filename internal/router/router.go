package router

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/gallery"
	"github.com/gallerywidget/internal/handler"
	"github.com/gallerywidget/internal/logger"
	"github.com/gallerywidget/internal/service"
	"github.com/gallerywidget/internal/storage"
	"github.com/gallerywidget/internal/thumbnail"
	"github.com/gallerywidget/web"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	sessionName   = "gallery_session"
	galleryPrefix = "/gallery/images"
)

// Deps 汇总构建路由所需的外部依赖。
type Deps struct {
	DB             *gorm.DB
	Storage        storage.Storage
	ThumbnailStore thumbnail.KVStore
	Logger         *slog.Logger

	SessionSecret string
	// UploadDir is served under UploadURL when both are set.
	UploadDir string
	UploadURL string

	ThumbnailSize      int
	ThumbnailQuality   int
	DefaultTargetModel string
	MaxImagesPerAlbum  int
	MaxUploadSize      int64
}

// SetupRouter 配置 Gin 引擎、相册字段和全部路由
func SetupRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil || deps.Storage == nil {
		return nil, errors.New("router requires a database and a storage")
	}
	// logger.New derives component loggers from the default logger.
	if deps.Logger != nil {
		slog.SetDefault(deps.Logger)
	}
	modelKey := deps.DefaultTargetModel
	if modelKey == "" {
		modelKey = gallery.DefaultTargetModel
	}

	routes := NewRoutes()
	routes.AddGallery(modelKey, galleryPrefix)

	manager := gallery.New(deps.DB, deps.Storage,
		gallery.WithLogger(logger.New("gallery")),
		gallery.WithURLReverser(routes),
		gallery.WithDefaultTargetModel(modelKey),
	)
	if _, err := manager.RegisterModel(modelKey, &db.BuiltInGalleryImage{}); err != nil {
		return nil, fmt.Errorf("register image model: %w", err)
	}
	albumImages, err := manager.NewField(&db.Album{}, "Images")
	if err != nil {
		return nil, fmt.Errorf("bind album images: %w", err)
	}
	if err := manager.Install(); err != nil {
		return nil, fmt.Errorf("install gallery callbacks: %w", err)
	}
	if errs := albumImages.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("check album images: %w", errors.Join(errs...))
	}

	thumbs := thumbnail.NewGenerator(deps.Storage, deps.ThumbnailStore,
		thumbnail.WithQuality(deps.ThumbnailQuality),
		thumbnail.WithLogger(logger.New("thumbnail")),
	)
	images, err := service.NewImageService(service.ImageServiceConfig{
		Manager:       manager,
		TargetModel:   modelKey,
		Storage:       deps.Storage,
		Thumbnails:    thumbs,
		Logger:        logger.New("images"),
		MaxUploadSize: deps.MaxUploadSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create image service: %w", err)
	}
	imageHandler, err := handler.NewImageHandler(handler.ImageHandlerConfig{
		Images:             images,
		Reverser:           routes,
		DefaultTargetModel: modelKey,
		PreviewSize:        deps.ThumbnailSize,
		BeforeCreate:       handler.RecordCreatorIP,
		Logger:             logger.New("images"),
	})
	if err != nil {
		return nil, err
	}
	api := handler.NewAPI(handler.APIConfig{
		Albums:            service.NewAlbumService(deps.DB, albumImages),
		Images:            imageHandler,
		MaxImagesPerAlbum: deps.MaxImagesPerAlbum,
		Logger:            logger.New("albums"),
	})

	tmpl, err := web.Templates(template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	})
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	r := gin.Default()

	// 配置会话中间件
	secret := deps.SessionSecret
	if secret == "" {
		secret = "gallery-dev-secret"
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(handler.LocaleMiddleware())
	r.SetHTMLTemplate(tmpl)

	if deps.UploadDir != "" && deps.UploadURL != "" {
		r.Static(deps.UploadURL, deps.UploadDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// 图片上传、获取与裁剪只接受 XMLHttpRequest
	xhr := r.Group("")
	xhr.Use(handler.RequireXMLHttpRequest())
	{
		uploadPath, _ := routes.Path(gallery.UploadURLName(modelKey))
		fetchPath, _ := routes.Path(gallery.FetchURLName(modelKey))
		cropPath, _ := routes.Path(gallery.CropURLName(modelKey))
		xhr.POST(uploadPath, imageHandler.Upload)
		xhr.GET(fetchPath, imageHandler.List)
		xhr.POST(cropPath, imageHandler.Crop)
	}

	r.GET("/albums", api.ShowAlbumList)
	r.GET("/albums/new", api.ShowAlbumForm)
	r.POST("/albums", api.SaveAlbum)
	r.GET("/albums/:id/edit", api.ShowAlbumForm)
	r.POST("/albums/:id", api.SaveAlbum)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/albums", api.ListAlbums)
		apiGroup.GET("/albums/:id", api.GetAlbum)
		apiGroup.DELETE("/albums/:id", api.DeleteAlbum)
	}

	return r, nil
}
