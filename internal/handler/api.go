package handler

import (
	"log/slog"

	"github.com/gallerywidget/internal/locale"
	"github.com/gallerywidget/internal/service"
	"github.com/gin-gonic/gin"
)

// API bundles shared dependencies for the album pages and endpoints.
type API struct {
	albums    *service.AlbumService
	images    *ImageHandler
	maxImages int
	log       *slog.Logger
}

// APIConfig wires an API.
type APIConfig struct {
	Albums *service.AlbumService
	// Images serialises album images; it must serve the model Album.Images points to.
	Images *ImageHandler
	// MaxImagesPerAlbum limits the album gallery field, 0 meaning unlimited.
	MaxImagesPerAlbum int
	Logger            *slog.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(cfg APIConfig) *API {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &API{
		albums:    cfg.Albums,
		images:    cfg.Images,
		maxImages: cfg.MaxImagesPerAlbum,
		log:       log,
	}
}

func (a *API) renderHTML(c *gin.Context, status int, template string, data gin.H) {
	pref := requestLocale(c)

	payload := gin.H{}
	for key, value := range data {
		payload[key] = value
	}
	if _, exists := payload["lang"]; !exists {
		payload["lang"] = pref.Language
	}
	if _, exists := payload["htmlLang"]; !exists {
		payload["htmlLang"] = pref.HTMLLang
	}
	if title, ok := payload["title"].(string); ok {
		payload["pageTitle"] = title + " · " + locale.Pick(pref.Language, "Gallery", "相册")
	}

	c.HTML(status, template, payload)
}
