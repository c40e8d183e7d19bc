package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/gallery"
	"github.com/gallerywidget/internal/imageops"
	"github.com/gallerywidget/internal/locale"
	"github.com/gallerywidget/internal/service"
	"github.com/gallerywidget/internal/thumbnail"
	"github.com/gin-gonic/gin"
)

const uploadFormField = "files[]"

// ImageHandlerConfig wires an ImageHandler.
type ImageHandlerConfig struct {
	Images   *service.ImageService
	Reverser gallery.URLReverser
	// CropURLName is the route name of the crop endpoint; it defaults to
	// "<model>-crop" of the served model.
	CropURLName        string
	DefaultTargetModel string
	PreviewSize        int
	// BeforeCreate, when set, builds the hook run on each uploaded record.
	BeforeCreate func(c *gin.Context) service.BeforeCreate
	Logger       *slog.Logger
}

// ImageHandler serves the upload, list and crop endpoints of one image model.
type ImageHandler struct {
	images       *service.ImageService
	reverser     gallery.URLReverser
	cropURLName  string
	defaultModel string
	previewSize  int
	beforeCreate func(c *gin.Context) service.BeforeCreate
	log          *slog.Logger
}

// NewImageHandler creates a handler and runs Check on it.
func NewImageHandler(cfg ImageHandlerConfig) (*ImageHandler, error) {
	if cfg.Images == nil {
		return nil, errors.New("image handler requires an image service")
	}
	h := &ImageHandler{
		images:       cfg.Images,
		reverser:     cfg.Reverser,
		cropURLName:  strings.TrimSpace(cfg.CropURLName),
		defaultModel: strings.TrimSpace(cfg.DefaultTargetModel),
		previewSize:  cfg.PreviewSize,
		beforeCreate: cfg.BeforeCreate,
		log:          cfg.Logger,
	}
	if h.cropURLName == "" {
		h.cropURLName = gallery.CropURLName(cfg.Images.Target().Key())
	}
	if h.defaultModel == "" {
		h.defaultModel = gallery.DefaultTargetModel
	}
	if h.previewSize <= 0 {
		h.previewSize = thumbnail.DefaultSize
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if err := h.Check(); err != nil {
		return nil, err
	}
	return h, nil
}

// Check verifies the crop route can be reversed and that the built-in crop route
// only serves the built-in model.
func (h *ImageHandler) Check() error {
	if h.reverser == nil {
		return fmt.Errorf("%w: image handler has no URL reverser", gallery.ErrImproperlyConfigured)
	}
	if _, err := h.reverser.Reverse(h.cropURLName, map[string]string{"pk": "1"}); err != nil {
		return fmt.Errorf("%w: crop url name %q is invalid: %v", gallery.ErrImproperlyConfigured, h.cropURLName, err)
	}
	target := h.images.Target().Key()
	if h.cropURLName == gallery.CropURLName(h.defaultModel) && target != h.defaultModel {
		return fmt.Errorf("%w: crop url name %q is the built-in default while target model is %q",
			gallery.ErrImproperlyConfigured, h.cropURLName, target)
	}
	return nil
}

func (h *ImageHandler) requestPreviewSize(c *gin.Context) int {
	raw := c.Query("preview_size")
	if c.Request.Method != http.MethodGet {
		raw = c.PostForm("preview_size")
	}
	return positiveInt(raw, h.previewSize)
}

func (h *ImageHandler) serialize(c *gin.Context, record any, previewSize int) service.SerializedImage {
	var cropURL string
	if id, err := h.images.Target().ID(record); err == nil {
		cropURL, _ = h.reverser.Reverse(h.cropURLName, map[string]string{"pk": strconv.FormatUint(uint64(id), 10)})
	}
	out := h.images.Serialize(c.Request.Context(), record, previewSize, cropURL)
	if out.Missing {
		out.Error = locale.T(RequestLanguage(c), locale.MsgImageDeleted)
	}
	return out
}

func (h *ImageHandler) serializeAll(c *gin.Context, records []any, previewSize int) []service.SerializedImage {
	files := make([]service.SerializedImage, 0, len(records))
	for _, record := range records {
		files = append(files, h.serialize(c, record, previewSize))
	}
	return files
}

// Upload stores the posted files[] image and returns it serialised.
func (h *ImageHandler) Upload(c *gin.Context) {
	lang := RequestLanguage(c)
	previewSize := h.requestPreviewSize(c)
	field := h.images.Target().ImageColumn()

	fileHeader, err := c.FormFile(uploadFormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{field: []string{locale.T(lang, locale.MsgNoFile)}}})
		return
	}

	var hook service.BeforeCreate
	if h.beforeCreate != nil {
		hook = h.beforeCreate(c)
	}

	record, err := h.images.Upload(c.Request.Context(), fileHeader, hook)
	if err != nil {
		var key string
		switch {
		case errors.Is(err, service.ErrInvalidImage):
			key = locale.MsgInvalidImage
		case errors.Is(err, service.ErrNoFile):
			key = locale.MsgNoFile
		case errors.Is(err, service.ErrFileTooLarge):
			key = locale.MsgFileTooLarge
		default:
			h.log.Error("image upload failed", "error", err)
			respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"errors": gin.H{field: []string{locale.T(lang, key)}}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files":   []service.SerializedImage{h.serialize(c, record, previewSize)},
		"message": locale.T(lang, locale.MsgDone),
	})
}

// List returns the images named by the pks query parameter, in that order.
func (h *ImageHandler) List(c *gin.Context) {
	lang := RequestLanguage(c)

	ids, message := parsePks(lang, c.Query("pks"))
	if message != "" {
		respondError(c, http.StatusBadRequest, message)
		return
	}

	records, err := h.images.List(c.Request.Context(), ids)
	if err != nil {
		h.log.Error("image list failed", "error", err)
		respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": h.serializeAll(c, records, h.requestPreviewSize(c))})
}

// parsePks decodes the url encoded JSON list of ids sent by the widget. It
// returns a user facing message when the value is unusable.
func parsePks(lang, raw string) ([]uint, string) {
	if raw == "" {
		return nil, locale.T(lang, locale.MsgPksMissing)
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var decoded any
	err := dec.Decode(&decoded)
	if err == nil && dec.More() {
		err = errors.New("trailing data")
	}
	if err != nil {
		return nil, locale.T(lang, locale.MsgPksInvalid, raw, err.Error())
	}
	list, ok := decoded.([]any)
	if !ok {
		return nil, locale.T(lang, locale.MsgPksInvalid, raw, fmt.Sprintf("expected a list, got %T", decoded))
	}

	ids := make([]uint, 0, len(list))
	for _, item := range list {
		text := fmt.Sprint(item)
		id, err := strconv.ParseUint(text, 10, 32)
		if err != nil || !isDigits(text) {
			return nil, locale.T(lang, locale.MsgPksNotInteger, text)
		}
		ids = append(ids, uint(id))
	}
	return ids, ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Crop crops image :pk as described by cropped_result and returns the new image.
func (h *ImageHandler) Crop(c *gin.Context) {
	lang := RequestLanguage(c)

	id, err := parseUintParam(c, "pk")
	if err != nil {
		respondError(c, http.StatusNotFound, locale.T(lang, locale.MsgImageNotFound))
		return
	}

	raw, ok := croppedResult(c)
	if !ok {
		respondError(c, http.StatusBadRequest, locale.T(lang, locale.MsgCropMissing))
		return
	}
	if !json.Valid(raw) {
		var decoded any
		reason := json.Unmarshal(raw, &decoded)
		respondError(c, http.StatusBadRequest, locale.T(lang, locale.MsgCropUnreadable, fmt.Sprint(reason)))
		return
	}
	crop, err := imageops.ParseCropResult(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, locale.T(lang, locale.MsgCropFormat))
		return
	}

	previewSize := h.requestPreviewSize(c)
	cropped, err := h.images.Crop(c.Request.Context(), id, crop)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImageNotFound):
			respondError(c, http.StatusNotFound, locale.T(lang, locale.MsgImageNotFound))
		case errors.Is(err, service.ErrImageFileMissing):
			respondError(c, http.StatusBadRequest, locale.T(lang, locale.MsgFileMissing))
		case errors.Is(err, service.ErrInvalidImage):
			respondError(c, http.StatusBadRequest, locale.T(lang, locale.MsgInvalidImage))
		default:
			h.log.Error("image crop failed", "image_id", id, "error", err)
			respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files":   []service.SerializedImage{h.serialize(c, cropped.Record, previewSize)},
		"message": locale.T(lang, locale.MsgDone),
	})
}

// croppedResult reads cropped_result from the form, or from a JSON body where it
// may be an object or a JSON encoded string.
func croppedResult(c *gin.Context) ([]byte, bool) {
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, false
		}
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, false
		}
		value, ok := payload["cropped_result"]
		if !ok {
			return nil, false
		}
		value = bytes.TrimSpace(value)
		var encoded string
		if len(value) > 0 && value[0] == '"' && json.Unmarshal(value, &encoded) == nil {
			return []byte(encoded), true
		}
		return value, true
	}

	value, ok := c.GetPostForm("cropped_result")
	if !ok {
		return nil, false
	}
	return []byte(value), true
}

// RecordCreatorIP fills BuiltInGalleryImage.CreatorIP from the uploading client.
func RecordCreatorIP(c *gin.Context) service.BeforeCreate {
	ip := c.ClientIP()
	return func(_ context.Context, record any) error {
		if img, ok := record.(*db.BuiltInGalleryImage); ok {
			img.CreatorIP = ip
		}
		return nil
	}
}
