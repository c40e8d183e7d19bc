package handler

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/gallery"
	"github.com/gallerywidget/internal/locale"
	"github.com/gallerywidget/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const albumImagesField = "images"

type albumPayload struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Images    []uint    `json:"images"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newAlbumPayload(album db.Album) albumPayload {
	images := []uint(album.Images)
	if images == nil {
		images = []uint{}
	}
	return albumPayload{
		ID:        album.ID,
		Title:     album.Title,
		Images:    images,
		CreatedAt: album.CreatedAt,
		UpdatedAt: album.UpdatedAt,
	}
}

// albumFormField builds the gallery form field of the album form with messages in lang.
func (a *API) albumFormField(lang string, initial []uint) (*gallery.FormField, error) {
	return a.albums.Field().FormField(
		gallery.WithInitial(initial),
		gallery.WithMaxNumberOfImages(a.maxImages),
		gallery.WithLabel(locale.Pick(lang, "Images", "图片")),
		gallery.WithErrorMessages(map[string]string{
			gallery.CodeRequired: locale.T(lang, locale.MsgGalleryRequired),
			gallery.CodeInvalid:  locale.T(lang, locale.MsgGalleryInvalid),
		}),
	)
}

// validationMessages renders collected form errors in lang.
func validationMessages(lang string, errs gallery.ValidationErrors) []string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Code == gallery.CodeMaxNumberOfImages {
			messages = append(messages, locale.T(lang, locale.MsgGalleryMax, e.Params["limit_value"]))
			continue
		}
		messages = append(messages, e.Message)
	}
	return messages
}

// ShowAlbumList renders the album list with pending flash messages.
func (a *API) ShowAlbumList(c *gin.Context) {
	lang := RequestLanguage(c)
	result, err := a.albums.List(c.Request.Context(), service.AlbumFilter{
		Search: c.Query("search"),
		Page:   positiveInt(c.Query("page"), 1),
	})
	if err != nil {
		a.log.Error("failed to list albums", "error", err)
		a.renderHTML(c, http.StatusInternalServerError, "album_list.html", gin.H{
			"title": locale.Pick(lang, "Albums", "相册列表"),
			"error": locale.T(lang, locale.MsgServerError),
		})
		return
	}

	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) > 0 {
		if err := session.Save(); err != nil {
			a.log.Warn("failed to clear flashes", "error", err)
		}
	}

	a.renderHTML(c, http.StatusOK, "album_list.html", gin.H{
		"title":   locale.Pick(lang, "Albums", "相册列表"),
		"result":  result,
		"flashes": flashes,
	})
}

// ShowAlbumForm renders the create form, or the edit form when :id is present.
func (a *API) ShowAlbumForm(c *gin.Context) {
	lang := RequestLanguage(c)

	album := &db.Album{}
	if c.Param("id") != "" {
		loaded, ok := a.loadAlbumPage(c, lang)
		if !ok {
			return
		}
		album = loaded
	}

	field, err := a.albumFormField(lang, album.Images)
	if err != nil {
		a.log.Error("failed to build album form", "error", err)
		a.renderHTML(c, http.StatusInternalServerError, "album_form.html", gin.H{"error": locale.T(lang, locale.MsgServerError)})
		return
	}
	a.renderAlbumForm(c, http.StatusOK, album, album.Title, field, nil, nil)
}

func (a *API) loadAlbumPage(c *gin.Context, lang string) (*db.Album, bool) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderHTML(c, http.StatusNotFound, "album_form.html", gin.H{"error": locale.T(lang, locale.MsgAlbumNotFound)})
		return nil, false
	}
	album, err := a.albums.Get(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		message := locale.T(lang, locale.MsgServerError)
		if errors.Is(err, service.ErrAlbumNotFound) {
			status, message = http.StatusNotFound, locale.T(lang, locale.MsgAlbumNotFound)
		}
		a.renderHTML(c, status, "album_form.html", gin.H{"error": message})
		return nil, false
	}
	return album, true
}

func (a *API) renderAlbumForm(c *gin.Context, status int, album *db.Album, title string, field *gallery.FormField, value []string, errs []string) {
	lang := RequestLanguage(c)

	widget, err := field.Render(albumImagesField, value)
	if err != nil {
		a.log.Error("failed to render gallery widget", "error", err)
		widget = template.HTML("")
		errs = append(errs, locale.T(lang, locale.MsgServerError))
		status = http.StatusInternalServerError
	}

	action := "/albums"
	heading := locale.Pick(lang, "New album", "新建相册")
	if album.ID != 0 {
		action = fmt.Sprintf("/albums/%d", album.ID)
		heading = locale.Pick(lang, "Edit album", "编辑相册")
	}

	a.renderHTML(c, status, "album_form.html", gin.H{
		"title":      heading,
		"album":      album,
		"albumTitle": title,
		"action":     action,
		"label":      field.Label,
		"widget":     widget,
		"errors":     errs,
	})
}

// SaveAlbum handles the album form. Invalid submissions re-render the form with
// status 400; valid ones redirect to the album list with a flash message.
func (a *API) SaveAlbum(c *gin.Context) {
	lang := RequestLanguage(c)
	ctx := c.Request.Context()

	album := &db.Album{}
	if c.Param("id") != "" {
		loaded, ok := a.loadAlbumPage(c, lang)
		if !ok {
			return
		}
		album = loaded
	}

	// PostForm parses urlencoded and multipart bodies into Request.PostForm.
	title := c.PostForm("title")

	field, err := a.albumFormField(lang, album.Images)
	if err != nil {
		a.log.Error("failed to build album form", "error", err)
		a.renderHTML(c, http.StatusInternalServerError, "album_form.html", gin.H{"error": locale.T(lang, locale.MsgServerError)})
		return
	}
	value := field.ValueFromForm(c.Request.PostForm, albumImagesField)

	cleaned, err := field.Clean(ctx, value)
	if err != nil {
		errs, ok := gallery.AsValidationErrors(err)
		if !ok {
			a.log.Error("failed to clean album images", "error", err)
			a.renderAlbumForm(c, http.StatusInternalServerError, album, title, field, value, []string{locale.T(lang, locale.MsgServerError)})
			return
		}
		a.renderAlbumForm(c, http.StatusBadRequest, album, title, field, value, validationMessages(lang, errs))
		return
	}

	if err := a.albums.Save(ctx, album, title, cleaned); err != nil {
		switch {
		case errors.Is(err, service.ErrAlbumTitleMissing):
			a.renderAlbumForm(c, http.StatusBadRequest, album, title, field, value, []string{locale.T(lang, locale.MsgAlbumTitleMissing)})
		case errors.Is(err, service.ErrAlbumTitleTooLong):
			a.renderAlbumForm(c, http.StatusBadRequest, album, title, field, value, []string{locale.T(lang, locale.MsgAlbumTitleTooLong)})
		default:
			a.log.Error("failed to save album", "error", err)
			a.renderAlbumForm(c, http.StatusInternalServerError, album, title, field, value, []string{locale.T(lang, locale.MsgServerError)})
		}
		return
	}

	session := sessions.Default(c)
	session.AddFlash(locale.T(lang, locale.MsgAlbumSaved))
	if err := session.Save(); err != nil {
		a.log.Warn("failed to store flash", "error", err)
	}
	c.Redirect(http.StatusSeeOther, "/albums")
}

// ListAlbums returns albums as JSON.
func (a *API) ListAlbums(c *gin.Context) {
	lang := RequestLanguage(c)
	result, err := a.albums.List(c.Request.Context(), service.AlbumFilter{
		Search:  c.Query("search"),
		Page:    positiveInt(c.Query("page"), 1),
		PerPage: positiveInt(c.Query("per_page"), 0),
	})
	if err != nil {
		a.log.Error("failed to list albums", "error", err)
		respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
		return
	}

	items := make([]albumPayload, 0, len(result.Items))
	for _, album := range result.Items {
		items = append(items, newAlbumPayload(album))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":      items,
		"total":      result.Total,
		"page":       result.Page,
		"perPage":    result.PerPage,
		"totalPages": result.TotalPages,
	})
}

// GetAlbum returns one album with its images serialised in display order.
func (a *API) GetAlbum(c *gin.Context) {
	lang := RequestLanguage(c)
	album, ok := a.loadAlbumJSON(c, lang)
	if !ok {
		return
	}

	images, err := a.albums.Images(c.Request.Context(), album)
	if err != nil {
		a.log.Error("failed to load album images", "album_id", album.ID, "error", err)
		respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
		return
	}

	records := make([]any, 0, len(images))
	for i := range images {
		records = append(records, &images[i])
	}
	previewSize := positiveInt(c.Query("preview_size"), a.images.previewSize)

	c.JSON(http.StatusOK, gin.H{
		"album":  newAlbumPayload(*album),
		"images": a.images.serializeAll(c, records, previewSize),
	})
}

// DeleteAlbum removes an album, keeping its images.
func (a *API) DeleteAlbum(c *gin.Context) {
	lang := RequestLanguage(c)
	album, ok := a.loadAlbumJSON(c, lang)
	if !ok {
		return
	}
	if err := a.albums.Delete(c.Request.Context(), album.ID); err != nil {
		a.log.Error("failed to delete album", "album_id", album.ID, "error", err)
		respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": locale.T(lang, locale.MsgAlbumDeleted), "id": album.ID})
}

func (a *API) loadAlbumJSON(c *gin.Context, lang string) (*db.Album, bool) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, locale.T(lang, locale.MsgInvalidID))
		return nil, false
	}
	album, err := a.albums.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrAlbumNotFound) {
			respondError(c, http.StatusNotFound, locale.T(lang, locale.MsgAlbumNotFound))
		} else {
			a.log.Error("failed to load album", "album_id", id, "error", err)
			respondError(c, http.StatusInternalServerError, locale.T(lang, locale.MsgServerError))
		}
		return nil, false
	}
	return album, true
}
