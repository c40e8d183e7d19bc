package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/gallery"
	"gorm.io/gorm"
)

var (
	ErrAlbumNotFound     = errors.New("album not found")
	ErrAlbumTitleMissing = errors.New("album title is required")
	ErrAlbumTitleTooLong = errors.New("album title is too long")
)

const maxAlbumTitleLength = 200

// AlbumService handles album CRUD. Album.Images is a gallery field, so saves go
// through the field's form bookkeeping.
type AlbumService struct {
	db     *gorm.DB
	images *gallery.Field
}

// AlbumFilter describes filters for listing albums.
type AlbumFilter struct {
	Search  string
	Page    int
	PerPage int
}

// AlbumListResult aggregates paginated album results.
type AlbumListResult struct {
	Items      []db.Album
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// NewAlbumService creates an AlbumService; images must be bound to db.Album.Images.
func NewAlbumService(gdb *gorm.DB, images *gallery.Field) *AlbumService {
	return &AlbumService{db: gdb, images: images}
}

// Field returns the gallery field of Album.Images.
func (s *AlbumService) Field() *gallery.Field {
	return s.images
}

// List returns albums matching the filter, newest first.
func (s *AlbumService) List(ctx context.Context, filter AlbumFilter) (AlbumListResult, error) {
	result := AlbumListResult{
		Page:    normalizePage(filter.Page),
		PerPage: normalizePerPage(filter.PerPage, 12),
	}

	query := s.db.WithContext(ctx).Model(&db.Album{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}

	if err := query.Count(&result.Total).Error; err != nil {
		return result, err
	}

	result.TotalPages = calculateTotalPages(result.Total, result.PerPage)
	offset := (result.Page - 1) * result.PerPage

	if err := query.Order("created_at desc").Order("id desc").
		Limit(result.PerPage).
		Offset(offset).
		Find(&result.Items).Error; err != nil {
		return result, err
	}

	return result, nil
}

// Get fetches an album by id.
func (s *AlbumService) Get(ctx context.Context, id uint) (*db.Album, error) {
	var album db.Album
	if err := s.db.WithContext(ctx).First(&album, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlbumNotFound
		}
		return nil, err
	}
	return &album, nil
}

// Images loads the images of album in display order.
func (s *AlbumService) Images(ctx context.Context, album *db.Album) ([]db.BuiltInGalleryImage, error) {
	images, err := s.images.Images(album)
	if err != nil {
		return nil, err
	}
	if images.Len() == 0 {
		return []db.BuiltInGalleryImage{}, nil
	}
	return gallery.Find[db.BuiltInGalleryImage](ctx, images)
}

// Save stores title and the cleaned gallery value on album, creating it when it
// has no id yet. Images removed through value.Deleted are purged once saved.
func (s *AlbumService) Save(ctx context.Context, album *db.Album, title string, value *gallery.Compressed) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrAlbumTitleMissing
	}
	if utf8.RuneCountInString(title) > maxAlbumTitleLength {
		return ErrAlbumTitleTooLong
	}

	album.Title = title
	if err := s.images.SaveFormData(album, value); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(album).Error; err != nil {
		s.images.Release(album)
		return err
	}
	return nil
}

// Delete removes an album. Its images are kept.
func (s *AlbumService) Delete(ctx context.Context, id uint) error {
	album, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.images.Release(album)
	return s.db.WithContext(ctx).Delete(album).Error
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func normalizePerPage(perPage, fallback int) int {
	if perPage <= 0 {
		return fallback
	}
	return perPage
}

func calculateTotalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 1
	}
	if total == 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
