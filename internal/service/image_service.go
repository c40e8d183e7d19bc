package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gallerywidget/internal/gallery"
	"github.com/gallerywidget/internal/imageops"
	"github.com/gallerywidget/internal/storage"
	"github.com/gallerywidget/internal/thumbnail"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNoFile           = errors.New("no file was submitted")
	ErrInvalidImage     = errors.New("upload a valid image")
	ErrImageNotFound    = errors.New("image not found")
	ErrImageFileMissing = errors.New("image file not found")
	ErrFileTooLarge     = errors.New("uploaded file is too large")
)

const (
	defaultUploadPrefix  = "images"
	defaultMaxUploadSize = 20 << 20
	cropQuality          = 95
)

// BeforeCreate runs on a new image record before it is inserted. Typical uses
// fill in ownership columns from the request.
type BeforeCreate func(ctx context.Context, record any) error

// UploadedFile describes the file generated for a cropped image.
type UploadedFile struct {
	Name        string
	ContentType string
	Size        int64
}

// CroppedImage is the record created by Crop and the file stored for it.
type CroppedImage struct {
	Record any
	Upload UploadedFile
}

// SerializedImage is the JSON shape the gallery widget consumes.
type SerializedImage struct {
	PK           uint   `json:"pk"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Size         *int64 `json:"size,omitempty"`
	CropURL      string `json:"cropUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Error        string `json:"error,omitempty"`

	// Missing is set when the stored file could not be found.
	Missing bool `json:"-"`
}

// ImageServiceConfig wires an ImageService.
type ImageServiceConfig struct {
	Manager     *gallery.Manager
	TargetModel string
	Storage     storage.Storage
	Thumbnails  *thumbnail.Generator
	Logger      *slog.Logger
	// UploadPrefix is the directory new uploads are stored under.
	UploadPrefix  string
	MaxUploadSize int64
}

// ImageService uploads, crops, lists and serialises records of one target model.
type ImageService struct {
	db        *gorm.DB
	target    *gallery.TargetModel
	files     storage.Storage
	thumbs    *thumbnail.Generator
	log       *slog.Logger
	prefix    string
	maxUpload int64
}

// NewImageService creates an ImageService for cfg.TargetModel, or the manager's
// default model when empty.
func NewImageService(cfg ImageServiceConfig) (*ImageService, error) {
	if cfg.Manager == nil || cfg.Storage == nil {
		return nil, errors.New("image service requires a gallery manager and a storage")
	}
	target, err := cfg.Manager.TargetModel(cfg.TargetModel)
	if err != nil {
		return nil, err
	}

	svc := &ImageService{
		db:        cfg.Manager.DB(),
		target:    target,
		files:     cfg.Storage,
		thumbs:    cfg.Thumbnails,
		log:       cfg.Logger,
		prefix:    strings.Trim(cfg.UploadPrefix, "/"),
		maxUpload: cfg.MaxUploadSize,
	}
	if svc.log == nil {
		svc.log = slog.Default()
	}
	if svc.prefix == "" {
		svc.prefix = defaultUploadPrefix
	}
	if svc.maxUpload <= 0 {
		svc.maxUpload = defaultMaxUploadSize
	}
	return svc, nil
}

// Target returns the image model the service manages.
func (s *ImageService) Target() *gallery.TargetModel {
	return s.target
}

// Upload validates fh as an image, stores it and inserts a record pointing at it.
func (s *ImageService) Upload(ctx context.Context, fh *multipart.FileHeader, before BeforeCreate) (any, error) {
	if fh == nil || fh.Size == 0 {
		return nil, ErrNoFile
	}
	if fh.Size > s.maxUpload {
		return nil, ErrFileTooLarge
	}

	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxUpload {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, ErrInvalidImage
	}
	if _, _, err := imageops.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, ErrInvalidImage
	}

	name := path.Join(s.prefix, uploadName(fh.Filename, mtype.Extension()))
	stored, err := s.files.Save(ctx, name, bytes.NewReader(data), mtype.String())
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	record := s.target.New()
	if err := s.target.SetImage(record, stored); err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	if before != nil {
		if err := before(ctx, record); err != nil {
			s.discard(ctx, stored)
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	s.log.Info("image uploaded", "model", s.target.Key(), "file", stored, "size", len(data))
	return record, nil
}

// uploadName keeps the client's base name when it has one, otherwise a random
// name with the detected extension.
func uploadName(filename, ext string) string {
	base := path.Base(storage.CleanName(filename))
	if base == "" || base == "." || base == "/" {
		return uuid.NewString() + ext
	}
	if path.Ext(base) == "" {
		base += ext
	}
	return base
}

func (s *ImageService) discard(ctx context.Context, name string) {
	if err := s.files.Delete(ctx, name); err != nil {
		s.log.Warn("failed to remove orphaned upload", "file", name, "error", err)
	}
}

// Get loads one record.
func (s *ImageService) Get(ctx context.Context, id uint) (any, error) {
	record, err := s.target.Get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImageNotFound
		}
		return nil, err
	}
	return record, nil
}

// List returns the records of ids in the order of ids. Unknown ids are skipped.
func (s *ImageService) List(ctx context.Context, ids []uint) ([]any, error) {
	return s.target.Find(ctx, s.db, ids)
}

// Crop applies crop to the file of record id, stores the result as a new file and
// inserts a copy of the record pointing at it. The original is left untouched.
func (s *ImageService) Crop(ctx context.Context, id uint, crop imageops.CropResult) (*CroppedImage, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldName, err := s.target.Image(record)
	if err != nil {
		return nil, err
	}

	rc, err := s.files.Open(ctx, oldName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrImageFileMissing
		}
		return nil, err
	}
	img, format, err := imageops.Decode(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: stored file %s: %v", ErrInvalidImage, oldName, err)
	}

	encoded, err := imageops.Encode(imageops.Apply(img, crop), format, cropQuality)
	if err != nil {
		return nil, err
	}

	upload := UploadedFile{
		Name:        oldName,
		ContentType: imageops.MIME(format),
		Size:        int64(len(encoded.Data)),
	}
	stored, err := s.files.Save(ctx, imageops.RenameForFormat(oldName, encoded.Format), bytes.NewReader(encoded.Data), encoded.ContentType)
	if err != nil {
		return nil, fmt.Errorf("store cropped image: %w", err)
	}

	clone, err := s.target.Clone(record)
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	if err := s.target.SetImage(clone, stored); err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(clone).Error; err != nil {
		s.discard(ctx, stored)
		return nil, err
	}

	s.log.Info("image cropped", "model", s.target.Key(), "source_id", id, "file", stored)
	return &CroppedImage{Record: clone, Upload: upload}, nil
}

// Serialize describes record for the widget. A missing file is reported through
// Error instead of Size and CropURL. Thumbnail failures leave ThumbnailURL empty.
func (s *ImageService) Serialize(ctx context.Context, record any, previewSize int, cropURL string) SerializedImage {
	id, _ := s.target.ID(record)
	name, _ := s.target.Image(record)

	out := SerializedImage{
		PK:   id,
		Name: path.Base(name),
		URL:  s.files.URL(name),
	}

	if size, err := s.files.Size(ctx, name); err != nil {
		out.Missing = true
		out.Error = "The image was unexpectedly deleted from server"
	} else {
		out.Size = &size
		out.CropURL = cropURL
	}

	if s.thumbs != nil && name != "" {
		if thumb, err := s.thumbs.Get(ctx, name, previewSize); err == nil {
			out.ThumbnailURL = thumb.URL
		} else {
			s.log.Debug("thumbnail unavailable", "file", name, "error", err)
		}
	}
	return out
}
