package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/gallery"
	"github.com/gallerywidget/internal/imageops"
	"github.com/gallerywidget/internal/logger"
	"github.com/gallerywidget/internal/storage"
	"github.com/gallerywidget/internal/thumbnail"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type galleryFixture struct {
	db      *gorm.DB
	files   *storage.FileSystem
	manager *gallery.Manager
	field   *gallery.Field
	images  *ImageService
	albums  *AlbumService
}

func setupGalleryFixture(t *testing.T) *galleryFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	files, err := storage.NewFileSystem(t.TempDir(), "/static/uploads")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	manager := gallery.New(gdb, files, gallery.WithLogger(logger.Discard()))
	if _, err := manager.RegisterModel(gallery.DefaultTargetModel, &db.BuiltInGalleryImage{}); err != nil {
		t.Fatalf("failed to register image model: %v", err)
	}
	field, err := manager.NewField(&db.Album{}, "Images")
	if err != nil {
		t.Fatalf("failed to bind album images: %v", err)
	}
	if err := manager.Install(); err != nil {
		t.Fatalf("failed to install gallery callbacks: %v", err)
	}

	images, err := NewImageService(ImageServiceConfig{
		Manager:    manager,
		Storage:    files,
		Thumbnails: thumbnail.NewGenerator(files, thumbnail.NewMemoryStore(), thumbnail.WithLogger(logger.Discard())),
		Logger:     logger.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to create image service: %v", err)
	}

	return &galleryFixture{
		db:      gdb,
		files:   files,
		manager: manager,
		field:   field,
		images:  images,
		albums:  NewAlbumService(gdb, field),
	}
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	enc, err := imageops.Encode(imaging.New(width, height, color.NRGBA{R: 200, B: 80, A: 255}), "png", 0)
	if err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return enc.Data
}

// fileHeader builds the *multipart.FileHeader a request with one file part would carry.
func fileHeader(t *testing.T, filename string, data []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files[]", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(data)
	writer.Close()

	form, err := multipart.NewReader(&body, writer.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("failed to parse form: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files[]"][0]
}

func (f *galleryFixture) upload(t *testing.T, filename string, width, height int) *db.BuiltInGalleryImage {
	t.Helper()
	record, err := f.images.Upload(context.Background(), fileHeader(t, filename, pngBytes(t, width, height)), nil)
	if err != nil {
		t.Fatalf("failed to upload %s: %v", filename, err)
	}
	return record.(*db.BuiltInGalleryImage)
}

func TestImageUploadStoresFileAndRecord(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	before := func(_ context.Context, record any) error {
		record.(*db.BuiltInGalleryImage).CreatorIP = "203.0.113.7"
		return nil
	}
	record, err := fx.images.Upload(ctx, fileHeader(t, "photo.png", pngBytes(t, 40, 30)), before)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	img := record.(*db.BuiltInGalleryImage)
	if img.ID == 0 {
		t.Fatalf("expected record to be persisted")
	}
	if img.Image != "images/photo.png" {
		t.Fatalf("unexpected stored name %s", img.Image)
	}
	if exists, _ := fx.files.Exists(ctx, img.Image); !exists {
		t.Fatalf("expected uploaded file to exist")
	}

	var stored db.BuiltInGalleryImage
	if err := fx.db.First(&stored, img.ID).Error; err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if stored.CreatorIP != "203.0.113.7" {
		t.Fatalf("expected before hook to run, got %q", stored.CreatorIP)
	}

	second := fx.upload(t, "photo.png", 10, 10)
	if second.Image == img.Image {
		t.Fatalf("expected a second upload with the same name to get a new file")
	}
}

func TestImageUploadRejectsInvalidFiles(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	if _, err := fx.images.Upload(ctx, fileHeader(t, "notes.txt", []byte("hello world")), nil); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage for text, got %v", err)
	}

	truncated := pngBytes(t, 20, 20)[:12]
	if _, err := fx.images.Upload(ctx, fileHeader(t, "broken.png", truncated), nil); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage for a corrupted png, got %v", err)
	}

	if _, err := fx.images.Upload(ctx, nil, nil); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}

	failing := func(context.Context, any) error { return errors.New("quota exceeded") }
	if _, err := fx.images.Upload(ctx, fileHeader(t, "ok.png", pngBytes(t, 5, 5)), failing); err == nil {
		t.Fatalf("expected hook error to abort the upload")
	}
	if exists, _ := fx.files.Exists(ctx, "images/ok.png"); exists {
		t.Fatalf("expected aborted upload file to be removed")
	}

	var count int64
	fx.db.Model(&db.BuiltInGalleryImage{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no records, got %d", count)
	}
}

func TestImageCropRotatesAndCreatesNewRecord(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()
	original := fx.upload(t, "landscape.png", 200, 100)

	cropped, err := fx.images.Crop(ctx, original.ID, imageops.CropResult{X: 0, Y: 0, Width: 100, Height: 50, Rotate: 90})
	if err != nil {
		t.Fatalf("crop failed: %v", err)
	}

	img := cropped.Record.(*db.BuiltInGalleryImage)
	if img.ID == 0 || img.ID == original.ID {
		t.Fatalf("expected a new record, got id %d", img.ID)
	}
	if img.Image == original.Image {
		t.Fatalf("expected a new file, got %s", img.Image)
	}
	if cropped.Upload.Name != original.Image || cropped.Upload.ContentType != "image/png" {
		t.Fatalf("expected upload metadata to keep the old name and type, got %+v", cropped.Upload)
	}

	rc, err := fx.files.Open(ctx, img.Image)
	if err != nil {
		t.Fatalf("cropped file missing: %v", err)
	}
	decoded, _, err := imageops.Decode(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("failed to decode cropped file: %v", err)
	}
	if decoded.Bounds().Dx() != 100 || decoded.Bounds().Dy() != 50 {
		t.Fatalf("expected 100x50, got %v", decoded.Bounds())
	}

	if exists, _ := fx.files.Exists(ctx, original.Image); !exists {
		t.Fatalf("expected original file to be kept")
	}
	var count int64
	fx.db.Model(&db.BuiltInGalleryImage{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 records, got %d", count)
	}
}

func TestImageCropErrors(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	if _, err := fx.images.Crop(ctx, 404, imageops.CropResult{Width: 1, Height: 1}); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}

	img := fx.upload(t, "gone.png", 20, 20)
	if err := fx.files.Delete(ctx, img.Image); err != nil {
		t.Fatalf("failed to delete file: %v", err)
	}
	if _, err := fx.images.Crop(ctx, img.ID, imageops.CropResult{Width: 10, Height: 10}); !errors.Is(err, ErrImageFileMissing) {
		t.Fatalf("expected ErrImageFileMissing, got %v", err)
	}

	corrupt := fx.upload(t, "corrupt.png", 20, 20)
	if err := fx.files.Delete(ctx, corrupt.Image); err != nil {
		t.Fatalf("failed to delete file: %v", err)
	}
	if _, err := fx.files.Save(ctx, corrupt.Image, strings.NewReader("not an image any more"), "image/png"); err != nil {
		t.Fatalf("failed to overwrite file: %v", err)
	}
	_, err := fx.images.Crop(ctx, corrupt.ID, imageops.CropResult{Width: 10, Height: 10})
	if !errors.Is(err, ErrInvalidImage) || errors.Is(err, ErrImageFileMissing) {
		t.Fatalf("expected ErrInvalidImage for an undecodable file, got %v", err)
	}
}

func TestImageCropOutsideImageKeepsBoxSize(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()
	original := fx.upload(t, "small.png", 20, 20)

	cropped, err := fx.images.Crop(ctx, original.ID, imageops.CropResult{X: 50, Y: 50, Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("crop failed: %v", err)
	}
	img := cropped.Record.(*db.BuiltInGalleryImage)
	rc, err := fx.files.Open(ctx, img.Image)
	if err != nil {
		t.Fatalf("cropped file missing: %v", err)
	}
	decoded, _, err := imageops.Decode(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("failed to decode cropped file: %v", err)
	}
	if decoded.Bounds().Dx() != 10 || decoded.Bounds().Dy() != 10 {
		t.Fatalf("expected 10x10, got %v", decoded.Bounds())
	}
}

func TestImageListPreservesRequestedOrder(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	a := fx.upload(t, "a.png", 8, 8)
	b := fx.upload(t, "b.png", 8, 8)
	c := fx.upload(t, "c.png", 8, 8)

	records, err := fx.images.List(ctx, []uint{c.ID, a.ID, 999, b.ID})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []uint{c.ID, a.ID, b.ID}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, record := range records {
		if got := record.(*db.BuiltInGalleryImage).ID; got != want[i] {
			t.Fatalf("position %d: expected %d, got %d", i, want[i], got)
		}
	}
}

func TestImageSerialize(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()
	img := fx.upload(t, "serialize.png", 64, 48)

	out := fx.images.Serialize(ctx, img, 32, "/gallery/images/1/crop")
	if out.PK != img.ID || out.Name != "serialize.png" {
		t.Fatalf("unexpected identity %+v", out)
	}
	if out.URL != "/static/uploads/images/serialize.png" {
		t.Fatalf("unexpected url %s", out.URL)
	}
	if out.Size == nil || *out.Size == 0 || out.CropURL != "/gallery/images/1/crop" {
		t.Fatalf("expected size and crop url, got %+v", out)
	}
	if !strings.HasPrefix(out.ThumbnailURL, "/static/uploads/cache/thumbs/") {
		t.Fatalf("expected thumbnail url, got %q", out.ThumbnailURL)
	}

	if err := fx.files.Delete(ctx, img.Image); err != nil {
		t.Fatalf("failed to delete file: %v", err)
	}
	missing := fx.images.Serialize(ctx, img, 32, "/gallery/images/1/crop")
	if !missing.Missing || missing.Error == "" {
		t.Fatalf("expected missing file error, got %+v", missing)
	}
	if missing.Size != nil || missing.CropURL != "" {
		t.Fatalf("expected size and crop url to be omitted, got %+v", missing)
	}
}
