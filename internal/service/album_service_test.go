package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/gallerywidget/internal/db"
	"github.com/gallerywidget/internal/gallery"
)

func TestAlbumSaveAndLoadImagesInOrder(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	a := fx.upload(t, "a.png", 8, 8)
	b := fx.upload(t, "b.png", 8, 8)
	c := fx.upload(t, "c.png", 8, 8)

	album := &db.Album{}
	if err := fx.albums.Save(ctx, album, "  旅行  ", &gallery.Compressed{IDs: []uint{c.ID, a.ID, b.ID}}); err != nil {
		t.Fatalf("failed to save album: %v", err)
	}
	if album.ID == 0 || album.Title != "旅行" {
		t.Fatalf("unexpected album %+v", album)
	}

	loaded, err := fx.albums.Get(ctx, album.ID)
	if err != nil {
		t.Fatalf("failed to load album: %v", err)
	}
	images, err := fx.albums.Images(ctx, loaded)
	if err != nil {
		t.Fatalf("failed to load images: %v", err)
	}
	var ids []uint
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	if !slices.Equal(ids, []uint{c.ID, a.ID, b.ID}) {
		t.Fatalf("expected stored order, got %v", ids)
	}
}

func TestAlbumSaveDeletesRemovedImages(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	a := fx.upload(t, "a.png", 8, 8)
	b := fx.upload(t, "b.png", 8, 8)

	album := &db.Album{}
	if err := fx.albums.Save(ctx, album, "album", &gallery.Compressed{IDs: []uint{a.ID, b.ID}}); err != nil {
		t.Fatalf("failed to save album: %v", err)
	}

	loaded, err := fx.albums.Get(ctx, album.ID)
	if err != nil {
		t.Fatalf("failed to load album: %v", err)
	}
	if err := fx.albums.Save(ctx, loaded, "album", &gallery.Compressed{IDs: []uint{a.ID}, Deleted: []uint{b.ID}}); err != nil {
		t.Fatalf("failed to update album: %v", err)
	}

	var remaining int64
	fx.db.Model(&db.BuiltInGalleryImage{}).Where("id = ?", b.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected deleted image row to be removed")
	}
	if exists, _ := fx.files.Exists(ctx, b.Image); exists {
		t.Fatalf("expected deleted image file to be removed")
	}
	if exists, _ := fx.files.Exists(ctx, a.Image); !exists {
		t.Fatalf("expected kept image file to remain")
	}
}

func TestAlbumValidationAndLookup(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	if err := fx.albums.Save(ctx, &db.Album{}, "   ", nil); !errors.Is(err, ErrAlbumTitleMissing) {
		t.Fatalf("expected ErrAlbumTitleMissing, got %v", err)
	}
	long := make([]rune, maxAlbumTitleLength+1)
	for i := range long {
		long[i] = '长'
	}
	if err := fx.albums.Save(ctx, &db.Album{}, string(long), nil); !errors.Is(err, ErrAlbumTitleTooLong) {
		t.Fatalf("expected ErrAlbumTitleTooLong, got %v", err)
	}
	if _, err := fx.albums.Get(ctx, 42); !errors.Is(err, ErrAlbumNotFound) {
		t.Fatalf("expected ErrAlbumNotFound, got %v", err)
	}
	if err := fx.albums.Delete(ctx, 42); !errors.Is(err, ErrAlbumNotFound) {
		t.Fatalf("expected ErrAlbumNotFound on delete, got %v", err)
	}
}

func TestAlbumListPaginates(t *testing.T) {
	fx := setupGalleryFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := fx.albums.Save(ctx, &db.Album{}, fmt.Sprintf("album %d", i), nil); err != nil {
			t.Fatalf("failed to save album: %v", err)
		}
	}

	result, err := fx.albums.List(ctx, AlbumFilter{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("failed to list albums: %v", err)
	}
	if result.Total != 5 || result.TotalPages != 3 || len(result.Items) != 2 {
		t.Fatalf("unexpected page %+v", result)
	}

	filtered, err := fx.albums.List(ctx, AlbumFilter{Search: "album 3"})
	if err != nil {
		t.Fatalf("failed to filter albums: %v", err)
	}
	if filtered.Total != 1 || filtered.Items[0].Title != "album 3" {
		t.Fatalf("unexpected filter result %+v", filtered)
	}

	if err := fx.albums.Delete(ctx, filtered.Items[0].ID); err != nil {
		t.Fatalf("failed to delete album: %v", err)
	}
	after, _ := fx.albums.List(ctx, AlbumFilter{})
	if after.Total != 4 {
		t.Fatalf("expected 4 albums after delete, got %d", after.Total)
	}
}
