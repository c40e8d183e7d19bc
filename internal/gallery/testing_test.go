package gallery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gallerywidget/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testImage struct {
	ID        uint `gorm:"primarykey"`
	Image     string
	Caption   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type testAlbum struct {
	ID     uint `gorm:"primarykey"`
	Title  string
	Photos IDs
}

type recordingRemover struct {
	mu      sync.Mutex
	removed []string
}

func (r *recordingRemover) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, name)
	return nil
}

func (r *recordingRemover) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&testImage{}, &testAlbum{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// setupManager registers testImage as the default target model and binds
// testAlbum.Photos.
func setupManager(t *testing.T, opts ...Option) (*Manager, *Field, *recordingRemover) {
	t.Helper()

	gdb := setupTestDB(t)
	remover := &recordingRemover{}
	opts = append([]Option{WithLogger(logger.Discard()), WithDefaultTargetModel("tests.TestImage")}, opts...)
	m := New(gdb, remover, opts...)

	if _, err := m.RegisterModel("tests.TestImage", &testImage{}); err != nil {
		t.Fatalf("failed to register target model: %v", err)
	}
	field, err := m.NewField(&testAlbum{}, "Photos")
	if err != nil {
		t.Fatalf("failed to bind field: %v", err)
	}
	if err := m.Install(); err != nil {
		t.Fatalf("failed to install callbacks: %v", err)
	}
	return m, field, remover
}

func seedImages(t *testing.T, gdb *gorm.DB, n int) []uint {
	t.Helper()

	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		img := testImage{Image: fmt.Sprintf("images/%d.jpg", i+1)}
		if err := gdb.Create(&img).Error; err != nil {
			t.Fatalf("failed to seed image: %v", err)
		}
		ids = append(ids, img.ID)
	}
	return ids
}

type staticReverser map[string]string

func (r staticReverser) Reverse(name string, _ map[string]string) (string, error) {
	if path, ok := r[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("no route named %q", name)
}
