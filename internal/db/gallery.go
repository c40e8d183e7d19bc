package db

import (
	"github.com/gallerywidget/internal/gallery"
	"gorm.io/gorm"
)

// BuiltInGalleryImage 是默认的图片模型，相册字段中的 id 默认指向它。
type BuiltInGalleryImage struct {
	gorm.Model
	Image     string `gorm:"size:250;not null" gallery:"image"`
	CreatorIP string `gorm:"size:64"`
}

// Album 是使用相册字段的示例模型，Images 按展示顺序保存图片 id。
type Album struct {
	gorm.Model
	Title  string      `gorm:"size:200;not null"`
	Images gallery.IDs `gorm:"type:json"`
}
