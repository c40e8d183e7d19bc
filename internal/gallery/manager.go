// Package gallery implements a model field that stores an ordered list of image ids,
// the form field and widget that edit it, and the post-save bookkeeping that removes
// images dropped from a gallery.
package gallery

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// DefaultTargetModel is the key of the built-in image model.
const DefaultTargetModel = "gallery.BuiltInGalleryImage"

const (
	callbackName       = "gallery:manage_images"
	defaultCacheSize   = 4096
	checkFormFieldI001 = "gallery_form_field.I001"
)

// FileRemover deletes stored image files. storage.Storage satisfies it.
type FileRemover interface {
	Delete(ctx context.Context, name string) error
}

// URLReverser resolves a route name into a path.
type URLReverser interface {
	Reverse(name string, params map[string]string) (string, error)
}

// Manager owns the target model registry and the fields bound to owner models.
type Manager struct {
	db           *gorm.DB
	files        FileRemover
	log          *slog.Logger
	reverser     URLReverser
	defaultModel string
	cacheSize    int
	silenced     map[string]bool
	schemas      sync.Map

	mu        sync.RWMutex
	models    map[string]*TargetModel
	owners    map[reflect.Type][]*Field
	installed bool
}

// Option customises a Manager.
type Option func(*Manager)

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithURLReverser(r URLReverser) Option {
	return func(m *Manager) { m.reverser = r }
}

// WithDefaultTargetModel overrides the model used when a field names none.
func WithDefaultTargetModel(key string) Option {
	return func(m *Manager) {
		if key = strings.TrimSpace(key); key != "" {
			m.defaultModel = key
		}
	}
}

// WithCacheSize bounds the number of materialised Images kept per field.
func WithCacheSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.cacheSize = n
		}
	}
}

// WithSilencedChecks hides informational notices such as "gallery_form_field.I001".
func WithSilencedChecks(ids ...string) Option {
	return func(m *Manager) {
		for _, id := range ids {
			m.silenced[id] = true
		}
	}
}

// New creates a Manager. files may be nil, in which case rows are deleted but
// their files are left in place.
func New(db *gorm.DB, files FileRemover, opts ...Option) *Manager {
	m := &Manager{
		db:           db,
		files:        files,
		log:          slog.Default(),
		defaultModel: DefaultTargetModel,
		cacheSize:    defaultCacheSize,
		silenced:     make(map[string]bool),
		models:       make(map[string]*TargetModel),
		owners:       make(map[reflect.Type][]*Field),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DB returns the database the manager queries.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// DefaultTargetModel returns the key used when a field names no model.
func (m *Manager) DefaultTargetModel() string {
	return m.defaultModel
}

// Reverser returns the configured URL reverser, if any.
func (m *Manager) Reverser() URLReverser {
	return m.reverser
}

// RegisterModel adds model (a pointer to a struct) to the registry under key.
func (m *Manager) RegisterModel(key string, model any) (*TargetModel, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, improperlyConfigured("target model key must not be empty")
	}

	sch, err := schema.Parse(model, &m.schemas, m.db.NamingStrategy)
	if err != nil {
		return nil, improperlyConfigured("target model %q cannot be parsed: %v", key, err)
	}
	target, err := newTargetModel(key, model, sch)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.models[key]; ok && existing.typ != target.typ {
		return nil, improperlyConfigured("target model %q is already registered as %s", key, existing.typ)
	}
	m.models[key] = target
	return target, nil
}

// TargetModel resolves a registered key.
func (m *Manager) TargetModel(key string) (*TargetModel, error) {
	if strings.TrimSpace(key) == "" {
		key = m.defaultModel
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	target, ok := m.models[key]
	if !ok {
		return nil, improperlyConfigured("target model %q is not registered", key)
	}
	return target, nil
}

func (m *Manager) bind(f *Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[f.owner] = append(m.owners[f.owner], f)
}

func (m *Manager) fieldsFor(t reflect.Type) []*Field {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owners[t]
}

func (m *Manager) notice(id, msg string, args ...any) {
	if m.silenced[id] {
		return
	}
	m.log.Info(msg, append([]any{"check", id}, args...)...)
}

// ModelName returns the type part of a key such as "gallery.BuiltInGalleryImage".
func ModelName(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[i+1:]
	}
	return key
}

// UploadURLName is the route name of the upload view serving key.
func UploadURLName(key string) string {
	return strings.ToLower(ModelName(key)) + "-upload"
}

// FetchURLName is the route name of the list view serving key.
func FetchURLName(key string) string {
	return strings.ToLower(ModelName(key)) + "-fetch"
}

// CropURLName is the route name of the crop view serving key.
func CropURLName(key string) string {
	return strings.ToLower(ModelName(key)) + "-crop"
}
