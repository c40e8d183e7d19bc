package gallery

import (
	"fmt"
	"reflect"
	"sync"
)

var idsType = reflect.TypeOf(IDs(nil))

// Field binds a gallery IDs attribute of an owner model to a target image model.
type Field struct {
	manager *Manager
	name    string
	index   []int
	owner   reflect.Type
	target  *TargetModel
	null    bool

	cache *imageCache

	mu      sync.Mutex
	pending map[any]pendingChange
}

// pendingChange is the bookkeeping recorded by SaveFormData and consumed after
// the owner is saved.
type pendingChange struct {
	old     []uint
	deleted []uint
}

type fieldConfig struct {
	target string
	null   bool
}

// FieldOption customises a Field.
type FieldOption func(*fieldConfig)

// WithFieldTargetModel points the field at a registered target model key.
func WithFieldTargetModel(key string) FieldOption {
	return func(c *fieldConfig) { c.target = key }
}

// WithNull allows the column to hold NULL.
func WithNull(null bool) FieldOption {
	return func(c *fieldConfig) { c.null = null }
}

// NewField binds the IDs attribute name of owner (a struct or a pointer to one)
// and enrols owner in post-save bookkeeping.
func (m *Manager) NewField(owner any, name string, opts ...FieldOption) (*Field, error) {
	cfg := fieldConfig{target: m.defaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	ot := reflect.TypeOf(owner)
	for ot != nil && ot.Kind() == reflect.Pointer {
		ot = ot.Elem()
	}
	if ot == nil || ot.Kind() != reflect.Struct {
		return nil, improperlyConfigured("gallery field owner must be a struct, got %T", owner)
	}

	sf, ok := ot.FieldByName(name)
	if !ok {
		return nil, improperlyConfigured("%s has no field %q", ot.Name(), name)
	}
	if sf.Type != idsType {
		return nil, improperlyConfigured("%s.%s must be of type gallery.IDs, got %s", ot.Name(), name, sf.Type)
	}

	target, err := m.TargetModel(cfg.target)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", ot.Name(), name, err)
	}

	f := &Field{
		manager: m,
		name:    name,
		index:   sf.Index,
		owner:   ot,
		target:  target,
		null:    cfg.null,
		cache:   newImageCache(m.cacheSize),
		pending: make(map[any]pendingChange),
	}
	m.bind(f)
	return f, nil
}

// Name returns the Go name of the bound attribute.
func (f *Field) Name() string { return f.name }

// Target returns the target image model.
func (f *Field) Target() *TargetModel { return f.target }

// Check re-validates the target model against the registry.
func (f *Field) Check() []error {
	var errs []error
	target, err := f.manager.TargetModel(f.target.Key())
	if err != nil {
		errs = append(errs, err)
	} else if target != f.target {
		errs = append(errs, improperlyConfigured("%s.%s: target model %q was re-registered", f.owner.Name(), f.name, target.Key()))
	}
	return errs
}

func (f *Field) attr(instance any) (reflect.Value, error) {
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != f.owner {
		return reflect.Value{}, fmt.Errorf("gallery: field %s.%s expects *%s, got %T", f.owner.Name(), f.name, f.owner.Name(), instance)
	}
	return rv.Elem().FieldByIndex(f.index), nil
}

// Raw returns the stored ids of instance without materialising them.
func (f *Field) Raw(instance any) (IDs, error) {
	v, err := f.attr(instance)
	if err != nil {
		return nil, err
	}
	return v.Interface().(IDs), nil
}

// Images returns the order preserving view of instance's ids. The view is built
// on first access and reused until the stored ids change.
func (f *Field) Images(instance any) (*Images, error) {
	raw, err := f.Raw(instance)
	if err != nil {
		return nil, err
	}
	if images, ok := f.cache.get(instance, raw); ok {
		return images, nil
	}

	images := &Images{field: f, ids: raw.Clone()}
	if images.ids == nil {
		images.ids = IDs{}
	}
	f.cache.put(instance, raw.Clone(), images)
	return images, nil
}

// Set replaces the stored ids of instance and drops its cached view.
func (f *Field) Set(instance any, ids []uint) error {
	v, err := f.attr(instance)
	if err != nil {
		return err
	}
	if ids == nil && !f.null {
		ids = []uint{}
	}
	v.Set(reflect.ValueOf(IDs(ids).Clone()))
	f.cache.drop(instance)
	return nil
}

// Release forgets the cached view and any unsaved form bookkeeping of instance.
func (f *Field) Release(instance any) {
	f.cache.drop(instance)
	f.takePending(instance)
}

// SaveFormData records the current ids and the ids deleted in this submission,
// then stores value. The bookkeeping is consumed after the owner is saved.
func (f *Field) SaveFormData(instance any, value *Compressed) error {
	images, err := f.Images(instance)
	if err != nil {
		return err
	}
	if value == nil {
		value = &Compressed{}
	}

	f.mu.Lock()
	f.pending[instance] = pendingChange{
		old:     images.IDs(),
		deleted: append([]uint(nil), value.Deleted...),
	}
	f.mu.Unlock()

	return f.Set(instance, value.IDs)
}

// Pending returns the bookkeeping recorded for instance, if any.
func (f *Field) Pending(instance any) (old, deleted []uint, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change, ok := f.pending[instance]
	return change.old, change.deleted, ok
}

func (f *Field) takePending(instance any) (pendingChange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	change, ok := f.pending[instance]
	if ok {
		delete(f.pending, instance)
	}
	return change, ok
}

// FormField returns the form field editing this attribute. It is required unless
// an option says otherwise.
func (f *Field) FormField(opts ...FormFieldOption) (*FormField, error) {
	cfg := formFieldConfig{required: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newFormField(f.manager, f.target, f.owner.Name()+"."+f.name, cfg)
}
