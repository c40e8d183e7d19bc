package gallery

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"gorm.io/gorm"
)

// Install registers the post-save callback that deletes images removed through a
// gallery form. It runs after the create or update transaction commits.
func (m *Manager) Install() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installed {
		return nil
	}

	cb := m.db.Callback()
	if err := cb.Create().After("gorm:commit_or_rollback_transaction").Register(callbackName, m.afterSave); err != nil {
		return fmt.Errorf("register create callback: %w", err)
	}
	if err := cb.Update().After("gorm:commit_or_rollback_transaction").Register(callbackName, m.afterSave); err != nil {
		return fmt.Errorf("register update callback: %w", err)
	}
	m.installed = true
	return nil
}

func (m *Manager) afterSave(tx *gorm.DB) {
	if tx.Error != nil || tx.Statement.Schema == nil {
		return
	}
	fields := m.fieldsFor(tx.Statement.Schema.ModelType)
	if len(fields) == 0 {
		return
	}

	ctx := tx.Statement.Context
	for _, instance := range instances(tx.Statement.ReflectValue) {
		for _, f := range fields {
			if err := f.manageImages(ctx, instance); err != nil {
				tx.AddError(err)
			}
		}
	}
}

// instances returns addressable owner pointers held by a statement's value.
func instances(rv reflect.Value) []any {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return instances(rv.Elem())
	case reflect.Struct:
		if rv.CanAddr() {
			return []any{rv.Addr().Interface()}
		}
	case reflect.Slice, reflect.Array:
		var out []any
		for i := 0; i < rv.Len(); i++ {
			out = append(out, instances(rv.Index(i))...)
		}
		return out
	}
	return nil
}

// manageImages deletes the rows (and files) the user removed from instance's
// gallery, provided they are not part of the saved ids.
func (f *Field) manageImages(ctx context.Context, instance any) error {
	change, ok := f.takePending(instance)
	if !ok {
		return nil
	}
	f.cache.drop(instance)

	current, err := f.Raw(instance)
	if err != nil {
		return err
	}

	var doomed []uint
	for _, id := range change.deleted {
		if !slices.Contains(current, id) && !slices.Contains(doomed, id) {
			doomed = append(doomed, id)
		}
	}
	for _, id := range change.old {
		if !slices.Contains(current, id) && !slices.Contains(change.deleted, id) {
			f.manager.log.Debug("image left the gallery without being deleted", "field", f.name, "image_id", id)
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	m := f.manager
	rows, err := f.target.Find(ctx, m.db, doomed)
	if err != nil {
		return fmt.Errorf("gallery: load removed images: %w", err)
	}

	for _, row := range rows {
		name, err := f.target.Image(row)
		if err != nil || name == "" || m.files == nil {
			continue
		}
		if err := m.files.Delete(ctx, name); err != nil {
			m.log.Warn("failed to delete image file", "file", name, "error", err)
		}
	}

	if err := m.db.WithContext(ctx).Unscoped().Where(f.target.WhereIDs(doomed)).Delete(f.target.New()).Error; err != nil {
		return fmt.Errorf("gallery: delete removed images: %w", err)
	}
	m.log.Info("removed gallery images", "owner", f.owner.Name(), "field", f.name, "image_ids", doomed)
	return nil
}
