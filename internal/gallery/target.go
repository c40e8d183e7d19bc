package gallery

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ImageFieldProvider lets a target model name its image attribute explicitly.
type ImageFieldProvider interface {
	GalleryImageField() string
}

const imageTag = "image"

// TargetModel is a registered image model: the record type gallery ids point to.
type TargetModel struct {
	key       string
	typ       reflect.Type
	schema    *schema.Schema
	primary   *schema.Field
	image     *schema.Field
	autoTimes []*schema.Field
}

func newTargetModel(key string, model any, sch *schema.Schema) (*TargetModel, error) {
	t := &TargetModel{key: key, typ: sch.ModelType, schema: sch}

	if sch.PrioritizedPrimaryField == nil {
		return nil, improperlyConfigured("target model %q must have a single primary key", key)
	}
	t.primary = sch.PrioritizedPrimaryField

	image, err := lookupImageField(key, model, sch)
	if err != nil {
		return nil, err
	}
	t.image = image

	for _, f := range sch.Fields {
		if f.AutoCreateTime > 0 || f.AutoUpdateTime > 0 {
			t.autoTimes = append(t.autoTimes, f)
		}
	}
	return t, nil
}

func lookupImageField(key string, model any, sch *schema.Schema) (*schema.Field, error) {
	var found *schema.Field

	if provider, ok := model.(ImageFieldProvider); ok {
		name := provider.GalleryImageField()
		found = sch.LookUpField(name)
		if found == nil {
			return nil, improperlyConfigured("target model %q: GalleryImageField() names unknown field %q", key, name)
		}
	} else {
		var tagged []*schema.Field
		for _, f := range sch.Fields {
			if f.StructField.Tag.Get("gallery") == imageTag {
				tagged = append(tagged, f)
			}
		}
		switch len(tagged) {
		case 0:
			found = sch.LookUpField("Image")
		case 1:
			found = tagged[0]
		default:
			return nil, improperlyConfigured("target model %q has %d fields tagged gallery:\"image\", expected exactly one", key, len(tagged))
		}
		if found == nil {
			return nil, improperlyConfigured("target model %q has no image field: add an Image field, tag one field gallery:\"image\" or implement GalleryImageField()", key)
		}
	}

	if found.FieldType.Kind() != reflect.String {
		return nil, improperlyConfigured("target model %q: image field %s must be a string, got %s", key, found.Name, found.FieldType)
	}
	if found.DBName == "" {
		return nil, improperlyConfigured("target model %q: image field %s is not persisted", key, found.Name)
	}
	return found, nil
}

// Key returns the registry key.
func (t *TargetModel) Key() string { return t.key }

// Name returns the model name without its prefix.
func (t *TargetModel) Name() string { return ModelName(t.key) }

// Type returns the struct type of the model.
func (t *TargetModel) Type() reflect.Type { return t.typ }

// ImageFieldName returns the Go name of the image attribute.
func (t *TargetModel) ImageFieldName() string { return t.image.Name }

// ImageColumn returns the column storing the image name.
func (t *TargetModel) ImageColumn() string { return t.image.DBName }

// PrimaryColumn returns the primary key column.
func (t *TargetModel) PrimaryColumn() string { return t.primary.DBName }

// New returns a pointer to a zero record.
func (t *TargetModel) New() any {
	return reflect.New(t.typ).Interface()
}

// NewSlice returns a pointer to an empty []*Model, ready for Find.
func (t *TargetModel) NewSlice() any {
	return reflect.New(reflect.SliceOf(reflect.PointerTo(t.typ))).Interface()
}

func (t *TargetModel) value(record any) (reflect.Value, error) {
	rv := reflect.ValueOf(record)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != t.typ {
		return reflect.Value{}, fmt.Errorf("gallery: expected *%s, got %T", t.typ.Name(), record)
	}
	return rv.Elem(), nil
}

// ID returns the primary key of record.
func (t *TargetModel) ID(record any) (uint, error) {
	rv, err := t.value(record)
	if err != nil {
		return 0, err
	}
	pk := rv.FieldByIndex(t.primary.StructField.Index)
	switch pk.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uint(pk.Uint()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if pk.Int() < 0 {
			return 0, fmt.Errorf("gallery: negative primary key %d", pk.Int())
		}
		return uint(pk.Int()), nil
	}
	return 0, fmt.Errorf("gallery: primary key of %s is not an integer", t.typ.Name())
}

// Image returns the stored file name of record.
func (t *TargetModel) Image(record any) (string, error) {
	rv, err := t.value(record)
	if err != nil {
		return "", err
	}
	return rv.FieldByIndex(t.image.StructField.Index).String(), nil
}

// SetImage assigns the stored file name of record.
func (t *TargetModel) SetImage(record any, name string) error {
	rv, err := t.value(record)
	if err != nil {
		return err
	}
	rv.FieldByIndex(t.image.StructField.Index).SetString(name)
	return nil
}

// Clone copies record with its primary key and automatic timestamps cleared, so
// saving the copy inserts a new row.
func (t *TargetModel) Clone(record any) (any, error) {
	rv, err := t.value(record)
	if err != nil {
		return nil, err
	}
	out := reflect.New(t.typ)
	out.Elem().Set(rv)

	pk := out.Elem().FieldByIndex(t.primary.StructField.Index)
	pk.Set(reflect.Zero(pk.Type()))
	for _, f := range t.autoTimes {
		v := out.Elem().FieldByIndex(f.StructField.Index)
		v.Set(reflect.Zero(v.Type()))
	}
	return out.Interface(), nil
}

// Query starts a statement against the model's table.
func (t *TargetModel) Query(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).Model(t.New())
}

// WhereIDs is an "pk IN (...)" condition.
func (t *TargetModel) WhereIDs(ids []uint) clause.Expression {
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	return clause.IN{Column: clause.Column{Table: clause.CurrentTable, Name: t.PrimaryColumn()}, Values: values}
}

// Existing reports which of ids have a row.
func (t *TargetModel) Existing(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]bool, error) {
	found := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var rows []uint
	if err := t.Query(ctx, db).Where(t.WhereIDs(ids)).Pluck(t.PrimaryColumn(), &rows).Error; err != nil {
		return nil, err
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

// Get loads one record by primary key.
func (t *TargetModel) Get(ctx context.Context, db *gorm.DB, id uint) (any, error) {
	record := t.New()
	if err := db.WithContext(ctx).Where(t.WhereIDs([]uint{id})).First(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// Find loads every record whose key is in ids, in the order given by ids.
func (t *TargetModel) Find(ctx context.Context, db *gorm.DB, ids []uint) ([]any, error) {
	if len(ids) == 0 {
		return []any{}, nil
	}
	dest := t.NewSlice()
	if err := t.Query(ctx, db).Where(t.WhereIDs(ids)).Order(OrderByIDs(t.PrimaryColumn(), ids)).Find(dest).Error; err != nil {
		return nil, err
	}
	return records(dest), nil
}

func records(slicePtr any) []any {
	rv := reflect.ValueOf(slicePtr).Elem()
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
