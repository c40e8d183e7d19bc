package gallery

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Images is a read-only, order preserving view over the ids stored on one
// instance. It does not own the records it points to.
type Images struct {
	field *Field
	ids   IDs
}

// IDs returns a copy of the ids in display order.
func (im *Images) IDs() []uint {
	return append([]uint{}, im.ids...)
}

func (im *Images) Len() int { return len(im.ids) }

func (im *Images) At(i int) uint { return im.ids[i] }

func (im *Images) Contains(id uint) bool { return slices.Contains(im.ids, id) }

// Objects queries the target rows of the view, ordered like the stored ids.
func (im *Images) Objects(ctx context.Context) *gorm.DB {
	target := im.field.target
	q := target.Query(ctx, im.field.manager.db)
	if len(im.ids) == 0 {
		return q.Where("1 = 0")
	}
	return q.Where(target.WhereIDs(im.ids)).Order(OrderByIDs(target.PrimaryColumn(), im.ids))
}

// Records loads the target rows as pointers to the model type.
func (im *Images) Records(ctx context.Context) ([]any, error) {
	dest := im.field.target.NewSlice()
	if err := im.Objects(ctx).Find(dest).Error; err != nil {
		return nil, err
	}
	return records(dest), nil
}

// Find loads the target rows into T, which must be the model type or a pointer to it.
func Find[T any](ctx context.Context, im *Images) ([]T, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != im.field.target.typ {
		return nil, fmt.Errorf("gallery: cannot load %s rows into %s", im.field.target.typ.Name(), reflect.TypeFor[T]())
	}

	var out []T
	if err := im.Objects(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// OrderByIDs orders rows by the position of their column value in ids, using
// CASE column WHEN id0 THEN 0 WHEN id1 THEN 1 ... END.
func OrderByIDs(column string, ids []uint) clause.OrderBy {
	var sql strings.Builder
	vars := make([]any, 0, 2*len(ids)+1)

	sql.WriteString("CASE ?")
	vars = append(vars, clause.Column{Table: clause.CurrentTable, Name: column})

	seen := make(map[uint]bool, len(ids))
	for pos, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		sql.WriteString(" WHEN ? THEN ?")
		vars = append(vars, id, pos)
	}
	sql.WriteString(" END")

	return clause.OrderBy{Expression: clause.Expr{SQL: sql.String(), Vars: vars, WithoutParentheses: true}}
}
