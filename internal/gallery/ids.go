package gallery

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// IDs is the stored value of a gallery field: image ids in display order, kept
// as a JSON array in a single column. NULL reads back as an empty list.
type IDs []uint

// Scan implements sql.Scanner.
func (ids *IDs) Scan(value any) error {
	if value == nil {
		*ids = nil
		return nil
	}

	var raw datatypes.JSON
	if err := raw.Scan(value); err != nil {
		return fmt.Errorf("gallery: scan ids: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*ids = nil
		return nil
	}

	var out []uint
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("gallery: decode ids %s: %w", string(raw), err)
	}
	*ids = out
	return nil
}

// Value implements driver.Valuer. A nil list is stored as NULL.
func (ids IDs) Value() (driver.Value, error) {
	if ids == nil {
		return nil, nil
	}
	data, err := json.Marshal([]uint(ids))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data).Value()
}

// GormDataType implements schema.GormDataTypeInterface.
func (IDs) GormDataType() string {
	return "json"
}

// GormDBDataType delegates the column type to datatypes.JSON so each dialect gets
// its native JSON type.
func (IDs) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return datatypes.JSON{}.GormDBDataType(db, field)
}

// GormValue keeps NULL as NULL and routes non-empty values through datatypes.JSON.
func (ids IDs) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if ids == nil {
		return clause.Expr{SQL: "NULL"}
	}
	data, _ := json.Marshal([]uint(ids))
	return datatypes.JSON(data).GormValue(ctx, db)
}

// Clone returns an independent copy.
func (ids IDs) Clone() IDs {
	if ids == nil {
		return nil
	}
	out := make(IDs, len(ids))
	copy(out, ids)
	return out
}

// String renders the stored JSON form.
func (ids IDs) String() string {
	if ids == nil {
		return "[]"
	}
	data, _ := json.Marshal([]uint(ids))
	return string(data)
}
