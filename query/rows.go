package query

import (
	"fmt"
	"reflect"

	"github.com/mitranim/refut"
)

// RowFromStruct reads a struct's `db`-tagged fields into a Row. Embedded
// structs are flattened; fields without a tag or tagged "-" are skipped.
func RowFromStruct(input any) (Row, error) {
	rval := reflect.ValueOf(input)
	if !rval.IsValid() {
		return nil, fmt.Errorf("row from struct: nil input")
	}
	rtype := refut.RtypeDeref(rval.Type())
	if rtype.Kind() != reflect.Struct {
		return nil, fmt.Errorf("row from struct: expected struct, got %s", rtype)
	}
	if refut.IsRvalNil(rval) {
		return nil, fmt.Errorf("row from struct: nil %s", rval.Type())
	}
	rval = reflect.Indirect(rval)

	row := Row{}
	err := refut.TraverseStructRval(rval, func(rval reflect.Value, sfield reflect.StructField, _ []int) error {
		name := refut.TagIdent(sfield.Tag.Get("db"))
		if name == "" {
			return nil
		}
		row[name] = rval.Interface()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("row from struct %s: %w", rtype, err)
	}
	return row, nil
}

// InsertStructs inserts one row per struct, see RowFromStruct.
func (b Builder) InsertStructs(structs ...any) (Builder, error) {
	rows := make([]Row, len(structs))
	for i, s := range structs {
		r, err := RowFromStruct(s)
		if err != nil {
			return b, err
		}
		rows[i] = r
	}
	return b.Insert(rows...), nil
}
