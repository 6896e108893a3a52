package postgres

import (
	"reflect"
	"sync"
)

// Row structs map to tables through tags:
//
//	db:"name"    column name; "-" or no tag leaves the field out
//	insert:"-"   column the database assigns (identity, defaults); it is
//	             selected but never written by StructToMap
//
// Embedded structs contribute their columns in place.

// rowField locates one column inside a (possibly embedded) struct.
type rowField struct {
	path     []int
	column   string
	readOnly bool
}

// rowShapes caches the fields of each row type, keyed by reflect.Type.
var rowShapes sync.Map

func shapeOf(t reflect.Type) []rowField {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := rowShapes.Load(t); ok {
		return cached.([]rowField)
	}
	var fields []rowField
	if t.Kind() == reflect.Struct {
		fields = collectFields(t, nil)
	}
	rowShapes.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, prefix []int) []rowField {
	var fields []rowField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			fields = append(fields, collectFields(f.Type, path)...)
			continue
		}
		col := f.Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}
		fields = append(fields, rowField{path: path, column: col, readOnly: f.Tag.Get("insert") == "-"})
	}
	return fields
}

// ExtractDBColumns lists every column of T in field order, read-only ones
// included. Repositories compute it once for their SELECT lists.
func ExtractDBColumns[T any]() []string {
	fields := shapeOf(reflect.TypeFor[T]())
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// StructToMap returns the writable columns of a row struct (or pointer to
// one) with their values, ready for squirrel's SetMap. Non-struct values
// yield nil.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := shapeOf(rv.Type())
	res := make(map[string]any, len(fields))
	for _, f := range fields {
		if f.readOnly {
			continue
		}
		res[f.column] = rv.FieldByIndex(f.path).Interface()
	}
	return res
}
