package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the "db" tags of T, embedded structs included,
// in declaration order. Repositories call it once at construction.
func ExtractDBColumns[T any]() []string {
	var zero T
	return columnsOf(reflect.TypeOf(zero))
}

func columnsOf(t reflect.Type) []string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous {
			cols = append(cols, columnsOf(f.Type)...)
			continue
		}
		if tag := f.Tag.Get("db"); tag != "" && tag != "-" {
			cols = append(cols, tag)
		}
	}
	return cols
}

type taggedField struct {
	index int
	name  string
}

type structLayout struct {
	fields   []taggedField
	embedded []int
}

var layouts sync.Map // reflect.Type -> *structLayout

func layoutOf(t reflect.Type) *structLayout {
	if cached, ok := layouts.Load(t); ok {
		return cached.(*structLayout)
	}

	l := &structLayout{}
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous {
			l.embedded = append(l.embedded, i)
			continue
		}
		if tag := f.Tag.Get("db"); tag != "" && tag != "-" {
			l.fields = append(l.fields, taggedField{index: i, name: tag})
		}
	}
	layouts.Store(t, l)
	return l
}

// StructToMap maps the "db" tagged fields of v (a struct or pointer to
// one) to their values, for squirrel SetMap.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	l := layoutOf(rv.Type())
	out := make(map[string]any, len(l.fields))
	for _, f := range l.fields {
		out[f.name] = rv.Field(f.index).Interface()
	}
	for _, i := range l.embedded {
		for k, val := range StructToMap(rv.Field(i).Interface()) {
			out[k] = val
		}
	}
	return out
}

// pick keeps the entries of data named in cols.
func pick(data map[string]any, cols []string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		if v, ok := data[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Pick keeps the columns of v named in cols.
func Pick(v any, cols ...string) map[string]any {
	return pick(StructToMap(v), cols)
}
