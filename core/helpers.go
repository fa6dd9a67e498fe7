// Package core provides the building blocks of the smartrecord engine.
// This file contains helper functions for reflection, row mapping, and
// common value transformations.
package core

import (
	"reflect"
	"strings"
	"unsafe"
)

// foldName normalizes attribute names for case-insensitive lookup.
func foldName(name string) string { return strings.ToLower(name) }

// likeEscape escapes LIKE wildcards in a literal value so it can be
// embedded into a pattern.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// offsetOf returns the memory offset of a struct field selected by the
// given selector function.
//
// Example:
//
//	offset := offsetOf(func(u *User) *string { return &u.Name })
func offsetOf[T any, F any](selector func(*T) *F) uintptr {
	var zero T
	base := uintptr(unsafe.Pointer(&zero))
	ptr := selector(&zero)
	return uintptr(unsafe.Pointer(ptr)) - base
}

// fieldNameFromSelectorFor resolves the Go struct field name from a
// selector function of the form func(*T) *F.
//
// Panics if the argument is not a function, or if the function does not
// return a field pointer. Selector misuse is a programming error, not a
// runtime condition.
func fieldNameFromSelectorFor[T any](selector any) string {
	if selector == nil {
		return ""
	}
	selectorValue := reflect.ValueOf(selector)
	if selectorValue.Kind() != reflect.Func {
		panic("core: selector must be a function")
	}

	var zero T
	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	arg := reflect.New(typ) // *T

	out := selectorValue.Call([]reflect.Value{arg})
	if len(out) == 0 {
		panic("core: selector must return a pointer to a field")
	}
	ret := out[0]
	if ret.Kind() == reflect.Interface {
		ret = ret.Elem()
	}
	if ret.Kind() != reflect.Pointer {
		panic("core: selector must return a pointer to a field")
	}

	// offset of the returned pointer relative to *T
	basePtr := arg.Pointer()
	fieldPtr := ret.Pointer()
	offset := uintptr(fieldPtr - basePtr)

	for _, sf := range reflect.VisibleFields(typ) {
		if sf.Offset == offset {
			return sf.Name
		}
	}
	panic("core: selector does not select a field of the expected struct")
}

// populateStruct maps a raw row into a struct instance according to the
// model's columns, with support for:
//  1. Exact type matching
//  2. Value → pointer conversions (e.g. time.Time → *time.Time)
//  3. Pointer → value conversions (e.g. *time.Time → time.Time)
//  4. Convertible types (e.g. int64 → int)
//
// value must be an addressable struct value of the model's type.
func populateStruct(meta *ModelMeta, value reflect.Value, row Row) {
	for _, column := range meta.Columns {
		rowValue, ok := row[column.DatabaseColumnName]
		if !ok {
			continue
		}
		field := value.FieldByName(column.StructFieldName)
		if !field.IsValid() || !field.CanSet() {
			continue
		}

		if rowValue == nil {
			if field.Kind() == reflect.Pointer {
				field.Set(reflect.Zero(field.Type()))
			}
			continue
		}

		rv := reflect.ValueOf(rowValue)

		// 1) exact type match
		if rv.Type().AssignableTo(field.Type()) {
			field.Set(rv)
			continue
		}

		// 2) value → pointer
		if field.Kind() == reflect.Pointer && rv.Type().AssignableTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv)
			field.Set(ptr)
			continue
		}

		// 3) pointer → value
		if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem().AssignableTo(field.Type()) {
			field.Set(rv.Elem())
			continue
		}

		// 4) convertible types
		if rv.Type().ConvertibleTo(field.Type()) {
			field.Set(rv.Convert(field.Type()))
			continue
		}
		if field.Kind() == reflect.Pointer && rv.Type().ConvertibleTo(field.Type().Elem()) {
			ptr := reflect.New(field.Type().Elem())
			ptr.Elem().Set(rv.Convert(field.Type().Elem()))
			field.Set(ptr)
			continue
		}
	}
}

// structRow extracts column values from a struct instance into a Row
// keyed by database column names. Nil pointers become nil values.
func structRow(meta *ModelMeta, doc any) Row {
	value := reflect.ValueOf(doc)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}

	row := make(Row, len(meta.Columns))
	for _, column := range meta.Columns {
		fv := value.FieldByName(column.StructFieldName)
		if !fv.IsValid() {
			continue
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				row[column.DatabaseColumnName] = nil
			} else {
				row[column.DatabaseColumnName] = fv.Elem().Interface()
			}
			continue
		}
		row[column.DatabaseColumnName] = fv.Interface()
	}
	return row
}

// fieldValue reads a struct field of an instance by struct field name,
// dereferencing one pointer level. Returns nil for nil pointers.
func fieldValue(instance reflect.Value, structFieldName string) any {
	value := instance
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	field := value.FieldByName(structFieldName)
	if !field.IsValid() {
		return nil
	}
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil
		}
		field = field.Elem()
	}
	return field.Interface()
}

// isZeroValue reports whether an instance's column holds its type's
// zero value. Used to decide between insert and update on save.
func isZeroValue(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// keyOf normalizes a key value for map equality: integer widths
// collapse to int64, unsigned to uint64, floats to float64 and byte
// slices to string, so keys read from a driver match keys read from a
// struct field.
func keyOf(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return keyOf(rv.Elem().Interface())
	}
	return v
}
