package reflection

import (
	"fmt"
	"reflect"
)

// ObjectFactory creates the result objects the materializer fills in
type ObjectFactory interface {
	// Create returns a new instance for t. Struct types produce pointers.
	Create(t reflect.Type) (any, error)
	IsCollection(t reflect.Type) bool
}

// DefaultObjectFactory creates zero values: *T for structs, empty maps and
// slices, and map[string]any for the empty interface
type DefaultObjectFactory struct{}

func (DefaultObjectFactory) Create(t reflect.Type) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot create an instance of a nil type")
	}
	switch t.Kind() {
	case reflect.Struct:
		return reflect.New(t).Interface(), nil
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return reflect.New(t.Elem()).Interface(), nil
		}
	case reflect.Map:
		return reflect.MakeMap(t).Interface(), nil
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface(), nil
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return map[string]any{}, nil
		}
	}
	return nil, fmt.Errorf("do not know how to create an instance of %s", t)
}

func (DefaultObjectFactory) IsCollection(t reflect.Type) bool {
	return IsCollection(t)
}

// IsCollection reports whether t is a slice or array other than []byte
func IsCollection(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}
