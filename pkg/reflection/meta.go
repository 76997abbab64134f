package reflection

import (
	"fmt"
	"reflect"
	"strings"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

type objectKind int

const (
	nilObject objectKind = iota
	structObject
	mapObject
	scalarObject
)

// MetaObject gives name based access to the properties of a struct pointer
// or a string keyed map. Paths may be dotted ("author.username"); missing
// intermediate objects read as nil and are created on write.
type MetaObject struct {
	original any
	value    reflect.Value
	kind     objectKind
	factory  ObjectFactory
}

// Forward wraps obj with the default object factory
func Forward(obj any) *MetaObject {
	return ForwardWith(obj, DefaultObjectFactory{})
}

// ForwardWith wraps obj, using factory to create missing intermediates
func ForwardWith(obj any, factory ObjectFactory) *MetaObject {
	m := &MetaObject{original: obj, factory: factory}
	if obj == nil {
		return m
	}

	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return m
		}
		rv = rv.Elem()
	}

	switch {
	case rv.Kind() == reflect.Struct && !HasConverter(rv.Type()):
		if !rv.CanAddr() {
			cp := reflect.New(rv.Type()).Elem()
			cp.Set(rv)
			rv = cp
		}
		m.kind = structObject
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		m.kind = mapObject
	default:
		m.kind = scalarObject
	}
	m.value = rv
	return m
}

// Original returns the wrapped object
func (m *MetaObject) Original() any { return m.original }

// IsNil reports whether the wrapped object is nil
func (m *MetaObject) IsNil() bool { return m.kind == nilObject }

// IsMap reports whether the wrapped object is a map
func (m *MetaObject) IsMap() bool { return m.kind == mapObject }

// PropertyNames lists settable top-level names: exported fields of a struct
// or the current keys of a map
func (m *MetaObject) PropertyNames() []string {
	switch m.kind {
	case structObject:
		return append([]string(nil), infoOf(m.value.Type()).names...)
	case mapObject:
		names := make([]string, 0, m.value.Len())
		for _, k := range m.value.MapKeys() {
			names = append(names, k.String())
		}
		return names
	}
	return nil
}

// FindProperty resolves a column name to a property name, or "" when none
// matches. Struct fields match by Go name, db tag or snake_case name, case
// insensitively; underscoreToCamel also ignores underscores.
func (m *MetaObject) FindProperty(name string, underscoreToCamel bool) string {
	switch m.kind {
	case structObject:
		head, rest, nested := strings.Cut(name, ".")
		prop := infoOf(m.value.Type()).find(head, underscoreToCamel)
		if prop == "" || !nested {
			return prop
		}
		child := m.childMeta(prop)
		if child == nil {
			return ""
		}
		if sub := child.FindProperty(rest, underscoreToCamel); sub != "" {
			return prop + "." + sub
		}
		return ""
	case mapObject:
		return name
	}
	return ""
}

// HasGetter reports whether path can be read
func (m *MetaObject) HasGetter(path string) bool {
	_, err := m.GetterType(path)
	return err == nil
}

// HasSetter reports whether path can be written
func (m *MetaObject) HasSetter(path string) bool {
	_, err := m.SetterType(path)
	return err == nil
}

// GetterType returns the declared type of path
func (m *MetaObject) GetterType(path string) (reflect.Type, error) {
	return m.SetterType(path)
}

// SetterType returns the type a value must have to be stored at path
func (m *MetaObject) SetterType(path string) (reflect.Type, error) {
	switch m.kind {
	case structObject:
		return typeAtPath(m.value.Type(), path)
	case mapObject:
		head, rest, nested := strings.Cut(path, ".")
		if !nested {
			return m.value.Type().Elem(), nil
		}
		child := m.childMeta(head)
		if child == nil {
			return anyType, nil
		}
		return child.SetterType(rest)
	}
	return nil, fmt.Errorf("no property %q on %T", path, m.original)
}

func typeAtPath(t reflect.Type, path string) (reflect.Type, error) {
	head, rest, nested := strings.Cut(path, ".")
	fi, ok := infoOf(t).field(head)
	if !ok {
		return nil, fmt.Errorf("no property %q on %s", head, t)
	}
	if !nested {
		return fi.typ, nil
	}
	inner := indirectType(fi.typ)
	switch {
	case inner.Kind() == reflect.Struct:
		return typeAtPath(inner, rest)
	case inner.Kind() == reflect.Map, inner.Kind() == reflect.Interface:
		return anyType, nil
	}
	return nil, fmt.Errorf("no property %q on %s", rest, inner)
}

// GetValue reads the value at path
func (m *MetaObject) GetValue(path string) (any, error) {
	head, rest, nested := strings.Cut(path, ".")
	v, err := m.get(head)
	if err != nil || !nested {
		return v, err
	}
	if v == nil {
		return nil, nil
	}
	return ForwardWith(v, m.factory).GetValue(rest)
}

func (m *MetaObject) get(name string) (any, error) {
	switch m.kind {
	case nilObject:
		return nil, nil
	case structObject:
		fv, err := m.field(name, false)
		if err != nil {
			return nil, err
		}
		if !fv.IsValid() {
			return nil, nil
		}
		return valueOrNil(fv), nil
	case mapObject:
		v := m.value.MapIndex(reflect.ValueOf(name).Convert(m.value.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return valueOrNil(v), nil
	}
	return nil, fmt.Errorf("no property %q on %T", name, m.original)
}

// SetValue writes value at path, converting it to the property type and
// creating missing intermediate objects
func (m *MetaObject) SetValue(path string, value any) error {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return m.set(head, value)
	}

	child, err := m.addressable(head)
	if err != nil {
		return err
	}
	if child == nil {
		t, err := m.SetterType(head)
		if err != nil {
			return err
		}
		if t == anyType {
			t = reflect.TypeOf(map[string]any{})
		}
		if child, err = m.factory.Create(t); err != nil {
			return err
		}
		if err := m.set(head, child); err != nil {
			return err
		}
		// re-read so value-typed struct fields are written in place
		if child, err = m.addressable(head); err != nil {
			return err
		}
	}
	return ForwardWith(child, m.factory).SetValue(rest, value)
}

func (m *MetaObject) addressable(name string) (any, error) {
	if m.kind == structObject {
		fv, err := m.field(name, true)
		if err != nil {
			return nil, err
		}
		if !fv.IsValid() {
			return nil, nil
		}
		if fv.Kind() == reflect.Struct && !HasConverter(fv.Type()) {
			return fv.Addr().Interface(), nil
		}
		return valueOrNil(fv), nil
	}
	return m.get(name)
}

func (m *MetaObject) set(name string, value any) error {
	switch m.kind {
	case structObject:
		fv, err := m.field(name, true)
		if err != nil {
			return err
		}
		v, err := assignable(value, fv.Type())
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		fv.Set(v)
		return nil
	case mapObject:
		v, err := assignable(value, m.value.Type().Elem())
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		if m.value.IsNil() {
			return fmt.Errorf("cannot set %q on a nil map", name)
		}
		m.value.SetMapIndex(reflect.ValueOf(name).Convert(m.value.Type().Key()), v)
		return nil
	}
	return fmt.Errorf("no writable property %q on %T", name, m.original)
}

// Field returns the addressable field behind a top-level struct property
func (m *MetaObject) Field(name string) (reflect.Value, error) {
	if m.kind != structObject {
		return reflect.Value{}, fmt.Errorf("no field %q on %T", name, m.original)
	}
	return m.field(name, true)
}

// Append adds elem to the collection at name, creating it when nil
func (m *MetaObject) Append(name string, elem any) error {
	switch m.kind {
	case structObject:
		fv, err := m.field(name, true)
		if err != nil {
			return err
		}
		switch {
		case fv.Kind() == reflect.Slice && IsCollection(fv.Type()):
			ev, err := assignable(elem, fv.Type().Elem())
			if err != nil {
				return fmt.Errorf("property %s: %w", name, err)
			}
			fv.Set(reflect.Append(fv, ev))
			return nil
		case fv.Kind() == reflect.Interface:
			list, _ := valueOrNil(fv).([]any)
			fv.Set(reflect.ValueOf(append(list, elem)))
			return nil
		}
		return fmt.Errorf("property %s of %s is not a collection", name, m.value.Type())
	case mapObject:
		current, _ := m.get(name)
		list, _ := current.([]any)
		return m.set(name, append(list, elem))
	}
	return fmt.Errorf("no collection %q on %T", name, m.original)
}

func (m *MetaObject) childMeta(name string) *MetaObject {
	v, err := m.get(name)
	if err != nil {
		return nil
	}
	if v == nil && m.kind == structObject {
		fi, ok := infoOf(m.value.Type()).field(name)
		if !ok {
			return nil
		}
		if inner := indirectType(fi.typ); inner.Kind() == reflect.Struct {
			return ForwardWith(reflect.New(inner).Interface(), m.factory)
		}
		return nil
	}
	return ForwardWith(v, m.factory)
}

// field walks the field index, allocating nil embedded pointers when alloc
// is set. An invalid value with a nil error means an embedded pointer on the
// way is nil.
func (m *MetaObject) field(name string, alloc bool) (reflect.Value, error) {
	fi, ok := infoOf(m.value.Type()).field(name)
	if !ok {
		return reflect.Value{}, fmt.Errorf("no property %q on %s", name, m.value.Type())
	}
	v := m.value
	for i, idx := range fi.index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, nil
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v, nil
}

func valueOrNil(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

// assignable adapts value to a reflect.Value settable into type t
func assignable(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Kind() == reflect.Pointer && rv.Type().Elem() == t {
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		return rv.Elem(), nil
	}
	if t.Kind() == reflect.Pointer && rv.Type() == t.Elem() {
		p := reflect.New(t.Elem())
		p.Elem().Set(rv)
		return p, nil
	}
	converted, err := Convert(value, t)
	if err != nil {
		return reflect.Value{}, err
	}
	if converted == nil {
		return reflect.Zero(t), nil
	}
	return reflect.ValueOf(converted), nil
}
