package cache

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrCyclicValue is returned when a value graph references itself and
	// cannot be copied through serialization
	ErrCyclicValue = errors.New("cache value contains a reference cycle")

	// ErrUnknownType is returned when decoding a value whose type was never
	// registered in this process
	ErrUnknownType = errors.New("cache value type not registered")
)

var types = xsync.NewMapOf[string, reflect.Type]()

// RegisterType makes the dynamic type of sample decodable and returns the
// name it is stored under. Encoding registers types automatically, so this
// is only needed when a process decodes values another process wrote.
func RegisterType(sample any) string {
	t := reflect.TypeOf(sample)
	name := typeName(t)
	types.LoadOrStore(name, t)
	return name
}

func typeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

type envelope struct {
	Type  string             `msgpack:"t,omitempty"`
	Data  msgpack.RawMessage `msgpack:"d,omitempty"`
	List  bool               `msgpack:"l,omitempty"`
	Items []envelope         `msgpack:"i,omitempty"`
}

// Encode serializes a cache value with msgpack. Result lists ([]any) keep
// the concrete type of every element.
func Encode(value any) ([]byte, error) {
	env, err := encodeEnvelope(value)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(env)
}

// Decode rebuilds a value written by Encode
func Decode(data []byte) (any, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cache envelope: %w", err)
	}
	return decodeEnvelope(env)
}

func encodeEnvelope(value any) (envelope, error) {
	if value == nil {
		return envelope{}, nil
	}
	if list, ok := value.([]any); ok {
		env := envelope{List: true, Items: make([]envelope, 0, len(list))}
		for _, item := range list {
			e, err := encodeEnvelope(item)
			if err != nil {
				return envelope{}, err
			}
			env.Items = append(env.Items, e)
		}
		return env, nil
	}
	if hasCycle(reflect.ValueOf(value), map[uintptr]bool{}) {
		return envelope{}, ErrCyclicValue
	}

	data, err := msgpack.Marshal(value)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to encode %T: %w", value, err)
	}
	return envelope{Type: RegisterType(value), Data: data}, nil
}

func decodeEnvelope(env envelope) (any, error) {
	if env.List {
		list := make([]any, 0, len(env.Items))
		for _, item := range env.Items {
			v, err := decodeEnvelope(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}
	if env.Type == "" {
		return nil, nil
	}

	t, ok := types.Load(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(env.Data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	return ptr.Elem().Interface(), nil
}

// hasCycle reports whether a pointer on the current path is reached again.
// Unexported fields are walked too since custom encoders may follow them.
func hasCycle(v reflect.Value, path map[uintptr]bool) bool {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return false
		}
		p := v.Pointer()
		if path[p] {
			return true
		}
		path[p] = true
		defer delete(path, p)
		return hasCycle(v.Elem(), path)
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return hasCycle(v.Elem(), path)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if hasCycle(v.Field(i), path) {
				return true
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return false
		}
		for i := 0; i < v.Len(); i++ {
			if hasCycle(v.Index(i), path) {
				return true
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if hasCycle(iter.Value(), path) {
				return true
			}
		}
	}
	return false
}
